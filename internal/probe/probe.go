// Package probe performs a single HTTP check against an endpoint and
// classifies the outcome. Every failure maps to a result; Probe never
// returns an error.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/qaduni/status/internal/models"
)

const (
	DefaultUserAgent = "StatusMonitor/1.0"
	// SlowThreshold is the elapsed time above which a successful response
	// is classified as slow.
	SlowThreshold = 3 * time.Second

	maxRedirects = 10
)

const (
	msgTimeout          = "Request timeout"
	msgConnectionFailed = "Connection failed"
)

// Prober issues HEAD requests. It is safe for concurrent use; all probes
// share one transport.
type Prober struct {
	userAgent string
	slowAfter time.Duration
	transport http.RoundTripper
	now       func() time.Time
}

type Option func(*Prober)

func WithUserAgent(ua string) Option {
	return func(p *Prober) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

func WithSlowThreshold(d time.Duration) Option {
	return func(p *Prober) { p.slowAfter = d }
}

func WithTransport(rt http.RoundTripper) Option {
	return func(p *Prober) { p.transport = rt }
}

func New(opts ...Option) *Prober {
	p := &Prober{
		userAgent: DefaultUserAgent,
		slowAfter: SlowThreshold,
		transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe checks the endpoint once. The returned result carries the
// endpoint id, outcome, response time and optional status/error; the
// caller assigns the id and persisted timestamp.
func (p *Prober) Probe(ctx context.Context, e models.Endpoint) models.ProbeResult {
	timeout := e.Timeout()
	client := &http.Client{
		Transport: p.transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	start := p.now()
	result := models.ProbeResult{EndpointID: e.ID, CheckedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, e.URL, nil)
	if err != nil {
		return classifyError(result, err, p.now().Sub(start), timeout)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := client.Do(req)
	elapsed := p.now().Sub(start)
	if err != nil {
		return classifyError(result, err, elapsed, timeout)
	}
	resp.Body.Close()

	return classifyResponse(result, resp.StatusCode, elapsed, p.slowAfter)
}

func classifyResponse(r models.ProbeResult, code int, elapsed, slowAfter time.Duration) models.ProbeResult {
	r.StatusCode = &code
	r.ResponseTimeMs = ms(elapsed)

	// slow is decided on the recorded whole milliseconds
	switch {
	case code >= http.StatusBadRequest:
		r.Outcome = models.OutcomeOffline
		r.ErrorMessage = str(fmt.Sprintf("HTTP %d", code))
	case *r.ResponseTimeMs > int(slowAfter.Milliseconds()):
		r.Outcome = models.OutcomeSlow
	default:
		r.Outcome = models.OutcomeOnline
	}
	return r
}

func classifyError(r models.ProbeResult, err error, elapsed, timeout time.Duration) models.ProbeResult {
	switch {
	case isTimeout(err):
		r.Outcome = models.OutcomeOffline
		r.ResponseTimeMs = ms(timeout)
		r.ErrorMessage = str(msgTimeout)
	case isConnectionFailure(err):
		r.Outcome = models.OutcomeOffline
		r.ResponseTimeMs = ms(elapsed)
		r.ErrorMessage = str(msgConnectionFailed)
	default:
		r.Outcome = models.OutcomeError
		r.ResponseTimeMs = ms(elapsed)
		r.ErrorMessage = str(err.Error())
	}
	return r
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isConnectionFailure matches failures that happen before any response:
// name resolution, refused or reset connections, unreachable hosts, TLS
// handshake and certificate failures, and peers that hang up without
// answering.
func isConnectionFailure(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if isTLSFailure(err) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isTLSFailure(err error) bool {
	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	return errors.Is(err, http.ErrSchemeMismatch) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

func ms(d time.Duration) *int {
	v := int(d.Milliseconds())
	return &v
}

func str(s string) *string { return &s }
