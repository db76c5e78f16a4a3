package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// endpointLocks hands out one mutex per endpoint. Entries exist only while
// someone holds or waits for them.
type endpointLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*endpointLock
}

type endpointLock struct {
	ch   chan struct{}
	refs int
}

func newEndpointLocks() *endpointLocks {
	return &endpointLocks{locks: make(map[uuid.UUID]*endpointLock)}
}

func (l *endpointLocks) ref(id uuid.UUID) *endpointLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.locks[id]
	if !ok {
		el = &endpointLock{ch: make(chan struct{}, 1)}
		l.locks[id] = el
	}
	el.refs++
	return el
}

func (l *endpointLocks) unref(id uuid.UUID, el *endpointLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el.refs--
	if el.refs == 0 {
		delete(l.locks, id)
	}
}

// Lock blocks until the endpoint is free or ctx is done.
func (l *endpointLocks) Lock(ctx context.Context, id uuid.UUID) error {
	el := l.ref(id)
	select {
	case el.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(id, el)
		return ctx.Err()
	}
}

// TryLock takes the endpoint's lock only if nobody holds it.
func (l *endpointLocks) TryLock(id uuid.UUID) bool {
	el := l.ref(id)
	select {
	case el.ch <- struct{}{}:
		return true
	default:
		l.unref(id, el)
		return false
	}
}

func (l *endpointLocks) Unlock(id uuid.UUID) {
	l.mu.Lock()
	el, ok := l.locks[id]
	l.mu.Unlock()
	if !ok {
		panic("services: unlock of unlocked endpoint " + id.String())
	}
	<-el.ch
	l.unref(id, el)
}

func (l *endpointLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
