package reactive

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/roach88/sovereign/internal/store"
)

// Subscription is a live Watch. Cancel it with Unsubscribe.
type Subscription struct {
	hub    *Hub
	l      *listener
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool

	// cbMu is held from the closed check until the callback returns.
	cbMu       sync.Mutex
	inCallback atomic.Bool

	// committed runs between the closed check and the callback. Tests only.
	committed func()
}

// Watch runs query once straight away and again whenever one of tables is
// published. onChange receives the first result and then every result that
// is not reflect.DeepEqual to the last one delivered. Query errors are
// always delivered; the next successful result is delivered even if it
// equals the one before the error.
//
// Callbacks run on the subscription's own goroutine, one at a time.
func Watch[T any](hub *Hub, tables []store.Table, query func(context.Context) (T, error), onChange func(T, error)) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		hub:    hub,
		l:      hub.listen(tables),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		var (
			last T
			have bool
		)
		run := func() {
			v, err := query(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				have = false
				s.deliver(func() { var zero T; onChange(zero, err) })
				return
			}
			if have && reflect.DeepEqual(last, v) {
				return
			}
			last, have = v, true
			s.deliver(func() { onChange(v, nil) })
		}

		run()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.l.ch:
				run()
			}
		}
	}()
	return s
}

// deliver invokes fn unless the subscription has been cancelled.
func (s *Subscription) deliver(fn func()) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	if s.committed != nil {
		s.committed()
	}
	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	fn()
}

// Unsubscribe stops the watch. No callback starts after it returns. Called
// from another goroutine, it waits for a delivery that has passed its
// closed check; a callback already executing may finish. Safe to call more
// than once, including from inside the callback.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.hub.remove(s.l)

	// Inside the callback cbMu is held by this goroutine.
	if !s.inCallback.Load() {
		s.cbMu.Lock()
		s.cbMu.Unlock()
	}
}

// Done is closed once the subscription's goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
