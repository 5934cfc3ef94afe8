// Package events carries the process-wide signals raised by the error
// classification interceptor: rate limiting, forced sign-out, missing
// subscription and generic user-facing errors.
package events

import (
	"context"
	"sync"
	"time"
)

type Type string

const (
	TypeRateLimited          Type = "rate_limited"
	TypeSignOut              Type = "sign_out"
	TypeSubscriptionRequired Type = "subscription_required"
	TypeError                Type = "error"
)

type Event struct {
	Type       Type      `json:"type"`
	Message    string    `json:"message,omitempty"`
	Code       string    `json:"code,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Path       string    `json:"path,omitempty"`
	At         time.Time `json:"at"`
}

// Handler receives events delivered by a Bus.
type Handler func(Event)

// Bus publishes events to every subscribed handler.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe registers h and returns a function that removes it.
	Subscribe(h Handler) (unsubscribe func())
	Close() error
}

// LocalBus delivers events synchronously to in-process handlers.
type LocalBus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

var _ Bus = (*LocalBus)(nil)

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]Handler)}
}

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.dispatch(ev)
	return nil
}

func (b *LocalBus) dispatch(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (b *LocalBus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.handlers[id] = h
	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.handlers = make(map[int]Handler)
	b.mu.Unlock()
	return nil
}
