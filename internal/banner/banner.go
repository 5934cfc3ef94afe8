// Package banner holds the process-wide rate-limit banner. The banner is
// shown whenever any request is answered with 429 and stays up until it is
// dismissed explicitly.
package banner

import (
	"sync"

	"pollster/internal/events"
)

// DefaultMessage is used when the 429 response carried no message.
const DefaultMessage = "You are sending requests too quickly. Please wait a moment and try again."

type State struct {
	Show    bool   `json:"show"`
	Message string `json:"message"`
}

type Banner struct {
	mu    sync.RWMutex
	state State
}

func New() *Banner {
	return &Banner{}
}

func (b *Banner) Get() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Banner) Set(message string) {
	if message == "" {
		message = DefaultMessage
	}
	b.mu.Lock()
	b.state = State{Show: true, Message: message}
	b.mu.Unlock()
}

func (b *Banner) Dismiss() {
	b.mu.Lock()
	b.state = State{}
	b.mu.Unlock()
}

// Attach raises the banner for every rate_limited event on bus.
func (b *Banner) Attach(bus events.Bus) (detach func()) {
	return bus.Subscribe(func(ev events.Event) {
		if ev.Type == events.TypeRateLimited {
			b.Set(ev.Message)
		}
	})
}
