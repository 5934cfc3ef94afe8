// Package notify delivers user-facing toasts: a warning for every transient
// poll retry and an error when a job fails for good.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"pollster/internal/events"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Notifier interface {
	Notify(level Level, message string)
}

// SubscriptionMessage is the dedicated toast for subscription_required events.
const SubscriptionMessage = "Your current plan does not include this feature. Upgrade your subscription to continue."

// Forward turns bus events into toasts. Rate limiting is left to the banner.
func Forward(bus events.Bus, n Notifier) (detach func()) {
	return bus.Subscribe(func(ev events.Event) {
		switch ev.Type {
		case events.TypeError:
			n.Notify(LevelError, ev.Message)
		case events.TypeSubscriptionRequired:
			n.Notify(LevelWarning, SubscriptionMessage)
		case events.TypeSignOut:
			n.Notify(LevelInfo, "Your session has ended. Please sign in again.")
		}
	})
}

// LogNotifier writes toasts to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(level Level, message string) {
	switch level {
	case LevelError:
		log.Error(message)
	case LevelWarning:
		log.Warn(message)
	default:
		log.Info(message)
	}
}

// Console prints colored toasts, one per line.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Notify(level Level, message string) {
	var paint func(format string, a ...interface{}) string
	switch level {
	case LevelError:
		paint = color.New(color.FgRed, color.Bold).SprintfFunc()
	case LevelWarning:
		paint = color.New(color.FgYellow).SprintfFunc()
	default:
		paint = color.New(color.FgCyan).SprintfFunc()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, paint("[%s] %s", level, message))
}

type Nop struct{}

func (Nop) Notify(Level, string) {}
