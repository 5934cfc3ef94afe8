// Package interceptor wraps the authenticated HTTP client and turns failed
// responses into process-wide events (rate-limit banner, forced sign-out,
// subscription prompt, error toast) independent of whichever caller issued
// the request.
package interceptor

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"pollster/internal/events"
	"pollster/internal/httpclient"
)

// Error annotates a failed request with its classification.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Class, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// ClassOf returns the classification attached to err, or ClassNone.
func ClassOf(err error) Class {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Class
	}
	return ClassNone
}

type Interceptor struct {
	next  httpclient.Doer
	bus   events.Bus
	rules Rules
}

var _ httpclient.Doer = (*Interceptor)(nil)

func New(next httpclient.Doer, bus events.Bus, rules Rules) *Interceptor {
	return &Interceptor{next: next, bus: bus, rules: rules}
}

func (i *Interceptor) Do(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	resp, err := i.next.Do(ctx, req)
	if err == nil {
		return resp, nil
	}

	se, ok := httpclient.AsStatusError(err)
	if !ok {
		// Transport failures belong to the caller (the poll loop retries them).
		return resp, err
	}

	class, toast := i.rules.Classify(se)
	log.Warnf("Rejected request %s %s: status=%d class=%s message=%q", req.Method, req.Path, se.StatusCode, class, se.Message)

	base := events.Event{Code: se.Code, StatusCode: se.StatusCode, Path: req.Path, Message: se.Message}
	if toast {
		ev := base
		ev.Type = events.TypeError
		if ev.Message == "" {
			ev.Message = DefaultErrorMessage
		}
		i.publish(ctx, ev)
	}
	switch class {
	case ClassRateLimited:
		ev := base
		ev.Type = events.TypeRateLimited
		i.publish(ctx, ev)
	case ClassSignOut:
		ev := base
		ev.Type = events.TypeSignOut
		i.publish(ctx, ev)
	case ClassSubscription:
		ev := base
		ev.Type = events.TypeSubscriptionRequired
		i.publish(ctx, ev)
	}

	return resp, &Error{Class: class, Err: err}
}

func (i *Interceptor) publish(ctx context.Context, ev events.Event) {
	if i.bus == nil {
		return
	}
	// Detach from the request context: a cancelled poll must still raise the banner.
	if err := i.bus.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Errorf("Failed to publish %s event: %v", ev.Type, err)
	}
}
