package polling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"pollster/internal/httpclient"
	"pollster/internal/interceptor"
	"pollster/internal/models"
	"pollster/internal/notify"
)

type OutcomeKind int

const (
	// OutcomeInProgress means the job is still running and must be polled again.
	OutcomeInProgress OutcomeKind = iota
	OutcomeCompleted
	OutcomeFailed
	// OutcomeExhausted means every attempt of the transient-fault budget failed.
	OutcomeExhausted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeInProgress:
		return "in-progress"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeExhausted:
		return "exhausted"
	}
	return "unknown"
}

type Outcome struct {
	Kind     OutcomeKind
	Attempts int
	Err      error
}

const (
	DefaultTransientRetries = 5
	DefaultTransientDelay   = 3000 * time.Millisecond
)

// Poller performs one poll attempt: a query call plus its budget of
// transient-fault retries.
type Poller struct {
	client   httpclient.Doer
	notifier notify.Notifier
	sleep    Sleeper
	retries  int
	delay    time.Duration
}

func NewPoller(client httpclient.Doer, notifier notify.Notifier, sleep Sleeper, retries int, delay time.Duration) *Poller {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if sleep == nil {
		sleep = Sleep
	}
	if retries <= 0 {
		retries = DefaultTransientRetries
	}
	return &Poller{client: client, notifier: notifier, sleep: sleep, retries: retries, delay: delay}
}

// PollOnce queries the job once, retrying transient faults with a fixed
// pause. Every call starts with a fresh budget.
func (p *Poller) PollOnce(ctx context.Context, kind Kind, token string) Outcome {
	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		outcome, err := p.query(ctx, kind, token)
		if err == nil {
			outcome.Attempts = attempt
			return outcome
		}
		if ctx.Err() != nil {
			return Outcome{Kind: OutcomeFailed, Attempts: attempt, Err: ctx.Err()}
		}
		if interceptor.ClassOf(err) == interceptor.ClassSignOut {
			return Outcome{Kind: OutcomeFailed, Attempts: attempt, Err: signedOut(err)}
		}

		lastErr = err
		log.Warnf("Poll of %s job %s failed (attempt %d/%d): %v", kind.Name, token, attempt, p.retries, err)
		p.notifier.Notify(notify.LevelWarning, fmt.Sprintf("Connection problem, retrying... (attempt %d of %d)", attempt, p.retries))

		if attempt < p.retries {
			if err := p.sleep(ctx, p.delay); err != nil {
				return Outcome{Kind: OutcomeFailed, Attempts: attempt, Err: err}
			}
		}
	}
	return Outcome{
		Kind:     OutcomeExhausted,
		Attempts: p.retries,
		Err:      fmt.Errorf("%w after %d attempts: %v", models.ErrPollExhausted, p.retries, lastErr),
	}
}

// query returns a non-nil error only for transient faults.
func (p *Poller) query(ctx context.Context, kind Kind, token string) (Outcome, error) {
	resp, err := p.client.Do(ctx, &httpclient.Request{Method: kind.Method, Path: kind.QueryURL(token)})
	if err != nil {
		return Outcome{}, err
	}

	var body map[string]json.RawMessage
	if err := resp.Decode(&body); err != nil {
		return Outcome{}, err
	}
	// The presence of the field is the signal, whatever its value.
	if _, ok := body["progress"]; ok {
		return Outcome{Kind: OutcomeInProgress}, nil
	}

	var status string
	if raw, ok := body["status"]; ok {
		if err := json.Unmarshal(raw, &status); err != nil {
			return Outcome{}, fmt.Errorf("decode status: %w", err)
		}
	}
	switch status {
	case models.JobStatusError:
		return Outcome{Kind: OutcomeFailed, Err: models.ErrJobFailed}, nil
	case models.JobStatusCompleted:
		return Outcome{Kind: OutcomeCompleted}, nil
	}
	return Outcome{}, errors.New("unrecognized query response")
}

// signedOut marks a rejection that forced a sign-out as ErrUnauthorized,
// keeping the interceptor's classification reachable.
func signedOut(err error) error {
	if interceptor.ClassOf(err) == interceptor.ClassSignOut {
		return fmt.Errorf("%w: %w", models.ErrUnauthorized, err)
	}
	return err
}
