package polling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pollster/internal/httpclient"
	"pollster/internal/interceptor"
	"pollster/internal/models"
	"pollster/internal/notify"
)

// Recorder persists job lifecycle changes. Failures are logged and never
// affect the job itself.
type Recorder interface {
	RecordStart(ctx context.Context, st JobState, payload json.RawMessage) error
	RecordUpdate(ctx context.Context, st JobState) error
}

type Options struct {
	MaxProgress      int
	TransientRetries int
	TransientDelay   time.Duration
	Windows          map[Speed]Window

	Delay     DelayFunc
	Sleep     Sleeper
	Scheduler Scheduler
	Notifier  notify.Notifier
	Recorder  Recorder
	Registry  *Registry
}

func DefaultOptions() Options {
	return Options{
		MaxProgress:      DefaultMaxProgress,
		TransientRetries: DefaultTransientRetries,
		TransientDelay:   DefaultTransientDelay,
		Windows:          map[Speed]Window{SpeedFast: FastWindow, SpeedLong: LongWindow},
	}
}

// Engine drives jobs through start, poll and end and keeps their state in a
// Store keyed by slot.
type Engine struct {
	registry  *Registry
	store     *Store
	initiator *Initiator
	poller    *Poller
	finalizer *Finalizer
	sched     Scheduler
	delay     DelayFunc
	notifier  notify.Notifier
	recorder  Recorder
	windows   map[Speed]Window
	max       int
}

func NewEngine(client httpclient.Doer, opts Options) *Engine {
	def := DefaultOptions()
	if opts.MaxProgress <= 0 {
		opts.MaxProgress = def.MaxProgress
	}
	if opts.TransientDelay < 0 {
		opts.TransientDelay = def.TransientDelay
	}
	if opts.Windows == nil {
		opts.Windows = def.Windows
	}
	if opts.Delay == nil {
		opts.Delay = UniformDelay
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TimerScheduler{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}

	return &Engine{
		registry:  opts.Registry,
		store:     NewStore(),
		initiator: NewInitiator(client),
		poller:    NewPoller(client, opts.Notifier, opts.Sleep, opts.TransientRetries, opts.TransientDelay),
		finalizer: NewFinalizer(client),
		sched:     opts.Scheduler,
		delay:     opts.Delay,
		notifier:  opts.Notifier,
		recorder:  opts.Recorder,
		windows:   opts.Windows,
		max:       opts.MaxProgress,
	}
}

func (e *Engine) Registry() *Registry { return e.registry }

type startConfig struct {
	slot string
}

type StartOption func(*startConfig)

// WithSlot runs the job in slot, superseding whatever job the slot holds.
func WithSlot(slot string) StartOption {
	return func(c *startConfig) { c.slot = slot }
}

// StartJob submits payload to the kind's start endpoint and begins polling.
// It returns once the token is known; polling continues in the background.
// A failed start leaves the slot failed and is not retried.
func (e *Engine) StartJob(ctx context.Context, kindName string, payload any, opts ...StartOption) (string, error) {
	kind, err := e.registry.Lookup(kindName)
	if err != nil {
		return "", err
	}
	cfg := startConfig{slot: uuid.NewString()}
	for _, o := range opts {
		o(&cfg)
	}

	st, genCtx := e.store.Begin(context.Background(), cfg.slot, kind.Name)
	gen := st.Generation
	log.Infof("Starting %s job in slot %s (generation %d)", kind.Name, cfg.slot, gen)
	e.recordStart(st, payload)

	token, err := e.initiator.Start(ctx, kind, payload)
	if err == nil {
		var accepted bool
		st, accepted, err = e.store.AttachToken(cfg.slot, gen, token)
		if err == nil && !accepted {
			return cfg.slot, fmt.Errorf("slot %s changed while starting: %w", cfg.slot, models.ErrConflict)
		}
	}
	if err != nil {
		e.fail(cfg.slot, gen, "", err)
		return cfg.slot, err
	}
	e.record(st)
	log.Debugf("Job %s in slot %s got token %s", kind.Name, cfg.slot, token)

	e.schedulePoll(genCtx, cfg.slot, gen, kind, token, true, 0)
	return cfg.slot, nil
}

func (e *Engine) schedulePoll(genCtx context.Context, slot string, gen uint64, kind Kind, token string, reset bool, d time.Duration) {
	e.sched.Schedule(genCtx, d, func(ctx context.Context) {
		e.attempt(ctx, genCtx, slot, gen, kind, token, reset)
	})
}

func (e *Engine) attempt(ctx, genCtx context.Context, slot string, gen uint64, kind Kind, token string, reset bool) {
	out := e.poller.PollOnce(ctx, kind, token)
	log.Debugf("Poll of %s job %s: %s after %d attempt(s)", kind.Name, token, out.Kind, out.Attempts)

	switch out.Kind {
	case OutcomeInProgress:
		st, ok := e.store.Update(slot, gen, token, func(s *JobState) {
			s.JobStatus = models.JobStatusInProgress
			s.Progress = NextProgress(s.Progress, reset, e.max)
			s.Polls++
		})
		if !ok {
			return
		}
		e.record(st)
		e.schedulePoll(genCtx, slot, gen, kind, token, false, e.delay(e.window(kind)))

	case OutcomeCompleted:
		if _, ok := e.store.Update(slot, gen, token, func(s *JobState) {
			s.JobStatus = models.JobStatusCompleted
			s.Polls++
		}); !ok {
			return
		}
		result, err := e.finalizer.Finalize(ctx, kind, token)
		if err != nil {
			e.fail(slot, gen, token, err)
			return
		}
		e.succeed(slot, gen, token, result)

	default:
		if errors.Is(out.Err, models.ErrJobFailed) {
			e.store.Update(slot, gen, token, func(s *JobState) { s.JobStatus = models.JobStatusError })
		}
		e.fail(slot, gen, token, out.Err)
	}
}

func (e *Engine) window(kind Kind) Window {
	if w, ok := e.windows[kind.Speed]; ok {
		return w
	}
	return FastWindow
}

func (e *Engine) succeed(slot string, gen uint64, token string, result json.RawMessage) {
	st, ok := e.store.Update(slot, gen, token, func(s *JobState) {
		s.Status = models.StoreStatusSucceeded
		s.Result = result
		s.ResultDone = true
		s.Party = true
		s.Error = ""
	})
	if !ok {
		return
	}
	e.store.Release(slot, gen)
	log.Infof("Job %s in slot %s succeeded", st.Kind, slot)
	e.record(st)
}

func (e *Engine) fail(slot string, gen uint64, token string, err error) bool {
	st, ok := e.store.Update(slot, gen, token, failWith(err))
	if !ok {
		return false
	}
	e.failed(st, err)
	return true
}

func failWith(err error) func(*JobState) {
	return func(s *JobState) {
		s.Status = models.StoreStatusFailed
		s.Error = err.Error()
	}
}

// failed finishes a job that was just marked failed.
func (e *Engine) failed(st JobState, err error) {
	e.store.Release(st.Slot, st.Generation)
	log.Errorf("Job %s in slot %s failed: %v", st.Kind, st.Slot, err)
	if msg, ok := failureToast(err); ok {
		e.notifier.Notify(notify.LevelError, msg)
	}
	e.record(st)
}

// failureToast returns the error toast for a terminal failure. Failures the
// interceptor classified were already surfaced through the event bus (banner,
// sign-out, subscription prompt, error toast) or deliberately suppressed, and
// cancellation is the caller's own doing.
func failureToast(err error) (string, bool) {
	switch {
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrCancelled):
		return "", false
	case interceptor.ClassOf(err) != interceptor.ClassNone:
		return "", false
	}
	return err.Error(), true
}

// State returns the current state of slot.
func (e *Engine) State(slot string) (JobState, error) {
	st, ok := e.store.Get(slot)
	if !ok {
		return JobState{}, fmt.Errorf("slot %s: %w", slot, models.ErrNotFound)
	}
	return st, nil
}

// States returns every known slot, most recent first.
func (e *Engine) States() []JobState {
	return e.store.List()
}

// Subscribe streams snapshots of slot. The slot may be subscribed to before
// its first job starts.
func (e *Engine) Subscribe(slot string) (<-chan JobState, func()) {
	return e.store.Subscribe(slot)
}

// Wait blocks until the job in slot reaches a terminal state or ctx is done.
func (e *Engine) Wait(ctx context.Context, slot string) (JobState, error) {
	for {
		st, changed, ok := e.store.watch(slot)
		if !ok {
			return JobState{}, fmt.Errorf("slot %s: %w", slot, models.ErrNotFound)
		}
		if st.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-changed:
		}
	}
}

// Cancel stops the job in slot and marks it failed with ErrCancelled. It
// only ever cancels the job that was running when it was called: if a new
// start supersedes that job first, Cancel reports a conflict.
func (e *Engine) Cancel(slot string) error {
	st, ok := e.store.Get(slot)
	if !ok {
		return fmt.Errorf("slot %s: %w", slot, models.ErrNotFound)
	}
	if st.Terminal() || st.Status == models.StoreStatusIdle {
		return fmt.Errorf("slot %s is %s: %w", slot, st.Status, models.ErrConflict)
	}
	cancelled, ok := e.store.Abort(slot, st.Generation, failWith(models.ErrCancelled))
	if !ok {
		return fmt.Errorf("slot %s changed while cancelling: %w", slot, models.ErrConflict)
	}
	e.failed(cancelled, models.ErrCancelled)
	return nil
}

func (e *Engine) recordStart(st JobState, payload any) {
	if e.recorder == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Warnf("Failed to encode payload of slot %s for history: %v", st.Slot, err)
		raw = nil
	}
	if err := e.recorder.RecordStart(context.Background(), st, raw); err != nil {
		log.Warnf("Failed to record start of slot %s: %v", st.Slot, err)
	}
}

func (e *Engine) record(st JobState) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordUpdate(context.Background(), st); err != nil {
		log.Warnf("Failed to record slot %s: %v", st.Slot, err)
	}
}
