package polling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pollster/internal/httpclient"
	"pollster/internal/notify"
)

type reply struct {
	status  int
	body    string
	code    string
	message string
	err     error
}

func ok(body string) reply { return reply{status: 200, body: body} }

type call struct {
	Method string
	Path   string
	Body   any
}

// fakeBackend answers requests from per-path scripts. The last reply of a
// script repeats once the script runs out.
type fakeBackend struct {
	mu      sync.Mutex
	scripts map[string][]reply
	calls   []call
	hook    func(req *httpclient.Request)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{scripts: make(map[string][]reply)}
}

func (f *fakeBackend) on(path string, replies ...reply) *fakeBackend {
	f.mu.Lock()
	f.scripts[path] = append(f.scripts[path], replies...)
	f.mu.Unlock()
	return f
}

func (f *fakeBackend) Do(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{Method: req.Method, Path: req.Path, Body: req.Body})
	script := f.scripts[req.Path]
	var r reply
	switch len(script) {
	case 0:
		r = reply{status: 404, body: `{"error":"no script"}`}
	case 1:
		r = script[0]
	default:
		r = script[0]
		f.scripts[req.Path] = script[1:]
	}
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if r.err != nil {
		return nil, r.err
	}
	resp := &httpclient.Response{StatusCode: r.status, Body: []byte(r.body)}
	if r.status < 200 || r.status > 299 {
		return resp, &httpclient.StatusError{Method: req.Method, Path: req.Path, StatusCode: r.status, Code: r.code, Message: r.message}
	}
	return resp, nil
}

func (f *fakeBackend) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeBackend) callsTo(path string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

type scheduledTask struct {
	ctx    context.Context
	cancel context.CancelFunc
	delay  time.Duration
	fn     func(ctx context.Context)
}

// manualScheduler queues tasks until the test runs them.
type manualScheduler struct {
	mu     sync.Mutex
	queue  []*scheduledTask
	delays []time.Duration
}

func (m *manualScheduler) Schedule(parent context.Context, d time.Duration, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	t := &scheduledTask{ctx: ctx, cancel: cancel, delay: d, fn: fn}
	m.mu.Lock()
	m.queue = append(m.queue, t)
	m.delays = append(m.delays, d)
	m.mu.Unlock()
}

func (m *manualScheduler) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// runNext runs the oldest queued task. It reports false when the task had
// been cancelled before it could fire.
func (m *manualScheduler) runNext(t *testing.T) bool {
	t.Helper()
	m.mu.Lock()
	require.NotEmpty(t, m.queue, "no scheduled task")
	task := m.queue[0]
	m.queue = m.queue[1:]
	m.mu.Unlock()

	defer task.cancel()
	if task.ctx.Err() != nil {
		return false
	}
	task.fn(task.ctx)
	return true
}

func (m *manualScheduler) lastDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delays[len(m.delays)-1]
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

type toast struct {
	Level   notify.Level
	Message string
}

// toastRecorder keeps every toast the engine delivers.
type toastRecorder struct {
	mu     sync.Mutex
	toasts []toast
}

func (r *toastRecorder) Notify(level notify.Level, message string) {
	r.mu.Lock()
	r.toasts = append(r.toasts, toast{Level: level, Message: message})
	r.mu.Unlock()
}

func (r *toastRecorder) Toasts() []toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toast(nil), r.toasts...)
}

func (r *toastRecorder) Count(level notify.Level) int {
	n := 0
	for _, t := range r.Toasts() {
		if t.Level == level {
			n++
		}
	}
	return n
}

type testEngine struct {
	*Engine
	backend  *fakeBackend
	sched    *manualScheduler
	notifier *toastRecorder
	sleeper  *sleepRecorder
}

func newTestEngine(backend *fakeBackend) *testEngine {
	return newTestEngineOver(backend, backend)
}

// newTestEngineOver drives the engine through client, which is expected to
// end up at backend.
func newTestEngineOver(client httpclient.Doer, backend *fakeBackend) *testEngine {
	te := &testEngine{
		backend:  backend,
		sched:    &manualScheduler{},
		notifier: &toastRecorder{},
		sleeper:  &sleepRecorder{},
	}
	opts := DefaultOptions()
	opts.Scheduler = te.sched
	opts.Notifier = te.notifier
	opts.Sleep = te.sleeper.Sleep
	opts.Delay = func(w Window) time.Duration { return w.Min }
	te.Engine = NewEngine(client, opts)
	return te
}
