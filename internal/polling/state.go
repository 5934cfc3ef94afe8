package polling

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"pollster/internal/models"
)

// JobState is the observable state of the job held by one slot.
type JobState struct {
	Slot  string `json:"slot"`
	Kind  string `json:"kind"`
	Token string `json:"token,omitempty"`
	// Status is the store state: idle, loading, succeeded or failed.
	Status string `json:"status"`
	// JobStatus is the last status reported by the server.
	JobStatus  string          `json:"job_status"`
	Progress   int             `json:"progress"`
	Result     json.RawMessage `json:"result,omitempty"`
	ResultDone bool            `json:"result_done"`
	Party      bool            `json:"party"`
	Error      string          `json:"error,omitempty"`
	Generation uint64          `json:"generation"`
	Polls      int             `json:"polls"`
	StartedAt  time.Time       `json:"started_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (s JobState) Terminal() bool {
	return s.Status == models.StoreStatusSucceeded || s.Status == models.StoreStatusFailed
}

const subscriberBuffer = 16

type slotEntry struct {
	state   JobState
	cancel  context.CancelFunc
	subs    map[int]chan JobState
	nextSub int
	// changed is closed and replaced on every accepted write.
	changed chan struct{}
}

// Store holds one JobState per slot. Every write names the generation and
// token it belongs to; writes from a superseded generation are dropped.
type Store struct {
	mu    sync.RWMutex
	slots map[string]*slotEntry
	// tokens maps every token ever attached to the slot that received it.
	tokens map[string]string
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		slots:  make(map[string]*slotEntry),
		tokens: make(map[string]string),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) entry(slot string) *slotEntry {
	e, ok := s.slots[slot]
	if !ok {
		e = &slotEntry{
			state:   JobState{Slot: slot, Status: models.StoreStatusIdle},
			subs:    make(map[int]chan JobState),
			changed: make(chan struct{}),
		}
		s.slots[slot] = e
	}
	return e
}

// Begin resets slot to loading for a new job of kind. The previous
// generation's context is cancelled, which stops its pending poll. The
// returned context lives until the next Begin on the slot or until Release.
func (s *Store) Begin(parent context.Context, slot, kind string) (JobState, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(slot)
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel

	now := s.now()
	e.state = JobState{
		Slot:       slot,
		Kind:       kind,
		Status:     models.StoreStatusLoading,
		JobStatus:  models.JobStatusPending,
		Progress:   NextProgress(e.state.Progress, true, 0),
		Generation: e.state.Generation + 1,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	s.publishLocked(e)
	return e.state, ctx
}

// AttachToken records the token returned by the start call. It fails with
// ErrTokenReused when any slot of the store has already seen token.
func (s *Store) AttachToken(slot string, gen uint64, token string) (JobState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.slots[slot]
	if !ok || e.state.Generation != gen || e.state.Terminal() {
		return JobState{}, false, nil
	}
	if owner, seen := s.tokens[token]; seen {
		return e.state, false, fmt.Errorf("%w: %s (first seen in slot %s)", models.ErrTokenReused, token, owner)
	}
	s.tokens[token] = slot
	e.state.Token = token
	e.state.UpdatedAt = s.now()
	s.publishLocked(e)
	return e.state, true, nil
}

// Update applies fn to the slot's state when gen and token still identify
// the current job and the job is not terminal yet. It reports whether the
// write was accepted.
func (s *Store) Update(slot string, gen uint64, token string, fn func(*JobState)) (JobState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.slots[slot]
	if !ok || e.state.Token != token {
		return JobState{}, false
	}
	return s.applyLocked(e, gen, fn)
}

// Abort applies fn like Update but matches the generation only, so it also
// reaches a job whose token has not arrived or has just arrived.
func (s *Store) Abort(slot string, gen uint64, fn func(*JobState)) (JobState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.slots[slot]
	if !ok {
		return JobState{}, false
	}
	return s.applyLocked(e, gen, fn)
}

func (s *Store) applyLocked(e *slotEntry, gen uint64, fn func(*JobState)) (JobState, bool) {
	if e.state.Generation != gen || e.state.Terminal() {
		return JobState{}, false
	}
	fn(&e.state)
	e.state.UpdatedAt = s.now()
	s.publishLocked(e)
	return e.state, true
}

// Release cancels the generation context once gen reached a terminal state.
func (s *Store) Release(slot string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.slots[slot]; ok && e.state.Generation == gen && e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (s *Store) Get(slot string) (JobState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.slots[slot]
	if !ok {
		return JobState{}, false
	}
	return e.state, true
}

// List returns every slot's state, most recently started first.
func (s *Store) List() []JobState {
	s.mu.RLock()
	out := make([]JobState, 0, len(s.slots))
	for _, e := range s.slots {
		out = append(out, e.state)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Subscribe delivers a snapshot on every accepted write to slot, starting
// with the current state. A slow reader loses the oldest snapshots, never
// the latest one.
func (s *Store) Subscribe(slot string) (<-chan JobState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(slot)
	ch := make(chan JobState, subscriberBuffer)
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	ch <- e.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(ch)
			}
		})
	}
}

// watch returns the current state and a channel closed on the next write.
func (s *Store) watch(slot string) (JobState, <-chan struct{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.slots[slot]
	if !ok {
		return JobState{}, nil, false
	}
	return e.state, e.changed, true
}

func (s *Store) publishLocked(e *slotEntry) {
	close(e.changed)
	e.changed = make(chan struct{})
	for _, ch := range e.subs {
		for {
			select {
			case ch <- e.state:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
