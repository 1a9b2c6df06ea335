// Package schedule arms one-shot wakes that type a nudge into an idle
// tmux session at a chosen time. At most one wake is pending per session
// and pending wakes survive daemon restarts.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agent-pilot/responderd/internal/metrics"
)

// ErrNoWake is returned when cancelling a session with nothing pending.
var ErrNoWake = errors.New("no pending wake")

// Wake is one scheduled nudge.
type Wake struct {
	ID      uuid.UUID `json:"id"`
	Session string    `json:"session"`
	FireAt  time.Time `json:"fire_at"`
	Note    string    `json:"note,omitempty"`
}

// DispatchFunc delivers the wake text to the session when the timer fires.
type DispatchFunc func(session, note string) error

type armed struct {
	wake  Wake
	timer *time.Timer
	fired bool
}

// Scheduler owns all pending wakes. Arming a session replaces any prior
// wake for it; cancelling after the timer has fired is a no-op.
type Scheduler struct {
	mu       sync.Mutex
	pending  map[string]*armed
	fired    map[string]struct{}
	dispatch DispatchFunc
	path     string
	log      zerolog.Logger
	now      func() time.Time
}

func New(stateDir string, dispatch DispatchFunc, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		pending:  make(map[string]*armed),
		fired:    make(map[string]struct{}),
		dispatch: dispatch,
		path:     filepath.Join(stateDir, "wakes.json"),
		log:      log,
		now:      time.Now,
	}
}

// Arm schedules a wake, replacing the session's existing one if any.
func (s *Scheduler) Arm(session string, fireAt time.Time, note string) (Wake, error) {
	if session == "" {
		return Wake{}, errors.New("session required")
	}
	w := Wake{ID: uuid.New(), Session: session, FireAt: fireAt.UTC(), Note: note}

	s.mu.Lock()
	if prev, ok := s.pending[session]; ok {
		prev.timer.Stop()
	}
	delete(s.fired, session)
	s.armLocked(w)
	err := s.persistLocked()
	s.mu.Unlock()

	if err != nil {
		s.log.Warn().Err(err).Msg("wake state not persisted")
	}
	s.log.Info().Str("session", session).Time("fire_at", w.FireAt).Msg("wake armed")
	return w, nil
}

// armLocked installs the timer; caller holds s.mu.
func (s *Scheduler) armLocked(w Wake) {
	a := &armed{wake: w}
	delay := w.FireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	a.timer = time.AfterFunc(delay, func() { s.fire(a) })
	s.pending[w.Session] = a
}

func (s *Scheduler) fire(a *armed) {
	s.mu.Lock()
	if a.fired {
		s.mu.Unlock()
		return
	}
	a.fired = true
	if cur, ok := s.pending[a.wake.Session]; ok && cur == a {
		delete(s.pending, a.wake.Session)
		s.fired[a.wake.Session] = struct{}{}
	}
	if err := s.persistLocked(); err != nil {
		s.log.Warn().Err(err).Msg("wake state not persisted")
	}
	s.mu.Unlock()

	metrics.WakesFired.Inc()
	if err := s.dispatch(a.wake.Session, a.wake.Note); err != nil {
		s.log.Error().Err(err).Str("session", a.wake.Session).Msg("wake dispatch failed")
		return
	}
	s.log.Info().Str("session", a.wake.Session).Msg("wake fired")
}

// Cancel removes the session's pending wake. A cancel that loses the race
// against the timer firing is a no-op, not an error; ErrNoWake is only
// returned when the session has no wake at all.
func (s *Scheduler) Cancel(session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.pending[session]
	if !ok || a.fired {
		if _, was := s.fired[session]; was {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNoWake, session)
	}
	a.timer.Stop()
	a.fired = true
	delete(s.pending, session)
	if err := s.persistLocked(); err != nil {
		s.log.Warn().Err(err).Msg("wake state not persisted")
	}
	return nil
}

// Pending lists wakes that have not fired, soonest first.
func (s *Scheduler) Pending() []Wake {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Wake, 0, len(s.pending))
	for _, a := range s.pending {
		out = append(out, a.wake)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// Restore re-arms wakes persisted by a previous run. Wakes whose time has
// already passed fire immediately.
func (s *Scheduler) Restore() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("wake state: %w", err)
	}
	var wakes []Wake
	if err := json.Unmarshal(b, &wakes); err != nil {
		return fmt.Errorf("wake state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range wakes {
		s.armLocked(w)
	}
	s.log.Info().Int("count", len(wakes)).Msg("wakes restored")
	return nil
}

// persistLocked writes pending wakes atomically; caller holds s.mu.
func (s *Scheduler) persistLocked() error {
	wakes := make([]Wake, 0, len(s.pending))
	for _, a := range s.pending {
		wakes = append(wakes, a.wake)
	}
	sort.Slice(wakes, func(i, j int) bool { return wakes[i].FireAt.Before(wakes[j].FireAt) })

	b, err := json.MarshalIndent(wakes, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
