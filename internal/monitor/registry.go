package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agent-pilot/responderd/internal/classify"
	"github.com/agent-pilot/responderd/internal/policy"
	"github.com/agent-pilot/responderd/internal/tmux"
)

var (
	// ErrAlreadyRunning is returned when a session already has a monitor.
	ErrAlreadyRunning = errors.New("session already monitored")
	// ErrNotRunning is returned for stop/status of an unmonitored session.
	ErrNotRunning = errors.New("session not monitored")
)

// SessionChecker verifies a tmux session exists before a monitor starts.
type SessionChecker interface {
	HasSession(name string) bool
}

// KeystrokeClient is the tmux surface the registry wires into dispatchers
// and monitors.
type KeystrokeClient interface {
	TmuxClient
	SessionChecker
	SendKeys(target string, keys ...string) error
}

// SinkFactory builds the decision sink for a session (audit file plus any
// event broadcast).
type SinkFactory func(session string) (Sink, error)

// Status describes one running monitor.
type Status struct {
	Session  string    `json:"session"`
	Preset   string    `json:"preset"`
	Started  time.Time `json:"started"`
	Degraded bool      `json:"degraded"`
}

// Registry starts and stops per-session monitors. Presets are resolved at
// start time; a policy reload affects monitors started afterwards.
type Registry struct {
	mu       sync.Mutex
	monitors map[string]*entry

	store      *policy.Store
	tmux       KeystrokeClient
	classifier *classify.Classifier
	sinks      SinkFactory
	onSnapshot SnapshotFunc

	captureLines int
	dedupTTL     time.Duration
	// delay and interval override the per-preset values when positive.
	delay    time.Duration
	interval time.Duration
	log      zerolog.Logger
}

type entry struct {
	mon     *Monitor
	started time.Time
}

// RegistryOptions wires a registry's collaborators.
type RegistryOptions struct {
	Store        *policy.Store
	Tmux         KeystrokeClient
	Classifier   *classify.Classifier
	Sinks        SinkFactory
	OnSnapshot   SnapshotFunc
	CaptureLines int
	DedupTTL     time.Duration
	// ResponseDelay and CheckInterval override every preset's values when
	// positive; zero keeps the per-preset defaults.
	ResponseDelay time.Duration
	CheckInterval time.Duration
	Log           zerolog.Logger
}

func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		monitors:     make(map[string]*entry),
		store:        opts.Store,
		tmux:         opts.Tmux,
		classifier:   opts.Classifier,
		sinks:        opts.Sinks,
		onSnapshot:   opts.OnSnapshot,
		captureLines: opts.CaptureLines,
		dedupTTL:     opts.DedupTTL,
		delay:        opts.ResponseDelay,
		interval:     opts.CheckInterval,
		log:          opts.Log,
	}
}

// Start begins monitoring a session under the named preset. The monitor
// runs until Stop or StopAll, or until the session disappears; it is not
// tied to the caller's lifetime.
func (r *Registry) Start(session, presetName string) (Status, error) {
	preset, err := r.store.Resolve(presetName)
	if err != nil {
		return Status{}, err
	}

	if !r.tmux.HasSession(session) {
		return Status{}, fmt.Errorf("%w: %s", tmux.ErrPaneNotFound, session)
	}

	sink, err := r.sinks(session)
	if err != nil {
		return Status{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.monitors[session]; exists {
		return Status{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, session)
	}

	delay := preset.ResponseDelay()
	if r.delay > 0 {
		delay = r.delay
	}
	mon := New(Options{
		Session:      session,
		Preset:       preset,
		Tmux:         r.tmux,
		Classifier:   r.classifier,
		Dispatcher:   NewDispatcher(r.tmux, delay, r.dedupTTL),
		Sink:         sink,
		OnSnapshot:   r.onSnapshot,
		CaptureLines: r.captureLines,
		Interval:     r.interval,
		Log:          r.log,
	})
	e := &entry{mon: mon, started: time.Now().UTC()}
	r.monitors[session] = e

	go func() {
		mon.Run(context.Background())
		r.mu.Lock()
		if cur, ok := r.monitors[session]; ok && cur == e {
			delete(r.monitors, session)
		}
		r.mu.Unlock()
	}()

	return Status{Session: session, Preset: preset.Name(), Started: e.started}, nil
}

// Stop halts the session's monitor and waits for its loop to exit.
func (r *Registry) Stop(session string) error {
	r.mu.Lock()
	e, ok := r.monitors[session]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, session)
	}
	e.mon.Stop()
	return nil
}

// StopAll halts every monitor, used at daemon shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.monitors))
	for _, e := range r.monitors {
		entries = append(entries, e)
	}
	r.mu.Unlock()
	for _, e := range entries {
		e.mon.Stop()
	}
}

// Get reports one session's status.
func (r *Registry) Get(session string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.monitors[session]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrNotRunning, session)
	}
	return statusOf(session, e), nil
}

// List reports all running monitors sorted by session name.
func (r *Registry) List() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.monitors))
	for name, e := range r.monitors {
		out = append(out, statusOf(name, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session < out[j].Session })
	return out
}

// Sessions returns the names of all monitored sessions.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.monitors))
	for name := range r.monitors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func statusOf(name string, e *entry) Status {
	return Status{
		Session:  name,
		Preset:   e.mon.Preset().Name(),
		Started:  e.started,
		Degraded: e.mon.Degraded(),
	}
}
