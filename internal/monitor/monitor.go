package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agent-pilot/responderd/internal/classify"
	"github.com/agent-pilot/responderd/internal/metrics"
	"github.com/agent-pilot/responderd/internal/policy"
	"github.com/agent-pilot/responderd/internal/tmux"
)

// TmuxClient is the slice of the tmux client a monitor needs.
type TmuxClient interface {
	ListSessionPanes(session string) ([]tmux.Pane, error)
	CapturePane(target string, lines int) (string, error)
}

// Sink receives every non-duplicate decision (audit log, event stream).
type Sink interface {
	Record(dec Decision) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(dec Decision) error

func (f SinkFunc) Record(dec Decision) error { return f(dec) }

// SnapshotFunc observes every captured snapshot; the rate-limit monitor
// hooks in here.
type SnapshotFunc func(session, text string)

// Monitor polls one tmux session: capture, classify, decide, dispatch,
// audit. Each monitor owns its dispatcher and runs independently of every
// other session's loop.
type Monitor struct {
	session    string
	preset     *policy.Preset
	tmux       TmuxClient
	classifier *classify.Classifier
	dispatcher *Dispatcher
	sink       Sink
	onSnapshot SnapshotFunc
	lines      int
	interval   time.Duration
	log        zerolog.Logger

	degraded atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Options configures a monitor.
type Options struct {
	Session    string
	Preset     *policy.Preset
	Tmux       TmuxClient
	Classifier *classify.Classifier
	Dispatcher *Dispatcher
	Sink       Sink
	OnSnapshot SnapshotFunc
	// CaptureLines is how far back each pane capture reaches.
	CaptureLines int
	// Interval overrides the preset's check interval when positive.
	Interval time.Duration
	Log      zerolog.Logger
}

// New builds a monitor; call Run to start polling.
func New(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = opts.Preset.CheckInterval()
	}
	lines := opts.CaptureLines
	if lines <= 0 {
		lines = 50
	}
	return &Monitor{
		session:    opts.Session,
		preset:     opts.Preset,
		tmux:       opts.Tmux,
		classifier: opts.Classifier,
		dispatcher: opts.Dispatcher,
		sink:       opts.Sink,
		onSnapshot: opts.OnSnapshot,
		lines:      lines,
		interval:   interval,
		log:        opts.Log.With().Str("session", opts.Session).Str("preset", opts.Preset.Name()).Logger(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run polls until the context is cancelled, Stop is called, or the session
// disappears. It never panics the daemon: per-cycle errors are logged and
// the next tick proceeds.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.done)

	metrics.ActiveMonitors.Inc()
	defer metrics.ActiveMonitors.Dec()

	m.log.Info().Dur("interval", m.interval).Msg("monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("monitor stopped")
			return
		case <-m.stop:
			m.log.Info().Msg("monitor stopped")
			return
		case <-ticker.C:
			if err := m.tick(); err != nil {
				if errors.Is(err, tmux.ErrPaneNotFound) {
					m.log.Warn().Err(err).Msg("session gone, stopping monitor")
					return
				}
				m.log.Error().Err(err).Msg("poll cycle failed")
			}
		}
	}
}

// Stop requests shutdown and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// Done is closed when the loop has exited.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Preset returns the preset this monitor was started with.
func (m *Monitor) Preset() *policy.Preset { return m.preset }

// Degraded reports whether an audit write has failed since start.
func (m *Monitor) Degraded() bool { return m.degraded.Load() }

func (m *Monitor) tick() error {
	panes, err := m.tmux.ListSessionPanes(m.session)
	if err != nil {
		return err
	}

	for _, pane := range panes {
		if err := m.checkPane(pane); err != nil {
			if errors.Is(err, tmux.ErrPaneNotFound) {
				// A single pane closing is routine; only a vanished
				// session (list failure above) stops the loop.
				m.log.Debug().Str("target", pane.Target()).Msg("pane gone")
				continue
			}
			m.log.Error().Err(err).Str("target", pane.Target()).Msg("pane check failed")
		}
	}
	return nil
}

func (m *Monitor) checkPane(pane tmux.Pane) error {
	text, err := m.tmux.CapturePane(pane.Target(), m.lines)
	if err != nil {
		return err
	}
	if m.onSnapshot != nil {
		m.onSnapshot(m.session, text)
	}

	match, classified := m.classifier.Classify(text)
	if !classified {
		// Not a prompt; nothing to decide or audit.
		return nil
	}

	ev := NewEvent(pane, text, time.Now().UTC())
	dec := Decide(ev, match, classified, m.preset)

	outcome, err := m.dispatcher.Dispatch(dec)
	if outcome == OutcomeDuplicate {
		return nil
	}
	if err != nil {
		m.log.Error().Err(err).Str("target", pane.Target()).Msg("keystroke dispatch failed")
	}

	metrics.DecisionsTotal.WithLabelValues(string(dec.Action), string(dec.Category)).Inc()
	m.log.Info().
		Str("target", pane.Target()).
		Str("category", string(dec.Category)).
		Str("action", string(dec.Action)).
		Str("reason", dec.Reason).
		Bool("sent", outcome == OutcomeSent).
		Msg("decision")

	if recErr := m.sink.Record(dec); recErr != nil {
		metrics.AuditWriteFailures.Inc()
		m.degraded.Store(true)
		m.log.Warn().Err(recErr).Msg("audit trail degraded")
	}
	return nil
}
