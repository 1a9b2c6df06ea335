// Package ratelimit watches pane output for provider usage-limit banners,
// waits out the advertised reset time, then nudges every affected session
// to continue.
package ratelimit

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agent-pilot/responderd/internal/metrics"
)

// State names the phases of the wait cycle.
type State string

const (
	StateIdle          State = "idle"
	StateLimitDetected State = "limit_detected"
	StateWaiting       State = "waiting"
	StateResuming      State = "resuming"
)

// ContinueFunc nudges one session once its limit window has passed.
type ContinueFunc func(session string) error

// AudioFunc plays a single resume cue; best effort.
type AudioFunc func()

var (
	limitRe = regexp.MustCompile(`(?i)(?:usage|rate)\s+limit\s+(?:reached|exceeded)`)

	// "resets at 4pm (UTC)", "resets at 11:30am", "resets at 16:00"
	resetClockRe = regexp.MustCompile(`(?i)resets?\s+at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
	// "try again in 2 hours", "retry in 30 minutes"
	resetDelayRe = regexp.MustCompile(`(?i)(?:try\s+again|retry|resets?)\s+in\s+(\d+)\s*(hour|minute|min|second|sec)s?`)
)

// Detect reports whether the text contains a usage-limit banner.
func Detect(text string) bool {
	return limitRe.MatchString(text)
}

// ParseReset extracts the reset instant from a limit banner relative to
// now. Clock forms without a date roll to the next occurrence; with no
// parseable hint it falls back to a one hour wait.
func ParseReset(text string, now time.Time) time.Time {
	if m := resetDelayRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch strings.ToLower(m[2]) {
		case "hour":
			return now.Add(time.Duration(n) * time.Hour)
		case "minute", "min":
			return now.Add(time.Duration(n) * time.Minute)
		default:
			return now.Add(time.Duration(n) * time.Second)
		}
	}
	if m := resetClockRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		switch strings.ToLower(m[3]) {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		if hour > 23 || min > 59 {
			return now.Add(time.Hour)
		}
		loc := now.Location()
		if strings.Contains(strings.ToUpper(text), "UTC") {
			loc = time.UTC
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, loc)
		if !at.After(now.In(loc)) {
			at = at.Add(24 * time.Hour)
		}
		return at
	}
	return now.Add(time.Hour)
}

// Status is the inspectable view of the current window.
type Status struct {
	State    State     `json:"state"`
	ResetAt  time.Time `json:"reset_at"`
	Sessions []string  `json:"sessions,omitempty"`
}

// Watcher tracks a single shared limit window across all monitored
// sessions. Every session that showed the banner gets a continue nudge
// when the window closes.
type Watcher struct {
	mu       sync.Mutex
	state    State
	resetAt  time.Time
	pending  map[string]struct{}
	timer    *time.Timer
	cont     ContinueFunc
	audio    AudioFunc
	log      zerolog.Logger
	now      func() time.Time
	// resumeGrace delays the continue keystroke past the advertised
	// reset so the provider clock has settled.
	resumeGrace time.Duration
}

func NewWatcher(cont ContinueFunc, audio AudioFunc, log zerolog.Logger) *Watcher {
	return &Watcher{
		state:       StateIdle,
		pending:     make(map[string]struct{}),
		cont:        cont,
		audio:       audio,
		log:         log,
		now:         time.Now,
		resumeGrace: 30 * time.Second,
	}
}

// Scan inspects one pane capture. Safe to call from every monitor loop.
func (w *Watcher) Scan(session, text string) {
	if !Detect(text) {
		return
	}
	now := w.now()
	resetAt := ParseReset(text, now).Add(w.resumeGrace)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[session] = struct{}{}

	switch w.state {
	case StateIdle, StateResuming:
		w.state = StateLimitDetected
		w.armLocked(resetAt)
		w.log.Warn().Str("session", session).Time("reset_at", resetAt).Msg("usage limit detected")
	case StateLimitDetected, StateWaiting:
		// A banner with a later reset extends the window; an identical
		// one is a re-capture and leaves the timer alone.
		if resetAt.After(w.resetAt.Add(time.Minute)) {
			w.armLocked(resetAt)
			w.log.Info().Time("reset_at", resetAt).Msg("limit window extended")
		}
	}
}

// armLocked (re)programs the resume timer; caller holds w.mu.
func (w *Watcher) armLocked(resetAt time.Time) {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.resetAt = resetAt
	w.state = StateWaiting
	delay := resetAt.Sub(w.now())
	if delay < 0 {
		delay = 0
	}
	w.timer = time.AfterFunc(delay, w.resume)
	metrics.RateLimitWaits.Inc()
}

func (w *Watcher) resume() {
	w.mu.Lock()
	if w.state != StateWaiting {
		w.mu.Unlock()
		return
	}
	w.state = StateResuming
	sessions := make([]string, 0, len(w.pending))
	for s := range w.pending {
		sessions = append(sessions, s)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.audio != nil {
		go w.audio()
	}
	for _, session := range sessions {
		if err := w.cont(session); err != nil {
			w.log.Error().Err(err).Str("session", session).Msg("continue nudge failed")
			continue
		}
		w.log.Info().Str("session", session).Msg("continue sent")
	}

	w.mu.Lock()
	if w.state == StateResuming {
		w.state = StateIdle
		w.resetAt = time.Time{}
	}
	w.mu.Unlock()
}

// Status reports the current window for the status API.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := Status{State: w.state, ResetAt: w.resetAt}
	for s := range w.pending {
		st.Sessions = append(st.Sessions, s)
	}
	return st
}
