package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	assert.True(t, Detect("Usage limit reached. Your limit resets at 4pm (UTC)."))
	assert.True(t, Detect("rate limit exceeded, try again in 30 minutes"))
	assert.False(t, Detect("Apply these changes? 1. Yes 2. No"))
	assert.False(t, Detect("limit order placed"))
}

func TestParseReset(t *testing.T) {
	now := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{
			"pm clock",
			"usage limit reached, resets at 4pm (UTC)",
			time.Date(2026, 8, 31, 16, 0, 0, 0, time.UTC),
		},
		{
			"clock already passed rolls to tomorrow",
			"usage limit reached, resets at 9am (UTC)",
			time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			"clock with minutes",
			"usage limit reached, resets at 11:30pm (UTC)",
			time.Date(2026, 8, 31, 23, 30, 0, 0, time.UTC),
		},
		{
			"relative hours",
			"rate limit exceeded, try again in 2 hours",
			now.Add(2 * time.Hour),
		},
		{
			"relative minutes",
			"usage limit reached, retry in 45 minutes",
			now.Add(45 * time.Minute),
		},
		{
			"no hint falls back to an hour",
			"usage limit reached",
			now.Add(time.Hour),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseReset(tt.text, now))
		})
	}
}

type continueRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *continueRecorder) cont(session string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, session)
	return nil
}

func (r *continueRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestWatcher(rec *continueRecorder) *Watcher {
	w := NewWatcher(rec.cont, nil, zerolog.Nop())
	w.resumeGrace = 0
	return w
}

func TestWatcher_WaitsThenResumesEverySession(t *testing.T) {
	rec := &continueRecorder{}
	w := newTestWatcher(rec)

	banner := "Usage limit reached. Try again in 1 seconds."
	w.Scan("alpha", banner)
	w.Scan("beta", banner)

	st := w.Status()
	assert.Equal(t, StateWaiting, st.State)
	assert.Len(t, st.Sessions, 2)

	require.Eventually(t, func() bool { return rec.count() == 2 }, 5*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	assert.ElementsMatch(t, []string{"alpha", "beta"}, rec.calls)
	rec.mu.Unlock()

	require.Eventually(t, func() bool { return w.Status().State == StateIdle }, time.Second, 10*time.Millisecond)
}

func TestWatcher_RecaptureDoesNotResetTimer(t *testing.T) {
	rec := &continueRecorder{}
	w := newTestWatcher(rec)
	w.now = func() time.Time { return time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC) }

	banner := "usage limit reached, resets at 4pm (UTC)"
	w.Scan("alpha", banner)
	first := w.Status().ResetAt

	w.Scan("alpha", banner)
	assert.Equal(t, first, w.Status().ResetAt)
}

func TestWatcher_LaterResetExtendsWindow(t *testing.T) {
	rec := &continueRecorder{}
	w := newTestWatcher(rec)

	w.Scan("alpha", "usage limit reached, try again in 10 minutes")
	first := w.Status().ResetAt

	w.Scan("alpha", "usage limit reached, try again in 2 hours")
	assert.True(t, w.Status().ResetAt.After(first))
}

func TestWatcher_IgnoresOrdinaryOutput(t *testing.T) {
	rec := &continueRecorder{}
	w := newTestWatcher(rec)

	w.Scan("alpha", "compiling 12 of 40 packages")
	assert.Equal(t, StateIdle, w.Status().State)
	assert.Equal(t, 0, rec.count())
}
