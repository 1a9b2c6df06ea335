package monitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agent-pilot/responderd/internal/metrics"
)

// ErrDispatchFailed reports a keystroke send that failed after one retry.
// The monitoring loop logs it and keeps observing.
var ErrDispatchFailed = errors.New("dispatch failed")

// KeySender sends keystrokes into a pane.
type KeySender interface {
	SendKeys(target string, keys ...string) error
}

// Outcome reports what a dispatch call did.
type Outcome int

const (
	// OutcomeDuplicate means the fingerprint was already handled for the
	// pane; nothing was sent and nothing should be audited again.
	OutcomeDuplicate Outcome = iota
	// OutcomeNoAction means a deny/manual decision was registered without
	// touching the terminal.
	OutcomeNoAction
	// OutcomeSent means the affirmative keystroke sequence was delivered.
	OutcomeSent
)

// Dispatcher sends approval keystrokes and deduplicates repeated captures
// of the same prompt. Dedup state is scoped to one dispatcher, which is
// scoped to one session monitor, so no cross-loop locking is needed for
// the per-pane atomicity guarantee.
type Dispatcher struct {
	sender KeySender
	delay  time.Duration
	ttl    time.Duration

	mu      sync.Mutex
	handled map[string]time.Time // target + fingerprint -> handled at
	now     func() time.Time
	sleep   func(time.Duration)
}

// NewDispatcher builds a dispatcher. delay is the pause between the
// response key and Enter; ttl bounds how long handled fingerprints are
// remembered.
func NewDispatcher(sender KeySender, delay, ttl time.Duration) *Dispatcher {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Dispatcher{
		sender:  sender,
		delay:   delay,
		ttl:     ttl,
		handled: make(map[string]time.Time),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Dispatch acts on a decision. Allow decisions send the response key then
// Enter; deny and manual decisions take no terminal action. Re-dispatching
// an already-handled fingerprint for the same pane is a no-op.
func (d *Dispatcher) Dispatch(dec Decision) (Outcome, error) {
	key := dec.Event.Target + "|" + dec.Event.Fingerprint

	d.mu.Lock()
	d.prune()
	if _, seen := d.handled[key]; seen {
		d.mu.Unlock()
		return OutcomeDuplicate, nil
	}
	// Mark before sending: a re-capture racing the keystroke must never
	// produce a second send.
	d.handled[key] = d.now()
	d.mu.Unlock()

	if dec.Action != ActionAllow {
		return OutcomeNoAction, nil
	}

	if err := d.send(dec); err != nil {
		metrics.DispatchFailures.Inc()
		return OutcomeNoAction, fmt.Errorf("%w: %s: %v", ErrDispatchFailed, dec.Event.Target, err)
	}
	metrics.DispatchesTotal.Inc()
	return OutcomeSent, nil
}

func (d *Dispatcher) send(dec Decision) error {
	err := d.trySend(dec)
	if err == nil {
		return nil
	}
	// One retry for transient failures, then give up.
	if retryErr := d.trySend(dec); retryErr == nil {
		return nil
	}
	return err
}

func (d *Dispatcher) trySend(dec Decision) error {
	response := dec.Response
	if response == "" {
		response = "1"
	}
	if err := d.sender.SendKeys(dec.Event.Target, response); err != nil {
		return err
	}
	if d.delay > 0 {
		d.sleep(d.delay)
	}
	return d.sender.SendKeys(dec.Event.Target, "Enter")
}

// prune drops handled entries older than the TTL. Caller holds d.mu.
func (d *Dispatcher) prune() {
	cutoff := d.now().Add(-d.ttl)
	for key, at := range d.handled {
		if at.Before(cutoff) {
			delete(d.handled, key)
		}
	}
}
