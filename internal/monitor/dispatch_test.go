package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	calls [][]string
	fail  int // fail this many leading SendKeys calls
}

func (f *fakeSender) SendKeys(target string, keys ...string) error {
	if f.fail > 0 {
		f.fail--
		return errors.New("no server running")
	}
	call := append([]string{target}, keys...)
	f.calls = append(f.calls, call)
	return nil
}

func allowDecision(fingerprint string) Decision {
	return Decision{
		Event: Event{
			SessionName: "agent",
			Target:      "agent:0.1",
			Fingerprint: fingerprint,
		},
		Action:   ActionAllow,
		Response: "1",
	}
}

func newTestDispatcher(sender KeySender) *Dispatcher {
	d := NewDispatcher(sender, 0, time.Minute)
	d.sleep = func(time.Duration) {}
	return d
}

func TestDispatch_SendsResponseThenEnter(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender)

	outcome, err := d.Dispatch(allowDecision("sha256:aa"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	require.Len(t, sender.calls, 2)
	assert.Equal(t, []string{"agent:0.1", "1"}, sender.calls[0])
	assert.Equal(t, []string{"agent:0.1", "Enter"}, sender.calls[1])
}

func TestDispatch_SamePromptSentOnce(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender)

	first, err := d.Dispatch(allowDecision("sha256:aa"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, first)

	// The prompt is still on screen next poll; capture produces the same
	// fingerprint and nothing may be sent again.
	second, err := d.Dispatch(allowDecision("sha256:aa"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second)
	assert.Len(t, sender.calls, 2)
}

func TestDispatch_DistinctPromptsBothSent(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender)

	_, err := d.Dispatch(allowDecision("sha256:aa"))
	require.NoError(t, err)
	outcome, err := d.Dispatch(allowDecision("sha256:bb"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)
	assert.Len(t, sender.calls, 4)
}

func TestDispatch_DenyTouchesNothing(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender)

	dec := allowDecision("sha256:aa")
	dec.Action = ActionDeny
	dec.Response = ""

	outcome, err := d.Dispatch(dec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoAction, outcome)
	assert.Empty(t, sender.calls)
}

func TestDispatch_RetriesOnceThenSucceeds(t *testing.T) {
	sender := &fakeSender{fail: 1}
	d := newTestDispatcher(sender)

	outcome, err := d.Dispatch(allowDecision("sha256:aa"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)
	assert.Len(t, sender.calls, 2)
}

func TestDispatch_FailsAfterRetry(t *testing.T) {
	sender := &fakeSender{fail: 4}
	d := newTestDispatcher(sender)

	outcome, err := d.Dispatch(allowDecision("sha256:aa"))
	require.ErrorIs(t, err, ErrDispatchFailed)
	assert.Equal(t, OutcomeNoAction, outcome)

	// The fingerprint was marked handled before sending, so the loop will
	// not hammer a broken pane.
	dup, err := d.Dispatch(allowDecision("sha256:aa"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, dup)
}

func TestDispatch_TTLExpiryAllowsResend(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender)

	current := time.Now()
	d.now = func() time.Time { return current }

	_, err := d.Dispatch(allowDecision("sha256:aa"))
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	outcome, err := d.Dispatch(allowDecision("sha256:aa"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)
}

func TestDispatch_DefaultResponseKey(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender)

	dec := allowDecision("sha256:aa")
	dec.Response = ""
	_, err := d.Dispatch(dec)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent:0.1", "1"}, sender.calls[0])
}
