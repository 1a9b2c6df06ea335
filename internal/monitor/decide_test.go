package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-pilot/responderd/internal/classify"
	"github.com/agent-pilot/responderd/internal/policy"
	"github.com/agent-pilot/responderd/internal/tmux"
)

func testPane() tmux.Pane {
	return tmux.Pane{
		PaneID:      "%3",
		SessionName: "agent",
		WindowName:  "work",
		WindowIndex: 0,
		PaneIndex:   1,
	}
}

func testClassifier() *classify.Classifier {
	denylist := policy.DefaultDenylist()
	return classify.New(func() *policy.Denylist { return denylist })
}

func resolvePreset(t *testing.T, name string) *policy.Preset {
	t.Helper()
	store, err := policy.Load("", nil)
	require.NoError(t, err)
	p, err := store.Resolve(name)
	require.NoError(t, err)
	return p
}

func decideText(t *testing.T, text, presetName string) Decision {
	t.Helper()
	match, classified := testClassifier().Classify(text)
	ev := NewEvent(testPane(), text, time.Now().UTC())
	return Decide(ev, match, classified, resolvePreset(t, presetName))
}

func TestDecide_FileOperationAllowed(t *testing.T) {
	dec := decideText(t, "Apply these changes? 1. Yes 2. No", "safe_development")

	assert.Equal(t, ActionAllow, dec.Action)
	assert.Equal(t, policy.CategoryFileOperation, dec.Category)
	assert.Equal(t, "1", dec.Response)
	assert.Contains(t, dec.Reason, ReasonPreset)
	assert.Contains(t, dec.Reason, "safe_development")
}

func TestDecide_CommandDeniedUnderConservative(t *testing.T) {
	dec := decideText(t, "Execute this command? make deploy-staging", "conservative")

	assert.Equal(t, ActionDeny, dec.Action)
	assert.Equal(t, policy.CategoryCommandExecution, dec.Category)
	assert.Contains(t, dec.Reason, ReasonPreset)
	assert.Empty(t, dec.Response)
}

func TestDecide_DenylistOverridesPermissivePreset(t *testing.T) {
	dec := decideText(t, "Execute this command? rm -rf /srv/data", "autonomous_agent")

	assert.Equal(t, ActionDeny, dec.Action)
	assert.Equal(t, policy.CategoryDangerousOperation, dec.Category)
	assert.Contains(t, dec.Reason, ReasonDenylist)
	assert.Empty(t, dec.Response)
}

func TestDecide_UnclassifiedFallsBackToManual(t *testing.T) {
	dec := decideText(t, "linking responderd... done in 3.4s", "autonomous_agent")

	assert.Equal(t, ActionManual, dec.Action)
	assert.False(t, dec.Classified)
	assert.Contains(t, dec.Reason, ReasonUnclassified)
}

func TestDecide_PersistentResponseOnlyForHighTier(t *testing.T) {
	prompt := "Allow this tool?\n1. Yes\n2. Yes and don't ask again\n3. No"

	dec := decideText(t, prompt, "autonomous_agent")
	require.Equal(t, ActionAllow, dec.Action)
	assert.Equal(t, "2", dec.Response)

	dec = decideText(t, prompt, "conservative")
	require.Equal(t, ActionAllow, dec.Action)
	assert.Equal(t, "1", dec.Response)
}

func TestDecide_DangerousDeniedUnderEveryPreset(t *testing.T) {
	for _, name := range []string{"conservative", "safe_development", "pm_orchestrator", "autonomous_agent"} {
		dec := decideText(t, "Run command? git push --force origin main", name)
		assert.Equal(t, ActionDeny, dec.Action, name)
		assert.Equal(t, policy.CategoryDangerousOperation, dec.Category, name)
	}
}
