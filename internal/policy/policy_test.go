package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullTable(action PresetAction) map[Category]PresetAction {
	table := make(map[Category]PresetAction)
	for _, cat := range Categories() {
		table[cat] = action
	}
	table[CategoryDangerousOperation] = Deny
	return table
}

func TestNewPreset_Valid(t *testing.T) {
	p, err := NewPreset("test", TierLow, fullTable(Allow), 2*time.Second, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "test", p.Name())
	assert.Equal(t, TierLow, p.Tier())
	assert.Equal(t, Allow, p.Action(CategoryFileOperation))
}

func TestNewPreset_MissingCategory(t *testing.T) {
	table := fullTable(Allow)
	delete(table, CategoryGitOperation)
	_, err := NewPreset("partial", TierLow, table, 0, 0)
	require.ErrorIs(t, err, ErrInvalidPreset)
	assert.Contains(t, err.Error(), "git_operation")
}

func TestNewPreset_UnknownCategory(t *testing.T) {
	table := fullTable(Deny)
	table["network_operation"] = Allow
	_, err := NewPreset("bogus", TierLow, table, 0, 0)
	require.ErrorIs(t, err, ErrInvalidPreset)
}

func TestNewPreset_BadAction(t *testing.T) {
	table := fullTable(Deny)
	table[CategoryFileOperation] = "maybe"
	_, err := NewPreset("bad", TierLow, table, 0, 0)
	require.ErrorIs(t, err, ErrInvalidPreset)
}

func TestNewPreset_DangerousAllowRejected(t *testing.T) {
	table := fullTable(Allow)
	table[CategoryDangerousOperation] = Allow
	_, err := NewPreset("reckless", TierMedium, table, 0, 0)
	require.ErrorIs(t, err, ErrInvalidPreset)
	assert.Contains(t, err.Error(), "dangerous_operation")
}

func TestPreset_DangerousAlwaysDenied(t *testing.T) {
	for _, p := range builtinPresets() {
		assert.Equal(t, Deny, p.Action(CategoryDangerousOperation), p.Name())
	}
}

func TestBuiltinPresets_Tables(t *testing.T) {
	byName := make(map[string]*Preset)
	for _, p := range builtinPresets() {
		byName[p.Name()] = p
	}
	require.Len(t, byName, 4)

	tests := []struct {
		preset   string
		category Category
		want     PresetAction
	}{
		{"conservative", CategoryGeneralConfirmation, Allow},
		{"conservative", CategoryFileOperation, Deny},
		{"conservative", CategoryContinueOperation, Deny},
		{"safe_development", CategoryFileOperation, Allow},
		{"safe_development", CategoryCommandExecution, Deny},
		{"safe_development", CategoryContinueOperation, Allow},
		{"pm_orchestrator", CategoryFileOperation, Allow},
		{"pm_orchestrator", CategoryGitOperation, Deny},
		{"autonomous_agent", CategoryCommandExecution, Allow},
		{"autonomous_agent", CategoryPackageManagement, Allow},
		{"autonomous_agent", CategoryGitOperation, Deny},
	}
	for _, tt := range tests {
		p := byName[tt.preset]
		require.NotNil(t, p, tt.preset)
		assert.Equal(t, tt.want, p.Action(tt.category), "%s / %s", tt.preset, tt.category)
	}
}

func TestBuiltinPresets_Timing(t *testing.T) {
	for _, p := range builtinPresets() {
		switch p.Name() {
		case "conservative":
			assert.Equal(t, 3*time.Second, p.CheckInterval())
			assert.Equal(t, time.Second, p.ResponseDelay())
		case "autonomous_agent":
			assert.Equal(t, 1500*time.Millisecond, p.CheckInterval())
			assert.Equal(t, 300*time.Millisecond, p.ResponseDelay())
		default:
			assert.Equal(t, 2*time.Second, p.CheckInterval(), p.Name())
			assert.Equal(t, 500*time.Millisecond, p.ResponseDelay(), p.Name())
		}
	}
}

func TestParseRiskTier(t *testing.T) {
	tier, err := ParseRiskTier("low-medium")
	require.NoError(t, err)
	assert.Equal(t, TierLowMedium, tier)

	_, err = ParseRiskTier("extreme")
	assert.Error(t, err)
}

func TestRiskTier_Ordering(t *testing.T) {
	assert.True(t, TierVeryLow < TierLow)
	assert.True(t, TierLow < TierLowMedium)
	assert.True(t, TierLowMedium < TierMedium)
}
