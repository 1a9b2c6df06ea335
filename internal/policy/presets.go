package policy

import "time"

// Built-in reference presets. The table rows are fixed; a presets file can
// add its own presets but never weaken the dangerous row (NewPreset rejects
// that at load time).
func builtinPresets() []*Preset {
	conservative := mustPreset("conservative", TierVeryLow, map[Category]PresetAction{
		CategoryFileOperation:       Deny,
		CategoryCommandExecution:    Deny,
		CategoryGitOperation:        Deny,
		CategoryPackageManagement:   Deny,
		CategoryGeneralConfirmation: Allow,
		CategoryContinueOperation:   Deny,
		CategoryDangerousOperation:  Deny,
	}, 3*time.Second, time.Second)

	safeDevelopment := mustPreset("safe_development", TierLow, map[Category]PresetAction{
		CategoryFileOperation:       Allow,
		CategoryCommandExecution:    Deny,
		CategoryGitOperation:        Deny,
		CategoryPackageManagement:   Deny,
		CategoryGeneralConfirmation: Allow,
		CategoryContinueOperation:   Allow,
		CategoryDangerousOperation:  Deny,
	}, 2*time.Second, 500*time.Millisecond)

	pmOrchestrator := mustPreset("pm_orchestrator", TierLowMedium, map[Category]PresetAction{
		CategoryFileOperation:       Allow,
		CategoryCommandExecution:    Deny,
		CategoryGitOperation:        Deny,
		CategoryPackageManagement:   Deny,
		CategoryGeneralConfirmation: Allow,
		CategoryContinueOperation:   Allow,
		CategoryDangerousOperation:  Deny,
	}, 2*time.Second, 500*time.Millisecond)

	autonomousAgent := mustPreset("autonomous_agent", TierMedium, map[Category]PresetAction{
		CategoryFileOperation:       Allow,
		CategoryCommandExecution:    Allow,
		CategoryGitOperation:        Deny,
		CategoryPackageManagement:   Allow,
		CategoryGeneralConfirmation: Allow,
		CategoryContinueOperation:   Allow,
		CategoryDangerousOperation:  Deny,
	}, 1500*time.Millisecond, 300*time.Millisecond)

	return []*Preset{conservative, safeDevelopment, pmOrchestrator, autonomousAgent}
}

func mustPreset(name string, tier RiskTier, table map[Category]PresetAction, interval, delay time.Duration) *Preset {
	p, err := NewPreset(name, tier, table, interval, delay)
	if err != nil {
		panic(err)
	}
	return p
}
