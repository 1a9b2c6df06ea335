// Package policy holds permission presets and the permanent safety denylist
// that decide whether a classified prompt may be auto-approved.
package policy

import (
	"errors"
	"fmt"
	"time"
)

// Category is the closed set of prompt classifications.
type Category string

const (
	CategoryFileOperation       Category = "file_operation"
	CategoryCommandExecution    Category = "command_execution"
	CategoryGitOperation        Category = "git_operation"
	CategoryPackageManagement   Category = "package_management"
	CategoryGeneralConfirmation Category = "general_confirmation"
	CategoryContinueOperation   Category = "continue_operation"
	CategoryDangerousOperation  Category = "dangerous_operation"
)

// Categories returns every category, in a stable order.
func Categories() []Category {
	return []Category{
		CategoryFileOperation,
		CategoryCommandExecution,
		CategoryGitOperation,
		CategoryPackageManagement,
		CategoryGeneralConfirmation,
		CategoryContinueOperation,
		CategoryDangerousOperation,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// PresetAction is a preset's verdict for one category.
type PresetAction string

const (
	Allow PresetAction = "allow"
	Deny  PresetAction = "deny"
)

// RiskTier orders presets from most to least restrictive.
type RiskTier int

const (
	TierVeryLow RiskTier = iota
	TierLow
	TierLowMedium
	TierMedium
)

func (t RiskTier) String() string {
	switch t {
	case TierVeryLow:
		return "very-low"
	case TierLow:
		return "low"
	case TierLowMedium:
		return "low-medium"
	case TierMedium:
		return "medium"
	default:
		return "unknown"
	}
}

// ParseRiskTier converts a config string to a RiskTier.
func ParseRiskTier(s string) (RiskTier, error) {
	switch s {
	case "very-low":
		return TierVeryLow, nil
	case "low":
		return TierLow, nil
	case "low-medium":
		return TierLowMedium, nil
	case "medium":
		return TierMedium, nil
	default:
		return 0, fmt.Errorf("invalid risk tier %q (want very-low, low, low-medium, or medium)", s)
	}
}

var (
	// ErrInvalidPreset is returned when a preset definition is incomplete
	// or tries to allow the dangerous category.
	ErrInvalidPreset = errors.New("invalid preset")

	// ErrUnknownPreset is returned when resolving a preset name that has
	// not been loaded.
	ErrUnknownPreset = errors.New("unknown preset")
)

// Preset is a named, complete mapping from category to allow/deny.
// Presets are immutable once constructed; redefining one requires
// reloading the store.
type Preset struct {
	name          string
	tier          RiskTier
	table         map[Category]PresetAction
	checkInterval time.Duration
	responseDelay time.Duration
}

// NewPreset validates and builds a preset. Every category must be mapped,
// and dangerous_operation may not be mapped to allow.
func NewPreset(name string, tier RiskTier, table map[Category]PresetAction, checkInterval, responseDelay time.Duration) (*Preset, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidPreset)
	}
	for cat := range table {
		if !cat.Valid() {
			return nil, fmt.Errorf("%w: preset %q maps unknown category %q", ErrInvalidPreset, name, cat)
		}
	}
	copied := make(map[Category]PresetAction, len(table))
	for _, cat := range Categories() {
		action, ok := table[cat]
		if !ok {
			return nil, fmt.Errorf("%w: preset %q leaves category %q unmapped", ErrInvalidPreset, name, cat)
		}
		if action != Allow && action != Deny {
			return nil, fmt.Errorf("%w: preset %q maps %q to %q (want allow or deny)", ErrInvalidPreset, name, cat, action)
		}
		if cat == CategoryDangerousOperation && action == Allow {
			return nil, fmt.Errorf("%w: preset %q may not allow %q", ErrInvalidPreset, name, cat)
		}
		copied[cat] = action
	}
	if checkInterval <= 0 {
		checkInterval = 2 * time.Second
	}
	if responseDelay < 0 {
		responseDelay = 0
	}
	return &Preset{
		name:          name,
		tier:          tier,
		table:         copied,
		checkInterval: checkInterval,
		responseDelay: responseDelay,
	}, nil
}

// Name returns the preset identifier.
func (p *Preset) Name() string { return p.name }

// Tier returns the preset's risk tier.
func (p *Preset) Tier() RiskTier { return p.tier }

// CheckInterval is the polling cadence for sessions run under this preset.
func (p *Preset) CheckInterval() time.Duration { return p.checkInterval }

// ResponseDelay is the pause between the response key and Enter.
func (p *Preset) ResponseDelay() time.Duration { return p.responseDelay }

// Action returns the preset's verdict for a category. The dangerous
// category is denied unconditionally, whatever the loaded table says.
func (p *Preset) Action(cat Category) PresetAction {
	if cat == CategoryDangerousOperation {
		return Deny
	}
	if action, ok := p.table[cat]; ok {
		return action
	}
	return Deny
}
