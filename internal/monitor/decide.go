package monitor

import (
	"fmt"
	"time"

	"github.com/agent-pilot/responderd/internal/classify"
	"github.com/agent-pilot/responderd/internal/policy"
)

// Action is the resolved outcome of a decision.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionDeny   Action = "deny"
	ActionManual Action = "manual"
)

// Reason prefixes, referenced by audit consumers and tests.
const (
	ReasonDenylist     = "denylist override"
	ReasonUnclassified = "unclassified fallback"
	ReasonPreset       = "preset lookup"
)

// Decision records what the engine resolved for one event.
type Decision struct {
	Event      Event           `json:"event"`
	Category   policy.Category `json:"category,omitempty"`
	Classified bool            `json:"classified"`
	Preset     string          `json:"preset"`
	Action     Action          `json:"action"`
	Reason     string          `json:"reason"`
	// Response is the key sequence prefix to send when Action is allow.
	Response string `json:"-"`
	DecidedAt time.Time
}

// Decide resolves an event against the active preset. Rule order:
//  1. dangerous_operation (denylist included) is never allowed;
//  2. unclassified text falls back to manual;
//  3. everything else takes the preset's mapped action.
func Decide(ev Event, match classify.Match, classified bool, preset *policy.Preset) Decision {
	dec := Decision{
		Event:      ev,
		Classified: classified,
		Preset:     preset.Name(),
		DecidedAt:  time.Now().UTC(),
	}

	if !classified {
		dec.Action = ActionManual
		dec.Reason = ReasonUnclassified + ": no prompt pattern matched"
		return dec
	}
	dec.Category = match.Category

	if match.Category == policy.CategoryDangerousOperation {
		dec.Action = ActionDeny
		dec.Reason = fmt.Sprintf("%s: %s", ReasonDenylist, match.Matched)
		return dec
	}

	if preset.Action(match.Category) == policy.Allow {
		dec.Action = ActionAllow
		dec.Response = match.Response
		// The "don't ask again" variant grants a persistent permission, so
		// it is reserved for the highest-trust tier.
		if match.PersistentResponse != "" && preset.Tier() >= policy.TierMedium {
			dec.Response = match.PersistentResponse
		}
	} else {
		dec.Action = ActionDeny
	}
	dec.Reason = fmt.Sprintf("%s: %s -> %s under %s", ReasonPreset, match.Category, dec.Action, preset.Name())
	return dec
}
