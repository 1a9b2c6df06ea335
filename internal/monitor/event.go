package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/agent-pilot/responderd/internal/classify"
	"github.com/agent-pilot/responderd/internal/tmux"
)

// Event is one captured snapshot of a pane that might contain a prompt.
type Event struct {
	SessionName string    `json:"session"`
	WindowIndex int       `json:"window"`
	PaneIndex   int       `json:"pane"`
	Target      string    `json:"target"`
	Text        string    `json:"-"`
	Fingerprint string    `json:"fingerprint"`
	CapturedAt  time.Time `json:"captured_at"`
}

// NewEvent fingerprints the normalized snapshot text so the same rendered
// prompt always produces the same event identity.
func NewEvent(pane tmux.Pane, text string, now time.Time) Event {
	return Event{
		SessionName: pane.SessionName,
		WindowIndex: pane.WindowIndex,
		PaneIndex:   pane.PaneIndex,
		Target:      pane.Target(),
		Text:        text,
		Fingerprint: Fingerprint(text),
		CapturedAt:  now,
	}
}

// Fingerprint hashes the normalized text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(classify.Normalize(text)))
	return "sha256:" + hex.EncodeToString(sum[:])
}
