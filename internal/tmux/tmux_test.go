package tmux

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPane_Target(t *testing.T) {
	p := Pane{SessionName: "agent", WindowIndex: 2, PaneIndex: 1}
	assert.Equal(t, "agent:2.1", p.Target())
}

func TestClient_SocketArgs(t *testing.T) {
	c := NewClient("tmux", "/tmp/agents.sock")
	assert.Equal(t, []string{"-S", "/tmp/agents.sock", "list-panes"}, c.args("list-panes"))

	plain := NewClient("", "")
	assert.Equal(t, "tmux", plain.bin)
	assert.Equal(t, []string{"list-panes"}, plain.args("list-panes"))
}

func TestClassifyError(t *testing.T) {
	base := errors.New("exit status 1")

	tests := []struct {
		output string
		isGone bool
	}{
		{"can't find session: agent", true},
		{"no such session", true},
		{"session not found: agent", true},
		{"no server running on /tmp/tmux-1000/default", true},
		{"unknown flag -q", false},
		{"", false},
	}
	for _, tt := range tests {
		err := classifyError(base, tt.output, "capture agent:0.1")
		assert.Equal(t, tt.isGone, errors.Is(err, ErrPaneNotFound), tt.output)
	}
}
