// Package tmux wraps the tmux binary for pane capture and keystroke
// dispatch. Capture is read-only; all state lives in the tmux server.
package tmux

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrPaneNotFound reports that the capture or dispatch target no longer
// exists (pane closed, session killed, or no tmux server running).
var ErrPaneNotFound = errors.New("pane not found")

// Pane identifies one pane of a monitored session.
type Pane struct {
	PaneID      string
	SessionName string
	WindowName  string
	WindowIndex int
	PaneIndex   int
}

// Target builds the tmux target string (session:window.pane).
func (p Pane) Target() string {
	return fmt.Sprintf("%s:%d.%d", p.SessionName, p.WindowIndex, p.PaneIndex)
}

// Client invokes the tmux binary, optionally against a specific socket.
type Client struct {
	bin    string
	socket string
}

func NewClient(bin, socket string) *Client {
	if bin == "" {
		bin = "tmux"
	}
	return &Client{bin: bin, socket: socket}
}

func (c *Client) args(base ...string) []string {
	if c.socket != "" {
		return append([]string{"-S", c.socket}, base...)
	}
	return base
}

// ListSessionPanes returns all panes of one tmux session.
func (c *Client) ListSessionPanes(session string) ([]Pane, error) {
	format := "#{pane_id}\t#{session_name}\t#{window_name}\t#{window_index}\t#{pane_index}"
	cmd := exec.Command(c.bin, c.args("list-panes", "-s", "-t", session, "-F", format)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, classifyError(err, string(output), fmt.Sprintf("list panes of %s", session))
	}

	var panes []Pane
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 5 {
			continue
		}
		var pane Pane
		pane.PaneID = fields[0]
		pane.SessionName = fields[1]
		pane.WindowName = fields[2]
		fmt.Sscanf(fields[3], "%d", &pane.WindowIndex)
		fmt.Sscanf(fields[4], "%d", &pane.PaneIndex)
		panes = append(panes, pane)
	}
	return panes, scanner.Err()
}

// CapturePane returns the last `lines` rendered lines of the target pane.
func (c *Client) CapturePane(target string, lines int) (string, error) {
	startLine := fmt.Sprintf("-%d", lines)
	cmd := exec.Command(c.bin, c.args("capture-pane", "-p", "-t", target, "-S", startLine)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", classifyError(err, string(output), fmt.Sprintf("capture %s", target))
	}
	return string(output), nil
}

// SendKeys sends keys to a pane.
func (c *Client) SendKeys(target string, keys ...string) error {
	cmdArgs := append(c.args("send-keys", "-t", target), keys...)
	cmd := exec.Command(c.bin, cmdArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return classifyError(err, string(output), fmt.Sprintf("send keys to %s", target))
	}
	return nil
}

// SendText sends literal text to a pane, optionally followed by Enter.
func (c *Client) SendText(target, text string, enter bool) error {
	cmd := exec.Command(c.bin, c.args("send-keys", "-t", target, "-l", "--", text)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return classifyError(err, string(output), fmt.Sprintf("send text to %s", target))
	}
	if enter {
		return c.SendKeys(target, "Enter")
	}
	return nil
}

// HasSession checks whether a tmux session exists.
func (c *Client) HasSession(name string) bool {
	cmd := exec.Command(c.bin, c.args("has-session", "-t", name)...)
	return cmd.Run() == nil
}

// classifyError maps tmux stderr text onto ErrPaneNotFound where the target
// is simply gone, so callers can stop a session loop instead of treating it
// as an I/O failure.
func classifyError(err error, output, op string) error {
	msg := strings.ToLower(strings.TrimSpace(output))
	if strings.Contains(msg, "can't find") ||
		strings.Contains(msg, "no such") ||
		strings.Contains(msg, "session not found") ||
		strings.Contains(msg, "no server running") {
		return fmt.Errorf("%s: %w", op, ErrPaneNotFound)
	}
	if msg != "" {
		return fmt.Errorf("%s: %w: %s", op, err, msg)
	}
	return fmt.Errorf("%s: %w", op, err)
}
