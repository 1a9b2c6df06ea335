// Package client talks to a running daemon over its loopback control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/agent-pilot/responderd/internal/monitor"
	"github.com/agent-pilot/responderd/internal/schedule"
)

// APIError carries the daemon's error envelope plus the HTTP status.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// ExitCode maps API failures to distinct process exit codes so scripts
// can branch on the failure kind.
func (e *APIError) ExitCode() int {
	switch e.Code {
	case "unknown_preset", "invalid_preset":
		return 3
	case "pane_not_found":
		return 4
	case "not_running", "no_wake":
		return 5
	case "already_running":
		return 6
	default:
		return 1
	}
}

// Status mirrors the daemon's /v1/status response.
type Status struct {
	Version   string           `json:"version"`
	Sessions  []monitor.Status `json:"sessions"`
	Wakes     []schedule.Wake  `json:"wakes"`
	RateLimit *RateLimitStatus `json:"rate_limit,omitempty"`
}

type RateLimitStatus struct {
	State    string    `json:"state"`
	ResetAt  time.Time `json:"reset_at"`
	Sessions []string  `json:"sessions,omitempty"`
}

// AuditEntry mirrors one record of a session's audit trail.
type AuditEntry struct {
	ID          string    `json:"id"`
	Seq         uint64    `json:"seq"`
	Timestamp   time.Time `json:"ts"`
	Target      string    `json:"target"`
	Fingerprint string    `json:"fingerprint"`
	Category    string    `json:"category"`
	Preset      string    `json:"preset"`
	Action      string    `json:"action"`
	Reason      string    `json:"reason"`
}

// SessionDetail is the per-session status: monitor state plus recent
// decisions and any pending wake.
type SessionDetail struct {
	monitor.Status
	Recent []AuditEntry   `json:"recent,omitempty"`
	Wake   *schedule.Wake `json:"wake,omitempty"`
}

// Preset mirrors one entry of /v1/presets.
type Preset struct {
	Name          string            `json:"name"`
	Tier          string            `json:"tier"`
	CheckInterval string            `json:"check_interval"`
	ResponseDelay string            `json:"response_delay"`
	Table         map[string]string `json:"table"`
}

// Event is one frame from the /v1/events stream.
type Event struct {
	Type        string    `json:"type"`
	Session     string    `json:"session"`
	Target      string    `json:"target"`
	Category    string    `json:"category"`
	Preset      string    `json:"preset"`
	Action      string    `json:"action"`
	Reason      string    `json:"reason"`
	Fingerprint string    `json:"fingerprint"`
	DecidedAt   time.Time `json:"decided_at"`
}

// Client is a thin wrapper over the daemon's HTTP API.
type Client struct {
	base string
	http *http.Client
}

func New(addr string) *Client {
	return &Client{
		base: "http://" + addr,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// StartSession asks the daemon to monitor a session under a preset.
func (c *Client) StartSession(ctx context.Context, session, preset string) (monitor.Status, error) {
	var st monitor.Status
	body := map[string]string{"session": session, "preset": preset}
	err := c.do(ctx, http.MethodPost, "/v1/sessions", body, &st)
	return st, err
}

// StopSession halts a session's monitor.
func (c *Client) StopSession(ctx context.Context, session string) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(session), nil, nil)
}

// Session fetches one session's monitor state and recent decisions.
func (c *Client) Session(ctx context.Context, session string) (SessionDetail, error) {
	var d SessionDetail
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(session), nil, &d)
	return d, err
}

// Status fetches the daemon's full status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &st)
	return st, err
}

// Presets lists the daemon's loaded presets.
func (c *Client) Presets(ctx context.Context) ([]Preset, error) {
	var out []Preset
	err := c.do(ctx, http.MethodGet, "/v1/presets", nil, &out)
	return out, err
}

// ArmWake schedules a one-shot wake.
func (c *Client) ArmWake(ctx context.Context, session string, fireAt time.Time, in time.Duration, note string) (schedule.Wake, error) {
	var wake schedule.Wake
	body := map[string]string{"session": session, "note": note}
	if in > 0 {
		body["in"] = in.String()
	} else {
		body["fire_at"] = fireAt.Format(time.RFC3339)
	}
	err := c.do(ctx, http.MethodPost, "/v1/wakes", body, &wake)
	return wake, err
}

// ListWakes returns all pending wakes, soonest first.
func (c *Client) ListWakes(ctx context.Context) ([]schedule.Wake, error) {
	var out []schedule.Wake
	err := c.do(ctx, http.MethodGet, "/v1/wakes", nil, &out)
	return out, err
}

// CancelWake removes a session's pending wake.
func (c *Client) CancelWake(ctx context.Context, session string) error {
	return c.do(ctx, http.MethodDelete, "/v1/wakes/"+url.PathEscape(session), nil, nil)
}

// TailEvents streams decisions to fn, reconnecting with exponential
// backoff until ctx is cancelled.
func (c *Client) TailEvents(ctx context.Context, fn func(Event)) error {
	wsURL := "ws://" + c.base[len("http://"):] + "/v1/events"

	op := func() error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			return err
		}
		defer conn.Close()

		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				return err
			}
			fn(ev)
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	bo.MaxInterval = 30 * time.Second
	return backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return op()
	}, backoff.WithContext(bo, ctx))
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "internal"}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return apiErr
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
