package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_ExitCodes(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"unknown_preset", 3},
		{"invalid_preset", 3},
		{"pane_not_found", 4},
		{"not_running", 5},
		{"no_wake", 5},
		{"already_running", 6},
		{"internal", 1},
		{"", 1},
	}
	for _, tt := range tests {
		e := &APIError{Code: tt.code, Message: "x"}
		assert.Equal(t, tt.want, e.ExitCode(), tt.code)
	}
}

func TestClient_DecodesErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"unknown_preset","message":"unknown preset: \"yolo\""}`))
	}))
	defer ts.Close()

	c := New(strings.TrimPrefix(ts.URL, "http://"))
	_, err := c.StartSession(context.Background(), "agent", "yolo")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, "unknown_preset", apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, 3, apiErr.ExitCode())
}

func TestClient_StatusRoundTrip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version":"0.1.0","sessions":[{"session":"agent","preset":"conservative"}],"wakes":[]}`))
	}))
	defer ts.Close()

	c := New(strings.TrimPrefix(ts.URL, "http://"))
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", st.Version)
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, "conservative", st.Sessions[0].Preset)
}
