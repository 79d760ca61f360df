package guidance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveFrame(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/frame", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("non_blocking"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func pollKind(t *testing.T, err error) PollErrorKind {
	t.Helper()
	var pollErr *PollError
	require.True(t, errors.As(err, &pollErr), "expected a PollError, got %v", err)
	return pollErr.Kind
}

func TestClientPollSolved(t *testing.T) {
	server := serveFrame(t, http.StatusOK, `{
		"has_result": true,
		"operating_mode": "operate",
		"mount_type": "alt_az",
		"slew_request": {"offset_rotation_axis": 10, "offset_tilt_axis": -4, "target_angle": 33.5},
		"plate_solution": {"confidence": 0.92}
	}`)

	client := NewClient(server.URL + "/")
	fixed := time.Date(2026, 10, 19, 21, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return fixed }

	state, err := client.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, Solved, state.Status)
	require.Equal(t, OperatingMode, state.Mode)
	require.Equal(t, Vector{X: 10, Y: -4}, state.Offset)
	require.InDelta(t, 0.92, state.Confidence, 1e-9)
	require.InDelta(t, 33.5, state.TargetAngle, 1e-9)
	require.True(t, state.AltAz)
	require.True(t, state.Connected)
	require.Equal(t, fixed, state.UpdatedAt)
}

func TestClientPollMapping(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status Status
		mode   Mode
	}{
		{"calibrating", `{"has_result": true, "calibrating": true, "operating_mode": "operate"}`, NoSolve, CalibratingMode},
		{"setup", `{"has_result": true, "operating_mode": "setup"}`, NoSolve, SetupMode},
		{"no target", `{"has_result": true, "operating_mode": "operate"}`, NoSolve, OperatingMode},
		{"no result yet", `{"has_result": false, "operating_mode": "operate"}`, Solving, OperatingMode},
		{"slewing without solution", `{"has_result": true, "operating_mode": "operate", "slew_request": {"offset_rotation_axis": 1, "offset_tilt_axis": 2}}`, Solving, OperatingMode},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := serveFrame(t, http.StatusOK, test.body)
			state, err := NewClient(server.URL).Poll(context.Background())
			require.NoError(t, err)
			require.Equal(t, test.status, state.Status)
			require.Equal(t, test.mode, state.Mode)
		})
	}
}

func TestClientFlagsLostSlew(t *testing.T) {
	server := serveFrame(t, http.StatusOK, `{"has_result": true, "operating_mode": "operate"}`)
	state, err := NewClient(server.URL).Poll(context.Background())
	require.NoError(t, err)
	require.True(t, state.SlewLost)

	server = serveFrame(t, http.StatusOK, `{"has_result": true, "operating_mode": "operate", "plate_solution": {"confidence": 0.5}}`)
	state, err = NewClient(server.URL).Poll(context.Background())
	require.NoError(t, err)
	require.False(t, state.SlewLost)
	require.Equal(t, NoSolve, state.Status)
}

func TestClientPollMalformed(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"invalid json", http.StatusOK, `{"has_result": tru`},
		{"missing has_result", http.StatusOK, `{"operating_mode": "operate"}`},
		{"unknown mode", http.StatusOK, `{"has_result": true, "operating_mode": "dance"}`},
		{"partial slew request", http.StatusOK, `{"has_result": true, "operating_mode": "operate", "slew_request": {"offset_tilt_axis": 2}, "plate_solution": {}}`},
		{"bad confidence", http.StatusOK, `{"has_result": true, "operating_mode": "operate", "slew_request": {"offset_rotation_axis": 1, "offset_tilt_axis": 2}, "plate_solution": {"confidence": 7}}`},
		{"server error", http.StatusInternalServerError, `{}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := serveFrame(t, test.status, test.body)
			_, err := NewClient(server.URL).Poll(context.Background())
			require.Error(t, err)
			require.Equal(t, DecodeError, pollKind(t, err))
		})
	}
}

func TestClientPollConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	address := server.URL
	server.Close()

	_, err := NewClient(address).Poll(context.Background())
	require.Error(t, err)
	require.Equal(t, ConnectionError, pollKind(t, err))
}

func TestClientPollTimeoutIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewClient(server.URL).Poll(ctx)
	require.Error(t, err)
	require.Equal(t, TimeoutError, pollKind(t, err))
	require.Less(t, time.Since(start), time.Second)
}
