package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-dronescan/pkg/flight"
	"github.com/teslashibe/go-dronescan/pkg/marker"
	"github.com/teslashibe/go-dronescan/pkg/scan"
)

type fakeSource struct {
	mu      sync.Mutex
	status  scan.Status
	reasons []string
}

func (f *fakeSource) Status() scan.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSource) Abort(reason string) {
	f.mu.Lock()
	f.reasons = append(f.reasons, reason)
	f.mu.Unlock()
}

func newTestServer() (*Server, *fakeSource) {
	src := &fakeSource{status: scan.Status{
		SessionID: "3f1c",
		Battery:   81,
		Flight:    flight.Status{State: flight.StateSweepOut, Height: 198},
		Markers: marker.Snapshot{
			FrameSeq:  42,
			MarkerID:  7,
			HasMarker: true,
			Position:  marker.PositionLeft,
			Registry:  []int{3, 7},
		},
		Captures: 5,
	}}
	return NewServer("0", src, nil, nil), src
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/status", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "3f1c", body["session_id"])
	assert.Equal(t, float64(5), body["captures"])

	fl := body["flight"].(map[string]any)
	assert.Equal(t, "SWEEP_OUT", fl["state"])
	assert.Equal(t, "none", fl["outcome"])
	assert.Equal(t, float64(198), fl["height"])
}

func TestMarkers(t *testing.T) {
	s, _ := newTestServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/markers", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var snap struct {
		MarkerID int    `json:"marker_id"`
		Position string `json:"position"`
		Registry []int  `json:"registry"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 7, snap.MarkerID)
	assert.Equal(t, "left", snap.Position)
	assert.Equal(t, []int{3, 7}, snap.Registry)
}

func TestAbort(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantReason string
	}{
		{name: "empty body", body: "", wantStatus: 202, wantReason: "dashboard"},
		{name: "with reason", body: `{"reason":"bird nearby"}`, wantStatus: 202, wantReason: "bird nearby"},
		{name: "bad json", body: `{"reason":`, wantStatus: 400},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, src := newTestServer()
			req := httptest.NewRequest("POST", "/api/abort", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := s.app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)

			if tc.wantReason == "" {
				assert.Empty(t, src.reasons)
				return
			}
			require.Len(t, src.reasons, 1)
			assert.Equal(t, tc.wantReason, src.reasons[0])
		})
	}
}

func TestIndexAndWebsocketGuard(t *testing.T) {
	s, _ := newTestServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	page, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(page), "/ws/status")

	resp, err = s.app.Test(httptest.NewRequest("GET", "/ws/status", nil))
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}
