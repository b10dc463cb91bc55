package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/engine"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/identity"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/ledger"
)

func newTestServer(t *testing.T) (*Server, *ledger.Ledger) {
	t.Helper()

	l, err := ledger.Open(filepath.Join(t.TempDir(), "parking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Shutdown() })

	info := LotInfo{
		LotName:      "central-lot",
		LineY:        240,
		Margin:       15,
		PlateGrammar: "^[A-Z]{2}[0-9]{5}$",
	}
	limits := func() engine.Limits {
		return engine.Limits{MaxCapacity: 2, HourlyRate: 50}
	}
	return New(":0", l, limits, info, nil), l
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestConfig(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/config")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "central-lot", got["lot_name"])
	assert.Equal(t, 2.0, got["max_capacity"])
	assert.Equal(t, 50.0, got["hourly_rate"])
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestStatus(t *testing.T) {
	s, l := newTestServer(t)
	ctx := context.Background()

	entry := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := l.Open(ctx, identity.FromPlate("DL12345"), entry)
	require.NoError(t, err)
	_, err = l.Open(ctx, identity.FromPlate("MH67890"), entry.Add(5*time.Minute))
	require.NoError(t, err)
	_, err = l.Close(ctx, identity.FromPlate("MH67890"), entry.Add(45*time.Minute), 50)
	require.NoError(t, err)

	rec := get(t, s, "/api/parking/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st ledger.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.ActiveCount)
	assert.Equal(t, 1, st.AvailableSpots)
	assert.Equal(t, 2, st.TotalEntries)
	assert.Equal(t, 1, st.TotalExits)
	assert.Equal(t, 50.0, st.RevenueToDate)
	assert.False(t, st.OverCapacity)
	assert.Len(t, st.Sessions, 2)
}

func TestSessions(t *testing.T) {
	s, l := newTestServer(t)
	ctx := context.Background()

	entry := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := l.Open(ctx, identity.FromPlate("DL12345"), entry)
	require.NoError(t, err)

	rec := get(t, s, "/api/parking/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []ledger.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "DL12345", sessions[0].Identity)
	assert.True(t, sessions[0].Open())
}

func TestExport(t *testing.T) {
	s, l := newTestServer(t)
	ctx := context.Background()

	entry := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := l.Open(ctx, identity.FromPlate("DL12345"), entry)
	require.NoError(t, err)
	_, err = l.Close(ctx, identity.FromPlate("DL12345"), entry.Add(45*time.Minute), 50)
	require.NoError(t, err)

	rec := get(t, s, "/api/parking/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Entry Time,Exit Time,Plate Number,Duration (hours),Fare", lines[0])
	assert.Equal(t, "2026-03-01 10:00:00,2026-03-01 10:45:00,DL12345,0.75,50.00", lines[1])
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/parking/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
