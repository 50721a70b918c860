package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/adapters/journal"
	"github.com/mikey/agenda-relay/internal/config"
	"github.com/mikey/agenda-relay/internal/core"
	"github.com/mikey/agenda-relay/internal/poller"
)

type fakeController struct {
	status     poller.Status
	triggerErr error
	checkErr   error
	triggered  int
	resets     int
}

func (c *fakeController) Trigger(ctx context.Context) (*core.CycleReport, error) {
	c.triggered++
	return &core.CycleReport{CycleID: "cycle-1", Counters: c.status.Counters}, c.triggerErr
}

func (c *fakeController) Check(ctx context.Context) error { return c.checkErr }

func (c *fakeController) ResetCounters() {
	c.resets++
	c.status.Counters = core.SessionCounters{}
}

func (c *fakeController) SetInterval(d time.Duration) error {
	if err := config.ValidateInterval(d); err != nil {
		return err
	}
	c.status.Interval = d
	return nil
}

func (c *fakeController) Snapshot() poller.Status { return c.status }

func newTestServer(t *testing.T) (*Server, *fakeController, *journal.MemoryJournal) {
	t.Helper()
	ctrl := &fakeController{status: poller.Status{
		Counters:        core.SessionCounters{Processed: 2, Success: 1, Error: 1},
		IMAPConnected:   true,
		IntervalSeconds: 300,
	}}
	j := journal.NewMemoryJournal(zap.NewNop(), 100, 0, 0)
	t.Cleanup(j.Stop)
	return NewServer("127.0.0.1:0", time.Second, ctrl, j, zap.NewNop()), ctrl, j
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndStatus(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["imap_connected"])
	assert.Equal(t, float64(300), got["interval_seconds"])
	counters := got["counters"].(map[string]any)
	assert.Equal(t, float64(2), counters["processed"])
}

func TestPoll(t *testing.T) {
	s, ctrl, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/poll", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.triggered)
	assert.Contains(t, rec.Body.String(), "cycle-1")

	ctrl.triggerErr = errors.New("connection refused")
	rec = do(t, s, http.MethodPost, "/api/poll", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	ctrl.triggerErr = poller.ErrStopped
	rec = do(t, s, http.MethodPost, "/api/poll", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/poll", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWrongMethodIsNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/check"},
		{http.MethodPost, "/api/status"},
		{http.MethodPut, "/api/events"},
		{http.MethodGet, "/api/interval"},
	} {
		rec := do(t, s, tc.method, tc.path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
	}

	rec := do(t, s, http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheck(t *testing.T) {
	s, ctrl, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/check", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":true}`, rec.Body.String())

	ctrl.checkErr = errors.New("login failed")
	rec = do(t, s, http.MethodPost, "/api/check", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"connected":false,"error":"login failed"}`, rec.Body.String())
}

func TestEvents(t *testing.T) {
	s, _, j := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, j.Append(ctx,
		core.Event{Level: core.LevelInfo, Message: "Found 2 unseen message(s)."},
		core.Event{Level: core.LevelError, Message: "Failed to process"},
		core.Event{Level: core.LevelSuccess, Message: "Meeting created"},
	))

	rec := do(t, s, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Events []core.Event `json:"events"`
		Count  int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, "Meeting created", body.Events[0].Message)

	rec = do(t, s, http.MethodGet, "/api/events?level=error&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Failed to process", body.Events[0].Message)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/events?level=loud", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/events?limit=-1", "").Code)

	rec = do(t, s, http.MethodDelete, "/api/events", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	events, err := j.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestResetCounters(t *testing.T) {
	s, ctrl, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/counters/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.resets)
	assert.JSONEq(t, `{"processed":0,"success":0,"conflict":0,"rejected":0,"error":0}`, rec.Body.String())
}

func TestSetInterval(t *testing.T) {
	s, ctrl, _ := newTestServer(t)

	rec := do(t, s, http.MethodPut, "/api/interval", `{"seconds":120}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 120*time.Second, ctrl.status.Interval)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/api/interval", `{"seconds":5}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/api/interval", `nope`).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agenda_relay_imap_up")
}

func TestStartStop(t *testing.T) {
	s, _, _ := newTestServer(t)
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop())
}
