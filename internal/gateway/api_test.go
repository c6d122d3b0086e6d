package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tibcore/internal/alert"
	"tibcore/internal/model"
	"tibcore/internal/supervisor"
)

type fakeCore struct {
	snapshots map[string]*supervisor.Snapshot
	rulesErr  error
	applied   []alert.RuleConfig
}

func (f *fakeCore) Instruments() []string {
	out := make([]string, 0, len(f.snapshots))
	for inst := range f.snapshots {
		out = append(out, inst)
	}
	return out
}

func (f *fakeCore) Snapshot(instrument string) (*supervisor.Snapshot, bool) {
	snap, ok := f.snapshots[instrument]
	return snap, ok
}

func (f *fakeCore) ApplyRules(cfgs []alert.RuleConfig) error {
	if f.rulesErr != nil {
		return f.rulesErr
	}
	f.applied = cfgs
	return nil
}

func (f *fakeCore) ApplyAnalysis(cfg supervisor.AnalysisConfig) error { return nil }

func (f *fakeCore) Rules() *alert.RuleSet { return &alert.RuleSet{} }

type fakeAlertLog struct {
	events   []model.AlertEvent
	err      error
	gotLimit int
}

func (f *fakeAlertLog) RecentEvents(_ context.Context, instrument string, limit int) ([]model.AlertEvent, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	var out []model.AlertEvent
	for _, ev := range f.events {
		if ev.Instrument == instrument {
			out = append(out, ev)
		}
	}
	return out, nil
}

func testAPI(core Core, alertLog AlertLog) *API {
	return NewAPI(core, NewHub(zerolog.Nop()), nil, alertLog, zerolog.Nop())
}

func do(t *testing.T, api *API, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	api.Routes().ServeHTTP(w, req)
	return w
}

func TestAPI_SnapshotNotFound(t *testing.T) {
	api := testAPI(&fakeCore{snapshots: map[string]*supervisor.Snapshot{}}, nil)

	w := do(t, api, http.MethodGet, "/api/v1/snapshot/DOGEUSDT", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_Snapshot(t *testing.T) {
	core := &fakeCore{snapshots: map[string]*supervisor.Snapshot{
		"BTCUSDT": {Instrument: "BTCUSDT", TakenAt: time.Now().UTC()},
	}}
	api := testAPI(core, nil)

	w := do(t, api, http.MethodGet, "/api/v1/snapshot/BTCUSDT", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap supervisor.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "BTCUSDT", snap.Instrument)
}

func TestAPI_AlertHistory(t *testing.T) {
	log := &fakeAlertLog{events: []model.AlertEvent{
		{ID: "a", Instrument: "BTCUSDT", RuleID: "r1"},
		{ID: "b", Instrument: "ETHUSDT", RuleID: "r2"},
	}}
	api := testAPI(&fakeCore{}, log)

	w := do(t, api, http.MethodGet, "/api/v1/alerts/BTCUSDT", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Alerts []model.AlertEvent `json:"alerts"`
		Count  int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "a", resp.Alerts[0].ID)
	assert.Equal(t, 50, log.gotLimit, "default limit")

	w = do(t, api, http.MethodGet, "/api/v1/alerts/BTCUSDT?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, log.gotLimit)

	w = do(t, api, http.MethodGet, "/api/v1/alerts/BTCUSDT?limit=9999", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 500, log.gotLimit, "limit is clamped")

	w = do(t, api, http.MethodGet, "/api/v1/alerts/BTCUSDT?limit=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_AlertHistoryUnavailable(t *testing.T) {
	api := testAPI(&fakeCore{}, nil)

	w := do(t, api, http.MethodGet, "/api/v1/alerts/BTCUSDT", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	failing := &fakeAlertLog{err: errors.New("db gone")}
	api = testAPI(&fakeCore{}, failing)
	w = do(t, api, http.MethodGet, "/api/v1/alerts/BTCUSDT", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAPI_PutRules(t *testing.T) {
	core := &fakeCore{}
	api := testAPI(core, nil)

	body := `{"rules": [{"id": "r1", "condition": {"type": "threshold", "indicator": "RSI_14", "op": "lt", "level": 30}}]}`
	w := do(t, api, http.MethodPut, "/api/v1/rules", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, core.applied, 1)
	assert.Equal(t, "r1", core.applied[0].ID)

	core.rulesErr = errors.New("bad condition")
	w = do(t, api, http.MethodPut, "/api/v1/rules", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, api, http.MethodPut, "/api/v1/rules", `{"not": "rules"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
