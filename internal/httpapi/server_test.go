package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealwatch/internal/cycle"
	"dealwatch/internal/deal"
	"dealwatch/internal/eventbus"
	"dealwatch/internal/storage"
	"dealwatch/internal/task/scheduler"
	logx "dealwatch/pkg/logx"
)

type fakeCycles struct {
	err error
	sum deal.Summary
}

func (f *fakeCycles) RunCycle(context.Context) (deal.Summary, error) { return f.sum, f.err }
func (f *fakeCycles) Running() bool                                  { return false }
func (f *fakeCycles) Providers() []string                            { return []string{"rainbow", "tui"} }

type fakeScheduler struct {
	mu      sync.Mutex
	started bool
}

func (f *fakeScheduler) Start(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return false
	}
	f.started = true
	return true
}

func (f *fakeScheduler) Snapshot() scheduler.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return scheduler.Snapshot{Started: f.started, Schedule: "@every 5m0s"}
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return rr, body
}

func TestHealthz(t *testing.T) {
	h := Router(Options{}, Deps{StartTime: time.Now().Add(-time.Minute)}, logx.Nop())
	rr, body := do(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
	assert.GreaterOrEqual(t, body["uptime_seconds"].(float64), 60.0)
}

func TestStartIsIdempotent(t *testing.T) {
	s := &fakeScheduler{}
	h := Router(Options{}, Deps{Scheduler: s}, logx.Nop())

	_, body := do(t, h, http.MethodPost, "/start")
	assert.Equal(t, "started", body["status"])
	_, body = do(t, h, http.MethodGet, "/start")
	assert.Equal(t, "already running", body["status"])
}

func TestStartWithoutScheduler(t *testing.T) {
	h := Router(Options{}, Deps{}, logx.Nop())
	rr, _ := do(t, h, http.MethodGet, "/start")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRunCycle(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		status string
	}{
		{"completed", nil, http.StatusOK, "completed"},
		{"in flight", cycle.ErrCycleInFlight, http.StatusConflict, "in flight"},
		{"failed", errors.Mark(errors.New("db down"), deal.ErrPersistenceFailure), http.StatusInternalServerError, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCycles{err: tt.err, sum: deal.Summary{CycleID: "c1", Snapshot: 3}}
			h := Router(Options{}, Deps{Cycles: c}, logx.Nop())
			rr, body := do(t, h, http.MethodPost, "/cycles")
			assert.Equal(t, tt.code, rr.Code)
			assert.Equal(t, tt.status, body["status"])
		})
	}
}

func TestRunCycleRejectsGet(t *testing.T) {
	h := Router(Options{}, Deps{Cycles: &fakeCycles{}}, logx.Nop())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cycles", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestStatus(t *testing.T) {
	rec := eventbus.NewRecorder(5)
	rec.Record(eventbus.Event{Type: eventbus.CycleCompleted, Data: deal.Summary{CycleID: "a"}})
	rec.Record(eventbus.Event{Type: eventbus.CycleFailed, Data: deal.Summary{CycleID: "b"}})

	h := Router(Options{}, Deps{Cycles: &fakeCycles{}, Scheduler: &fakeScheduler{}, Events: rec}, logx.Nop())
	rr, body := do(t, h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, false, body["cycle_running"])
	assert.Equal(t, []any{"rainbow", "tui"}, body["providers"])
	recent := body["recent"].([]any)
	require.Len(t, recent, 2)
	assert.Equal(t, eventbus.CycleFailed, recent[0].(map[string]any)["type"])
	assert.Equal(t, "@every 5m0s", body["scheduler"].(map[string]any)["schedule"])
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := New(Options{Addr: "127.0.0.1:0"}, Deps{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestOffers(t *testing.T) {
	st := storage.NewMemory()
	offers := []deal.Offer{
		{Price: decimal.NewFromInt(1299), Country: "Hiszpania", Destination: "Majorka", Airport: "WAW-PMI", Brand: "Rainbow", Provider: "rainbow"},
		{Price: decimal.NewFromInt(899), Country: "Grecja", Destination: "Kreta", Airport: "HER", Brand: "TUI", Provider: "tui"},
	}
	_, err := st.Reconcile(context.Background(), offers, time.Now())
	require.NoError(t, err)
	_, err = st.Reconcile(context.Background(), offers[:1], time.Now())
	require.NoError(t, err)

	h := Router(Options{}, Deps{Offers: st}, logx.Nop())

	rr, body := do(t, h, http.MethodGet, "/offers")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, body["count"])
	first := body["offers"].([]any)[0].(map[string]any)
	assert.Equal(t, "899", first["price"])
	assert.Equal(t, false, first["active"])

	_, body = do(t, h, http.MethodGet, "/offers?active=true")
	assert.EqualValues(t, 1, body["count"])

	_, body = do(t, h, http.MethodGet, "/offers?provider=tui")
	assert.EqualValues(t, 1, body["count"])

	rr, _ = do(t, h, http.MethodGet, "/offers?limit=x")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
