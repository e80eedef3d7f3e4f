package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"dealwatch/internal/cycle"
	"dealwatch/internal/deal"
	"dealwatch/internal/eventbus"
	"dealwatch/internal/runtime/supervisor"
	"dealwatch/internal/storage"
	"dealwatch/internal/task/scheduler"
	logx "dealwatch/pkg/logx"
)

type handlers struct {
	d   Deps
	log logx.Logger
}

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type statusResponse struct {
	CycleRunning bool                     `json:"cycle_running"`
	Providers    []string                 `json:"providers"`
	Scheduler    *scheduler.Snapshot      `json:"scheduler,omitempty"`
	Workers      []supervisor.WorkerStats `json:"workers,omitempty"`
	Recent       []eventbus.Event         `json:"recent"`
}

type cycleResponse struct {
	Status  string        `json:"status"`
	Error   string        `json:"error,omitempty"`
	Summary *deal.Summary `json:"summary,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.d.StartTime).Seconds(),
	})
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Recent: []eventbus.Event{}}
	if h.d.Cycles != nil {
		resp.CycleRunning = h.d.Cycles.Running()
		resp.Providers = h.d.Cycles.Providers()
	}
	if h.d.Scheduler != nil {
		snap := h.d.Scheduler.Snapshot()
		resp.Scheduler = &snap
	}
	if h.d.Workers != nil {
		resp.Workers = h.d.Workers()
	}
	if h.d.Events != nil {
		resp.Recent = h.d.Events.Recent()
	}
	writeJSON(w, http.StatusOK, resp)
}

// start enables the scheduler once; repeated calls are no-ops.
func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	if h.d.Scheduler == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "scheduler disabled"})
		return
	}
	if h.d.Scheduler.Start(h.d.Base) {
		h.log.Info("scheduler started over http", logx.String("remote", r.RemoteAddr))
		writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "already running"})
}

// runCycle runs one cycle synchronously. The cycle uses the server's base
// context so a client disconnect cannot abort it midway.
func (h *handlers) runCycle(w http.ResponseWriter, _ *http.Request) {
	if h.d.Cycles == nil {
		writeJSON(w, http.StatusNotFound, cycleResponse{Status: "unavailable"})
		return
	}
	sum, err := h.d.Cycles.RunCycle(h.d.Base)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, cycleResponse{Status: "completed", Summary: &sum})
	case errors.Is(err, cycle.ErrCycleInFlight):
		writeJSON(w, http.StatusConflict, cycleResponse{Status: "in flight", Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, cycleResponse{Status: "failed", Error: err.Error(), Summary: &sum})
	}
}

// offers lists persisted offers: ?active=true&provider=tui&limit=50.
func (h *handlers) offers(w http.ResponseWriter, r *http.Request) {
	if h.d.Offers == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "unavailable"})
		return
	}
	q := r.URL.Query()
	f := storage.Filter{Provider: strings.TrimSpace(q.Get("provider"))}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "active must be a boolean"})
			return
		}
		f.ActiveOnly = active
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		f.Limit = n
	}
	recs, err := h.d.Offers.Offers(r.Context(), f)
	if err != nil {
		h.log.Warn("list offers failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
		return
	}
	out := make([]offerView, len(recs))
	for i, rec := range recs {
		out[i] = newOfferView(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "offers": out})
}

type offerView struct {
	Provider      string    `json:"provider"`
	Price         string    `json:"price"`
	Currency      string    `json:"currency,omitempty"`
	Country       string    `json:"country"`
	Destination   string    `json:"destination"`
	Airport       string    `json:"airport"`
	Brand         string    `json:"brand"`
	DepartureDate string    `json:"departure_date,omitempty"`
	Link          string    `json:"link,omitempty"`
	Active        bool      `json:"active"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

func newOfferView(r deal.Record) offerView {
	return offerView{
		Provider:      r.Provider,
		Price:         r.Price.String(),
		Currency:      r.Currency,
		Country:       r.Country,
		Destination:   r.Destination,
		Airport:       r.Airport,
		Brand:         r.Brand,
		DepartureDate: r.DepartureDate,
		Link:          r.Link,
		Active:        r.Active,
		FirstSeen:     r.FirstSeen,
		LastSeen:      r.LastSeen,
	}
}
