// Package httpapi is the operator HTTP front-end: health, status, and manual
// triggers for the scheduler and for single cycles.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dealwatch/internal/deal"
	"dealwatch/internal/eventbus"
	"dealwatch/internal/runtime/supervisor"
	"dealwatch/internal/storage"
	"dealwatch/internal/task/scheduler"
	logx "dealwatch/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8080"

// CycleRunner is the subset of the cycle driver the API drives.
type CycleRunner interface {
	RunCycle(ctx context.Context) (deal.Summary, error)
	Running() bool
	Providers() []string
}

// Scheduler is the subset of the scheduler service the API drives.
type Scheduler interface {
	Start(ctx context.Context) bool
	Snapshot() scheduler.Snapshot
}

// OfferLister reads persisted offers.
type OfferLister interface {
	Offers(ctx context.Context, f storage.Filter) ([]deal.Record, error)
}

type Deps struct {
	Cycles    CycleRunner
	Offers    OfferLister        // nil disables /offers
	Scheduler Scheduler          // nil disables /start
	Events    *eventbus.Recorder // nil leaves /status without history
	Workers   func() []supervisor.WorkerStats
	StartTime time.Time
	// Base is the parent context for work that outlives a request (manual
	// cycles, a scheduler started over HTTP).
	Base context.Context
}

type Options struct {
	Addr           string
	RequestTimeout time.Duration // default 5s; manual cycles are not bounded by it
}

type Server struct {
	http *http.Server
	log  logx.Logger
}

func New(opts Options, d Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "http"))
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	return &Server{
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           Router(opts, d, log),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		log: log,
	}
}

// Router builds the chi handler tree.
func Router(opts Options, d Deps, log logx.Logger) http.Handler {
	if d.Base == nil {
		d.Base = context.Background()
	}
	if d.StartTime.IsZero() {
		d.StartTime = time.Now()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	h := &handlers{d: d, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(log))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Get("/healthz", h.healthz)
		r.Get("/status", h.status)
		r.Get("/offers", h.offers)
		r.Get("/start", h.start)
		r.Post("/start", h.start)
	})
	r.Post("/cycles", h.runCycle)
	return r
}

// Serve listens on the configured address until ctx is done, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.http.Addr)
	}
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(sctx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	return nil
}
