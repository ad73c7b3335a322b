// Package api exposes the jobledger engine over HTTP.
//
// Authentication happens upstream. Callers identify themselves with the
// X-Actor-ID and X-Actor-Role headers, which every mutating route requires.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/job"
)

// Actor headers.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Server serves the HTTP API.
type Server struct {
	engine  *jobledger.Engine
	logger  zerolog.Logger
	metrics http.Handler
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l.With().Str("component", "api").Logger() }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithClock overrides the clock used for derived invoice status.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(engine *jobledger.Engine, opts ...Option) *Server {
	s := &Server{engine: engine, logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router with every API route mounted under basePath.
func (s *Server) Routes(basePath string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	api := chi.NewRouter()
	api.Route("/leads", func(r chi.Router) {
		r.With(requireActor).Post("/", s.createLead)
	})
	api.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.With(requireActor).Post("/", s.createJob)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.With(requireActor).Patch("/", s.patchJob)
			r.Get("/requirements", s.checkRequirements)
			r.With(requireActor).Get("/transitions", s.allowedTransitions)
			r.With(requireActor).Post("/transitions", s.transition)
			r.With(requireActor).Post("/settle", s.settle)
		})
	})
	api.Route("/invoices", func(r chi.Router) {
		r.Get("/", s.listInvoices)
		r.With(requireActor).Post("/", s.createInvoice)
		r.Route("/{invoiceID}", func(r chi.Router) {
			r.Get("/", s.getInvoice)
			r.With(requireActor).Post("/send", s.sendInvoice)
			r.With(requireActor).Post("/pay", s.payInvoice)
			r.With(requireActor).Post("/revert", s.revertInvoice)
		})
	})
	api.Route("/payouts", func(r chi.Router) {
		r.Get("/", s.listPayouts)
		r.With(requireActor).Post("/{payoutID}/status", s.advancePayout)
	})
	api.Route("/reports", func(r chi.Router) {
		r.Get("/aging", s.agingReport)
		r.Get("/monthly", s.monthlyReport)
		r.Get("/pnl", s.pnlReport)
		r.With(requireActor).Post("/export", s.exportReports)
	})

	if basePath == "" || basePath == "/" {
		r.Mount("/", api)
	} else {
		r.Mount(basePath, api)
	}
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

type actorKey struct{}

// Actor is the caller identity taken from the request headers.
type Actor struct {
	ID   string
	Role job.Role
}

func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := Actor{ID: r.Header.Get(HeaderActorID), Role: job.Role(r.Header.Get(HeaderActorRole))}
		if a.ID == "" || a.Role == "" {
			writeError(w, http.StatusUnauthorized, "missing "+HeaderActorID+" or "+HeaderActorRole+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, a)))
	})
}

func actorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
