// Package api is the HTTP surface of the notifier.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uninotifier/internal/dispatch"
	"uninotifier/internal/schedule"
	logx "uninotifier/pkg/logx"
)

// Dispatcher is what the send endpoints need from dispatch.Dispatcher.
type Dispatcher interface {
	Send(ctx context.Context, req dispatch.Request) dispatch.Report
	Plan(req dispatch.Request) dispatch.Plan
	Runtime() *dispatch.Runtime
}

// Scheduler is what the schedule endpoints need from schedule.Service.
type Scheduler interface {
	Entries() []schedule.EntryInfo
	Trigger(ctx context.Context, name string) (dispatch.Report, error)
}

type Config struct {
	Addr         string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Pprof mounts net/http/pprof under /debug/pprof.
	Pprof bool
	// Status, when set, backs GET /api/status.
	Status func() any
}

type Server struct {
	cfg   Config
	log   logx.Logger
	disp  Dispatcher
	sched Scheduler
	gath  prometheus.Gatherer

	router chi.Router
	srv    *http.Server
}

// New builds the router. sched and gath may be nil, in which case the
// schedule and metrics routes are not mounted.
func New(cfg Config, disp Dispatcher, sched Scheduler, gath prometheus.Gatherer, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:   cfg,
		log:   log.With(logx.String("comp", "api")),
		disp:  disp,
		sched: sched,
		gath:  gath,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gath != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gath, promhttp.HandlerOpts{}))
	}
	if s.cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/send", s.handleSend)
		r.Post("/plan", s.handlePlan)
		r.Get("/channels", s.handleChannels)
		if s.cfg.Status != nil {
			r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, s.cfg.Status())
			})
		}
		if s.sched != nil {
			r.Get("/schedules", s.handleSchedules)
			r.Post("/schedules/{name}/run", s.handleRunSchedule)
		}
	})
	return r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutCtx); err != nil {
		s.log.Warn("http shutdown", logx.Err(err))
		return err
	}
	s.log.Info("http stopped")
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Int("bytes", ww.BytesWritten()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
