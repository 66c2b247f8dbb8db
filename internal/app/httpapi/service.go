// Package httpapi is the thin transport surface this system exposes over
// HTTP: a health probe, Prometheus metrics, the Import API binding, and an
// optional websocket feed of Event Bus topics. Routing glue only — no RBAC,
// no CRUD, no auth, matching this system's scope: those concerns live in
// whatever operator-facing product embeds it.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/R3E-Network/orchestrator/internal/app/eventbus"
	"github.com/R3E-Network/orchestrator/internal/app/eventbus/wsbridge"
	"github.com/R3E-Network/orchestrator/internal/app/importapi"
	"github.com/R3E-Network/orchestrator/internal/app/metrics"
	"github.com/R3E-Network/orchestrator/internal/app/system"
	"github.com/R3E-Network/orchestrator/pkg/logger"
)

// Service exposes the HTTP surface and fits into the system manager
// lifecycle alongside the Task Queue.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logger.Logger
}

// NewService builds the router (healthz, metrics, import, event feed)
// wrapped with Prometheus instrumentation, and returns a Service ready to
// Start. A nil bus omits the /events/{topic} websocket route.
func NewService(addr string, importer *importapi.Importer, bus *eventbus.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("http")
	}
	handler := metrics.InstrumentHandler(newRouter(importer, bus, log))
	return &Service{addr: addr, handler: handler, log: log}
}

var _ system.Service = (*Service)(nil)

func (s *Service) Name() string { return "http" }

func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server error")
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func newRouter(importer *importapi.Importer, bus *eventbus.Bus, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/import/{project}/{format}", handleImport(importer))
	if bus != nil {
		bridge := wsbridge.New(bus, log)
		r.Get("/events/{topic}", func(w http.ResponseWriter, req *http.Request) {
			bridge.ServeTopic(w, req, chi.URLParam(req, "topic"))
		})
	}
	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
