package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hifibridge/internal/bus"
	"hifibridge/internal/observability"
	"hifibridge/internal/orchestrator"
	"hifibridge/internal/zone"
	"hifibridge/pkg/logging"
)

// ZoneReader is the read side of the zone aggregator.
type ZoneReader interface {
	GetZone(zoneID string) (zone.Zone, bool)
	GetZones() []zone.Zone
	GetZonesByAdapter(adapter string) []zone.Zone
}

// AdapterController is the subset of the coordinator the API drives.
type AdapterController interface {
	Status() []orchestrator.AdapterStatus
	SetEnabled(name string, enabled bool) error
	Start(name string) error
	StopAdapter(name string) error
}

// CommandDispatcher routes zone commands to their adapter.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, zoneID string, cmd zone.Command) (zone.CommandResponse, error)
}

// Options wires the server to the core.
type Options struct {
	Bus      *bus.Bus
	Zones    ZoneReader
	Adapters AdapterController
	Commands CommandDispatcher
	// Metrics serves /metrics. Defaults to the process registry.
	Metrics http.Handler
	// OriginPatterns lists extra browser origin hosts allowed to open the event
	// stream, matched with path.Match. Same-host origins are always allowed.
	OriginPatterns []string
}

// Server is the HTTP front end of the bridge.
type Server struct {
	bus      *bus.Bus
	zones    ZoneReader
	adapters AdapterController
	commands CommandDispatcher
	metrics  http.Handler
	origins  []string

	httpSrv *http.Server
}

// NewServer creates a server. Call Handler for tests or ListenAndServe to run it.
func NewServer(opts Options) *Server {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.Handler()
	}
	return &Server{
		bus:      opts.Bus,
		zones:    opts.Zones,
		adapters: opts.Adapters,
		commands: opts.Commands,
		metrics:  metrics,
		origins:  opts.OriginPatterns,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observability.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics)
	r.Route("/api", s.RegisterRoutes)
	return r
}

// RegisterRoutes mounts the JSON and WebSocket endpoints.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/zones", func(r chi.Router) {
		r.Get("/", s.handleListZones)
		r.Get("/{zoneID}", s.handleGetZone)
		r.Post("/{zoneID}/command", s.handleZoneCommand)
	})
	r.Route("/adapters", func(r chi.Router) {
		r.Get("/", s.handleListAdapters)
		r.Post("/{name}/{action}", s.handleAdapterAction)
	})
	r.Get("/bus", s.handleBus)
	r.Get("/events", s.handleEvents)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. It returns once the listener is closed.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("HTTP", "API listening on %s", ln.Addr())
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logging.Info("HTTP", "Shutting down API server")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
