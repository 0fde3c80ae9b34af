package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"hifibridge/internal/agent"
	"hifibridge/internal/aggregator"
	"hifibridge/internal/api"
	"hifibridge/internal/bus"
	"hifibridge/internal/config"
	"hifibridge/internal/mqttbridge"
	"hifibridge/internal/observability"
	"hifibridge/internal/orchestrator"
	"hifibridge/internal/services"
	"hifibridge/internal/store"
	"hifibridge/pkg/logging"
)

// Services holds the wired core and the optional surfaces around it.
type Services struct {
	Bus         *bus.Bus
	Coordinator *orchestrator.Coordinator
	Aggregator  *aggregator.Aggregator
	Router      *orchestrator.Router
	Adapters    []services.Built
	API         *api.Server
	Agent       *agent.Server

	// Changes feeds the dashboard.
	Changes *aggregator.ChangeQueue

	cfg config.Config

	mu      sync.Mutex
	started bool

	// Set by Start; Stop must not run concurrently with it.
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	httpAddr net.Addr

	rdb        *redis.Client
	mirror     *store.Mirror
	mqttClient *mqttbridge.Client
	bridge     *mqttbridge.Bridge

	shutdownTracing func(context.Context) error
}

// InitializeServices builds the core from cfg. Network integrations are only
// connected by Start.
func InitializeServices(cfg config.Config, version string) (*Services, error) {
	b := bus.New(cfg.Bus.Capacity)
	agg := aggregator.New(b)
	coord := orchestrator.New(context.Background(), b, orchestrator.Config{
		ShutdownTimeout: cfg.Coordinator.ShutdownTimeout,
		StopTimeout:     cfg.Coordinator.StopTimeout,
		JoinTimeout:     cfg.Coordinator.JoinTimeout,
	})
	router := orchestrator.NewRouter(b, agg)

	built, err := services.NewRegistry().BuildAll(cfg.Adapters, b, cfg.Retry)
	if err != nil {
		return nil, err
	}
	for _, a := range built {
		coord.RegisterAdapter(a.Service, a.Config.Enabled)
		router.Register(a.Logic)
		logging.Debug("Services", "Registered adapter %s (type %s, enabled %t)", a.Config.Name, a.Config.Type, a.Config.Enabled)
	}

	changes := aggregator.NewChangeQueue()
	agg.OnChange(changes.Push)

	s := &Services{
		Bus:         b,
		Coordinator: coord,
		Aggregator:  agg,
		Router:      router,
		Adapters:    built,
		Changes:     changes,
		cfg:         cfg,
	}

	s.API = api.NewServer(api.Options{
		Bus:      b,
		Zones:    agg,
		Adapters: coord,
		Commands: router,

		OriginPatterns: cfg.HTTP.AllowedOrigins,
	})

	if cfg.MCP.Enabled {
		tools := agent.NewTools(agg, coord, router)
		s.Agent = agent.NewServer(agent.ServerConfig{
			Listen:  cfg.MCP.Listen,
			BaseURL: cfg.MCP.BaseURL,
			Version: version,
		}, tools)
	}
	return s, nil
}

// Start brings up every enabled component and then the enabled adapters.
// Components outlive ctx cancellation until Stop so the shutdown handshake
// can still run.
func (s *Services) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("services already started")
	}
	s.started = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	shutdownTracing, err := observability.SetupTracing(runCtx, observability.TracingConfig{
		Enabled:      s.cfg.Tracing.Enabled,
		OTLPEndpoint: s.cfg.Tracing.OTLPEndpoint,
		SampleRatio:  s.cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return err
	}
	s.shutdownTracing = shutdownTracing

	if err := observability.RegisterBusMetrics(prometheus.DefaultRegisterer, s.Bus); err != nil {
		return fmt.Errorf("failed to register bus metrics: %w", err)
	}
	if err := observability.RegisterZoneGauge(prometheus.DefaultRegisterer, s.Aggregator.ZoneCount); err != nil {
		return fmt.Errorf("failed to register zone gauge: %w", err)
	}

	if err := s.Aggregator.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start aggregator: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Coordinator.RunHealthTicker(runCtx, s.cfg.HealthCheck.Interval)
	}()

	if s.cfg.HTTP.Enabled {
		if err := s.startHTTP(runCtx); err != nil {
			return err
		}
	}

	if s.Agent != nil {
		if err := s.Agent.Start(); err != nil {
			return fmt.Errorf("failed to start MCP server: %w", err)
		}
	}

	if s.cfg.Redis.Enabled {
		if err := s.startMirror(runCtx); err != nil {
			return err
		}
	}

	if s.cfg.MQTT.Enabled {
		if err := s.startBridge(runCtx); err != nil {
			return err
		}
	}

	if err := s.Coordinator.StartAllEnabled(); err != nil {
		return fmt.Errorf("failed to start adapters: %w", err)
	}
	logging.Info("Services", "Started %d adapter(s)", len(s.Adapters))
	return nil
}

// startHTTP binds synchronously so a busy port fails Start.
func (s *Services) startHTTP(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTP.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTP.Listen, err)
	}
	s.httpAddr = ln.Addr()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.API.Serve(ctx, ln); err != nil {
			logging.Error("Services", err, "API server stopped")
		}
	}()
	return nil
}

func (s *Services) startMirror(ctx context.Context) error {
	rdb, err := store.NewRedisClient(ctx, s.cfg.Redis)
	if err != nil {
		return err
	}
	s.rdb = rdb
	s.mirror = store.NewMirror(store.NewStateCache(rdb, s.cfg.Redis.TTL), s.Aggregator)
	if err := s.mirror.Start(ctx); err != nil {
		return fmt.Errorf("failed to start redis mirror: %w", err)
	}
	return nil
}

func (s *Services) startBridge(ctx context.Context) error {
	client, err := mqttbridge.Connect(ctx, s.cfg.MQTT)
	if err != nil {
		return err
	}
	s.mqttClient = client
	s.bridge = mqttbridge.New(client, s.Bus, s.Aggregator, s.Router, mqttbridge.Options{
		TopicPrefix:     s.cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: s.cfg.MQTT.DiscoveryPrefix,
		HADiscovery:     s.cfg.MQTT.HADiscovery,
		QoS:             s.cfg.MQTT.QoS,
	})
	if err := s.bridge.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mqtt bridge: %w", err)
	}
	return nil
}

// HTTPAddr is the bound API address, or nil when HTTP is disabled or not
// started.
func (s *Services) HTTPAddr() net.Addr {
	return s.httpAddr
}

// Stop runs the coordinator shutdown handshake, then stops the surfaces in
// reverse start order. It is safe to call after a partial Start.
func (s *Services) Stop(reason string) orchestrator.ShutdownReport {
	report := s.Coordinator.Shutdown(reason)

	if s.bridge != nil {
		s.bridge.Stop()
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.mirror != nil {
		s.mirror.Stop()
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			logging.Warn("Services", "Closing redis client: %v", err)
		}
	}
	if s.Agent != nil {
		if err := s.Agent.Stop(context.Background()); err != nil {
			logging.Warn("Services", "Stopping MCP server: %v", err)
		}
	}

	s.Aggregator.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if s.shutdownTracing != nil {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := s.shutdownTracing(ctx); err != nil {
			logging.Warn("Services", "Flushing traces: %v", err)
		}
	}
	return report
}

func logShutdownReport(r orchestrator.ShutdownReport) {
	logging.Info("Services", "Shutdown finished in %s: acked=%v missing=%v abandoned=%v",
		r.Duration.Round(time.Millisecond), r.Acked, r.Missing, r.Abandoned)
}
