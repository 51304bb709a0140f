package engramd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"

	"pkt.systems/engramd/internal/auth"
	"pkt.systems/engramd/internal/extract"
	"pkt.systems/engramd/internal/graph"
	"pkt.systems/engramd/internal/graph/redistore"
	"pkt.systems/engramd/internal/ingest"
	"pkt.systems/engramd/internal/logfields"
	"pkt.systems/engramd/internal/memory"
	"pkt.systems/engramd/mcp"
	"pkt.systems/pslog"
)

// Server is the assembled engramd daemon.
type Server struct {
	cfg          Config
	logger       pslog.Logger
	lifecycleLog pslog.Logger
	store        *redistore.Store
	queue        *ingest.Queue
	pool         *ingest.Pool
	memory       *memory.Service
	facade       mcp.Server
}

// New wires the daemon from cfg. Configuration problems, an unreadable
// policy or keyring, and an unreachable graph store all fail here;
// nothing is retried lazily at request time.
func New(ctx context.Context, cfg Config, logger pslog.Logger) (*Server, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = pslog.NewStructured(os.Stderr).With("app", "engramd")
	}

	authenticator, policy, err := buildGate(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := redistore.New(ctx, cfg.GraphURL, logger)
	if err != nil {
		return nil, err
	}
	engine := graph.Limit(store, cfg.EngineMaxConcurrent)

	queue := ingest.NewQueue(logger)
	svc, err := memory.New(memory.Config{
		Engine:           engine,
		Extractor:        extract.NewHeuristic(),
		Queue:            queue,
		DefaultNamespace: cfg.DefaultNamespace,
		Logger:           logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	pool := ingest.NewPool(queue, cfg.Workers, svc.IngestTask, logger)
	svc.AttachPool(pool)

	facade, err := mcp.NewServer(mcp.NewServerRequest{
		Config: mcp.Config{
			Listen:          cfg.Listen,
			MCPPath:         cfg.MCPPath,
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
		Memory:        svc,
		Authenticator: authenticator,
		Policy:        policy,
		Logger:        logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Server{
		cfg:          cfg,
		logger:       logger,
		lifecycleLog: logfields.WithSubsystem(logger, "server.lifecycle"),
		store:        store,
		queue:        queue,
		pool:         pool,
		memory:       svc,
		facade:       facade,
	}, nil
}

// buildGate loads the keyring and policy table. With auth disabled both
// collaborators exist but the authenticator reports NotApplicable and
// the zero policy never runs.
func buildGate(cfg Config, logger pslog.Logger) (*auth.Authenticator, auth.Policy, error) {
	ring := auth.NewKeyring()
	if path := strings.TrimSpace(cfg.APIKeysFile); path != "" {
		loaded, err := auth.LoadKeyringFile(path)
		if err != nil {
			return nil, auth.Policy{}, err
		}
		ring = loaded
	}
	if inline := strings.TrimSpace(cfg.APIKeys); inline != "" {
		if err := auth.ParseKeyringEnv(ring, inline); err != nil {
			return nil, auth.Policy{}, err
		}
	}
	var policy auth.Policy
	if cfg.AuthEnabled {
		loaded, err := auth.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, auth.Policy{}, fmt.Errorf("policy: %w", err)
		}
		policy = loaded
		logger.Info("auth.gate.configured",
			"keys", ring.Len(),
			"roles", len(policy.Roles()))
	}
	return auth.NewAuthenticator(cfg.AuthEnabled, ring), policy, nil
}

// Run starts telemetry, the worker pool, and the MCP HTTP server, then
// blocks until ctx is cancelled or a component fails.
func (s *Server) Run(ctx context.Context) error {
	telemetry, err := setupTelemetry(ctx, telemetryConfig{
		OTLPEndpoint:     s.cfg.OTLPEndpoint,
		MetricsListen:    s.cfg.MetricsListen,
		PprofListen:      s.cfg.PprofListen,
		ProfilingMetrics: s.cfg.ProfilingMetrics,
	}, s.logger)
	if err != nil {
		return err
	}
	if telemetry != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
			defer cancel()
			_ = telemetry.Shutdown(shutdownCtx)
		}()
		if err := ingest.RegisterMetrics(otel.Meter("pkt.systems/engramd/internal/ingest"), s.queue, s.pool); err != nil {
			return err
		}
	}
	defer func() {
		_ = s.store.Close()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.pool.Run(runCtx); err != nil {
			errCh <- fmt.Errorf("ingest pool: %w", err)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.facade.Run(runCtx); err != nil {
			errCh <- fmt.Errorf("mcp server: %w", err)
			cancel()
		}
	}()

	s.lifecycleLog.Info("engramd started",
		"listen", s.cfg.Listen,
		"workers", s.cfg.Workers,
		"graph_url", s.cfg.GraphURL,
		"auth_enabled", s.cfg.AuthEnabled)

	<-runCtx.Done()
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	s.lifecycleLog.Info("engramd stopped")
	return nil
}
