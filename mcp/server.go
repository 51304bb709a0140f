package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pkt.systems/engramd/internal/auth"
	"pkt.systems/engramd/internal/logfields"
	"pkt.systems/engramd/internal/memory"
	"pkt.systems/engramd/internal/version"
	"pkt.systems/pslog"
)

// Config controls the MCP transport runtime behavior.
type Config struct {
	Listen          string
	MCPPath         string
	ShutdownTimeout time.Duration
}

// Server is the MCP facade service contract.
type Server interface {
	Run(context.Context) error
}

// NewServerRequest wraps constructor inputs.
type NewServerRequest struct {
	Config        Config
	Memory        *memory.Service
	Authenticator *auth.Authenticator
	Policy        auth.Policy
	Logger        pslog.Logger
}

type server struct {
	cfg          Config
	memory       *memory.Service
	authn        *auth.Authenticator
	policy       auth.Policy
	logger       pslog.Logger
	lifecycleLog pslog.Logger
	transportLog pslog.Logger
	authLog      pslog.Logger
	httpServer   *http.Server
	mcpHTTPPath  string
}

// NewServer constructs the engramd MCP facade service.
func NewServer(req NewServerRequest) (Server, error) {
	cfg := req.Config
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if req.Memory == nil {
		return nil, fmt.Errorf("mcp: memory service required")
	}
	if req.Authenticator == nil {
		return nil, fmt.Errorf("mcp: authenticator required")
	}

	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(os.Stderr).With("app", "engramd")
	}

	s := &server{
		cfg:          cfg,
		memory:       req.Memory,
		authn:        req.Authenticator,
		policy:       req.Policy,
		logger:       logger,
		lifecycleLog: logfields.WithSubsystem(logger, "server.lifecycle.mcp"),
		transportLog: logfields.WithSubsystem(logger, "mcp.transport.http"),
		authLog:      logfields.WithSubsystem(logger, "mcp.auth"),
		mcpHTTPPath:  cleanHTTPPath(cfg.MCPPath),
	}

	s.httpServer = &http.Server{
		Addr:    cfg.Listen,
		Handler: s.buildMux(),
	}
	return s, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.MCPPath) == "" {
		cfg.MCPPath = "/mcp"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("mcp: listen address required")
	}
	return nil
}

func cleanHTTPPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/mcp"
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return path.Clean(raw)
}

func (s *server) Run(ctx context.Context) error {
	s.lifecycleLog.Info("starting engramd MCP facade",
		"listen", s.cfg.Listen,
		"mcp_path", s.mcpHTTPPath,
		"auth_enabled", s.authn.Enabled())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.lifecycleLog.Info("engramd MCP facade stopped")
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *server) buildMux() *http.ServeMux {
	mcpSrv := s.buildMCPServer()

	streamable := mcpsdk.NewStreamableHTTPHandler(func(_ *http.Request) *mcpsdk.Server {
		return mcpSrv
	}, nil)

	mux := http.NewServeMux()
	mux.Handle(s.mcpHTTPPath, otelhttp.NewHandler(streamable, "mcp"))
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// buildMCPServer assembles the SDK server with both gate middlewares
// and the tool set. Split from buildMux so tests can drive it through
// an in-memory transport.
func (s *server) buildMCPServer() *mcpsdk.Server {
	mcpSrv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "engramd",
		Version: version.Current(),
	}, &mcpsdk.ServerOptions{
		Instructions: serverInstructions(),
	})
	mcpSrv.AddReceivingMiddleware(s.tracingMiddleware())
	mcpSrv.AddReceivingMiddleware(s.authenticationMiddleware)
	mcpSrv.AddReceivingMiddleware(s.authorizationMiddleware)
	s.registerTools(mcpSrv)
	return mcpSrv
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": version.Current(),
	})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.memory.Status(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !st.GraphReachable {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(st)
}

func (s *server) registerTools(srv *mcpsdk.Server) {
	desc := func(name string) string {
		description, ok := toolDescriptions[name]
		if !ok {
			panic(fmt.Sprintf("missing MCP tool description for %q", name))
		}
		return description
	}

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolAddContent,
		Description: desc(toolAddContent),
	}, withStructuredToolErrors(s.handleAddContentTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolSearchEntities,
		Description: desc(toolSearchEntities),
	}, withStructuredToolErrors(s.handleSearchEntitiesTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolSearchRelationships,
		Description: desc(toolSearchRelationships),
	}, withStructuredToolErrors(s.handleSearchRelationshipsTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolGetContentItems,
		Description: desc(toolGetContentItems),
	}, withStructuredToolErrors(s.handleGetContentItemsTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolGetRelationship,
		Description: desc(toolGetRelationship),
	}, withStructuredToolErrors(s.handleGetRelationshipTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolDeleteContentItem,
		Description: desc(toolDeleteContentItem),
	}, withStructuredToolErrors(s.handleDeleteContentItemTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolDeleteRelationship,
		Description: desc(toolDeleteRelationship),
	}, withStructuredToolErrors(s.handleDeleteRelationshipTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolClearNamespace,
		Description: desc(toolClearNamespace),
	}, withStructuredToolErrors(s.handleClearNamespaceTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolGetStatus,
		Description: desc(toolGetStatus),
	}, withStructuredToolErrors(s.handleGetStatusTool))
}
