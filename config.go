package engramd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pkt.systems/engramd/namespaces"
)

// Defaults applied by ApplyDefaults when the corresponding Config field
// is zero.
const (
	// DefaultListen is the MCP HTTP listen address.
	DefaultListen = ":9732"
	// DefaultMCPPath is the streamable HTTP mount point.
	DefaultMCPPath = "/mcp"
	// DefaultWorkers sizes the ingestion worker pool.
	DefaultWorkers = 4
	// DefaultEngineMaxConcurrent caps concurrent graph engine calls.
	DefaultEngineMaxConcurrent = 10
	// DefaultGraphURL targets a local Redis-protocol graph store.
	DefaultGraphURL = "redis://127.0.0.1:6379/0"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Config carries every engramd setting. Zero values mean "use default";
// ApplyDefaults fills them in before Validate runs.
type Config struct {
	// Listen is the MCP HTTP listen address.
	Listen string `yaml:"listen"`
	// MCPPath is the HTTP path the MCP handler mounts on.
	MCPPath string `yaml:"mcp-path"`
	// DefaultNamespace applies when tool calls omit a namespace.
	DefaultNamespace string `yaml:"default-namespace"`
	// GraphURL is the Redis-protocol URL of the graph store.
	GraphURL string `yaml:"graph-url"`
	// Workers sizes the ingestion worker pool.
	Workers int `yaml:"workers"`
	// EngineMaxConcurrent caps concurrent calls into the graph engine,
	// independent of the worker pool.
	EngineMaxConcurrent int `yaml:"engine-max-concurrent"`
	// AuthEnabled turns the bearer-token gate on.
	AuthEnabled bool `yaml:"auth"`
	// APIKeysFile points to the YAML keyring.
	APIKeysFile string `yaml:"api-keys-file"`
	// APIKeys holds inline "token=user:role" entries, merged with the
	// keyring file. Intended for the ENGRAMD_API_KEYS environment alias.
	APIKeys string `yaml:"api-keys"`
	// PolicyFile points to the JSON role policy table. Required when
	// AuthEnabled is set; a load failure aborts startup.
	PolicyFile string `yaml:"policy-file"`
	// MetricsListen enables the Prometheus scrape endpoint when set.
	MetricsListen string `yaml:"metrics-listen"`
	// PprofListen enables the pprof debug server when set.
	PprofListen string `yaml:"pprof-listen"`
	// OTLPEndpoint enables OTLP trace export when set. Accepts
	// host[:port] or grpc://, grpcs://, http://, https:// URLs.
	OTLPEndpoint string `yaml:"otlp-endpoint"`
	// ProfilingMetrics adds Go runtime metrics to the scrape endpoint.
	ProfilingMetrics bool `yaml:"enable-profiling-metrics"`
	// ShutdownTimeout bounds graceful shutdown of the HTTP servers.
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}
	if strings.TrimSpace(c.MCPPath) == "" {
		c.MCPPath = DefaultMCPPath
	}
	if strings.TrimSpace(c.DefaultNamespace) == "" {
		c.DefaultNamespace = namespaces.Default
	}
	if strings.TrimSpace(c.GraphURL) == "" {
		c.GraphURL = DefaultGraphURL
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.EngineMaxConcurrent <= 0 {
		c.EngineMaxConcurrent = DefaultEngineMaxConcurrent
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("config: listen address required")
	}
	if strings.TrimSpace(c.GraphURL) == "" {
		return fmt.Errorf("config: graph url required")
	}
	if err := namespaces.Validate(c.DefaultNamespace); err != nil {
		return fmt.Errorf("config: default namespace: %w", err)
	}
	if c.AuthEnabled {
		if strings.TrimSpace(c.PolicyFile) == "" {
			return fmt.Errorf("config: auth enabled but no policy file configured")
		}
		if strings.TrimSpace(c.APIKeysFile) == "" && strings.TrimSpace(c.APIKeys) == "" {
			return fmt.Errorf("config: auth enabled but no api keys configured")
		}
	}
	return nil
}

// LoadConfigFile reads a YAML config file into cfg, overwriting only
// the fields the file sets.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
