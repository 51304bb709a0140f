package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/engramd"
	"pkt.systems/engramd/internal/logfields"
	"pkt.systems/pslog"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("ENGRAMD_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "engramd")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if err != context.Canceled {
			logfields.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
		}
		return 1
	}
	return 0
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "engramd",
		Short:         "engramd is an MCP memory server backed by a Redis knowledge graph",
		SilenceErrors: true,
		Example: `
  # Local Redis, no authentication
  engramd --graph-url redis://127.0.0.1:6379/0

  # Authenticated, with inline keys and a role policy table
  ENGRAMD_API_KEYS='tok-1=alice:admin,tok-2=bob:reader' \
    engramd --auth --policy-file /etc/engramd/policy.json

  # With a Prometheus scrape endpoint and OTLP tracing
  engramd --metrics-listen :9090 --otlp-endpoint grpc://otel-collector:4317
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := baseLogger
			cliLogger := logfields.WithSubsystem(logger, "cli.root")
			ctx := cmd.Context()
			cmd.SilenceUsage = true
			logfields.WithSubsystem(logger, "server.lifecycle.init").Info(
				"welcome to engramd",
				"pid", os.Getpid(),
				"uid", os.Getuid(),
				"gid", os.Getgid(),
			)

			configFile, err := loadConfigFile()
			if err != nil {
				return err
			}
			if configFile != "" {
				cliLogger.Info("loaded config file", "path", configFile)
			}

			var cfg engramd.Config
			bindConfig(&cfg)

			logLevel := strings.TrimSpace(viper.GetString("log-level"))
			if logLevel == "" {
				logLevel = "info"
			}
			if level, ok := pslog.ParseLevel(logLevel); ok {
				logger = logger.LogLevel(level)
			}

			server, err := engramd.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file")

	flags := cmd.Flags()
	flags.String("listen", engramd.DefaultListen, "MCP HTTP listen address")
	flags.String("mcp-path", engramd.DefaultMCPPath, "HTTP path serving the MCP endpoint")
	flags.StringP("default-namespace", "n", "", "namespace applied when callers omit one")
	flags.String("graph-url", engramd.DefaultGraphURL, "Redis URL of the knowledge graph store")
	flags.Int("workers", engramd.DefaultWorkers, "ingestion worker pool size")
	flags.Int("engine-max-concurrent", engramd.DefaultEngineMaxConcurrent, "maximum concurrent graph engine operations (0 disables the cap)")
	flags.Bool("auth", false, "require bearer token authentication on tool calls")
	flags.String("api-keys-file", "", "path to YAML keyring mapping bearer tokens to principals")
	flags.String("api-keys", "", "inline keyring entries (token=user:role, comma separated)")
	flags.String("policy-file", "", "path to JSON role policy table (required with --auth)")
	flags.String("metrics-listen", "", "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.String("pprof-listen", "", "pprof listen address (debug/pprof endpoints; empty disables)")
	flags.Bool("enable-profiling-metrics", false, "enable Go runtime profiling metrics on the Prometheus endpoint")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	flags.Duration("shutdown-timeout", engramd.DefaultShutdownTimeout, "graceful shutdown timeout")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	bindFlag := func(name string) {
		var flag *pflag.Flag
		if flag = flags.Lookup(name); flag == nil {
			flag = persistentFlags.Lookup(name)
		}
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("ENGRAMD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, name := range []string{
		"config",
		"listen", "mcp-path", "default-namespace", "graph-url",
		"workers", "engine-max-concurrent",
		"auth", "api-keys-file", "api-keys", "policy-file",
		"metrics-listen", "pprof-listen", "enable-profiling-metrics", "otlp-endpoint",
		"shutdown-timeout", "log-level",
	} {
		bindFlag(name)
	}

	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newPolicyCommand())
	cmd.AddCommand(newExportCommand(baseLogger))
	cmd.AddCommand(newImportCommand(baseLogger))

	return cmd
}

func bindConfig(cfg *engramd.Config) {
	cfg.Listen = viper.GetString("listen")
	cfg.MCPPath = viper.GetString("mcp-path")
	cfg.DefaultNamespace = viper.GetString("default-namespace")
	cfg.GraphURL = viper.GetString("graph-url")
	cfg.Workers = viper.GetInt("workers")
	cfg.EngineMaxConcurrent = viper.GetInt("engine-max-concurrent")
	cfg.AuthEnabled = viper.GetBool("auth")
	cfg.APIKeysFile = viper.GetString("api-keys-file")
	cfg.APIKeys = viper.GetString("api-keys")
	cfg.PolicyFile = viper.GetString("policy-file")
	cfg.MetricsListen = viper.GetString("metrics-listen")
	cfg.PprofListen = viper.GetString("pprof-listen")
	cfg.ProfilingMetrics = viper.GetBool("enable-profiling-metrics")
	cfg.OTLPEndpoint = viper.GetString("otlp-endpoint")
	cfg.ShutdownTimeout = viper.GetDuration("shutdown-timeout")
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	if cfgPath == "" {
		return "", nil
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}
