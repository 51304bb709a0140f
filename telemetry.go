package engramd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"pkt.systems/engramd/internal/logfields"
	"pkt.systems/engramd/internal/version"
	"pkt.systems/pslog"
)

type telemetryConfig struct {
	OTLPEndpoint     string
	MetricsListen    string
	PprofListen      string
	ProfilingMetrics bool
}

func (c telemetryConfig) enabled() bool {
	return strings.TrimSpace(c.OTLPEndpoint) != "" ||
		strings.TrimSpace(c.MetricsListen) != "" ||
		strings.TrimSpace(c.PprofListen) != ""
}

// telemetryBundle owns the OTel providers and the auxiliary HTTP
// listeners (Prometheus scrape endpoint, pprof). Shutdown flushes
// exporters and stops the listeners.
type telemetryBundle struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	servers        []*http.Server
	logger         pslog.Logger
}

func (b *telemetryBundle) Shutdown(ctx context.Context) error {
	if b == nil {
		return nil
	}
	var firstErr error
	for _, srv := range b.servers {
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.meterProvider != nil {
		if err := b.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.tracerProvider != nil {
		if err := b.tracerProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type otelErrorHandler struct {
	logger pslog.Logger
}

func (h otelErrorHandler) Handle(err error) {
	if err == nil {
		return
	}
	h.logger.Warn("telemetry.otel.error", "error", err.Error())
}

var runtimeMetricsOnce sync.Once

// setupTelemetry configures tracing and metrics according to cfg.
// Everything is optional; with no endpoint and no listeners it returns
// (nil, nil) and the process runs without instrumentation.
func setupTelemetry(ctx context.Context, cfg telemetryConfig, logger pslog.Logger) (*telemetryBundle, error) {
	if !cfg.enabled() {
		return nil, nil
	}
	log := logfields.WithSubsystem(logger, "telemetry")
	otel.SetErrorHandler(otelErrorHandler{logger: log})
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("engramd"),
		semconv.ServiceVersion(version.Current()),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	bundle := &telemetryBundle{logger: log}

	if target := strings.TrimSpace(cfg.OTLPEndpoint); target != "" {
		tp, err := setupTracing(ctx, target, res)
		if err != nil {
			return nil, err
		}
		bundle.tracerProvider = tp
		otel.SetTracerProvider(tp)
		log.Info("telemetry.tracing.enabled", "endpoint", target)
	}

	if listen := strings.TrimSpace(cfg.MetricsListen); listen != "" {
		registry := prometheus.NewRegistry()
		opts := []otelprometheus.Option{otelprometheus.WithRegisterer(registry)}
		if cfg.ProfilingMetrics {
			opts = append(opts, otelprometheus.WithProducer(otelruntime.NewProducer()))
		}
		exporter, err := otelprometheus.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		bundle.meterProvider = mp
		otel.SetMeterProvider(mp)
		if cfg.ProfilingMetrics {
			startRuntimeMetrics(log)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		bundle.servers = append(bundle.servers, startAuxServer(listen, mux, "metrics", log))
	}

	if listen := strings.TrimSpace(cfg.PprofListen); listen != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		bundle.servers = append(bundle.servers, startAuxServer(listen, mux, "pprof", log))
	}

	return bundle, nil
}

func startRuntimeMetrics(log pslog.Logger) {
	runtimeMetricsOnce.Do(func() {
		if err := otelruntime.Start(otelruntime.WithMinimumReadMemStatsInterval(10 * time.Second)); err != nil {
			log.Warn("telemetry.runtime_metrics.failed", "error", err.Error())
		}
	})
}

func startAuxServer(listen string, handler http.Handler, name string, log pslog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("telemetry.listener.start", "name", name, "listen", listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("telemetry.listener.failed", "name", name, "error", err.Error())
		}
	}()
	return srv
}

// otlpTarget is a resolved trace exporter destination.
type otlpTarget struct {
	scheme   string
	hostPort string
	insecure bool
}

// resolveOTLPTarget accepts "host:port", "grpc://", "grpcs://",
// "http://" and "https://" endpoints. A bare host:port means insecure
// gRPC; missing ports default to 4317 for gRPC and 4318 for HTTP.
func resolveOTLPTarget(endpoint string) (otlpTarget, error) {
	raw := strings.TrimSpace(endpoint)
	if raw == "" {
		return otlpTarget{}, fmt.Errorf("empty otlp endpoint")
	}
	if !strings.Contains(raw, "://") {
		return otlpTarget{scheme: "grpc", hostPort: withDefaultPort(raw, "4317"), insecure: true}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return otlpTarget{}, fmt.Errorf("parse otlp endpoint %q: %w", raw, err)
	}
	switch u.Scheme {
	case "grpc":
		return otlpTarget{scheme: "grpc", hostPort: withDefaultPort(u.Host, "4317"), insecure: true}, nil
	case "grpcs":
		return otlpTarget{scheme: "grpc", hostPort: withDefaultPort(u.Host, "4317")}, nil
	case "http":
		return otlpTarget{scheme: "http", hostPort: withDefaultPort(u.Host, "4318"), insecure: true}, nil
	case "https":
		return otlpTarget{scheme: "http", hostPort: withDefaultPort(u.Host, "4318")}, nil
	default:
		return otlpTarget{}, fmt.Errorf("unsupported otlp scheme %q", u.Scheme)
	}
}

func withDefaultPort(hostPort, port string) string {
	if strings.Contains(hostPort, ":") {
		return hostPort
	}
	return hostPort + ":" + port
}

func setupTracing(ctx context.Context, endpoint string, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	target, err := resolveOTLPTarget(endpoint)
	if err != nil {
		return nil, err
	}
	var exporter *otlptrace.Exporter
	switch target.scheme {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target.hostPort)}
		if target.insecure {
			opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		} else {
			opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(
				credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}))))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(target.hostPort)}
		if target.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1.0))),
		sdktrace.WithBatcher(exporter),
	), nil
}
