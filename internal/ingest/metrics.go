package ingest

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// RegisterMetrics exposes queue depth and worker gauges on meter. The
// gauges read live state on each scrape instead of counting events.
func RegisterMetrics(meter metric.Meter, queue *Queue, pool *Pool) error {
	queued, err := meter.Int64ObservableGauge("engramd_ingest_queued_tasks",
		metric.WithDescription("Tasks waiting across all namespace lanes."))
	if err != nil {
		return fmt.Errorf("queued gauge: %w", err)
	}
	active, err := meter.Int64ObservableGauge("engramd_ingest_active_namespaces",
		metric.WithDescription("Namespaces with queued or running work."))
	if err != nil {
		return fmt.Errorf("active gauge: %w", err)
	}
	inFlight, err := meter.Int64ObservableGauge("engramd_ingest_inflight_namespaces",
		metric.WithDescription("Namespaces with a task currently running."))
	if err != nil {
		return fmt.Errorf("inflight gauge: %w", err)
	}
	busy, err := meter.Int64ObservableGauge("engramd_ingest_busy_workers",
		metric.WithDescription("Pool workers currently executing a task."))
	if err != nil {
		return fmt.Errorf("busy gauge: %w", err)
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := queue.Stats()
		o.ObserveInt64(queued, int64(stats.QueuedTasks))
		o.ObserveInt64(active, int64(stats.ActiveNamespaces))
		o.ObserveInt64(inFlight, int64(stats.InFlight))
		o.ObserveInt64(busy, int64(pool.Busy()))
		return nil
	}, queued, active, inFlight, busy)
	if err != nil {
		return fmt.Errorf("register callback: %w", err)
	}
	return nil
}
