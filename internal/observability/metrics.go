// Package observability wires OpenTelemetry metrics (exported to
// Prometheus) and distributed tracing for the engine.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"hermes/internal/logging"
)

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// Metrics records engine-level counters and latencies. A disabled
// collector is a valid no-op value; every Record method tolerates it.
type Metrics struct {
	meter  metric.Meter
	logger logging.Logger

	tasksReceived  metric.Int64Counter
	tasksFinished  metric.Int64Counter
	taskDuration   metric.Float64Histogram
	queueDepth     metric.Int64UpDownCounter
	llmRequests    metric.Int64Counter
	llmTokens      metric.Int64Counter
	llmLatency     metric.Float64Histogram
	execRuns       metric.Int64Counter
	execDuration   metric.Float64Histogram
	monitorKills   metric.Int64Counter
	skillHits      metric.Int64Counter
	channelErrors  metric.Int64Counter
	metricsServer  *http.Server
}

// NewMetrics builds the collector and, when a port is configured, starts
// the Prometheus scrape endpoint.
func NewMetrics(config MetricsConfig, logger logging.Logger) (*Metrics, error) {
	m := &Metrics{logger: logging.OrNop(logger)}
	if !config.Enabled {
		return m, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	m.meter = provider.Meter("hermes")

	if err := m.createInstruments(); err != nil {
		return nil, err
	}
	if config.PrometheusPort > 0 {
		m.startServer(config.PrometheusPort)
	}
	return m, nil
}

func (m *Metrics) createInstruments() error {
	var err error
	if m.tasksReceived, err = m.meter.Int64Counter("hermes.tasks.received.total",
		metric.WithDescription("Tasks accepted from channels"), metric.WithUnit("{task}")); err != nil {
		return fmt.Errorf("create tasks_received counter: %w", err)
	}
	if m.tasksFinished, err = m.meter.Int64Counter("hermes.tasks.finished.total",
		metric.WithDescription("Tasks reaching a terminal status"), metric.WithUnit("{task}")); err != nil {
		return fmt.Errorf("create tasks_finished counter: %w", err)
	}
	if m.taskDuration, err = m.meter.Float64Histogram("hermes.tasks.duration",
		metric.WithDescription("End-to-end task duration in seconds"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("create task_duration histogram: %w", err)
	}
	if m.queueDepth, err = m.meter.Int64UpDownCounter("hermes.queue.depth",
		metric.WithDescription("Tasks waiting in the queue"), metric.WithUnit("{task}")); err != nil {
		return fmt.Errorf("create queue_depth gauge: %w", err)
	}
	if m.llmRequests, err = m.meter.Int64Counter("hermes.llm.requests.total",
		metric.WithDescription("LLM requests"), metric.WithUnit("{request}")); err != nil {
		return fmt.Errorf("create llm_requests counter: %w", err)
	}
	if m.llmTokens, err = m.meter.Int64Counter("hermes.llm.tokens.total",
		metric.WithDescription("Total tokens exchanged with the LLM"), metric.WithUnit("{token}")); err != nil {
		return fmt.Errorf("create llm_tokens counter: %w", err)
	}
	if m.llmLatency, err = m.meter.Float64Histogram("hermes.llm.latency",
		metric.WithDescription("LLM request latency in seconds"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("create llm_latency histogram: %w", err)
	}
	if m.execRuns, err = m.meter.Int64Counter("hermes.executor.runs.total",
		metric.WithDescription("Executor subprocess launches"), metric.WithUnit("{run}")); err != nil {
		return fmt.Errorf("create exec_runs counter: %w", err)
	}
	if m.execDuration, err = m.meter.Float64Histogram("hermes.executor.duration",
		metric.WithDescription("Executor run duration in seconds"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("create exec_duration histogram: %w", err)
	}
	if m.monitorKills, err = m.meter.Int64Counter("hermes.supervisor.kills.total",
		metric.WithDescription("Runs killed for inactivity"), metric.WithUnit("{run}")); err != nil {
		return fmt.Errorf("create monitor_kills counter: %w", err)
	}
	if m.skillHits, err = m.meter.Int64Counter("hermes.skills.hits.total",
		metric.WithDescription("Prompts answered by a local skill"), metric.WithUnit("{hit}")); err != nil {
		return fmt.Errorf("create skill_hits counter: %w", err)
	}
	if m.channelErrors, err = m.meter.Int64Counter("hermes.channels.errors.total",
		metric.WithDescription("Channel adapter errors"), metric.WithUnit("{error}")); err != nil {
		return fmt.Errorf("create channel_errors counter: %w", err)
	}
	return nil
}

func (m *Metrics) startServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	m.metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		m.logger.Info("metrics: prometheus endpoint listening on :%d", port)
		if err := m.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics: server error: %v", err)
		}
	}()
}

// Shutdown stops the scrape endpoint.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m != nil && m.metricsServer != nil {
		return m.metricsServer.Shutdown(ctx)
	}
	return nil
}

// RecordTaskReceived counts a task accepted from a channel.
func (m *Metrics) RecordTaskReceived(ctx context.Context, channel string) {
	if m == nil || m.tasksReceived == nil {
		return
	}
	m.tasksReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
	m.queueDepth.Add(ctx, 1)
}

// RecordTaskFinished counts a terminal task and its duration.
func (m *Metrics) RecordTaskFinished(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.tasksFinished == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.tasksFinished.Add(ctx, 1, attrs)
	m.taskDuration.Record(ctx, duration.Seconds(), attrs)
	m.queueDepth.Add(ctx, -1)
}

// RecordLLMRequest counts one completion round trip.
func (m *Metrics) RecordLLMRequest(ctx context.Context, status string, latency time.Duration, totalTokens int) {
	if m == nil || m.llmRequests == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.llmRequests.Add(ctx, 1, attrs)
	m.llmLatency.Record(ctx, latency.Seconds(), attrs)
	if totalTokens > 0 {
		m.llmTokens.Add(ctx, int64(totalTokens))
	}
}

// RecordExecution counts an executor run.
func (m *Metrics) RecordExecution(ctx context.Context, success bool, duration time.Duration) {
	if m == nil || m.execRuns == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.execRuns.Add(ctx, 1, attrs)
	m.execDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordMonitorKill counts a run killed for inactivity.
func (m *Metrics) RecordMonitorKill(ctx context.Context, taskType string) {
	if m == nil || m.monitorKills == nil {
		return
	}
	m.monitorKills.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", taskType)))
}

// RecordSkillHit counts a prompt intercepted by a local skill.
func (m *Metrics) RecordSkillHit(ctx context.Context, skill string) {
	if m == nil || m.skillHits == nil {
		return
	}
	m.skillHits.Add(ctx, 1, metric.WithAttributes(attribute.String("skill", skill)))
}

// RecordChannelError counts a channel adapter failure.
func (m *Metrics) RecordChannelError(ctx context.Context, channel string) {
	if m == nil || m.channelErrors == nil {
		return
	}
	m.channelErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}
