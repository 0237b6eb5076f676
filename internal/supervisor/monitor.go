package supervisor

import (
	"context"
	"fmt"
	"time"

	"hermes/internal/executor"
	"hermes/internal/logging"
)

// NotifyFunc delivers a progress or alert message back to the task sender.
type NotifyFunc func(ctx context.Context, text string)

// Config tunes the heartbeat loop. Zero values fall back to the defaults.
type Config struct {
	HeartbeatInterval  time.Duration
	MaxInactivePeriods int
	// Thresholds replaces the built-in inactivity threshold for specific
	// task types.
	Thresholds map[TaskType]time.Duration
	// ThresholdOverride replaces the threshold for every task type when
	// set. Used for short-lived environments and tests.
	ThresholdOverride time.Duration
}

const (
	defaultHeartbeat          = 30 * time.Second
	defaultMaxInactivePeriods = 2
)

// MonitoredResult wraps an execution result with what the monitor observed.
type MonitoredResult struct {
	*executor.Result
	// TimedOut is set when the monitor killed the run for inactivity.
	TimedOut bool
	// InactiveSeconds is how long the run had been silent when killed.
	InactiveSeconds int
}

// Monitor supervises in-flight executor runs. A run is considered alive as
// long as its output keeps growing; after MaxInactivePeriods consecutive
// silent heartbeats AND the task-type threshold elapsing, the run is killed.
type Monitor struct {
	cfg    Config
	logger logging.Logger
}

func NewMonitor(cfg Config, logger logging.Logger) *Monitor {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.MaxInactivePeriods <= 0 {
		cfg.MaxInactivePeriods = defaultMaxInactivePeriods
	}
	return &Monitor{cfg: cfg, logger: logging.OrNop(logger)}
}

// Watch blocks until the run finishes or is killed for inactivity. Both
// conditions must hold before the kill: at least MaxInactivePeriods silent
// heartbeats in a row, and total silence at least the task-type threshold.
// A run that produces output is never killed, whatever its total runtime.
func (m *Monitor) Watch(ctx context.Context, run *executor.Run, taskType TaskType, notify NotifyFunc) *MonitoredResult {
	threshold := InactivityThreshold(taskType)
	if d, ok := m.cfg.Thresholds[taskType]; ok && d > 0 {
		threshold = d
	}
	if m.cfg.ThresholdOverride > 0 {
		threshold = m.cfg.ThresholdOverride
	}
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	lastLen := run.OutputLen()
	lastActivity := time.Now()
	inactivePeriods := 0

	for {
		select {
		case <-run.Done():
			return &MonitoredResult{Result: run.Result()}

		case <-ctx.Done():
			run.Cancel()
			<-run.Done()
			return &MonitoredResult{Result: run.Result()}

		case <-ticker.C:
			if n := run.OutputLen(); n > lastLen {
				lastLen = n
				lastActivity = time.Now()
				inactivePeriods = 0
				continue
			}
			inactivePeriods++
			inactive := time.Since(lastActivity)
			m.logger.Debug("monitor: silent heartbeat %d/%d, inactive %.0fs (threshold %.0fs, type %s)",
				inactivePeriods, m.cfg.MaxInactivePeriods, inactive.Seconds(), threshold.Seconds(), taskType)

			if inactivePeriods < m.cfg.MaxInactivePeriods || inactive < threshold {
				continue
			}

			seconds := int(inactive.Seconds())
			m.logger.Warn("monitor: killing stalled run, no output for %ds (type %s)", seconds, taskType)
			if notify != nil {
				notify(ctx, fmt.Sprintf("Task appears stalled (no output for %ds), interrupting it now.", seconds))
			}
			run.Cancel()
			<-run.Done()
			if notify != nil {
				notify(ctx, "Task interrupted. Partial output will be included in the report.")
			}

			result := run.Result()
			result.Success = false
			result.Error = fmt.Sprintf("no activity for %d seconds", seconds)
			return &MonitoredResult{Result: result, TimedOut: true, InactiveSeconds: seconds}
		}
	}
}
