// Package worker contains the claim-execute-report loop of the executor
// service. One cycle claims tasks from the control plane, drives each
// through heartbeat/run/log/status/complete with a strictly increasing
// per-task sequence, and isolates failures so that one bad task never
// takes the cycle down.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/brad-usredoxlabs/computable-lab/internal/logger"
	"github.com/brad-usredoxlabs/computable-lab/internal/runner"
	"github.com/brad-usredoxlabs/computable-lab/internal/task"
	"github.com/brad-usredoxlabs/computable-lab/pkg/api"
)

const (
	defaultPollInterval = 2 * time.Second
	minPollInterval     = 100 * time.Millisecond

	// recoverySequence marks the best-effort failure report as outside
	// the task's normal sequence band.
	recoverySequence = 999999
)

// Reporter is the reporting-client surface the loop depends on. The
// concrete implementation lives in internal/client.
type Reporter interface {
	ClaimTasks(ctx context.Context) ([]task.Task, error)
	Heartbeat(ctx context.Context, t *task.Task, sequence int, progress map[string]any) (*api.ReportAck, error)
	AppendLogs(ctx context.Context, t *task.Task, sequence int, entries []task.LogEntry) (*api.ReportAck, error)
	UpdateStatus(ctx context.Context, t *task.Task, sequence int, status string, failure *task.Failure, external map[string]any) (*api.ReportAck, error)
	Complete(ctx context.Context, t *task.Task, sequence int, finalStatus task.FinalStatus, artifacts []task.Artifact, measurements []task.Measurement) (*api.ReportAck, error)
}

// AgentConfig holds configuration for the claim-loop agent.
type AgentConfig struct {
	ExecutorID   string
	PollInterval time.Duration
	RunOnce      bool
}

// Agent runs the claim loop. Exactly one cycle, and within a cycle
// exactly one task, is in flight at any time; sequence ordering per task
// depends on it.
type Agent struct {
	client   Reporter
	registry *runner.Registry
	config   AgentConfig
	logger   *slog.Logger

	tasksProcessed metric.Int64Counter
	tasksFailed    metric.Int64Counter
	claimFailures  metric.Int64Counter
}

// New creates a new claim-loop agent.
func New(client Reporter, registry *runner.Registry, cfg AgentConfig, log *slog.Logger) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollInterval < minPollInterval {
		cfg.PollInterval = minPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = runner.NewRegistry()
	}

	meter := otel.Meter("executor-agent")
	tasksProcessed, _ := meter.Int64Counter("executor.tasks.processed")
	tasksFailed, _ := meter.Int64Counter("executor.tasks.failed")
	claimFailures, _ := meter.Int64Counter("executor.claim.failures")

	return &Agent{
		client:         client,
		registry:       registry,
		config:         cfg,
		logger:         log,
		tasksProcessed: tasksProcessed,
		tasksFailed:    tasksFailed,
		claimFailures:  claimFailures,
	}
}

// Run executes cycles until the context is cancelled, sleeping the poll
// interval between cycles. In run-once mode it executes exactly one
// cycle and returns. A claim failure is terminal; per-task failures are
// not.
func (a *Agent) Run(ctx context.Context) error {
	for {
		if _, err := a.RunCycle(ctx); err != nil {
			return err
		}
		if a.config.RunOnce {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.config.PollInterval):
		}
	}
}

// RunCycle performs one polling cycle and returns the number of tasks
// that completed without entering the recovery path.
func (a *Agent) RunCycle(ctx context.Context) (int, error) {
	tasks, err := a.client.ClaimTasks(ctx)
	if err != nil {
		a.claimFailures.Add(ctx, 1)
		return 0, fmt.Errorf("claim failed: %w", err)
	}

	if len(tasks) == 0 {
		a.logger.Info("idle", "executor_id", a.config.ExecutorID)
		return 0, nil
	}

	processed := 0
	for i := range tasks {
		t := &tasks[i]
		if err := a.processTask(ctx, t); err != nil {
			a.logger.Error("task error",
				"executor_id", a.config.ExecutorID,
				"task_id", t.TaskID,
				"execution_run_id", t.ExecutionRunID,
				"error", err.Error(),
			)
			a.tasksFailed.Add(ctx, 1)
			a.recoverTask(ctx, t, err)
			continue
		}
		processed++
		a.tasksProcessed.Add(ctx, 1)
	}
	return processed, nil
}

// processTask drives one task through the reporting sequence. Any error
// aborts the task's cycle; the caller issues the recovery report.
func (a *Agent) processTask(ctx context.Context, t *task.Task) error {
	tracer := otel.Tracer("executor-agent")
	ctx, span := tracer.Start(ctx, "process_task",
		trace.WithAttributes(
			attribute.String("task.id", t.TaskID),
			attribute.String("execution_run.id", t.ExecutionRunID),
			attribute.String("robot_plan.id", t.RobotPlanID),
			attribute.String("adapter.id", t.AdapterID),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	ctx = logger.WithTaskID(ctx, t.TaskID)

	a.logger.Info("task claimed",
		"executor_id", a.config.ExecutorID,
		"task_id", t.TaskID,
		"execution_run_id", t.ExecutionRunID,
		"adapter_id", t.AdapterID,
	)

	seq := 1
	if _, err := a.client.Heartbeat(ctx, t, seq, map[string]any{"state": "starting"}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("heartbeat: %w", err)
	}
	seq++

	rn, err := a.registry.Get(t.AdapterID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	result, err := a.invoke(ctx, rn, t)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("runner %s: %w", t.AdapterID, err)
	}
	if !result.FinalStatus.Valid() {
		err := fmt.Errorf("runner %s returned invalid final status %q", t.AdapterID, result.FinalStatus)
		span.RecordError(err)
		return err
	}

	if len(result.Logs) > 0 {
		if _, err := a.client.AppendLogs(ctx, t, seq, result.Logs); err != nil {
			span.RecordError(err)
			return fmt.Errorf("append logs: %w", err)
		}
		seq++
	}

	status := "running"
	if result.Failure != nil {
		status = "failed"
	}
	if _, err := a.client.UpdateStatus(ctx, t, seq, status, result.Failure, result.External); err != nil {
		span.RecordError(err)
		return fmt.Errorf("update status: %w", err)
	}
	seq++

	if _, err := a.client.Complete(ctx, t, seq, result.FinalStatus, result.Artifacts, result.Measurements); err != nil {
		span.RecordError(err)
		return fmt.Errorf("complete: %w", err)
	}

	span.SetAttributes(attribute.String("task.final_status", string(result.FinalStatus)))
	a.logger.Info("task completed",
		"executor_id", a.config.ExecutorID,
		"task_id", t.TaskID,
		"execution_run_id", t.ExecutionRunID,
		"final_status", string(result.FinalStatus),
	)
	return nil
}

// invoke runs the runner, containing panics at the adapter boundary.
func (a *Agent) invoke(ctx context.Context, rn runner.Runner, t *task.Task) (result *task.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("runner panic: %v", r)
		}
	}()

	result, err = rn.Run(ctx, t)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("runner returned no result")
	}
	return result, nil
}

// recoverTask issues the single best-effort failure report. Its own
// failure is discarded so a broken control plane cannot abort the cycle.
func (a *Agent) recoverTask(ctx context.Context, t *task.Task, cause error) {
	failure := &task.Failure{
		Code:    "EXECUTOR_EXCEPTION",
		Class:   "transient",
		Message: cause.Error(),
	}
	if _, err := a.client.UpdateStatus(ctx, t, recoverySequence, "failed", failure, nil); err != nil {
		// Best effort only; the lease timeout covers the rest.
		a.logger.Warn("recovery report failed",
			"task_id", t.TaskID,
			"error", err.Error(),
		)
	}
}
