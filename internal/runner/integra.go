package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/brad-usredoxlabs/computable-lab/internal/deck"
	"github.com/brad-usredoxlabs/computable-lab/internal/logger"
	"github.com/brad-usredoxlabs/computable-lab/internal/task"
)

// AdapterIntegraAssist is the adapter id the INTEGRA runner serves.
const AdapterIntegraAssist = "integra_assist"

// IntegraConfig configures the INTEGRA Assist runner.
type IntegraConfig struct {
	// Backend selects "simulate" or "bridge".
	Backend string

	// ForceSimulate runs the simulation regardless of backend. A truthy
	// "simulate" runtime parameter on the task has the same effect.
	ForceSimulate bool

	// SimDelay is how long the simulated run takes.
	SimDelay time.Duration

	// BridgeCommand, when set, is executed with the task JSON on stdin
	// and must print a result JSON object on stdout. When empty the
	// bridge backend falls back to the builtin deck mapper.
	BridgeCommand string
	BridgeTimeout time.Duration

	// Deck mapping inputs for the builtin bridge path.
	RecordsRoot string
	Layout      *deck.Layout
}

// Backend names.
const (
	BackendSimulate = "simulate"
	BackendBridge   = "bridge"
)

// IntegraRunner drives the INTEGRA Assist instrument, either through a
// local simulation or through a bridge process / deck mapping.
type IntegraRunner struct {
	cfg    IntegraConfig
	mapper *deck.Mapper
	logger *slog.Logger
}

// NewIntegra creates the INTEGRA Assist runner.
func NewIntegra(cfg IntegraConfig, log *slog.Logger) *IntegraRunner {
	if cfg.Backend == "" {
		cfg.Backend = BackendSimulate
	}
	if cfg.SimDelay <= 0 {
		cfg.SimDelay = 300 * time.Millisecond
	}
	if cfg.BridgeTimeout <= 0 {
		cfg.BridgeTimeout = 120 * time.Second
	}
	if cfg.Layout == nil {
		cfg.Layout = &deck.Layout{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &IntegraRunner{
		cfg:    cfg,
		mapper: &deck.Mapper{RecordsRoot: cfg.RecordsRoot, Layout: cfg.Layout},
		logger: log,
	}
}

// Run implements the Runner contract.
func (r *IntegraRunner) Run(ctx context.Context, t *task.Task) (*task.Result, error) {
	simulate := r.cfg.ForceSimulate || task.BoolParam(t.RuntimeParameters, "simulate")

	if r.cfg.Backend == BackendBridge && !simulate {
		result, err := r.runBridge(ctx, t)
		if err != nil {
			// A bridge failure is a failed result, not a loop-level
			// error; the instrument side already gave up on the task.
			return bridgeFailure(err), nil
		}
		return result, nil
	}

	return r.simulateRun(ctx, t)
}

func (r *IntegraRunner) simulateRun(ctx context.Context, t *task.Task) (*task.Result, error) {
	log := logger.FromContext(ctx, r.logger)
	log.Debug("simulating INTEGRA run", "robot_plan_id", t.RobotPlanID, "delay", r.cfg.SimDelay)

	timer := time.NewTimer(r.cfg.SimDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return &task.Result{
		FinalStatus: task.StatusCompleted,
		Logs: []task.LogEntry{{
			Message: fmt.Sprintf("Simulated INTEGRA run for %s", t.RobotPlanID),
			Level:   "info",
			Code:    "SIMULATED_RUN",
			Data: map[string]any{
				"adapter": t.AdapterID,
				"taskId":  t.TaskID,
				"backend": r.cfg.Backend,
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
		Artifacts: []task.Artifact{{
			Role: "telemetry_csv",
			URI:  fmt.Sprintf("records/artifacts/%s/telemetry.csv", t.ExecutionRunID),
		}},
		External: map[string]any{
			"runId":     "sim-" + t.TaskID,
			"rawStatus": "completed",
		},
	}, nil
}

func (r *IntegraRunner) runBridge(ctx context.Context, t *task.Task) (*task.Result, error) {
	if r.cfg.BridgeCommand == "" {
		return r.mapper.MapTask(ctx, t)
	}

	log := logger.FromContext(ctx, r.logger)
	log.Debug("running INTEGRA bridge command", "command", r.cfg.BridgeCommand)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.BridgeTimeout)
	defer cancel()

	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task for bridge: %w", err)
	}

	parts := strings.Fields(r.cfg.BridgeCommand)
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("bridge command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, fmt.Errorf("bridge command returned empty stdout")
	}
	return CoerceResult(out)
}

// CoerceResult parses and validates a result JSON object produced by a
// bridge process. Any final status outside the terminal set is rejected
// before the result can reach the reporting client.
func CoerceResult(data []byte) (*task.Result, error) {
	var result task.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("bridge output was not valid result JSON: %w", err)
	}
	if _, err := task.ParseFinalStatus(string(result.FinalStatus)); err != nil {
		return nil, fmt.Errorf("bridge output: %w", err)
	}
	for i := range result.Logs {
		if result.Logs[i].Level == "" {
			result.Logs[i].Level = task.DefaultLogLevel
		}
	}
	return &result, nil
}

func bridgeFailure(err error) *task.Result {
	now := time.Now().UTC().Format(time.RFC3339)
	return &task.Result{
		FinalStatus: task.StatusFailed,
		Logs: []task.LogEntry{{
			Message:   fmt.Sprintf("bridge execution failed: %v", err),
			Level:     "error",
			Code:      "BRIDGE_EXECUTION_FAILED",
			Timestamp: now,
		}},
		Failure: &task.Failure{
			Code:    "BRIDGE_EXECUTION_FAILED",
			Class:   "transient",
			Message: err.Error(),
		},
	}
}
