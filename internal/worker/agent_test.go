// Package worker contains the claim-execute-report loop of the executor
// service.
package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brad-usredoxlabs/computable-lab/internal/runner"
	"github.com/brad-usredoxlabs/computable-lab/internal/task"
	"github.com/brad-usredoxlabs/computable-lab/pkg/api"
)

// ReportCall records one reporting-client call for assertions.
type ReportCall struct {
	Op          string
	TaskID      string
	Sequence    int
	Status      string
	FinalStatus task.FinalStatus
	Failure     *task.Failure
	EntryCount  int
}

// MockReporter implements Reporter for testing.
type MockReporter struct {
	mu sync.Mutex

	// ClaimFunc allows customizing ClaimTasks behavior per test.
	ClaimFunc func(ctx context.Context) ([]task.Task, error)

	// FailOn makes the named operation return a transport-style error.
	FailOn map[string]error

	Calls []ReportCall
}

func (m *MockReporter) record(call ReportCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

func (m *MockReporter) failure(op string) error {
	if m.FailOn == nil {
		return nil
	}
	return m.FailOn[op]
}

func (m *MockReporter) ClaimTasks(ctx context.Context) ([]task.Task, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx)
	}
	return nil, nil
}

func (m *MockReporter) Heartbeat(ctx context.Context, t *task.Task, sequence int, progress map[string]any) (*api.ReportAck, error) {
	if err := m.failure("heartbeat"); err != nil {
		return nil, err
	}
	m.record(ReportCall{Op: "heartbeat", TaskID: t.TaskID, Sequence: sequence})
	return &api.ReportAck{Success: true, Accepted: true}, nil
}

func (m *MockReporter) AppendLogs(ctx context.Context, t *task.Task, sequence int, entries []task.LogEntry) (*api.ReportAck, error) {
	if err := m.failure("logs"); err != nil {
		return nil, err
	}
	m.record(ReportCall{Op: "logs", TaskID: t.TaskID, Sequence: sequence, EntryCount: len(entries)})
	return &api.ReportAck{Success: true, Accepted: true}, nil
}

func (m *MockReporter) UpdateStatus(ctx context.Context, t *task.Task, sequence int, status string, failure *task.Failure, external map[string]any) (*api.ReportAck, error) {
	if err := m.failure("status"); err != nil {
		return nil, err
	}
	m.record(ReportCall{Op: "status", TaskID: t.TaskID, Sequence: sequence, Status: status, Failure: failure})
	return &api.ReportAck{Success: true, Accepted: true}, nil
}

func (m *MockReporter) Complete(ctx context.Context, t *task.Task, sequence int, finalStatus task.FinalStatus, artifacts []task.Artifact, measurements []task.Measurement) (*api.ReportAck, error) {
	if err := m.failure("complete"); err != nil {
		return nil, err
	}
	m.record(ReportCall{Op: "complete", TaskID: t.TaskID, Sequence: sequence, FinalStatus: finalStatus})
	return &api.ReportAck{Success: true, Accepted: true}, nil
}

func (m *MockReporter) ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		ops[i] = c.Op
	}
	return ops
}

// FuncRunner adapts a function to the runner.Runner interface.
type FuncRunner func(ctx context.Context, t *task.Task) (*task.Result, error)

func (f FuncRunner) Run(ctx context.Context, t *task.Task) (*task.Result, error) {
	return f(ctx, t)
}

func claimOnce(tasks ...task.Task) func(ctx context.Context) ([]task.Task, error) {
	claimed := false
	return func(ctx context.Context) ([]task.Task, error) {
		if claimed {
			return nil, nil
		}
		claimed = true
		return tasks, nil
	}
}

func newTestTask(id, adapterID string) task.Task {
	return task.Task{
		TaskID:         id,
		ExecutionRunID: "EXR-" + id,
		RobotPlanID:    "RP-" + id,
		AdapterID:      adapterID,
	}
}

func completedResult(logs []task.LogEntry) *task.Result {
	return &task.Result{
		FinalStatus: task.StatusCompleted,
		Logs:        logs,
		Artifacts:   []task.Artifact{{Role: "telemetry_csv", URI: "records/telemetry.csv"}},
	}
}

func equalOps(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRunCycle_SuccessPathWithLogs(t *testing.T) {
	reporter := &MockReporter{ClaimFunc: claimOnce(newTestTask("EXT-1", "integra_assist"))}
	registry := runner.NewRegistry()
	registry.Register("integra_assist", FuncRunner(func(ctx context.Context, tsk *task.Task) (*task.Result, error) {
		return completedResult([]task.LogEntry{{Message: "done"}}), nil
	}))

	agent := New(reporter, registry, AgentConfig{ExecutorID: "executor-test"}, nil)

	processed, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Errorf("expected processed count 1, got %d", processed)
	}

	if !equalOps(reporter.ops(), []string{"heartbeat", "logs", "status", "complete"}) {
		t.Fatalf("unexpected call order: %v", reporter.ops())
	}

	// Sequence numbers are exactly 1,2,3,4 with no gaps.
	for i, call := range reporter.Calls {
		if call.Sequence != i+1 {
			t.Errorf("call %s has sequence %d, want %d", call.Op, call.Sequence, i+1)
		}
	}

	statusCall := reporter.Calls[2]
	if statusCall.Status != "running" || statusCall.Failure != nil {
		t.Errorf("expected running status without failure, got %+v", statusCall)
	}
	if reporter.Calls[3].FinalStatus != task.StatusCompleted {
		t.Errorf("expected completed final status, got %s", reporter.Calls[3].FinalStatus)
	}
}

func TestRunCycle_SuccessPathWithoutLogs(t *testing.T) {
	reporter := &MockReporter{ClaimFunc: claimOnce(newTestTask("EXT-1", "integra_assist"))}
	registry := runner.NewRegistry()
	registry.Register("integra_assist", FuncRunner(func(ctx context.Context, tsk *task.Task) (*task.Result, error) {
		return &task.Result{FinalStatus: task.StatusCompleted}, nil
	}))

	agent := New(reporter, registry, AgentConfig{ExecutorID: "executor-test"}, nil)

	processed, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Errorf("expected processed count 1, got %d", processed)
	}

	// Empty logs: the logs call is skipped, sequence stays gap-free.
	if !equalOps(reporter.ops(), []string{"heartbeat", "status", "complete"}) {
		t.Fatalf("unexpected call order: %v", reporter.ops())
	}
	wantSeq := []int{1, 2, 3}
	for i, call := range reporter.Calls {
		if call.Sequence != wantSeq[i] {
			t.Errorf("call %s has sequence %d, want %d", call.Op, call.Sequence, wantSeq[i])
		}
	}
}

func TestRunCycle_ResultFailureStillCompletes(t *testing.T) {
	reporter := &MockReporter{ClaimFunc: claimOnce(newTestTask("EXT-1", "integra_assist"))}
	registry := runner.NewRegistry()
	registry.Register("integra_assist", FuncRunner(func(ctx context.Context, tsk *task.Task) (*task.Result, error) {
		return &task.Result{
			FinalStatus: task.StatusFailed,
			Failure:     &task.Failure{Code: "INSTRUMENT_FAULT", Class: "permanent", Message: "arm jammed"},
		}, nil
	}))

	agent := New(reporter, registry, AgentConfig{ExecutorID: "executor-test"}, nil)

	processed, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A failed result is still the success path of the loop: the runner
	// returned, so logs/status/complete are all reported.
	if processed != 1 {
		t.Errorf("expected processed count 1, got %d", processed)
	}

	if !equalOps(reporter.ops(), []string{"heartbeat", "status", "complete"}) {
		t.Fatalf("unexpected call order: %v", reporter.ops())
	}
	statusCall := reporter.Calls[1]
	if statusCall.Status != "failed" || statusCall.Failure == nil || statusCall.Failure.Code != "INSTRUMENT_FAULT" {
		t.Errorf("expected failed status with failure detail, got %+v", statusCall)
	}
	if reporter.Calls[2].FinalStatus != task.StatusFailed {
		t.Errorf("expected failed final status, got %s", reporter.Calls[2].FinalStatus)
	}
}

func TestRunCycle_Idle(t *testing.T) {
	reporter := &MockReporter{}
	agent := New(reporter, runner.NewRegistry(), AgentConfig{ExecutorID: "executor-test"}, nil)

	processed, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Errorf("expected processed count 0, got %d", processed)
	}
	if len(reporter.Calls) != 0 {
		t.Errorf("idle cycle must perform zero reporting calls, got %v", reporter.ops())
	}
}

func TestRunCycle_ClaimFailure(t *testing.T) {
	claimErr := errors.New("control plane error (503): unavailable")
	reporter := &MockReporter{ClaimFunc: func(ctx context.Context) ([]task.Task, error) {
		return nil, claimErr
	}}
	agent := New(reporter, runner.NewRegistry(), AgentConfig{ExecutorID: "executor-test"}, nil)

	processed, err := agent.RunCycle(context.Background())
	if !errors.Is(err, claimErr) {
		t.Errorf("expected claim error to surface, got %v", err)
	}
	if processed != 0 {
		t.Errorf("expected processed count 0, got %d", processed)
	}
}

func TestRunCycle_RunnerError(t *testing.T) {
	reporter := &MockReporter{ClaimFunc: claimOnce(newTestTask("EXT-1", "integra_assist"))}
	registry := runner.NewRegistry()
	registry.Register("integra_assist", FuncRunner(func(ctx context.Context, tsk *task.Task) (*task.Result, error) {
		return nil, errors.New("backend unreachable")
	}))

	agent := New(reporter, registry, AgentConfig{ExecutorID: "executor-test"}, nil)

	processed, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Errorf("expected processed count 0, got %d", processed)
	}

	// Failure path: heartbeat, then exactly one recovery status update.
	// No logs, no complete.
	if !equalOps(reporter.ops(), []string{"heartbeat", "status"}) {
		t.Fatalf("unexpected call order: %v", reporter.ops())
	}
	recovery := reporter.Calls[1]
	if recovery.Sequence != 999999 {
		t.Errorf("expected sentinel sequence 999999, got %d", recovery.Sequence)
	}
	if recovery.Status != "failed" {
		t.Errorf("expected failed status, got %s", recovery.Status)
	}
	if recovery.Failure == nil || recovery.Failure.Code != "EXECUTOR_EXCEPTION" || recovery.Failure.Class != "transient" {
		t.Errorf("unexpected recovery failure: %+v", recovery.Failure)
	}
}

func TestRunCycle_RunnerPanicIsContained(t *testing.T) {
	reporter := &MockReporter{ClaimFunc: claimOnce(newTestTask("EXT-1", "integra_assist"))}
	registry := runner.NewRegistry()
	registry.Register("integra_assist", FuncRunner(func(ctx context.Context, tsk *task.Task) (*task.Result, error) {
		panic("deck index out of range")
	}))

	agent := New(reporter, registry, AgentConfig{ExecutorID: "executor-test"}, nil)

	processed, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("panic must not escape the cycle: %v", err)
	}
	if processed != 0 {
		t.Errorf("expected processed count 0, got %d", processed)
	}
	if !equalOps(reporter.ops(), []string{"heartbeat", "status"}) {
		t.Fatalf("unexpected call order: %v", reporter.ops())
	}
}

func TestRunCycle_UnknownAdapter(t *testing.T) {
	reporter := &MockReporter{ClaimFunc: claimOnce(newTestTask("EXT-1", "x"))}
	agent := New(reporter, runner.NewRegistry(), AgentConfig{ExecutorID: "executor-test"}, nil)

	processed, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Errorf("expected processed count 0, got %d", processed)
	}

	var recoveries []ReportCall
	for _, call := range reporter.Calls {
		if call.Op == "status" {
			recoveries = append(recoveries, call)
		}
	}
	if len(recoveries) != 1 {
		t.Fatalf("expected exactly one status update, got %d", len(recoveries))
	}
	if recoveries[0].Sequence != 999999 || recoveries[0].Failure == nil || recoveries[0].Failure.Code != "EXECUTOR_EXCEPTION" {
		t.Errorf("unexpected recovery call: %+v", recoveries[0])
	}
}

func TestRunCycle_InvalidFinalStatusRejected(t *testing.T) {
	reporter := &MockReporter{ClaimFunc: claimOnce(newTestTask("EXT-1", "integra_assist"))}
	registry := runner.NewRegistry()
	registry.Register("integra_assist", FuncRunner(func(ctx context.Context, tsk *task.Task) (*task.Result, error) {
		return &task.Result{FinalStatus: "succeeded"}, nil
	}))

	agent := New(reporter, registry, AgentConfig{ExecutorID: "executor-test"}, nil)

	processed, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Errorf("an invalid final status must not count as processed, got %d", processed)
	}

	// The invalid status never reaches status/complete; only the
	// heartbeat and the recovery update go out.
	if !equalOps(reporter.ops(), []string{"heartbeat", "status"}) {
		t.Fatalf("unexpected call order: %v", reporter.ops())
	}
	if reporter.Calls[1].Sequence != 999999 {
		t.Errorf("expected recovery sequence, got %d", reporter.Calls[1].Sequence)
	}
}

func TestRunCycle_FailureIsolationBetweenTasks(t *testing.T) {
	reporter := &MockReporter{ClaimFunc: claimOnce(
		newTestTask("EXT-1", "integra_assist"),
		newTestTask("EXT-2", "integra_assist"),
	)}
	registry := runner.NewRegistry()
	registry.Register("integra_assist", FuncRunner(func(ctx context.Context, tsk *task.Task) (*task.Result, error) {
		if tsk.TaskID == "EXT-1" {
			return nil, errors.New("instrument offline")
		}
		return completedResult([]task.LogEntry{{Message: "ok"}}), nil
	}))

	agent := New(reporter, registry, AgentConfig{ExecutorID: "executor-test"}, nil)

	processed, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Errorf("expected processed count 1, got %d", processed)
	}

	want := []string{"heartbeat", "status", "heartbeat", "logs", "status", "complete"}
	if !equalOps(reporter.ops(), want) {
		t.Fatalf("unexpected call order: %v", reporter.ops())
	}

	// Both tasks are sequenced independently starting at 1.
	if reporter.Calls[0].TaskID != "EXT-1" || reporter.Calls[0].Sequence != 1 {
		t.Errorf("first task heartbeat: %+v", reporter.Calls[0])
	}
	if reporter.Calls[1].TaskID != "EXT-1" || reporter.Calls[1].Sequence != 999999 {
		t.Errorf("first task recovery: %+v", reporter.Calls[1])
	}
	if reporter.Calls[2].TaskID != "EXT-2" || reporter.Calls[2].Sequence != 1 {
		t.Errorf("second task heartbeat: %+v", reporter.Calls[2])
	}
	if reporter.Calls[5].TaskID != "EXT-2" || reporter.Calls[5].Sequence != 4 {
		t.Errorf("second task complete: %+v", reporter.Calls[5])
	}
}

func TestRunCycle_RecoveryFailureIsSwallowed(t *testing.T) {
	reporter := &MockReporter{
		ClaimFunc: claimOnce(
			newTestTask("EXT-1", "unknown"),
			newTestTask("EXT-2", "integra_assist"),
		),
		FailOn: map[string]error{"status": errors.New("control plane error (500): boom")},
	}
	registry := runner.NewRegistry()
	registry.Register("integra_assist", FuncRunner(func(ctx context.Context, tsk *task.Task) (*task.Result, error) {
		return &task.Result{FinalStatus: task.StatusCompleted}, nil
	}))

	agent := New(reporter, registry, AgentConfig{ExecutorID: "executor-test"}, nil)

	// Task 1 hits the recovery path whose status update fails; task 2's
	// own status update also fails, routing it through recovery too.
	// Neither may panic or abort the cycle.
	processed, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("recovery failure must be swallowed: %v", err)
	}
	if processed != 0 {
		t.Errorf("expected processed count 0, got %d", processed)
	}
}

func TestRunCycle_TransportErrorDuringReporting(t *testing.T) {
	reporter := &MockReporter{
		ClaimFunc: claimOnce(newTestTask("EXT-1", "integra_assist")),
		FailOn:    map[string]error{"complete": errors.New("control plane error (409): sequence rejected")},
	}
	registry := runner.NewRegistry()
	registry.Register("integra_assist", FuncRunner(func(ctx context.Context, tsk *task.Task) (*task.Result, error) {
		return &task.Result{FinalStatus: task.StatusCompleted}, nil
	}))

	agent := New(reporter, registry, AgentConfig{ExecutorID: "executor-test"}, nil)

	processed, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Errorf("a failed complete call must not count as processed, got %d", processed)
	}

	// heartbeat, status succeed; complete fails; recovery update follows.
	if !equalOps(reporter.ops(), []string{"heartbeat", "status", "status"}) {
		t.Fatalf("unexpected call order: %v", reporter.ops())
	}
	if reporter.Calls[2].Sequence != 999999 {
		t.Errorf("expected recovery sequence, got %d", reporter.Calls[2].Sequence)
	}
}

func TestRun_RunOnce(t *testing.T) {
	cycles := 0
	reporter := &MockReporter{ClaimFunc: func(ctx context.Context) ([]task.Task, error) {
		cycles++
		return nil, nil
	}}
	agent := New(reporter, runner.NewRegistry(), AgentConfig{ExecutorID: "executor-test", RunOnce: true}, nil)

	if err := agent.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cycles != 1 {
		t.Errorf("run-once mode must execute exactly one cycle, got %d", cycles)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	reporter := &MockReporter{}
	agent := New(reporter, runner.NewRegistry(), AgentConfig{ExecutorID: "executor-test", PollInterval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop after context cancellation")
	}
}

func TestNew_PollIntervalFloor(t *testing.T) {
	agent := New(&MockReporter{}, nil, AgentConfig{PollInterval: time.Millisecond}, nil)
	if agent.config.PollInterval != minPollInterval {
		t.Errorf("expected poll interval clamped to %v, got %v", minPollInterval, agent.config.PollInterval)
	}
}

func TestNew_DefaultPollInterval(t *testing.T) {
	agent := New(&MockReporter{}, nil, AgentConfig{}, nil)
	if agent.config.PollInterval != defaultPollInterval {
		t.Errorf("expected default poll interval %v, got %v", defaultPollInterval, agent.config.PollInterval)
	}
}
