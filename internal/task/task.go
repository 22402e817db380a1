// Package task defines the execution-task data model: the unit of work
// leased from the control plane and the result a runner produces for it.
// JSON tags use snake_case; this is the on-disk / bridge-process form of
// a task, distinct from the camelCase wire protocol in pkg/api.
package task

import "fmt"

// FinalStatus is the terminal outcome of a task. Exactly three values
// exist; anything else coming out of a runner or bridge is invalid.
type FinalStatus string

const (
	StatusCompleted FinalStatus = "completed"
	StatusFailed    FinalStatus = "failed"
	StatusCanceled  FinalStatus = "canceled"
)

// Valid reports whether s is one of the three terminal statuses.
func (s FinalStatus) Valid() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ParseFinalStatus converts a raw string into a FinalStatus, rejecting
// anything outside the terminal set.
func ParseFinalStatus(raw string) (FinalStatus, error) {
	s := FinalStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("invalid final status %q", raw)
	}
	return s, nil
}

// Task is one claimed execution task. It is owned by the claim loop for
// the duration of a single processing attempt and never mutated.
type Task struct {
	TaskID            string         `json:"task_id"`
	ExecutionRunID    string         `json:"execution_run_id"`
	RobotPlanID       string         `json:"robot_plan_id"`
	AdapterID         string         `json:"adapter_id"`
	TargetPlatform    string         `json:"target_platform"`
	ContractVersion   string         `json:"contract_version"`
	RuntimeParameters map[string]any `json:"runtime_parameters,omitempty"`
	ArtifactRefs      []ArtifactRef  `json:"artifact_refs,omitempty"`

	// LeaseExpiresAt is advisory; the loop does not preempt a running
	// task when the lease runs out.
	LeaseExpiresAt string `json:"lease_expires_at,omitempty"`
}

// ArtifactRef points at an input artifact (robot plan XML, labware map, ...).
type ArtifactRef struct {
	Role string `json:"role"`
	URI  string `json:"uri"`
}

// DefaultContractVersion is assumed when the control plane omits the
// contract version on a claimed task.
const DefaultContractVersion = "execution-task/v1"

// LogEntry is one line of the execution narrative a runner emits.
type LogEntry struct {
	Message   string         `json:"message"`
	Level     string         `json:"level,omitempty"`
	Code      string         `json:"code,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// DefaultLogLevel applies when a runner leaves LogEntry.Level empty.
const DefaultLogLevel = "info"

// Failure describes why a task failed: a stable code, a failure class
// (transient or permanent) and a human-readable message.
type Failure struct {
	Code    string `json:"code"`
	Class   string `json:"class"`
	Message string `json:"message"`
}

// Artifact is an output artifact produced by a runner.
type Artifact struct {
	Role     string `json:"role"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
}

// Measurement is an opaque measurement descriptor. The core forwards it
// untouched on complete.
type Measurement map[string]any

// Result is the outcome of exactly one runner invocation.
type Result struct {
	FinalStatus  FinalStatus    `json:"final_status"`
	Logs         []LogEntry     `json:"logs,omitempty"`
	Artifacts    []Artifact     `json:"artifacts,omitempty"`
	Measurements []Measurement  `json:"measurements,omitempty"`
	Failure      *Failure       `json:"failure,omitempty"`
	External     map[string]any `json:"external,omitempty"`
}

// BoolParam reads a runtime parameter as a boolean. Accepts bool, "1",
// "true" and non-zero numbers; anything else is false.
func BoolParam(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "1" || t == "true"
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}
