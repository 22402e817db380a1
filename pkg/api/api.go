// Package api contains shared JSON request/response structs for the
// control-plane execution-task protocol. Field names follow the wire
// contract (camelCase); optional fields carry omitempty so that only
// non-default values are transmitted.
package api

// ClaimTasksRequest is the request body for POST /execution-tasks/claim.
type ClaimTasksRequest struct {
	ExecutorID      string   `json:"executorId"`
	Capabilities    []string `json:"capabilities"`
	MaxTasks        int      `json:"maxTasks"`
	LeaseDurationMs int64    `json:"leaseDurationMs"`
}

// ClaimTasksResponse is the response body for a claim call.
type ClaimTasksResponse struct {
	Tasks []ClaimedTask `json:"tasks"`
}

// ClaimedTask is one leased execution task as returned by the control plane.
type ClaimedTask struct {
	TaskID            string         `json:"taskId"`
	ExecutionRunID    string         `json:"executionRunId"`
	RobotPlanID       string         `json:"robotPlanId"`
	AdapterID         string         `json:"adapterId"`
	TargetPlatform    string         `json:"targetPlatform"`
	ContractVersion   string         `json:"contractVersion,omitempty"`
	RuntimeParameters map[string]any `json:"runtimeParameters,omitempty"`
	ArtifactRefs      []ArtifactRef  `json:"artifactRefs,omitempty"`
	LeaseExpiresAt    string         `json:"leaseExpiresAt,omitempty"`
}

// ArtifactRef is a reference to an input artifact attached to a task.
type ArtifactRef struct {
	Role string `json:"role"`
	URI  string `json:"uri"`
}

// HeartbeatRequest is the request body for POST /execution-tasks/{id}/heartbeat.
type HeartbeatRequest struct {
	ExecutorID string         `json:"executorId"`
	Sequence   int            `json:"sequence"`
	Status     string         `json:"status"`
	Progress   map[string]any `json:"progress,omitempty"`
}

// AppendLogsRequest is the request body for POST /execution-tasks/{id}/logs.
type AppendLogsRequest struct {
	ExecutorID string     `json:"executorId"`
	Sequence   int        `json:"sequence"`
	Entries    []LogEntry `json:"entries"`
}

// LogEntry is one line of a task's execution narrative.
type LogEntry struct {
	Message   string         `json:"message"`
	Level     string         `json:"level"`
	Code      string         `json:"code,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// UpdateStatusRequest is the request body for POST /execution-tasks/{id}/status.
type UpdateStatusRequest struct {
	ExecutorID string         `json:"executorId"`
	Sequence   int            `json:"sequence"`
	Status     string         `json:"status"`
	Failure    *Failure       `json:"failure,omitempty"`
	External   map[string]any `json:"external,omitempty"`
}

// Failure describes why a task failed.
type Failure struct {
	Code    string `json:"code"`
	Class   string `json:"class"`
	Message string `json:"message"`
}

// CompleteRequest is the request body for POST /execution-tasks/{id}/complete.
// Complete is the only call that may carry artifacts and measurements.
type CompleteRequest struct {
	ExecutorID   string           `json:"executorId"`
	Sequence     int              `json:"sequence"`
	FinalStatus  string           `json:"finalStatus"`
	Artifacts    []Artifact       `json:"artifacts,omitempty"`
	Measurements []map[string]any `json:"measurements,omitempty"`
}

// Artifact describes an output artifact produced by a runner.
type Artifact struct {
	Role     string `json:"role"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
}

// ReportAck is the control plane's acknowledgment of a report call.
type ReportAck struct {
	Success  bool `json:"success"`
	Accepted bool `json:"accepted"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
