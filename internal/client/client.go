// Package client implements the executor side of the control-plane
// reporting protocol: claim, heartbeat, append-logs, update-status and
// complete. Every operation is a single outbound request; the client
// never retries — retry policy belongs to the caller, and in this design
// the caller deliberately does not retry transport failures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/brad-usredoxlabs/computable-lab/internal/task"
	"github.com/brad-usredoxlabs/computable-lab/pkg/api"
)

const requestTimeout = 30 * time.Second

// Config holds the client's identity and claim parameters.
type Config struct {
	BaseURL      string
	ExecutorID   string
	Token        string
	Capabilities []string

	// Claim parameters
	MaxTasks      int
	LeaseDuration time.Duration

	// MaxRPS caps outbound requests per second; 0 disables the limiter.
	MaxRPS float64
}

// Client talks to the control plane's execution-task endpoints.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// TransportError is a non-success response from the control plane. It
// carries the HTTP status and the raw response body.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("control plane error (%d): %s", e.StatusCode, e.Body)
}

// New creates a new client with the given configuration.
func New(cfg Config) *Client {
	limit := rate.Inf
	if cfg.MaxRPS > 0 {
		limit = rate.Limit(cfg.MaxRPS)
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// post issues one request and decodes the response into out when non-nil.
func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &TransportError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// ClaimTasks leases up to MaxTasks tasks matching the declared
// capability set. An empty slice means nothing was available.
func (c *Client) ClaimTasks(ctx context.Context) ([]task.Task, error) {
	req := api.ClaimTasksRequest{
		ExecutorID:      c.config.ExecutorID,
		Capabilities:    c.config.Capabilities,
		MaxTasks:        c.config.MaxTasks,
		LeaseDurationMs: c.config.LeaseDuration.Milliseconds(),
	}

	var resp api.ClaimTasksResponse
	if err := c.post(ctx, "/execution-tasks/claim", req, &resp); err != nil {
		return nil, err
	}

	tasks := make([]task.Task, 0, len(resp.Tasks))
	for _, item := range resp.Tasks {
		tasks = append(tasks, claimedToTask(item))
	}
	return tasks, nil
}

func claimedToTask(item api.ClaimedTask) task.Task {
	contractVersion := item.ContractVersion
	if contractVersion == "" {
		contractVersion = task.DefaultContractVersion
	}
	refs := make([]task.ArtifactRef, 0, len(item.ArtifactRefs))
	for _, ref := range item.ArtifactRefs {
		refs = append(refs, task.ArtifactRef{Role: ref.Role, URI: ref.URI})
	}
	return task.Task{
		TaskID:            item.TaskID,
		ExecutionRunID:    item.ExecutionRunID,
		RobotPlanID:       item.RobotPlanID,
		AdapterID:         item.AdapterID,
		TargetPlatform:    item.TargetPlatform,
		ContractVersion:   contractVersion,
		RuntimeParameters: item.RuntimeParameters,
		ArtifactRefs:      refs,
		LeaseExpiresAt:    item.LeaseExpiresAt,
	}
}

// Heartbeat declares the task still running. progress is an opaque
// status-summary mapping, omitted from the wire form when nil.
func (c *Client) Heartbeat(ctx context.Context, t *task.Task, sequence int, progress map[string]any) (*api.ReportAck, error) {
	req := api.HeartbeatRequest{
		ExecutorID: c.config.ExecutorID,
		Sequence:   sequence,
		Status:     "running",
		Progress:   progress,
	}

	var ack api.ReportAck
	if err := c.post(ctx, "/execution-tasks/"+t.TaskID+"/heartbeat", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// AppendLogs ships a batch of log entries for the task.
func (c *Client) AppendLogs(ctx context.Context, t *task.Task, sequence int, entries []task.LogEntry) (*api.ReportAck, error) {
	wireEntries := make([]api.LogEntry, 0, len(entries))
	for _, entry := range entries {
		level := entry.Level
		if level == "" {
			level = task.DefaultLogLevel
		}
		wireEntries = append(wireEntries, api.LogEntry{
			Message:   entry.Message,
			Level:     level,
			Code:      entry.Code,
			Data:      entry.Data,
			Timestamp: entry.Timestamp,
		})
	}

	req := api.AppendLogsRequest{
		ExecutorID: c.config.ExecutorID,
		Sequence:   sequence,
		Entries:    wireEntries,
	}

	var ack api.ReportAck
	if err := c.post(ctx, "/execution-tasks/"+t.TaskID+"/logs", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// UpdateStatus declares an intermediate status together with optional
// failure detail and an optional mirror of the backend's own status.
func (c *Client) UpdateStatus(ctx context.Context, t *task.Task, sequence int, status string, failure *task.Failure, external map[string]any) (*api.ReportAck, error) {
	req := api.UpdateStatusRequest{
		ExecutorID: c.config.ExecutorID,
		Sequence:   sequence,
		Status:     status,
		External:   external,
	}
	if failure != nil {
		req.Failure = &api.Failure{Code: failure.Code, Class: failure.Class, Message: failure.Message}
	}

	var ack api.ReportAck
	if err := c.post(ctx, "/execution-tasks/"+t.TaskID+"/status", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Complete declares the terminal outcome of the task.
func (c *Client) Complete(ctx context.Context, t *task.Task, sequence int, finalStatus task.FinalStatus, artifacts []task.Artifact, measurements []task.Measurement) (*api.ReportAck, error) {
	wireArtifacts := make([]api.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		wireArtifacts = append(wireArtifacts, api.Artifact{Role: a.Role, URI: a.URI, MimeType: a.MimeType})
	}
	wireMeasurements := make([]map[string]any, 0, len(measurements))
	for _, m := range measurements {
		wireMeasurements = append(wireMeasurements, m)
	}

	req := api.CompleteRequest{
		ExecutorID:   c.config.ExecutorID,
		Sequence:     sequence,
		FinalStatus:  string(finalStatus),
		Artifacts:    wireArtifacts,
		Measurements: wireMeasurements,
	}

	var ack api.ReportAck
	if err := c.post(ctx, "/execution-tasks/"+t.TaskID+"/complete", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}
