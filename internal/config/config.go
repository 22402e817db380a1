// Package config handles configuration loading for the executor service.
// Values come from an optional YAML file plus CL_-prefixed environment
// variables; environment always wins.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Backend names for the INTEGRA Assist runner.
const (
	BackendSimulate = "simulate"
	BackendBridge   = "bridge"
)

// Config holds all configuration values for the executor service.
type Config struct {
	// Control-plane connection
	APIBaseURL    string
	ExecutorID    string
	ExecutorToken string

	// Claim parameters
	Capabilities  []string
	MaxTasks      int
	LeaseDuration time.Duration

	// Loop behavior
	PollInterval time.Duration
	RunOnce      bool

	// Outbound request throttle; 0 disables the limiter.
	MaxRPS float64

	// INTEGRA Assist runner
	IntegraBackend       string
	IntegraSimulate      bool
	IntegraSimDelay      time.Duration
	IntegraBridgeCommand string
	IntegraBridgeTimeout time.Duration

	// Deck mapping
	RecordsRoot    string
	DeckLayoutFile string

	// Observability
	OTELEndpoint string
	MetricsPort  int
}

// Load reads configuration from the optional config file at path and
// from CL_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CL")
	v.AutomaticEnv()

	v.SetDefault("api_base_url", "http://localhost:3001/api")
	v.SetDefault("executor_id", "")
	v.SetDefault("executor_token", "")
	v.SetDefault("executor_capabilities", "integra_assist")
	v.SetDefault("executor_max_tasks", 1)
	v.SetDefault("executor_lease_ms", 60_000)
	v.SetDefault("executor_poll_interval_ms", 2_000)
	v.SetDefault("executor_once", false)
	v.SetDefault("executor_max_rps", 0.0)
	v.SetDefault("integra_backend", BackendSimulate)
	v.SetDefault("integra_simulate", true)
	v.SetDefault("integra_sim_ms", 300)
	v.SetDefault("integra_bridge_command", "")
	v.SetDefault("integra_bridge_timeout_s", 120)
	v.SetDefault("records_root", ".")
	v.SetDefault("deck_layout_file", "")
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("metrics_port", 6162)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	executorID := v.GetString("executor_id")
	if executorID == "" {
		// Stable for the process lifetime, unique across restarts.
		executorID = "executor-" + uuid.NewString()[:8]
	}

	maxTasks := v.GetInt("executor_max_tasks")
	if maxTasks < 1 {
		return nil, fmt.Errorf("executor_max_tasks must be >= 1, got %d", maxTasks)
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("integra_backend")))
	if backend == "" {
		backend = BackendSimulate
	}
	if backend != BackendSimulate && backend != BackendBridge {
		return nil, fmt.Errorf("invalid integra_backend %q (expected %s or %s)", backend, BackendSimulate, BackendBridge)
	}

	return &Config{
		APIBaseURL:           strings.TrimRight(v.GetString("api_base_url"), "/"),
		ExecutorID:           executorID,
		ExecutorToken:        v.GetString("executor_token"),
		Capabilities:         splitCapabilities(v.GetString("executor_capabilities")),
		MaxTasks:             maxTasks,
		LeaseDuration:        time.Duration(v.GetInt64("executor_lease_ms")) * time.Millisecond,
		PollInterval:         time.Duration(v.GetInt64("executor_poll_interval_ms")) * time.Millisecond,
		RunOnce:              v.GetBool("executor_once"),
		MaxRPS:               v.GetFloat64("executor_max_rps"),
		IntegraBackend:       backend,
		IntegraSimulate:      v.GetBool("integra_simulate"),
		IntegraSimDelay:      time.Duration(v.GetInt64("integra_sim_ms")) * time.Millisecond,
		IntegraBridgeCommand: v.GetString("integra_bridge_command"),
		IntegraBridgeTimeout: time.Duration(v.GetInt64("integra_bridge_timeout_s")) * time.Second,
		RecordsRoot:          v.GetString("records_root"),
		DeckLayoutFile:       v.GetString("deck_layout_file"),
		OTELEndpoint:         v.GetString("otel_endpoint"),
		MetricsPort:          v.GetInt("metrics_port"),
	}, nil
}

func splitCapabilities(raw string) []string {
	var caps []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			caps = append(caps, c)
		}
	}
	return caps
}
