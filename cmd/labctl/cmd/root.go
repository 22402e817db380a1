package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/brad-usredoxlabs/computable-lab/internal/config"
	"github.com/brad-usredoxlabs/computable-lab/internal/deck"
	"github.com/brad-usredoxlabs/computable-lab/internal/logger"
	"github.com/brad-usredoxlabs/computable-lab/internal/runner"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "labctl",
	Short: "labctl is a command line tool for operating the executor service",
	Long: `labctl is the command-line interface for the executor service of the
computable-lab platform.

The executor is the data-plane worker: it claims execution tasks from the
control plane, dispatches each task to a runner selected by adapter id, and
reports sequenced progress back until the task reaches a terminal state.

Common workflows:

  Run exactly one claim cycle against the control plane:
    labctl cycle

  Execute a task file through the local runner registry, no reporting:
    labctl dryrun task.json

  Print the effective executor configuration:
    labctl config

Configuration:
  All settings come from CL_-prefixed environment variables or a config file:
    CL_API_BASE_URL       Control-plane endpoint (default: http://localhost:3001/api)
    CL_EXECUTOR_TOKEN     Bearer token for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the effective configuration for a subcommand,
// honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// buildRegistry assembles the runner registry the same way the executor
// daemon does, so dryrun and cycle exercise the real adapters.
func buildRegistry(cfg *config.Config, log *slog.Logger) (*runner.Registry, error) {
	layout, err := deck.LoadLayout(cfg.DeckLayoutFile)
	if err != nil {
		return nil, err
	}

	registry := runner.NewRegistry()
	registry.Register(runner.AdapterIntegraAssist, runner.NewIntegra(runner.IntegraConfig{
		Backend:       cfg.IntegraBackend,
		ForceSimulate: cfg.IntegraSimulate,
		SimDelay:      cfg.IntegraSimDelay,
		BridgeCommand: cfg.IntegraBridgeCommand,
		BridgeTimeout: cfg.IntegraBridgeTimeout,
		RecordsRoot:   cfg.RecordsRoot,
		Layout:        layout,
	}, log))
	return registry, nil
}

func newLogger() *slog.Logger {
	return logger.New()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is CL_* environment only)")
}
