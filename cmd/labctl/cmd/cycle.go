package cmd

import (
	"github.com/spf13/cobra"

	"github.com/brad-usredoxlabs/computable-lab/internal/client"
	"github.com/brad-usredoxlabs/computable-lab/internal/worker"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run exactly one claim-execute-report cycle",
	Long: `Claim up to max-tasks tasks from the control plane, execute each through
the local runner registry, and report results back. Exits after one cycle,
which makes it suitable for cron-style scheduling and smoke tests.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			cmd.Printf("Failed to load configuration: %v\n", err)
			return
		}

		log := newLogger()
		registry, err := buildRegistry(cfg, log)
		if err != nil {
			cmd.Printf("Failed to build runner registry: %v\n", err)
			return
		}

		api := client.New(client.Config{
			BaseURL:       cfg.APIBaseURL,
			ExecutorID:    cfg.ExecutorID,
			Token:         cfg.ExecutorToken,
			Capabilities:  cfg.Capabilities,
			MaxTasks:      cfg.MaxTasks,
			LeaseDuration: cfg.LeaseDuration,
			MaxRPS:        cfg.MaxRPS,
		})

		agent := worker.New(api, registry, worker.AgentConfig{
			ExecutorID:   cfg.ExecutorID,
			PollInterval: cfg.PollInterval,
			RunOnce:      true,
		}, log)

		processed, err := agent.RunCycle(cmd.Context())
		if err != nil {
			cmd.Printf("Cycle failed: %v\n", err)
			return
		}

		cmd.Printf("Cycle complete: %d task(s) processed\n", processed)
	},
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}
