package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective executor configuration",
	Long: `Resolve configuration from the config file and CL_* environment variables
and print the effective values. The executor token is masked.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			cmd.Printf("Failed to load configuration: %v\n", err)
			return
		}

		cmd.Println("Effective executor configuration")
		cmd.Println("──────────────────────────────")
		cmd.Printf("API base URL:      %s\n", cfg.APIBaseURL)
		cmd.Printf("Executor ID:       %s\n", cfg.ExecutorID)
		cmd.Printf("Executor token:    %s\n", maskToken(cfg.ExecutorToken))
		cmd.Printf("Capabilities:      %s\n", strings.Join(cfg.Capabilities, ", "))
		cmd.Printf("Max tasks:         %d\n", cfg.MaxTasks)
		cmd.Printf("Lease duration:    %s\n", cfg.LeaseDuration)
		cmd.Printf("Poll interval:     %s\n", cfg.PollInterval)
		cmd.Printf("Run once:          %t\n", cfg.RunOnce)
		cmd.Printf("Max RPS:           %g\n", cfg.MaxRPS)
		cmd.Printf("INTEGRA backend:   %s\n", cfg.IntegraBackend)
		cmd.Printf("INTEGRA simulate:  %t\n", cfg.IntegraSimulate)
		cmd.Printf("Records root:      %s\n", cfg.RecordsRoot)
		if cfg.DeckLayoutFile != "" {
			cmd.Printf("Deck layout file:  %s\n", cfg.DeckLayoutFile)
		}
		cmd.Printf("OTEL endpoint:     %s\n", cfg.OTELEndpoint)
		cmd.Printf("Metrics port:      %d\n", cfg.MetricsPort)
	},
}

// maskToken keeps just enough of the token to recognize it in logs.
func maskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
}
