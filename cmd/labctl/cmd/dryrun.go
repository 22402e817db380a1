package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/brad-usredoxlabs/computable-lab/internal/task"
)

var dryrunCmd = &cobra.Command{
	Use:   "dryrun [task_file]",
	Short: "Execute a task file through the local runner registry",
	Long: `Read an execution task from a JSON file, dispatch it to the runner
selected by its adapter id, and print the result as JSON. No reporting calls
are made to the control plane, so this is safe against production config.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			cmd.Printf("Failed to read task file: %v\n", err)
			return
		}

		var t task.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			cmd.Printf("Failed to parse task file: %v\n", err)
			return
		}
		if t.TaskID == "" {
			cmd.Println("Task file is missing task_id")
			return
		}

		cfg, err := loadConfig()
		if err != nil {
			cmd.Printf("Failed to load configuration: %v\n", err)
			return
		}

		registry, err := buildRegistry(cfg, newLogger())
		if err != nil {
			cmd.Printf("Failed to build runner registry: %v\n", err)
			return
		}

		r, err := registry.Get(t.AdapterID)
		if err != nil {
			cmd.Printf("No runner for adapter %q: %v\n", t.AdapterID, err)
			return
		}

		result, err := r.Run(cmd.Context(), &t)
		if err != nil {
			cmd.Printf("Runner failed: %v\n", err)
			return
		}
		if result == nil {
			cmd.Println("Runner returned no result")
			return
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			cmd.Printf("Failed to encode result: %v\n", err)
			return
		}
		cmd.Println(string(out))
	},
}

func init() {
	rootCmd.AddCommand(dryrunCmd)
}
