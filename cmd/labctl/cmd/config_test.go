package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfigCommand_MasksToken(t *testing.T) {
	t.Setenv("CL_EXECUTOR_ID", "executor-test")
	t.Setenv("CL_EXECUTOR_TOKEN", "super-secret-token-value")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"config"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := stdout.String()
	if strings.Contains(out, "super-secret-token-value") {
		t.Error("expected token to be masked in output")
	}
	if !strings.Contains(out, "supe****alue") {
		t.Errorf("expected masked token in output, got: %s", out)
	}
	if !strings.Contains(out, "Executor ID:       executor-test") {
		t.Errorf("expected executor id in output, got: %s", out)
	}
}

func TestConfigCommand_InvalidConfig(t *testing.T) {
	t.Setenv("CL_EXECUTOR_MAX_TASKS", "0")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"config"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Failed to load configuration") {
		t.Errorf("expected load failure message, got: %s", stdout.String())
	}
}

func TestMaskToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "(not set)"},
		{"short", "****"},
		{"abcd1234efgh", "abcd****efgh"},
	}
	for _, c := range cases {
		if got := maskToken(c.in); got != c.want {
			t.Errorf("maskToken(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
