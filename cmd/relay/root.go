package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/relay-dev/relay/internal/config"
)

// CheckDocker verifies that the 'docker' CLI is available in PATH.
// Sandboxes are containers; nothing runs without it.
func CheckDocker() error {
	_, err := exec.LookPath("docker")
	if err != nil {
		return fmt.Errorf("docker CLI not found in PATH\n\n" +
			"Relay runs every agent step inside an isolated container.\n" +
			"Install Docker and make sure 'docker' is on your PATH.")
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Sandboxed agent pipeline for coding tasks",
	Long: `Relay runs a pipeline of specialized coding agents against your
repository, each step inside an isolated sandbox, and publishes the
result as a change request.

Core capabilities:
- Routes work through architect, coder, reviewer, security, documenter,
  tester and performance agents
- Lets agents re-route the pipeline with embedded directives
- Retries transient failures with backoff, bounded per step
- Records every attempt durably, surviving crashes and interrupts
- Guarantees sandbox cleanup on every exit path`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration with the project manifest applied.
func loadConfig(projectRoot string) (*config.Config, *config.Project, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	project, err := config.LoadProject(projectRoot)
	if err != nil {
		return nil, nil, err
	}
	project.Apply(cfg)
	return cfg, project, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}
