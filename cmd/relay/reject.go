package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/relay-dev/relay/internal/agent"
	"github.com/relay-dev/relay/internal/engine"
	"github.com/relay-dev/relay/internal/git"
	"github.com/relay-dev/relay/internal/sandbox"
	"github.com/relay-dev/relay/internal/state"
)

var rejectReason string

var rejectCmd = &cobra.Command{
	Use:   "reject <task-id>",
	Short: "Reject a task and discard its work branch",
	Long: `Mark a task as failed and delete its work branch locally and on
the remote. This is destructive and cannot be undone.

Only tasks that have not reached a terminal state can be rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runReject,
}

func runReject(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	cfg, _, err := loadConfig(cwd)
	if err != nil {
		return err
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state database: %w", err)
	}

	provider := sandbox.NewDockerProvider(cwd)
	tracker := sandbox.NewTracker(provider)
	gitRunner := git.NewRunner(cwd)
	agents := agent.NewRunner(provider, agent.Command{Name: cfg.Agent.Command, Args: cfg.Agent.Args})

	eng := engine.New(cfg, db, provider, tracker, agents, gitRunner, nil)
	task, err := eng.Reject(cmd.Context(), args[0], rejectReason)
	if err != nil {
		return err
	}

	fmt.Printf("%s rejected task %s, work branch %s discarded\n", color.RedString("✗"), task.ID, task.Branch)
	return nil
}

func init() {
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "Why the task is being rejected")
}
