package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/relay-dev/relay/internal/git"
	"github.com/relay-dev/relay/internal/sandbox"
	"github.com/relay-dev/relay/internal/state"
	"github.com/relay-dev/relay/pkg/models"
)

var (
	cleanupDryRun   bool
	cleanupBranches bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned sandboxes left by crashed runs",
	Long: `Find and remove sandboxes that no running relay process tracks.

Every sandbox relay creates is labelled, so leftovers from a crash or a
kill -9 can be found and removed. With --branches, local work branches
of failed tasks are deleted as well.

Examples:
  relay cleanup              # Remove orphaned sandboxes
  relay cleanup --dry-run    # Show what would be removed
  relay cleanup --branches   # Also delete failed tasks' work branches`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if err := CheckDocker(); err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	provider := sandbox.NewDockerProvider(cwd)
	ids, err := provider.Orphans(cmd.Context())
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		fmt.Println("No orphaned sandboxes found.")
	} else if cleanupDryRun {
		fmt.Printf("Would remove %d sandbox(es):\n", len(ids))
		for _, id := range ids {
			fmt.Printf("  %s\n", id)
		}
	} else {
		tracker := sandbox.NewTracker(provider)
		for _, id := range ids {
			tracker.Register(&sandbox.Handle{ID: id})
		}
		tracker.ReleaseAll(cmd.Context())
		fmt.Printf("%s removed %d orphaned sandbox(es)\n", color.GreenString("✓"), len(ids))
	}

	if cleanupBranches {
		return cleanupFailedBranches(cwd)
	}
	return nil
}

// cleanupFailedBranches deletes local work branches of failed tasks.
func cleanupFailedBranches(cwd string) error {
	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state database: %w", err)
	}

	failed := models.TaskStatusFailed
	tasks, err := db.ListTasks(&failed)
	if err != nil {
		return err
	}

	gitRunner := git.NewRunner(cwd)
	removed := 0
	for _, task := range tasks {
		if !strings.HasPrefix(task.Branch, "relay/") {
			continue
		}
		exists, err := gitRunner.BranchExists(task.Branch)
		if err != nil || !exists {
			continue
		}
		if cleanupDryRun {
			fmt.Printf("Would delete branch %s (task %s)\n", task.Branch, task.ID)
			continue
		}
		if err := gitRunner.DeleteBranch(task.Branch); err != nil {
			fmt.Printf("%s could not delete %s: %v\n", color.YellowString("⚠"), task.Branch, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		fmt.Printf("%s deleted %d failed work branch(es)\n", color.GreenString("✓"), removed)
	}
	return nil
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing it")
	cleanupCmd.Flags().BoolVar(&cleanupBranches, "branches", false, "Also delete failed tasks' local work branches")
}
