package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/relay-dev/relay/internal/git"
	"github.com/relay-dev/relay/internal/publish"
	"github.com/relay-dev/relay/internal/state"
)

var publishCmd = &cobra.Command{
	Use:   "publish <task-id>",
	Short: "Retry publication for a completed task",
	Long: `Push a completed task's work branch and open a change request.

Publication is idempotent: if the branch was already pushed or a change
request already exists, the existing one is adopted. Tasks that did not
complete cannot be published.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func runPublish(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	cfg, _, err := loadConfig(cwd)
	if err != nil {
		return err
	}
	if cfg.Publish.Token == "" {
		return fmt.Errorf("no publish token configured (set GITHUB_TOKEN)")
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state database: %w", err)
	}

	gitRunner := git.NewRunner(cwd)
	remoteURL, err := gitRunner.RemoteURL(cfg.Publish.Remote)
	if err != nil {
		return fmt.Errorf("remote %q not configured: %w", cfg.Publish.Remote, err)
	}
	owner, repo, err := publish.ParseRemote(remoteURL)
	if err != nil {
		return err
	}

	host := publish.NewGitHubHost(cmd.Context(), cfg.Publish.Token, owner, repo)
	publisher := publish.NewPublisher(gitRunner, host, db, cfg.Publish.Remote, cfg.Publish.Base)

	task, err := publisher.Retry(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s published task %s\n", color.GreenString("✓"), task.ID)
	if task.Published() {
		fmt.Printf("  change request: %s\n", task.Publication.URL)
	}
	return nil
}
