package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/relay-dev/relay/internal/agent"
	"github.com/relay-dev/relay/internal/cleanup"
	"github.com/relay-dev/relay/internal/config"
	"github.com/relay-dev/relay/internal/engine"
	"github.com/relay-dev/relay/internal/git"
	"github.com/relay-dev/relay/internal/publish"
	"github.com/relay-dev/relay/internal/sandbox"
	"github.com/relay-dev/relay/internal/state"
	"github.com/relay-dev/relay/pkg/models"
)

var runCmd = &cobra.Command{
	Use:   "run <task description>",
	Short: "Run the agent pipeline on a task",
	Long: `Run the full agent pipeline on a task described in plain language.

The task executes in an isolated sandbox on a dedicated work branch.
On success the branch is pushed and a change request is opened.

Examples:
  relay run "add rate limiting to the API client"
  relay run "fix the flaky TestReconnect test"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func runTask(cmd *cobra.Command, args []string) error {
	if err := CheckDocker(); err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	cfg, project, err := loadConfig(cwd)
	if err != nil {
		return err
	}
	projectName := cwd
	if project != nil {
		projectName = project.Name
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

	coordinator := cleanup.NewCoordinator(cleanup.ReleaserFunc(func() {
		tracker.ReleaseAll(context.Background())
	}))
	coordinator.Install()
	defer coordinator.HandleFault()
	defer coordinator.Shutdown()

	gitRunner := git.NewRunner(cwd)
	agents := agent.NewRunner(provider, agent.Command{
		Name: cfg.Agent.Command,
		Args: cfg.Agent.Args,
	})
	publisher := buildPublisher(cmd.Context(), cfg, gitRunner, db)

	eng := engine.New(cfg, db, provider, tracker, agents, gitRunner, publisher)

	description := strings.Join(args, " ")
	task, err := eng.Run(cmd.Context(), projectName, description)
	if err != nil {
		if task != nil {
			fmt.Printf("%s task %s failed: %s\n", color.RedString("✗"), task.ID, task.FailReason)
		}
		return err
	}

	fmt.Printf("%s task %s completed in %d step(s)\n", color.GreenString("✓"), task.ID, len(task.Steps))
	if task.Published() {
		fmt.Printf("  change request: %s\n", task.Publication.URL)
	} else {
		fmt.Printf("  %s not published; retry with: relay publish %s\n", color.YellowString("⚠"), task.ID)
	}
	if task.Cost > 0 {
		fmt.Printf("  reported spend: $%.2f\n", task.Cost)
	}
	return nil
}

// buildPublisher wires the GitHub host when a token and a recognizable
// remote are available. Without either, publication is skipped with a
// warning and the task still completes.
func buildPublisher(ctx context.Context, cfg *config.Config, gitRunner git.Runner, store state.Store) engine.Publisher {
	if cfg.Publish.Token == "" {
		fmt.Printf("%s no publish token configured (set GITHUB_TOKEN); completed tasks will not be published\n", color.YellowString("⚠"))
		return nil
	}
	remoteURL, err := gitRunner.RemoteURL(cfg.Publish.Remote)
	if err != nil {
		fmt.Printf("%s remote %q not configured; completed tasks will not be published\n", color.YellowString("⚠"), cfg.Publish.Remote)
		return nil
	}
	owner, repo, err := publish.ParseRemote(remoteURL)
	if err != nil {
		fmt.Printf("%s %v; completed tasks will not be published\n", color.YellowString("⚠"), err)
		return nil
	}
	host := publish.NewGitHubHost(ctx, cfg.Publish.Token, owner, repo)
	return publish.NewPublisher(gitRunner, host, store, cfg.Publish.Remote, cfg.Publish.Base)
}

// statusGlyph renders a colored marker for a task status.
func statusGlyph(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusCompleted:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.RedString("✗")
	default:
		return color.YellowString("●")
	}
}
