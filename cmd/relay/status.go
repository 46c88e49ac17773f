package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relay-dev/relay/internal/state"
	"github.com/relay-dev/relay/pkg/models"
)

var statusFilter string

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show task state",
	Long: `Display stored task state.

With no arguments, lists all recorded tasks. With a task id, shows the
full step history for that task.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No tasks recorded. Run 'relay run <task>' to start.")
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

	if len(args) == 1 {
		return showTask(db, args[0])
	}
	return listTasks(db)
}

func showTask(db *state.DB, id string) error {
	task, err := db.GetTask(id)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s  %s\n", statusGlyph(task.Status), task.ID, task.Status)
	fmt.Printf("  %s\n", task.Description)
	fmt.Printf("  branch: %s\n", task.Branch)
	if task.FailReason != "" {
		fmt.Printf("  reason: %s\n", task.FailReason)
	}
	if task.Published() {
		fmt.Printf("  change request: %s\n", task.Publication.URL)
	}
	if task.Cost > 0 {
		fmt.Printf("  reported spend: $%.2f\n", task.Cost)
	}
	if len(task.Steps) > 0 {
		fmt.Println("  steps:")
		for _, step := range task.Steps {
			line := fmt.Sprintf("    %-12s attempt %d  %s", step.Role, step.Attempt, step.Outcome)
			if step.Error != "" {
				line += "  " + step.Error
			}
			fmt.Println(line)
		}
	}
	return nil
}

func listTasks(db *state.DB) error {
	var filter *models.TaskStatus
	if statusFilter != "" {
		status := models.TaskStatus(statusFilter)
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", statusFilter)
		}
		filter = &status
	}

	tasks, err := db.ListTasks(filter)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks recorded. Run 'relay run <task>' to start.")
		return nil
	}

	for _, task := range tasks {
		desc := task.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		fmt.Printf("%s %s  %-9s  %s\n", statusGlyph(task.Status), task.ID, task.Status, desc)
	}
	return nil
}

func init() {
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "Only list tasks with this status (executing, completed, failed)")
}
