package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/spf13/cobra"
)

const renderWidth = 100

func newTasksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect finished task reports",
	}
	cmd.AddCommand(newTasksListCommand())
	cmd.AddCommand(newTasksShowCommand())
	return cmd
}

func newTasksListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List finished tasks from the report index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			index := filepath.Join(cfg.Storage.ReportDir, "TASK_LOG.md")
			data, err := os.ReadFile(index)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Printf("%s no finished tasks yet\n", gray("∅"))
					return nil
				}
				return fmt.Errorf("read task index: %w", err)
			}
			fmt.Print(string(markdown.Render(string(data), renderWidth, 0)))
			return nil
		},
	}
}

func newTasksShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Render a finished task's report document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			doc, err := findTaskDoc(cfg.Storage.ReportDir, args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(doc)
			if err != nil {
				return fmt.Errorf("read task document: %w", err)
			}
			fmt.Print(string(markdown.Render(string(data), renderWidth, 0)))
			return nil
		},
	}
}

// findTaskDoc locates the document for a task id. Documents are scanned
// newest first so a re-run of the same id shows the latest report.
func findTaskDoc(reportDir, taskID string) (string, error) {
	tasksDir := filepath.Join(reportDir, "tasks")
	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		return "", fmt.Errorf("no task documents under %s", tasksDir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".md") {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	header := "# Task " + taskID + "\n"
	for _, name := range names {
		path := filepath.Join(tasksDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if strings.HasPrefix(string(data), header) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no report found for task %s", taskID)
}
