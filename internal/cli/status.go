package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hermes/internal/executor"
	"hermes/internal/state"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine state, task counters, and the executor probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store := state.NewStore(cfg.Storage.StateFile, nil)
			if err := store.Load(); err != nil {
				return fmt.Errorf("read state: %w", err)
			}
			view := store.View()

			fmt.Printf("\n%s Engine\n", bold("⚙️"))
			fmt.Printf("  %s: %s\n", bold("Status"), colorStatus(view.LastStatus))
			fmt.Printf("  %s: %s completed, %s failed\n", bold("Tasks"),
				green(fmt.Sprintf("%d", view.CompletedTasksCount)),
				red(fmt.Sprintf("%d", view.FailedTasksCount)))
			if view.LastTaskTimestamp != nil {
				fmt.Printf("  %s: %s\n", bold("Last task"), blue(view.LastTaskTimestamp.Format(time.RFC3339)))
			}
			if view.LastError != "" {
				when := ""
				if view.LastErrorTimestamp != nil {
					when = gray(" (" + view.LastErrorTimestamp.Format(time.RFC3339) + ")")
				}
				fmt.Printf("  %s: %s%s\n", bold("Last error"), red(view.LastError), when)
			}

			fmt.Printf("\n%s Queue (%d)\n", bold("📥"), len(view.TaskQueue))
			for _, task := range view.TaskQueue {
				fmt.Printf("  %s [%s] %s %s\n", blue(task.TaskID), task.Status,
					truncatePrompt(task.OriginalPrompt, 60), gray(task.Channel+"/"+task.Sender))
			}

			if changes := view.ModifiedFiles; len(changes) > 0 {
				if len(changes) > 5 {
					changes = changes[len(changes)-5:]
				}
				fmt.Printf("\n%s Recent file changes\n", bold("📝"))
				for _, change := range changes {
					fmt.Printf("  [%s] %s\n", change.ChangeType, change.FilePath)
				}
			}

			probeExecutor(cfg.Executor.CLIPath, cfg.Executor.ShellPath)
			return nil
		},
	}
}

// probeExecutor reports whether the code-generation CLI is reachable.
func probeExecutor(cliPath, shellPath string) {
	exec := executor.New(executor.Config{CLIPath: cliPath, ShellPath: shellPath}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Printf("\n%s Executor\n", bold("🔧"))
	version, err := exec.Version(ctx)
	if err != nil {
		fmt.Printf("  %s: %s\n", bold("CLI"), red("unavailable: "+err.Error()))
		return
	}
	fmt.Printf("  %s: %s\n", bold("CLI"), green(version))
	if err := exec.SelfTest(ctx); err != nil {
		fmt.Printf("  %s: %s\n", bold("Self-test"), yellow(err.Error()))
		return
	}
	fmt.Printf("  %s: %s\n", bold("Self-test"), green("ok"))
}

func colorStatus(status state.EngineStatus) string {
	switch status {
	case state.StatusRunning:
		return blue(string(status))
	case state.StatusError:
		return red(string(status))
	default:
		return green(string(status))
	}
}

func truncatePrompt(prompt string, max int) string {
	runes := []rune(prompt)
	if len(runes) <= max {
		return prompt
	}
	return string(runes[:max]) + "…"
}
