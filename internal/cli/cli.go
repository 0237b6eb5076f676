// Package cli is the hermes command surface: the daemon plus the small
// operational commands around its state and reports.
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hermes/internal/config"
)

// Version is stamped at release time.
const Version = "1.0.0"

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// NewRootCommand builds the hermes command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hermes",
		Short: "📮 Multi-channel task engine for a coding CLI",
		Long: fmt.Sprintf(`%s

hermes watches chat and mail channels for coding tasks, refines them with an
LLM, runs them through a supervised code-generation CLI, and reports the
outcome back on the channel the task came from.

%s
  hermes run                     # Start the engine
  hermes status                  # Engine state, counters, executor probe
  hermes tasks list              # Finished task index
  hermes tasks show tg_20250101_120000
  hermes cleanup                 # Reset state, drop expired memories`,
			bold("hermes "+Version), bold("EXAMPLES:")),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file path (default ~/.hermes/config.yaml)")
	rootCmd.PersistentFlags().String("workdir", "", "Working directory for the executor")
	rootCmd.PersistentFlags().String("state-file", "", "State snapshot location")
	rootCmd.PersistentFlags().Int("metrics-port", 0, "Enable the Prometheus endpoint on this port")
	_ = viper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newTasksCommand())
	rootCmd.AddCommand(newCleanupCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig merges file, environment, and flag overrides.
func loadConfig() (config.Config, error) {
	opts := []config.Option{}
	if path := viper.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	opts = append(opts, config.WithOverride(func(c *config.Config) {
		if v := viper.GetString("workdir"); v != "" {
			c.WorkDir = v
		}
		if v := viper.GetString("state-file"); v != "" {
			c.Storage.StateFile = v
		}
		if port := viper.GetInt("metrics-port"); port > 0 {
			c.Metrics.Enabled = true
			c.Metrics.PrometheusPort = port
		}
	}))
	return config.Load(opts...)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hermes %s\n", Version)
		},
	}
}
