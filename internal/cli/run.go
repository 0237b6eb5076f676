package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"hermes/internal/app"
	"hermes/internal/logging"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the engine and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			// A local .env supplies credentials in development; absence is
			// not an error.
			_ = godotenv.Load()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := logging.NewComponentLogger("Main")
			engine, err := app.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("assemble engine: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("%s hermes %s starting (workdir %s)\n", green("▶"), Version, cfg.WorkDir)
			if err := engine.Run(ctx); err != nil {
				return err
			}
			fmt.Printf("%s engine stopped\n", gray("■"))
			return nil
		},
	}
}
