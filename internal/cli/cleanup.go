package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hermes/internal/memory"
	"hermes/internal/session"
	"hermes/internal/state"
)

func newCleanupCommand() *cobra.Command {
	var keepState bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Reset engine state and drop expired memories and stale sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if !keepState {
				// A fresh zero snapshot; counters, queue, and errors reset.
				store := state.NewStore(cfg.Storage.StateFile, nil)
				if err := store.Persist(); err != nil {
					return fmt.Errorf("reset state: %w", err)
				}
				fmt.Printf("%s state reset (%s)\n", green("✔"), cfg.Storage.StateFile)
			}

			mem, err := memory.NewStore(cfg.Storage.MemoryDir, nil)
			if err != nil {
				return fmt.Errorf("open memory store: %w", err)
			}
			fmt.Printf("%s %d expired memory entries purged\n", green("✔"), mem.PurgeExpired())

			sessions, err := session.NewManager(cfg.Storage.SessionDir, nil)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			fmt.Printf("%s %d stale sessions removed\n", green("✔"), sessions.Cleanup(30*24*time.Hour))
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepState, "keep-state", false, "Keep the state snapshot, only clean memories and sessions")
	return cmd
}
