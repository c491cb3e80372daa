package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zeusync/envsim/internal/injector"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("serve") {
				cfg.Server.Enabled, _ = cmd.Flags().GetBool("serve")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Simulation.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			app, err := injector.InitializeApp(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			return app.Run(ctx)
		},
	}
	cmd.Flags().Bool("serve", false, "Stream snapshots over the configured server addresses")
	cmd.Flags().Uint64("seed", 0, "Override the placement seed")
	cmd.Flags().Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}
