package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zeusync/envsim/internal/injector"
)

func newStepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Run a fixed number of ticks and print the final state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ticks, _ := cmd.Flags().GetInt("ticks")
			if ticks < 0 {
				return errors.Errorf("ticks must not be negative: %d", ticks)
			}

			app, err := injector.InitializeApp(cfg)
			if err != nil {
				return err
			}
			snap, err := app.Step(cmd.Context(), ticks)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"digest":   fmt.Sprintf("%016x", snap.Digest()),
					"snapshot": snap,
					"stats":    app.Environment.Stats(),
				})
			}

			fmt.Fprintf(out, "tick %d digest %016x\n", snap.Tick, snap.Digest())
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tX\tY\tZ\tHEADING")
			for _, st := range snap.Elements {
				if !st.Present {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\t%.3f\t%.1f\n",
					st.Name, st.Kind, st.Center[0], st.Center[1], st.Center[2], st.Heading)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntP("ticks", "n", 100, "Number of ticks to run")
	return cmd
}
