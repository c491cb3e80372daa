package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"valid":        true,
					"agents":       len(cfg.Agents),
					"odor_markers": len(cfg.OdorMarkers),
					"action":       cfg.Updater.Action,
				})
			}
			fmt.Fprintf(out, "configuration ok: %d agents, %d odor markers, action %s\n",
				len(cfg.Agents), len(cfg.OdorMarkers), cfg.Updater.Action)
			return nil
		},
	}
}
