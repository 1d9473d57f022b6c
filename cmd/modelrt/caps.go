package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"modelrt/internal/manager"
)

func newCapsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Print host and native runtime capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mc, err := managerConfig(cfg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(manager.NewWithConfig(mc).Capabilities())
		},
	}
}
