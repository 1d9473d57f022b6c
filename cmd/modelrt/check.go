package main

import (
	"encoding/json"
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"modelrt/internal/asset"
	"modelrt/internal/common/fsutil"
	"modelrt/internal/manager"
)

func newCheckCmd() *cobra.Command {
	var manifest string
	cmd := &cobra.Command{
		Use:   "check PATH",
		Short: "Resolve and validate a model file without loading it",
		Long: `Check resolves a model file (hashing it and reading GGUF metadata) and prints
the result as JSON. A directory lists its *.gguf files instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mf := manifest
			if mf == "" {
				mf = cfg.ManifestPath
			}
			var m *asset.Manifest
			if mf != "" {
				var err error
				if m, err = asset.LoadManifest(mf); err != nil {
					return fmt.Errorf("manifest: %w", err)
				}
			}
			p, err := fsutil.Abs(args[0])
			if err != nil {
				return err
			}
			if fsutil.IsDir(p) {
				entries, err := asset.Scan(p)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%-48s %10s\n", e.Name, units.BytesSize(float64(e.Size)))
				}
				return nil
			}
			a, err := asset.NewResolver(m, &log).Resolve(p)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(manager.AssetInfo(a))
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "Manifest pinning digests and sizes")
	return cmd
}
