package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// artifact [key]: list published artifacts, or write one out.
func artifactCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "artifact [key]",
		Short: "List published artifacts or export one (e.g. QR_CODE)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				keys, err := appCtx.blobs.Keys()
				if err != nil {
					return err
				}
				for _, key := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			}

			rec, err := appCtx.blobs.Get(args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(rec.Data)
				return err
			}
			if err := os.WriteFile(outPath, rec.Data, 0o600); err != nil {
				return fmt.Errorf("msgsession: writing %s failed: %w", outPath, err)
			}
			appCtx.logger.Info().Str("key", rec.Key).Str("content_type", rec.ContentType).Str("path", outPath).Msg("artifact exported")
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the artifact to this file instead of stdout")
	return cmd
}
