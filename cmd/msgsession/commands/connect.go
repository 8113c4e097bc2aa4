package commands

import (
	"github.com/spf13/cobra"

	"github.com/spachava753/msgsession/runner"
)

// connect: bring the session up and report where it stands.
func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Start a session and wait for it to connect or show a QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return appCtx.runner.Run(baseInput(runner.ActionConnect))
		},
	}
}
