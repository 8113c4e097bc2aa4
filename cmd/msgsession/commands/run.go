package commands

import (
	"github.com/spf13/cobra"

	"github.com/spachava753/msgsession/runner"
)

// run --input <path>: execute a full JSON input document. Persistent flags
// fill fields the document leaves empty.
func runCmd() *cobra.Command {
	var inputFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a JSON input document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := runner.ReadInputFile(inputFile)
			if err != nil {
				return err
			}
			flags := baseInput(in.Action)
			if in.APIKey == "" {
				in.APIKey = flags.APIKey
			}
			if in.SessionID == "" {
				in.SessionID = flags.SessionID
			}
			if in.WaitForConnectionTimeout == nil {
				in.WaitForConnectionTimeout = flags.WaitForConnectionTimeout
			}
			return appCtx.runner.Run(in)
		},
	}
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "input JSON file (comments allowed)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
