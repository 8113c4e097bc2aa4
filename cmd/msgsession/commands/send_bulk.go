package commands

import (
	"github.com/spf13/cobra"

	"github.com/spachava753/msgsession/runner"
)

// send-bulk --messages-file <path>: send every entry of a JSON array in order.
func sendBulkCmd() *cobra.Command {
	var messagesFile string
	var delayMS int
	cmd := &cobra.Command{
		Use:   "send-bulk",
		Short: "Send a batch of messages, pausing between them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			messages, err := runner.ReadMessagesFile(messagesFile)
			if err != nil {
				return err
			}
			in := baseInput(runner.ActionSendBulk)
			in.Messages = messages
			if cmd.Flags().Changed("delay") {
				in.DelayBetweenMessages = &delayMS
			}
			return appCtx.runner.Run(in)
		},
	}
	cmd.Flags().StringVarP(&messagesFile, "messages-file", "f", "", "JSON array of {to, message, attachment, attachmentType, caption, delay}")
	cmd.Flags().IntVar(&delayMS, "delay", 0, "milliseconds to wait between messages (default from config)")
	_ = cmd.MarkFlagRequired("messages-file")
	return cmd
}
