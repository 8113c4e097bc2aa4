package commands

import (
	"github.com/spf13/cobra"

	"github.com/spachava753/msgsession/runner"
)

// send <to> [message]: send one text, or an attachment with --attachment.
func sendCmd() *cobra.Command {
	var attachment, attachmentType, caption string
	cmd := &cobra.Command{
		Use:   "send <to> [message]",
		Short: "Send a message or attachment through a connected session",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := baseInput(runner.ActionSend)
			in.To = args[0]
			if len(args) == 2 {
				in.Message = args[1]
			}
			in.Attachment = attachment
			in.AttachmentType = attachmentType
			in.Caption = caption
			return appCtx.runner.Run(in)
		},
	}
	cmd.Flags().StringVarP(&attachment, "attachment", "a", "", "local path, http(s) URL or base64 data to attach")
	cmd.Flags().StringVar(&attachmentType, "type", "", "MIME type, required for base64 attachments")
	cmd.Flags().StringVar(&caption, "caption", "", "caption sent with the attachment")
	return cmd
}
