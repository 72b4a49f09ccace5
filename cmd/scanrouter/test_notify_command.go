package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"scanrouter/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("daemon returned no notification response")
				}
				fmt.Fprintln(cmd.OutOrStdout(), notifyOutcome(resp))
				return nil
			})
		},
	}
}

// notifyOutcome prefers the daemon's own explanation; the generic lines
// only cover a response that carried no message.
func notifyOutcome(resp *ipc.TestNotificationResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	if resp.Sent {
		return "Test notification sent"
	}
	return "Notification was not sent"
}
