package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"scanrouter/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and per-site routing status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Running: %s (pid %d)\n", yesNo(status.Running), status.PID)
				fmt.Fprintf(out, "Audit log: %s\n", status.AuditLogPath)
				fmt.Fprintf(out, "Journal: %s\n", status.JournalDBPath)
				fmt.Fprintf(out, "Lock: %s\n", status.LockPath)
				if len(status.JobStats) > 0 {
					fmt.Fprintf(out, "Jobs: %d total, %d active, %d done, %d error, %d stalled\n",
						status.JobStats["total"],
						status.JobStats["active"],
						status.JobStats["done"],
						status.JobStats["error"],
						status.JobStats["stalled"],
					)
				}

				if len(status.Sites) == 0 {
					return nil
				}
				view := newTableView([]string{"Site", "Routed", "Failed", "Stalled"}, 1, 2, 3)
				for _, site := range status.Sites {
					view.addRow(
						site.Site,
						strconv.FormatInt(site.Processed, 10),
						strconv.FormatInt(site.Failed, 10),
						strconv.FormatInt(site.Stalled, 10),
					)
				}
				fmt.Fprintln(out, view.render())
				return nil
			})
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
