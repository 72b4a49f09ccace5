package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"scanrouter/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var site string
	var state string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently routed files from the job journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(ipc.HistoryRequest{
					Limit: limit,
					Site:  site,
					State: state,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}

				view := newTableView([]string{"ID", "Site", "Scan File", "Print ID", "Printer", "State", "Error"}, 0)
				for _, job := range resp.Jobs {
					view.addRow(
						strconv.FormatInt(job.ID, 10),
						job.Site,
						job.ScanFile,
						job.PrintID,
						job.Printer,
						job.State,
						job.ErrorMessage,
					)
				}
				fmt.Fprintln(out, view.render())
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show (0 for all)")
	cmd.Flags().StringVar(&site, "site", "", "Only show jobs for this site")
	cmd.Flags().StringVar(&state, "state", "", "Only show jobs in this state (claimed, decoding, resolving, printing, done, error, stalled)")
	return cmd
}
