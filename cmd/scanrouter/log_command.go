package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var site string

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the audit log of processed files",
		Long:  "Reads the CSV audit log directly, so it works whether or not the daemon is running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			records, err := readAuditRecords(cfg.AuditLogPath())
			if err != nil {
				return err
			}

			if site != "" {
				filtered := records[:0]
				for _, record := range records {
					if record.Site == site {
						filtered = append(filtered, record)
					}
				}
				records = filtered
			}
			if limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No audit records")
				return nil
			}

			view := newTableView([]string{"Timestamp", "Site", "Scan File", "Print ID", "Printer", "Result", "Error"})
			for _, record := range records {
				view.addRow(
					record.Timestamp.Format("2006-01-02 15:04:05"),
					record.Site,
					record.ScanFile,
					record.PrintID,
					record.Printer,
					record.Result,
					record.ErrorMessage,
				)
			}
			fmt.Fprintln(out, view.render())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records to show (0 for all)")
	cmd.Flags().StringVar(&site, "site", "", "Only show records for this site")
	return cmd
}
