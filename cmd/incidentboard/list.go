package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"incidentboard/core/appbootstrap"
	"incidentboard/core/incidents"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var severity, order, client string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the incident list of a client slot",
		Long: `Print the seed incidents merged with the additions stored for a client.

Examples:
  incidentboard list
  incidentboard list --severity High --sort oldest
  incidentboard list --client 1b4e28ba-2fa1-41d2-883f-0016d3cca427 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := opts.jsonOutput()
			if err != nil {
				return err
			}
			f, err := incidents.ParseSeverityFilter(severity)
			if err != nil {
				return err
			}
			o, err := incidents.ParseSortOrder(order)
			if err != nil {
				return err
			}
			if err := checkClientFlag(client); err != nil {
				return err
			}
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			st, err := appbootstrap.OpenStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			d, err := incidents.Load(cmd.Context(), st.Repository(client))
			if err != nil {
				return err
			}
			items := incidents.Derive(d.Incidents(), f, o)
			if asJSON {
				if items == nil {
					items = []incidents.Incident{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"items": items})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSEVERITY\tREPORTED\tTITLE")
			for _, item := range items {
				fmt.Fprintf(tw, "%d\t%s %s\t%s\t%s\n", item.ID, item.Severity.Emoji(), item.Severity, item.ReportedAt, item.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&severity, "severity", "All", "Severity filter (All, Low, Medium, High)")
	cmd.Flags().StringVar(&order, "sort", "newest", "Sort order (newest, oldest)")
	cmd.Flags().StringVar(&client, "client", "", "Client id whose slot to read (default: shared slot)")
	return cmd
}
