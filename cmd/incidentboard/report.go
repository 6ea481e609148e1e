package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"incidentboard/core/appbootstrap"
	"incidentboard/core/clients"
	"incidentboard/core/incidents"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var title, description, severity, client string
	cmd := &cobra.Command{
		Use:     "report",
		Short:   "Report a new incident into a client slot",
		Example: `  incidentboard report --title "Prompt injection" --description "Tool call leaked secrets" --severity High`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := opts.jsonOutput()
			if err != nil {
				return err
			}
			sev, err := incidents.ParseSeverity(severity)
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
			repo := st.Repository(client)
			d, err := incidents.Load(cmd.Context(), repo)
			if err != nil {
				return err
			}
			_, created, err := d.SubmitDraft(cmd.Context(), repo, incidents.Draft{Title: title, Description: description, Severity: sev}, time.Now())
			if errors.Is(err, incidents.ErrDraftIncomplete) {
				return errors.New(incidents.NoticeDraftIncomplete)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"item": created})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "reported incident %d (%s %s) at %s\n", created.ID, created.Severity.Emoji(), created.Severity, created.ReportedAt)
			return err
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Incident title")
	cmd.Flags().StringVar(&description, "description", "", "Incident description")
	cmd.Flags().StringVar(&severity, "severity", string(incidents.SeverityLow), "Severity (Low, Medium, High)")
	cmd.Flags().StringVar(&client, "client", "", "Client id whose slot receives the incident (default: shared slot)")
	return cmd
}

func checkClientFlag(client string) error {
	if client != "" && !clients.ValidClientID(client) {
		return fmt.Errorf("--client: %w", clients.ErrInvalidClientID)
	}
	return nil
}
