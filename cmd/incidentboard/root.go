package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"incidentboard/config"
	"incidentboard/core/utils"
)

type rootOptions struct {
	configPath string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "incidentboard",
		Short: "AI safety incident dashboard",
		Long: `incidentboard serves a dashboard of AI safety incidents: a fixed seed list
merged with incidents reported by each browser client.

Configuration is read from the file given by --config (or INCIDENTBOARD_CONFIG)
with INCIDENTBOARD_* environment overrides.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("INCIDENTBOARD_CONFIG"), "Config file (YAML)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newListCmd(opts),
		newReportCmd(opts),
		newEnvCmd(),
	)
	return cmd
}

func (o *rootOptions) load() (*config.AppConfig, *utils.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, utils.NewLoggerWithOptions(os.Stderr, cfg.Log.Level, cfg.Log.JSON), nil
}

func (o *rootOptions) jsonOutput() (bool, error) {
	switch strings.ToLower(strings.TrimSpace(o.output)) {
	case "", "table":
		return false, nil
	case "json":
		return true, nil
	}
	return false, fmt.Errorf("unsupported output format %q", o.output)
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables understood by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
			return err
		},
	}
}
