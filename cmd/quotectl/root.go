package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"quotelens/internal/bootstrap"
	"quotelens/internal/config"
	"quotelens/internal/pkg/logx"
)

var outputJSON bool

var rootCmd = &cobra.Command{
	Use:           "quotectl",
	Short:         "Operate a quotelens deployment from the command line",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logx.Setup(cfg.App.LogLevel, cfg.App.LogFormat)
	return cfg, nil
}

// openApp wires the services in-process. Ingest jobs never go through the
// broker from the CLI.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(ctx, cfg, bootstrap.Options{})
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
