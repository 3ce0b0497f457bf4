package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-grader/logging"
	"github.com/RyanBlaney/sonido-grader/server"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "sonido-grader",
		Short:        "Grade sung recordings against a reference melody",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCommand(opts),
		newGradeCommand(opts),
		newRangesCommand(opts),
	)
	return cmd
}

// loadConfig reads --config when given, applies --log-level and configures the global logger
func (o *rootOptions) loadConfig() (*server.Config, error) {
	cfg := server.DefaultConfig()
	if o.configPath != "" {
		loaded, err := server.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logging.SetLevel(level)

	return cfg, nil
}
