package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-grader/assessment"
	"github.com/RyanBlaney/sonido-grader/logging"
	"github.com/RyanBlaney/sonido-grader/server"
	"github.com/RyanBlaney/sonido-grader/storage"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the grading HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			table, err := cfg.ProfileTable()
			if err != nil {
				return err
			}
			analyzer, err := assessment.NewAnalyzer(table, &cfg.Assessment)
			if err != nil {
				return fmt.Errorf("analyzer: %w", err)
			}

			opts := []server.Option{}
			if cfg.DBPath != "" {
				store, err := storage.Open(cfg.DBPath, storage.WithMkdirAll())
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, server.WithStore(store))
			} else {
				logging.Warn("No db_path configured, results will not be stored")
			}

			srv, err := server.New(cfg, analyzer, opts...)
			if err != nil {
				return err
			}
			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
