package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRangesCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ranges",
		Short: "List the configured voice ranges and their melodies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			table, err := cfg.ProfileTable()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, p := range table.Profiles() {
				marker := " "
				if p.ID == table.DefaultID() {
					marker = "*"
				}
				notes := make([]string, len(p.Notes))
				for i, n := range p.Notes {
					notes[i] = fmt.Sprintf("%s(%.2f)", n.Name, n.Frequency)
				}
				fmt.Fprintf(out, "%s %-10s %6.0f-%-6.0f Hz  %s\n", marker, p.ID, p.MinFreq, p.MaxFreq, strings.Join(notes, " "))
			}
			return nil
		},
	}
}
