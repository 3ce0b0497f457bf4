package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-grader/assessment"
	"github.com/RyanBlaney/sonido-grader/assessment/config"
	"github.com/RyanBlaney/sonido-grader/transcode"
)

type gradeOptions struct {
	voiceRange    string
	tolerance     float64
	expectedNotes int
	asJSON        bool
}

func newGradeCommand(root *rootOptions) *cobra.Command {
	opts := &gradeOptions{}

	cmd := &cobra.Command{
		Use:   "grade FILE",
		Short: "Grade a local recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("tolerance") {
				cfg.Assessment.ToleranceHz = opts.tolerance
			}
			if cmd.Flags().Changed("notes") {
				cfg.Assessment.ExpectedNotes = opts.expectedNotes
			}

			table, err := cfg.ProfileTable()
			if err != nil {
				return err
			}
			voiceRange := config.VoiceRange(strings.ToLower(opts.voiceRange))
			if voiceRange == "" {
				voiceRange = table.DefaultID()
			}
			if _, ok := table.Get(voiceRange); !ok {
				return fmt.Errorf("unknown voice range %q (available: %v)", voiceRange, table.IDs())
			}

			analyzer, err := assessment.NewAnalyzer(table, &cfg.Assessment)
			if err != nil {
				return err
			}

			audio, err := transcode.NewDecoder(&cfg.Decoder).DecodeFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			result, err := analyzer.Analyze(assessment.Waveform{Samples: audio.PCM, SampleRate: audio.SampleRate}, voiceRange)
			if err != nil {
				return err
			}

			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.voiceRange, "voice-range", "r", "", "voice range to grade against (default from config)")
	cmd.Flags().Float64VarP(&opts.tolerance, "tolerance", "t", config.DefaultToleranceHz, "accuracy tolerance in Hz")
	cmd.Flags().IntVar(&opts.expectedNotes, "notes", 0, "number of sung notes to segment (0 = melody length)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printResult(w io.Writer, r *assessment.AssessmentResult) {
	fmt.Fprintf(w, "Voice range: %s\n", r.ReferenceMelody.VoiceRange)
	fmt.Fprintf(w, "Score:       %d (%.1f%%)\n", r.Score, r.OverallPercentage)
	if r.NoPitchDetected() {
		fmt.Fprintln(w, "Method:      none (no pitch detected)")
	} else {
		fmt.Fprintf(w, "Method:      %s (%d pitch points)\n", r.Method, r.ContourLength)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-3s %-8s %10s %10s %-8s %9s %6s\n", "#", "expected", "ref Hz", "sung Hz", "heard", "diff Hz", "ok")
	for _, n := range r.NoteResults {
		ok := "no"
		if n.IsAccurate {
			ok = "yes"
		}
		fmt.Fprintf(w, "%-3d %-8s %10.2f %10.2f %-8s %+9.2f %6s\n",
			n.NoteIndex+1, n.ExpectedNote, n.ExpectedFrequency, n.DetectedFrequency,
			n.DetectedNote, n.FrequencyDifference, ok)
	}
}
