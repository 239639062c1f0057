// Package app wires aflr's internal components into the Cobra command
// tree described by spec.md §6: gen, run, tui, cov, kill, plus the
// supplemented doctor subcommand.
package app

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the "aflr" root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aflr",
		Short: "Orchestrates large multi-process coverage-guided fuzzing campaigns.",
		Long: `aflr plans, launches, monitors, and collects coverage for a fuzzing
campaign spread across many worker processes of a coverage-guided fuzzer
engine, without reimplementing any part of the engine itself.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewGenCommand())
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewTUICommand())
	cmd.AddCommand(NewCovCommand())
	cmd.AddCommand(NewKillCommand())
	cmd.AddCommand(NewDoctorCommand())

	return cmd
}
