package app

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	aflexec "github.com/0xricksanchez/aflr/internal/exec"
	"github.com/0xricksanchez/aflr/internal/probe"
)

// NewDoctorCommand creates the "doctor" subcommand: a thin, user-facing
// wrapper around the Environment Prober (SPEC_FULL §10 supplement 3).
func NewDoctorCommand() *cobra.Command {
	var enginePath string
	var workers int

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Probe the host and fuzzer engine, and report whether this campaign can run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := probe.Probe(cmd.Context(), enginePath, aflexec.NewCommandExecutor())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "engine resolution failed: %v\n", err)
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"check", "status"})
			table.Append([]string{"engine resolved", pass(snap.EnginePath != "")})
			table.Append([]string{"engine path", snap.EnginePath})
			table.Append([]string{"CMPLOG support", pass(snap.EngineSupportsCmplog)})
			table.Append([]string{"persistent-mode support", pass(snap.EngineSupportsPersistent)})
			table.Append([]string{"CPU count", fmt.Sprintf("%d", snap.CPUCount)})
			table.Append([]string{"CPU headroom for requested workers", pass(workers <= 0 || snap.CPUCount >= workers)})
			table.Append([]string{"total memory (MB)", fmt.Sprintf("%d", snap.TotalMemBytes/1024/1024)})
			table.Append([]string{"free memory (MB)", fmt.Sprintf("%d", snap.FreeMemBytes/1024/1024)})
			table.Render()

			return nil
		},
	}

	cmd.Flags().StringVarP(&enginePath, "engine", "e", "", "fuzzer engine binary path")
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "planned worker count, to check CPU headroom (0 skips the check)")
	_ = cmd.MarkFlagRequired("engine")

	return cmd
}

func pass(ok bool) string {
	if ok {
		return "OK"
	}
	return "MISSING"
}
