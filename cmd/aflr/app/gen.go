package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xricksanchez/aflr/internal/campaign"
	"github.com/0xricksanchez/aflr/internal/compose"
)

// NewGenCommand creates the "gen" subcommand: plan a campaign and print
// the composed per-worker commands, without launching anything.
func NewGenCommand() *cobra.Command {
	var f specFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Print composed worker commands for a campaign without launching it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			targetArgs := splitTargetArgs(cmd, args)
			spec, plans, warnings, err := planCampaign(cmd, &f, targetArgs)
			if err != nil {
				return err
			}

			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}

			if asJSON {
				return printPlansJSON(cmd, plans, spec.EnginePath)
			}
			return printPlansPlain(cmd, plans, spec.EnginePath)
		},
	}

	registerSpecFlags(cmd, &f)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print plans as a JSON array instead of shell commands")

	return cmd
}

func printPlansPlain(cmd *cobra.Command, plans []campaign.WorkerPlan, enginePath string) error {
	for _, p := range plans {
		fmt.Fprintln(cmd.OutOrStdout(), compose.Command(p, enginePath))
	}
	return nil
}

type planJSON struct {
	Index        int               `json:"index"`
	Role         string            `json:"role"`
	Name         string            `json:"name"`
	Command      string            `json:"command"`
	TargetBinary string            `json:"target_binary"`
	Env          map[string]string `json:"env"`
}

func printPlansJSON(cmd *cobra.Command, plans []campaign.WorkerPlan, enginePath string) error {
	out := make([]planJSON, len(plans))
	for i, p := range plans {
		out[i] = planJSON{
			Index:        p.Index,
			Role:         string(p.Role),
			Name:         p.Name,
			Command:      compose.Command(p, enginePath),
			TargetBinary: p.TargetBinary,
			Env:          p.Env,
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
