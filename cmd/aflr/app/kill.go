package app

import (
	"github.com/spf13/cobra"

	"github.com/0xricksanchez/aflr/internal/campaign"
	aflexec "github.com/0xricksanchez/aflr/internal/exec"
	"github.com/0xricksanchez/aflr/internal/launch"
)

// NewKillCommand creates the "kill <session>" subcommand: terminate a
// multiplexer session previously started by run.
func NewKillCommand() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "kill <session>",
		Short: "Terminate a multiplexer session started by \"run\".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := campaign.Backend(backend)
			if b == "" {
				b = campaign.BackendTmux
			}
			launcher := launch.New(aflexec.NewCommandExecutor())
			return launcher.Kill(cmd.Context(), b, args[0])
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "multiplexer backend: tmux, screen (default: tmux)")
	return cmd
}
