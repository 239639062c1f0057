package app

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xricksanchez/aflr/internal/campaign"
	"github.com/0xricksanchez/aflr/internal/logger"
	"github.com/0xricksanchez/aflr/internal/monitor"
)

// NewTUICommand creates the "tui <output_dir>" subcommand: attach the
// dashboard to a campaign that is already running (or finished), without
// having launched it in this process.
func NewTUICommand() *cobra.Command {
	var configPath string
	var tickSeconds int

	cmd := &cobra.Command{
		Use:   "tui <output_dir>",
		Short: "Attach the interactive dashboard to an existing campaign's solution directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			solutionDir := args[0]

			logger.Init("info")

			tickPeriod := monitor.DefaultTickPeriod
			if cmd.Flags().Changed("tick-seconds") {
				tickPeriod = time.Duration(tickSeconds) * time.Second
			} else if secs := tickSecondsFromConfig(configPath); secs > 0 {
				tickPeriod = time.Duration(secs) * time.Second
			}

			ctx := cmd.Context()
			startedAt := time.Now()
			poller := monitor.NewPoller(solutionDir, tickPeriod, nil)

			// pollCtx is independently cancellable: monitor.Run can return
			// on a plain "q" quit without ever cancelling ctx, so the
			// poller's background goroutine would otherwise never see
			// Done and wg.Wait below would block forever.
			pollCtx, stopPoll := context.WithCancel(ctx)
			defer stopPoll()

			out := make(chan campaign.CampaignSnapshot, 1)
			wg := poller.Run(pollCtx, out)

			runErr := monitor.Run(ctx, out)
			stopPoll()
			wg.Wait()

			if poller.SoftErrors != nil {
				logger.Warn("monitor soft errors:\n  %s", joinErrs(poller.SoftErrors))
			}
			// Safe only after wg.Wait: the poller goroutine has exited,
			// so this call can't race with its own concurrent Tick.
			last := poller.Tick(time.Now())
			if err := monitor.WriteSummary(solutionDir, last, startedAt); err != nil {
				logger.Warn("failed to write campaign summary: %v", err)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to aflr_cfg.toml (default: ./aflr_cfg.toml)")
	cmd.Flags().IntVar(&tickSeconds, "tick-seconds", 0, "override the monitor's poll period")

	return cmd
}
