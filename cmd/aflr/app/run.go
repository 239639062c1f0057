package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xricksanchez/aflr/internal/campaign"
	"github.com/0xricksanchez/aflr/internal/compose"
	aflexec "github.com/0xricksanchez/aflr/internal/exec"
	"github.com/0xricksanchez/aflr/internal/launch"
	"github.com/0xricksanchez/aflr/internal/logger"
	"github.com/0xricksanchez/aflr/internal/monitor"
)

// NewRunCommand creates the "run" subcommand: plan, launch, and
// (optionally) attach the monitor to a fresh campaign.
func NewRunCommand() *cobra.Command {
	var f specFlags
	var dryRun, detached, tui, ramdisk bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate, launch, and (optionally) monitor a fuzzing campaign.",
		RunE: func(cmd *cobra.Command, args []string) error {
			targetArgs := splitTargetArgs(cmd, args)
			spec, plans, warnings, err := planCampaign(cmd, &f, targetArgs)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				logger.Warn("%s", w)
			}

			if ramdisk {
				logger.Warn("--ramdisk requested: aflr does not mount tmpfs itself; " +
					"point --output at an already-provisioned ramdisk mount")
			}

			if err := os.MkdirAll(spec.SolutionDir, 0755); err != nil {
				return fmt.Errorf("%w: creating solution directory: %v", campaign.ErrIoError, err)
			}

			commands := make([]string, len(plans))
			for i, p := range plans {
				commands[i] = compose.Command(p, spec.EnginePath)
			}

			launcher := launch.New(aflexec.NewCommandExecutor())
			logPath := filepath.Join(spec.SolutionDir, spec.SessionName+".log")
			pidPath := filepath.Join(spec.SolutionDir, spec.SessionName+".pid")
			scriptPath := filepath.Join(spec.SolutionDir, spec.SessionName+"_launch.sh")

			result, err := launcher.Launch(cmd.Context(), spec.Backend, spec.SessionName, commands, logPath, pidPath, scriptPath, dryRun)
			if err != nil {
				return err
			}

			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), result.Script)
				return nil
			}

			logger.Info("launched %d workers in session %q (backend %s)", len(result.PIDs), spec.SessionName, spec.Backend)

			if detached && !tui {
				return nil
			}

			pids := make(map[string]int, len(plans))
			for i, p := range plans {
				if i < len(result.PIDs) {
					pids[p.Name] = result.PIDs[i]
				}
			}

			return attachMonitor(cmd, spec, pids, tui, f.configPath)
		},
	}

	registerSpecFlags(cmd, &f)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the launcher script instead of executing it")
	cmd.Flags().BoolVar(&detached, "detached", false, "launch and return immediately without attaching a monitor")
	cmd.Flags().BoolVar(&tui, "tui", false, "attach the interactive terminal dashboard after launch")
	cmd.Flags().BoolVar(&ramdisk, "ramdisk", false, "campaign output lives on an operator-provisioned ramdisk")

	return cmd
}

// attachMonitor drives the poller either as an interactive dashboard (tui)
// or as a plain polling loop that exits when the context is cancelled,
// persisting a campaign_summary.json either way.
func attachMonitor(cmd *cobra.Command, spec *campaign.Spec, pids map[string]int, interactive bool, configPath string) error {
	ctx := cmd.Context()
	startedAt := time.Now()

	tickPeriod := monitor.DefaultTickPeriod
	if secs := tickSecondsFromConfig(configPath); secs > 0 {
		tickPeriod = time.Duration(secs) * time.Second
	}
	poller := monitor.NewPoller(spec.SolutionDir, tickPeriod, pids)

	// pollCtx is independently cancellable: monitor.Run can return on a
	// plain "q" quit without ever cancelling ctx (tea.WithContext only
	// kills the dashboard when ctx is cancelled, not the reverse), so the
	// poller's background goroutine would otherwise never see Done and
	// wg.Wait below would block forever.
	pollCtx, stopPoll := context.WithCancel(ctx)
	defer stopPoll()

	out := make(chan campaign.CampaignSnapshot, 1)
	wg := poller.Run(pollCtx, out)

	var last campaign.CampaignSnapshot
	var runErr error
	if interactive {
		runErr = monitor.Run(ctx, out)
		stopPoll()
		wg.Wait()
		// Safe only after wg.Wait: the poller goroutine has exited, so
		// this call can't race with its own concurrent Tick.
		last = poller.Tick(time.Now())
	} else {
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case snap := <-out:
				last = snap
			}
		}
		wg.Wait()
	}

	if poller.SoftErrors != nil {
		logger.Warn("monitor soft errors:\n  %s", joinErrs(poller.SoftErrors))
	}
	if err := monitor.WriteSummary(spec.SolutionDir, last, startedAt); err != nil {
		logger.Warn("failed to write campaign summary: %v", err)
	}
	return runErr
}
