package app

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	aflexec "github.com/0xricksanchez/aflr/internal/exec"

	"github.com/0xricksanchez/aflr/internal/config"
	"github.com/0xricksanchez/aflr/internal/coverage"
)

// NewCovCommand creates the "cov" subcommand: replay a campaign's queue
// inputs through a coverage-instrumented build and render a report.
func NewCovCommand() *cobra.Command {
	var (
		configPath     string
		coverageBinary string
		outputDir      string
		workDir        string
		showCmd        string
		reportCmd      string
		extraFlags     []string
		textReport     bool
		splitReports   bool
	)

	cmd := &cobra.Command{
		Use:   "cov",
		Short: "Produce a coverage report from a campaign's discovered queue inputs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			targetArgs := splitTargetArgs(cmd, args)

			fileCfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			cfg := coverage.Config{
				CoverageBinary: fileCfg.Target.CoverageBinary,
				TargetArgs:     targetArgs,
				SolutionDir:    outputDir,
				WorkDir:        workDir,
				ShowCmd:        fileCfg.Coverage.ShowCmd,
				ReportCmd:      fileCfg.Coverage.ReportCmd,
				ExtraFlags:     fileCfg.Coverage.ExtraFlags,
				TextReport:     fileCfg.Coverage.TextReport,
				SplitReports:   fileCfg.Coverage.SplitReports,
			}
			if flags.Changed("coverage-binary") {
				cfg.CoverageBinary = coverageBinary
			}
			if flags.Changed("show-cmd") {
				cfg.ShowCmd = showCmd
			}
			if flags.Changed("report-cmd") {
				cfg.ReportCmd = reportCmd
			}
			if flags.Changed("extra-flags") {
				cfg.ExtraFlags = extraFlags
			}
			if flags.Changed("text-report") {
				cfg.TextReport = textReport
			}
			if flags.Changed("split-reports") {
				cfg.SplitReports = splitReports
			}
			if cfg.WorkDir == "" {
				var err error
				cfg.WorkDir, err = os.MkdirTemp("", "aflr-cov-")
				if err != nil {
					return err
				}
				defer os.RemoveAll(cfg.WorkDir)
			}

			result, err := coverage.Run(cmd.Context(), aflexec.NewCommandExecutor(), cfg)
			if err != nil {
				return err
			}

			printCoverageSummary(cmd, result)

			if result.InputErrors != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: some inputs failed to replay:\n  %s\n", joinErrs(result.InputErrors))
			}

			workerNames := make([]string, 0, len(result.Reports))
			for w := range result.Reports {
				workerNames = append(workerNames, w)
			}
			sort.Strings(workerNames)
			for _, worker := range workerNames {
				if worker != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "=== %s ===\n", worker)
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Reports[worker])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to aflr_cfg.toml (default: ./aflr_cfg.toml)")
	cmd.Flags().StringVarP(&coverageBinary, "target", "t", "", "coverage-instrumented target binary")
	cmd.Flags().StringVarP(&outputDir, "input", "i", "", "campaign solution directory to discover queue inputs from")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "scratch directory for raw profiles (default: a temp dir)")
	cmd.Flags().StringVar(&showCmd, "show-cmd", "", "coverage-show command (default: llvm-cov)")
	cmd.Flags().StringVar(&reportCmd, "report-cmd", "", "coverage-report command (default: llvm-cov)")
	cmd.Flags().StringSliceVar(&extraFlags, "extra-flags", nil, "extra flags appended to the show/report invocation")
	cmd.Flags().BoolVar(&textReport, "text-report", false, "render a text report instead of the default format")
	cmd.Flags().BoolVar(&splitReports, "split-reports", false, "produce one report per worker instead of one merged report")

	return cmd
}

func printCoverageSummary(cmd *cobra.Command, result *coverage.Result) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"metric", "value"})
	table.Append([]string{"inputs discovered", fmt.Sprintf("%d", result.InputCount)})
	table.Append([]string{"profiles collected", fmt.Sprintf("%d", result.ProfileCount)})
	table.Append([]string{"reports", fmt.Sprintf("%d", len(result.Reports))})
	table.Render()
}
