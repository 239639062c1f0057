package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xricksanchez/aflr/internal/campaign"
	"github.com/0xricksanchez/aflr/internal/config"
	aflexec "github.com/0xricksanchez/aflr/internal/exec"
	"github.com/0xricksanchez/aflr/internal/logger"
	"github.com/0xricksanchez/aflr/internal/planner"
	"github.com/0xricksanchez/aflr/internal/probe"
)

// specFlags mirrors every campaign.Params field as a CLI flag, shared
// between gen and run (spec.md §6: "Key flags: --config, plus all spec
// fields as flags").
type specFlags struct {
	configPath string

	targetBinary    string
	sanitizerBinary string
	cmplogBinary    string
	cmplogCovBinary string
	coverageBinary  string

	seedDir     string
	solutionDir string
	dictPath    string

	enginePath string
	workers    int
	mode       string
	seed       int64

	seedPassthrough bool
	extraFlags      []string

	sessionName string
	backend     string

	logLevel string
	logDir   string
}

// registerSpecFlags attaches every spec field to cmd's flag set.
func registerSpecFlags(cmd *cobra.Command, f *specFlags) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to aflr_cfg.toml (default: ./aflr_cfg.toml)")

	cmd.Flags().StringVarP(&f.targetBinary, "target", "b", "", "target binary path")
	cmd.Flags().StringVar(&f.sanitizerBinary, "sanitizer-binary", "", "sanitizer-instrumented binary (optional)")
	cmd.Flags().StringVar(&f.cmplogBinary, "cmplog-binary", "", "CMPLOG-instrumented binary (optional)")
	cmd.Flags().StringVar(&f.cmplogCovBinary, "cmplog-cov-binary", "", "CMPLOG coverage-collection binary (optional)")
	cmd.Flags().StringVar(&f.coverageBinary, "coverage-binary", "", "coverage-instrumented binary (optional)")

	cmd.Flags().StringVarP(&f.seedDir, "input", "i", "", "seed corpus directory")
	cmd.Flags().StringVarP(&f.solutionDir, "output", "o", "", "solution/output directory")
	cmd.Flags().StringVar(&f.dictPath, "dict", "", "token dictionary path (optional)")

	cmd.Flags().StringVarP(&f.enginePath, "engine", "e", "", "fuzzer engine binary path")
	cmd.Flags().IntVarP(&f.workers, "workers", "n", 1, "number of worker processes")
	cmd.Flags().StringVar(&f.mode, "mode", "", "diversification profile: default, multiple_cores, ci_fuzzing")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "campaign PRNG seed (default: drawn from the OS)")

	cmd.Flags().BoolVar(&f.seedPassthrough, "seed-passthrough", false, "forward each worker's derived seed via -s")
	cmd.Flags().StringSliceVar(&f.extraFlags, "extra-flags", nil, "free-form engine flags appended verbatim")

	cmd.Flags().StringVar(&f.sessionName, "session", "", "multiplexer session name (default: aflr)")
	cmd.Flags().StringVar(&f.backend, "backend", "", "multiplexer backend: tmux, screen")

	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&f.logDir, "log-dir", "", "mirror logs into this directory (optional)")
}

// splitTargetArgs returns the positional arguments following a literal
// "--", the placeholder convention spec.md §6 defines for target args.
func splitTargetArgs(cmd *cobra.Command, args []string) []string {
	dash := cmd.Flags().ArgsLenAtDash()
	if dash < 0 {
		return nil
	}
	return append([]string(nil), args[dash:]...)
}

// buildParams merges the optional config file with CLI flag overrides
// (flags win, matching spec.md §6: "CLI flags override file values") and
// initializes logging from the resolved log level/dir.
func buildParams(cmd *cobra.Command, f *specFlags, targetArgs []string) (campaign.Params, error) {
	fileCfg, err := config.Load(f.configPath)
	if err != nil {
		return campaign.Params{}, fmt.Errorf("%w: loading config: %v", campaign.ErrInvalidSpec, err)
	}

	p := campaign.Params{
		TargetBinary:    fileCfg.Target.BinaryPath,
		SanitizerBinary: fileCfg.Target.SanitizerBinary,
		CmplogBinary:    fileCfg.Target.CmplogBinary,
		CmplogCovBinary: fileCfg.Target.CmplogCovBinary,
		CoverageBinary:  fileCfg.Target.CoverageBinary,
		TargetArgs:      fileCfg.Target.Args,
		SeedDir:         fileCfg.Target.SeedDir,
		SolutionDir:     fileCfg.Target.SolutionDir,
		DictPath:        fileCfg.Target.DictPath,
		EnginePath:      fileCfg.AFL.EnginePath,
		Workers:         fileCfg.AFL.Workers,
		Mode:            campaign.Mode(fileCfg.AFL.Mode),
		Seed:            fileCfg.AFL.Seed,
		SeedPassthrough: fileCfg.AFL.SeedPassthrough,
		ExtraFlags:      fileCfg.AFL.ExtraFlags,
		SessionName:     fileCfg.Session.Name,
		Backend:         campaign.Backend(fileCfg.Session.Backend),
	}

	flags := cmd.Flags()
	if flags.Changed("target") {
		p.TargetBinary = f.targetBinary
	}
	if flags.Changed("sanitizer-binary") {
		p.SanitizerBinary = f.sanitizerBinary
	}
	if flags.Changed("cmplog-binary") {
		p.CmplogBinary = f.cmplogBinary
	}
	if flags.Changed("cmplog-cov-binary") {
		p.CmplogCovBinary = f.cmplogCovBinary
	}
	if flags.Changed("coverage-binary") {
		p.CoverageBinary = f.coverageBinary
	}
	if flags.Changed("input") {
		p.SeedDir = f.seedDir
	}
	if flags.Changed("output") {
		p.SolutionDir = f.solutionDir
	}
	if flags.Changed("dict") {
		p.DictPath = f.dictPath
	}
	if flags.Changed("engine") {
		p.EnginePath = f.enginePath
	}
	if flags.Changed("workers") {
		p.Workers = f.workers
	} else if p.Workers == 0 {
		p.Workers = 1
	}
	if flags.Changed("mode") {
		p.Mode = campaign.Mode(f.mode)
	}
	if flags.Changed("seed") {
		seed := f.seed
		p.Seed = &seed
	}
	if flags.Changed("seed-passthrough") {
		p.SeedPassthrough = f.seedPassthrough
	}
	if flags.Changed("extra-flags") {
		p.ExtraFlags = f.extraFlags
	}
	if flags.Changed("session") {
		p.SessionName = f.sessionName
	}
	if flags.Changed("backend") {
		p.Backend = campaign.Backend(f.backend)
	}
	if len(targetArgs) > 0 {
		p.TargetArgs = targetArgs
	}

	logLevel := fileCfg.Misc.LogLevel
	if flags.Changed("log-level") {
		logLevel = f.logLevel
	}
	if logLevel == "" {
		logLevel = "info"
	}
	logDir := fileCfg.Misc.LogDir
	if flags.Changed("log-dir") {
		logDir = f.logDir
	}
	if logDir != "" {
		if err := logger.InitWithFile(logLevel, logDir); err != nil {
			return campaign.Params{}, err
		}
	} else {
		logger.Init(logLevel)
	}

	return p, nil
}

// planCampaign is the common gen/run path: merge config+flags into a
// validated Spec, probe the host/engine, and ask the planner to assign
// per-worker plans. Returns the planner's own seed-count-capping warnings
// verbatim (spec.md §3: "the Prober may lower N with a warning").
func planCampaign(cmd *cobra.Command, f *specFlags, targetArgs []string) (*campaign.Spec, []campaign.WorkerPlan, []string, error) {
	params, err := buildParams(cmd, f, targetArgs)
	if err != nil {
		return nil, nil, nil, err
	}

	spec, err := campaign.New(params)
	if err != nil {
		return nil, nil, nil, err
	}

	executor := aflexec.NewCommandExecutor()
	snapshot, err := probe.Probe(cmd.Context(), spec.EnginePath, executor)
	if err != nil {
		return nil, nil, nil, err
	}

	plans, warnings, err := planner.Assign(spec, snapshot)
	if err != nil {
		return nil, nil, nil, err
	}
	return spec, plans, warnings, nil
}

// tickSecondsFromConfig loads misc.tick_seconds from the config file at
// path, falling back to 0 (meaning "use monitor.DefaultTickPeriod") on any
// load error or unset value.
func tickSecondsFromConfig(path string) int {
	fileCfg, err := config.Load(path)
	if err != nil {
		return 0
	}
	return fileCfg.Misc.TickSeconds
}

// joinErrs renders a soft-error chain for a closing log line, one per line.
func joinErrs(err error) string {
	if err == nil {
		return ""
	}
	return strings.ReplaceAll(err.Error(), "; ", "\n  ")
}
