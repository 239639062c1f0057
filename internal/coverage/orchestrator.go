package coverage

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/0xricksanchez/aflr/internal/campaign"
	"github.com/0xricksanchez/aflr/internal/exec"
)

// Config collects the orchestrator's inputs: spec §4.6 plus §6's CLI
// surface for the `cov` subcommand.
type Config struct {
	CoverageBinary string   // coverage-instrumented target
	TargetArgs     []string // tail after "--"; "@@" is rewritten to the input path
	SolutionDir    string
	WorkDir        string // scratch directory for .profraw files

	ShowCmd     string // tool for the default report, e.g. "llvm-cov"; render adds the "show" subcommand
	ReportCmd   string
	ExtraFlags  []string
	TextReport  bool
	SplitReports bool
}

// Result is what Run produces: the merged (or per-worker, when
// SplitReports) report output plus the tally of non-fatal per-input
// failures.
type Result struct {
	Reports      map[string]string // worker name ("" for merged) -> report text/path
	InputErrors  error             // aggregated per-input execution failures, nil if all succeeded
	InputCount   int
	ProfileCount int
}

// Run discovers queue inputs, replays them through CoverageBinary under a
// CPU-bounded pool (one profile per input via LLVM_PROFILE_FILE), merges
// the resulting profiles, and drives the external show/report tools.
// Per-input execution failures are tallied into Result.InputErrors and do
// not stop the run; a merge or report failure returns
// ErrCoverageToolFailed, which is fatal.
func Run(ctx context.Context, executor exec.Executor, cfg Config) (*Result, error) {
	inputs, err := Discover(cfg.SolutionDir)
	if err != nil {
		return nil, fmt.Errorf("%w: discovering queue inputs: %v", campaign.ErrCoverageToolFailed, err)
	}

	result := &Result{Reports: map[string]string{}, InputCount: len(inputs)}
	if len(inputs) == 0 {
		return result, nil
	}

	profiles, inputErrs := replayAll(ctx, executor, cfg, inputs)
	result.InputErrors = inputErrs
	result.ProfileCount = len(profiles)

	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: every input execution failed, nothing to merge", campaign.ErrCoverageToolFailed)
	}

	if cfg.SplitReports {
		byWorker := groupByWorker(inputs, profiles)
		for worker, group := range byWorker {
			merged, err := merge(ctx, executor, cfg.WorkDir, worker, group)
			if err != nil {
				return nil, err
			}
			report, err := render(ctx, executor, cfg, merged)
			if err != nil {
				return nil, err
			}
			result.Reports[worker] = report
		}
		return result, nil
	}

	merged, err := merge(ctx, executor, cfg.WorkDir, "merged", profiles)
	if err != nil {
		return nil, err
	}
	report, err := render(ctx, executor, cfg, merged)
	if err != nil {
		return nil, err
	}
	result.Reports[""] = report
	return result, nil
}

// profileRef associates a raw profile path with the worker its input
// came from, so SplitReports can regroup after the flat parallel replay.
type profileRef struct {
	worker string
	path   string
}

// replayAll executes cfg.CoverageBinary once per input under a
// CPU-bounded pool, each with its own LLVM_PROFILE_FILE. Individual
// failures are tallied via multierr and the input is skipped, never
// aborting the whole replay (spec §4.6/§7).
func replayAll(ctx context.Context, executor exec.Executor, cfg Config, inputs []Input) ([]profileRef, error) {
	// .WithErrors(), deliberately NOT .WithContext: the context variant
	// fail-fasts (cancels remaining goroutines) on the first error, but
	// per-input failures here must be tallied and skipped, never allowed
	// to abort sibling replays still in flight.
	p := pool.NewWithResults[*profileRef]().WithErrors().WithMaxGoroutines(runtime.NumCPU())

	for _, in := range inputs {
		in := in
		p.Go(func() (*profileRef, error) {
			profilePath := filepath.Join(cfg.WorkDir, uuid.NewString()+".profraw")
			args := rewriteArgs(cfg.TargetArgs, in.Path)

			_, err := executor.RunContext(ctx, []string{"LLVM_PROFILE_FILE=" + profilePath}, cfg.CoverageBinary, args...)
			if err != nil {
				return nil, fmt.Errorf("input %s: %w", in.Path, err)
			}
			return &profileRef{worker: in.Worker, path: profilePath}, nil
		})
	}

	refs, inputErrs := p.Wait()

	var profiles []profileRef
	for _, r := range refs {
		if r != nil {
			profiles = append(profiles, *r)
		}
	}
	// Sort for deterministic merge-argument ordering across runs.
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].path < profiles[j].path })

	return profiles, inputErrs
}

// rewriteArgs substitutes the single "@@" placeholder with inputPath,
// leaving every other argument untouched.
func rewriteArgs(args []string, inputPath string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "@@" {
			out[i] = inputPath
		} else {
			out[i] = a
		}
	}
	return out
}

func groupByWorker(inputs []Input, profiles []profileRef) map[string][]profileRef {
	out := make(map[string][]profileRef)
	for _, p := range profiles {
		out[p.worker] = append(out[p.worker], p)
	}
	return out
}

// merge runs `llvm-profdata merge -sparse` over profiles, writing
// <workDir>/<label>.profdata. The tool name is fixed here: ShowCmd and
// ReportCmd do not apply to this step.
func merge(ctx context.Context, executor exec.Executor, workDir, label string, profiles []profileRef) (string, error) {
	mergedPath := filepath.Join(workDir, label+".profdata")
	args := []string{"merge", "-sparse", "-o", mergedPath}
	for _, p := range profiles {
		args = append(args, p.path)
	}

	if _, err := executor.RunContext(ctx, nil, "llvm-profdata", args...); err != nil {
		return "", fmt.Errorf("%w: merging profiles for %s: %v", campaign.ErrCoverageToolFailed, label, err)
	}
	return mergedPath, nil
}

// render drives the external show/report tools over a merged profile,
// appending the user's ExtraFlags verbatim and never inspecting the
// output format it receives back.
func render(ctx context.Context, executor exec.Executor, cfg Config, mergedProfile string) (string, error) {
	cmd := cfg.ReportCmd
	if !cfg.TextReport {
		cmd = cfg.ShowCmd
	}
	if cmd == "" {
		cmd = "llvm-cov"
	}

	args := []string{reportSubcommand(cfg.TextReport), "-instr-profile=" + mergedProfile, cfg.CoverageBinary}
	args = append(args, cfg.ExtraFlags...)

	res, err := executor.RunContext(ctx, nil, cmd, args...)
	if err != nil {
		return "", fmt.Errorf("%w: generating report: %v", campaign.ErrCoverageToolFailed, err)
	}
	return res.Stdout, nil
}

func reportSubcommand(text bool) string {
	if text {
		return "report"
	}
	return "show"
}
