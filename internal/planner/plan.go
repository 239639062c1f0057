// Package planner is the Flag Assigner: the deterministic, pure function
// that turns a CampaignSpec and an Environment Prober snapshot into one
// WorkerPlan per worker. Nothing in this package touches a filesystem or
// subprocess beyond what the caller already resolved into the spec/
// snapshot — the same (spec, snapshot) pair always yields byte-identical
// plans (spec §8, testable property 1).
package planner

import (
	"fmt"
	"os"
	"strconv"

	"github.com/0xricksanchez/aflr/internal/campaign"
	"github.com/0xricksanchez/aflr/internal/probe"
	"github.com/0xricksanchez/aflr/internal/rng"
)

const (
	fixedTestcacheSize = "250"
)

// seedFileCount counts regular files directly inside dir, used to cap
// worker count against the available seed corpus (spec §3 invariant:
// "N is bounded above by the number of seed files available").
func seedFileCount(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("%w: reading seed directory %q: %v", campaign.ErrIoError, dir, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

// Assign is the Flag Assigner's contract: assign(spec, snapshot) -> [WorkerPlan; N].
// It may lower spec.Workers (returning plans for the capped count, with a
// warning string) when there are fewer seed files than requested workers.
func Assign(spec *campaign.Spec, snapshot *probe.Snapshot) ([]campaign.WorkerPlan, []string, error) {
	var warnings []string

	workers := spec.Workers
	seedCount, err := seedFileCount(spec.SeedDir)
	if err == nil && seedCount > 0 && workers > seedCount {
		warnings = append(warnings, fmt.Sprintf(
			"requested %d workers but only %d seed files are available; capping to %d",
			workers, seedCount, seedCount))
		workers = seedCount
	}
	if workers < 1 {
		return nil, warnings, fmt.Errorf("%w: no usable worker count (seed directory is empty)", campaign.ErrInvalidSpec)
	}

	if spec.CmplogBinary != "" {
		if err := checkBinaryExists(spec.CmplogBinary); err != nil {
			return nil, warnings, err
		}
	}
	if spec.CmplogCovBinary != "" {
		if err := checkBinaryExists(spec.CmplogCovBinary); err != nil {
			return nil, warnings, err
		}
	}
	if spec.SanitizerBinary != "" {
		if err := checkBinaryExists(spec.SanitizerBinary); err != nil {
			return nil, warnings, err
		}
	}

	secondaryCount := workers - 1
	src := rng.NewSource(uint64(*spec.Seed))

	assignments := assignSecondaryBinaries(
		src, secondaryCount,
		spec.CmplogBinary != "", spec.CmplogCovBinary != "",
	)

	plans := make([]campaign.WorkerPlan, workers)
	stem := spec.TargetStem()

	for i := 0; i < workers; i++ {
		wseed := rng.Mix(uint64(*spec.Seed), uint64(i))

		plan := campaign.WorkerPlan{
			Index:        i,
			TargetBinary: spec.TargetBinary,
			TargetArgs:   append([]string(nil), spec.TargetArgs...),
			DerivedSeed:  wseed,
			Env:          map[string]string{},
		}

		if i == 0 {
			plan.Role = campaign.RoleMain
			plan.Name = fmt.Sprintf("%s_%s", spec.SessionName, stem)
			if spec.SanitizerBinary != "" {
				plan.TargetBinary = spec.SanitizerBinary
			}
		} else {
			plan.Role = campaign.RoleSecondary
			plan.Name = fmt.Sprintf("secondary_%d_%s", i-1, stem)
		}

		plan.Flags = buildFlags(spec, snapshot, src, i, workers, assignments, &plan)
		applyFixedEnv(plan.Env, spec, i, workers)

		plans[i] = plan
	}

	return plans, warnings, nil
}

// checkBinaryExists verifies path resolves to a readable file, wrapping
// failures as ErrInvalidSpec per §4.2's "referenced binary is missing"
// validation rule (distinct from the ErrIoError the campaign package uses
// for its own required-path checks).
func checkBinaryExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: referenced binary %q: %v", campaign.ErrInvalidSpec, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: referenced binary %q is a directory", campaign.ErrInvalidSpec, path)
	}
	return nil
}

// buildFlags assembles the ordered fuzzer-engine flag vector for worker i.
func buildFlags(
	spec *campaign.Spec, snapshot *probe.Snapshot, src *rng.Source,
	i, workers int, assignments []binaryAssignment, plan *campaign.WorkerPlan,
) []string {
	flags := []string{}

	if plan.Role == campaign.RoleMain {
		flags = append(flags, "-M", plan.Name)
	} else {
		flags = append(flags, "-S", plan.Name)
	}

	flags = append(flags, "-i", spec.SeedDir, "-o", spec.SolutionDir)
	if spec.DictPath != "" {
		flags = append(flags, "-x", spec.DictPath)
	}

	schedule := powerScheduleFor(spec.Mode, src, plan.Role)
	flags = append(flags, "-p", string(schedule))

	if plan.Role == campaign.RoleSecondary {
		idx := i - 1

		if spec.Mode == campaign.ModeMultipleCores {
			if src.Bool(mcMutationExploreWeight / (mcMutationExploreWeight + mcMutationExploitWeight)) {
				flags = append(flags, "-P", string(MutationExplore))
			} else {
				flags = append(flags, "-P", string(MutationExploit))
			}
			if src.Bool(mcFormatHintRate) {
				flags = append(flags, "-a", string(FormatText))
			}
			if src.Bool(mcSequentialQueueRate) {
				flags = append(flags, "-Z")
			}
		}

		if idx < len(assignments) {
			a := assignments[idx]
			if spec.CmplogBinary != "" && snapshot.EngineSupportsCmplog && a.useCmplog {
				flags = append(flags, "-c", spec.CmplogBinary, "-l", strconv.Itoa(int(a.cmplogLevel)))
			}
			if spec.CmplogCovBinary != "" && a.useCmplogCov {
				plan.TargetBinary = spec.CmplogCovBinary
			}
		}
	}

	if spec.SeedPassthrough {
		flags = append(flags, "-s", strconv.FormatUint(plan.DerivedSeed, 10))
	}

	flags = append(flags, spec.ExtraFlags...)

	return flags
}

// powerScheduleFor picks -p for one worker. Main is always "fast"; the
// secondary draw is mode-dependent, except CIFuzzing which is fixed to
// "explore" for every secondary (no PRNG draw consumed, so CIFuzzing
// plans don't depend on ergonomic-toggle ordering at all).
func powerScheduleFor(mode campaign.Mode, src *rng.Source, role campaign.Role) PowerSchedule {
	if role == campaign.RoleMain {
		return ScheduleFast
	}
	if mode == campaign.ModeCIFuzzing {
		return ScheduleExplore
	}
	return rng.Choice(src, scheduleWeightsFor(mode))
}

// applyFixedEnv sets the always-on env vars, the mode-gated ergonomic
// toggles, and AFL_FINAL_SYNC on exactly the last worker. Per spec §4.2 a
// variable already present in the caller's own environment is left alone
// rather than overwritten — checked via os.LookupEnv so the assigner
// never clobbers an operator override.
func applyFixedEnv(env map[string]string, spec *campaign.Spec, i, workers int) {
	setIfAbsent(env, "AFL_AUTORESUME", "1")
	setIfAbsent(env, "AFL_TESTCACHE_SIZE", fixedTestcacheSize)

	if spec.Mode != campaign.ModeCIFuzzing {
		src := rng.NewSource(rng.Mix(uint64(*spec.Seed), uint64(i)+1<<32))
		for _, toggle := range ergonomicToggles {
			if src.Bool(ergonomicToggleRate) {
				setIfAbsent(env, toggle, "1")
			}
		}
	}

	if i == workers-1 {
		setIfAbsent(env, "AFL_FINAL_SYNC", "1")
	}
}

func setIfAbsent(env map[string]string, key, value string) {
	if _, ok := os.LookupEnv(key); ok {
		return
	}
	env[key] = value
}
