package planner

import (
	"github.com/0xricksanchez/aflr/internal/campaign"
	"github.com/0xricksanchez/aflr/internal/rng"
)

// PowerSchedule is one of the fuzzer engine's -p values.
type PowerSchedule string

const (
	ScheduleFast    PowerSchedule = "fast"
	ScheduleExplore PowerSchedule = "explore"
	ScheduleCoe     PowerSchedule = "coe"
	ScheduleLin     PowerSchedule = "lin"
	ScheduleQuad    PowerSchedule = "quad"
	ScheduleExploit PowerSchedule = "exploit"
	ScheduleRare    PowerSchedule = "rare"
)

// allSchedules backs the Default-mode uniform draw across every schedule.
var allSchedules = []PowerSchedule{
	ScheduleFast, ScheduleExplore, ScheduleCoe, ScheduleLin,
	ScheduleQuad, ScheduleExploit, ScheduleRare,
}

// MutationMode is one of the fuzzer engine's -P values.
type MutationMode string

const (
	MutationExplore MutationMode = "explore"
	MutationExploit MutationMode = "exploit"
)

// FormatHint is one of the fuzzer engine's -a values.
type FormatHint string

const (
	FormatText   FormatHint = "text"
	FormatBinary FormatHint = "binary"
)

// The named constants below are spec §4.2's diversification table,
// frozen so the planner's probabilistic choices stay pinned to one
// value set rather than drifting with each edit.
const (
	// MultipleCores power-schedule weights for secondaries.
	mcScheduleExploreWeight = 0.40
	mcScheduleCoeWeight     = 0.20
	// the remaining 5 schedules split the rest (~8% each) evenly.
	mcScheduleRemainderWeight = (1.0 - mcScheduleExploreWeight - mcScheduleCoeWeight) / 5

	// MultipleCores mutation-mode split.
	mcMutationExploreWeight = 0.60
	mcMutationExploitWeight = 0.40

	// MultipleCores format-hint application rate.
	mcFormatHintRate = 0.30

	// MultipleCores sequential-queue (-Z) application rate.
	mcSequentialQueueRate = 0.20

	// Ergonomic AFL_* toggles, both modes that use them at all.
	ergonomicToggleRate = 0.50

	// Comparison-log attachment fraction of secondaries (target ~1/3,
	// clamped to [1, secondaries/2] by assignSecondaryBinaries).
	cmplogTargetFraction = 1.0 / 3.0

	// Comparison-log level weighting, -l 2 vs -l 3 (3:1).
	cmplogLevel2Weight = 3.0
	cmplogLevel3Weight = 1.0

	// Comparison-coverage replacement fraction of secondaries (~1/6,
	// disjoint from the comparison-log set).
	cmplogCovFraction = 1.0 / 6.0
)

// ergonomicToggles are the AFL_* env vars diversified per worker at
// ergonomicToggleRate in Default and MultipleCores modes (off in CIFuzzing).
var ergonomicToggles = []string{
	"AFL_DISABLE_TRIM",
	"AFL_KEEP_TIMEOUTS",
	"AFL_EXPAND_HAVOC_NOW",
	"AFL_IGNORE_SEED_PROBLEMS",
	"AFL_IMPORT_FIRST",
}

// scheduleWeightsFor returns the weighted power-schedule options for a
// secondary worker under mode. Main's schedule is always ScheduleFast and
// is assigned directly in plan.go, not through this table.
func scheduleWeightsFor(mode campaign.Mode) []rng.Weighted[PowerSchedule] {
	switch mode {
	case campaign.ModeMultipleCores:
		opts := []rng.Weighted[PowerSchedule]{
			{ScheduleExplore, mcScheduleExploreWeight},
			{ScheduleCoe, mcScheduleCoeWeight},
		}
		for _, s := range []PowerSchedule{ScheduleFast, ScheduleLin, ScheduleQuad, ScheduleExploit, ScheduleRare} {
			opts = append(opts, rng.Weighted[PowerSchedule]{s, mcScheduleRemainderWeight})
		}
		return opts
	case campaign.ModeCIFuzzing:
		return []rng.Weighted[PowerSchedule]{{ScheduleExplore, 1}}
	default: // campaign.ModeDefault
		opts := make([]rng.Weighted[PowerSchedule], len(allSchedules))
		for i, s := range allSchedules {
			opts[i] = rng.Weighted[PowerSchedule]{s, 1}
		}
		return opts
	}
}
