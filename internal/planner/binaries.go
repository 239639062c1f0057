package planner

import (
	"math"

	"github.com/0xricksanchez/aflr/internal/rng"
)

// cmplogLevel is the -l value attached to a worker running the
// comparison-log binary.
type cmplogLevel int

const (
	cmplogLevel2 cmplogLevel = 2
	cmplogLevel3 cmplogLevel = 3
)

// binaryAssignment is the outcome of the binary-assignment policy for one
// secondary worker: which auxiliary binary (if any) it runs and, if it is
// a comparison-log worker, which -l level it receives.
type binaryAssignment struct {
	useCmplog    bool
	cmplogLevel  cmplogLevel
	useCmplogCov bool
}

// assignSecondaryBinaries implements spec §4.2's binary-assignment policy
// over the 1..N-1 secondary indices (the index space Main is excluded
// from). It returns one binaryAssignment per secondary, in index order,
// deterministically derived from src.
//
// Comparison-log is attempted first, targeting ~1/3 of secondaries
// (clamped to [1, secondaryCount/2]); comparison-coverage is assigned
// second, targeting ~1/6 of secondaries, skipping any index already
// claimed by comparison-log so the two sets stay disjoint (spec invariant
// 5 / testable property 5).
func assignSecondaryBinaries(src *rng.Source, secondaryCount int, hasCmplog, hasCmplogCov bool) []binaryAssignment {
	out := make([]binaryAssignment, secondaryCount)
	if secondaryCount == 0 {
		return out
	}

	if hasCmplog {
		target := int(math.Round(float64(secondaryCount) * cmplogTargetFraction))
		target = clamp(target, 1, max(1, secondaryCount/2))
		for _, idx := range pickDistinctIndices(src, secondaryCount, target) {
			out[idx].useCmplog = true
			level := rng.Choice(src, []rng.Weighted[cmplogLevel]{
				{cmplogLevel2, cmplogLevel2Weight},
				{cmplogLevel3, cmplogLevel3Weight},
			})
			out[idx].cmplogLevel = level
		}
	}

	if hasCmplogCov {
		target := int(math.Round(float64(secondaryCount) * cmplogCovFraction))
		target = clamp(target, 0, secondaryCount)
		available := make([]int, 0, secondaryCount)
		for i := 0; i < secondaryCount; i++ {
			if !out[i].useCmplog {
				available = append(available, i)
			}
		}
		for _, idx := range pickDistinctFromSet(src, available, min(target, len(available))) {
			out[idx].useCmplogCov = true
		}
	}

	return out
}

// pickDistinctIndices draws count distinct indices from [0, n) using a
// Fisher-Yates-style partial shuffle driven by src, so the selection is
// reproducible for a given seed and independent of map iteration order.
func pickDistinctIndices(src *rng.Source, n, count int) []int {
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	return pickDistinctFromSet(src, pool, count)
}

// pickDistinctFromSet draws count distinct elements out of set (without
// replacement) via partial Fisher-Yates shuffle, leaving set untouched by
// operating on a local copy.
func pickDistinctFromSet(src *rng.Source, set []int, count int) []int {
	if count <= 0 || len(set) == 0 {
		return nil
	}
	if count > len(set) {
		count = len(set)
	}
	pool := append([]int(nil), set...)
	for i := 0; i < count; i++ {
		j := i + src.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:count]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
