package monitor

import (
	"math"
	"time"

	"github.com/0xricksanchez/aflr/internal/campaign"
)

// ringBuffer is a fixed-capacity sparkline history of recent execution
// rates. Pushing past capacity overwrites the oldest sample.
type ringBuffer struct {
	samples []float64
	cap     int
	next    int
	filled  bool
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{samples: make([]float64, capacity), cap: capacity}
}

func (r *ringBuffer) push(v float64) {
	r.samples[r.next] = v
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.filled = true
	}
}

// values returns the buffered samples in chronological order (oldest
// first), for sparkline rendering.
func (r *ringBuffer) values() []float64 {
	if !r.filled {
		return append([]float64(nil), r.samples[:r.next]...)
	}
	out := make([]float64, 0, r.cap)
	out = append(out, r.samples[r.next:]...)
	out = append(out, r.samples[:r.next]...)
	return out
}

// aggregate reduces a tick's worker snapshots into a CampaignSnapshot.
// uniqueCrashes/uniqueHangs are already campaign-wide distinct counts
// (from a hashCache shared across every worker's crashes/hangs
// directory), not a sum of each worker's own count — crash content
// legitimately repeats across workers, and spec §3 counts unique hashes
// once campaign-wide, not once per worker that rediscovered them.
func aggregate(tick int, takenAt, startedAt time.Time, workers []campaign.WorkerStatusSnapshot, rates *ringBuffer, uniqueCrashes, uniqueHangs int) campaign.CampaignSnapshot {
	snap := campaign.CampaignSnapshot{
		Tick:          tick,
		Takenat:       takenAt,
		Elapsed:       takenAt.Sub(startedAt),
		Workers:       workers,
		UniqueCrashes: uniqueCrashes,
		UniqueHangs:   uniqueHangs,
	}

	var (
		sum      float64
		min      = math.Inf(1)
		max      = math.Inf(-1)
		known    int
		totalExe float64
	)

	for _, w := range workers {
		if w.ExecPerSecNow.Known {
			rate := w.ExecPerSecNow.Value
			sum += rate
			known++
			if rate < min {
				min = rate
			}
			if rate > max {
				max = rate
			}
		}
		if w.ExecutionsDone.Known {
			totalExe += w.ExecutionsDone.Value
		}
	}

	snap.ExecRate = sum
	snap.TotalExec = totalExe
	if known > 0 {
		snap.ExecRateMin = min
		snap.ExecRateMax = max
		snap.ExecRateMean = sum / float64(known)
	}

	rates.push(sum)

	return snap
}
