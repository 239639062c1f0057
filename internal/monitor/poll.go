// Package monitor is the Campaign Monitor: it scans the solution
// directory a running (or finished) campaign writes into, parses each
// worker's fuzzer_stats and queue/crashes/hangs subtrees, aggregates a
// CampaignSnapshot once per tick, and drives the terminal dashboard in
// tui.go. The poll loop and the UI loop communicate over a single
// drop-intermediate channel (spec §5): the UI only ever cares about the
// most recent snapshot.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/0xricksanchez/aflr/internal/campaign"
)

// DefaultTickPeriod is the ~1 Hz default from spec §4.5; callers may
// override it (the CLI's --tick-seconds / config's misc.tick_seconds).
const DefaultTickPeriod = time.Second

const sparklineCapacity = 120

// Poller owns one tracker per worker directory and produces a
// CampaignSnapshot each tick.
type Poller struct {
	SolutionDir string
	TickPeriod  time.Duration
	PIDs        map[string]int // worker directory basename -> PID, if known

	startedAt  time.Time
	tick       atomic.Int64
	trackers   map[string]*workerTracker
	rates      *ringBuffer
	crashCache *hashCache // shared across every worker, for a campaign-wide unique count
	hangCache  *hashCache

	// SoftErrors accumulates non-fatal per-tick parse/read problems via
	// multierr, so a caller can log everything the monitor swallowed
	// without aborting the run (spec §7: "logged and do not crash the
	// monitor").
	SoftErrors error
}

// NewPoller creates a Poller over solutionDir, ticking every tickPeriod
// (DefaultTickPeriod if zero). pids maps worker directory name to its
// known PID (from the launcher's pid file); nil is fine when monitoring
// an existing campaign whose pid file isn't available (tui subcommand).
func NewPoller(solutionDir string, tickPeriod time.Duration, pids map[string]int) *Poller {
	if tickPeriod <= 0 {
		tickPeriod = DefaultTickPeriod
	}
	return &Poller{
		SolutionDir: solutionDir,
		TickPeriod:  tickPeriod,
		PIDs:        pids,
		trackers:    make(map[string]*workerTracker),
		rates:       newRingBuffer(sparklineCapacity),
		crashCache:  newHashCache(),
		hangCache:   newHashCache(),
	}
}

// Tick enumerates the solution directory's direct subdirectories,
// updates (or creates) a tracker per worker, and returns the aggregated
// CampaignSnapshot. Safe to call directly in tests without the
// goroutine/channel plumbing Run adds.
func (p *Poller) Tick(now time.Time) campaign.CampaignSnapshot {
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	entries, err := os.ReadDir(p.SolutionDir)
	if err != nil {
		p.SoftErrors = multierr.Append(p.SoftErrors, fmt.Errorf("monitor: reading solution directory: %w", err))
		entries = nil
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)

	workers := make([]campaign.WorkerStatusSnapshot, 0, len(ids))

	for _, id := range ids {
		t, ok := p.trackers[id]
		if !ok {
			t = newWorkerTracker(id, filepath.Join(p.SolutionDir, id), p.PIDs[id], p.crashCache, p.hangCache)
			p.trackers[id] = t
		}
		snap := t.snapshot(now, p.TickPeriod)
		for _, pe := range snap.ParseErrors {
			p.SoftErrors = multierr.Append(p.SoftErrors, fmt.Errorf("monitor: worker %s: %s", id, pe))
		}
		workers = append(workers, snap)
	}

	tickNum := int(p.tick.Add(1))
	return aggregate(tickNum, now, p.startedAt, workers, p.rates, p.crashCache.uniqueCount(), p.hangCache.uniqueCount())
}

// SparklineValues returns the execution-rate history accumulated so far.
func (p *Poller) SparklineValues() []float64 {
	return p.rates.values()
}

// Run ticks on TickPeriod until ctx is cancelled, sending each snapshot
// to out with drop-intermediate semantics: out must be buffered with
// capacity 1, and a full channel means the UI hasn't consumed the
// previous snapshot yet, so the new one simply replaces it rather than
// blocking the poller. The poll goroutine runs under a conc.WaitGroup so
// a panic inside Tick is recovered and re-raised from Wait rather than
// crashing the process silently.
func (p *Poller) Run(ctx context.Context, out chan<- campaign.CampaignSnapshot) *conc.WaitGroup {
	wg := conc.NewWaitGroup()
	wg.Go(func() {
		ticker := time.NewTicker(p.TickPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				snap := p.Tick(now)
				select {
				case out <- snap:
				default:
					select {
					case <-out:
					default:
					}
					out <- snap
				}
			}
		}
	})
	return wg
}

// Summary is the final campaign_summary.json persisted on monitor exit
// (SPEC_FULL §10, supplement 1) — a compact record of the last snapshot
// plus wall-clock bounds, so an operator can inspect campaign outcomes
// without having had the dashboard open at the right moment.
type Summary struct {
	StartedAt     time.Time                      `json:"started_at"`
	EndedAt       time.Time                      `json:"ended_at"`
	Ticks         int                            `json:"ticks"`
	TotalExec     float64                        `json:"total_executions"`
	UniqueCrashes int                            `json:"unique_crashes"`
	UniqueHangs   int                            `json:"unique_hangs"`
	Workers       []campaign.WorkerStatusSnapshot `json:"workers"`
}

// WriteSummary persists the final snapshot as campaign_summary.json
// inside solutionDir.
func WriteSummary(solutionDir string, last campaign.CampaignSnapshot, startedAt time.Time) error {
	summary := Summary{
		StartedAt:     startedAt,
		EndedAt:       last.Takenat,
		Ticks:         last.Tick,
		TotalExec:     last.TotalExec,
		UniqueCrashes: last.UniqueCrashes,
		UniqueHangs:   last.UniqueHangs,
		Workers:       last.Workers,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("monitor: marshaling campaign summary: %w", err)
	}
	path := filepath.Join(solutionDir, "campaign_summary.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", campaign.ErrIoError, path, err)
	}
	return nil
}
