package monitor

import (
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/0xricksanchez/aflr/internal/campaign"
)

// staleAfterTicks is how many missed ticks before a Running worker is
// reclassified Stalled (spec §4.5: ">= 5 ticks").
const staleAfterTicks = 5

// workerTracker holds the per-worker state that must survive across
// ticks: the previous exec count (to detect progress between ticks), the
// previous state (for the monotonic-except-Stalled/Running transition
// rule), and this worker's slice of the campaign-wide crash/hang hash
// caches (owned by the Poller and shared across every worker, so the
// campaign-wide unique count dedups content across workers rather than
// summing each worker's own count).
type workerTracker struct {
	id    string
	dir   string
	pid   int // 0 if unknown (no pid file entry for this worker)
	start time.Time

	prevExecsDone    float64
	prevTick         time.Time
	state            campaign.WorkerState
	ticksSinceUpdate int

	crashes *hashCache
	hangs   *hashCache
}

func newWorkerTracker(id, dir string, pid int, crashes, hangs *hashCache) *workerTracker {
	return &workerTracker{
		id:      id,
		dir:     dir,
		pid:     pid,
		state:   campaign.StateUnknown,
		crashes: crashes,
		hangs:   hangs,
	}
}

// snapshot reads this worker's on-disk state and produces the next
// WorkerStatusSnapshot, advancing this tracker's internal state machine
// and rate history as a side effect. now is injected so tests and the
// real poller agree on what "this tick" means.
func (w *workerTracker) snapshot(now time.Time, tickPeriod time.Duration) campaign.WorkerStatusSnapshot {
	snap := campaign.WorkerStatusSnapshot{ID: w.id, LastUpdate: now}

	statsPath := filepath.Join(w.dir, "fuzzer_stats")
	info, statErr := os.Stat(statsPath)

	var stats rawStats
	if statErr == nil {
		if f, err := os.Open(statsPath); err == nil {
			stats = parseFuzzerStats(f)
			f.Close()
		} else {
			snap.ParseErrors = append(snap.ParseErrors, "fuzzer_stats: "+err.Error())
		}
	}

	if stats != nil {
		snap.ExecPerSecNow = stats.field("execs_per_sec")
		snap.ExecutionsDone = stats.field("execs_done")
		snap.FavoredPaths = stats.field("corpus_favored")
		snap.FoundPaths = stats.field("corpus_found")
		snap.ImportedPaths = stats.field("corpus_imported")
		snap.StabilityPercent = stats.field("stability")
		snap.MapDensityPercent = stats.field("bitmap_cvg")
		snap.CyclesDone = stats.field("cycles_done")
		snap.LastFind = stats.unixTime("last_find")
		snap.LastCrash = stats.unixTime("last_crash")
		snap.Stage = stats.stage()

		if snap.ExecutionsDone.Known {
			elapsed := now.Sub(w.startTime(stats))
			if elapsed > 0 {
				snap.ExecPerSecTotal = campaign.KnownField(snap.ExecutionsDone.Value / elapsed.Seconds())
			}
		}
	}

	snap.QueueCount = countEntries(filepath.Join(w.dir, "queue"))
	crashDir := filepath.Join(w.dir, "crashes")
	hangDir := filepath.Join(w.dir, "hangs")
	w.crashes.scan(crashDir)
	w.hangs.scan(hangDir)
	snap.CrashCount = campaign.KnownField(float64(w.crashes.uniqueCountInDir(crashDir)))
	snap.HangCount = campaign.KnownField(float64(w.hangs.uniqueCountInDir(hangDir)))

	snap.Alive = w.isAlive(statErr == nil, info, now, tickPeriod)
	snap.State = w.nextState(snap, statErr == nil, now)
	w.prevTick = now
	if snap.ExecutionsDone.Known {
		w.prevExecsDone = snap.ExecutionsDone.Value
	}

	return snap
}

// startTime returns the worker's process-start timestamp for the
// cumulative-exec-rate calculation: stats' own start_time field when
// present, falling back to this tracker's first-seen time.
func (w *workerTracker) startTime(stats rawStats) time.Time {
	if t := stats.unixTime("start_time"); !t.IsZero() {
		return t
	}
	if w.start.IsZero() {
		w.start = time.Now()
	}
	return w.start
}

// isAlive combines status-file freshness with PID liveness, per spec
// §4.5.4: "status file mtime within 2x tick period AND PID alive, when a
// pid file is available". Absent a PID, freshness alone decides.
func (w *workerTracker) isAlive(hasStats bool, info os.FileInfo, now time.Time, tickPeriod time.Duration) bool {
	if !hasStats {
		return false
	}
	fresh := now.Sub(info.ModTime()) <= 2*tickPeriod
	if w.pid == 0 {
		return fresh
	}
	return fresh && pidAlive(w.pid)
}

// pidAlive reports whether pid refers to a live process, using the
// standard unix idiom of sending signal 0 (no-op, delivery-only probe).
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// nextState advances the per-worker state machine. Transitions are
// monotonic (Unknown -> Starting -> Running -> Dead) except Stalled,
// which Running can enter and leave freely.
func (w *workerTracker) nextState(snap campaign.WorkerStatusSnapshot, hasStats bool, now time.Time) campaign.WorkerState {
	if !hasStats {
		if w.state == campaign.StateUnknown {
			return campaign.StateUnknown
		}
	}
	if !snap.Alive {
		w.state = campaign.StateDead
		return w.state
	}

	progressed := snap.ExecutionsDone.Known && snap.ExecutionsDone.Value > w.prevExecsDone

	switch w.state {
	case campaign.StateUnknown, campaign.StateStarting:
		if !hasStats {
			w.state = campaign.StateUnknown
		} else if snap.ExecutionsDone.Known && snap.ExecutionsDone.Value > 0 {
			w.state = campaign.StateRunning
			w.ticksSinceUpdate = 0
		} else {
			w.state = campaign.StateStarting
		}
	case campaign.StateRunning, campaign.StateStalled:
		if progressed {
			w.state = campaign.StateRunning
			w.ticksSinceUpdate = 0
		} else {
			w.ticksSinceUpdate++
			if w.ticksSinceUpdate >= staleAfterTicks {
				w.state = campaign.StateStalled
			}
		}
	case campaign.StateDead:
		// Dead is terminal: trackers are keyed by worker directory name
		// and kept for the Poller's lifetime, so a worker whose directory
		// shows activity again is still reported Dead.
	}

	return w.state
}
