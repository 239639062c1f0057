package campaign

import "time"

// WorkerState is the per-worker liveness state machine from spec §4.5.
// Transitions are monotonic except Stalled <-> Running, which is
// reversible.
type WorkerState string

const (
	StateUnknown  WorkerState = "unknown"
	StateStarting WorkerState = "starting"
	StateRunning  WorkerState = "running"
	StateStalled  WorkerState = "stalled"
	StateDead     WorkerState = "dead"
)

// Field is a numeric value that may be unknown because the underlying
// fuzzer_stats field was missing or failed to parse. Unparseable values
// are reported as unknown, never silently coerced to zero (spec §4.5.3).
type Field struct {
	Value float64
	Known bool
}

// KnownField constructs a Field with a known value.
func KnownField(v float64) Field { return Field{Value: v, Known: true} }

// WorkerStatusSnapshot is rebuilt from scratch on every monitor tick from
// one worker's on-disk state.
type WorkerStatusSnapshot struct {
	ID         string
	LastUpdate time.Time

	ExecPerSecNow     Field
	ExecPerSecTotal   Field
	ExecutionsDone    Field
	FavoredPaths      Field
	FoundPaths        Field
	ImportedPaths     Field
	StabilityPercent  Field
	CrashCount        Field
	HangCount         Field
	MapDensityPercent Field
	CyclesDone        Field

	LastFind  time.Time // zero value means "never"
	LastCrash time.Time // zero value means "never"

	Stage string

	QueueCount int
	Alive      bool
	State      WorkerState

	// ParseErrors collects non-fatal per-field parse problems for this
	// tick, surfaced in the dashboard's detail pane rather than dropped.
	ParseErrors []string
}

// CampaignSnapshot aggregates every worker's status at a single tick.
type CampaignSnapshot struct {
	Tick      int
	Takenat   time.Time
	Elapsed   time.Duration
	Workers   []WorkerStatusSnapshot
	TotalExec float64
	ExecRate  float64 // sum of instantaneous rates

	ExecRateMin, ExecRateMax, ExecRateMean float64

	UniqueCrashes int
	UniqueHangs   int
}
