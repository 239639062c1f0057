package campaign

import "fmt"

// Role is the fuzzer engine's own notion of a worker's position in a
// campaign: exactly one Main, the rest Secondary.
type Role string

const (
	RoleMain      Role = "main"
	RoleSecondary Role = "secondary"
)

// WorkerPlan is the fully resolved description of one worker invocation,
// produced once by the planner, consumed by the composer and launcher, and
// then discarded.
type WorkerPlan struct {
	Index int
	Role  Role

	// Name is the engine identifier passed to -M/-S (e.g. "camp_target" for
	// Main, "secondary_0_target" for the first Secondary).
	Name string

	// Env holds fixed and diversified environment variable overrides for
	// this worker. The composer emits these ahead of the engine invocation;
	// the launcher's shell inherits everything else from the caller.
	Env map[string]string

	// Flags is the ordered fuzzer-engine flag vector, already including
	// -M/-S <name>, -i, -o, and any diversified flags. Each element is one
	// shell word (composer quotes it as needed).
	Flags []string

	// TargetBinary is the binary this worker executes (may differ from
	// Spec.TargetBinary when the comparison-coverage binary replaces it).
	TargetBinary string

	// TargetArgs is the tail passed after "--", with @@ left intact.
	TargetArgs []string

	// DerivedSeed is wseed_i = mix(spec.seed, i); always computed, only
	// forwarded into Flags via -s when Spec.SeedPassthrough is set.
	DerivedSeed uint64
}

// String renders a short human-readable identifier, used in log lines and
// the dashboard's worker table.
func (p WorkerPlan) String() string {
	return fmt.Sprintf("#%d(%s:%s)", p.Index, p.Role, p.Name)
}
