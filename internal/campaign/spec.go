// Package campaign holds the data model shared by every other aflr
// component: the immutable campaign specification, the per-worker plan it
// is compiled down into, and the live status snapshots the monitor
// produces from those workers' on-disk state.
package campaign

import (
	"fmt"
	"os"
	"strings"

	"github.com/0xricksanchez/aflr/internal/logger"
)

// Mode selects the diversification profile the planner applies.
type Mode string

const (
	ModeDefault       Mode = "default"
	ModeMultipleCores Mode = "multiple_cores"
	ModeCIFuzzing     Mode = "ci_fuzzing"
)

// Backend selects the terminal multiplexer the session launcher targets.
type Backend string

const (
	BackendTmux   Backend = "tmux"
	BackendScreen Backend = "screen"
)

// Spec is the immutable, validated description of a fuzzing campaign.
// Once constructed via New it is read-only; every other component takes a
// *Spec by value semantics (never mutates it).
type Spec struct {
	TargetBinary string
	// Auxiliary binaries. Empty string means "not supplied".
	SanitizerBinary string
	CmplogBinary    string
	CmplogCovBinary string
	CoverageBinary  string

	// TargetArgs is the tail appended after the engine's own flags and
	// "--". At most one element may be exactly "@@".
	TargetArgs []string

	SeedDir     string
	SolutionDir string
	DictPath    string // optional, "" if not supplied

	EnginePath string
	Workers    int
	Mode       Mode

	// Seed is the campaign-wide PRNG seed. A nil value means "draw one from
	// the OS and record it" — New always returns a Spec with a non-nil Seed.
	Seed *int64

	SeedPassthrough bool // forward per-worker derived seed via -s

	ExtraFlags []string // free-form engine flags appended verbatim

	SessionName string
	Backend     Backend
}

// Params collects the raw, not-yet-validated inputs to New. It mirrors
// Spec field-for-field except Seed, which is *int64 in both (nil meaning
// "draw one").
type Params struct {
	TargetBinary    string
	SanitizerBinary string
	CmplogBinary    string
	CmplogCovBinary string
	CoverageBinary  string
	TargetArgs      []string
	SeedDir         string
	SolutionDir     string
	DictPath        string
	EnginePath      string
	Workers         int
	Mode            Mode
	Seed            *int64
	SeedPassthrough bool
	ExtraFlags      []string
	SessionName     string
	Backend         Backend
}

// SeedSource draws a fresh 64-bit seed from the OS when the caller does not
// pin one. Overridable in tests.
var SeedSource = osSeed

// New validates p and returns an immutable Spec, drawing a fresh seed from
// SeedSource when p.Seed is nil. It performs the structural checks that do
// not require filesystem access or an Environment Prober snapshot (path
// existence and seed-count capping happen in the planner, which has the
// probe snapshot and can actually list the seed directory).
func New(p Params) (*Spec, error) {
	if p.TargetBinary == "" {
		return nil, fmt.Errorf("%w: target binary path is required", ErrInvalidSpec)
	}
	if p.SeedDir == "" {
		return nil, fmt.Errorf("%w: seed corpus directory is required", ErrInvalidSpec)
	}
	if p.SolutionDir == "" {
		return nil, fmt.Errorf("%w: solution/output directory is required", ErrInvalidSpec)
	}
	if p.EnginePath == "" {
		return nil, fmt.Errorf("%w: fuzzer engine path is required", ErrInvalidSpec)
	}
	if p.Workers < 1 {
		return nil, fmt.Errorf("%w: worker count must be >= 1, got %d", ErrInvalidSpec, p.Workers)
	}

	if err := checkReadable(p.TargetBinary, "target binary"); err != nil {
		return nil, err
	}
	if err := checkReadable(p.SeedDir, "seed corpus directory"); err != nil {
		return nil, err
	}

	placeholders := 0
	for _, a := range p.TargetArgs {
		if a == "@@" {
			placeholders++
		}
	}
	if placeholders > 1 {
		return nil, fmt.Errorf("%w: @@ placeholder appears %d times, expected at most 1", ErrInvalidSpec, placeholders)
	}

	auxBins := nonEmpty(p.SanitizerBinary, p.CmplogBinary, p.CmplogCovBinary, p.CoverageBinary)
	if dup := firstDuplicate(auxBins); dup != "" {
		return nil, fmt.Errorf("%w: auxiliary binary %q is assigned to more than one role", ErrInvalidSpec, dup)
	}

	mode := p.Mode
	if mode == "" {
		mode = ModeDefault
	}
	if mode != ModeDefault && mode != ModeMultipleCores && mode != ModeCIFuzzing {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidSpec, mode)
	}

	if mode == ModeCIFuzzing && (p.CmplogBinary != "" || p.CmplogCovBinary != "") {
		// Per the diversification table, CIFuzzing never uses comparison
		// binaries. We do not reject the spec — we drop them with a
		// warning, matching §4.2's validation rule.
		logger.Warn("mode %s does not use comparison-log/coverage binaries; ignoring them", mode)
		p.CmplogBinary = ""
		p.CmplogCovBinary = ""
	}

	backend := p.Backend
	if backend == "" {
		backend = BackendTmux
	}
	if backend != BackendTmux && backend != BackendScreen {
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidSpec, backend)
	}

	sessionName := p.SessionName
	if sessionName == "" {
		sessionName = "aflr"
	}

	seed := p.Seed
	if seed == nil {
		s := int64(SeedSource())
		seed = &s
	}

	return &Spec{
		TargetBinary:    p.TargetBinary,
		SanitizerBinary: p.SanitizerBinary,
		CmplogBinary:    p.CmplogBinary,
		CmplogCovBinary: p.CmplogCovBinary,
		CoverageBinary:  p.CoverageBinary,
		TargetArgs:      append([]string(nil), p.TargetArgs...),
		SeedDir:         p.SeedDir,
		SolutionDir:     p.SolutionDir,
		DictPath:        p.DictPath,
		EnginePath:      p.EnginePath,
		Workers:         p.Workers,
		Mode:            mode,
		Seed:            seed,
		SeedPassthrough: p.SeedPassthrough,
		ExtraFlags:      append([]string(nil), p.ExtraFlags...),
		SessionName:     sessionName,
		Backend:         backend,
	}, nil
}

// TargetStem returns the base name of the target binary, used to build
// per-worker role names (e.g. "<session>_<stem>").
func (s *Spec) TargetStem() string {
	stem := s.TargetBinary
	if idx := strings.LastIndexByte(stem, '/'); idx >= 0 {
		stem = stem[idx+1:]
	}
	return stem
}

func checkReadable(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrIoError, what, path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s %q is not readable: %v", ErrIoError, what, path, err)
	}
	f.Close()
	_ = info
	return nil
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstDuplicate(vals []string) string {
	seen := make(map[string]bool, len(vals))
	for _, v := range vals {
		if seen[v] {
			return v
		}
		seen[v] = true
	}
	return ""
}
