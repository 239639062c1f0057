// Package probe gathers the host and fuzzing-engine facts the planner
// needs before it can diversify worker flags: how many cores are
// available, how much memory can be handed to ramdisks, and which
// engine features (CMPLOG, persistent mode) the resolved binary actually
// advertises. It never decides anything — it only reports.
package probe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/0xricksanchez/aflr/internal/campaign"
	aflexec "github.com/0xricksanchez/aflr/internal/exec"
)

// Snapshot is the set of facts the planner conditions its decisions on.
type Snapshot struct {
	CPUCount      int
	TotalMemBytes uint64
	FreeMemBytes  uint64

	EnginePath               string
	EngineSupportsCmplog     bool
	EngineSupportsPersistent bool
}

// helpTimeout bounds how long we wait for the engine's help output before
// treating feature detection as inconclusive rather than hanging a probe.
const helpTimeout = 5 * time.Second

// Probe resolves enginePath on PATH (or as a direct path), runs it with a
// help flag to sniff feature support, and reads host CPU/memory facts.
// Returns ErrEnvironmentMissing if the engine cannot be resolved at all —
// every other failure (unreadable /proc/meminfo, help flag returning
// non-zero) degrades to a best-effort zero/false value instead, since the
// campaign can usually still run without that particular fact.
func Probe(ctx context.Context, enginePath string, executor aflexec.Executor) (*Snapshot, error) {
	resolved, err := resolveEngine(enginePath)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving fuzzing engine %q: %v", campaign.ErrEnvironmentMissing, enginePath, err)
	}

	snap := &Snapshot{
		CPUCount:   runtime.NumCPU(),
		EnginePath: resolved,
	}

	total, free, err := readMemInfo("/proc/meminfo")
	if err == nil {
		snap.TotalMemBytes = total
		snap.FreeMemBytes = free
	}

	helpCtx, cancel := context.WithTimeout(ctx, helpTimeout)
	defer cancel()

	out := engineHelpOutput(helpCtx, executor, resolved)
	snap.EngineSupportsCmplog = strings.Contains(out, "-c ") || strings.Contains(strings.ToLower(out), "cmplog")
	snap.EngineSupportsPersistent = strings.Contains(strings.ToLower(out), "persistent")

	return snap, nil
}

// resolveEngine finds enginePath either as a direct, executable file path
// or by searching PATH, mirroring how a shell would launch it.
func resolveEngine(enginePath string) (string, error) {
	if enginePath == "" {
		return "", fmt.Errorf("empty engine path")
	}
	if strings.Contains(enginePath, string(os.PathSeparator)) {
		if info, err := os.Stat(enginePath); err == nil && !info.IsDir() {
			return filepath.Clean(enginePath), nil
		}
		return "", fmt.Errorf("not found: %s", enginePath)
	}
	found, err := exec.LookPath(enginePath)
	if err != nil {
		return "", err
	}
	return found, nil
}

// engineHelpOutput runs the engine with common help flags and returns
// whatever combined stdout+stderr it produced. AFL-style binaries tend to
// print usage (including supported flags) to stderr on a bare invocation
// or with -h, so both stdout and stderr are searched; a timeout or
// execution failure yields an empty string rather than an error, since
// feature detection is advisory.
func engineHelpOutput(ctx context.Context, executor aflexec.Executor, resolved string) string {
	for _, args := range [][]string{{"-h"}, {"--help"}, {}} {
		res, err := executor.RunContext(ctx, nil, resolved, args...)
		if err != nil {
			continue
		}
		combined := res.Stdout + "\n" + res.Stderr
		if combined != "\n" {
			return combined
		}
	}
	return ""
}

// readMemInfo parses the MemTotal/MemAvailable lines out of a
// /proc/meminfo-formatted file, returning byte counts. No library in the
// retrieved corpus wraps /proc parsing (nothing like gopsutil is
// imported anywhere in the pack), so this stays a small stdlib parser
// rather than inventing a dependency the corpus never reaches for.
func readMemInfo(path string) (total, free uint64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			if kb, perr := strconv.ParseUint(fields[1], 10, 64); perr == nil {
				total = kb * 1024
			}
		case "MemAvailable":
			if kb, perr := strconv.ParseUint(fields[1], 10, 64); perr == nil {
				free = kb * 1024
			}
		}
	}
	return total, free, nil
}
