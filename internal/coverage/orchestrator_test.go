package coverage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xricksanchez/aflr/internal/campaign"
	aflexec "github.com/0xricksanchez/aflr/internal/exec"
)

// fakeExecutor replays a canned result per command, optionally failing any
// invocation whose args contain one of failOnSubstrings (used to simulate
// a subset of queue inputs crashing the coverage binary).
type fakeExecutor struct {
	failOnSubstrings []string
	calls            []string
}

func (f *fakeExecutor) Run(command string, args ...string) (*aflexec.ExecutionResult, error) {
	return f.RunContext(context.Background(), nil, command, args...)
}

func (f *fakeExecutor) RunContext(_ context.Context, _ []string, command string, args ...string) (*aflexec.ExecutionResult, error) {
	joined := command + " " + strings.Join(args, " ")
	f.calls = append(f.calls, joined)

	for _, bad := range f.failOnSubstrings {
		if strings.Contains(joined, bad) {
			return nil, fmt.Errorf("simulated failure for %s", bad)
		}
	}

	switch {
	case command == "llvm-profdata":
		return &aflexec.ExecutionResult{Stdout: "merged"}, nil
	default:
		return &aflexec.ExecutionResult{Stdout: "report for " + command + " " + strings.Join(args, " ")}, nil
	}
}

func baseCfg(t *testing.T, solutionDir string) Config {
	return Config{
		CoverageBinary: "/bin/target-cov",
		TargetArgs:     []string{"@@"},
		SolutionDir:    solutionDir,
		WorkDir:        t.TempDir(),
		ShowCmd:        "llvm-cov",
		ReportCmd:      "llvm-cov",
	}
}

func TestRun_NoInputsReturnsEmptyResult(t *testing.T) {
	dir := t.TempDir()
	res, err := Run(context.Background(), &fakeExecutor{}, baseCfg(t, dir))
	require.NoError(t, err)
	assert.Equal(t, 0, res.InputCount)
	assert.Equal(t, 0, res.ProfileCount)
	assert.Empty(t, res.Reports)
}

func TestRun_MergesAndRendersSingleReport(t *testing.T) {
	dir := t.TempDir()
	writeQueueInput(t, dir, "main", "id:000000", "a")
	writeQueueInput(t, dir, "main", "id:000001", "b")

	exec := &fakeExecutor{}
	res, err := Run(context.Background(), exec, baseCfg(t, dir))
	require.NoError(t, err)

	assert.Equal(t, 2, res.InputCount)
	assert.Equal(t, 2, res.ProfileCount)
	require.NoError(t, res.InputErrors)
	require.Contains(t, res.Reports, "")
	assert.Contains(t, res.Reports[""], "report for llvm-cov")

	var sawMerge bool
	for _, c := range exec.calls {
		if strings.HasPrefix(c, "llvm-profdata merge") {
			sawMerge = true
		}
	}
	assert.True(t, sawMerge)
}

func TestRun_TallysFailuresWithoutAbortingMerge(t *testing.T) {
	dir := t.TempDir()
	writeQueueInput(t, dir, "main", "id:000000", "good")
	writeQueueInput(t, dir, "main", "id:000001", "bad")

	badPath := filepath.Join(dir, "main", "queue", "id:000001")
	exec := &fakeExecutor{failOnSubstrings: []string{badPath}}

	res, err := Run(context.Background(), exec, baseCfg(t, dir))
	require.NoError(t, err)

	assert.Equal(t, 2, res.InputCount)
	assert.Equal(t, 1, res.ProfileCount)
	require.Error(t, res.InputErrors)
	assert.Contains(t, res.Reports, "")
}

func TestRun_AllInputsFailReturnsFatalError(t *testing.T) {
	dir := t.TempDir()
	writeQueueInput(t, dir, "main", "id:000000", "a")

	inputPath := filepath.Join(dir, "main", "queue", "id:000000")
	exec := &fakeExecutor{failOnSubstrings: []string{inputPath}}

	_, err := Run(context.Background(), exec, baseCfg(t, dir))
	require.Error(t, err)
	assert.ErrorIs(t, err, campaign.ErrCoverageToolFailed)
}

func TestRun_SplitReportsProducesPerWorkerReports(t *testing.T) {
	dir := t.TempDir()
	writeQueueInput(t, dir, "main", "id:000000", "a")
	writeQueueInput(t, dir, "sec0", "id:000000", "b")

	cfg := baseCfg(t, dir)
	cfg.SplitReports = true

	exec := &fakeExecutor{}
	res, err := Run(context.Background(), exec, cfg)
	require.NoError(t, err)

	assert.Len(t, res.Reports, 2)
	assert.Contains(t, res.Reports, "main")
	assert.Contains(t, res.Reports, "sec0")
}

func TestRun_TextReportUsesReportSubcommand(t *testing.T) {
	dir := t.TempDir()
	writeQueueInput(t, dir, "main", "id:000000", "a")

	cfg := baseCfg(t, dir)
	cfg.TextReport = true

	exec := &fakeExecutor{}
	res, err := Run(context.Background(), exec, cfg)
	require.NoError(t, err)
	assert.Contains(t, res.Reports[""], "llvm-cov report")
}

func TestRun_PropagatesDiscoverFailureAsFatal(t *testing.T) {
	_, err := Run(context.Background(), &fakeExecutor{}, baseCfg(t, filepath.Join(t.TempDir(), "missing")))
	require.Error(t, err)
	assert.ErrorIs(t, err, campaign.ErrCoverageToolFailed)
}

func TestRewriteArgs_SubstitutesPlaceholderOnly(t *testing.T) {
	out := rewriteArgs([]string{"-x", "@@", "-y"}, "/tmp/input")
	assert.Equal(t, []string{"-x", "/tmp/input", "-y"}, out)
}

func TestReportSubcommand(t *testing.T) {
	assert.Equal(t, "report", reportSubcommand(true))
	assert.Equal(t, "show", reportSubcommand(false))
}

func TestGroupByWorker_PartitionsProfilesByOwningWorker(t *testing.T) {
	profiles := []profileRef{{worker: "a", path: "p1"}, {worker: "b", path: "p2"}, {worker: "a", path: "p3"}}
	grouped := groupByWorker(nil, profiles)
	assert.Len(t, grouped["a"], 2)
	assert.Len(t, grouped["b"], 1)
}
