package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aflexec "github.com/0xricksanchez/aflr/internal/exec"
)

// stubExecutor returns a canned help string regardless of the command run,
// so tests can exercise feature-sniffing without touching the real shell.
type stubExecutor struct {
	helpText string
	failRun  bool
}

func (s *stubExecutor) Run(command string, args ...string) (*aflexec.ExecutionResult, error) {
	return s.RunContext(context.Background(), nil, command, args...)
}

func (s *stubExecutor) RunContext(_ context.Context, _ []string, _ string, _ ...string) (*aflexec.ExecutionResult, error) {
	if s.failRun {
		return nil, assertErr
	}
	return &aflexec.ExecutionResult{Stdout: s.helpText}, nil
}

var assertErr = os.ErrNotExist

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"), 0755))
	return p
}

func TestProbe_RejectsUnresolvableEngine(t *testing.T) {
	_, err := Probe(context.Background(), "/no/such/engine-binary", &stubExecutor{})
	require.Error(t, err)
}

func TestProbe_ResolvesDirectPathAndDetectsFeatures(t *testing.T) {
	dir := t.TempDir()
	engine := writeExecutable(t, dir, "afl-fuzz")

	snap, err := Probe(context.Background(), engine, &stubExecutor{
		helpText: "usage: afl-fuzz [-c cmplog_binary] [...] persistent mode supported",
	})
	require.NoError(t, err)
	assert.Equal(t, engine, snap.EnginePath)
	assert.True(t, snap.EngineSupportsCmplog)
	assert.True(t, snap.EngineSupportsPersistent)
	assert.Greater(t, snap.CPUCount, 0)
}

func TestProbe_DegradesGracefullyWhenHelpFails(t *testing.T) {
	dir := t.TempDir()
	engine := writeExecutable(t, dir, "afl-fuzz")

	snap, err := Probe(context.Background(), engine, &stubExecutor{failRun: true})
	require.NoError(t, err)
	assert.False(t, snap.EngineSupportsCmplog)
	assert.False(t, snap.EngineSupportsPersistent)
}

func TestReadMemInfo_ParsesFixture(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "meminfo")
	require.NoError(t, os.WriteFile(fixture, []byte(
		"MemTotal:       16384000 kB\nMemFree:        200000 kB\nMemAvailable:   8192000 kB\n",
	), 0644))

	total, free, err := readMemInfo(fixture)
	require.NoError(t, err)
	assert.Equal(t, uint64(16384000*1024), total)
	assert.Equal(t, uint64(8192000*1024), free)
}
