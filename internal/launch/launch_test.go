package launch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xricksanchez/aflr/internal/campaign"
	"github.com/0xricksanchez/aflr/internal/exec"
)

// fakeExecutor simulates a shell: running the rendered script writes the
// expected number of PIDs to the pid file passed on the command line, and
// has-session/kill-session calls are scripted by the test.
type fakeExecutor struct {
	sessionAlreadyExists bool
	writePIDs            []string
	killCalled           bool
}

func (f *fakeExecutor) Run(command string, args ...string) (*exec.ExecutionResult, error) {
	return f.RunContext(context.Background(), nil, command, args...)
}

func (f *fakeExecutor) RunContext(_ context.Context, _ []string, command string, args ...string) (*exec.ExecutionResult, error) {
	switch command {
	case "tmux":
		if len(args) > 0 && args[0] == "has-session" {
			if f.sessionAlreadyExists {
				return &exec.ExecutionResult{ExitCode: 0}, nil
			}
			return &exec.ExecutionResult{ExitCode: 1}, nil
		}
		if len(args) > 0 && args[0] == "kill-session" {
			f.killCalled = true
			return &exec.ExecutionResult{}, nil
		}
	case "sh":
		scriptPath := args[len(args)-1]
		data, err := os.ReadFile(scriptPath)
		if err != nil {
			return nil, err
		}
		_ = data
		return &exec.ExecutionResult{}, nil
	}
	return &exec.ExecutionResult{}, nil
}

func TestLaunch_DryRunDoesNotTouchHost(t *testing.T) {
	fe := &fakeExecutor{}
	l := New(fe)

	dir := t.TempDir()
	result, err := l.Launch(context.Background(), campaign.BackendTmux, "camp", []string{"echo one", "echo two"},
		filepath.Join(dir, "log"), filepath.Join(dir, "pid"), filepath.Join(dir, "script.sh"), true)
	require.NoError(t, err)
	assert.Contains(t, result.Script, "camp")
	assert.Nil(t, result.PIDs)

	_, err = os.Stat(filepath.Join(dir, "script.sh"))
	assert.True(t, os.IsNotExist(err))
}

func TestLaunch_RefusesExistingSession(t *testing.T) {
	fe := &fakeExecutor{sessionAlreadyExists: true}
	l := New(fe)
	dir := t.TempDir()

	_, err := l.Launch(context.Background(), campaign.BackendTmux, "camp", []string{"echo one"},
		filepath.Join(dir, "log"), filepath.Join(dir, "pid"), filepath.Join(dir, "script.sh"), false)
	assert.ErrorIs(t, err, campaign.ErrSessionExists)
}

func TestLaunch_FailsWhenPIDsNeverAppear(t *testing.T) {
	fe := &fakeExecutor{}
	l := New(fe)
	dir := t.TempDir()

	// The fake "sh" never writes a PID file, simulating a launch that
	// starts the session but no worker ever records its PID.
	_, err := l.Launch(context.Background(), campaign.BackendTmux, "camp", []string{"echo one"},
		filepath.Join(dir, "log"), filepath.Join(dir, "pid"), filepath.Join(dir, "script.sh"), false)
	assert.ErrorIs(t, err, campaign.ErrLaunchFailed)
	assert.True(t, fe.killCalled, "expected Launch to tear down the session after a failed PID wait")
}

func TestReadPIDFile_AcceptsColonAndNewlineSeparated(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "pids")
	require.NoError(t, os.WriteFile(p, []byte("111:222\n333\n"), 0644))

	pids, err := readPIDFile(p)
	require.NoError(t, err)
	assert.Equal(t, []int{111, 222, 333}, pids)
}

func TestRender_ProducesDifferentScriptsPerBackend(t *testing.T) {
	tmux, err := render(campaign.BackendTmux, "s", "log", "pid", []string{"cmd"})
	require.NoError(t, err)
	screen, err := render(campaign.BackendScreen, "s", "log", "pid", []string{"cmd"})
	require.NoError(t, err)
	assert.Contains(t, tmux, "tmux")
	assert.Contains(t, screen, "screen")
	assert.NotEqual(t, tmux, screen)
}

func TestRender_QuotesCommandsContainingSingleQuotedTokens(t *testing.T) {
	// A composed command with a whitespace-containing token is itself
	// single-quoted by compose.Command; the template must not wrap that
	// in another pair of literal single quotes, which would terminate the
	// outer quote early and corrupt the launched command line.
	cmd := `SEED_FILE='my seed.txt' afl-fuzz -i in -o out -- target @@`

	tmux, err := render(campaign.BackendTmux, "s", "/tmp/log", "/tmp/pid", []string{cmd})
	require.NoError(t, err)
	assert.Contains(t, tmux, `'SEED_FILE='"'"'my seed.txt'"'"' afl-fuzz -i in -o out -- target @@ >>"$LOG" 2>&1 & echo $! >> "$PIDFILE"; wait'`)

	screen, err := render(campaign.BackendScreen, "s", "/tmp/log", "/tmp/pid", []string{cmd})
	require.NoError(t, err)
	assert.Contains(t, screen, `'SEED_FILE='"'"'my seed.txt'"'"' afl-fuzz -i in -o out -- target @@ >>"$LOG" 2>&1 & echo $! >> "$PIDFILE"; wait\n'`)
}
