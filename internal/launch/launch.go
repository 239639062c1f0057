// Package launch is the Session Launcher: renders a per-backend shell
// script from the embedded templates in template.go, executes it to start
// a detached multiplexer session running one window per worker, and
// recovers the worker PIDs the script wrote to a pid file.
package launch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/0xricksanchez/aflr/internal/campaign"
	"github.com/0xricksanchez/aflr/internal/exec"
)

// pidWaitBound is the minimum total time the launcher waits for every
// worker to report a PID before declaring launch failed (spec §4.4: "a
// bounded wait (>= 1.5 s)"). Set comfortably above the floor so a
// slightly slow shell/tmux startup doesn't spuriously fail a launch.
const pidWaitBound = 3 * time.Second

// Result is what a (possibly dry-run) Launch call produces.
type Result struct {
	Script   string
	Commands []string
	PIDs     []int
}

// Launcher starts and tears down multiplexer sessions via an Executor, so
// tests can substitute a fake shell instead of spawning real tmux/screen.
type Launcher struct {
	Executor exec.Executor
}

// New creates a Launcher backed by executor.
func New(executor exec.Executor) *Launcher {
	return &Launcher{Executor: executor}
}

// render picks the backend template, pre-quotes each composed command
// into one send-keys/stuff-ready window line, and substitutes session
// name, log path, pid path, and those lines.
func render(backend campaign.Backend, sessionName, logPath, pidPath string, commands []string) (string, error) {
	tmpl := tmuxTemplate
	lines := tmuxLines(commands)
	if backend == campaign.BackendScreen {
		tmpl = screenTemplate
		lines = screenLines(commands)
	}

	data := scriptData{
		SessionName: sessionName,
		LogPath:     logPath,
		PidPath:     pidPath,
		Commands:    lines,
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("launch: rendering %s script: %w", backend, err)
	}
	return sb.String(), nil
}

// sessionExists asks the backend's own session-listing command whether a
// session named name is already running.
func (l *Launcher) sessionExists(ctx context.Context, backend campaign.Backend, name string) bool {
	switch backend {
	case campaign.BackendScreen:
		res, err := l.Executor.RunContext(ctx, nil, "screen", "-ls")
		if err != nil {
			return false
		}
		return strings.Contains(res.Stdout, "."+name+"\t") || strings.Contains(res.Stdout, "."+name+" ")
	default:
		res, err := l.Executor.RunContext(ctx, nil, "tmux", "has-session", "-t", name)
		return err == nil && res.ExitCode == 0
	}
}

// Launch renders the backend script for sessionName/commands, refuses to
// start if a session of that name already exists, executes the script,
// and waits up to pidWaitBound for every worker to append its PID to
// pidPath. On a partial or failed PID wait it tears the session down and
// returns ErrLaunchFailed. dryRun skips execution entirely and returns
// the rendered script plus the commands without touching the host.
func (l *Launcher) Launch(ctx context.Context, backend campaign.Backend, sessionName string, commands []string, logPath, pidPath, scriptPath string, dryRun bool) (*Result, error) {
	script, err := render(backend, sessionName, logPath, pidPath, commands)
	if err != nil {
		return nil, err
	}

	result := &Result{Script: script, Commands: commands}
	if dryRun {
		return result, nil
	}

	if l.sessionExists(ctx, backend, sessionName) {
		return nil, fmt.Errorf("%w: session %q is already running", campaign.ErrSessionExists, sessionName)
	}

	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		return nil, fmt.Errorf("%w: writing launcher script: %v", campaign.ErrLaunchFailed, err)
	}

	if _, err := l.Executor.RunContext(ctx, nil, "sh", scriptPath); err != nil {
		return nil, fmt.Errorf("%w: executing launcher script: %v", campaign.ErrLaunchFailed, err)
	}

	pids, err := l.waitForPIDs(ctx, pidPath, len(commands))
	if err != nil {
		l.Kill(ctx, backend, sessionName)
		return nil, fmt.Errorf("%w: %v", campaign.ErrLaunchFailed, err)
	}

	result.PIDs = pids
	return result, nil
}

// waitForPIDs polls pidPath with a bounded exponential backoff until it
// contains want PIDs (one per worker), or pidWaitBound elapses.
func (l *Launcher) waitForPIDs(ctx context.Context, pidPath string, want int) ([]int, error) {
	var pids []int

	op := func() error {
		found, err := readPIDFile(pidPath)
		if err != nil {
			return err
		}
		if len(found) < want {
			return fmt.Errorf("only %d/%d worker PIDs recorded so far", len(found), want)
		}
		pids = found
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = pidWaitBound

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return pids, nil
}

// readPIDFile accepts both the newline- and colon-separated layouts spec
// §6 allows for the pid file.
func readPIDFile(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pids []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		for _, tok := range strings.Split(line, ":") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			pid, err := strconv.Atoi(tok)
			if err != nil {
				continue
			}
			pids = append(pids, pid)
		}
	}
	return pids, scanner.Err()
}

// Kill terminates a session previously started by Launch. It does not
// touch the pid/log files — those remain for post-mortem inspection.
func (l *Launcher) Kill(ctx context.Context, backend campaign.Backend, sessionName string) error {
	var err error
	if backend == campaign.BackendScreen {
		_, err = l.Executor.RunContext(ctx, nil, "screen", "-S", sessionName, "-X", "quit")
	} else {
		_, err = l.Executor.RunContext(ctx, nil, "tmux", "kill-session", "-t", sessionName)
	}
	return err
}
