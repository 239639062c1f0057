package launch

import (
	"strings"
	"text/template"
)

// scriptData is the substitution set for both backend templates: session
// name, log/pid paths, and one fully single-quoted send-keys/stuff
// argument per worker window.
type scriptData struct {
	SessionName string
	LogPath     string
	PidPath     string
	Commands    []string
}

// tmuxWindowSuffix backgrounds the composed command, redirects it to the
// shared log, records its PID via $!, then waits on it so the window's
// foreground process is the fuzzer, not a returned shell prompt.
const tmuxWindowSuffix = ` >>"$LOG" 2>&1 & echo $! >> "$PIDFILE"; wait`

// screenWindowSuffix is the same idiom, plus a trailing literal "\n" that
// screen's "stuff" command (not the shell) interprets as pressing Enter.
const screenWindowSuffix = tmuxWindowSuffix + `\n`

// quoteWindowLine single-quotes s as one literal argument to tmux
// send-keys / screen stuff, escaping any embedded single quote with the
// standard '"'"' idiom — the same scheme compose.Command uses for its own
// tokens. This is required, not cosmetic: a composed command can itself
// contain single-quoted tokens (any env value, dict path, or target arg
// with whitespace or a shell metacharacter), and naively wrapping that in
// another pair of literal single quotes in the template text would
// terminate the outer quote early and corrupt the launched command line.
func quoteWindowLine(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// tmuxLines and screenLines turn each composed worker command into one
// already-quoted window line, ready to splice verbatim into the template
// (which must not add its own quoting around {{$cmd}}).
func tmuxLines(commands []string) []string {
	lines := make([]string, len(commands))
	for i, cmd := range commands {
		lines[i] = quoteWindowLine(cmd + tmuxWindowSuffix)
	}
	return lines
}

func screenLines(commands []string) []string {
	lines := make([]string, len(commands))
	for i, cmd := range commands {
		lines[i] = quoteWindowLine(cmd + screenWindowSuffix)
	}
	return lines
}

// tmuxScript starts each command in its own tmux window: the command runs
// in the background with its output appended to the shared log, its PID is
// recorded via $!, and the window's shell then waits on it. The worker is
// not brought back to the foreground, so its output appears only in the
// log, not in the window. Window 0 is created with the session; windows
// 1..N-1 are added with new-window.
const tmuxScript = `#!/bin/sh
set -e
SESSION="{{.SessionName}}"
LOG="{{.LogPath}}"
PIDFILE="{{.PidPath}}"
: > "$PIDFILE"

{{range $i, $cmd := .Commands}}
{{if eq $i 0}}tmux new-session -d -s "$SESSION" -n "w{{$i}}"
{{else}}tmux new-window -t "$SESSION" -n "w{{$i}}"
{{end}}tmux send-keys -t "$SESSION:w{{$i}}" {{$cmd}} Enter
{{end}}
`

// screenScript is the GNU screen equivalent of tmuxScript: one screen
// window per worker, same background-then-record-PID idiom.
const screenScript = `#!/bin/sh
set -e
SESSION="{{.SessionName}}"
LOG="{{.LogPath}}"
PIDFILE="{{.PidPath}}"
: > "$PIDFILE"

{{range $i, $cmd := .Commands}}
{{if eq $i 0}}screen -dmS "$SESSION" -t "w{{$i}}"
{{else}}screen -S "$SESSION" -X screen -t "w{{$i}}"
{{end}}screen -S "$SESSION" -p "w{{$i}}" -X stuff {{$cmd}}
{{end}}
`

var (
	tmuxTemplate   = template.Must(template.New("tmux").Parse(tmuxScript))
	screenTemplate = template.Must(template.New("screen").Parse(screenScript))
)
