// Package compose implements the Command Composer: a total, pure function
// that serializes one campaign.WorkerPlan into the single shell command
// string the Session Launcher hands to the terminal multiplexer, plus the
// inverse parse used by the composer's own round-trip tests (spec §8,
// testable property 6).
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/0xricksanchez/aflr/internal/campaign"
)

// needsQuoting reports whether s contains whitespace or a shell
// metacharacter, and therefore must be single-quoted when composed.
func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, " \t\n\"'\\$`|&;()<>*?[]{}~#!")
}

// quote single-quotes s, escaping any embedded single quote with the
// standard '"'"' idiom (close the quote, emit a double-quoted single
// quote, reopen the quote).
func quote(s string) string {
	if !needsQuoting(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Command renders plan as "ENV1=v1 ENV2=v2 … <engine> <flags...> -- <target> <args...>".
// enginePath is the fuzzer-engine binary to invoke (from the owning Spec,
// not stored on the plan itself). Env vars are emitted in sorted key order
// so two calls over the same plan always produce byte-identical output.
func Command(plan campaign.WorkerPlan, enginePath string) string {
	var parts []string

	keys := make([]string, 0, len(plan.Env))
	for k := range plan.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, quote(plan.Env[k])))
	}

	parts = append(parts, quote(enginePath))
	for _, f := range plan.Flags {
		parts = append(parts, quote(f))
	}

	parts = append(parts, "--", quote(plan.TargetBinary))
	for _, a := range plan.TargetArgs {
		if a == "@@" {
			// The placeholder is never quoted: the fuzzer engine matches it
			// literally and quoting would hide it from that match.
			parts = append(parts, a)
			continue
		}
		parts = append(parts, quote(a))
	}

	return strings.Join(parts, " ")
}

// Parsed is the inverse of Command: the env assignments, the engine path,
// the flag vector, and the target invocation recovered from one composed
// command string.
type Parsed struct {
	Env          map[string]string
	EnginePath   string
	Flags        []string
	TargetBinary string
	TargetArgs   []string
}

// Parse recovers a Parsed from a string produced by Command. It is a
// straightforward tokenizer that understands only the quoting forms
// Command itself produces (bare words and single-quoted words with the
// '"'"' escape), not general shell syntax.
func Parse(cmd string) (*Parsed, error) {
	tokens, err := tokenize(cmd)
	if err != nil {
		return nil, err
	}

	p := &Parsed{Env: map[string]string{}}

	i := 0
	for ; i < len(tokens); i++ {
		k, v, ok := splitEnvAssignment(tokens[i])
		if !ok {
			break
		}
		p.Env[k] = v
	}

	if i >= len(tokens) {
		return nil, fmt.Errorf("compose: no engine path found in command")
	}
	p.EnginePath = tokens[i]
	i++

	for ; i < len(tokens); i++ {
		if tokens[i] == "--" {
			i++
			break
		}
		p.Flags = append(p.Flags, tokens[i])
	}

	if i >= len(tokens) {
		return nil, fmt.Errorf("compose: no target binary found after --")
	}
	p.TargetBinary = tokens[i]
	i++
	p.TargetArgs = append(p.TargetArgs, tokens[i:]...)

	return p, nil
}

// splitEnvAssignment reports whether tok looks like KEY=VALUE with KEY a
// shell-identifier-shaped prefix (letters, digits, underscore, not
// starting with a digit) — used to distinguish the leading env
// assignments from the engine path token.
func splitEnvAssignment(tok string) (key, value string, ok bool) {
	eq := strings.IndexByte(tok, '=')
	if eq <= 0 {
		return "", "", false
	}
	key = tok[:eq]
	for i, r := range key {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isLetter {
			return "", "", false
		}
		if !isLetter && !isDigit {
			return "", "", false
		}
	}
	return key, tok[eq+1:], true
}

// tokenize splits cmd on unquoted whitespace, honoring single-quoted
// spans (including the '"'"' embedded-quote escape).
func tokenize(cmd string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	haveToken := false

	flush := func() {
		if haveToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			haveToken = false
		}
	}

	runes := []rune(cmd)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inQuote:
			if r == '\'' {
				// Check for the '"'"' embedded-quote escape sequence.
				if i+3 < len(runes) && runes[i+1] == '"' && runes[i+2] == '\'' && runes[i+3] == '"' && i+4 < len(runes) && runes[i+4] == '\'' {
					cur.WriteByte('\'')
					i += 4
					continue
				}
				inQuote = false
				continue
			}
			cur.WriteRune(r)
		case r == '\'':
			inQuote = true
			haveToken = true
		case r == ' ' || r == '\t':
			flush()
		default:
			haveToken = true
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("compose: unterminated quote in command")
	}
	flush()
	return tokens, nil
}
