package monitor

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/0xricksanchez/aflr/internal/campaign"
)

// rawStats is the parsed fuzzer_stats file: every key present, as a raw
// string, so callers can look up fields spec §6 doesn't name explicitly
// without the parser having to know about them.
type rawStats map[string]string

// parseFuzzerStats reads "key : value" lines (leading/trailing whitespace
// trimmed; unknown keys ignored downstream, never an error here — spec
// §6's wire-format note). A malformed line (no ':') is skipped, not
// fatal, consistent with the monitor's best-effort read policy.
func parseFuzzerStats(r io.Reader) rawStats {
	stats := make(rawStats)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		stats[key] = val
	}
	return stats
}

// field looks up key and parses it as a float; a missing or unparseable
// value yields an unknown Field rather than a zero one (spec §4.5.3).
func (s rawStats) field(key string) campaign.Field {
	v, ok := s[key]
	if !ok {
		return campaign.Field{}
	}
	v = strings.TrimSuffix(v, "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return campaign.Field{}
	}
	return campaign.KnownField(f)
}

// unixTime parses key as a Unix timestamp in seconds; the zero Time value
// means "never" or "unknown", which the dashboard renders identically.
func (s rawStats) unixTime(key string) time.Time {
	v, ok := s[key]
	if !ok {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

// stage derives the worker's current strategy from the command_line field
// AFL-family engines record in fuzzer_stats, by picking out the power
// schedule token (-p <value>) the planner assigned it. Real fuzzer_stats
// files don't carry a dedicated "current stage" field, so this is the
// closest stable proxy available without the monitor parsing the queue
// itself.
func (s rawStats) stage() string {
	cmd, ok := s["command_line"]
	if !ok {
		return ""
	}
	fields := strings.Fields(cmd)
	for i, f := range fields {
		if f == "-p" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
