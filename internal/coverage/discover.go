// Package coverage is the Coverage Orchestrator: it discovers queue
// inputs across a campaign's workers, replays each through a
// coverage-instrumented build of the target to produce raw profiles, and
// drives the external coverage toolchain to merge and render them. It
// never parses or rewrites the raw profile or report formats themselves
// (spec §6: "the orchestrator must not rewrite them").
package coverage

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
)

// Input is one discovered queue file: its worker directory and full path.
type Input struct {
	Worker string
	Path   string
}

// Discover walks solutionDir/*/queue/* and returns one Input per file,
// deduplicated by a hash of each file's content so the same seed imported into multiple
// workers' queues is only replayed once (spec §4.6).
func Discover(solutionDir string) ([]Input, error) {
	workerDirs, err := os.ReadDir(solutionDir)
	if err != nil {
		return nil, err
	}

	var inputs []Input
	seen := make(map[string]bool)

	for _, wd := range workerDirs {
		if !wd.IsDir() {
			continue
		}
		queueDir := filepath.Join(solutionDir, wd.Name(), "queue")
		entries, err := os.ReadDir(queueDir)
		if err != nil {
			continue // best-effort: a worker with no queue yet is not fatal
		}
		for _, e := range entries {
			if e.IsDir() || e.Name()[0] == '.' {
				continue
			}
			path := filepath.Join(queueDir, e.Name())
			key, err := filenameHash(path)
			if err != nil {
				continue
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			inputs = append(inputs, Input{Worker: wd.Name(), Path: path})
		}
	}

	return inputs, nil
}

// filenameHash hashes an input's content (not its name) so two workers
// that independently discovered byte-identical inputs under different
// queue filenames still dedup to one replay.
func filenameHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
