package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// metadataFiles are entries AFL-family engines write into crashes/ and
// hangs/ alongside the actual solution files; they are not findings and
// must not be counted (spec §4.5.2: "minus metadata files").
var metadataFiles = map[string]bool{
	"README.txt": true,
	".state":     true,
}

// countEntries counts regular, non-metadata files directly inside dir.
// Missing directories are not an error — a worker that hasn't produced a
// queue/crashes/hangs subdirectory yet is simply reported as having 0,
// consistent with the monitor's best-effort read policy.
func countEntries(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || metadataFiles[e.Name()] || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		n++
	}
	return n
}

// hashCache incrementally tracks the content hash of every file it has
// seen across one or more solution subtrees (crashes/ or hangs/), so the
// monitor can report a unique-finding count without re-hashing unchanged
// files every tick. Keyed by the finding's full path; entries for files
// that disappear between ticks are evicted on the next scan call of their
// own directory (spec §3: "evict on unlink"). A single hashCache is meant
// to be shared across every worker's crashes (or hangs) directory, so that
// uniqueCount reflects distinct content campaign-wide rather than per
// worker — AFL secondaries routinely rediscover the same crashing input,
// and spec §3/§4.5.6 count it once, not once per worker that found it.
type hashCache struct {
	hashes map[string]string // path -> content hash
}

func newHashCache() *hashCache {
	return &hashCache{hashes: make(map[string]string)}
}

// scan walks dir's direct, non-metadata entries, hashes any path not
// already cached, and evicts cached paths under dir no longer present.
// It does not return a count: callers sharing this cache across several
// directories should read uniqueCount (campaign-wide) or
// uniqueCountInDir(dir) (this directory only) after scanning.
func (c *hashCache) scan(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || metadataFiles[e.Name()] || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		seen[path] = true
		if _, ok := c.hashes[path]; ok {
			continue
		}
		if h, err := hashFile(path); err == nil {
			c.hashes[path] = h
		}
	}

	for path := range c.hashes {
		if filepath.Dir(path) != dir {
			continue
		}
		if !seen[path] {
			delete(c.hashes, path)
		}
	}
}

// uniqueCount returns the number of distinct content hashes across every
// directory this cache has ever scanned.
func (c *hashCache) uniqueCount() int {
	distinct := make(map[string]bool, len(c.hashes))
	for _, h := range c.hashes {
		distinct[h] = true
	}
	return len(distinct)
}

// uniqueCountInDir returns the number of distinct content hashes among
// only the entries this cache currently holds for dir, for a per-worker
// count alongside the cache's campaign-wide total.
func (c *hashCache) uniqueCountInDir(dir string) int {
	distinct := make(map[string]bool)
	for path, h := range c.hashes {
		if filepath.Dir(path) != dir {
			continue
		}
		distinct[h] = true
	}
	return len(distinct)
}

func hashFile(path string) (string, error) {
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
