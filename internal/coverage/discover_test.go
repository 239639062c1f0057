package coverage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeQueueInput(t *testing.T, solutionDir, worker, name, content string) {
	t.Helper()
	dir := filepath.Join(solutionDir, worker, "queue")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestDiscover_FindsOneInputPerWorker(t *testing.T) {
	dir := t.TempDir()
	writeQueueInput(t, dir, "main", "id:000000", "aaa")
	writeQueueInput(t, dir, "sec0", "id:000000", "bbb")

	inputs, err := Discover(dir)
	require.NoError(t, err)
	assert.Len(t, inputs, 2)
}

func TestDiscover_DedupsByContentAcrossWorkers(t *testing.T) {
	dir := t.TempDir()
	writeQueueInput(t, dir, "main", "id:000000,orig", "shared-seed")
	writeQueueInput(t, dir, "sec0", "id:000000,sync:main", "shared-seed")
	writeQueueInput(t, dir, "sec0", "id:000001", "unique")

	inputs, err := Discover(dir)
	require.NoError(t, err)
	assert.Len(t, inputs, 2)
}

func TestDiscover_SkipsHiddenFilesAndMissingQueueDirs(t *testing.T) {
	dir := t.TempDir()
	writeQueueInput(t, dir, "main", "id:000000", "aaa")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main", "queue", ".state"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sec0"), 0755)) // no queue/ yet

	inputs, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "main", inputs[0].Worker)
}

func TestDiscover_EmptySolutionDirYieldsNoInputs(t *testing.T) {
	dir := t.TempDir()
	inputs, err := Discover(dir)
	require.NoError(t, err)
	assert.Empty(t, inputs)
}
