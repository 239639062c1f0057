package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xricksanchez/aflr/internal/campaign"
)

func writeStats(t *testing.T, workerDir string, kv map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(workerDir, 0755))
	var sb []byte
	for k, v := range kv {
		sb = append(sb, []byte(k+" : "+v+"\n")...)
	}
	require.NoError(t, os.WriteFile(filepath.Join(workerDir, "fuzzer_stats"), sb, 0644))
}

func TestTick_ParsesKnownFieldsAndDefersUnknown(t *testing.T) {
	solDir := t.TempDir()
	writeStats(t, filepath.Join(solDir, "main"), map[string]string{
		"execs_done":    "1000",
		"execs_per_sec": "42.5",
		"stability":     "98.00%",
		"bitmap_cvg":    "12.34%",
	})

	p := NewPoller(solDir, time.Second, nil)
	snap := p.Tick(time.Now())

	require.Len(t, snap.Workers, 1)
	w := snap.Workers[0]
	assert.Equal(t, "main", w.ID)
	assert.True(t, w.ExecutionsDone.Known)
	assert.Equal(t, 1000.0, w.ExecutionsDone.Value)
	assert.True(t, w.StabilityPercent.Known)
	assert.Equal(t, 98.0, w.StabilityPercent.Value)
	assert.True(t, w.CrashCount.Known) // directory-derived count is always known, 0 if empty
}

func TestTick_UnparseableFieldIsUnknownNotZero(t *testing.T) {
	solDir := t.TempDir()
	writeStats(t, filepath.Join(solDir, "w0"), map[string]string{
		"execs_done": "not-a-number",
	})

	p := NewPoller(solDir, time.Second, nil)
	snap := p.Tick(time.Now())

	require.Len(t, snap.Workers, 1)
	assert.False(t, snap.Workers[0].ExecutionsDone.Known)
}

func TestTick_CountsQueueCrashesHangsExcludingMetadata(t *testing.T) {
	solDir := t.TempDir()
	workerDir := filepath.Join(solDir, "w0")
	require.NoError(t, os.MkdirAll(filepath.Join(workerDir, "crashes"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(workerDir, "crashes", "README.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workerDir, "crashes", "id:000000"), []byte("crash-a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workerDir, "crashes", "id:000001"), []byte("crash-b"), 0644))
	writeStats(t, workerDir, map[string]string{"execs_done": "5"})

	p := NewPoller(solDir, time.Second, nil)
	snap := p.Tick(time.Now())

	require.Len(t, snap.Workers, 1)
	assert.Equal(t, 2.0, snap.Workers[0].CrashCount.Value)
	assert.Equal(t, 2, snap.UniqueCrashes)
}

func TestTick_IdempotentOverUnchangedDirectory(t *testing.T) {
	solDir := t.TempDir()
	writeStats(t, filepath.Join(solDir, "w0"), map[string]string{
		"execs_done":    "100",
		"execs_per_sec": "10",
	})

	p := NewPoller(solDir, time.Second, nil)
	t1 := time.Now()
	snap1 := p.Tick(t1)
	snap2 := p.Tick(t1.Add(time.Second))

	assert.Equal(t, snap1.Workers[0].ExecutionsDone, snap2.Workers[0].ExecutionsDone)
	assert.Equal(t, snap1.UniqueCrashes, snap2.UniqueCrashes)
}

func TestTick_UniqueCrashMonotonicityAcrossTicks(t *testing.T) {
	solDir := t.TempDir()
	workerDir := filepath.Join(solDir, "w0")
	require.NoError(t, os.MkdirAll(filepath.Join(workerDir, "crashes"), 0755))
	writeStats(t, workerDir, map[string]string{"execs_done": "1"})

	p := NewPoller(solDir, time.Second, nil)
	snap1 := p.Tick(time.Now())
	assert.Equal(t, 0, snap1.UniqueCrashes)

	require.NoError(t, os.WriteFile(filepath.Join(workerDir, "crashes", "id:000000"), []byte("new-crash"), 0644))
	snap2 := p.Tick(time.Now().Add(time.Second))
	assert.Equal(t, 1, snap2.UniqueCrashes)
	assert.GreaterOrEqual(t, snap2.UniqueCrashes, snap1.UniqueCrashes)
}

func TestTick_UniqueCrashesDedupedAcrossWorkers(t *testing.T) {
	solDir := t.TempDir()
	for _, w := range []string{"main", "secondary01", "secondary02"} {
		workerDir := filepath.Join(solDir, w)
		require.NoError(t, os.MkdirAll(filepath.Join(workerDir, "crashes"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(workerDir, "crashes", "id:000000"), []byte("shared-crash"), 0644))
		writeStats(t, workerDir, map[string]string{"execs_done": "1"})
	}
	// secondary02 also found one crash none of the others did.
	require.NoError(t, os.WriteFile(filepath.Join(solDir, "secondary02", "crashes", "id:000001"), []byte("distinct-crash"), 0644))

	p := NewPoller(solDir, time.Second, nil)
	snap := p.Tick(time.Now())

	require.Len(t, snap.Workers, 3)
	for _, w := range snap.Workers {
		if w.ID == "secondary02" {
			assert.Equal(t, 2.0, w.CrashCount.Value)
		} else {
			assert.Equal(t, 1.0, w.CrashCount.Value)
		}
	}
	// Campaign-wide: 2 distinct hashes total, not 1+1+2 summed per worker.
	assert.Equal(t, 2, snap.UniqueCrashes)
}

func TestStateMachine_StartingThenRunning(t *testing.T) {
	solDir := t.TempDir()
	workerDir := filepath.Join(solDir, "w0")

	p := NewPoller(solDir, time.Second, nil)

	// No worker directory at all yet: nothing to report.
	snap := p.Tick(time.Now())
	require.Len(t, snap.Workers, 0)

	writeStats(t, workerDir, map[string]string{"execs_done": "0"})
	snap = p.Tick(time.Now())
	require.Len(t, snap.Workers, 1)
	assert.Equal(t, campaign.StateStarting, snap.Workers[0].State)

	writeStats(t, workerDir, map[string]string{"execs_done": "50"})
	snap = p.Tick(time.Now())
	assert.Equal(t, campaign.StateRunning, snap.Workers[0].State)
}

func TestWriteSummary_PersistsJSON(t *testing.T) {
	dir := t.TempDir()
	snap := campaign.CampaignSnapshot{Tick: 3, TotalExec: 500, UniqueCrashes: 2}
	require.NoError(t, WriteSummary(dir, snap, time.Now().Add(-time.Minute)))

	data, err := os.ReadFile(filepath.Join(dir, "campaign_summary.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"unique_crashes": 2`)
}

func TestRingBuffer_WrapsAtCapacity(t *testing.T) {
	rb := newRingBuffer(3)
	rb.push(1)
	rb.push(2)
	rb.push(3)
	rb.push(4)
	assert.Equal(t, []float64{2, 3, 4}, rb.values())
}
