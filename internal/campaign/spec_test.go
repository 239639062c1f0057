package campaign

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writableFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0755))
	return p
}

func baseParams(t *testing.T) Params {
	t.Helper()
	dir := t.TempDir()
	target := writableFile(t, dir, "target")
	seedDir := filepath.Join(dir, "seeds")
	require.NoError(t, os.Mkdir(seedDir, 0755))
	writableFile(t, seedDir, "seed1")

	return Params{
		TargetBinary: target,
		SeedDir:      seedDir,
		SolutionDir:  filepath.Join(dir, "out"),
		EnginePath:   "/usr/bin/afl-fuzz",
		Workers:      2,
	}
}

func TestNew_RejectsMissingRequiredFields(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestNew_RejectsUnreadableTarget(t *testing.T) {
	p := baseParams(t)
	p.TargetBinary = "/does/not/exist"
	_, err := New(p)
	assert.ErrorIs(t, err, ErrIoError)
}

func TestNew_RejectsDuplicatePlaceholder(t *testing.T) {
	p := baseParams(t)
	p.TargetArgs = []string{"@@", "--in", "@@"}
	_, err := New(p)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestNew_RejectsSharedAuxiliaryBinary(t *testing.T) {
	p := baseParams(t)
	p.CmplogBinary = p.TargetBinary
	p.CmplogCovBinary = p.TargetBinary
	_, err := New(p)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestNew_DrawsSeedWhenNil(t *testing.T) {
	p := baseParams(t)
	spec, err := New(p)
	require.NoError(t, err)
	assert.NotNil(t, spec.Seed)
}

func TestNew_PreservesExplicitSeed(t *testing.T) {
	p := baseParams(t)
	seed := int64(42)
	p.Seed = &seed
	spec, err := New(p)
	require.NoError(t, err)
	require.NotNil(t, spec.Seed)
	assert.Equal(t, int64(42), *spec.Seed)
}

func TestNew_DropsCmplogBinariesInCIFuzzingMode(t *testing.T) {
	p := baseParams(t)
	p.Mode = ModeCIFuzzing
	p.CmplogBinary = p.TargetBinary
	spec, err := New(p)
	require.NoError(t, err)
	assert.Empty(t, spec.CmplogBinary)
}

func TestNew_DefaultsBackendAndSessionName(t *testing.T) {
	p := baseParams(t)
	spec, err := New(p)
	require.NoError(t, err)
	assert.Equal(t, BackendTmux, spec.Backend)
	assert.Equal(t, "aflr", spec.SessionName)
}

func TestTargetStem(t *testing.T) {
	p := baseParams(t)
	spec, err := New(p)
	require.NoError(t, err)
	assert.Equal(t, "target", spec.TargetStem())
}
