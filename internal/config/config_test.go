package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.AFL.Workers)
}

func TestLoad_ParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aflr_cfg.toml")
	content := `
[target]
binary_path = "/bin/target"
seed_dir = "/seeds"
solution_dir = "/out"
args = ["--in", "@@"]

[afl_cfg]
engine_path = "/usr/bin/afl-fuzz"
workers = 4
mode = "multiple_cores"

[session]
name = "camp1"
backend = "tmux"

[coverage]
show_cmd = "cov show"
report_cmd = "cov report"

[misc]
log_level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/bin/target", cfg.Target.BinaryPath)
	assert.Equal(t, []string{"--in", "@@"}, cfg.Target.Args)
	assert.Equal(t, 4, cfg.AFL.Workers)
	assert.Equal(t, "multiple_cores", cfg.AFL.Mode)
	assert.Equal(t, "camp1", cfg.Session.Name)
	assert.Equal(t, "tmux", cfg.Session.Backend)
	assert.Equal(t, "debug", cfg.Misc.LogLevel)
}

func TestResolveEnvVars(t *testing.T) {
	os.Setenv("AFLR_TEST_VAR", "resolved")
	defer os.Unsetenv("AFLR_TEST_VAR")

	assert.Equal(t, "resolved", resolveEnvVars("${AFLR_TEST_VAR}"))
	assert.Equal(t, "resolved", resolveEnvVars("$AFLR_TEST_VAR"))
	assert.Equal(t, "$UNSET_VAR_XYZ", resolveEnvVars("$UNSET_VAR_XYZ"))
}

func TestLoadEnvFromDotEnv_DoesNotOverrideExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AFLR_DOTENV_TEST=from_file\n"), 0644))

	os.Setenv("AFLR_DOTENV_TEST", "from_env")
	defer os.Unsetenv("AFLR_DOTENV_TEST")

	require.NoError(t, LoadEnvFromDotEnv(dir))
	assert.Equal(t, "from_env", os.Getenv("AFLR_DOTENV_TEST"))
}
