package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xricksanchez/aflr/internal/campaign"
)

func samplePlan() campaign.WorkerPlan {
	return campaign.WorkerPlan{
		Index: 1,
		Role:  campaign.RoleSecondary,
		Name:  "secondary_0_target",
		Env: map[string]string{
			"AFL_AUTORESUME":     "1",
			"AFL_TESTCACHE_SIZE": "250",
			"AFL_DISABLE_TRIM":   "1",
		},
		Flags:        []string{"-S", "secondary_0_target", "-i", "/corpus/seeds", "-o", "/corpus/out", "-p", "explore"},
		TargetBinary: "/bin/target",
		TargetArgs:   []string{"@@"},
		DerivedSeed:  1234,
	}
}

func TestCommand_IsDeterministic(t *testing.T) {
	plan := samplePlan()
	a := Command(plan, "/usr/bin/afl-fuzz")
	b := Command(plan, "/usr/bin/afl-fuzz")
	assert.Equal(t, a, b)
}

func TestCommand_PreservesPlaceholder(t *testing.T) {
	plan := samplePlan()
	cmd := Command(plan, "/usr/bin/afl-fuzz")
	assert.Contains(t, cmd, " @@")
}

func TestCommand_QuotesWhitespaceValues(t *testing.T) {
	plan := samplePlan()
	plan.TargetArgs = []string{"--name", "hello world"}
	cmd := Command(plan, "/usr/bin/afl-fuzz")
	assert.Contains(t, cmd, "'hello world'")
}

func TestCommand_EscapesEmbeddedSingleQuote(t *testing.T) {
	plan := samplePlan()
	plan.TargetArgs = []string{"it's a test"}
	cmd := Command(plan, "/usr/bin/afl-fuzz")
	assert.Contains(t, cmd, `'it'"'"'s a test'`)
}

func TestRoundTrip_RecoversPlan(t *testing.T) {
	plan := samplePlan()
	cmd := Command(plan, "/usr/bin/afl-fuzz")

	parsed, err := Parse(cmd)
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/afl-fuzz", parsed.EnginePath)
	assert.Equal(t, plan.Flags, parsed.Flags)
	assert.Equal(t, plan.TargetBinary, parsed.TargetBinary)
	assert.Equal(t, plan.TargetArgs, parsed.TargetArgs)
	for k, v := range plan.Env {
		assert.Equal(t, v, parsed.Env[k])
	}
}

func TestRoundTrip_WithQuotedValues(t *testing.T) {
	plan := samplePlan()
	plan.TargetArgs = []string{"it's a test", "plain", "has space"}
	cmd := Command(plan, "/usr/bin/afl-fuzz")

	parsed, err := Parse(cmd)
	require.NoError(t, err)
	assert.Equal(t, plan.TargetArgs, parsed.TargetArgs)
}

func TestParse_RejectsUnterminatedQuote(t *testing.T) {
	_, err := Parse("AFL_AUTORESUME=1 /usr/bin/afl-fuzz -M foo -- /bin/target 'unterminated")
	assert.Error(t, err)
}
