package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromYAML_AppliesOnlySetFields(t *testing.T) {
	d, err := FromYAML([]byte(`
max_steps: 10
cycle_window: 5
`))
	require.NoError(t, err)
	assert.Equal(t, 10, d.MaxSteps)
	assert.Equal(t, 5, d.CycleWindow)
	assert.Nil(t, d.CycleDetection)
}

func TestFromYAML_ParsesDurationsAndNestedSections(t *testing.T) {
	d, err := FromYAML([]byte(`
run_wall_clock_budget: 90s
agent:
  budget: 4
  max_steps: 12
sse:
  keep_alive: 30s
`))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, time.Duration(d.RunWallClock))
	assert.Equal(t, 4, d.Agent.Budget)
	assert.Equal(t, 12, d.Agent.MaxSteps)
	assert.Equal(t, 30*time.Second, time.Duration(d.SSE.KeepAlive))
}

func TestFromYAML_RejectsUnparsableDuration(t *testing.T) {
	_, err := FromYAML([]byte(`run_wall_clock_budget: "not-a-duration"`))
	assert.Error(t, err)
}

func TestFromFile_ReadsAndParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_steps: 7\n"), 0o644))

	d, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, d.MaxSteps)
}

func TestFromFile_MissingFileReturnsError(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaults_GraphConfig_FoldsOverBaseline(t *testing.T) {
	d := Defaults{MaxSteps: 100}
	cfg := d.GraphConfig()
	assert.Equal(t, 100, cfg.MaxSteps)
	assert.True(t, cfg.CycleDetection)
	assert.Equal(t, 20, cfg.CycleWindow)
}

func TestDefaults_GraphConfig_ExplicitFalseOverridesCycleDetection(t *testing.T) {
	disabled := false
	d := Defaults{CycleDetection: &disabled}
	cfg := d.GraphConfig()
	assert.False(t, cfg.CycleDetection)
}

func TestDefaults_GraphConfig_EmptyDefaultsIsBaseline(t *testing.T) {
	cfg := Defaults{}.GraphConfig()
	assert.Equal(t, 50, cfg.MaxSteps)
	assert.True(t, cfg.CycleDetection)
	assert.Equal(t, 20, cfg.CycleWindow)
}

func TestProgramOptions_OmitsWallClockBudgetWhenUnset(t *testing.T) {
	opts := ProgramOptions[int](Defaults{MaxSteps: 30})
	assert.Len(t, opts, 3)
}

func TestProgramOptions_IncludesWallClockBudgetWhenSet(t *testing.T) {
	opts := ProgramOptions[int](Defaults{RunWallClock: Duration(45 * time.Second)})
	assert.Len(t, opts, 4)
}
