package task

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves the test into its own working directory so the
// environment snapshot lands in an isolated place.
func chdirTemp(t *testing.T) string {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
	return dir
}

func mustGroup(t *testing.T, cfg GroupConfig) *TaskGroup {
	t.Helper()
	g, err := NewTaskGroup(cfg)
	require.NoError(t, err)
	return g
}

func TestEnvironmentLogLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "captures")

	g0 := mustGroup(t, GroupConfig{
		Name: "first",
		Processes: []TaskConfig{
			{Command: Command{Program: "/bin/true"}},
			{Command: Command{Program: "/bin/true"}},
		},
	})
	env, err := NewEnvironment(root, []*TaskGroup{g0})
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(root, "0", "0", "out"))
	assert.DirExists(t, filepath.Join(root, "0", "1", "err"))

	g1 := mustGroup(t, GroupConfig{
		Name:      "second",
		Processes: []TaskConfig{{Command: Command{Program: "/bin/true"}}},
	})
	require.NoError(t, env.AddNewGroup(g1))

	assert.Equal(t, 2, env.NbGroups())
	assert.DirExists(t, filepath.Join(root, "1", "0", "out"))
}

func TestEnvironmentSnapshotOnDirty(t *testing.T) {
	chdirTemp(t)
	root := filepath.Join(t.TempDir(), "captures")

	env, err := NewEnvironment(root, nil)
	require.NoError(t, err)

	env.Update()
	assert.NoFileExists(t, SnapshotPath, "a clean environment writes no snapshot")

	require.NoError(t, env.AddNewGroup(mustGroup(t, GroupConfig{
		Name:     "submitted",
		StartsAt: strPtr("****-**-**T**:**:**Z"),
		Period:   strPtr("0000-00-01 00:00:00"),
	})))
	env.Update()

	data, err := os.ReadFile(SnapshotPath)
	require.NoError(t, err)

	var snap struct {
		Groups []GroupConfig `json:"groups"`
		Log    *string       `json:"log"`
	}
	require.NoError(t, json.Unmarshal(data, &snap))
	require.Len(t, snap.Groups, 1)
	assert.Equal(t, "submitted", snap.Groups[0].Name)
	assert.Equal(t, "****-**-**T**:**:**Z", *snap.Groups[0].StartsAt)
	assert.Equal(t, "0000-00-01 00:00:00", *snap.Groups[0].Period)
	require.NotNil(t, snap.Log)
	assert.Equal(t, root, *snap.Log)

	// The snapshot is written once per mutation, not every tick.
	require.NoError(t, os.Remove(SnapshotPath))
	env.Update()
	assert.NoFileExists(t, SnapshotPath)
}

func TestEnvironmentScheduling(t *testing.T) {
	root := filepath.Join(t.TempDir(), "captures")

	g := mustGroup(t, GroupConfig{
		Name:     "ticker",
		StartsAt: strPtr("****-**-**T**:**:**Z"),
		Period:   strPtr("0000-00-00 00:00:01"),
		Processes: []TaskConfig{
			{Command: Command{Program: "/bin/true"}, MaxConcurrent: intPtr(4)},
		},
	})
	env, err := NewEnvironment(root, []*TaskGroup{g})
	require.NoError(t, err)

	// Tick at 100ms for a bit over two periods.
	deadline := time.Now().Add(2200 * time.Millisecond)
	for time.Now().Before(deadline) {
		env.Update()
		time.Sleep(100 * time.Millisecond)
	}

	tk := g.Tasks()[0]
	drain(t, tk)

	execs := tk.Executions()
	assert.GreaterOrEqual(t, len(execs), 2, "one wave per period")
	assert.LessOrEqual(t, len(execs), 4)
	for i, out := range execs {
		assert.Equalf(t, StateNoError, out.State, "slot %d", i)
	}

	stats := tk.Stats()
	assert.Equal(t, len(execs), stats.Count)
	assert.Equal(t, 0, stats.ErrorCount)
	assert.Less(t, stats.AverageDuration, 500*time.Millisecond)
}
