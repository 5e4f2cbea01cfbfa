package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRejectsMissingConfig(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.json"), "")
	assert.Error(t, err)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	path := writeConfig(t, `{
		"groups": [{"name": "bad", "starts_at": "20*4-12-01T00:01:12+0000", "processes": []}]
	}`)
	_, err := New(path, "")
	assert.Error(t, err)
}

func TestDaemonLifecycle(t *testing.T) {
	logRoot := filepath.Join(t.TempDir(), "captures")
	pidFile := filepath.Join(t.TempDir(), "chronod.pid")

	path := writeConfig(t, `{
		"log": `+strconv.Quote(logRoot)+`,
		"listening": "127.0.0.1:0",
		"groups": [
			{"name": "idle", "processes": [{"program": "/bin/true", "args": []}]}
		]
	}`)

	d, err := New(path, pidFile)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Env().NbGroups())
	assert.DirExists(t, filepath.Join(logRoot, "0", "0", "out"))

	require.NoError(t, d.Start())

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	done := make(chan error, 1)
	go func() { done <- d.Run() }()

	time.Sleep(50 * time.Millisecond)
	d.Shutdown()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	assert.NoFileExists(t, pidFile)
}

func TestDaemonStartFailsOnBadAddress(t *testing.T) {
	path := writeConfig(t, `{"listening": "256.0.0.1:99999", "groups": []}`)

	d, err := New(path, "")
	require.NoError(t, err)
	assert.Error(t, d.Start())
}
