package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "conf.yaml")
	err := os.WriteFile(file, []byte(`
name: zentask-test
server:
  addr: ":9999"
processor:
  lockTimeout: 2s
  lockRetryInterval: 10ms
  maxTaskDataSize: 2048
`), 0o600)
	require.NoError(t, err)
	t.Setenv("CONFIG_FILE", file)

	c := InitConfig()
	assert.Equal(t, "zentask-test", c.Name)
	assert.Equal(t, ":9999", c.Server.Addr)
	assert.Equal(t, 2*time.Second, c.Processor.LockTimeout)
	assert.Equal(t, 10*time.Millisecond, c.Processor.LockRetryInterval)
	assert.Equal(t, 2048, c.Processor.MaxTaskDataSize)
	// defaults still apply to missing keys
	assert.Equal(t, 5*time.Minute, c.Processor.LockStaleAfter)
	assert.Equal(t, 8, c.Script.MaxVMs)
}

func TestInitConfigFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("PERSISTENCE_PATH", "/tmp/zentask-env.db")

	c := InitConfig()
	assert.Equal(t, "/tmp/zentask-env.db", c.Persistence.Path)
	assert.True(t, c.Processor.AutoCreateLaneGroups)
	assert.True(t, c.Processor.PersistPredictedTasks)
}

func TestValidate(t *testing.T) {
	c := Default()
	assert.NoError(t, c.validate())

	c.Script.MinVMs = 10
	c.Script.MaxVMs = 1
	c.Processor.LockRetryInterval = 0
	assert.Error(t, c.validate())
}
