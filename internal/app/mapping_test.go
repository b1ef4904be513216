package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsubbot/internal/config"
)

func TestMapStorageConfig(t *testing.T) {
	cfg := config.Default()
	sc, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "file", sc.Driver)
	assert.Equal(t, config.DefaultStoragePath, sc.Path)

	cfg.Storage.Driver = "sqlite"
	sc, err = mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, defaultSQLitePath, sc.Path)
	assert.Positive(t, sc.BusyTimeout)

	cfg.Storage.BusyTimeout = "later"
	_, err = mapStorageConfig(cfg)
	require.Error(t, err)

	cfg.Storage = config.StorageConfig{Driver: "PGX", DSN: " postgres://db/bot "}
	sc, err = mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "postgres", sc.Driver)
	assert.Equal(t, "postgres://db/bot", sc.DSN)

	cfg.Storage.Driver = "mongo"
	_, err = mapStorageConfig(cfg)
	require.Error(t, err)
}

func TestMapLogConfigNeedsTarget(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Telegram.Enabled = true
	assert.False(t, mapLogConfig(cfg).Telegram.Enabled)

	cfg.Telegram.GroupLog = -1001
	lc := mapLogConfig(cfg)
	assert.True(t, lc.Telegram.Enabled)
	assert.Equal(t, int64(-1001), lc.Telegram.ChatID)
}

func TestMapHealthConfig(t *testing.T) {
	cfg := config.Default()
	hc := mapHealthConfig(cfg, "v1")
	assert.True(t, hc.Enabled)
	assert.Equal(t, config.DefaultHealthAddr, hc.Addr)
	assert.Equal(t, "v1", hc.Version)
}
