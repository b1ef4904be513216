package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func TestParseMissingFileUsesDefaultsAndEnv(t *testing.T) {
	m := NewConfigManager(filepath.Join(t.TempDir(), "absent.yaml"))
	m.SetEnvLookup(envOf(map[string]string{
		"BOT_TOKEN":       "123:abc",
		"OWNER_ID":        "42, 43",
		"SUPPORT_CHANNEL": "@support",
		"GROUP_LOG":       "-100777",
	}))

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, []int64{42, 43}, cfg.Telegram.OwnerUserIDs)
	assert.Equal(t, "support", cfg.Telegram.SupportChannel)
	assert.Equal(t, int64(-100777), cfg.Telegram.GroupLog)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, DefaultHealthAddr, cfg.Health.Addr)
	assert.True(t, cfg.Health.Enabled)
	assert.True(t, cfg.IsOwner(43))
	assert.False(t, cfg.IsOwner(44))
	assert.Same(t, cfg, m.Get())
}

func TestParseYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  token: "1:x"
  owner_user_ids: [7]
  workers: 4
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/bot.db
  busy_timeout: 2s
health:
  enabled: false
scheduler:
  pending_sweep: "@every 1m"
`), 0o600))

	m := NewConfigManager(path)
	m.SetEnvLookup(envOf(nil))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Telegram.Workers)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.False(t, cfg.Health.Enabled)
	assert.Equal(t, "@every 1m", cfg.Scheduler.PendingSweep)
	assert.Equal(t, DefaultSessionPrune, cfg.Scheduler.SessionPrune)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"telegram":{"token":"1:x"},"plugins":{}}`), 0o600))

	m := NewConfigManager(path)
	m.SetEnvLookup(envOf(nil))
	_, err := m.Parse()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "token is required")

	cfg.Telegram.Token = "1:x"
	require.NoError(t, cfg.Validate())

	cfg.Storage.Driver = "postgres"
	require.Error(t, cfg.Validate(), "postgres needs a dsn")

	require.NoError(t, cfg.ApplyEnv(envOf(map[string]string{"DATABASE_URL": "postgres://bot@db/bot"})))
	require.NoError(t, cfg.Validate())

	cfg.Telegram.PollTimeout = "soon"
	require.Error(t, cfg.Validate())
}

func TestApplyEnvRejectsBadOwner(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.ApplyEnv(envOf(map[string]string{"OWNER_ID": "me"})))
	require.Error(t, cfg.ApplyEnv(envOf(map[string]string{"GROUP_LOG": "logs"})))
}

func TestSummarizeConfigChange(t *testing.T) {
	a := Default()
	a.Telegram.Token = "secret"
	b := Default()
	b.Telegram.Token = "other"
	b.Telegram.OwnerUserIDs = []int64{1}
	b.Logging.Level = "debug"

	changed, attrs, restart := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"telegram", "logging"}, changed)
	assert.Equal(t, []string{"telegram"}, restart)
	assert.NotEmpty(t, attrs)
}
