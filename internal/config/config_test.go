package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.Discord.BotToken)
	assert.Equal(t, "Asia/Tokyo", cfg.Scheduler.Timezone)
	assert.Equal(t, "data/kabu-notify.db", cfg.Database.SQLitePath)
	assert.Equal(t, 10*time.Second, cfg.Yahoo.Timeout)
	assert.Equal(t, 2, cfg.Yahoo.RetryMax)
	assert.Equal(t, time.Second, cfg.Yahoo.RetryDelay)
	assert.Equal(t, 30, cfg.Yahoo.HistoryDays)
	assert.True(t, cfg.Log.Console)
	require.NoError(t, cfg.Validate())
}

func TestLoadKeepsExplicitZeroRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("yahoo:\n  retry_max: 0\n"), 0o600))
	t.Setenv("DISCORD_BOT_TOKEN", "token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Yahoo.RetryMax)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
discord:
  bot_token: from-file
  client_id: "123"
  command_prefix: kabu-
yahoo:
  timeout: 3s
  requests_per_second: 2
scheduler:
  timezone: UTC
  allow_overlap: true
telegram:
  bot_token: tg
  chat_id: 99
log:
  level: debug
  console: false
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("DISCORD_BOT_TOKEN", "from-env")
	t.Setenv("DB_PATH", "/tmp/x.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Discord.BotToken)
	assert.Equal(t, "123", cfg.Discord.ClientID)
	assert.Equal(t, "kabu-", cfg.Discord.CommandPrefix)
	assert.Equal(t, 3*time.Second, cfg.Yahoo.Timeout)
	assert.Equal(t, 2.0, cfg.Yahoo.RequestsPerSecond)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.True(t, cfg.Scheduler.AllowOverlap)
	assert.Equal(t, int64(99), cfg.Telegram.ChatID)
	assert.Equal(t, "/tmp/x.db", cfg.Database.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Console)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateDeploy())
}

func TestValidate(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate(), "missing token")

	cfg.Discord.BotToken = "x"
	cfg.Scheduler.Timezone = "Not/AZone"
	assert.Error(t, cfg.Validate(), "bad timezone")

	cfg.Scheduler.Timezone = "Asia/Tokyo"
	cfg.Telegram.BotToken = "tg"
	assert.Error(t, cfg.Validate(), "telegram token without chat id")

	cfg.Telegram.BotToken = ""
	require.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateDeploy(), "missing client id")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discord: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
