package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
mongo:
  host: localhost:27017
  dbname: harvest
slack:
  bot_token: xoxb-test
`

func TestParse_Defaults(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://slack.com/api", cfg.Slack.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Crawl.PagePause())
	assert.Equal(t, time.Second, cfg.Crawl.RetryInterval())
	assert.Equal(t, 300*time.Second, cfg.Slack.Timeout())
	assert.Equal(t, 4, cfg.Crawl.Concurrency)
	assert.Equal(t, "0 0 * * *", cfg.Schedule.Cron)
	assert.Equal(t, time.Hour, cfg.Redis.LockTTL())
	assert.Equal(t, 20*time.Minute, cfg.Redis.LockRenew())
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-from-env")
	t.Setenv("REDIS_ADDRESS", "redis:6379")
	t.Setenv("REPORT_MONTHS", "3")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "xoxb-from-env", cfg.Slack.BotToken)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.Equal(t, 3, cfg.Report.Months)
}

func TestParse_ValidationErrors(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"missing host", "mongo: {dbname: x}\nslack: {bot_token: t}", ErrMissingMongoHost},
		{"missing db", "mongo: {host: h}\nslack: {bot_token: t}", ErrMissingMongoDB},
		{"missing token", "mongo: {host: h, dbname: x}", ErrMissingSlackToken},
		{"pause too long", minimalYAML + "crawl: {page_pause_ms: 2000}", ErrInvalidPagePause},
		{"pause too short", minimalYAML + "crawl: {page_pause_ms: 100}", ErrInvalidPagePause},
		{"bad concurrency", minimalYAML + "crawl: {concurrency: -1}", ErrInvalidConcurrency},
		{"bad months", minimalYAML + "report: {months: -2}", ErrInvalidMonths},
		{"bad level", minimalYAML + "log: {level: loud}", ErrInvalidLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "harvest", cfg.Mongo.DBName)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
