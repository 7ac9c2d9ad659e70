package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orrn/printpipe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printpipe.yaml")
	data := `
server:
  port: 9090
  submit_rate: 2.5
  submit_burst: 4
output:
  dir: /var/spool/printpipe
  format: tspl
  label:
    width_mm: 50
webhooks:
  endpoints:
    - url: http://localhost:9999/hook
      events: [job_completed, job_failed]
journal:
  enabled: true
  path: /tmp/journal.db
  flush_interval: 1s
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2.5, cfg.Server.SubmitRate)
	assert.Equal(t, 4, cfg.Server.SubmitBurst)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/var/spool/printpipe", cfg.Output.Dir)
	assert.Equal(t, "file", cfg.Output.Backend)
	assert.Equal(t, "tspl", cfg.Output.Format)
	assert.Equal(t, 50.0, cfg.Output.Label.WidthMM)
	assert.Equal(t, 150.0, cfg.Output.Label.HeightMM)
	require.Len(t, cfg.Webhooks.Endpoints, 1)
	assert.Equal(t, []string{"job_completed", "job_failed"}, cfg.Webhooks.Endpoints[0].Events)
	assert.Equal(t, 3, cfg.Webhooks.RetryCount)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, time.Second, cfg.Journal.FlushInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))

	_, err := config.Load(path)

	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PRINTPIPE_PORT", "7070")
	t.Setenv("PRINTPIPE_OUTPUT_DIR", "/tmp/prints")
	t.Setenv("PRINTPIPE_JOURNAL_PATH", "/tmp/j.db")
	t.Setenv("PRINTPIPE_LOG_LEVEL", "warn")

	cfg := config.LoadFromEnv()

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/prints", cfg.Output.Dir)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "/tmp/j.db", cfg.Journal.Path)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromEnv_NetworkAndWebhook(t *testing.T) {
	t.Setenv("PRINTPIPE_PRINTER_ADDR", "192.168.1.50:9100")
	t.Setenv("PRINTPIPE_WEBHOOK_URL", "https://hooks.example.com/printpipe")
	t.Setenv("PRINTPIPE_WEBHOOK_SECRET", "shh")

	cfg := config.LoadFromEnv()

	assert.Equal(t, "network", cfg.Output.Backend)
	assert.Equal(t, "192.168.1.50:9100", cfg.Output.PrinterAddr)
	require.Len(t, cfg.Webhooks.Endpoints, 1)
	assert.Equal(t, "shh", cfg.Webhooks.Endpoints[0].Secret)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *config.Config) {}},
		{name: "bad port", mutate: func(c *config.Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "negative read timeout", mutate: func(c *config.Config) { c.Server.ReadTimeout = -1 }, wantErr: true},
		{name: "negative submit rate", mutate: func(c *config.Config) { c.Server.SubmitRate = -1 }, wantErr: true},
		{
			name: "rate without burst",
			mutate: func(c *config.Config) {
				c.Server.SubmitRate = 1
				c.Server.SubmitBurst = 0
			},
			wantErr: true,
		},
		{name: "empty output dir", mutate: func(c *config.Config) { c.Output.Dir = "" }, wantErr: true},
		{
			name: "journal without path",
			mutate: func(c *config.Config) {
				c.Journal.Enabled = true
				c.Journal.Path = ""
			},
			wantErr: true,
		},
		{
			name: "auth without hash",
			mutate: func(c *config.Config) {
				c.Auth.Enabled = true
				c.Auth.Secret = "0123456789abcdef"
			},
			wantErr: true,
		},
		{
			name: "auth with short secret",
			mutate: func(c *config.Config) {
				c.Auth.Enabled = true
				c.Auth.PasswordHash = "hash"
				c.Auth.Secret = "short"
			},
			wantErr: true,
		},
		{
			name: "auth complete",
			mutate: func(c *config.Config) {
				c.Auth.Enabled = true
				c.Auth.PasswordHash = "hash"
				c.Auth.Secret = "0123456789abcdef"
			},
		},
		{name: "unknown backend", mutate: func(c *config.Config) { c.Output.Backend = "fax" }, wantErr: true},
		{name: "network without addr", mutate: func(c *config.Config) { c.Output.Backend = "network" }, wantErr: true},
		{
			name: "network with bad addr",
			mutate: func(c *config.Config) {
				c.Output.Backend = "network"
				c.Output.PrinterAddr = "printer-without-port"
			},
			wantErr: true,
		},
		{
			name: "network tspl",
			mutate: func(c *config.Config) {
				c.Output.Backend = "network"
				c.Output.PrinterAddr = "10.0.0.5:9100"
				c.Output.Format = "tspl"
			},
		},
		{name: "unknown format", mutate: func(c *config.Config) { c.Output.Format = "pdf" }, wantErr: true},
		{
			name: "tspl without label size",
			mutate: func(c *config.Config) {
				c.Output.Format = "tspl"
				c.Output.Label.WidthMM = 0
			},
			wantErr: true,
		},
		{
			name: "webhook bad url",
			mutate: func(c *config.Config) {
				c.Webhooks.Endpoints = []config.WebhookEndpoint{{URL: "ftp://example.com"}}
			},
			wantErr: true,
		},
		{
			name: "webhook unknown event",
			mutate: func(c *config.Config) {
				c.Webhooks.Endpoints = []config.WebhookEndpoint{{URL: "https://example.com/hook", Events: []string{"job_exploded"}}}
			},
			wantErr: true,
		},
		{
			name: "webhook ok",
			mutate: func(c *config.Config) {
				c.Webhooks.Endpoints = []config.WebhookEndpoint{{URL: "https://example.com/hook", Events: []string{"job_failed"}}}
			},
		},
		{name: "negative retention", mutate: func(c *config.Config) {
			c.Journal.Enabled = true
			c.Journal.Retention = -time.Hour
		}, wantErr: true},
		{name: "bad level", mutate: func(c *config.Config) { c.Logging.Level = "trace" }, wantErr: true},
		{name: "bad format", mutate: func(c *config.Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
