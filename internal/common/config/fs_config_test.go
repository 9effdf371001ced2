package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fetch-service.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
server:
  id: fs-test
  listen: ":10090"
`

func TestLoadFSConfigMinimal(t *testing.T) {
	cfg, err := LoadFSConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	// defaults applied
	assert.Equal(t, "chromium", cfg.Browser.Kind)
	assert.Equal(t, 16, cfg.Browser.EngineConcurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Console.Enabled)
	assert.Equal(t, "console", cfg.Log.Console.Format)
}

func TestLoadFSConfigFull(t *testing.T) {
	cfg, err := LoadFSConfig(writeConfig(t, `
server:
  id: fs-1
  listen: ":10090"
  timeout: 45s
browser:
  kind: firefox
  headless: true
  max_pages_per_context: 4
  max_contexts: 8
  navigation_timeout: 20s
  passthrough_headers: true
  abort_resource_types: [image, media]
  abort_url_patterns: ["tracker.example"]
  contexts:
    default: {}
    authenticated:
      user_data_dir: /var/lib/fetch/profile
      user_agent: MyCrawler/2.0
      viewport:
        width: 1280
        height: 720
log:
  level: warn
metrics:
  enabled: true
  listen: ":10091"
  path: /metrics
  namespace: browserfetch
`))
	require.NoError(t, err)

	assert.Equal(t, "firefox", cfg.Browser.Kind)
	assert.Equal(t, 4, cfg.Browser.MaxPagesPerContext)
	assert.Equal(t, 8, cfg.Browser.MaxContexts)
	require.NotNil(t, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 20*time.Second, time.Duration(*cfg.Browser.NavigationTimeout))
	assert.True(t, cfg.Browser.PassthroughHeaders)
	assert.Len(t, cfg.Browser.Contexts, 2)
	assert.Equal(t, "/var/lib/fetch/profile", cfg.Browser.Contexts["authenticated"].UserDataDir)
	assert.Equal(t, 45*time.Second, cfg.EffectiveServerTimeout())
}

func TestLoadFSConfigRejectsUnknownFields(t *testing.T) {
	_, err := LoadFSConfig(writeConfig(t, `
server:
  id: fs-1
  listen: ":10090"
  lsiten_typo: ":10091"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration field")
}

func TestFSConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing server id",
			yaml:    "server:\n  listen: \":10090\"\n",
			wantErr: "server.id is required",
		},
		{
			name:    "missing listen",
			yaml:    "server:\n  id: fs-1\n",
			wantErr: "server.listen is required",
		},
		{
			name:    "bad listen port",
			yaml:    "server:\n  id: fs-1\n  listen: \":99999\"\n",
			wantErr: "port must be between",
		},
		{
			name:    "unknown browser kind",
			yaml:    minimalConfig + "browser:\n  kind: chrome\n",
			wantErr: "browser.kind must be",
		},
		{
			name:    "both attach modes",
			yaml:    minimalConfig + "browser:\n  cdp_address: \"http://x:9222\"\n  ws_endpoint: \"ws://y:3000\"\n",
			wantErr: "mutually exclusive",
		},
		{
			name:    "zero viewport",
			yaml:    minimalConfig + "browser:\n  contexts:\n    bad:\n      viewport:\n        width: 0\n        height: 600\n",
			wantErr: "viewport dimensions must be positive",
		},
		{
			name:    "invalid log level",
			yaml:    minimalConfig + "log:\n  level: verbose\n",
			wantErr: "invalid log.level",
		},
		{
			name:    "metrics without listen",
			yaml:    minimalConfig + "metrics:\n  enabled: true\n",
			wantErr: "metrics.listen is required",
		},
		{
			name:    "metrics port collides with server",
			yaml:    minimalConfig + "metrics:\n  enabled: true\n  listen: \":10090\"\n",
			wantErr: "must differ from server.listen port",
		},
		{
			name:    "bad metrics namespace",
			yaml:    minimalConfig + "metrics:\n  namespace: \"9bad\"\n",
			wantErr: "invalid metrics.namespace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFSConfig(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEffectiveServerTimeoutFallbacks(t *testing.T) {
	cfg, err := LoadFSConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, defaultServerTimeout, cfg.EffectiveServerTimeout())

	cfg, err = LoadFSConfig(writeConfig(t, minimalConfig+"browser:\n  navigation_timeout: 30s\n"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second+serverTimeoutMargin, cfg.EffectiveServerTimeout())
}

func TestGetConfigPath(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	abs, err := GetConfigPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, abs)

	_, err = GetConfigPath("")
	assert.Error(t, err)

	_, err = GetConfigPath("/nonexistent/config.yaml")
	assert.Error(t, err)
}
