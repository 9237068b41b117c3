package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "https://api.mangadex.org", cfg.Upstream.BaseURL)
	require.Equal(t, 10, cfg.Aggregator.RecentTarget)
	require.Equal(t, 500, cfg.Aggregator.DiscoveryOffsetCap)
	require.Equal(t, 3, cfg.Aggregator.SearchMinQuery)
	require.Equal(t, 24*time.Hour, cfg.Relay.CacheMaxAge)
	require.Equal(t, []string{"en", "en-us"}, cfg.Upstream.Locales)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  base_path: /api
upstream:
  timeout: 3s
  locales: [ja, en]
aggregator:
  speculative_fallback: true
logging:
  level: debug
`), 0o600))

	t.Setenv("MANGARELAY_SERVER_PORT", "9100")
	t.Setenv("MANGARELAY_RELAY_ALLOWED_HOSTS", "example.org, cdn.example.net")
	t.Setenv("MANGARELAY_UNRELATED", "ignored")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port, "env wins over file")
	require.Equal(t, "/api", cfg.Server.BasePath)
	require.Equal(t, 3*time.Second, cfg.Upstream.Timeout)
	require.Equal(t, []string{"ja", "en"}, cfg.Upstream.Locales)
	require.True(t, cfg.Aggregator.SpeculativeFallback)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, []string{"example.org", "cdn.example.net"}, cfg.Relay.AllowedHosts)
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "from-env.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grpc:\n  enabled: true\n  addr: \":7070\"\n"), 0o600))
	t.Setenv(ConfigPathEnv, path)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.True(t, cfg.GRPC.Enabled)
	require.Equal(t, ":7070", cfg.GRPC.Addr)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	_, err := LoadConfig("does-not-exist.yaml")
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Aggregator.DiscoveryOffsetCap = 50
	require.Error(t, cfg.Validate(), "cap below one page")

	cfg = DefaultConfig()
	cfg.Aggregator.SearchDefaultLimit = 200
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Logging.Format = "xml"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Upstream.BaseURL = "not a url"
	require.Error(t, cfg.Validate())
}
