package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCHOOLPOST_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, time.Friday, cfg.PublishDay())
	assert.Equal(t, 10, cfg.Schedule.CutoffHour)
	assert.Equal(t, "Europe/London", cfg.Location().String())
	assert.Equal(t, 30*time.Second, cfg.Scrape.NavigationTimeout)
	assert.Equal(t, time.Minute, cfg.Scrape.DownloadTimeout)
	assert.Equal(t, 10, cfg.Scrape.TabAttempts)
	assert.Equal(t, []string{".pdf"}, cfg.Scrape.Suffixes)
	assert.Equal(t, 2*time.Minute, cfg.Providers.Timeout)
	assert.Len(t, cfg.TriggerSecret, 32)
}

func TestLoadYAMLOverlayThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "schoolpost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
address: ":9090"
schedule:
  publish_day: 3
  cutoff_hour: 12
scrape:
  url: https://portal.example/parents
  settle_delay: 2s
`), 0o600))
	t.Setenv("SCHOOLPOST_CONFIG", path)
	t.Setenv("SCHOOLPOST_CUTOFF_HOUR", "8")
	t.Setenv("SCHOOLPOST_TRIGGER_SECRET", "shh")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address)
	assert.Equal(t, time.Wednesday, cfg.PublishDay())
	assert.Equal(t, 8, cfg.Schedule.CutoffHour, "env wins over the file")
	assert.Equal(t, "https://portal.example/parents", cfg.Scrape.URL)
	assert.Equal(t, 2*time.Second, cfg.Scrape.SettleDelay)
	assert.Equal(t, 15*time.Second, cfg.Scrape.AuthTimeout, "untouched keys keep defaults")
	assert.Equal(t, []byte("shh"), cfg.TriggerSecret)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SCHOOLPOST_CONFIG", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SCHOOLPOST_KIMI_MODEL=kimi-test\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SCHOOLPOST_KIMI_MODEL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "kimi-test", cfg.Providers.KimiModel)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := map[string]func(*Config){
		"cutoff hour":  func(c *Config) { c.Schedule.CutoffHour = 24 },
		"publish day":  func(c *Config) { c.Schedule.PublishDay = 7 },
		"timezone":     func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" },
		"no suffixes":  func(c *Config) { c.Scrape.Suffixes = nil },
		"log level":    func(c *Config) { c.LogLevel = "loud" },
		"zero timeout": func(c *Config) { c.Providers.Timeout = 0 },
		"parallelism":  func(c *Config) { c.Generation.Parallelism = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
