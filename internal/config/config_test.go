package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VOYAGE_API_KEY", "")
	t.Setenv("LGREP_CACHE_DIR", "")
	t.Setenv("LGREP_LOG_LEVEL", "")
	t.Setenv("LGREP_MAX_PROJECTS", "")
	t.Setenv("LGREP_HOST", "")
	t.Setenv("LGREP_PORT", "")

	cfg := Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, DefaultMaxProjects, cfg.MaxProjects)
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.NotEmpty(t, cfg.CacheDir)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VOYAGE_API_KEY", "key-123")
	t.Setenv("LGREP_CACHE_DIR", "/tmp/lgrep-cache")
	t.Setenv("LGREP_LOG_LEVEL", "debug")
	t.Setenv("LGREP_MAX_PROJECTS", "5")
	t.Setenv("LGREP_HOST", "0.0.0.0")
	t.Setenv("LGREP_PORT", "9999")

	cfg := Load()

	assert.Equal(t, "key-123", cfg.VoyageAPIKey)
	assert.Equal(t, "/tmp/lgrep-cache", cfg.CacheDir)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 5, cfg.MaxProjects)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9999, cfg.Port)
}

func TestWarmPathList(t *testing.T) {
	cfg := Config{WarmPaths: "/a/b: /c/d :  :/e/f"}
	assert.Equal(t, []string{"/a/b", "/c/d", "/e/f"}, cfg.WarmPathList())

	empty := Config{}
	assert.Nil(t, empty.WarmPathList())
}
