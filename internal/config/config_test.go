package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "stub", cfg.DefaultBackend)
	assert.Equal(t, 30*time.Second, cfg.InferTimeout)
	assert.False(t, cfg.Debug)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("QUIVER_ADDR", ":9090")
	t.Setenv("QUIVER_PLUGIN_PATHS", "/opt/quiver,/usr/lib/quiver")
	t.Setenv("QUIVER_DEFAULT_BACKEND", "webgpu")
	t.Setenv("QUIVER_INFER_TIMEOUT", "5s")
	t.Setenv("QUIVER_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"/opt/quiver", "/usr/lib/quiver"}, cfg.PluginPaths)
	assert.Equal(t, "webgpu", cfg.DefaultBackend)
	assert.Equal(t, 5*time.Second, cfg.InferTimeout)
	assert.True(t, cfg.Debug)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("QUIVER_INFER_TIMEOUT", "not-a-duration")
	_, err := Load()
	assert.Error(t, err)
}
