// Package config loads runtime configuration from QUIVER_-prefixed
// environment variables.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/quiver-ml/quiver/internal/errdefs"
)

// Config is the serving runtime's configuration surface.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `envconfig:"ADDR" default:":8080"`
	// PluginPaths are directories scanned for backend plugins.
	PluginPaths []string `envconfig:"PLUGIN_PATHS"`
	// WatchPlugins auto-loads plugins appearing in the search paths.
	WatchPlugins bool `envconfig:"WATCH_PLUGINS" default:"false"`
	// DefaultBackend selects the backend kind for models that do not
	// request one ("stub", "onnx", "webgpu", "npu").
	DefaultBackend string `envconfig:"DEFAULT_BACKEND" default:"stub"`
	// Device is passed to engine construction ("cpu", "gpu:0", ...).
	Device string `envconfig:"DEVICE" default:"cpu"`
	// InferTimeout bounds a single inference call.
	InferTimeout time.Duration `envconfig:"INFER_TIMEOUT" default:"30s"`
	// ShutdownGrace bounds graceful server shutdown.
	ShutdownGrace time.Duration `envconfig:"SHUTDOWN_GRACE" default:"10s"`
	// Debug enables verbose logging and per-unit pipeline traces.
	Debug bool `envconfig:"DEBUG" default:"false"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("quiver", &cfg); err != nil {
		return Config{}, errdefs.Wrap(err, "config", "Load", "environment")
	}
	return cfg, nil
}
