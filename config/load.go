package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ErrNotFound is returned by Load when the configuration file is absent.
var ErrNotFound = errors.New("configuration file not found")

// Environment variables overriding file settings.
const (
	EnvLogLevel       = "CORKY_LOG_LEVEL"
	EnvLogFormat      = "CORKY_LOG_FORMAT"
	EnvXSubEndpoint   = "CORKY_XSUB_ENDPOINT"
	EnvXPubEndpoint   = "CORKY_XPUB_ENDPOINT"
	EnvDirectEndpoint = "CORKY_DIRECT_ENDPOINT"
	EnvClientEndpoint = "CORKY_CLIENT_ENDPOINT"
	EnvWorkerEndpoint = "CORKY_WORKER_ENDPOINT"
	EnvMetricsAddr    = "CORKY_METRICS_ADDR"
)

// DefaultPath returns ~/.corky/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".corky", "config.toml"), nil
}

// Load reads a TOML configuration file. Fields missing from the file keep
// their defaults. If the file does not exist Load returns the defaults
// together with an error wrapping ErrNotFound, so callers can warn and go on.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Default(), fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), fmt.Errorf("%w at %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes TOML data into a Config and fills defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	if _, err := toml.Decode(string(data), &c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.SetDefaults()
	return &c, nil
}

// LoadDotEnv seeds the process environment from .env files. Variables that
// are already set win; missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides fields from environment variables found by lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvLogLevel, &c.Logging.Level)
	set(EnvLogFormat, &c.Logging.Format)
	set(EnvXSubEndpoint, &c.Network.ProxyXSubEndpoint)
	set(EnvXPubEndpoint, &c.Network.ProxyXPubEndpoint)
	set(EnvDirectEndpoint, &c.Network.ClientToClientEndpoint)
	set(EnvClientEndpoint, &c.Network.ClientFacingEndpoint)
	set(EnvWorkerEndpoint, &c.Network.WorkerFacingEndpoint)
	set(EnvMetricsAddr, &c.Metrics.Address)
}

// Duration is a time.Duration read from and written as text like "3s".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
