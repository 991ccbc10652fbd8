// Package config holds the resolved relay configuration and its loaders.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Default endpoints.
const (
	DefaultProxyXSubEndpoint      = "tcp://*:5557"
	DefaultProxyXPubEndpoint      = "tcp://*:5558"
	DefaultClientToClientEndpoint = "tcp://*:6565"
	DefaultClientFacingEndpoint   = "tcp://*:5559"
	DefaultWorkerFacingEndpoint   = "tcp://*:5560"
)

// Default tuning.
const (
	DefaultHighWaterMark = 10_000
	DefaultSendTimeout   = time.Second
	DefaultPollTimeout   = 10 * time.Millisecond
	DefaultRetryBackoff  = 3 * time.Second
)

var (
	// ErrEmptyEndpoint is returned when an endpoint is blank.
	ErrEmptyEndpoint = errors.New("endpoint cannot be empty")
	// ErrDuplicateEndpoint is returned when two sockets would bind the same address.
	ErrDuplicateEndpoint = errors.New("endpoint bound twice")
	// ErrInvalidTuning is returned for non-positive timings or limits.
	ErrInvalidTuning = errors.New("invalid tuning value")
)

// Config is the fully resolved relay configuration.
type Config struct {
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Network NetworkConfig `toml:"network" json:"network"`
	Tuning  TuningConfig  `toml:"tuning" json:"tuning"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`
}

// LoggingConfig selects log verbosity and output format.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// NetworkConfig lists the five bound endpoints.
type NetworkConfig struct {
	ProxyXSubEndpoint      string `toml:"proxy_xsub_endpoint" json:"proxy_xsub_endpoint"`
	ProxyXPubEndpoint      string `toml:"proxy_xpub_endpoint" json:"proxy_xpub_endpoint"`
	ClientToClientEndpoint string `toml:"client_to_client_endpoint" json:"client_to_client_endpoint"`
	ClientFacingEndpoint   string `toml:"client_facing_endpoint" json:"client_facing_endpoint"`
	WorkerFacingEndpoint   string `toml:"worker_facing_endpoint" json:"worker_facing_endpoint"`
}

// TuningConfig is applied to every socket and to the plane loops.
type TuningConfig struct {
	// HighWaterMark is the per-socket queue depth limit.
	HighWaterMark int `toml:"high_water_mark" json:"high_water_mark"`

	// SendTimeout bounds how long a send may block, including on close.
	SendTimeout Duration `toml:"send_timeout" json:"send_timeout"`

	// PollTimeout is the broker's readiness wait per iteration.
	PollTimeout Duration `toml:"poll_timeout" json:"poll_timeout"`

	// RetryBackoff is the pause between restarts of a failed plane.
	RetryBackoff Duration `toml:"retry_backoff" json:"retry_backoff"`

	// MaxAttempts limits restarts per plane; 0 means unbounded.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	// Address to serve /metrics and /health on; empty disables the server.
	Address string `toml:"address" json:"address"`
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	n := &c.Network
	if n.ProxyXSubEndpoint == "" {
		n.ProxyXSubEndpoint = DefaultProxyXSubEndpoint
	}
	if n.ProxyXPubEndpoint == "" {
		n.ProxyXPubEndpoint = DefaultProxyXPubEndpoint
	}
	if n.ClientToClientEndpoint == "" {
		n.ClientToClientEndpoint = DefaultClientToClientEndpoint
	}
	if n.ClientFacingEndpoint == "" {
		n.ClientFacingEndpoint = DefaultClientFacingEndpoint
	}
	if n.WorkerFacingEndpoint == "" {
		n.WorkerFacingEndpoint = DefaultWorkerFacingEndpoint
	}

	t := &c.Tuning
	if t.HighWaterMark == 0 {
		t.HighWaterMark = DefaultHighWaterMark
	}
	if t.SendTimeout == 0 {
		t.SendTimeout = Duration(DefaultSendTimeout)
	}
	if t.PollTimeout == 0 {
		t.PollTimeout = Duration(DefaultPollTimeout)
	}
	if t.RetryBackoff == 0 {
		t.RetryBackoff = Duration(DefaultRetryBackoff)
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	seen := make(map[string]string, 5)
	for _, ep := range c.Network.endpoints() {
		if ep.addr == "" {
			return fmt.Errorf("%s: %w", ep.name, ErrEmptyEndpoint)
		}
		if other, dup := seen[ep.addr]; dup {
			return fmt.Errorf("%s and %s use %s: %w", other, ep.name, ep.addr, ErrDuplicateEndpoint)
		}
		seen[ep.addr] = ep.name
	}

	t := c.Tuning
	switch {
	case t.HighWaterMark <= 0:
		return fmt.Errorf("high_water_mark %d: %w", t.HighWaterMark, ErrInvalidTuning)
	case t.SendTimeout <= 0:
		return fmt.Errorf("send_timeout %s: %w", t.SendTimeout, ErrInvalidTuning)
	case t.PollTimeout <= 0:
		return fmt.Errorf("poll_timeout %s: %w", t.PollTimeout, ErrInvalidTuning)
	case t.RetryBackoff <= 0:
		return fmt.Errorf("retry_backoff %s: %w", t.RetryBackoff, ErrInvalidTuning)
	case t.MaxAttempts < 0:
		return fmt.Errorf("max_attempts %d: %w", t.MaxAttempts, ErrInvalidTuning)
	}
	return nil
}

type namedEndpoint struct {
	name string
	addr string
}

func (n NetworkConfig) endpoints() []namedEndpoint {
	return []namedEndpoint{
		{"proxy_xsub_endpoint", n.ProxyXSubEndpoint},
		{"proxy_xpub_endpoint", n.ProxyXPubEndpoint},
		{"client_to_client_endpoint", n.ClientToClientEndpoint},
		{"client_facing_endpoint", n.ClientFacingEndpoint},
		{"worker_facing_endpoint", n.WorkerFacingEndpoint},
	}
}
