// Package engine supervises the relay planes: each runs in its own restart
// loop and all of them stop when the shared context is cancelled.
package engine

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/VanDung-dev/corky-relay/config"
	"github.com/VanDung-dev/corky-relay/logging"
	"github.com/VanDung-dev/corky-relay/network"
	"github.com/VanDung-dev/corky-relay/relay"
)

// Plane is a long-running relay loop.
type Plane interface {
	Name() string
	Run(ctx context.Context) error
}

// Lifecycle runs a set of planes, each under Retry.
type Lifecycle struct {
	planes  []Plane
	retry   RetryOptions
	logger  *slog.Logger
	metrics *relay.Metrics
}

// NewLifecycle supervises planes with the given retry settings. Name and
// Logger in retry are filled per plane.
func NewLifecycle(logger *slog.Logger, metrics *relay.Metrics, retry RetryOptions, planes ...Plane) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		planes:  planes,
		retry:   retry,
		logger:  logger,
		metrics: metrics,
	}
}

// FromConfig builds the proxy and broker planes described by cfg.
func FromConfig(cfg *config.Config, logger *slog.Logger, metrics *relay.Metrics) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}

	tuning := network.Tuning{
		HighWaterMark: cfg.Tuning.HighWaterMark,
		SendTimeout:   cfg.Tuning.SendTimeout.Std(),
		Logger:        logging.StdLogger(logger.With(logging.Socket("zmq4"))),
	}

	proxy := relay.NewProxyPlane(relay.ProxyConfig{
		XSubEndpoint: cfg.Network.ProxyXSubEndpoint,
		XPubEndpoint: cfg.Network.ProxyXPubEndpoint,
		PollTimeout:  cfg.Tuning.PollTimeout.Std(),
		Tuning:       tuning,
	}, logger, metrics)

	broker := relay.NewBrokerPlane(relay.BrokerConfig{
		DirectEndpoint: cfg.Network.ClientToClientEndpoint,
		ClientEndpoint: cfg.Network.ClientFacingEndpoint,
		WorkerEndpoint: cfg.Network.WorkerFacingEndpoint,
		PollTimeout:    cfg.Tuning.PollTimeout.Std(),
		Tuning:         tuning,
	}, logger, metrics)

	retry := RetryOptions{
		MaxAttempts: cfg.Tuning.MaxAttempts,
		Backoff:     cfg.Tuning.RetryBackoff.Std(),
	}
	return NewLifecycle(logger, metrics, retry, proxy, broker)
}

// Start runs the planes described by cfg until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *relay.Metrics) error {
	return FromConfig(cfg, logger, metrics).Run(ctx)
}

// Planes returns the supervised planes.
func (l *Lifecycle) Planes() []Plane { return l.planes }

// Run starts every plane concurrently and waits for all of them. A plane
// that gives up does not stop the others; its error is returned once they
// have finished too.
func (l *Lifecycle) Run(ctx context.Context) error {
	var g errgroup.Group

	for _, p := range l.planes {
		opts := l.retry
		opts.Name = p.Name()
		opts.Logger = l.logger
		opts.OnFailure = func(int, error) { l.metrics.RecordRestart(p.Name()) }

		g.Go(func() error {
			return Retry(ctx, p.Run, opts)
		})
	}

	l.logger.Info("relay started", slog.Int("planes", len(l.planes)))
	err := g.Wait()
	l.logger.Info("relay stopped")
	return err
}
