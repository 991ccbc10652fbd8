package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/VanDung-dev/corky-relay/logging"
	"github.com/VanDung-dev/corky-relay/network"
	"github.com/VanDung-dev/corky-relay/summary"
)

// ErrForwarderStopped is returned when the proxy forwarder exits while
// the plane has not been asked to stop.
var ErrForwarderStopped = errors.New("forwarder stopped")

// Plane names.
const (
	ProxyPlaneName  = "proxy"
	BrokerPlaneName = "broker"
)

// Proxy socket names used in logs and metrics.
const (
	SocketXSub = "xsub"
	SocketXPub = "xpub"
)

// DefaultResubscribeInterval is how often the full subscription set is
// resent to the publishers.
const DefaultResubscribeInterval = 100 * time.Millisecond

// ProxyConfig configures the publish/subscribe plane.
type ProxyConfig struct {
	XSubEndpoint string
	XPubEndpoint string

	// PollTimeout bounds each wait for a publication, and so how often
	// subscriptions are synced and cancellation is noticed.
	PollTimeout time.Duration

	// ResubscribeInterval bounds how long a publisher that connects late
	// goes without the current subscriptions.
	ResubscribeInterval time.Duration

	Tuning network.Tuning
}

// ProxyPlane forwards publications from XSUB to XPUB and subscriptions
// back the other way.
type ProxyPlane struct {
	cfg     ProxyConfig
	logger  *slog.Logger
	metrics *Metrics
}

// NewProxyPlane creates a proxy plane. A nil logger uses slog.Default.
func NewProxyPlane(cfg ProxyConfig, logger *slog.Logger, metrics *Metrics) *ProxyPlane {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Millisecond
	}
	if cfg.ResubscribeInterval <= 0 {
		cfg.ResubscribeInterval = DefaultResubscribeInterval
	}
	return &ProxyPlane{
		cfg:     cfg,
		logger:  logger.With(logging.Plane(ProxyPlaneName)),
		metrics: metrics,
	}
}

// Name returns the plane name.
func (p *ProxyPlane) Name() string { return ProxyPlaneName }

// Run binds both sockets and relays until ctx is cancelled, which returns
// nil, or a receive on the XSUB side fails, which returns that error
// wrapped in ErrForwarderStopped. Sockets are released on every exit path.
//
// The XPUB socket keeps subscription frames to itself, so instead of
// forwarding them the loop mirrors its topic set onto the XSUB side.
func (p *ProxyPlane) Run(ctx context.Context) error {
	sockCtx, cancel := context.WithCancel(ctx)
	var sockets []zmq4.Socket
	var poll *network.PollSet
	defer func() {
		cancel()
		network.CloseAll(sockets...)
		if poll != nil {
			poll.Close()
		}
	}()

	xsub, err := network.Bind(sockCtx, network.XSub, p.cfg.XSubEndpoint, p.cfg.Tuning)
	if err != nil {
		return err
	}
	sockets = append(sockets, xsub)
	p.logger.Info("socket bound",
		logging.Socket(SocketXSub), slog.String("endpoint", p.cfg.XSubEndpoint))

	xpub, err := network.Bind(sockCtx, network.XPub, p.cfg.XPubEndpoint, p.cfg.Tuning)
	if err != nil {
		return err
	}
	sockets = append(sockets, xpub)
	p.logger.Info("socket bound",
		logging.Socket(SocketXPub), slog.String("endpoint", p.cfg.XPubEndpoint))

	topics, ok := xpub.(topicSource)
	if !ok {
		return fmt.Errorf("%s socket does not report topics", xpub.Type())
	}
	mirror := newSubscriptionMirror(topics, xsub, p.cfg.ResubscribeInterval)

	poll, err = network.NewPollSet(sockCtx, xsub)
	if err != nil {
		return err
	}

	p.metrics.SetPlaneUp(ProxyPlaneName, true)
	defer p.metrics.SetPlaneUp(ProxyPlaneName, false)
	p.logger.Info("starting XSUB/XPUB forwarder")

	for {
		if ctx.Err() != nil {
			p.logger.Info("shutdown requested")
			return nil
		}

		p.syncSubscriptions(mirror)

		events, err := poll.Poll(ctx, p.cfg.PollTimeout)
		if errors.Is(err, network.ErrInterrupted) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrForwarderStopped, err)
		}

		for _, ev := range events {
			if ev.Err != nil {
				if ctx.Err() != nil {
					continue
				}
				p.metrics.RecordTransportError(SocketXSub, "recv")
				return fmt.Errorf("%w: %w", ErrForwarderStopped, ev.Err)
			}
			p.publish(ctx, xpub, ev.Msg)
		}
	}
}

func (p *ProxyPlane) syncSubscriptions(mirror *subscriptionMirror) {
	changes, err := mirror.sync(time.Now())
	for _, c := range changes {
		p.logger.Debug("subscription changed",
			slog.String("topic", summary.FormatFrame([]byte(c.Topic))),
			slog.Bool("subscribe", c.Subscribe))
		p.metrics.RecordForward(RouteSubscription)
	}
	if err != nil {
		p.logger.Warn("subscription send failed", logging.Socket(SocketXSub), logging.Err(err))
		p.metrics.RecordTransportError(SocketXSub, "send")
	}
}

// publish hands one publication to the subscribers, frames unchanged.
func (p *ProxyPlane) publish(ctx context.Context, xpub zmq4.Socket, msg zmq4.Msg) {
	if p.logger.Enabled(ctx, slog.LevelDebug) {
		p.logger.Debug("publishing",
			slog.Int(logging.KeyFrames, len(msg.Frames)),
			slog.String(logging.KeyMessage, summary.FormatMessage(msg.Frames)))
	}

	if err := xpub.SendMulti(zmq4.NewMsgFrom(msg.Frames...)); err != nil {
		p.logger.Error("send failed", logging.Socket(SocketXPub), logging.Err(err))
		p.metrics.RecordTransportError(SocketXPub, "send")
		return
	}
	p.metrics.RecordForward(RoutePublish)
}
