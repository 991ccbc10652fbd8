package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/VanDung-dev/corky-relay/logging"
	"github.com/VanDung-dev/corky-relay/network"
	"github.com/VanDung-dev/corky-relay/summary"
)

// Socket names used in logs and metrics.
const (
	SocketDirect = "direct_router"
	SocketClient = "client_router"
	SocketWorker = "worker_dealer"
)

// Poll set slots.
const (
	slotDirect = iota
	slotClient
	slotWorker
)

// BrokerConfig configures the request/reply and direct-relay plane.
type BrokerConfig struct {
	DirectEndpoint string
	ClientEndpoint string
	WorkerEndpoint string

	// PollTimeout bounds each readiness wait, and so how quickly the loop
	// notices cancellation.
	PollTimeout time.Duration

	Tuning network.Tuning
}

// BrokerPlane services the direct ROUTER, the client ROUTER and the worker
// DEALER from a single loop.
type BrokerPlane struct {
	cfg     BrokerConfig
	logger  *slog.Logger
	metrics *Metrics

	direct zmq4.Socket
	client zmq4.Socket
	worker zmq4.Socket
}

// NewBrokerPlane creates a broker plane. A nil logger uses slog.Default.
func NewBrokerPlane(cfg BrokerConfig, logger *slog.Logger, metrics *Metrics) *BrokerPlane {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Millisecond
	}
	return &BrokerPlane{
		cfg:     cfg,
		logger:  logger.With(logging.Plane(BrokerPlaneName)),
		metrics: metrics,
	}
}

// Name returns the plane name.
func (b *BrokerPlane) Name() string { return BrokerPlaneName }

// Run binds the three sockets and services them until ctx is cancelled,
// which returns nil, or the poll set fails, which returns the error.
// Per-message send and receive failures are logged and do not stop the
// loop. Sockets are released on every exit path.
func (b *BrokerPlane) Run(ctx context.Context) error {
	sockCtx, cancel := context.WithCancel(ctx)
	var sockets []zmq4.Socket
	var poll *network.PollSet
	defer func() {
		cancel()
		network.CloseAll(sockets...)
		if poll != nil {
			poll.Close()
		}
		b.direct, b.client, b.worker = nil, nil, nil
	}()

	bind := func(kind network.Kind, name, endpoint string) (zmq4.Socket, error) {
		sck, err := network.Bind(sockCtx, kind, endpoint, b.cfg.Tuning)
		if err != nil {
			return nil, err
		}
		sockets = append(sockets, sck)
		b.logger.Info("socket bound",
			logging.Socket(name),
			slog.String("type", kind.String()),
			slog.String("endpoint", endpoint))
		return sck, nil
	}

	var err error
	if b.direct, err = bind(network.Router, SocketDirect, b.cfg.DirectEndpoint); err != nil {
		return err
	}
	if b.client, err = bind(network.Router, SocketClient, b.cfg.ClientEndpoint); err != nil {
		return err
	}
	if b.worker, err = bind(network.Dealer, SocketWorker, b.cfg.WorkerEndpoint); err != nil {
		return err
	}

	poll, err = network.NewPollSet(sockCtx, b.direct, b.client, b.worker)
	if err != nil {
		return err
	}

	b.metrics.SetPlaneUp(BrokerPlaneName, true)
	defer b.metrics.SetPlaneUp(BrokerPlaneName, false)
	b.logger.Info("broker loop started")

	for {
		if ctx.Err() != nil {
			b.logger.Info("shutdown requested")
			return nil
		}

		events, err := poll.Poll(ctx, b.cfg.PollTimeout)
		if errors.Is(err, network.ErrInterrupted) {
			continue
		}
		if err != nil {
			return err
		}

		for _, ev := range events {
			b.dispatch(ctx, ev)
		}
	}
}

func (b *BrokerPlane) dispatch(ctx context.Context, ev network.Event) {
	name := socketName(ev.Index)
	if ev.Err != nil {
		b.logger.Error("receive failed", logging.Socket(name), logging.Err(ev.Err))
		b.metrics.RecordTransportError(name, "recv")
		return
	}

	switch ev.Index {
	case slotDirect:
		b.relayDirect(ctx, ev.Msg)
	case slotClient:
		b.forward(ctx, ev.Msg, SocketClient, SocketWorker, b.worker, RouteClientToWorker)
	case slotWorker:
		b.forward(ctx, ev.Msg, SocketWorker, SocketClient, b.client, RouteWorkerToClient)
	default:
		b.logger.Error("event from unknown poll slot", slog.Int("slot", ev.Index))
	}
}

// relayDirect swaps sender and recipient so the ROUTER delivers the
// payload to the recipient. Malformed messages are dropped.
func (b *BrokerPlane) relayDirect(ctx context.Context, msg zmq4.Msg) {
	reversed, ok := ReverseEnvelope(msg.Frames)
	if !ok {
		b.logger.Warn("unexpected message shape, dropping",
			logging.Socket(SocketDirect),
			slog.Int(logging.KeyFrames, len(msg.Frames)),
			slog.String(logging.KeyMessage, summary.FormatMessage(msg.Frames)))
		b.metrics.RecordDrop()
		return
	}

	if b.logger.Enabled(ctx, slog.LevelDebug) {
		b.logger.Debug("direct relay",
			slog.String("from", summary.FormatFrame(msg.Frames[0])),
			slog.String("to", summary.FormatFrame(msg.Frames[1])),
			slog.String(logging.KeyMessage, summary.FormatFrame(msg.Frames[2])))
	}

	if err := b.direct.SendMulti(zmq4.NewMsgFrom(reversed...)); err != nil {
		b.logger.Error("send failed", logging.Socket(SocketDirect), logging.Err(err))
		b.metrics.RecordTransportError(SocketDirect, "send")
		return
	}
	b.metrics.RecordForward(RouteDirect)
}

// forward passes msg to dst unchanged, identity frames included.
func (b *BrokerPlane) forward(ctx context.Context, msg zmq4.Msg, from, to string, dst zmq4.Socket, route string) {
	if b.logger.Enabled(ctx, slog.LevelDebug) {
		b.logger.Debug("forwarding",
			slog.String("from", from),
			slog.String("to", to),
			slog.Int(logging.KeyFrames, len(msg.Frames)),
			slog.String(logging.KeyMessage, summary.FormatMessage(msg.Frames)))
	}

	if err := dst.SendMulti(zmq4.NewMsgFrom(msg.Frames...)); err != nil {
		b.logger.Error("send failed", logging.Socket(to), logging.Err(err))
		b.metrics.RecordTransportError(to, "send")
		return
	}
	b.metrics.RecordForward(route)
}

func socketName(slot int) string {
	switch slot {
	case slotDirect:
		return SocketDirect
	case slotClient:
		return SocketClient
	case slotWorker:
		return SocketWorker
	}
	return "unknown"
}
