package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-zeromq/zmq4"
)

// Common errors for network operations
var (
	ErrBind        = errors.New("failed to bind socket")
	ErrInterrupted = errors.New("wait interrupted")
	ErrPollFailed  = errors.New("poll failed")
	ErrNoSockets   = errors.New("poll set is empty")
)

// Kind selects the ZeroMQ socket pattern to create.
type Kind int

const (
	XSub Kind = iota
	XPub
	Router
	Dealer
	Sub
	Pub
)

func (k Kind) String() string {
	switch k {
	case XSub:
		return "XSUB"
	case XPub:
		return "XPUB"
	case Router:
		return "ROUTER"
	case Dealer:
		return "DEALER"
	case Sub:
		return "SUB"
	case Pub:
		return "PUB"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Tuning is applied uniformly to every socket before it binds or dials.
type Tuning struct {
	// HighWaterMark is the queue depth limit; 0 keeps the library default.
	HighWaterMark int

	// SendTimeout bounds a blocking send, including flushing on close.
	SendTimeout time.Duration

	// Logger receives the socket library's own diagnostics.
	Logger *log.Logger
}

// DefaultTuning returns the tuning used when nothing is configured.
func DefaultTuning() Tuning {
	return Tuning{
		HighWaterMark: 10_000,
		SendTimeout:   time.Second,
	}
}

// Options returns the construction options for t.
func (t Tuning) Options() []zmq4.Option {
	var opts []zmq4.Option
	if t.SendTimeout > 0 {
		opts = append(opts, zmq4.WithTimeout(t.SendTimeout))
	}
	if t.Logger != nil {
		opts = append(opts, zmq4.WithLogger(t.Logger))
	}
	return opts
}

// Apply sets runtime options on an existing socket.
func (t Tuning) Apply(sck zmq4.Socket) error {
	if t.HighWaterMark > 0 {
		if err := sck.SetOption(zmq4.OptionHWM, t.HighWaterMark); err != nil {
			return fmt.Errorf("failed to set high water mark on %s: %w", sck.Type(), err)
		}
	}
	return nil
}

// NewSocket creates a tuned socket of the given kind. The socket shuts down
// when ctx is cancelled.
func NewSocket(ctx context.Context, kind Kind, tuning Tuning, extra ...zmq4.Option) zmq4.Socket {
	opts := append(tuning.Options(), extra...)

	var sck zmq4.Socket
	switch kind {
	case XSub:
		sck = zmq4.NewXSub(ctx, opts...)
	case XPub:
		sck = zmq4.NewXPub(ctx, opts...)
	case Router:
		sck = zmq4.NewRouter(ctx, opts...)
	case Dealer:
		sck = zmq4.NewDealer(ctx, opts...)
	case Sub:
		sck = zmq4.NewSub(ctx, opts...)
	case Pub:
		sck = zmq4.NewPub(ctx, opts...)
	default:
		panic(fmt.Sprintf("network: unknown socket kind %d", int(kind)))
	}

	if err := tuning.Apply(sck); err != nil && tuning.Logger != nil {
		tuning.Logger.Printf("tuning not applied: %v", err)
	}
	return sck
}

// Bind creates a tuned socket and binds it to endpoint. A bind failure
// closes the socket and wraps ErrBind.
func Bind(ctx context.Context, kind Kind, endpoint string, tuning Tuning, extra ...zmq4.Option) (zmq4.Socket, error) {
	sck := NewSocket(ctx, kind, tuning, extra...)
	if err := sck.Listen(endpoint); err != nil {
		_ = sck.Close()
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrBind, kind, endpoint, err)
	}
	return sck, nil
}

// Connect creates a tuned socket and dials endpoint.
func Connect(ctx context.Context, kind Kind, endpoint string, tuning Tuning, extra ...zmq4.Option) (zmq4.Socket, error) {
	sck := NewSocket(ctx, kind, tuning, extra...)
	if err := sck.Dial(endpoint); err != nil {
		_ = sck.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	return sck, nil
}

// WithIdentity sets the routing identity a socket announces to its peers.
func WithIdentity(id string) zmq4.Option {
	return zmq4.WithID(zmq4.SocketIdentity(id))
}

// CloseAll closes sockets, ignoring errors; used on teardown.
func CloseAll(sockets ...zmq4.Socket) {
	for _, sck := range sockets {
		if sck == nil {
			continue
		}
		_ = sck.Close()
	}
}
