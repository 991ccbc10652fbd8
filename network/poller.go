package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
)

// maxConsecutiveRecvErrors is how many receive failures in a row a socket
// may produce before the poll set gives up on it.
const maxConsecutiveRecvErrors = 16

// Event is one readiness notification: a received message or a failed
// receive on the socket at Index.
type Event struct {
	Index int
	Msg   zmq4.Msg
	Err   error
}

// PollSet waits on a fixed group of sockets at once. Each socket is drained
// by its own receive pump, so per-socket message order is preserved; there
// is no ordering between sockets.
//
// Pumps receive ahead of Poll: up to len(sockets) messages can sit in the
// event buffer and each pump can hold one more while it waits for room.
// Messages still held when the set is closed have already been taken off
// the transport and are discarded.
type PollSet struct {
	sockets []zmq4.Socket
	events  chan Event
	failed  chan error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPollSet starts receiving on every socket. The pumps stop when ctx is
// cancelled or the sockets are closed.
func NewPollSet(ctx context.Context, sockets ...zmq4.Socket) (*PollSet, error) {
	if len(sockets) == 0 {
		return nil, ErrNoSockets
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &PollSet{
		sockets: sockets,
		events:  make(chan Event, len(sockets)),
		failed:  make(chan error, len(sockets)),
		cancel:  cancel,
	}

	for i, sck := range sockets {
		p.wg.Add(1)
		go p.pump(ctx, i, sck)
	}
	return p, nil
}

// Len returns the number of sockets in the set.
func (p *PollSet) Len() int { return len(p.sockets) }

// Poll waits up to timeout for at least one socket to become readable and
// returns what is ready, at most one event per socket slot. A timeout
// yields no events and no error. Cancellation of ctx returns
// ErrInterrupted; a socket that keeps failing returns ErrPollFailed.
func (p *PollSet) Poll(ctx context.Context, timeout time.Duration) ([]Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var first Event
	select {
	case <-ctx.Done():
		return nil, ErrInterrupted
	case err := <-p.failed:
		return nil, err
	case first = <-p.events:
	case <-timer.C:
		return nil, nil
	}

	ready := make([]Event, 1, len(p.sockets))
	ready[0] = first
	for len(ready) < len(p.sockets) {
		select {
		case ev := <-p.events:
			ready = append(ready, ev)
		default:
			return ready, nil
		}
	}
	return ready, nil
}

// Close stops the receive pumps and waits for them. Sockets must already be
// closed (or their context cancelled) so pending receives return.
func (p *PollSet) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *PollSet) pump(ctx context.Context, idx int, sck zmq4.Socket) {
	defer p.wg.Done()

	consecutive := 0
	for {
		msg, err := sck.Recv()
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			consecutive++
			if consecutive >= maxConsecutiveRecvErrors {
				p.failed <- fmt.Errorf("%w: %s socket %d: %w", ErrPollFailed, sck.Type(), idx, err)
				return
			}
		} else {
			consecutive = 0
		}

		select {
		case p.events <- Event{Index: idx, Msg: msg, Err: err}:
		case <-ctx.Done():
			return
		}
	}
}
