package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/VanDung-dev/corky-relay/network"
)

func newPubSubCommand() *cobra.Command {
	var (
		xsub        string
		xpub        string
		subscribers int
		messages    int
		topic       string
		settle      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pubsub",
		Short: "Publish through the proxy and print what subscribers receive",
		Long: `Start a number of SUB sockets on the proxy's XPUB side, subscribed to
everything, then publish a few messages on the XSUB side. Each delivery is
printed with the name of the subscriber that got it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPubSub(cmd.Context(), endpointOr(xsub, 5557), endpointOr(xpub, 5558),
				subscribers, messages, topic, settle)
		},
	}

	cmd.Flags().StringVar(&xsub, "xsub", "", "Publisher-side endpoint (default tcp://<host>:5557)")
	cmd.Flags().StringVar(&xpub, "xpub", "", "Subscriber-side endpoint (default tcp://<host>:5558)")
	cmd.Flags().IntVar(&subscribers, "subscribers", 2, "Number of subscribers")
	cmd.Flags().IntVar(&messages, "messages", 3, "Number of messages to publish")
	cmd.Flags().StringVar(&topic, "topic", "topic test", "Message prefix")
	cmd.Flags().DurationVar(&settle, "settle", 300*time.Millisecond, "Wait for subscriptions to propagate before publishing")

	return cmd
}

func runPubSub(ctx context.Context, xsub, xpub string, subscribers, messages int, topic string, settle time.Duration) error {
	if subscribers < 1 {
		return fmt.Errorf("need at least one subscriber, got %d", subscribers)
	}

	subs := make([]zmq4.Socket, 0, subscribers)
	defer func() {
		network.CloseAll(subs...)
	}()
	for i := 0; i < subscribers; i++ {
		sub, err := network.Connect(ctx, network.Sub, xpub, network.DefaultTuning())
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		if err := sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
	}

	pub, err := network.Connect(ctx, network.Pub, xsub, network.DefaultTuning())
	if err != nil {
		return err
	}
	defer pub.Close()

	time.Sleep(settle)

	var mu sync.Mutex
	var g errgroup.Group
	for i, sub := range subs {
		name := fmt.Sprintf("sub%d", i+1)
		g.Go(func() error {
			for n := 0; n < messages; n++ {
				msg, err := recvWithin(ctx, sub, timeout)
				if errors.Is(err, context.DeadlineExceeded) {
					mu.Lock()
					out.Notice("%s: timed out after %d of %d", name, n, messages)
					mu.Unlock()
					return nil
				}
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				mu.Lock()
				out.Received(name, msg.Frames)
				mu.Unlock()
			}
			return nil
		})
	}

	for i := 0; i < messages; i++ {
		frames := [][]byte{[]byte(fmt.Sprintf("%s %d", topic, i))}
		if err := pub.Send(zmq4.NewMsgFrom(frames...)); err != nil {
			return fmt.Errorf("failed to publish: %w", err)
		}
		mu.Lock()
		out.Sent("pub", xsub, frames)
		mu.Unlock()
		time.Sleep(100 * time.Millisecond)
	}

	return g.Wait()
}
