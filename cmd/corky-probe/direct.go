package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-zeromq/zmq4"
	"github.com/spf13/cobra"
)

func newDirectCommand() *cobra.Command {
	var (
		endpoint string
		identity string
		peer     string
		payload  string
		listen   int
	)

	cmd := &cobra.Command{
		Use:   "direct",
		Short: "Send a message to another client through the direct-relay ROUTER",
		Long: `Connect a DEALER with a routing identity to the direct-relay socket and
send [peer, payload]. The relay delivers [sender, payload] to the peer.
Without --peer the probe only listens, which is how to play the receiving
side in a second terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirect(cmd.Context(), endpointOr(endpoint, 6565), identity, peer, payload, listen)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Direct-relay endpoint (default tcp://<host>:6565)")
	cmd.Flags().StringVar(&identity, "identity", defaultIdentity("probe"), "Routing identity of this client")
	cmd.Flags().StringVar(&peer, "peer", "", "Identity of the recipient; empty to only listen")
	cmd.Flags().StringVar(&payload, "payload", "hello", "Message body")
	cmd.Flags().IntVar(&listen, "listen", 1, "Messages to wait for before exiting")

	return cmd
}

func runDirect(ctx context.Context, endpoint, identity, peer, payload string, listen int) error {
	sck, err := dialDealer(ctx, endpoint, identity)
	if err != nil {
		return err
	}
	defer sck.Close()
	out.Notice("connected to %s as %q", endpoint, identity)

	if peer != "" {
		frames := [][]byte{[]byte(peer), []byte(payload)}
		if err := sck.SendMulti(zmq4.NewMsgFrom(frames...)); err != nil {
			return fmt.Errorf("failed to send to %s: %w", peer, err)
		}
		out.Sent(identity, endpoint, frames)
	}

	for i := 0; i < listen; i++ {
		msg, err := recvWithin(ctx, sck, timeout)
		if errors.Is(err, context.DeadlineExceeded) {
			out.Notice("nothing more after %s", timeout)
			return nil
		}
		if err != nil {
			return err
		}
		out.Received(identity, msg.Frames)
	}
	return nil
}
