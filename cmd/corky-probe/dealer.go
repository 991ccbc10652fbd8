package main

import (
	"context"
	"errors"

	"github.com/go-zeromq/zmq4"
	"github.com/spf13/cobra"
)

func newDealerCommand() *cobra.Command {
	var (
		endpoint string
		identity string
		payload  string
	)

	cmd := &cobra.Command{
		Use:   "dealer",
		Short: "Act as a worker: send one message to the worker-facing DEALER",
		Long: `Connect a DEALER to the broker's worker-facing socket, send one message
and wait for anything coming back. Use it to check that the worker side of
the broker is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDealer(cmd.Context(), endpointOr(endpoint, 5560), identity, payload)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Worker-facing endpoint (default tcp://<host>:5560)")
	cmd.Flags().StringVar(&identity, "identity", defaultIdentity("probe-dealer"), "Routing identity")
	cmd.Flags().StringVar(&payload, "payload", "hello from corky-probe dealer", "Message body")

	return cmd
}

func runDealer(ctx context.Context, endpoint, identity, payload string) error {
	sck, err := dialDealer(ctx, endpoint, identity)
	if err != nil {
		return err
	}
	defer sck.Close()

	frames := [][]byte{[]byte(payload)}
	if err := sck.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return err
	}
	out.Sent(identity, endpoint, frames)

	return awaitReply(ctx, sck, identity)
}

// awaitReply prints one reply or notes the timeout.
func awaitReply(ctx context.Context, sck zmq4.Socket, who string) error {
	msg, err := recvWithin(ctx, sck, timeout)
	if errors.Is(err, context.DeadlineExceeded) {
		out.Notice("no reply (timeout after %s)", timeout)
		return nil
	}
	if err != nil {
		return err
	}
	out.Received(who, msg.Frames)
	return nil
}
