package main

import (
	"context"

	"github.com/go-zeromq/zmq4"
	"github.com/spf13/cobra"
)

func newRequestCommand() *cobra.Command {
	var (
		endpoint string
		identity string
		payload  string
	)

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Act as a client: send a request through the client-facing ROUTER",
		Long: `Connect a DEALER to the broker's client-facing socket and send an
empty delimiter frame followed by the payload, REQ style. The broker passes
it to whatever worker is connected; the reply, if any, is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd.Context(), endpointOr(endpoint, 5559), identity, payload)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Client-facing endpoint (default tcp://<host>:5559)")
	cmd.Flags().StringVar(&identity, "identity", defaultIdentity("probe-client"), "Routing identity")
	cmd.Flags().StringVar(&payload, "payload", `{"type":"ping"}`, "Request body")

	return cmd
}

func runRequest(ctx context.Context, endpoint, identity, payload string) error {
	sck, err := dialDealer(ctx, endpoint, identity)
	if err != nil {
		return err
	}
	defer sck.Close()

	frames := [][]byte{{}, []byte(payload)}
	if err := sck.SendMulti(zmq4.NewMsgFrom(frames...)); err != nil {
		return err
	}
	out.Sent(identity, endpoint, frames)

	return awaitReply(ctx, sck, identity)
}
