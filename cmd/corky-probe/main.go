package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/corky-relay/network"
)

var (
	// Global flags
	host    string
	timeout time.Duration
	noColor bool

	out = newPrinter(os.Stdout)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "corky-probe",
		Short: "Manual test client for corky-relay",
		Long: `corky-probe connects to a running corky-relay and exercises one of its
sockets: the worker DEALER, the client ROUTER, the direct-relay ROUTER or
the XSUB/XPUB proxy. Everything received is printed in summarized form.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				out.plain()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", "127.0.0.1", "Relay host")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Second, "How long to wait for replies")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")

	rootCmd.AddCommand(newDealerCommand())
	rootCmd.AddCommand(newRequestCommand())
	rootCmd.AddCommand(newDirectCommand())
	rootCmd.AddCommand(newPubSubCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// endpointOr returns ep, or the relay host with the given port when ep is empty.
func endpointOr(ep string, port int) string {
	if ep != "" {
		return ep
	}
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

// defaultIdentity returns a unique routing identity for this run.
func defaultIdentity(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// recvWithin waits up to d for one message. A receive still pending after
// the deadline is abandoned; the probe exits soon after.
func recvWithin(ctx context.Context, sck zmq4.Socket, d time.Duration) (zmq4.Msg, error) {
	type result struct {
		msg zmq4.Msg
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := sck.Recv()
		ch <- result{msg, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return zmq4.Msg{}, ctx.Err()
	}
}

// dialDealer connects a DEALER, optionally announcing identity.
func dialDealer(ctx context.Context, endpoint, identity string) (zmq4.Socket, error) {
	var extra []zmq4.Option
	if identity != "" {
		extra = append(extra, network.WithIdentity(identity))
	}
	return network.Connect(ctx, network.Dealer, endpoint, network.DefaultTuning(), extra...)
}
