// Package relay implements the two message-forwarding planes.
//
// The proxy plane joins an XSUB socket (publishers connect) to an XPUB
// socket (subscribers connect) and forwards in both directions, so
// subscriptions travel upstream and publications downstream.
//
// The broker plane owns three sockets and services them from one loop:
//
//	direct ROUTER   clients address each other by identity
//	client ROUTER   requests are forwarded verbatim to the worker DEALER
//	worker DEALER   replies are forwarded verbatim back to the client ROUTER
//
// Both planes run until their context is cancelled or the transport fails;
// restarting them is left to the caller.
package relay
