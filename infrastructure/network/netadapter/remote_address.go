package netadapter

import (
	"context"
	"net"

	"google.golang.org/grpc/peer"
)

type remoteAddressKey struct{}

// WithRemoteAddress returns a copy of ctx carrying the transport address a
// request was received from.
func WithRemoteAddress(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, remoteAddressKey{}, address)
}

// RemoteAddress returns the transport address a request was received
// from. Unlike the sender of a request it is not declared by the remote
// peer itself.
func RemoteAddress(ctx context.Context) (string, bool) {
	address, ok := ctx.Value(remoteAddressKey{}).(string)
	return address, ok
}

// withGRPCRemoteAddress records the host of the gRPC peer of ctx. The port
// is dropped since outgoing connections use ephemeral ports.
func withGRPCRemoteAddress(ctx context.Context) context.Context {
	remote, ok := peer.FromContext(ctx)
	if !ok || remote.Addr == nil {
		return ctx
	}
	address := remote.Addr.String()
	host, _, err := net.SplitHostPort(address)
	if err == nil {
		address = host
	}
	return WithRemoteAddress(ctx, address)
}
