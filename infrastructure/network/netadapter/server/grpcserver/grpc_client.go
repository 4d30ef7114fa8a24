package grpcserver

import (
	"context"
	"net"

	"github.com/btcsuite/go-socks/socks"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// IntercomClient sends intercom queries to a single peer. The connection
// is established lazily and re-established by gRPC when it breaks.
type IntercomClient struct {
	address    string
	connection *grpc.ClientConn
}

// NewIntercomClient creates a client for the peer listening on address.
// When proxy is not nil, connections are made through it.
func NewIntercomClient(address string, proxy *socks.Proxy, maxMessageSize int) (*IntercomClient, error) {
	dialer := func(ctx context.Context, address string) (net.Conn, error) {
		if proxy != nil {
			return proxy.Dial("tcp", address)
		}
		var netDialer net.Dialer
		return netDialer.DialContext(ctx, "tcp", address)
	}

	connection, err := grpc.NewClient("passthrough:///"+address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSize),
			grpc.MaxCallSendMsgSize(maxMessageSize),
			grpc.ForceCodec(rawCodec{})))
	if err != nil {
		return nil, errors.Wrapf(err, "error creating a client for %s", address)
	}
	log.Debugf("Created intercom client for %s", address)
	return &IntercomClient{address: address, connection: connection}, nil
}

// Query sends request and waits for the response
func (c *IntercomClient) Query(ctx context.Context, request []byte) ([]byte, error) {
	var response []byte
	err := c.connection.Invoke(ctx, queryMethod, request, &response)
	if err != nil {
		return nil, errors.Wrapf(err, "error querying %s", c.address)
	}
	return response, nil
}

// Close closes the underlying connection
func (c *IntercomClient) Close() error {
	return c.connection.Close()
}
