package netadapter

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/go-socks/socks"
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/app/appmessage"
	"github.com/pointdag/pointdagd/app/protocol/protocolerrors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter/server/grpcserver"
)

// ErrUnknownPeer is returned when querying a peer without a known address.
var ErrUnknownPeer = errors.New("unknown peer")

// Handler answers a request received from sender. It must return a
// response of the kind matching the request. The sender is declared by the
// remote peer, ctx carries the transport address the request came from.
type Handler func(ctx context.Context, sender externalapi.PeerID, request appmessage.Request) appmessage.Response

// NetAdapter is an abstraction layer over networking. Requests are sent to
// peers by their id and answered by the handler of the receiving adapter.
type NetAdapter interface {
	Query(ctx context.Context, peer externalapi.PeerID, request appmessage.Request) (appmessage.Response, error)
	SetHandler(handler Handler)
	Start() error
	Stop() error
}

// Config holds the parameters of a gRPC NetAdapter
type Config struct {
	LocalPeer       externalapi.PeerID
	ListenAddresses []string
	PeerAddresses   map[externalapi.PeerID]string
	// Proxy is the address of a SOCKS5 proxy outgoing connections are
	// made through. Empty for direct connections.
	Proxy         string
	ProxyUser     string
	ProxyPassword string
}

type netAdapter struct {
	cfg     *Config
	proxy   *socks.Proxy
	server  *grpcserver.IntercomServer
	handler Handler
	stop    uint32

	clients     map[externalapi.PeerID]*grpcserver.IntercomClient
	clientsLock sync.Mutex
}

// NewNetAdapter creates a NetAdapter communicating over gRPC
func NewNetAdapter(cfg *Config) (NetAdapter, error) {
	adapter := &netAdapter{
		cfg:     cfg,
		server:  grpcserver.NewIntercomServer(cfg.ListenAddresses, appmessage.MaxMessagePayload),
		clients: make(map[externalapi.PeerID]*grpcserver.IntercomClient),
	}
	if cfg.Proxy != "" {
		adapter.proxy = &socks.Proxy{
			Addr:     cfg.Proxy,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPassword,
		}
	}
	adapter.server.SetRequestHandler(adapter.handleRequest)
	return adapter, nil
}

// SetHandler sets the function answering received requests
func (na *netAdapter) SetHandler(handler Handler) {
	na.handler = handler
}

// Start begins the operation of the NetAdapter
func (na *netAdapter) Start() error {
	if na.handler == nil {
		return errors.New("handler was not set")
	}
	return na.server.Start()
}

// Stop safely closes the NetAdapter
func (na *netAdapter) Stop() error {
	if atomic.AddUint32(&na.stop, 1) != 1 {
		return errors.New("net adapter stopped more than once")
	}
	err := na.server.Stop()
	if err != nil {
		return err
	}

	na.clientsLock.Lock()
	defer na.clientsLock.Unlock()
	for peer, client := range na.clients {
		err := client.Close()
		if err != nil {
			log.Warnf("Error closing the connection to %s: %s", peer, err)
		}
	}
	na.clients = make(map[externalapi.PeerID]*grpcserver.IntercomClient)
	return nil
}

// Query sends request to peer and returns its response
func (na *netAdapter) Query(ctx context.Context, peer externalapi.PeerID,
	request appmessage.Request) (appmessage.Response, error) {

	client, err := na.client(peer)
	if err != nil {
		return nil, err
	}
	encoded, err := appmessage.EncodeEnvelope(appmessage.NewEnvelope(na.cfg.LocalPeer, request))
	if err != nil {
		return nil, err
	}
	encodedResponse, err := client.Query(ctx, encoded)
	if err != nil {
		return nil, err
	}
	return ParseResponse(peer, request, encodedResponse)
}

func (na *netAdapter) client(peer externalapi.PeerID) (*grpcserver.IntercomClient, error) {
	na.clientsLock.Lock()
	defer na.clientsLock.Unlock()

	if client, ok := na.clients[peer]; ok {
		return client, nil
	}
	address, ok := na.cfg.PeerAddresses[peer]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPeer, "no address for %s", peer)
	}
	client, err := grpcserver.NewIntercomClient(address, na.proxy, appmessage.MaxMessagePayload)
	if err != nil {
		return nil, err
	}
	na.clients[peer] = client
	return client, nil
}

func (na *netAdapter) handleRequest(ctx context.Context, encoded []byte) ([]byte, error) {
	sender, request, err := ParseRequest(encoded)
	if err != nil {
		log.Debugf("Dropping a malformed request: %s", err)
		return nil, err
	}
	response := na.handler(withGRPCRemoteAddress(ctx), sender, request)
	return appmessage.EncodeEnvelope(appmessage.NewEnvelope(na.cfg.LocalPeer, response))
}

// ParseRequest decodes a request envelope.
func ParseRequest(encoded []byte) (externalapi.PeerID, appmessage.Request, error) {
	envelope, err := appmessage.DecodeEnvelope(encoded)
	if err != nil {
		return externalapi.PeerID{}, nil, err
	}
	request, ok := envelope.Message.(appmessage.Request)
	if !ok {
		return externalapi.PeerID{}, nil, errors.Errorf("%s is not a request", envelope.Message.Command())
	}
	return envelope.Sender, request, nil
}

// ParseResponse decodes the response of peer to request. Responses that
// are malformed, signed as another peer or of the wrong kind are
// protocol errors.
func ParseResponse(peer externalapi.PeerID, request appmessage.Request,
	encoded []byte) (appmessage.Response, error) {

	envelope, err := appmessage.DecodeEnvelope(encoded)
	if err != nil {
		return nil, protocolerrors.Wrapf(true, err, "malformed response from %s", peer)
	}
	if envelope.Sender != peer {
		return nil, protocolerrors.Errorf(true, "response from %s claims to be from %s", peer, envelope.Sender)
	}
	response, ok := envelope.Message.(appmessage.Response)
	if !ok || !appmessage.IsResponseTo(request, response) {
		return nil, protocolerrors.Errorf(true, "%s answered %s with %s",
			peer, request.Command(), envelope.Message.Command())
	}
	return response, nil
}
