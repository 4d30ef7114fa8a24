package standalone

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/app/appmessage"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter"
)

// ErrPeerUnreachable is returned when the queried peer is not running or
// was disconnected from the network.
var ErrPeerUnreachable = errors.New("peer is unreachable")

// Network connects in-process NetAdapters. Messages are encoded and decoded
// on the way exactly like over gRPC, so tests and simulations exercise the
// same code paths as real nodes.
type Network struct {
	lock        sync.RWMutex
	adapters    map[externalapi.PeerID]*Adapter
	unreachable map[externalapi.PeerID]bool
}

// NewNetwork creates an empty Network
func NewNetwork() *Network {
	return &Network{
		adapters:    make(map[externalapi.PeerID]*Adapter),
		unreachable: make(map[externalapi.PeerID]bool),
	}
}

// NewAdapter creates the NetAdapter of peer, replacing any previous one
func (n *Network) NewAdapter(peer externalapi.PeerID) *Adapter {
	n.lock.Lock()
	defer n.lock.Unlock()

	adapter := &Adapter{network: n, peer: peer}
	n.adapters[peer] = adapter
	return adapter
}

// SetReachable connects peer to the network or disconnects it. A
// disconnected peer can neither send nor receive queries.
func (n *Network) SetReachable(peer externalapi.PeerID, reachable bool) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if reachable {
		delete(n.unreachable, peer)
		return
	}
	n.unreachable[peer] = true
	log.Debugf("Peer %s was disconnected", peer)
}

var _ netadapter.NetAdapter = (*Adapter)(nil)

func (n *Network) route(from, to externalapi.PeerID) (*Adapter, error) {
	n.lock.RLock()
	defer n.lock.RUnlock()

	if n.unreachable[from] || n.unreachable[to] {
		return nil, errors.Wrapf(ErrPeerUnreachable, "%s is disconnected", to)
	}
	adapter, ok := n.adapters[to]
	if !ok || !adapter.isRunning() {
		return nil, errors.Wrapf(ErrPeerUnreachable, "%s is not running", to)
	}
	return adapter, nil
}

// Adapter is a NetAdapter attached to a Network
type Adapter struct {
	network *Network
	peer    externalapi.PeerID

	lock    sync.RWMutex
	handler netadapter.Handler
	running bool
}

// SetHandler sets the function answering received requests
func (a *Adapter) SetHandler(handler netadapter.Handler) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.handler = handler
}

// Start makes the adapter reachable
func (a *Adapter) Start() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.handler == nil {
		return errors.New("handler was not set")
	}
	a.running = true
	return nil
}

// Stop makes the adapter unreachable
func (a *Adapter) Stop() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if !a.running {
		return errors.New("net adapter is not running")
	}
	a.running = false
	return nil
}

func (a *Adapter) isRunning() bool {
	a.lock.RLock()
	defer a.lock.RUnlock()

	return a.running
}

// Query sends request to peer and returns its response
func (a *Adapter) Query(ctx context.Context, peer externalapi.PeerID,
	request appmessage.Request) (appmessage.Response, error) {

	err := ctx.Err()
	if err != nil {
		return nil, err
	}
	target, err := a.network.route(a.peer, peer)
	if err != nil {
		return nil, err
	}
	encoded, err := appmessage.EncodeEnvelope(appmessage.NewEnvelope(a.peer, request))
	if err != nil {
		return nil, err
	}
	encodedResponse, err := target.handle(netadapter.WithRemoteAddress(ctx, a.peer.String()), encoded)
	if err != nil {
		return nil, err
	}
	return netadapter.ParseResponse(peer, request, encodedResponse)
}

func (a *Adapter) handle(ctx context.Context, encoded []byte) ([]byte, error) {
	a.lock.RLock()
	handler := a.handler
	a.lock.RUnlock()

	sender, request, err := netadapter.ParseRequest(encoded)
	if err != nil {
		return nil, err
	}
	response := handler(ctx, sender, request)
	return appmessage.EncodeEnvelope(appmessage.NewEnvelope(a.peer, response))
}
