package grpcserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/util/panics"
	"google.golang.org/grpc"
)

// IntercomServer serves intercom queries over gRPC
type IntercomServer struct {
	listeningAddresses []string
	server             *grpc.Server
	requestHandler     RequestHandler

	listenersLock sync.Mutex
	listeners     []net.Listener
}

// NewIntercomServer creates a gRPC server listening on listeningAddresses
func NewIntercomServer(listeningAddresses []string, maxMessageSize int) *IntercomServer {
	log.Debugf("Created new intercom GRPC server with maxMessageSize %d", maxMessageSize)
	s := &IntercomServer{
		server: grpc.NewServer(
			grpc.MaxRecvMsgSize(maxMessageSize),
			grpc.MaxSendMsgSize(maxMessageSize),
			grpc.ForceServerCodec(rawCodec{})),
		listeningAddresses: listeningAddresses,
	}
	s.server.RegisterService(&intercomServiceDesc, s)
	return s
}

// SetRequestHandler sets the function answering received queries
func (s *IntercomServer) SetRequestHandler(requestHandler RequestHandler) {
	s.requestHandler = requestHandler
}

// Start begins listening on all the listening addresses
func (s *IntercomServer) Start() error {
	if s.requestHandler == nil {
		return errors.New("requestHandler is nil")
	}

	for _, listenAddress := range s.listeningAddresses {
		err := s.listenOn(listenAddress)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *IntercomServer) listenOn(listenAddr string) error {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return errors.Wrapf(err, "error listening on %s", listenAddr)
	}
	s.listenersLock.Lock()
	s.listeners = append(s.listeners, listener)
	s.listenersLock.Unlock()

	spawn(fmt.Sprintf("IntercomServer.listenOn-Serve-%s", listenAddr), func() {
		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			panics.Exit(log, fmt.Sprintf("error serving on %s: %+v", listenAddr, err))
		}
	})

	log.Infof("Intercom server listening on %s", listener.Addr())
	return nil
}

// Addresses returns the addresses the server actually listens on
func (s *IntercomServer) Addresses() []string {
	s.listenersLock.Lock()
	defer s.listenersLock.Unlock()

	addresses := make([]string, 0, len(s.listeners))
	for _, listener := range s.listeners {
		addresses = append(addresses, listener.Addr().String())
	}
	return addresses
}

// Stop stops the server, waiting a short while for running queries
func (s *IntercomServer) Stop() error {
	const stopTimeout = 2 * time.Second

	stopChan := make(chan interface{})
	spawn("IntercomServer.Stop-GracefulStop", func() {
		s.server.GracefulStop()
		close(stopChan)
	})

	select {
	case <-stopChan:
	case <-time.After(stopTimeout):
		log.Warnf("Could not gracefully stop the intercom server: timed out after %s", stopTimeout)
		s.server.Stop()
	}
	return nil
}

func (s *IntercomServer) query(ctx context.Context, request []byte) ([]byte, error) {
	return s.requestHandler(ctx, request)
}
