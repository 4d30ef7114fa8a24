package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pointdag/pointdagd/app/protocol"
	"github.com/pointdag/pointdagd/app/protocol/flowcontext"
	"github.com/pointdag/pointdagd/domain"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/infrastructure/config"
	infrastructuredatabase "github.com/pointdag/pointdagd/infrastructure/db/database"
	"github.com/pointdag/pointdagd/infrastructure/metrics"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter"
	"github.com/pointdag/pointdagd/infrastructure/os/signal"
	"github.com/pointdag/pointdagd/util/locks"
	"github.com/pointdag/pointdagd/util/panics"
)

const (
	committedAnchorsBufferSize = 100
	protocolShutdownTimeout    = 10 * time.Second
)

// ComponentManager is a wrapper for all the pointdagd services
type ComponentManager struct {
	cfg             *config.Config
	domain          domain.Domain
	protocolManager *protocol.Manager
	netAdapter      netadapter.NetAdapter
	metrics         *metrics.Metrics

	committedAnchors chan *externalapi.CommittedAnchor

	started, shutdown int32
}

// Start launches all the pointdagd services.
func (a *ComponentManager) Start() {
	// Already started?
	if atomic.AddInt32(&a.started, 1) != 1 {
		return
	}

	log.Tracef("Starting pointdagd")

	if a.cfg.MetricsListen != "" {
		err := a.metrics.Start(a.cfg.MetricsListen)
		if err != nil {
			panics.Exit(log, fmt.Sprintf("Error starting the metrics server: %+v", err))
		}
		log.Infof("Metrics are served on %s", a.metrics.Address())
	}

	err := a.netAdapter.Start()
	if err != nil {
		panics.Exit(log, fmt.Sprintf("Error starting the net adapter: %+v", err))
	}

	a.protocolManager.Start()
	spawn("ComponentManager.watchFlows", a.watchFlows)
}

// watchFlows requests a shutdown once a protocol flow stopped, since the
// node cannot make progress without it.
func (a *ComponentManager) watchFlows() {
	err, ok := <-a.protocolManager.ErrChan()
	if !ok {
		return
	}
	log.Criticalf("Shutting down: %s", err)
	signal.ShutdownRequestChannel <- struct{}{}
}

// Stop gracefully shuts down all the pointdagd services.
func (a *ComponentManager) Stop() {
	// Make sure this only happens once.
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Infof("Pointdagd is already in the process of shutting down")
		return
	}

	log.Warnf("Pointdagd shutting down")

	select {
	case <-locks.ReceiveFromChanWhenDone(a.protocolManager.Close):
	case <-time.After(protocolShutdownTimeout):
		log.Warnf("The protocol flows did not stop within %s", protocolShutdownTimeout)
	}

	err := a.netAdapter.Stop()
	if err != nil {
		log.Errorf("Error stopping the net adapter: %+v", err)
	}

	if a.cfg.MetricsListen != "" {
		err = a.metrics.Stop()
		if err != nil {
			log.Errorf("Error stopping the metrics server: %+v", err)
		}
	}
}

// NewComponentManager returns a new ComponentManager instance.
// Use Start() to begin all services within this ComponentManager
func NewComponentManager(cfg *config.Config, db infrastructuredatabase.Database) (*ComponentManager, error) {
	domain, err := domain.New(cfg.Consensus, db, cfg.KeyPair, cfg.InputBufferSize, cfg.PayloadBatchBytes)
	if err != nil {
		return nil, err
	}

	netAdapter, err := netadapter.NewNetAdapter(&netadapter.Config{
		LocalPeer:       cfg.KeyPair.PeerID(),
		ListenAddresses: cfg.Listeners,
		PeerAddresses:   cfg.PeerAddresses,
		Proxy:           cfg.Proxy,
		ProxyUser:       cfg.ProxyUser,
		ProxyPassword:   cfg.ProxyPass,
	})
	if err != nil {
		return nil, err
	}

	metricsInstance, err := metrics.New()
	if err != nil {
		return nil, err
	}

	protocolManager, err := protocol.NewManager(flowConfig(cfg), domain, netAdapter, metricsInstance)
	if err != nil {
		return nil, err
	}

	componentManager := &ComponentManager{
		cfg:              cfg,
		domain:           domain,
		protocolManager:  protocolManager,
		netAdapter:       netAdapter,
		metrics:          metricsInstance,
		committedAnchors: make(chan *externalapi.CommittedAnchor, committedAnchorsBufferSize),
	}
	protocolManager.SetOnAnchorCommittedHandler(componentManager.publishCommittedAnchor)
	return componentManager, nil
}

func flowConfig(cfg *config.Config) *flowcontext.Config {
	flowCfg := flowcontext.DefaultConfig()
	flowCfg.RetentionRounds = cfg.Consensus.RetentionRounds
	flowCfg.MaxFutureRounds = cfg.Consensus.MaxFutureRounds
	flowCfg.RoundTimeout = cfg.RoundTimeout
	flowCfg.PayloadBatchBytes = cfg.PayloadBatchBytes
	return flowCfg
}

// publishCommittedAnchor passes anchor to the consumer of
// CommittedAnchors. While the consumer lags behind, it blocks the round
// driver until the anchor is taken or the node shuts down.
func (a *ComponentManager) publishCommittedAnchor(anchor *externalapi.CommittedAnchor) {
	sendCommittedAnchor(a.protocolManager.Context().ShutdownContext(), a.committedAnchors, anchor)
}

func sendCommittedAnchor(ctx context.Context, committedAnchors chan<- *externalapi.CommittedAnchor,
	anchor *externalapi.CommittedAnchor) bool {

	select {
	case committedAnchors <- anchor:
		return true
	case <-ctx.Done():
		log.Debugf("Not publishing the committed anchor %s, shutting down", anchor.Anchor.ID())
		return false
	}
}

// CommittedAnchors returns the channel committed anchors are published on,
// in commit order. Commits stall until it is read from.
func (a *ComponentManager) CommittedAnchors() <-chan *externalapi.CommittedAnchor {
	return a.committedAnchors
}

// SubmitPayload adds a payload to the input buffer. It is included in a
// later local point.
func (a *ComponentManager) SubmitPayload(payload []byte) error {
	return a.domain.InputBuffer().Push(payload)
}
