package protocol

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/app/protocol/flowcontext"
	"github.com/pointdag/pointdagd/app/protocol/flows/broadcaster"
	"github.com/pointdag/pointdagd/app/protocol/flows/downloader"
	"github.com/pointdag/pointdagd/app/protocol/flows/intercom"
	"github.com/pointdag/pointdagd/app/protocol/flows/rounddriver"
	"github.com/pointdag/pointdagd/domain"
	"github.com/pointdag/pointdagd/infrastructure/metrics"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter"
)

// Manager manages the intercom protocol and the round driver
type Manager struct {
	context     *flowcontext.FlowContext
	downloader  *downloader.Downloader
	broadcaster *broadcaster.Broadcaster
	responder   *intercom.Responder

	flowsWaitGroup sync.WaitGroup
	errChan        chan error
	isStarted      uint32
	isClosed       uint32
}

// NewManager creates a new instance of the protocol manager
func NewManager(cfg *flowcontext.Config, domain domain.Domain, netAdapter netadapter.NetAdapter,
	metrics *metrics.Metrics) (*Manager, error) {

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	context := flowcontext.New(cfg, domain, netAdapter, metrics)
	manager := &Manager{
		context:     context,
		downloader:  downloader.New(context),
		broadcaster: broadcaster.New(context),
		responder:   intercom.NewResponder(context),
		errChan:     make(chan error, 2),
	}
	netAdapter.SetHandler(manager.responder.HandleRequest)
	return manager, nil
}

// Start spawns the flows validating received broadcasts and building the
// local points. The net adapter should be started separately.
func (m *Manager) Start() {
	if !atomic.CompareAndSwapUint32(&m.isStarted, 0, 1) {
		panic(errors.New("The protocol manager was already started"))
	}

	m.runFlow("HandleBroadcasts", func() error {
		return intercom.HandleBroadcasts(m.context, m.downloader)
	})
	m.runFlow("DriveRounds", func() error {
		return rounddriver.DriveRounds(m.context, m.broadcaster)
	})
}

func (m *Manager) runFlow(name string, executeFunc func() error) {
	m.flowsWaitGroup.Add(1)
	spawn(fmt.Sprintf("flow-%s", name), func() {
		defer m.flowsWaitGroup.Done()

		err := executeFunc()
		if err != nil {
			log.Criticalf("Flow %s stopped: %+v", name, err)
			m.errChan <- errors.Wrapf(err, "flow %s", name)
		}
	})
}

// ErrChan returns a channel receiving the errors that stopped a flow.
// The node cannot make progress after one is received.
func (m *Manager) ErrChan() <-chan error {
	return m.errChan
}

// Close closes the protocol manager and waits until all flows finish.
func (m *Manager) Close() {
	if !atomic.CompareAndSwapUint32(&m.isClosed, 0, 1) {
		panic(errors.New("The protocol manager was already closed"))
	}

	m.context.Close()
	m.flowsWaitGroup.Wait()
}

// SetOnAnchorCommittedHandler sets the onAnchorCommitted handler
func (m *Manager) SetOnAnchorCommittedHandler(onAnchorCommittedHandler flowcontext.OnAnchorCommittedHandler) {
	m.context.SetOnAnchorCommittedHandler(onAnchorCommittedHandler)
}

// Context returns the manager's flow context
func (m *Manager) Context() *flowcontext.FlowContext {
	return m.context
}
