package flowcontext

import (
	"context"
	"sort"
	"sync"

	"github.com/pointdag/pointdagd/domain"
	"github.com/pointdag/pointdagd/domain/consensus"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/infrastructure/metrics"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter/router"
	"github.com/pointdag/pointdagd/util/roundwindow"
)

// OnAnchorCommittedHandler is a handler function that's triggered
// when an anchor is committed
type OnAnchorCommittedHandler func(anchor *externalapi.CommittedAnchor)

// FlowContext holds state that is relevant to more than one flow or one peer, and allows communication between
// different flows.
type FlowContext struct {
	cfg         *Config
	domain      domain.Domain
	netAdapter  netadapter.NetAdapter
	metrics     *metrics.Metrics
	roundWindow *roundwindow.RoundWindow
	intakeRoute *router.Route

	pointInserted chan struct{}

	futureRounds     map[externalapi.PeerID]externalapi.Round
	futureRoundsLock sync.Mutex

	onAnchorCommittedHandler     OnAnchorCommittedHandler
	onAnchorCommittedHandlerLock sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a new instance of FlowContext.
func New(cfg *Config, domain domain.Domain, netAdapter netadapter.NetAdapter,
	metrics *metrics.Metrics) *FlowContext {

	ctx, cancel := context.WithCancel(context.Background())
	consensusInstance := domain.Consensus()
	return &FlowContext{
		cfg:         cfg,
		domain:      domain,
		netAdapter:  netAdapter,
		metrics:     metrics,
		roundWindow: roundwindow.New(ctx, consensusInstance.Bottom(), StartRound(consensusInstance)),
		intakeRoute: router.NewRouteWithCapacity("intake", cfg.IntakeQueueSize),

		pointInserted: make(chan struct{}, 1),
		futureRounds:  make(map[externalapi.PeerID]externalapi.Round),

		ctx:    ctx,
		cancel: cancel,
	}
}

// StartRound returns the first round the local peer should build a point at.
func StartRound(consensusInstance consensus.Consensus) externalapi.Round {
	top := consensusInstance.Top()
	genesisRound := consensusInstance.Genesis().Round()
	if top <= genesisRound {
		return genesisRound.Next()
	}
	if _, ok := consensusInstance.OwnPoint(top); ok {
		return top.Next()
	}
	return top
}

// Config returns the flow parameters
func (f *FlowContext) Config() *Config {
	return f.cfg
}

// Domain returns the Domain object associated to the flow context.
func (f *FlowContext) Domain() domain.Domain {
	return f.domain
}

// Consensus returns the consensus of the domain
func (f *FlowContext) Consensus() consensus.Consensus {
	return f.domain.Consensus()
}

// NetAdapter returns the net adapter that is associated to the flow context.
func (f *FlowContext) NetAdapter() netadapter.NetAdapter {
	return f.netAdapter
}

// Metrics returns the metrics collectors of the node
func (f *FlowContext) Metrics() *metrics.Metrics {
	return f.metrics
}

// RoundWindow returns the window of retained rounds
func (f *FlowContext) RoundWindow() *roundwindow.RoundWindow {
	return f.roundWindow
}

// IntakeRoute returns the queue of received broadcasts
func (f *FlowContext) IntakeRoute() *router.Route {
	return f.intakeRoute
}

// ShutdownContext returns a context that is cancelled when the flow context is closed
func (f *FlowContext) ShutdownContext() context.Context {
	return f.ctx
}

// ValidateAndInsertPoint validates point, stores it and wakes up the round
// driver when it became valid.
func (f *FlowContext) ValidateAndInsertPoint(point *externalapi.Point) (model.ValidationResult, error) {
	result, err := f.Consensus().ValidateAndInsertPoint(point)
	if err != nil {
		return result, err
	}
	f.metrics.AddValidatedPoint(result.Status.String())
	if result.Status == model.ValidationValid {
		select {
		case f.pointInserted <- struct{}{}:
		default:
		}
	}
	return result, nil
}

// MaxAcceptedRound returns the highest round broadcasts are validated at.
func (f *FlowContext) MaxAcceptedRound() externalapi.Round {
	return f.roundWindow.Current() + f.cfg.MaxFutureRounds
}

// ObserveFutureRound records that the author of point reached the round of
// point, which is beyond the rounds broadcasts are validated at. Only the
// integrity of point is checked and point is not stored.
func (f *FlowContext) ObserveFutureRound(point *externalapi.Point) error {
	err := f.Consensus().ValidateIntegrity(point)
	if err != nil {
		return err
	}

	f.futureRoundsLock.Lock()
	defer f.futureRoundsLock.Unlock()

	if point.Round() <= f.roundWindow.Current() {
		return nil
	}
	if point.Round() > f.futureRounds[point.Author()] {
		f.futureRounds[point.Author()] = point.Round()
	}
	return nil
}

// FutureRound returns the highest round that peers holding more than a
// third of the weight reached, according to the rounds passed to
// ObserveFutureRound. At least one honest peer is at that round. It
// returns zero when no such round is ahead of the current one.
func (f *FlowContext) FutureRound() externalapi.Round {
	f.futureRoundsLock.Lock()
	defer f.futureRoundsLock.Unlock()

	current := f.roundWindow.Current()
	rounds := make([]externalapi.Round, 0, len(f.futureRounds))
	for _, round := range f.futureRounds {
		if round > current {
			rounds = append(rounds, round)
		}
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i] > rounds[j] })

	schedule := f.Consensus().Schedule()
	for _, round := range rounds {
		var weight uint64
		for peer, peerRound := range f.futureRounds {
			if peerRound >= round {
				weight += schedule.Weight(peer)
			}
		}
		if schedule.IsBeyondFaulty(weight) {
			return round
		}
	}
	return 0
}

// PointInserted returns a channel that receives a value after points
// became valid.
func (f *FlowContext) PointInserted() <-chan struct{} {
	return f.pointInserted
}

// SetOnAnchorCommittedHandler sets the onAnchorCommitted handler
func (f *FlowContext) SetOnAnchorCommittedHandler(onAnchorCommittedHandler OnAnchorCommittedHandler) {
	f.onAnchorCommittedHandlerLock.Lock()
	defer f.onAnchorCommittedHandlerLock.Unlock()

	f.onAnchorCommittedHandler = onAnchorCommittedHandler
}

// OnAnchorCommitted records a committed anchor and passes it to the
// onAnchorCommitted handler
func (f *FlowContext) OnAnchorCommitted(anchor *externalapi.CommittedAnchor) {
	f.metrics.AddCommittedAnchor(anchor)
	log.Infof("Committed anchor %s with %d points, history hash %s",
		anchor.Anchor.ID(), len(anchor.History), anchor.HistoryHash)

	f.onAnchorCommittedHandlerLock.RLock()
	defer f.onAnchorCommittedHandlerLock.RUnlock()
	if f.onAnchorCommittedHandler != nil {
		f.onAnchorCommittedHandler(anchor)
	}
}

// AdvanceRound makes round the current one and evicts the rounds that
// left the window.
func (f *FlowContext) AdvanceRound(round externalapi.Round) {
	bottom := round.SubSaturating(uint32(f.cfg.RetentionRounds))
	genesisRound := f.Consensus().Genesis().Round()
	if bottom < genesisRound {
		bottom = genesisRound
	}
	f.roundWindow.Advance(bottom, round)
	f.metrics.SetCurrentRound(round)

	f.futureRoundsLock.Lock()
	for peer, peerRound := range f.futureRounds {
		if peerRound <= round {
			delete(f.futureRounds, peer)
		}
	}
	f.futureRoundsLock.Unlock()

	evicted := f.Consensus().EvictBelow(bottom)
	if len(evicted) > 0 {
		log.Debugf("Evicted %d points below round %d", len(evicted), bottom)
	}
}

// Close cancels every flow and round context
func (f *FlowContext) Close() {
	f.cancel()
	f.roundWindow.Close()
	f.intakeRoute.Close()
}
