package rounddriver

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/app/protocol/flowcontext"
	"github.com/pointdag/pointdagd/domain"
	"github.com/pointdag/pointdagd/domain/consensus"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/pointbuilder"
	"github.com/pointdag/pointdagd/util/mstime"
	"github.com/pointdag/pointdagd/util/roundwindow"
)

// PointBroadcaster sends a local point to the other peers and collects
// their signatures over it.
type PointBroadcaster interface {
	Broadcast(ctx context.Context, point *externalapi.Point)
}

// RoundDriverContext is the interface for the context needed for the DriveRounds flow.
type RoundDriverContext interface {
	Config() *flowcontext.Config
	Domain() domain.Domain
	Consensus() consensus.Consensus
	RoundWindow() *roundwindow.RoundWindow
	PointInserted() <-chan struct{}
	FutureRound() externalapi.Round
	AdvanceRound(round externalapi.Round)
	OnAnchorCommitted(anchor *externalapi.CommittedAnchor)
	ShutdownContext() context.Context
}

type roundDriverFlow struct {
	RoundDriverContext
	broadcaster PointBroadcaster
}

// DriveRounds builds a local point every round, once the points of the
// previous round reach a quorum or the round timed out. It returns when
// the context is shut down.
func DriveRounds(context RoundDriverContext, broadcaster PointBroadcaster) error {
	flow := &roundDriverFlow{
		RoundDriverContext: context,
		broadcaster:        broadcaster,
	}
	return flow.start()
}

func (flow *roundDriverFlow) start() error {
	ctx := flow.ShutdownContext()
	round := flow.RoundWindow().Current()
	log.Infof("Starting at round %d", round)

	for {
		err := flow.waitForCoverage(ctx, round)
		if err != nil {
			return nil
		}

		if _, ok := flow.Consensus().OwnPoint(round); !ok {
			built, err := flow.buildAndBroadcast(round)
			if err != nil {
				return err
			}
			if !built {
				round = flow.catchUp(round)
				continue
			}
		}

		flow.commit()
		round = flow.nextRound(round)
		flow.AdvanceRound(round)
	}
}

// waitForCoverage waits until the valid points of the round before round
// reach a quorum, or until the round timeout passes.
func (flow *roundDriverFlow) waitForCoverage(ctx context.Context, round externalapi.Round) error {
	timer := time.NewTimer(flow.Config().RoundTimeout)
	defer timer.Stop()

	for {
		if _, isQuorum := flow.Consensus().Coverage(round); isQuorum {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			weight, _ := flow.Consensus().Coverage(round)
			log.Debugf("Round %d timed out with coverage weight %d", round, weight)
			return nil
		case <-flow.PointInserted():
		}
	}
}

// buildAndBroadcast returns false when there is nothing to build round on.
func (flow *roundDriverFlow) buildAndBroadcast(round externalapi.Round) (bool, error) {
	if weight, _ := flow.Consensus().Coverage(round); weight == 0 {
		return false, nil
	}

	inputBuffer := flow.Domain().InputBuffer()
	payload := inputBuffer.Fetch(flow.Config().PayloadBatchBytes)
	now := externalapi.UnixTime(mstime.NowUnixMilli())
	point, err := flow.Consensus().BuildOwnPoint(round, payload, now)
	if err != nil {
		for _, blob := range payload {
			if pushErr := inputBuffer.Push(blob); pushErr != nil {
				log.Warnf("Dropping a payload of %d bytes: %s", len(blob), pushErr)
			}
		}
		if errors.Is(err, pointbuilder.ErrNoDependencies) {
			return false, nil
		}
		return false, errors.Wrapf(err, "could not build the local point of round %d", round)
	}
	log.Debugf("Built %s with %d payload blobs", point.ID(), len(payload))

	roundCtx, ok := flow.RoundWindow().Context(round)
	if !ok {
		return true, nil
	}
	spawn("roundDriverFlow-broadcast", func() {
		flow.broadcaster.Broadcast(roundCtx, point)
	})
	return true, nil
}

// catchUp moves to the highest round the local DAG or enough peers
// reached when the local DAG holds nothing to include at round.
func (flow *roundDriverFlow) catchUp(round externalapi.Round) externalapi.Round {
	top := flow.Consensus().Top()
	if future := flow.FutureRound(); future > top {
		top = future
	}
	if top <= round {
		log.Debugf("Nothing to include at round %d yet", round)
		return round
	}
	log.Infof("Catching up from round %d to round %d", round, top)
	flow.AdvanceRound(top)
	return top
}

func (flow *roundDriverFlow) commit() {
	for _, anchor := range flow.Consensus().Commit() {
		flow.OnAnchorCommitted(anchor)
	}
}

// nextRound skips to the highest round the local peer can already build
// on, if the DAG went ahead of the local peer. It skips to the round enough
// peers reached if they went ahead of the rounds broadcasts are accepted at.
func (flow *roundDriverFlow) nextRound(round externalapi.Round) externalapi.Round {
	next := round.Next()
	top := flow.Consensus().Top()
	if top > next {
		if _, isQuorum := flow.Consensus().Coverage(top); isQuorum {
			log.Debugf("Skipping from round %d to round %d", next, top)
			next = top
		}
	}
	if future := flow.FutureRound(); future > next {
		log.Infof("Peers reached round %d, skipping from round %d", future, next)
		return future
	}
	return next
}
