package intercom

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/app/appmessage"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter/router"
	"github.com/pointdag/pointdagd/util/roundwindow"
	"golang.org/x/sync/semaphore"
)

// maxConcurrentInsertions bounds the broadcast points validated at once.
const maxConcurrentInsertions = 64

// PointInserter validates a point and downloads its dependencies.
type PointInserter interface {
	Insert(ctx context.Context, point *externalapi.Point, hint externalapi.PeerID) (model.ValidationResult, error)
}

// HandleBroadcastsContext is the interface for the context needed for the HandleBroadcasts flow.
type HandleBroadcastsContext interface {
	RoundWindow() *roundwindow.RoundWindow
	MaxAcceptedRound() externalapi.Round
	ObserveFutureRound(point *externalapi.Point) error
	IntakeRoute() *router.Route
	ShutdownContext() context.Context
}

type handleBroadcastsFlow struct {
	HandleBroadcastsContext
	inserter  PointInserter
	semaphore *semaphore.Weighted
}

// HandleBroadcasts validates the points queued by the Responder, each
// within the context of its round. Invalid points are dropped, and so are
// points too far ahead of the current round once their round is recorded
// for catching up. It returns once the intake route is closed or the
// context is shut down.
func HandleBroadcasts(context HandleBroadcastsContext, inserter PointInserter) error {
	flow := &handleBroadcastsFlow{
		HandleBroadcastsContext: context,
		inserter:                inserter,
		semaphore:               semaphore.NewWeighted(maxConcurrentInsertions),
	}
	return flow.start()
}

func (flow *handleBroadcastsFlow) start() error {
	ctx := flow.ShutdownContext()
	for {
		envelope, err := flow.IntakeRoute().Dequeue(ctx)
		if err != nil {
			if errors.Is(err, router.ErrRouteClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		broadcast, ok := envelope.Message.(*appmessage.MsgBroadcastQuery)
		if !ok {
			return errors.Errorf("unexpected message %s in the intake route", envelope.Message.Command())
		}

		point := broadcast.Point
		if point.Round() > flow.MaxAcceptedRound() {
			err = flow.semaphore.Acquire(ctx, 1)
			if err != nil {
				return nil
			}
			spawn("handleBroadcastsFlow-observe", func() {
				defer flow.semaphore.Release(1)
				flow.observe(point)
			})
			continue
		}
		roundCtx, ok := flow.RoundWindow().Context(point.Round())
		if !ok {
			log.Debugf("Dropping the broadcast of %s, its round left the window", point.ID())
			continue
		}
		err = flow.semaphore.Acquire(ctx, 1)
		if err != nil {
			return nil
		}
		sender := envelope.Sender
		spawn("handleBroadcastsFlow-insert", func() {
			defer flow.semaphore.Release(1)
			flow.insert(roundCtx, point, sender)
		})
	}
}

func (flow *handleBroadcastsFlow) observe(point *externalapi.Point) {
	err := flow.ObserveFutureRound(point)
	if err != nil {
		log.Debugf("Dropping the broadcast %s: %s", point.ID(), err)
		return
	}
	log.Tracef("Dropping the broadcast %s, round %d is beyond round %d",
		point.ID(), point.Round(), flow.MaxAcceptedRound())
}

func (flow *handleBroadcastsFlow) insert(ctx context.Context, point *externalapi.Point, sender externalapi.PeerID) {
	result, err := flow.inserter.Insert(ctx, point, sender)
	if err != nil {
		if ctx.Err() == nil {
			log.Debugf("Could not insert the broadcast %s: %s", point.ID(), err)
		}
		return
	}
	switch result.Status {
	case model.ValidationInvalid:
		log.Debugf("Dropping the invalid broadcast %s: %s", point.ID(), result.Err)
	case model.ValidationIncomplete:
		log.Debugf("The broadcast %s is still incomplete: %s", point.ID(), result)
	default:
		log.Tracef("Inserted the broadcast %s", point.ID())
	}
}
