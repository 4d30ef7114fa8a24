package intercom

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/app/appmessage"
	"github.com/pointdag/pointdagd/app/protocol/flowcontext"
	"github.com/pointdag/pointdagd/domain/consensus"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/infrastructure/metrics"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter/router"
	"github.com/pointdag/pointdagd/util/roundwindow"
	"golang.org/x/time/rate"
)

// ResponderContext is the interface for the context needed by the Responder.
type ResponderContext interface {
	Config() *flowcontext.Config
	Consensus() consensus.Consensus
	RoundWindow() *roundwindow.RoundWindow
	IntakeRoute() *router.Route
	Metrics() *metrics.Metrics
}

// Responder answers the requests of other peers.
type Responder struct {
	ResponderContext

	limitersLock   sync.Mutex
	limiters       *lru.Cache
	unknownLimiter *rate.Limiter
}

// limiterKey identifies a request budget. Senders are declared by the
// remote peer, so a sender reached through different addresses gets a
// budget per address.
type limiterKey struct {
	sender  externalapi.PeerID
	address string
}

// maxLimiters bounds the request budgets kept at once.
const maxLimiters = 1024

// NewResponder returns a new Responder
func NewResponder(context ResponderContext) *Responder {
	limiters, err := lru.New(maxLimiters)
	if err != nil {
		panic(err)
	}
	return &Responder{
		ResponderContext: context,
		limiters:         limiters,
		unknownLimiter:   newLimiter(context.Config()),
	}
}

func newLimiter(cfg *flowcontext.Config) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(cfg.PeerRequestsPerSecond), cfg.PeerRequestBurst)
}

// HandleRequest answers request of sender. Every request is answered,
// tryLater being the answer to whatever cannot be decided yet.
func (r *Responder) HandleRequest(ctx context.Context, sender externalapi.PeerID,
	request appmessage.Request) appmessage.Response {

	address, _ := netadapter.RemoteAddress(ctx)
	key := limiterKey{sender: sender, address: address}
	switch request := request.(type) {
	case *appmessage.MsgBroadcastQuery:
		return r.handleBroadcast(sender, request)
	case *appmessage.MsgPointQuery:
		return r.handlePointQuery(key, request)
	case *appmessage.MsgSignatureQuery:
		return r.handleSignatureQuery(key, request)
	}
	panic(errors.Errorf("unexpected request %s", request.Command()))
}

// handleBroadcast queues the point for validation. The broadcast is
// acknowledged even when the queue is full and the point is dropped.
func (r *Responder) handleBroadcast(sender externalapi.PeerID,
	request *appmessage.MsgBroadcastQuery) appmessage.Response {

	if request.Point.Author() != sender {
		log.Debugf("Ignoring the broadcast of %s by %s", request.Point.ID(), sender)
		return appmessage.NewMsgBroadcastResponse()
	}
	err := r.IntakeRoute().Enqueue(appmessage.NewEnvelope(sender, request))
	switch {
	case errors.Is(err, router.ErrRouteCapacityReached):
		log.Debugf("Dropping the broadcast of %s: %s", request.Point.ID(), err)
		r.Metrics().AddDroppedBroadcast()
	case err != nil:
		log.Debugf("Dropping the broadcast of %s: %s", request.Point.ID(), err)
	}
	return appmessage.NewMsgBroadcastResponse()
}

func (r *Responder) handlePointQuery(key limiterKey,
	request *appmessage.MsgPointQuery) appmessage.Response {

	id := request.ID
	if !r.RoundWindow().Contains(id.Round) {
		return appmessage.NewMsgPointDefinedNone()
	}
	point, state, ok := r.Consensus().GetPoint(id)
	if ok {
		if state == model.StateInvalid {
			return appmessage.NewMsgPointDefinedNone()
		}
		return appmessage.NewMsgPointDefined(point)
	}
	if !r.allow(key) {
		return r.pointTryLater()
	}
	if id.Round < r.RoundWindow().Current() {
		return appmessage.NewMsgPointDefinedNone()
	}
	return r.pointTryLater()
}

func (r *Responder) handleSignatureQuery(key limiterKey,
	request *appmessage.MsgSignatureQuery) appmessage.Response {

	sender := key.sender
	round := request.Round
	if !r.RoundWindow().Contains(round) {
		return appmessage.NewMsgSignatureRejected(externalapi.RejectionTooOldRound)
	}
	if !r.Consensus().Schedule().Contains(sender) {
		return appmessage.NewMsgSignatureRejected(externalapi.RejectionUnknownPeer)
	}
	if !r.allow(key) {
		return r.signatureTryLater()
	}
	current := r.RoundWindow().Current()
	if round > current.Next() {
		return r.signatureTryLater()
	}

	signature, outcome, err := r.Consensus().SignFor(round, sender)
	if err != nil {
		log.Errorf("Could not sign the point of %s at round %d: %+v", sender, round, err)
		return r.signatureTryLater()
	}
	switch outcome {
	case model.SignSigned:
		return appmessage.NewMsgSignatureGiven(signature)
	case model.SignNoPoint:
		if round < current {
			return appmessage.NewMsgSignatureNoPoint()
		}
		return r.signatureTryLater()
	case model.SignPending:
		return r.signatureTryLater()
	case model.SignRefused:
		return appmessage.NewMsgSignatureRejected(externalapi.RejectionCannotSign)
	}
	panic(errors.Errorf("unexpected sign outcome %s", outcome))
}

func (r *Responder) pointTryLater() appmessage.Response {
	r.Metrics().AddTryLaterServed("point")
	return appmessage.NewMsgPointTryLater()
}

func (r *Responder) signatureTryLater() appmessage.Response {
	r.Metrics().AddTryLaterServed("signature")
	return appmessage.NewMsgSignatureTryLater()
}

// allow returns whether the sender of key is within its request rate at
// the address of key. Peers outside the schedule share a single limiter.
func (r *Responder) allow(key limiterKey) bool {
	if !r.Consensus().Schedule().Contains(key.sender) {
		return r.unknownLimiter.Allow()
	}

	r.limitersLock.Lock()
	var limiter *rate.Limiter
	if cached, ok := r.limiters.Get(key); ok {
		limiter = cached.(*rate.Limiter)
	} else {
		limiter = newLimiter(r.Config())
		r.limiters.Add(key, limiter)
	}
	r.limitersLock.Unlock()
	return limiter.Allow()
}
