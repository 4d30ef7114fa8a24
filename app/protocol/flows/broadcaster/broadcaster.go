package broadcaster

import (
	"context"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/app/appmessage"
	"github.com/pointdag/pointdagd/app/protocol/flowcontext"
	"github.com/pointdag/pointdagd/app/protocol/protocolerrors"
	"github.com/pointdag/pointdagd/domain/consensus"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/evidencecollector"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter"
	"golang.org/x/sync/errgroup"
)

var errNoSignatureYet = errors.New("no signature yet")

// BroadcasterContext is the interface for the context needed by the Broadcaster.
type BroadcasterContext interface {
	Config() *flowcontext.Config
	Consensus() consensus.Consensus
	NetAdapter() netadapter.NetAdapter
}

// Broadcaster sends local points to the other peers and collects their
// signatures over them.
type Broadcaster struct {
	BroadcasterContext
}

// New returns a new Broadcaster
func New(context BroadcasterContext) *Broadcaster {
	return &Broadcaster{BroadcasterContext: context}
}

// Broadcast sends point to every other scheduled peer, then asks each of
// them for a signature over it. Signature queries stop once the point is
// proven or stale; everything stops when ctx is cancelled.
func (b *Broadcaster) Broadcast(ctx context.Context, point *externalapi.Point) {
	collector := b.Consensus().EvidenceCollector()
	signatureCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	spawn("Broadcaster.Broadcast-waitForEvidence", func() {
		select {
		case <-collector.Done(point.ID()):
			cancel()
		case <-signatureCtx.Done():
		}
	})

	localPeer := b.Consensus().LocalPeer()
	group := errgroup.Group{}
	for _, peer := range b.Consensus().Schedule().Peers() {
		if peer == localPeer {
			continue
		}
		group.Go(func() error {
			b.sendBroadcast(ctx, point, peer)
			b.collectSignature(ctx, signatureCtx, point, peer)
			return nil
		})
	}
	_ = group.Wait()

	state, _ := collector.State(point.ID())
	log.Debugf("Finished broadcasting %s, its evidence is %s", point.ID(), state)
}

func (b *Broadcaster) sendBroadcast(ctx context.Context, point *externalapi.Point, peer externalapi.PeerID) {
	queryCtx, cancel := context.WithTimeout(ctx, b.Config().QueryTimeout)
	defer cancel()

	_, err := b.NetAdapter().Query(queryCtx, peer, appmessage.NewMsgBroadcastQuery(point))
	if err != nil && ctx.Err() == nil {
		log.Debugf("Could not broadcast %s to %s: %s", point.ID(), peer, err)
	}
}

// collectSignature asks peer for its signature over point until it gives
// or refuses one. A peer answering noPoint is sent the point again.
func (b *Broadcaster) collectSignature(ctx context.Context, signatureCtx context.Context,
	point *externalapi.Point, peer externalapi.PeerID) {

	collector := b.Consensus().EvidenceCollector()
	id := point.ID()
	operation := func() (struct{}, error) {
		if !collector.ShouldQuery(id, peer) {
			return struct{}{}, nil
		}
		response, err := b.querySignature(signatureCtx, point, peer)
		if err != nil {
			if protocolerrors.ShouldBan(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}

		switch response.Status {
		case appmessage.SignatureGiven:
			_, err := collector.AddSignature(id, peer, response.Signature)
			if errors.Is(err, evidencecollector.ErrNotTracked) {
				return struct{}{}, nil
			}
			if err != nil {
				return struct{}{}, backoff.Permanent(protocolerrors.Wrapf(true, err, "invalid signature"))
			}
			return struct{}{}, nil
		case appmessage.SignatureNoPoint:
			b.sendBroadcast(ctx, point, peer)
			return struct{}{}, errNoSignatureYet
		case appmessage.SignatureTryLater:
			return struct{}{}, errNoSignatureYet
		case appmessage.SignatureRejected:
			log.Debugf("%s refused to sign %s: %s", peer, id, response.Reason)
			collector.RecordRejection(id, peer, response.Reason)
			return struct{}{}, nil
		}
		return struct{}{}, backoff.Permanent(protocolerrors.Errorf(true,
			"unexpected signature response status %s", response.Status))
	}

	cfg := b.Config()
	_, err := backoff.Retry(signatureCtx, operation,
		backoff.WithBackOff(cfg.NewBackOff()),
		backoff.WithMaxElapsedTime(cfg.RetryMaxElapsedTime()))
	if err == nil || signatureCtx.Err() != nil {
		return
	}
	if protocolerrors.ShouldBan(err) {
		log.Warnf("Stopped collecting the signature of %s over %s: %s", peer, id, err)
		return
	}
	state, _ := collector.State(id)
	if state != model.EvidenceProven {
		log.Debugf("Gave up collecting the signature of %s over %s: %s", peer, id, err)
	}
}

func (b *Broadcaster) querySignature(ctx context.Context, point *externalapi.Point,
	peer externalapi.PeerID) (*appmessage.MsgSignatureResponse, error) {

	queryCtx, cancel := context.WithTimeout(ctx, b.Config().QueryTimeout)
	defer cancel()

	response, err := b.NetAdapter().Query(queryCtx, peer, appmessage.NewMsgSignatureQuery(point.Round()))
	if err != nil {
		return nil, err
	}
	signatureResponse, ok := response.(*appmessage.MsgSignatureResponse)
	if !ok {
		return nil, protocolerrors.Errorf(true, "%s answered a signature query with %s", peer, response.Command())
	}
	return signatureResponse, nil
}
