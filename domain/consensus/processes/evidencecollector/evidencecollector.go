package evidencecollector

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/peerschedule"
	"github.com/pointdag/pointdagd/domain/consensus/ruleerrors"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
)

// ErrNotTracked indicates a signature for a point the collector does not track.
var ErrNotTracked = errors.New("point is not tracked")

type collection struct {
	point      *externalapi.Point
	state      model.EvidenceState
	weight     uint64
	signatures map[externalapi.PeerID]externalapi.Signature
	rejections map[externalapi.PeerID]externalapi.SignatureRejectionReason
	done       chan struct{}
}

func (c *collection) finish(state model.EvidenceState) {
	if c.state == model.EvidenceProven || c.state == model.EvidenceStale {
		return
	}
	c.state = state
	close(c.done)
}

type evidenceCollector struct {
	schedule *peerschedule.PeerSchedule
	verifier *signing.Verifier

	lock        sync.Mutex
	collections map[externalapi.PointID]*collection
}

// New instantiates a new EvidenceCollector
func New(schedule *peerschedule.PeerSchedule, verifier *signing.Verifier) model.EvidenceCollector {
	return &evidenceCollector{
		schedule:    schedule,
		verifier:    verifier,
		collections: make(map[externalapi.PointID]*collection),
	}
}

// Track starts collecting signatures for a local point. The author's own
// weight counts towards the quorum, so a point may be proven right away.
func (ec *evidenceCollector) Track(point *externalapi.Point) model.EvidenceState {
	ec.lock.Lock()
	defer ec.lock.Unlock()

	if c, ok := ec.collections[point.ID()]; ok {
		return c.state
	}
	c := &collection{
		point:      point,
		state:      model.EvidencePending,
		weight:     ec.schedule.Weight(point.Author()),
		signatures: make(map[externalapi.PeerID]externalapi.Signature),
		rejections: make(map[externalapi.PeerID]externalapi.SignatureRejectionReason),
		done:       make(chan struct{}),
	}
	if ec.schedule.IsQuorum(c.weight) {
		c.finish(model.EvidenceProven)
	}
	ec.collections[point.ID()] = c
	return c.state
}

// AddSignature merges the signature of peer. Adding the same peer twice
// has no effect, and signatures arriving after the point is proven are
// still merged.
func (ec *evidenceCollector) AddSignature(id externalapi.PointID, peer externalapi.PeerID,
	signature externalapi.Signature) (model.EvidenceState, error) {

	ec.lock.Lock()
	c, ok := ec.collections[id]
	if !ok {
		ec.lock.Unlock()
		return 0, errors.Wrapf(ErrNotTracked, "signature of %s for %s", peer, id)
	}
	if _, signed := c.signatures[peer]; signed {
		state := c.state
		ec.lock.Unlock()
		return state, nil
	}
	ec.lock.Unlock()

	if peer == id.Author || !ec.schedule.Contains(peer) {
		return 0, errors.Wrapf(ruleerrors.ErrUnknownPeerReferenced, "%s may not sign %s", peer, id)
	}
	if !ec.verifier.Verify(peer, id.Digest, signature) {
		return 0, errors.Wrapf(ruleerrors.ErrBadEvidenceSignature, "signature of %s over %s", peer, id)
	}

	ec.lock.Lock()
	defer ec.lock.Unlock()

	if _, signed := c.signatures[peer]; signed {
		return c.state, nil
	}
	c.signatures[peer] = signature.Clone()
	delete(c.rejections, peer)
	if c.state == model.EvidenceStale {
		return c.state, nil
	}
	c.weight += ec.schedule.Weight(peer)
	if c.state == model.EvidencePending {
		c.state = model.EvidenceCollecting
	}
	if ec.schedule.IsQuorum(c.weight) {
		c.finish(model.EvidenceProven)
	}
	return c.state, nil
}

// RecordRejection remembers that peer refused to sign. Such a peer is not
// queried again for the point.
func (ec *evidenceCollector) RecordRejection(id externalapi.PointID, peer externalapi.PeerID,
	reason externalapi.SignatureRejectionReason) {

	ec.lock.Lock()
	defer ec.lock.Unlock()

	c, ok := ec.collections[id]
	if !ok {
		return
	}
	if _, signed := c.signatures[peer]; signed {
		return
	}
	c.rejections[peer] = reason
	if c.state == model.EvidencePending {
		c.state = model.EvidenceCollecting
	}
}

// ShouldQuery returns whether peer should be asked for a signature over id.
func (ec *evidenceCollector) ShouldQuery(id externalapi.PointID, peer externalapi.PeerID) bool {
	ec.lock.Lock()
	defer ec.lock.Unlock()

	c, ok := ec.collections[id]
	if !ok || peer == id.Author {
		return false
	}
	if c.state == model.EvidenceProven || c.state == model.EvidenceStale {
		return false
	}
	if _, signed := c.signatures[peer]; signed {
		return false
	}
	_, rejected := c.rejections[peer]
	return !rejected
}

// State returns the collection state of id.
func (ec *evidenceCollector) State(id externalapi.PointID) (model.EvidenceState, bool) {
	ec.lock.Lock()
	defer ec.lock.Unlock()

	c, ok := ec.collections[id]
	if !ok {
		return 0, false
	}
	return c.state, true
}

// Weight returns the weight of the author and every signer of id.
func (ec *evidenceCollector) Weight(id externalapi.PointID) uint64 {
	ec.lock.Lock()
	defer ec.lock.Unlock()

	c, ok := ec.collections[id]
	if !ok {
		return 0
	}
	return c.weight
}

// Evidence returns the collected signatures over id, sorted by peer.
func (ec *evidenceCollector) Evidence(id externalapi.PointID) []externalapi.PeerSignaturePair {
	ec.lock.Lock()
	defer ec.lock.Unlock()

	c, ok := ec.collections[id]
	if !ok {
		return nil
	}
	evidence := make([]externalapi.PeerSignaturePair, 0, len(c.signatures))
	for peer, signature := range c.signatures {
		evidence = append(evidence, externalapi.PeerSignaturePair{Peer: peer, Signature: signature.Clone()})
	}
	externalapi.SortPeerSignaturePairs(evidence)
	return evidence
}

// Done returns a channel that is closed once id is proven or stale. It
// returns a closed channel for an untracked id.
func (ec *evidenceCollector) Done(id externalapi.PointID) <-chan struct{} {
	ec.lock.Lock()
	defer ec.lock.Unlock()

	c, ok := ec.collections[id]
	if !ok {
		done := make(chan struct{})
		close(done)
		return done
	}
	return c.done
}

// Evict stops tracking points below belowRound and returns the ones that
// were not proven, which became stale.
func (ec *evidenceCollector) Evict(belowRound externalapi.Round) []externalapi.PointID {
	ec.lock.Lock()
	defer ec.lock.Unlock()

	var stale []externalapi.PointID
	for id, c := range ec.collections {
		if id.Round >= belowRound {
			continue
		}
		if c.state != model.EvidenceProven {
			c.finish(model.EvidenceStale)
			stale = append(stale, id)
		}
		delete(ec.collections, id)
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Less(stale[j]) })
	return stale
}
