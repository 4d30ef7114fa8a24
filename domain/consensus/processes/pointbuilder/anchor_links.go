package pointbuilder

import (
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

type anchorLinks struct {
	trigger   externalapi.Link
	proof     externalapi.Link
	proofTime externalapi.UnixTime
}

func (pb *pointBuilder) anchorLinks(round externalapi.Round, includes, witness []*externalapi.Point) (*anchorLinks, error) {
	if round == pb.genesis.Round()+1 {
		link := externalapi.LinkDirect{Through: externalapi.ThroughIncludes{PeerID: pb.genesis.Author()}}
		return &anchorLinks{trigger: link, proof: link, proofTime: pb.genesis.Body.Data.Time}, nil
	}

	targets, err := pb.targetsOf(includes)
	if err != nil {
		return nil, err
	}

	trigger, triggerTarget := pb.triggerLink(round, includes, witness, targets)
	proof, proofTarget := pb.proofLink(round, includes, targets)
	if proofTarget.Round > triggerTarget.Round {
		// Only possible when included points disagree about equivocating leaders.
		return nil, errors.Errorf("proof target %s is newer than trigger target %s", proofTarget, triggerTarget)
	}

	proofPoint := pb.genesis
	if proofTarget != pb.genesis.ID() {
		var ok bool
		proofPoint, ok = pb.dagStore.Get(proofTarget)
		if !ok {
			return nil, errors.Errorf("proof target %s is not stored", proofTarget)
		}
	}
	return &anchorLinks{trigger: trigger, proof: proof, proofTime: proofPoint.Body.Data.Time}, nil
}

// targetsOf returns the trigger and proof targets of every included point.
func (pb *pointBuilder) targetsOf(points []*externalapi.Point) ([][2]externalapi.PointID, error) {
	targets := make([][2]externalapi.PointID, len(points))
	for i, point := range points {
		for _, field := range []externalapi.AnchorLinkField{externalapi.AnchorTrigger, externalapi.AnchorProof} {
			resolution := pb.linkResolver.AnchorTarget(point, field)
			if resolution.Status != model.Resolved {
				return nil, errors.Errorf("%s of included %s is %s", field, point.ID(), resolution)
			}
			targets[i][field] = resolution.ID
		}
	}
	return targets, nil
}

func (pb *pointBuilder) triggerLink(round externalapi.Round, includes, witness []*externalapi.Point,
	targets [][2]externalapi.PointID) (externalapi.Link, externalapi.PointID) {

	if leader, ok := pb.schedule.Leader(round - 1); ok {
		for _, point := range includes {
			if point.Author() == leader {
				return externalapi.LinkDirect{Through: externalapi.ThroughIncludes{PeerID: leader}}, point.ID()
			}
		}
	}
	if leader, ok := pb.schedule.Leader(round - 2); ok {
		for _, point := range witness {
			if point.Author() == leader {
				return externalapi.LinkDirect{Through: externalapi.ThroughWitness{PeerID: leader}}, point.ID()
			}
		}
	}
	return pb.inherit(includes, targets, externalapi.AnchorTrigger)
}

// proofLink proves the previous round's leader once a quorum of included
// points triggers it, and inherits the newest proof otherwise.
func (pb *pointBuilder) proofLink(round externalapi.Round, includes []*externalapi.Point,
	targets [][2]externalapi.PointID) (externalapi.Link, externalapi.PointID) {

	if leader, ok := pb.schedule.Leader(round - 2); ok {
		supporters := make(map[externalapi.PointID][]externalapi.PeerID)
		for i, point := range includes {
			target := targets[i][externalapi.AnchorTrigger]
			if target.Round == round-2 && target.Author == leader {
				supporters[target] = append(supporters[target], point.Author())
			}
		}
		for candidate, peers := range supporters {
			if !pb.schedule.IsQuorum(pb.schedule.WeightOf(peers)) {
				continue
			}
			path := peers[0]
			for _, peer := range peers {
				if peer == pb.keyPair.PeerID() {
					path = peer
				}
			}
			return externalapi.LinkIndirect{To: candidate, Path: externalapi.ThroughIncludes{PeerID: path}}, candidate
		}
	}
	return pb.inherit(includes, targets, externalapi.AnchorProof)
}

// inherit links to the newest target of field among the included points,
// preferring the local peer's previous point.
func (pb *pointBuilder) inherit(includes []*externalapi.Point, targets [][2]externalapi.PointID,
	field externalapi.AnchorLinkField) (externalapi.Link, externalapi.PointID) {

	best := -1
	for i, point := range includes {
		if best < 0 {
			best = i
			continue
		}
		target, bestTarget := targets[i][field], targets[best][field]
		switch {
		case target.Round > bestTarget.Round:
			best = i
		case target.Round < bestTarget.Round:
		case point.Author() == pb.keyPair.PeerID() && target == bestTarget:
			best = i
		case target.Less(bestTarget):
			best = i
		}
	}

	target := targets[best][field]
	author := includes[best].Author()
	if author == pb.keyPair.PeerID() {
		return externalapi.LinkToSelf{}, target
	}
	return externalapi.LinkIndirect{To: target, Path: externalapi.ThroughIncludes{PeerID: author}}, target
}
