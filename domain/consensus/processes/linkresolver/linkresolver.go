package linkresolver

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/peerschedule"
	"github.com/pointdag/pointdagd/domain/consensus/ruleerrors"
)

// linkResolver resolves anchor links against the DAG store. Anchor targets
// of points are memoized, since every point inherits them from its includes.
type linkResolver struct {
	dagStore  model.DAGStore
	schedule  *peerschedule.PeerSchedule
	genesisID externalapi.PointID

	targetsLock sync.RWMutex
	targets     map[externalapi.PointID]*[2]externalapi.PointID
}

// New instantiates a new LinkResolver
func New(dagStore model.DAGStore, schedule *peerschedule.PeerSchedule, genesisID externalapi.PointID) model.LinkResolver {
	return &linkResolver{
		dagStore:  dagStore,
		schedule:  schedule,
		genesisID: genesisID,
		targets:   make(map[externalapi.PointID]*[2]externalapi.PointID),
	}
}

func resolved(id externalapi.PointID) model.Resolution {
	return model.Resolution{Status: model.Resolved, ID: id}
}

func unresolved(missing ...externalapi.PointID) model.Resolution {
	return model.Resolution{Status: model.Unresolved, Missing: missing}
}

func invalid(err error) model.Resolution {
	return model.Resolution{Status: model.Invalid, Err: err}
}

// IsAnchorCandidate returns whether id may be an anchor: it is either the
// genesis point or the leader's point of an anchor round.
func (lr *linkResolver) IsAnchorCandidate(id externalapi.PointID) bool {
	if id == lr.genesisID {
		return true
	}
	leader, ok := lr.schedule.Leader(id.Round)
	return ok && leader == id.Author
}

// ResolveLink returns the point link designates when it is read from point.
// ToSelf designates the author's previous point, Direct the referenced
// includes or witness entry, and Indirect its To point once To is shown to
// be in the history of the point referenced by Path.
func (lr *linkResolver) ResolveLink(point *externalapi.Point, link externalapi.Link,
	field externalapi.AnchorLinkField) model.Resolution {

	switch link := link.(type) {
	case externalapi.LinkToSelf:
		if point.ID() == lr.genesisID {
			return resolved(point.ID())
		}
		prevID, ok := point.PrevID()
		if !ok {
			return invalid(errors.Wrap(ruleerrors.ErrMalformedLink, "to-self link without a previous point"))
		}
		return resolved(prevID)

	case externalapi.LinkDirect:
		id, err := lr.throughID(point, link.Through)
		if err != nil {
			return invalid(err)
		}
		return resolved(id)

	case externalapi.LinkIndirect:
		return lr.resolveIndirect(point, link, field)

	default:
		return invalid(errors.Wrapf(ruleerrors.ErrMalformedLink, "unknown link type %T", link))
	}
}

func (lr *linkResolver) throughID(point *externalapi.Point, through externalapi.Through) (externalapi.PointID, error) {
	var pairs []externalapi.PeerDigestPair
	var round externalapi.Round
	switch through.(type) {
	case externalapi.ThroughIncludes:
		pairs, round = point.Body.Data.Includes, point.Round().Prev()
	case externalapi.ThroughWitness:
		pairs, round = point.Body.Data.Witness, point.Round().SubSaturating(2)
	default:
		return externalapi.PointID{}, errors.Wrapf(ruleerrors.ErrMalformedLink, "unknown through type %T", through)
	}
	digest, ok := externalapi.FindDigest(pairs, through.Peer())
	if !ok {
		return externalapi.PointID{}, errors.Wrapf(ruleerrors.ErrDanglingLink,
			"%s references a peer that is not listed", through)
	}
	return externalapi.PointID{Author: through.Peer(), Round: round, Digest: digest}, nil
}

func (lr *linkResolver) resolveIndirect(point *externalapi.Point, link externalapi.LinkIndirect,
	field externalapi.AnchorLinkField) model.Resolution {

	var minDistance externalapi.Round
	switch link.Path.(type) {
	case externalapi.ThroughIncludes:
		minDistance = 2
	case externalapi.ThroughWitness:
		minDistance = 3
	default:
		return invalid(errors.Wrapf(ruleerrors.ErrMalformedLink, "unknown through type %T", link.Path))
	}
	if uint64(link.To.Round)+uint64(minDistance) > uint64(point.Round()) {
		return invalid(errors.Wrapf(ruleerrors.ErrMalformedLink,
			"indirect link to round %d through %s is too close to round %d", link.To.Round, link.Path, point.Round()))
	}

	pathID, err := lr.throughID(point, link.Path)
	if err != nil {
		return invalid(err)
	}
	pathPoint, ok := lr.dagStore.Get(pathID)
	if !ok {
		return unresolved(pathID)
	}

	// The usual case: the path point carries the same anchor.
	if targets, ok := lr.cachedTargets(pathID); ok && targets[field] == link.To {
		return resolved(link.To)
	}
	return lr.searchHistory(pathPoint, link.To)
}

// searchHistory looks for target in the causal history of from, without
// descending below target's round.
func (lr *linkResolver) searchHistory(from *externalapi.Point, target externalapi.PointID) model.Resolution {
	bottom := lr.dagStore.Bottom()
	visited := map[externalapi.PointID]struct{}{from.ID(): {}}
	queue := []*externalapi.Point{from}
	var missing []externalapi.PointID
	undecidable := false

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, ids := range [][]externalapi.PointID{current.IncludesIDs(), current.WitnessIDs()} {
			for _, id := range ids {
				if id == target {
					return resolved(target)
				}
				if id.Round <= target.Round {
					continue
				}
				if _, ok := visited[id]; ok {
					continue
				}
				visited[id] = struct{}{}
				if id.Round < bottom {
					undecidable = true
					continue
				}
				next, ok := lr.dagStore.Get(id)
				if !ok {
					missing = append(missing, id)
					continue
				}
				queue = append(queue, next)
			}
		}
	}
	if len(missing) > 0 || undecidable {
		sort.Slice(missing, func(i, j int) bool { return missing[i].Less(missing[j]) })
		return unresolved(missing...)
	}
	return invalid(errors.Wrapf(ruleerrors.ErrDanglingLink, "%s is not in the history of %s", target, from.ID()))
}

// AnchorTarget returns the anchor that the given anchor link of point
// finally designates, following to-self links back through the author's
// previous points.
func (lr *linkResolver) AnchorTarget(point *externalapi.Point, field externalapi.AnchorLinkField) model.Resolution {
	if point.ID() == lr.genesisID {
		return resolved(lr.genesisID)
	}
	if targets, ok := lr.cachedTargets(point.ID()); ok {
		return resolved(targets[field])
	}

	current := point
	for {
		link := current.AnchorLink(field)
		resolution := lr.ResolveLink(current, link, field)
		if resolution.Status != model.Resolved {
			return resolution
		}
		if _, isToSelf := link.(externalapi.LinkToSelf); !isToSelf {
			if !lr.IsAnchorCandidate(resolution.ID) {
				return invalid(errors.Wrapf(ruleerrors.ErrNotAnchorCandidate, "%s of %s designates %s",
					field, current.ID(), resolution.ID))
			}
			return resolution
		}
		if resolution.ID == lr.genesisID {
			return resolution
		}
		if targets, ok := lr.cachedTargets(resolution.ID); ok {
			return resolved(targets[field])
		}
		prev, ok := lr.dagStore.Get(resolution.ID)
		if !ok {
			return unresolved(resolution.ID)
		}
		current = prev
	}
}

func (lr *linkResolver) cachedTargets(id externalapi.PointID) (*[2]externalapi.PointID, bool) {
	lr.targetsLock.RLock()
	defer lr.targetsLock.RUnlock()

	targets, ok := lr.targets[id]
	return targets, ok
}

// Remember memoizes the anchor targets of a validated point.
func (lr *linkResolver) Remember(id externalapi.PointID, trigger, proof externalapi.PointID) {
	lr.targetsLock.Lock()
	defer lr.targetsLock.Unlock()

	lr.targets[id] = &[2]externalapi.PointID{externalapi.AnchorTrigger: trigger, externalapi.AnchorProof: proof}
}

// Forget drops the memoized targets of points below belowRound.
func (lr *linkResolver) Forget(belowRound externalapi.Round) {
	lr.targetsLock.Lock()
	defer lr.targetsLock.Unlock()

	for id := range lr.targets {
		if id.Round < belowRound {
			delete(lr.targets, id)
		}
	}
}
