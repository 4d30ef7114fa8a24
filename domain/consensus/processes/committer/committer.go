package committer

import (
	"sort"
	"sync"

	"github.com/kaspanet/go-muhash"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/peerschedule"
)

// committer commits the anchor of the highest anchor round that a quorum
// of points proves, together with every earlier anchor in its history.
type committer struct {
	genesis       *externalapi.Point
	historyRounds externalapi.Round

	schedule     *peerschedule.PeerSchedule
	dagStore     model.DAGStore
	linkResolver model.LinkResolver

	lock             sync.Mutex
	lastCommitted    *externalapi.Point
	committed        map[externalapi.PointID]struct{}
	historyHash      *muhash.MuHash
	genesisPublished bool
}

// New instantiates a new Committer. Committed ids older than historyRounds
// rounds behind the last committed anchor are forgotten.
func New(genesis *externalapi.Point,
	historyRounds externalapi.Round,

	schedule *peerschedule.PeerSchedule,
	dagStore model.DAGStore,
	linkResolver model.LinkResolver) model.Committer {

	historyHash := muhash.NewMuHash()
	historyHash.Add(genesis.Digest[:])
	return &committer{
		genesis:       genesis,
		historyRounds: historyRounds,

		schedule:     schedule,
		dagStore:     dagStore,
		linkResolver: linkResolver,

		lastCommitted: genesis,
		committed:     map[externalapi.PointID]struct{}{genesis.ID(): {}},
		historyHash:   historyHash,
	}
}

// LastCommitted returns the id of the latest committed anchor.
func (c *committer) LastCommitted() externalapi.PointID {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.lastCommitted.ID()
}

// IsCommitted returns whether id was committed by an anchor.
func (c *committer) IsCommitted(id externalapi.PointID) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	_, ok := c.committed[id]
	return ok
}

// Commit returns the anchors committed since the previous call, oldest first.
// The genesis point is always the first committed anchor.
func (c *committer) Commit() []*externalapi.CommittedAnchor {
	c.lock.Lock()
	defer c.lock.Unlock()

	var result []*externalapi.CommittedAnchor
	if !c.genesisPublished {
		c.genesisPublished = true
		result = append(result, &externalapi.CommittedAnchor{
			Anchor:      c.genesis,
			HistoryHash: c.finalizeHistoryHash(),
		})
	}

	leader, ok := c.directlyCommitted()
	if !ok {
		return result
	}
	for _, anchor := range c.anchorChain(leader) {
		result = append(result, c.commitAnchor(anchor))
	}
	c.forgetOldHistory()
	return result
}

// directlyCommitted returns the anchor of the highest anchor round whose
// leader point is the proof target of a quorum of valid points.
func (c *committer) directlyCommitted() (*externalapi.Point, bool) {
	lastRound := c.lastCommitted.Round()
	top := c.dagStore.Top()
	for round := c.schedule.LatestAnchorRound(top); round > lastRound; round -= peerschedule.AnchorPeriod {
		if round < c.dagStore.Bottom() {
			break
		}
		if anchor, ok := c.provenAnchor(round, top); ok {
			return anchor, true
		}
	}
	return nil, false
}

// provenAnchor counts, for every candidate of round, the distinct authors of
// valid points after it whose anchor proof designates it.
func (c *committer) provenAnchor(round, top externalapi.Round) (*externalapi.Point, bool) {
	leader, ok := c.schedule.Leader(round)
	if !ok {
		return nil, false
	}
	candidates := c.dagStore.Versions(round, leader)
	if len(candidates) == 0 {
		return nil, false
	}

	provers := make(map[externalapi.PointID]map[externalapi.PeerID]struct{})
	for r := round + 1; r <= top; r++ {
		for _, point := range c.dagStore.ValidPoints(r) {
			resolution := c.linkResolver.AnchorTarget(point, externalapi.AnchorProof)
			if resolution.Status != model.Resolved || resolution.ID.Round != round {
				continue
			}
			if provers[resolution.ID] == nil {
				provers[resolution.ID] = make(map[externalapi.PeerID]struct{})
			}
			provers[resolution.ID][point.Author()] = struct{}{}
		}
	}
	for _, candidate := range candidates {
		if state, _ := c.dagStore.State(candidate.ID()); state != model.StateValid {
			continue
		}
		authors := provers[candidate.ID()]
		peers := make([]externalapi.PeerID, 0, len(authors))
		for peer := range authors {
			peers = append(peers, peer)
		}
		if c.schedule.IsQuorum(c.schedule.WeightOf(peers)) {
			return candidate, true
		}
	}
	return nil, false
}

// anchorChain returns the anchors committed along with leader, oldest
// first: an earlier leader point is committed iff it is in the history of
// the next committed anchor.
func (c *committer) anchorChain(leader *externalapi.Point) []*externalapi.Point {
	chain := []*externalapi.Point{leader}
	current := leader
	lastRound := c.lastCommitted.Round()
	for round := leader.Round() - peerschedule.AnchorPeriod; round > lastRound; round -= peerschedule.AnchorPeriod {
		if round < c.dagStore.Bottom() {
			break
		}
		anchor, ok := c.leaderInHistory(current, round)
		if !ok {
			continue
		}
		chain = append(chain, anchor)
		current = anchor
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// leaderInHistory looks for the leader point of round in the history of from.
func (c *committer) leaderInHistory(from *externalapi.Point, round externalapi.Round) (*externalapi.Point, bool) {
	leader, ok := c.schedule.Leader(round)
	if !ok {
		return nil, false
	}
	var found *externalapi.Point
	c.traverseHistory(from, round, func(point *externalapi.Point) {
		if point.Round() == round && point.Author() == leader {
			found = point
		}
	})
	return found, found != nil
}

// traverseHistory visits every stored point in the history of from, from
// included, down to lowestRound.
func (c *committer) traverseHistory(from *externalapi.Point, lowestRound externalapi.Round,
	visit func(point *externalapi.Point)) {

	visited := map[externalapi.PointID]struct{}{from.ID(): {}}
	queue := []*externalapi.Point{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visit(current)
		for _, ids := range [][]externalapi.PointID{current.IncludesIDs(), current.WitnessIDs()} {
			for _, id := range ids {
				if id.Round < lowestRound {
					continue
				}
				if _, ok := visited[id]; ok {
					continue
				}
				visited[id] = struct{}{}
				point, ok := c.dagStore.Get(id)
				if !ok {
					continue
				}
				queue = append(queue, point)
			}
		}
	}
}

// commitAnchor commits the history of anchor that no earlier anchor committed.
func (c *committer) commitAnchor(anchor *externalapi.Point) *externalapi.CommittedAnchor {
	var newlyCommitted []*externalapi.Point
	visited := map[externalapi.PointID]struct{}{anchor.ID(): {}}
	queue := []*externalapi.Point{anchor}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		newlyCommitted = append(newlyCommitted, current)
		for _, ids := range [][]externalapi.PointID{current.IncludesIDs(), current.WitnessIDs()} {
			for _, id := range ids {
				if _, ok := visited[id]; ok {
					continue
				}
				visited[id] = struct{}{}
				if _, ok := c.committed[id]; ok {
					continue
				}
				if id.Round < c.historyFloor() {
					continue
				}
				point, ok := c.dagStore.Get(id)
				if !ok {
					log.Warnf("Point %s in the history of anchor %s is not stored", id, anchor.ID())
					continue
				}
				queue = append(queue, point)
			}
		}
	}

	sort.Slice(newlyCommitted, func(i, j int) bool {
		return newlyCommitted[i].ID().Less(newlyCommitted[j].ID())
	})
	var history []*externalapi.Point
	for _, point := range newlyCommitted {
		c.committed[point.ID()] = struct{}{}
		c.historyHash.Add(point.Digest[:])
		if len(point.Body.Payload) > 0 {
			history = append(history, point)
		}
	}
	c.lastCommitted = anchor

	log.Debugf("Committed anchor %s with %d points, %d with payload", anchor.ID(), len(newlyCommitted), len(history))
	return &externalapi.CommittedAnchor{
		Anchor:      anchor,
		History:     history,
		HistoryHash: c.finalizeHistoryHash(),
	}
}

// historyFloor is the round below which every point counts as committed.
func (c *committer) historyFloor() externalapi.Round {
	return c.lastCommitted.Round().SubSaturating(uint32(c.historyRounds))
}

// forgetOldHistory drops the committed ids below the history floor.
func (c *committer) forgetOldHistory() {
	floor := c.historyFloor()
	for id := range c.committed {
		if id.Round < floor {
			delete(c.committed, id)
		}
	}
}

func (c *committer) finalizeHistoryHash() externalapi.Digest {
	finalized := c.historyHash.Finalize()
	var digest externalapi.Digest
	copy(digest[:], finalized[:])
	return digest
}
