package peerschedule

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

// AnchorPeriod is the distance between two anchor rounds.
const AnchorPeriod = 2

// PeerSchedule is the weighted set of peers that produce points, together
// with the leader rotation derived from it.
type PeerSchedule struct {
	peers        []externalapi.PeerID
	weights      map[externalapi.PeerID]uint64
	totalWeight  uint64
	policy       QuorumPolicy
	genesisRound externalapi.Round
}

// New returns a schedule over the given weights. Peers with zero weight are
// not part of the schedule.
func New(weights map[externalapi.PeerID]uint64, policy QuorumPolicy,
	genesisRound externalapi.Round) (*PeerSchedule, error) {

	schedule := &PeerSchedule{
		weights:      make(map[externalapi.PeerID]uint64, len(weights)),
		policy:       policy,
		genesisRound: genesisRound,
	}
	for peer, weight := range weights {
		if weight == 0 {
			continue
		}
		if schedule.totalWeight+weight < schedule.totalWeight {
			return nil, errors.New("total peer weight overflows")
		}
		schedule.weights[peer] = weight
		schedule.totalWeight += weight
		schedule.peers = append(schedule.peers, peer)
	}
	if len(schedule.peers) == 0 {
		return nil, errors.New("peer schedule must contain at least one peer")
	}
	sort.Slice(schedule.peers, func(i, j int) bool { return schedule.peers[i].Less(schedule.peers[j]) })
	return schedule, nil
}

// NewEqualWeights returns a schedule where every peer has weight 1.
func NewEqualWeights(peers []externalapi.PeerID, policy QuorumPolicy,
	genesisRound externalapi.Round) (*PeerSchedule, error) {

	weights := make(map[externalapi.PeerID]uint64, len(peers))
	for _, peer := range peers {
		weights[peer] = 1
	}
	return New(weights, policy, genesisRound)
}

// Peers returns the peers sorted by id. The returned slice must not be modified.
func (ps *PeerSchedule) Peers() []externalapi.PeerID {
	return ps.peers
}

// Len returns the number of peers.
func (ps *PeerSchedule) Len() int {
	return len(ps.peers)
}

// Contains returns whether peer is in the schedule.
func (ps *PeerSchedule) Contains(peer externalapi.PeerID) bool {
	_, ok := ps.weights[peer]
	return ok
}

// Weight returns the weight of peer, or 0 if it is unknown.
func (ps *PeerSchedule) Weight(peer externalapi.PeerID) uint64 {
	return ps.weights[peer]
}

// TotalWeight returns the sum of all weights.
func (ps *PeerSchedule) TotalWeight() uint64 {
	return ps.totalWeight
}

// WeightOf returns the weight of the distinct known peers in peers.
func (ps *PeerSchedule) WeightOf(peers []externalapi.PeerID) uint64 {
	seen := make(map[externalapi.PeerID]struct{}, len(peers))
	var weight uint64
	for _, peer := range peers {
		if _, ok := seen[peer]; ok {
			continue
		}
		seen[peer] = struct{}{}
		weight += ps.weights[peer]
	}
	return weight
}

// IsQuorum returns whether weight reaches the quorum.
func (ps *PeerSchedule) IsQuorum(weight uint64) bool {
	return ps.policy.IsQuorum(weight, ps.totalWeight)
}

// IsMajority returns whether weight is more than half of the total weight.
func (ps *PeerSchedule) IsMajority(weight uint64) bool {
	return greaterProduct(weight, 2, ps.totalWeight, 1)
}

// IsBeyondFaulty returns whether weight is more than a third of the total
// weight, so at least one honest peer holds part of it.
func (ps *PeerSchedule) IsBeyondFaulty(weight uint64) bool {
	return greaterProduct(weight, 3, ps.totalWeight, 1)
}

// GenesisRound returns the round of the genesis point.
func (ps *PeerSchedule) GenesisRound() externalapi.Round {
	return ps.genesisRound
}

// IsAnchorRound returns whether round may hold an anchor. Rounds at or
// before genesis never do; the genesis point is an anchor on its own.
func (ps *PeerSchedule) IsAnchorRound(round externalapi.Round) bool {
	return round > ps.genesisRound && (round-ps.genesisRound)%AnchorPeriod == 0
}

// Leader returns the peer whose point is the anchor candidate of round.
func (ps *PeerSchedule) Leader(round externalapi.Round) (externalapi.PeerID, bool) {
	if !ps.IsAnchorRound(round) {
		return externalapi.PeerID{}, false
	}
	index := uint64((round-ps.genesisRound)/AnchorPeriod) % uint64(len(ps.peers))
	return ps.peers[index], true
}

// LatestAnchorRound returns the greatest anchor round that is not after
// round, or the genesis round if there is none.
func (ps *PeerSchedule) LatestAnchorRound(round externalapi.Round) externalapi.Round {
	if round <= ps.genesisRound+AnchorPeriod-1 {
		return ps.genesisRound
	}
	return round - (round-ps.genesisRound)%AnchorPeriod
}
