// Package testutils builds peer sets, keys and signed points for tests.
package testutils

import (
	"fmt"
	"testing"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/peerschedule"
	"github.com/pointdag/pointdagd/domain/consensus/utils/genesis"
	"github.com/pointdag/pointdagd/domain/consensus/utils/pointhashing"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
)

// GenesisTime is the genesis time of test networks.
const GenesisTime externalapi.UnixTime = 1_700_000_000_000

// TestPeers is a set of peers with known keys, sorted by peer id.
type TestPeers struct {
	KeyPairs []*signing.KeyPair
	Schedule *peerschedule.PeerSchedule
	Genesis  *externalapi.Point

	byPeer map[externalapi.PeerID]*signing.KeyPair
}

// NewTestPeers deterministically creates count peers with equal weights
// and the genesis point of their network.
func NewTestPeers(t testing.TB, count int) *TestPeers {
	t.Helper()

	byPeer := make(map[externalapi.PeerID]*signing.KeyPair, count)
	peers := make([]externalapi.PeerID, 0, count)
	for i := 0; i < count; i++ {
		keyPair, err := signing.KeyPairFromSeed([]byte(fmt.Sprintf("test-peer-%d", i)))
		if err != nil {
			t.Fatalf("KeyPairFromSeed: %+v", err)
		}
		byPeer[keyPair.PeerID()] = keyPair
		peers = append(peers, keyPair.PeerID())
	}
	schedule, err := peerschedule.NewEqualWeights(peers, peerschedule.DefaultQuorum, 1)
	if err != nil {
		t.Fatalf("NewEqualWeights: %+v", err)
	}
	genesisPoint, err := genesis.New("testnet", 1, GenesisTime)
	if err != nil {
		t.Fatalf("genesis.New: %+v", err)
	}

	keyPairs := make([]*signing.KeyPair, 0, count)
	for _, peer := range schedule.Peers() {
		keyPairs = append(keyPairs, byPeer[peer])
	}
	return &TestPeers{
		KeyPairs: keyPairs,
		Schedule: schedule,
		Genesis:  genesisPoint,
		byPeer:   byPeer,
	}
}

// Peers returns the sorted peer ids.
func (tp *TestPeers) Peers() []externalapi.PeerID {
	return tp.Schedule.Peers()
}

// KeyPair returns the key pair of peer, or nil if peer is unknown.
func (tp *TestPeers) KeyPair(peer externalapi.PeerID) *signing.KeyPair {
	return tp.byPeer[peer]
}

// Leader returns the leader of round.
func (tp *TestPeers) Leader(round externalapi.Round) externalapi.PeerID {
	leader, _ := tp.Schedule.Leader(round)
	return leader
}

// PointTemplate describes a point to be signed by SignPoint.
type PointTemplate struct {
	Round      externalapi.Round
	Author     externalapi.PeerID
	Includes   []*externalapi.Point
	Witness    []*externalapi.Point
	Trigger    externalapi.Link
	Proof      externalapi.Link
	Time       externalapi.UnixTime
	AnchorTime externalapi.UnixTime
	Payload    [][]byte
	Evidence   []externalapi.PeerSignaturePair
}

// SignPoint builds the point described by template and signs it with the
// author's key.
func (tp *TestPeers) SignPoint(t testing.TB, template *PointTemplate) *externalapi.Point {
	t.Helper()

	body := &externalapi.PointBody{
		Round:   template.Round,
		Payload: template.Payload,
		Data: externalapi.PointData{
			Author:        template.Author,
			Includes:      Pairs(template.Includes),
			Witness:       Pairs(template.Witness),
			AnchorTrigger: template.Trigger,
			AnchorProof:   template.Proof,
			Time:          template.Time,
			AnchorTime:    template.AnchorTime,
		},
		Evidence: template.Evidence,
	}
	return tp.SignBody(t, body)
}

// SignBody computes the digest of body and signs it with the author's key.
func (tp *TestPeers) SignBody(t testing.TB, body *externalapi.PointBody) *externalapi.Point {
	t.Helper()

	keyPair := tp.KeyPair(body.Data.Author)
	if keyPair == nil {
		t.Fatalf("SignBody: unknown author %s", body.Data.Author)
	}
	digest := pointhashing.BodyDigest(body)
	signature, err := keyPair.Sign(digest)
	if err != nil {
		t.Fatalf("Sign: %+v", err)
	}
	return &externalapi.Point{Digest: digest, Signature: signature, Body: body}
}

// Evidence returns the signatures of signers over the digest of point,
// sorted by peer.
func (tp *TestPeers) Evidence(t testing.TB, point *externalapi.Point,
	signers ...externalapi.PeerID) []externalapi.PeerSignaturePair {

	t.Helper()

	evidence := make([]externalapi.PeerSignaturePair, 0, len(signers))
	for _, signer := range signers {
		signature, err := tp.KeyPair(signer).Sign(point.Digest)
		if err != nil {
			t.Fatalf("Sign: %+v", err)
		}
		evidence = append(evidence, externalapi.PeerSignaturePair{Peer: signer, Signature: signature})
	}
	externalapi.SortPeerSignaturePairs(evidence)
	return evidence
}

// Pairs returns the sorted includes or witness entries referencing points.
func Pairs(points []*externalapi.Point) []externalapi.PeerDigestPair {
	pairs := make([]externalapi.PeerDigestPair, 0, len(points))
	for _, point := range points {
		pairs = append(pairs, externalapi.PeerDigestPair{Peer: point.Author(), Digest: point.Digest})
	}
	externalapi.SortPeerDigestPairs(pairs)
	return pairs
}

// IncludesLink returns a direct link through the includes entry of peer.
func IncludesLink(peer externalapi.PeerID) externalapi.Link {
	return externalapi.LinkDirect{Through: externalapi.ThroughIncludes{PeerID: peer}}
}

// WitnessLink returns a direct link through the witness entry of peer.
func WitnessLink(peer externalapi.PeerID) externalapi.Link {
	return externalapi.LinkDirect{Through: externalapi.ThroughWitness{PeerID: peer}}
}

// RoundTime is the time test points carry at round.
func RoundTime(round externalapi.Round) externalapi.UnixTime {
	return GenesisTime + externalapi.UnixTime(round)*10
}

// FullDAG returns the points of rounds 2 to lastRound, where every peer
// includes every point of the previous round. Points of rounds following
// an anchor round trigger its leader; proofs keep pointing at genesis.
func (tp *TestPeers) FullDAG(t testing.TB, lastRound externalapi.Round) map[externalapi.Round][]*externalapi.Point {
	t.Helper()

	genesisRound := tp.Genesis.Round()
	rounds := map[externalapi.Round][]*externalapi.Point{genesisRound: {tp.Genesis}}
	for round := genesisRound + 1; round <= lastRound; round++ {
		previous := rounds[round-1]
		for _, peer := range tp.Peers() {
			var trigger, proof externalapi.Link
			switch {
			case round == genesisRound+1:
				trigger, proof = IncludesLink(tp.Genesis.Author()), IncludesLink(tp.Genesis.Author())
			case tp.Schedule.IsAnchorRound(round - 1):
				trigger, proof = IncludesLink(tp.Leader(round-1)), externalapi.LinkToSelf{}
			default:
				trigger, proof = externalapi.LinkToSelf{}, externalapi.LinkToSelf{}
			}
			rounds[round] = append(rounds[round], tp.SignPoint(t, &PointTemplate{
				Round:      round,
				Author:     peer,
				Includes:   previous,
				Trigger:    trigger,
				Proof:      proof,
				Time:       RoundTime(round),
				AnchorTime: tp.Genesis.Body.Data.Time,
			}))
		}
	}
	return rounds
}
