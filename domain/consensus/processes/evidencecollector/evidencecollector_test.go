package evidencecollector

import (
	"errors"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/ruleerrors"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
	"github.com/pointdag/pointdagd/domain/consensus/utils/testutils"
)

func newTestCollector(t *testing.T) (model.EvidenceCollector, *testutils.TestPeers, *externalapi.Point) {
	peers := testutils.NewTestPeers(t, 4)
	verifier, err := signing.NewVerifier(100)
	if err != nil {
		t.Fatalf("NewVerifier: %+v", err)
	}
	point := peers.FullDAG(t, 2)[2][0]
	return New(peers.Schedule, verifier), peers, point
}

func TestEvidenceReachesQuorum(t *testing.T) {
	collector, peers, point := newTestCollector(t)
	id := point.ID()
	signers := peers.Peers()[1:]
	evidence := peers.Evidence(t, point, signers...)

	if state := collector.Track(point); state != model.EvidencePending {
		t.Fatalf("expected pending, got %s", state)
	}

	expectedStates := []model.EvidenceState{model.EvidenceCollecting, model.EvidenceProven, model.EvidenceProven}
	for i, pair := range evidence {
		state, err := collector.AddSignature(id, pair.Peer, pair.Signature)
		if err != nil {
			t.Fatalf("AddSignature: %+v", err)
		}
		if state != expectedStates[i] {
			t.Fatalf("signature %d: expected %s, got %s", i, expectedStates[i], state)
		}
	}

	select {
	case <-collector.Done(id):
	default:
		t.Fatalf("Done is not closed after the point is proven")
	}
	if weight := collector.Weight(id); weight != 4 {
		t.Errorf("expected weight 4, got %d", weight)
	}
	if !reflect.DeepEqual(collector.Evidence(id), evidence) {
		t.Errorf("unexpected evidence: %s", spew.Sdump(collector.Evidence(id)))
	}
	if collector.ShouldQuery(id, signers[0]) {
		t.Errorf("a proven point should not be queried")
	}
}

func TestAddSignatureIsIdempotentAndCommutative(t *testing.T) {
	_, peers, point := newTestCollector(t)
	evidence := peers.Evidence(t, point, peers.Peers()[1:]...)

	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 1, 0, 2, 0}}
	var results [][]externalapi.PeerSignaturePair
	for _, order := range orders {
		collector, _, _ := newTestCollector(t)
		collector.Track(point)
		for _, i := range order {
			if _, err := collector.AddSignature(point.ID(), evidence[i].Peer, evidence[i].Signature); err != nil {
				t.Fatalf("AddSignature: %+v", err)
			}
		}
		if weight := collector.Weight(point.ID()); weight != 4 {
			t.Errorf("order %v: expected weight 4, got %d", order, weight)
		}
		results = append(results, collector.Evidence(point.ID()))
	}
	for i := 1; i < len(results); i++ {
		if !reflect.DeepEqual(results[0], results[i]) {
			t.Errorf("order %v produced different evidence:\n%s\n%s", orders[i],
				spew.Sdump(results[0]), spew.Sdump(results[i]))
		}
	}
}

func TestAddSignatureRejectsBadSignatures(t *testing.T) {
	collector, peers, point := newTestCollector(t)
	id := point.ID()
	collector.Track(point)
	signer := peers.Peers()[1]

	other := peers.Evidence(t, peers.Genesis, signer)[0]
	_, err := collector.AddSignature(id, signer, other.Signature)
	if !errors.Is(err, ruleerrors.ErrBadEvidenceSignature) {
		t.Errorf("expected ErrBadEvidenceSignature, got %+v", err)
	}

	own := peers.Evidence(t, point, id.Author)[0]
	_, err = collector.AddSignature(id, id.Author, own.Signature)
	if !errors.Is(err, ruleerrors.ErrUnknownPeerReferenced) {
		t.Errorf("expected the author's signature to be refused, got %+v", err)
	}

	_, err = collector.AddSignature(externalapi.PointID{Round: 7}, signer, other.Signature)
	if !errors.Is(err, ErrNotTracked) {
		t.Errorf("expected ErrNotTracked, got %+v", err)
	}
	if weight := collector.Weight(id); weight != 1 {
		t.Errorf("expected only the author's weight, got %d", weight)
	}
}

func TestRejectionsStopQueries(t *testing.T) {
	collector, peers, point := newTestCollector(t)
	id := point.ID()
	collector.Track(point)
	others := peers.Peers()[1:]

	if collector.ShouldQuery(id, id.Author) {
		t.Errorf("the author should never be queried")
	}
	for _, peer := range others {
		if !collector.ShouldQuery(id, peer) {
			t.Fatalf("expected %s to be queried", peer)
		}
	}

	collector.RecordRejection(id, others[0], externalapi.RejectionUnknownPeer)
	collector.RecordRejection(id, others[1], externalapi.RejectionTooOldRound)
	if collector.ShouldQuery(id, others[0]) || collector.ShouldQuery(id, others[1]) {
		t.Errorf("peers that rejected should not be queried again")
	}
	if !collector.ShouldQuery(id, others[2]) {
		t.Errorf("expected %s to still be queried", others[2])
	}
	if state, _ := collector.State(id); state != model.EvidenceCollecting {
		t.Errorf("expected collecting, got %s", state)
	}
}

func TestEvictMarksUnprovenPointsStale(t *testing.T) {
	collector, peers, point := newTestCollector(t)
	collector.Track(point)
	proven := peers.FullDAG(t, 2)[2][1]
	collector.Track(proven)
	for _, pair := range peers.Evidence(t, proven, peers.Peers()[2:]...) {
		if _, err := collector.AddSignature(proven.ID(), pair.Peer, pair.Signature); err != nil {
			t.Fatalf("AddSignature: %+v", err)
		}
	}

	stale := collector.Evict(3)
	if len(stale) != 1 || stale[0] != point.ID() {
		t.Fatalf("expected only %s to be stale, got %v", point.ID(), stale)
	}
	select {
	case <-collector.Done(point.ID()):
	default:
		t.Fatalf("Done is not closed for an evicted point")
	}
	if _, ok := collector.State(point.ID()); ok {
		t.Errorf("evicted point is still tracked")
	}
}

func TestSinglePeerIsProvenImmediately(t *testing.T) {
	peers := testutils.NewTestPeers(t, 1)
	verifier, err := signing.NewVerifier(10)
	if err != nil {
		t.Fatalf("NewVerifier: %+v", err)
	}
	collector := New(peers.Schedule, verifier)
	point := peers.FullDAG(t, 2)[2][0]
	if state := collector.Track(point); state != model.EvidenceProven {
		t.Fatalf("expected proven, got %s", state)
	}
}
