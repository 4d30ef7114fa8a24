package committer

import (
	"math/rand"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pointdag/pointdagd/domain/consensus/datastructures/dagstore"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/linkresolver"
	"github.com/pointdag/pointdagd/domain/consensus/processes/pointbuilder"
	"github.com/pointdag/pointdagd/domain/consensus/processes/pointvalidator"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
	"github.com/pointdag/pointdagd/domain/consensus/utils/testutils"
)

type node struct {
	store     model.DAGStore
	validator model.PointValidator
	committer model.Committer
	resolver  model.LinkResolver
}

func newNode(t *testing.T, peers *testutils.TestPeers) *node {
	store := dagstore.New(1, nil)
	resolver := linkresolver.New(store, peers.Schedule, peers.Genesis.ID())
	verifier, err := signing.NewVerifier(1000)
	if err != nil {
		t.Fatalf("NewVerifier: %+v", err)
	}
	now := func() externalapi.UnixTime { return testutils.RoundTime(1000) }
	n := &node{
		store:     store,
		resolver:  resolver,
		validator: pointvalidator.New(peers.Genesis, 1024, 0, now, peers.Schedule, verifier, store, resolver),
		committer: New(peers.Genesis, 100, peers.Schedule, store, resolver),
	}
	n.insert(t, peers.Genesis)
	return n
}

func (n *node) insert(t *testing.T, point *externalapi.Point) {
	if _, err := n.store.Insert(point); err != nil {
		t.Fatalf("Insert: %+v", err)
	}
	if result := n.validator.Validate(point); result.Status != model.ValidationValid {
		t.Fatalf("point %s is not valid: %s", point.ID(), result)
	}
	if err := n.store.SetState(point.ID(), model.StateValid); err != nil {
		t.Fatalf("SetState: %+v", err)
	}
}

// buildRounds runs every peer from round 2 to lastRound on n and returns
// the built points per round. commit is called after every round.
func buildRounds(t *testing.T, peers *testutils.TestPeers, n *node, lastRound externalapi.Round,
	commit func(round externalapi.Round)) map[externalapi.Round][]*externalapi.Point {

	builders := make(map[externalapi.PeerID]model.PointBuilder)
	for _, keyPair := range peers.KeyPairs {
		builders[keyPair.PeerID()] = pointbuilder.New(peers.Genesis, keyPair, peers.Schedule, n.store, n.resolver)
	}
	rounds := make(map[externalapi.Round][]*externalapi.Point)
	for round := externalapi.Round(2); round <= lastRound; round++ {
		for _, peer := range peers.Peers() {
			var prev *externalapi.Point
			if previous := rounds[round-1]; previous != nil {
				for _, point := range previous {
					if point.Author() == peer {
						prev = point
					}
				}
			}
			point, err := builders[peer].BuildPoint(round, [][]byte{{byte(round)}, peer[:4]},
				testutils.RoundTime(round), prev, nil)
			if err != nil {
				t.Fatalf("BuildPoint: %+v", err)
			}
			rounds[round] = append(rounds[round], point)
		}
		for _, point := range rounds[round] {
			n.insert(t, point)
		}
		commit(round)
	}
	return rounds
}

func TestCommitSequence(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	n := newNode(t, peers)

	var anchors []*externalapi.CommittedAnchor
	committedAt := make(map[externalapi.Round]int)
	rounds := buildRounds(t, peers, n, 8, func(round externalapi.Round) {
		committed := n.committer.Commit()
		committedAt[round] = len(committed)
		anchors = append(anchors, committed...)
	})

	if anchors[0].Anchor != peers.Genesis || len(anchors[0].History) != 0 {
		t.Fatalf("the first committed anchor should be genesis with no history")
	}
	if committedAt[4] != 0 || committedAt[5] != 1 || committedAt[6] != 0 || committedAt[7] != 1 {
		t.Fatalf("unexpected commit rounds: %v", committedAt)
	}

	expectedRounds := []externalapi.Round{1, 3, 5, 7}
	expectedSizes := []int{0, 5, 8, 8}
	if len(anchors) != len(expectedRounds) {
		t.Fatalf("expected %d anchors, got %d", len(expectedRounds), len(anchors))
	}
	seen := make(map[externalapi.PointID]struct{})
	for i, anchor := range anchors {
		if anchor.Anchor.Round() != expectedRounds[i] {
			t.Errorf("anchor %d is at round %d, expected %d", i, anchor.Anchor.Round(), expectedRounds[i])
		}
		if i > 0 && anchor.Anchor.Author() != peers.Leader(expectedRounds[i]) {
			t.Errorf("anchor %d is not the leader's point", i)
		}
		if len(anchor.History) != expectedSizes[i] {
			t.Errorf("anchor %s committed %d points, expected %d", anchor.Anchor.ID(),
				len(anchor.History), expectedSizes[i])
		}
		for j, point := range anchor.History {
			if j > 0 && !anchor.History[j-1].ID().Less(point.ID()) {
				t.Errorf("history of anchor %s is not sorted", anchor.Anchor.ID())
			}
			if point.Round() > anchor.Anchor.Round() {
				t.Errorf("anchor %s committed the later %s", anchor.Anchor.ID(), point.ID())
			}
			if _, ok := seen[point.ID()]; ok {
				t.Errorf("%s is committed twice", point.ID())
			}
			seen[point.ID()] = struct{}{}
		}
	}

	leader7 := peers.Leader(7)
	for round := externalapi.Round(2); round <= 8; round++ {
		for _, point := range rounds[round] {
			expected := round <= 6 || (round == 7 && point.Author() == leader7)
			if n.committer.IsCommitted(point.ID()) != expected {
				t.Errorf("%s: expected committed to be %t", point.ID(), expected)
			}
			if _, ok := seen[point.ID()]; ok != expected {
				t.Errorf("%s: expected to be in a history: %t", point.ID(), expected)
			}
		}
	}
	if n.committer.LastCommitted() != anchors[len(anchors)-1].Anchor.ID() {
		t.Errorf("LastCommitted does not match the last committed anchor")
	}
}

func TestCommitIsIndependentOfArrivalOrder(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	source := newNode(t, peers)
	var expected []*externalapi.CommittedAnchor
	rounds := buildRounds(t, peers, source, 11, func(externalapi.Round) {
		expected = append(expected, source.committer.Commit()...)
	})

	random := rand.New(rand.NewSource(42))
	for attempt := 0; attempt < 3; attempt++ {
		n := newNode(t, peers)
		for round := externalapi.Round(2); round <= 11; round++ {
			points := append([]*externalapi.Point(nil), rounds[round]...)
			random.Shuffle(len(points), func(i, j int) { points[i], points[j] = points[j], points[i] })
			for _, point := range points {
				n.insert(t, point)
			}
		}
		actual := n.committer.Commit()

		if len(actual) != len(expected) {
			t.Fatalf("attempt %d: expected %d anchors, got %d", attempt, len(expected), len(actual))
		}
		for i := range expected {
			if actual[i].Anchor.ID() != expected[i].Anchor.ID() || actual[i].HistoryHash != expected[i].HistoryHash {
				t.Fatalf("attempt %d: anchor %d differs:\n%s\n%s", attempt, i,
					spew.Sdump(actual[i].Anchor.ID()), spew.Sdump(expected[i].Anchor.ID()))
			}
			if len(actual[i].History) != len(expected[i].History) {
				t.Fatalf("attempt %d: anchor %d committed %d points, expected %d", attempt, i,
					len(actual[i].History), len(expected[i].History))
			}
		}
	}
}

func TestNoCommitWithoutQuorumProof(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	n := newNode(t, peers)
	buildRounds(t, peers, n, 4, func(externalapi.Round) {})

	committed := n.committer.Commit()
	if len(committed) != 1 || committed[0].Anchor != peers.Genesis {
		t.Fatalf("expected only genesis to be committed, got %d anchors", len(committed))
	}
	if again := n.committer.Commit(); len(again) != 0 {
		t.Fatalf("genesis is committed twice")
	}
}
