package consensus

import (
	"errors"
	"testing"

	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/ruleerrors"
	"github.com/pointdag/pointdagd/domain/consensus/utils/testutils"
	"github.com/pointdag/pointdagd/infrastructure/db/database"
	"github.com/pointdag/pointdagd/infrastructure/db/database/ldb"
)

func testConfig(peers *testutils.TestPeers) *Config {
	weights := make(map[externalapi.PeerID]uint64)
	for _, peer := range peers.Peers() {
		weights[peer] = 1
	}
	config := DefaultConfig(weights)
	config.NetworkName = "testnet"
	config.GenesisTime = testutils.GenesisTime
	config.RetentionRounds = 8
	config.CommitHistoryRounds = 16
	return config
}

func newTestConsensus(t *testing.T, peers *testutils.TestPeers, index int, db database.Database) Consensus {
	c, err := NewFactory().NewConsensus(testConfig(peers), db, peers.KeyPairs[index])
	if err != nil {
		t.Fatalf("NewConsensus: %+v", err)
	}
	if c.Genesis().ID() != peers.Genesis.ID() {
		t.Fatalf("unexpected genesis %s", c.Genesis().ID())
	}
	return c
}

func TestNodesAgreeOnCommits(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	nodes := make([]Consensus, len(peers.KeyPairs))
	committed := make([][]*externalapi.CommittedAnchor, len(nodes))
	for i := range nodes {
		nodes[i] = newTestConsensus(t, peers, i, nil)
	}

	for round := externalapi.Round(2); round <= 12; round++ {
		var built []*externalapi.Point
		for i, node := range nodes {
			point, err := node.BuildOwnPoint(round, [][]byte{{byte(i), byte(round)}}, testutils.RoundTime(round))
			if err != nil {
				t.Fatalf("BuildOwnPoint: %+v", err)
			}
			built = append(built, point)
		}
		for i, node := range nodes {
			for j, point := range built {
				if i == j {
					continue
				}
				result, err := node.ValidateAndInsertPoint(point)
				if err != nil {
					t.Fatalf("ValidateAndInsertPoint: %+v", err)
				}
				if result.Status != model.ValidationValid {
					t.Fatalf("node %d: %s is %s", i, point.ID(), result)
				}
			}
		}
		for i, node := range nodes {
			committed[i] = append(committed[i], node.Commit()...)
		}
	}

	if len(committed[0]) < 5 {
		t.Fatalf("expected at least 5 committed anchors, got %d", len(committed[0]))
	}
	for i := 1; i < len(nodes); i++ {
		if len(committed[i]) != len(committed[0]) {
			t.Fatalf("node %d committed %d anchors, node 0 committed %d", i, len(committed[i]), len(committed[0]))
		}
		for j := range committed[0] {
			if committed[i][j].Anchor.ID() != committed[0][j].Anchor.ID() ||
				committed[i][j].HistoryHash != committed[0][j].HistoryHash {
				t.Fatalf("node %d disagrees on anchor %d", i, j)
			}
		}
	}
}

func TestValidateAndInsertPoint(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	c := newTestConsensus(t, peers, 0, nil)
	rounds := peers.FullDAG(t, 3)

	point := rounds[3][1]
	result, err := c.ValidateAndInsertPoint(point)
	if err != nil {
		t.Fatalf("ValidateAndInsertPoint: %+v", err)
	}
	if result.Status != model.ValidationIncomplete || len(result.Missing) != len(rounds[2]) {
		t.Fatalf("expected round 2 to be missing, got %s", result)
	}
	if _, state, ok := c.GetPoint(point.ID()); !ok || state != model.StatePending {
		t.Fatalf("an incomplete point should be stored as pending")
	}

	for _, dependency := range rounds[2] {
		if result, err := c.ValidateAndInsertPoint(dependency); err != nil || result.Status != model.ValidationValid {
			t.Fatalf("dependency %s: %s, %+v", dependency.ID(), result, err)
		}
	}
	result, err = c.ValidateAndInsertPoint(point)
	if err != nil || result.Status != model.ValidationValid {
		t.Fatalf("expected the point to become valid, got %s, %+v", result, err)
	}

	forged := rounds[3][2].Clone()
	forged.Signature = point.Signature
	result, err = c.ValidateAndInsertPoint(forged)
	if err != nil {
		t.Fatalf("ValidateAndInsertPoint: %+v", err)
	}
	if result.Status != model.ValidationInvalid || !errors.Is(result.Err, ruleerrors.ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %s", result)
	}
	if _, _, ok := c.GetPoint(forged.ID()); ok {
		t.Fatalf("a point with a bad signature should not be stored")
	}

	genuine := rounds[3][2]
	if result, err := c.ValidateAndInsertPoint(genuine); err != nil || result.Status != model.ValidationValid {
		t.Fatalf("the genuine point should still be accepted, got %s, %+v", result, err)
	}
}

func TestSignFor(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	c := newTestConsensus(t, peers, 0, nil)
	rounds := peers.FullDAG(t, 3)
	author := peers.Peers()[1]

	if _, outcome, _ := c.SignFor(2, author); outcome != model.SignNoPoint {
		t.Fatalf("expected noPoint, got %s", outcome)
	}

	var pending *externalapi.Point
	for _, point := range rounds[3] {
		if point.Author() == author {
			pending = point
		}
	}
	if _, err := c.ValidateAndInsertPoint(pending); err != nil {
		t.Fatalf("ValidateAndInsertPoint: %+v", err)
	}
	if _, outcome, _ := c.SignFor(3, author); outcome != model.SignPending {
		t.Fatalf("expected pending, got %s", outcome)
	}

	for _, point := range rounds[2] {
		if _, err := c.ValidateAndInsertPoint(point); err != nil {
			t.Fatalf("ValidateAndInsertPoint: %+v", err)
		}
	}
	first, outcome, err := c.SignFor(2, author)
	if err != nil || outcome != model.SignSigned {
		t.Fatalf("expected a signature, got %s, %+v", outcome, err)
	}
	second, _, _ := c.SignFor(2, author)
	if !first.Equal(second) {
		t.Fatalf("signing twice should return the same signature")
	}

	var original *externalapi.Point
	for _, point := range rounds[2] {
		if point.Author() == author {
			original = point
		}
	}
	body := original.Body.Clone()
	body.Payload = [][]byte{{1, 2, 3}}
	equivocation := peers.SignBody(t, body)
	if result, err := c.ValidateAndInsertPoint(equivocation); err != nil || result.Status != model.ValidationValid {
		t.Fatalf("the equivocating point is valid on its own, got %s, %+v", result, err)
	}
	if _, outcome, _ := c.SignFor(2, author); outcome != model.SignRefused {
		t.Fatalf("expected an equivocated location to be refused, got %s", outcome)
	}
}

func TestRestoreFromDatabase(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	db, err := ldb.NewInMemoryLevelDB()
	if err != nil {
		t.Fatalf("NewInMemoryLevelDB: %+v", err)
	}
	defer db.Close()

	c := newTestConsensus(t, peers, 0, db)
	rounds := peers.FullDAG(t, 4)
	for round := externalapi.Round(2); round <= 4; round++ {
		for _, point := range rounds[round] {
			if result, err := c.ValidateAndInsertPoint(point); err != nil || result.Status != model.ValidationValid {
				t.Fatalf("%s: %s, %+v", point.ID(), result, err)
			}
		}
	}

	restored := newTestConsensus(t, peers, 0, db)
	if restored.Top() != 4 {
		t.Fatalf("expected top round 4, got %d", restored.Top())
	}
	for round := externalapi.Round(2); round <= 4; round++ {
		for _, point := range rounds[round] {
			if _, state, ok := restored.GetPoint(point.ID()); !ok || state != model.StateValid {
				t.Fatalf("%s was not restored as valid", point.ID())
			}
		}
	}

	next := peers.FullDAG(t, 5)[5][0]
	if result, err := restored.ValidateAndInsertPoint(next); err != nil || result.Status != model.ValidationValid {
		t.Fatalf("a point over the restored DAG should be valid, got %s, %+v", result, err)
	}

	evicted := restored.EvictBelow(4)
	if len(evicted) != 1+len(rounds[2])+len(rounds[3]) {
		t.Fatalf("expected genesis and rounds 2 and 3 to be evicted, got %d points", len(evicted))
	}
	if _, _, ok := restored.GetPoint(rounds[3][0].ID()); ok {
		t.Fatalf("evicted point is still stored")
	}
}

func TestInvalidatePoint(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	c := newTestConsensus(t, peers, 0, nil)
	rounds := peers.FullDAG(t, 3)

	point := rounds[3][1]
	if _, err := c.ValidateAndInsertPoint(point); err != nil {
		t.Fatalf("ValidateAndInsertPoint: %+v", err)
	}
	err := c.InvalidatePoint(point.ID(), errors.New("a dependency does not exist"))
	if err != nil {
		t.Fatalf("InvalidatePoint: %+v", err)
	}
	if _, state, _ := c.GetPoint(point.ID()); state != model.StateInvalid {
		t.Fatalf("expected the pending point to become invalid, got %s", state)
	}
	if _, outcome, _ := c.SignFor(3, point.Author()); outcome != model.SignRefused {
		t.Fatalf("expected signing to be refused, got %s", outcome)
	}

	valid := rounds[2][0]
	if _, err := c.ValidateAndInsertPoint(valid); err != nil {
		t.Fatalf("ValidateAndInsertPoint: %+v", err)
	}
	if err := c.InvalidatePoint(valid.ID(), errors.New("ignored")); err != nil {
		t.Fatalf("InvalidatePoint: %+v", err)
	}
	if _, state, _ := c.GetPoint(valid.ID()); state != model.StateValid {
		t.Fatalf("a valid point must not be invalidated, got %s", state)
	}
}

func TestPointsTooFarAheadAreNotStored(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	c := newTestConsensus(t, peers, 0, nil)
	rounds := peers.FullDAG(t, 3)
	for round := externalapi.Round(2); round <= 3; round++ {
		for _, point := range rounds[round] {
			if result, err := c.ValidateAndInsertPoint(point); err != nil || result.Status != model.ValidationValid {
				t.Fatalf("%s: %s, %+v", point.ID(), result, err)
			}
		}
	}

	// Genesis is round 1 and 8 rounds are retained, so the window reaches
	// round 9 and points are accepted up to round 11.
	if c.MaxAcceptedRound() != 11 {
		t.Fatalf("expected points to be accepted up to round 11, got %d", c.MaxAcceptedRound())
	}

	for _, round := range []externalapi.Round{12, 400_000_000} {
		body := rounds[3][1].Body.Clone()
		body.Round = round
		farAhead := peers.SignBody(t, body)
		result, err := c.ValidateAndInsertPoint(farAhead)
		if err != nil {
			t.Fatalf("ValidateAndInsertPoint: %+v", err)
		}
		if result.Status != model.ValidationInvalid || !errors.Is(result.Err, ruleerrors.ErrRoundTooFarAhead) {
			t.Fatalf("round %d: expected ErrRoundTooFarAhead, got %s", round, result)
		}
		if _, _, ok := c.GetPoint(farAhead.ID()); ok {
			t.Fatalf("round %d: a point too far ahead must not be stored", round)
		}
	}
	if c.Top() != 3 {
		t.Fatalf("expected the top to stay at round 3, got %d", c.Top())
	}
	c.Commit()

	c.EvictBelow(10)
	if c.MaxAcceptedRound() != 20 {
		t.Fatalf("expected the accepted rounds to follow the window, got %d", c.MaxAcceptedRound())
	}
}

func TestMalformedPointsAreNotStored(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	c := newTestConsensus(t, peers, 0, nil)
	rounds := peers.FullDAG(t, 3)

	body := rounds[3][1].Body.Clone()
	includes := body.Data.Includes
	includes[0], includes[1] = includes[1], includes[0]
	malformed := peers.SignBody(t, body)

	result, err := c.ValidateAndInsertPoint(malformed)
	if err != nil {
		t.Fatalf("ValidateAndInsertPoint: %+v", err)
	}
	if result.Status != model.ValidationInvalid || !errors.Is(result.Err, ruleerrors.ErrUnsortedIncludes) {
		t.Fatalf("expected ErrUnsortedIncludes, got %s", result)
	}
	if _, _, ok := c.GetPoint(malformed.ID()); ok {
		t.Fatalf("a malformed point must not be stored")
	}
	if _, outcome, _ := c.SignFor(3, malformed.Author()); outcome != model.SignNoPoint {
		t.Fatalf("a malformed point must leave its location empty, got %s", outcome)
	}
}
