package peerschedule

import (
	"testing"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

func TestFractionQuorum(t *testing.T) {
	tests := []struct {
		weight, total uint64
		expected      bool
	}{
		{weight: 3, total: 4, expected: true},
		{weight: 2, total: 3, expected: false},
		{weight: 7, total: 10, expected: true},
		{weight: 6, total: 9, expected: false},
		{weight: 0, total: 1, expected: false},
		{weight: 1, total: 1, expected: true},
	}
	for _, test := range tests {
		if DefaultQuorum.IsQuorum(test.weight, test.total) != test.expected {
			t.Errorf("IsQuorum(%d, %d): expected %t", test.weight, test.total, test.expected)
		}
	}
}

func TestParseFractionQuorum(t *testing.T) {
	quorum, err := ParseFractionQuorum("3/4")
	if err != nil {
		t.Fatalf("ParseFractionQuorum: %+v", err)
	}
	if quorum.Numerator != 3 || quorum.Denominator != 4 {
		t.Fatalf("unexpected quorum %s", quorum)
	}
	for _, invalid := range []string{"", "2", "1/0", "4/3", "1/3", "a/b", "1/2/3"} {
		if _, err := ParseFractionQuorum(invalid); err == nil {
			t.Errorf("ParseFractionQuorum(%q): expected an error", invalid)
		}
	}
}

func TestStakeWeightedSchedule(t *testing.T) {
	heavy, light1, light2, zero := externalapi.PeerID{4}, externalapi.PeerID{1}, externalapi.PeerID{2}, externalapi.PeerID{3}
	schedule, err := New(map[externalapi.PeerID]uint64{heavy: 6, light1: 2, light2: 2, zero: 0}, DefaultQuorum, 1)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	if schedule.Len() != 3 || schedule.Contains(zero) {
		t.Fatalf("zero weight peers must not be part of the schedule")
	}
	if schedule.TotalWeight() != 10 {
		t.Fatalf("expected total weight 10, got %d", schedule.TotalWeight())
	}
	if !schedule.Peers()[0].Less(schedule.Peers()[1]) || !schedule.Peers()[1].Less(schedule.Peers()[2]) {
		t.Fatalf("peers must be sorted")
	}
	if schedule.IsQuorum(schedule.WeightOf([]externalapi.PeerID{light1, light2, light1})) {
		t.Fatalf("two light peers must not reach quorum")
	}
	if !schedule.IsQuorum(schedule.WeightOf([]externalapi.PeerID{heavy, light1})) {
		t.Fatalf("the heavy peer with a light one must reach quorum")
	}
	if !schedule.IsMajority(schedule.Weight(heavy)) {
		t.Fatalf("the heavy peer alone must be a majority")
	}
}

func TestLargeStakeWeights(t *testing.T) {
	const stake = 3_000_000_000_000_000_000
	a, b, c := externalapi.PeerID{1}, externalapi.PeerID{2}, externalapi.PeerID{3}
	schedule, err := New(map[externalapi.PeerID]uint64{a: stake, b: stake, c: stake}, DefaultQuorum, 1)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	tests := []struct {
		peers                                []externalapi.PeerID
		isQuorum, isMajority, isBeyondFaulty bool
	}{
		{peers: nil},
		{peers: []externalapi.PeerID{a}},
		{peers: []externalapi.PeerID{a, b}, isMajority: true, isBeyondFaulty: true},
		{peers: []externalapi.PeerID{a, b, c}, isQuorum: true, isMajority: true, isBeyondFaulty: true},
	}
	for _, test := range tests {
		weight := schedule.WeightOf(test.peers)
		if schedule.IsQuorum(weight) != test.isQuorum {
			t.Errorf("IsQuorum of %d peers: expected %t", len(test.peers), test.isQuorum)
		}
		if schedule.IsMajority(weight) != test.isMajority {
			t.Errorf("IsMajority of %d peers: expected %t", len(test.peers), test.isMajority)
		}
		if schedule.IsBeyondFaulty(weight) != test.isBeyondFaulty {
			t.Errorf("IsBeyondFaulty of %d peers: expected %t", len(test.peers), test.isBeyondFaulty)
		}
	}

	_, err = New(map[externalapi.PeerID]uint64{a: stake, b: stake, c: stake, {4}: stake * 4}, DefaultQuorum, 1)
	if err == nil {
		t.Fatalf("expected an error for a total weight that overflows")
	}
}

func TestLeaderRotation(t *testing.T) {
	peers := []externalapi.PeerID{{3}, {1}, {2}}
	schedule, err := NewEqualWeights(peers, DefaultQuorum, 10)
	if err != nil {
		t.Fatalf("NewEqualWeights: %+v", err)
	}
	for _, round := range []externalapi.Round{9, 10, 11, 13} {
		if _, ok := schedule.Leader(round); ok {
			t.Errorf("round %d must not have a leader", round)
		}
	}
	expected := map[externalapi.Round]externalapi.PeerID{12: {2}, 14: {3}, 16: {1}, 18: {2}}
	for round, leader := range expected {
		got, ok := schedule.Leader(round)
		if !ok || got != leader {
			t.Errorf("leader of round %d: expected %s, got %s", round, leader.Alt(), got.Alt())
		}
	}
	if schedule.LatestAnchorRound(15) != 14 || schedule.LatestAnchorRound(11) != 10 || schedule.LatestAnchorRound(12) != 12 {
		t.Fatalf("unexpected latest anchor rounds")
	}
}
