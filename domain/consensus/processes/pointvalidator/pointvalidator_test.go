package pointvalidator

import (
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pointdag/pointdagd/domain/consensus/datastructures/dagstore"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/linkresolver"
	"github.com/pointdag/pointdagd/domain/consensus/ruleerrors"
	"github.com/pointdag/pointdagd/domain/consensus/utils/pointhashing"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
	"github.com/pointdag/pointdagd/domain/consensus/utils/testutils"
)

const testMaxPayloadBytes = 64

type fixture struct {
	peers     *testutils.TestPeers
	store     model.DAGStore
	validator model.PointValidator
	rounds    map[externalapi.Round][]*externalapi.Point
}

func newFixture(t *testing.T, lastRound externalapi.Round) *fixture {
	peers := testutils.NewTestPeers(t, 4)
	store := dagstore.New(1, nil)
	resolver := linkresolver.New(store, peers.Schedule, peers.Genesis.ID())
	verifier, err := signing.NewVerifier(100)
	if err != nil {
		t.Fatalf("NewVerifier: %+v", err)
	}
	now := func() externalapi.UnixTime { return testutils.RoundTime(100) }
	validator := New(peers.Genesis, testMaxPayloadBytes, 1000, now, peers.Schedule, verifier, store, resolver)

	f := &fixture{
		peers:     peers,
		store:     store,
		validator: validator,
		rounds:    peers.FullDAG(t, lastRound),
	}
	f.insertValid(t, peers.Genesis)
	return f
}

func (f *fixture) insertValid(t *testing.T, point *externalapi.Point) {
	if _, err := f.store.Insert(point); err != nil {
		t.Fatalf("Insert: %+v", err)
	}
	result := f.validator.Validate(point)
	if result.Status != model.ValidationValid {
		t.Fatalf("point %s: expected valid, got %s", point.ID(), result)
	}
	if err := f.store.SetState(point.ID(), model.StateValid); err != nil {
		t.Fatalf("SetState: %+v", err)
	}
}

func (f *fixture) insertRounds(t *testing.T, from, to externalapi.Round) {
	for round := from; round <= to; round++ {
		for _, point := range f.rounds[round] {
			f.insertValid(t, point)
		}
	}
}

func (f *fixture) pointOf(round externalapi.Round, author externalapi.PeerID) *externalapi.Point {
	for _, point := range f.rounds[round] {
		if point.Author() == author {
			return point
		}
	}
	return nil
}

// resign returns a copy of point with modify applied to its body.
func (f *fixture) resign(t *testing.T, point *externalapi.Point, modify func(body *externalapi.PointBody)) *externalapi.Point {
	body := point.Body.Clone()
	modify(body)
	return f.peers.SignBody(t, body)
}

func expectInvalid(t *testing.T, name string, result model.ValidationResult, expected error) {
	t.Helper()
	if result.Status != model.ValidationInvalid {
		t.Fatalf("%s: expected invalid, got %s", name, result)
	}
	if !errors.Is(result.Err, expected) {
		t.Fatalf("%s: expected %s, got %+v", name, expected, result.Err)
	}
}

func TestValidateFullDAG(t *testing.T) {
	f := newFixture(t, 6)
	f.insertRounds(t, 2, 6)
}

func TestValidateIntegrity(t *testing.T) {
	f := newFixture(t, 2)
	point := f.rounds[2][0]

	tampered := point.Clone()
	tampered.Body.Data.Time++
	if err := f.validator.ValidateIntegrity(tampered); !errors.Is(err, ruleerrors.ErrDigestMismatch) {
		t.Errorf("tampered body: expected ErrDigestMismatch, got %+v", err)
	}

	forged := point.Clone()
	forged.Signature = f.rounds[2][1].Signature
	if err := f.validator.ValidateIntegrity(forged); !errors.Is(err, ruleerrors.ErrBadSignature) {
		t.Errorf("forged signature: expected ErrBadSignature, got %+v", err)
	}

	stranger, err := signing.KeyPairFromSeed([]byte("stranger"))
	if err != nil {
		t.Fatalf("KeyPairFromSeed: %+v", err)
	}
	body := point.Body.Clone()
	body.Data.Author = stranger.PeerID()
	digest := pointhashing.BodyDigest(body)
	signature, err := stranger.Sign(digest)
	if err != nil {
		t.Fatalf("Sign: %+v", err)
	}
	unknown := &externalapi.Point{Digest: digest, Signature: signature, Body: body}
	if err := f.validator.ValidateIntegrity(unknown); !errors.Is(err, ruleerrors.ErrUnknownAuthor) {
		t.Errorf("unknown author: expected ErrUnknownAuthor, got %+v", err)
	}

	if err := f.validator.ValidateIntegrity(f.peers.Genesis); err != nil {
		t.Errorf("genesis: unexpected error %+v", err)
	}
}

func TestValidateWellFormed(t *testing.T) {
	f := newFixture(t, 4)
	peers := f.peers.Peers()
	author := peers[0]
	round2 := f.pointOf(2, author)
	round4 := f.pointOf(4, author)

	tests := []struct {
		name     string
		point    *externalapi.Point
		expected error
	}{
		{
			name: "round below genesis",
			point: f.resign(t, round2, func(body *externalapi.PointBody) {
				body.Round = 0
			}),
			expected: ruleerrors.ErrRoundTooLow,
		},
		{
			name: "second point at the genesis round",
			point: f.resign(t, round2, func(body *externalapi.PointBody) {
				body.Round = 1
			}),
			expected: ruleerrors.ErrBadGenesis,
		},
		{
			name: "genesis successor with a proof that is not genesis",
			point: f.resign(t, round2, func(body *externalapi.PointBody) {
				body.Data.AnchorProof = externalapi.LinkToSelf{}
			}),
			expected: ruleerrors.ErrBadGenesisSuccessor,
		},
		{
			name: "genesis successor with evidence",
			point: f.resign(t, round2, func(body *externalapi.PointBody) {
				body.Evidence = f.peers.Evidence(t, f.peers.Genesis, peers[1])
			}),
			expected: ruleerrors.ErrBadGenesisSuccessor,
		},
		{
			name: "unsorted includes",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				includes := body.Data.Includes
				includes[0], includes[1] = includes[1], includes[0]
			}),
			expected: ruleerrors.ErrUnsortedIncludes,
		},
		{
			name: "no includes",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Data.Includes = nil
				body.Data.AnchorTrigger = externalapi.LinkToSelf{}
			}),
			expected: ruleerrors.ErrNoIncludes,
		},
		{
			name: "witness of the genesis author",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Data.Witness = testutils.Pairs([]*externalapi.Point{f.peers.Genesis})
			}),
			expected: ruleerrors.ErrUnknownPeerReferenced,
		},
		{
			name: "to-self link without a previous point",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Data.Includes = body.Data.Includes[1:]
			}),
			expected: ruleerrors.ErrMalformedLink,
		},
		{
			name: "direct link through a missing witness entry",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Data.AnchorTrigger = testutils.WitnessLink(peers[1])
			}),
			expected: ruleerrors.ErrDanglingLink,
		},
		{
			name: "indirect link that is too close",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Data.AnchorTrigger = externalapi.LinkIndirect{
					To:   f.pointOf(3, f.peers.Leader(3)).ID(),
					Path: externalapi.ThroughIncludes{PeerID: peers[1]},
				}
			}),
			expected: ruleerrors.ErrMalformedLink,
		},
		{
			name: "evidence signed by the author",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Evidence = f.peers.Evidence(t, f.pointOf(3, author), author)
			}),
			expected: ruleerrors.ErrEvidenceFromAuthor,
		},
		{
			name: "unsorted evidence",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				evidence := f.peers.Evidence(t, f.pointOf(3, author), peers[1], peers[2])
				evidence[0], evidence[1] = evidence[1], evidence[0]
				body.Evidence = evidence
			}),
			expected: ruleerrors.ErrUnsortedEvidence,
		},
		{
			name: "time before anchor time",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Data.Time = body.Data.AnchorTime - 1
			}),
			expected: ruleerrors.ErrTimeBeforeAnchorTime,
		},
		{
			name: "time too far in the future",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Data.Time = testutils.RoundTime(100) + 1001
			}),
			expected: ruleerrors.ErrTimeTooMuchInTheFuture,
		},
		{
			name: "payload too large",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Payload = [][]byte{make([]byte, testMaxPayloadBytes/2), make([]byte, testMaxPayloadBytes/2+1)}
			}),
			expected: ruleerrors.ErrPayloadTooLarge,
		},
	}

	for _, test := range tests {
		err := f.validator.ValidateWellFormed(test.point)
		if !errors.Is(err, test.expected) {
			t.Errorf("%s: expected %s, got %+v", test.name, test.expected, err)
		}
	}

	if err := f.validator.ValidateWellFormed(round4); err != nil {
		t.Errorf("unmodified point: unexpected error %+v", err)
	}
	withPayload := f.resign(t, round4, func(body *externalapi.PointBody) {
		body.Payload = [][]byte{make([]byte, testMaxPayloadBytes)}
	})
	if err := f.validator.ValidateWellFormed(withPayload); err != nil {
		t.Errorf("payload at the limit: unexpected error %+v", err)
	}
}

func TestValidateIncomplete(t *testing.T) {
	f := newFixture(t, 4)
	f.insertRounds(t, 2, 2)
	point := f.rounds[4][0]

	result := f.validator.Validate(point)
	if result.Status != model.ValidationIncomplete || len(result.Missing) != len(f.rounds[3]) {
		t.Fatalf("expected all of round 3 to be missing, got %s", result)
	}
	for i, id := range point.IncludesIDs() {
		if result.Missing[i] != id {
			t.Fatalf("unexpected missing ids: %s", spew.Sdump(result.Missing))
		}
	}

	for _, dependency := range f.rounds[3] {
		if _, err := f.store.Insert(dependency); err != nil {
			t.Fatalf("Insert: %+v", err)
		}
	}
	result = f.validator.Validate(point)
	if result.Status != model.ValidationIncomplete || len(result.Missing) != 0 ||
		len(result.Pending) != len(f.rounds[3]) {
		t.Fatalf("expected all of round 3 to be pending, got %s", result)
	}

	invalid := f.rounds[3][1]
	if err := f.store.SetState(invalid.ID(), model.StateInvalid); err != nil {
		t.Fatalf("SetState: %+v", err)
	}
	expectInvalid(t, "invalid dependency", f.validator.Validate(point), ruleerrors.ErrInvalidDependency)
}

func TestValidateDependencies(t *testing.T) {
	f := newFixture(t, 6)
	f.insertRounds(t, 2, 5)
	peers := f.peers.Peers()
	author := peers[0]
	round4 := f.pointOf(4, author)
	round6 := f.pointOf(6, author)
	prev := f.pointOf(3, author)

	withEvidence := f.resign(t, round4, func(body *externalapi.PointBody) {
		body.Evidence = f.peers.Evidence(t, prev, peers[1], peers[2])
	})
	if result := f.validator.Validate(withEvidence); result.Status != model.ValidationValid {
		t.Errorf("evidence over the previous point: expected valid, got %s", result)
	}

	tests := []struct {
		name     string
		point    *externalapi.Point
		expected error
	}{
		{
			name: "time not increasing",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Data.Time = prev.Body.Data.Time
			}),
			expected: ruleerrors.ErrTimeNotIncreasing,
		},
		{
			name: "evidence over another point",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Evidence = f.peers.Evidence(t, f.pointOf(3, peers[3]), peers[1])
			}),
			expected: ruleerrors.ErrBadEvidenceSignature,
		},
		{
			name: "trigger of a point that is not the leader's",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				for _, peer := range peers {
					if peer != f.peers.Leader(3) {
						body.Data.AnchorTrigger = testutils.IncludesLink(peer)
						return
					}
				}
			}),
			expected: ruleerrors.ErrNotAnchorCandidate,
		},
		{
			name: "proof newer than trigger",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Data.AnchorTrigger = externalapi.LinkToSelf{}
				body.Data.AnchorProof = testutils.IncludesLink(f.peers.Leader(3))
			}),
			expected: ruleerrors.ErrProofAfterTrigger,
		},
		{
			name: "anchor time that is not the proof's time",
			point: f.resign(t, round4, func(body *externalapi.PointBody) {
				body.Data.AnchorTime++
			}),
			expected: ruleerrors.ErrAnchorTimeMismatch,
		},
		{
			name: "indirect link to a point outside the path's history",
			point: f.resign(t, round6, func(body *externalapi.PointBody) {
				body.Data.AnchorTrigger = externalapi.LinkIndirect{
					To:   externalapi.PointID{Author: f.peers.Leader(3), Round: 3},
					Path: externalapi.ThroughIncludes{PeerID: peers[1]},
				}
			}),
			expected: ruleerrors.ErrDanglingLink,
		},
		{
			name: "trigger older than the previous point's trigger",
			point: f.resign(t, round6, func(body *externalapi.PointBody) {
				body.Data.AnchorTrigger = externalapi.LinkIndirect{
					To:   f.peers.Genesis.ID(),
					Path: externalapi.ThroughIncludes{PeerID: peers[1]},
				}
			}),
			expected: ruleerrors.ErrAnchorRegression,
		},
	}

	for _, test := range tests {
		if err := f.validator.ValidateWellFormed(test.point); err != nil {
			t.Fatalf("%s: unexpected well-formedness error %+v", test.name, err)
		}
		expectInvalid(t, test.name, f.validator.ValidateDependencies(test.point), test.expected)
	}
}

func TestValidateIndirectTrigger(t *testing.T) {
	f := newFixture(t, 5)
	f.insertRounds(t, 2, 5)
	peers := f.peers.Peers()
	leader3 := f.pointOf(3, f.peers.Leader(3))

	point := f.peers.SignPoint(t, &testutils.PointTemplate{
		Round:    6,
		Author:   peers[0],
		Includes: f.rounds[5],
		Trigger: externalapi.LinkIndirect{
			To:   leader3.ID(),
			Path: externalapi.ThroughIncludes{PeerID: peers[2]},
		},
		Proof:      externalapi.LinkToSelf{},
		Time:       testutils.RoundTime(6),
		AnchorTime: f.peers.Genesis.Body.Data.Time,
	})
	if result := f.validator.Validate(point); result.Status != model.ValidationValid {
		t.Fatalf("expected valid, got %s", result)
	}
}
