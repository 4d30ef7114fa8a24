package consensus

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/peerschedule"
	"github.com/pointdag/pointdagd/domain/consensus/ruleerrors"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
	"github.com/pointdag/pointdagd/util/locks"
)

// Consensus maintains the local DAG of points and the commit order derived from it
type Consensus interface {
	LocalPeer() externalapi.PeerID
	Genesis() *externalapi.Point
	Schedule() *peerschedule.PeerSchedule

	ValidateIntegrity(point *externalapi.Point) error
	ValidateAndInsertPoint(point *externalapi.Point) (model.ValidationResult, error)
	MaxAcceptedRound() externalapi.Round
	InvalidatePoint(id externalapi.PointID, reason error) error
	GetPoint(id externalapi.PointID) (*externalapi.Point, model.PointState, bool)
	FirstValidPoint(round externalapi.Round, author externalapi.PeerID) (*externalapi.Point, bool)
	SignFor(round externalapi.Round, author externalapi.PeerID) (externalapi.Signature, model.SignOutcome, error)

	Coverage(round externalapi.Round) (weight uint64, isQuorum bool)
	BuildOwnPoint(round externalapi.Round, payload [][]byte, now externalapi.UnixTime) (*externalapi.Point, error)
	OwnPoint(round externalapi.Round) (*externalapi.Point, bool)
	EvidenceCollector() model.EvidenceCollector

	Commit() []*externalapi.CommittedAnchor
	EvictBelow(round externalapi.Round) []externalapi.PointID
	Bottom() externalapi.Round
	Top() externalapi.Round
}

type consensus struct {
	keyPair  *signing.KeyPair
	genesis  *externalapi.Point
	schedule *peerschedule.PeerSchedule

	retentionRounds externalapi.Round
	maxFutureRounds externalapi.Round

	pointLocks *locks.KeyedMutex[externalapi.PointID]
	buildLock  sync.Mutex

	dagStore          model.DAGStore
	linkResolver      model.LinkResolver
	pointValidator    model.PointValidator
	pointBuilder      model.PointBuilder
	evidenceCollector model.EvidenceCollector
	committer         model.Committer
}

// LocalPeer returns the id of the local peer.
func (s *consensus) LocalPeer() externalapi.PeerID {
	return s.keyPair.PeerID()
}

// Genesis returns the genesis point.
func (s *consensus) Genesis() *externalapi.Point {
	return s.genesis
}

// Schedule returns the peer schedule.
func (s *consensus) Schedule() *peerschedule.PeerSchedule {
	return s.schedule
}

// ValidateIntegrity checks that point is signed by a scheduled author over
// the hash of its body.
func (s *consensus) ValidateIntegrity(point *externalapi.Point) error {
	if point.Body == nil {
		return errors.New("point has no body")
	}
	return s.pointValidator.ValidateIntegrity(point)
}

// MaxAcceptedRound returns the highest round a point may have to be
// accepted: MaxFutureRounds past the current round, which is the highest
// valid round or the top of the retention window if that is higher.
func (s *consensus) MaxAcceptedRound() externalapi.Round {
	current := s.dagStore.Top()
	if windowTop := s.dagStore.Bottom() + s.retentionRounds; windowTop > current {
		current = windowTop
	}
	return current + s.maxFutureRounds
}

// ValidateAndInsertPoint validates point and stores it with the result.
// Points failing the integrity or well-formedness checks, or too far
// ahead of the local DAG, are not stored. Incomplete points are stored as
// pending and validated again when this is called after their
// dependencies arrived. Points whose dependencies turn out invalid are
// kept as invalid so that their location is never signed.
func (s *consensus) ValidateAndInsertPoint(point *externalapi.Point) (model.ValidationResult, error) {
	if point.Body == nil {
		return model.InvalidResult(errors.New("point has no body")), nil
	}
	unlock := s.pointLocks.Lock(point.ID())
	defer unlock()

	state, known := s.dagStore.State(point.ID())
	if known && state != model.StatePending {
		if state == model.StateValid {
			return model.ValidResult, nil
		}
		return model.InvalidResult(errors.Errorf("%s is known to be invalid", point.ID())), nil
	}

	if !known {
		err := s.pointValidator.ValidateIntegrity(point)
		if err != nil {
			return model.InvalidResult(err), nil
		}
		if maxRound := s.MaxAcceptedRound(); point.Round() > maxRound {
			return model.InvalidResult(errors.Wrapf(ruleerrors.ErrRoundTooFarAhead,
				"round %d is past %d", point.Round(), maxRound)), nil
		}
		err = s.pointValidator.ValidateWellFormed(point)
		if err != nil {
			return model.InvalidResult(err), nil
		}
		_, err = s.dagStore.Insert(point)
		if err != nil {
			return model.ValidationResult{}, err
		}
	}

	result := s.pointValidator.ValidateDependencies(point)
	var err error
	switch result.Status {
	case model.ValidationValid:
		err = s.dagStore.SetState(point.ID(), model.StateValid)
	case model.ValidationInvalid:
		log.Debugf("Point %s is invalid: %s", point.ID(), result.Err)
		err = s.dagStore.SetState(point.ID(), model.StateInvalid)
	}
	if err != nil {
		return model.ValidationResult{}, err
	}
	return result, nil
}

// InvalidatePoint marks a pending point invalid, once one of its
// dependencies turned out not to exist.
func (s *consensus) InvalidatePoint(id externalapi.PointID, reason error) error {
	unlock := s.pointLocks.Lock(id)
	defer unlock()

	state, ok := s.dagStore.State(id)
	if !ok || state != model.StatePending {
		return nil
	}
	log.Debugf("Point %s is invalid: %s", id, reason)
	return s.dagStore.SetState(id, model.StateInvalid)
}

// GetPoint returns the point with the given id and its validation state.
func (s *consensus) GetPoint(id externalapi.PointID) (*externalapi.Point, model.PointState, bool) {
	point, ok := s.dagStore.Get(id)
	if !ok {
		return nil, 0, false
	}
	state, _ := s.dagStore.State(id)
	return point, state, true
}

// FirstValidPoint returns the first point of author at round that was found valid.
func (s *consensus) FirstValidPoint(round externalapi.Round, author externalapi.PeerID) (*externalapi.Point, bool) {
	return s.dagStore.FirstValid(round, author)
}

// SignFor signs the first valid point of author at round. The signature is
// produced once and returned again on later calls.
func (s *consensus) SignFor(round externalapi.Round, author externalapi.PeerID) (
	externalapi.Signature, model.SignOutcome, error) {

	versions := s.dagStore.Versions(round, author)
	if len(versions) == 0 {
		return nil, model.SignNoPoint, nil
	}
	if s.dagStore.IsEquivocated(round, author) {
		return nil, model.SignRefused, nil
	}
	if _, ok := s.dagStore.FirstValid(round, author); !ok {
		for _, point := range versions {
			if state, _ := s.dagStore.State(point.ID()); state == model.StatePending {
				return nil, model.SignPending, nil
			}
		}
		return nil, model.SignRefused, nil
	}

	signature, err := s.dagStore.SignFor(round, author, func(point *externalapi.Point) (externalapi.Signature, error) {
		return s.keyPair.Sign(point.Digest)
	})
	if err != nil {
		return nil, 0, err
	}
	return signature, model.SignSigned, nil
}

// Coverage returns the weight of the points a local point at round would include.
func (s *consensus) Coverage(round externalapi.Round) (uint64, bool) {
	return s.pointBuilder.Coverage(round)
}

// BuildOwnPoint builds the local point of round over the current DAG,
// inserts it and starts collecting evidence for it.
func (s *consensus) BuildOwnPoint(round externalapi.Round, payload [][]byte,
	now externalapi.UnixTime) (*externalapi.Point, error) {

	s.buildLock.Lock()
	defer s.buildLock.Unlock()

	if existing, ok := s.OwnPoint(round); ok {
		return nil, errors.Errorf("the local point of round %d already exists: %s", round, existing.ID())
	}

	var evidence []externalapi.PeerSignaturePair
	prev, hasPrev := s.OwnPoint(round - 1)
	if hasPrev {
		evidence = s.evidenceCollector.Evidence(prev.ID())
	} else {
		prev = nil
	}

	point, err := s.pointBuilder.BuildPoint(round, payload, now, prev, evidence)
	if err != nil {
		return nil, err
	}
	result, err := s.ValidateAndInsertPoint(point)
	if err != nil {
		return nil, err
	}
	if result.Status != model.ValidationValid {
		return nil, errors.Errorf("the built point %s is %s", point.ID(), result)
	}
	s.evidenceCollector.Track(point)
	return point, nil
}

// OwnPoint returns the local point of round.
func (s *consensus) OwnPoint(round externalapi.Round) (*externalapi.Point, bool) {
	if round <= s.genesis.Round() {
		return nil, false
	}
	return s.dagStore.FirstValid(round, s.keyPair.PeerID())
}

// EvidenceCollector returns the collector of signatures over local points.
func (s *consensus) EvidenceCollector() model.EvidenceCollector {
	return s.evidenceCollector
}

// Commit returns the anchors committed since the previous call.
func (s *consensus) Commit() []*externalapi.CommittedAnchor {
	return s.committer.Commit()
}

// EvictBelow drops every round below round from the DAG and the caches
// that refer to it.
func (s *consensus) EvictBelow(round externalapi.Round) []externalapi.PointID {
	evicted := s.dagStore.EvictBelow(round)
	s.linkResolver.Forget(round)
	stale := s.evidenceCollector.Evict(round)
	if len(stale) > 0 {
		log.Debugf("Local points %v became stale before reaching a quorum of signatures", stale)
	}
	return evicted
}

// Bottom returns the lowest retained round.
func (s *consensus) Bottom() externalapi.Round {
	return s.dagStore.Bottom()
}

// Top returns the highest round holding a valid point.
func (s *consensus) Top() externalapi.Round {
	return s.dagStore.Top()
}
