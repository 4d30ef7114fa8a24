package consensus

import (
	"time"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/datastructures/dagstore"
	"github.com/pointdag/pointdagd/domain/consensus/datastructures/pointstore"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/committer"
	"github.com/pointdag/pointdagd/domain/consensus/processes/evidencecollector"
	"github.com/pointdag/pointdagd/domain/consensus/processes/linkresolver"
	"github.com/pointdag/pointdagd/domain/consensus/processes/peerschedule"
	"github.com/pointdag/pointdagd/domain/consensus/processes/pointbuilder"
	"github.com/pointdag/pointdagd/domain/consensus/processes/pointvalidator"
	"github.com/pointdag/pointdagd/domain/consensus/utils/genesis"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
	infrastructuredatabase "github.com/pointdag/pointdagd/infrastructure/db/database"
	"github.com/pointdag/pointdagd/infrastructure/logger"
	"github.com/pointdag/pointdagd/util/locks"
	"github.com/pointdag/pointdagd/util/mstime"
)

// Factory instantiates new Consensuses
type Factory interface {
	NewConsensus(config *Config, db infrastructuredatabase.Database, keyPair *signing.KeyPair) (Consensus, error)
}

type factory struct {
	now func() externalapi.UnixTime
}

// NewFactory creates a new Consensus factory
func NewFactory() Factory {
	return &factory{now: func() externalapi.UnixTime { return externalapi.UnixTime(mstime.NowUnixMilli()) }}
}

// NewConsensus instantiates a new Consensus. Points persisted in db are
// restored; db may be nil to keep the DAG in memory only.
func (f *factory) NewConsensus(config *Config, db infrastructuredatabase.Database,
	keyPair *signing.KeyPair) (Consensus, error) {

	err := config.Validate()
	if err != nil {
		return nil, err
	}

	genesisPoint, err := genesis.New(config.NetworkName, config.GenesisRound, config.GenesisTime)
	if err != nil {
		return nil, err
	}
	schedule, err := peerschedule.New(config.Weights, config.Quorum, config.GenesisRound)
	if err != nil {
		return nil, err
	}
	if !schedule.Contains(keyPair.PeerID()) {
		log.Warnf("The local peer %s is not in the peer schedule, its points will be rejected", keyPair.PeerID())
	}
	verifier, err := signing.NewVerifier(config.SignatureCacheSize)
	if err != nil {
		return nil, err
	}

	// Data Structures
	var dagStore model.DAGStore
	if db == nil {
		dagStore = dagstore.New(config.GenesisRound, nil)
	} else {
		dagStore, err = dagstore.Restore(config.GenesisRound, pointstore.New(db))
		if err != nil {
			return nil, err
		}
	}

	// Processes
	linkResolver := linkresolver.New(dagStore, schedule, genesisPoint.ID())
	pointValidator := pointvalidator.New(
		genesisPoint,
		config.MaxPayloadBytes,
		config.ClockSkew.Milliseconds(),
		f.now,

		schedule,
		verifier,
		dagStore,
		linkResolver)
	pointBuilder := pointbuilder.New(
		genesisPoint,
		keyPair,

		schedule,
		dagStore,
		linkResolver)
	evidenceCollector := evidencecollector.New(schedule, verifier)
	commitEngine := committer.New(
		genesisPoint,
		config.CommitHistoryRounds,

		schedule,
		dagStore,
		linkResolver)

	c := &consensus{
		keyPair:  keyPair,
		genesis:  genesisPoint,
		schedule: schedule,

		retentionRounds: config.RetentionRounds,
		maxFutureRounds: config.MaxFutureRounds,

		pointLocks: locks.NewKeyedMutex[externalapi.PointID](),

		dagStore:          dagStore,
		linkResolver:      linkResolver,
		pointValidator:    pointValidator,
		pointBuilder:      pointBuilder,
		evidenceCollector: evidenceCollector,
		committer:         commitEngine,
	}

	err = c.initGenesis()
	if err != nil {
		return nil, err
	}
	if db != nil {
		c.restoreAnchorTargets()
	}
	return c, nil
}

// restoreSlowThreshold is how long restoring the stored DAG may take
// before it is reported.
const restoreSlowThreshold = 10 * time.Second

func (s *consensus) initGenesis() error {
	if s.dagStore.Bottom() > s.genesis.Round() {
		return nil
	}
	_, err := s.dagStore.Insert(s.genesis)
	if err != nil {
		return err
	}
	err = s.dagStore.SetState(s.genesis.ID(), model.StateValid)
	if err != nil {
		return errors.Wrap(err, "failed to mark genesis as valid")
	}
	return nil
}

// restoreAnchorTargets memoizes the anchor targets of restored valid points.
// Pending points are validated again once their dependencies are known.
func (s *consensus) restoreAnchorTargets() {
	rounds := s.dagStore.Rounds()
	onEnd := logger.LogAndMeasureExecutionTime(log, restoreSlowThreshold,
		"Restoring the anchor targets of %d rounds", len(rounds))
	defer onEnd()

	restored := 0
	for _, round := range rounds {
		for _, point := range s.dagStore.ValidPoints(round) {
			trigger := s.linkResolver.AnchorTarget(point, externalapi.AnchorTrigger)
			proof := s.linkResolver.AnchorTarget(point, externalapi.AnchorProof)
			if trigger.Status != model.Resolved || proof.Status != model.Resolved {
				continue
			}
			s.linkResolver.Remember(point.ID(), trigger.ID, proof.ID)
			restored++
		}
	}
	log.Infof("Restored %d valid points up to round %d", restored, s.dagStore.Top())
}
