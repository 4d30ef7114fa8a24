package pointvalidator

import (
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/peerschedule"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
)

// pointValidator exposes the validation stages of a point. Each stage
// assumes the previous ones passed.
type pointValidator struct {
	genesis         *externalapi.Point
	maxPayloadBytes int
	clockSkew       int64
	now             func() externalapi.UnixTime

	schedule     *peerschedule.PeerSchedule
	verifier     *signing.Verifier
	dagStore     model.DAGStore
	linkResolver model.LinkResolver
}

// New instantiates a new PointValidator
func New(genesis *externalapi.Point,
	maxPayloadBytes int,
	clockSkewMilliseconds int64,
	now func() externalapi.UnixTime,

	schedule *peerschedule.PeerSchedule,
	verifier *signing.Verifier,
	dagStore model.DAGStore,
	linkResolver model.LinkResolver) model.PointValidator {

	return &pointValidator{
		genesis:         genesis,
		maxPayloadBytes: maxPayloadBytes,
		clockSkew:       clockSkewMilliseconds,
		now:             now,

		schedule:     schedule,
		verifier:     verifier,
		dagStore:     dagStore,
		linkResolver: linkResolver,
	}
}

// Validate runs every validation stage on point.
func (v *pointValidator) Validate(point *externalapi.Point) model.ValidationResult {
	err := v.ValidateIntegrity(point)
	if err != nil {
		return model.InvalidResult(err)
	}
	err = v.ValidateWellFormed(point)
	if err != nil {
		return model.InvalidResult(err)
	}
	return v.ValidateDependencies(point)
}

func (v *pointValidator) isGenesis(point *externalapi.Point) bool {
	return point.ID() == v.genesis.ID()
}
