package pointvalidator

import (
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/ruleerrors"
)

// ValidateDependencies checks the point against the points it references.
// Every referenced point has to be known and valid before the anchor links
// can be resolved.
func (v *pointValidator) ValidateDependencies(point *externalapi.Point) model.ValidationResult {
	if v.isGenesis(point) {
		return model.ValidResult
	}

	prev, result, ok := v.checkReferencedPoints(point)
	if !ok {
		return result
	}

	if prev != nil {
		err := v.checkPrevPoint(point, prev)
		if err != nil {
			return model.InvalidResult(err)
		}
	}

	trigger, result, ok := v.anchorTarget(point, externalapi.AnchorTrigger)
	if !ok {
		return result
	}
	proof, result, ok := v.anchorTarget(point, externalapi.AnchorProof)
	if !ok {
		return result
	}
	if proof.Round > trigger.Round {
		return model.InvalidResult(errors.Wrapf(ruleerrors.ErrProofAfterTrigger,
			"%s proves %s which is newer than the triggered %s", point.ID(), proof, trigger))
	}

	proofPoint, ok := v.dagStore.Get(proof)
	if !ok {
		if proof != v.genesis.ID() {
			return model.IncompleteResult([]externalapi.PointID{proof}, nil)
		}
		proofPoint = v.genesis
	}
	if point.Body.Data.AnchorTime != proofPoint.Body.Data.Time {
		return model.InvalidResult(errors.Wrapf(ruleerrors.ErrAnchorTimeMismatch,
			"anchor time %d of %s differs from time %d of %s",
			point.Body.Data.AnchorTime, point.ID(), proofPoint.Body.Data.Time, proof))
	}

	if prev != nil {
		err := v.checkAnchorProgress(point, prev, trigger, proof)
		if err != nil {
			return model.InvalidResult(err)
		}
	}

	v.linkResolver.Remember(point.ID(), trigger, proof)
	return model.ValidResult
}

// checkReferencedPoints makes sure every point in includes and witness is
// known and valid, and returns the author's previous point if there is one.
func (v *pointValidator) checkReferencedPoints(point *externalapi.Point) (
	prev *externalapi.Point, result model.ValidationResult, ok bool) {

	prevID, hasPrev := point.PrevID()
	bottom := v.dagStore.Bottom()
	var missing, pending []externalapi.PointID
	belowWindow := false

	for _, ids := range [][]externalapi.PointID{point.IncludesIDs(), point.WitnessIDs()} {
		for _, id := range ids {
			if id == v.genesis.ID() {
				if hasPrev && id == prevID {
					prev = v.genesis
				}
				continue
			}
			state, known := v.dagStore.State(id)
			if !known {
				if id.Round < bottom {
					belowWindow = true
				} else {
					missing = append(missing, id)
				}
				continue
			}
			switch state {
			case model.StateInvalid:
				return nil, model.InvalidResult(errors.Wrapf(ruleerrors.ErrInvalidDependency,
					"%s references invalid %s", point.ID(), id)), false
			case model.StatePending:
				pending = append(pending, id)
				continue
			}
			if hasPrev && id == prevID {
				prev, _ = v.dagStore.Get(id)
			}
		}
	}

	if len(missing) > 0 || len(pending) > 0 || belowWindow {
		return nil, model.IncompleteResult(missing, pending), false
	}
	return prev, model.ValidResult, true
}

func (v *pointValidator) checkPrevPoint(point, prev *externalapi.Point) error {
	if point.Body.Data.Time <= prev.Body.Data.Time {
		return errors.Wrapf(ruleerrors.ErrTimeNotIncreasing, "time %d of %s is not after time %d of %s",
			point.Body.Data.Time, point.ID(), prev.Body.Data.Time, prev.ID())
	}
	for _, pair := range point.Body.Evidence {
		if !v.verifier.Verify(pair.Peer, prev.Digest, pair.Signature) {
			return errors.Wrapf(ruleerrors.ErrBadEvidenceSignature, "signature of %s over %s does not verify",
				pair.Peer, prev.ID())
		}
	}
	return nil
}

func (v *pointValidator) anchorTarget(point *externalapi.Point, field externalapi.AnchorLinkField) (
	externalapi.PointID, model.ValidationResult, bool) {

	resolution := v.linkResolver.AnchorTarget(point, field)
	switch resolution.Status {
	case model.Resolved:
		return resolution.ID, model.ValidResult, true
	case model.Unresolved:
		return externalapi.PointID{}, model.IncompleteResult(resolution.Missing, nil), false
	default:
		return externalapi.PointID{}, model.InvalidResult(resolution.Err), false
	}
}

// checkAnchorProgress checks that the anchors of a point are not older
// than the anchors of the author's previous point.
func (v *pointValidator) checkAnchorProgress(point, prev *externalapi.Point, trigger, proof externalapi.PointID) error {
	for _, current := range []struct {
		field  externalapi.AnchorLinkField
		target externalapi.PointID
	}{{externalapi.AnchorTrigger, trigger}, {externalapi.AnchorProof, proof}} {
		resolution := v.linkResolver.AnchorTarget(prev, current.field)
		if resolution.Status != model.Resolved {
			continue
		}
		if current.target.Round < resolution.ID.Round {
			return errors.Wrapf(ruleerrors.ErrAnchorRegression, "%s of %s designates %s, older than %s of %s",
				current.field, point.ID(), current.target, resolution.ID, prev.ID())
		}
	}
	return nil
}
