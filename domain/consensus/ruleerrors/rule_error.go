package ruleerrors

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

// These constants are used to identify a specific RuleError.
var (
	// ErrUnknownAuthor indicates the author is not in the peer schedule.
	ErrUnknownAuthor = newRuleError("ErrUnknownAuthor")

	// ErrBadSignature indicates the author's signature over the digest does not verify.
	ErrBadSignature = newRuleError("ErrBadSignature")

	// ErrDigestMismatch indicates the digest is not the hash of the body.
	ErrDigestMismatch = newRuleError("ErrDigestMismatch")

	// ErrUnsortedIncludes indicates includes are not sorted by peer or list a peer twice.
	ErrUnsortedIncludes = newRuleError("ErrUnsortedIncludes")

	// ErrUnsortedWitness indicates witness is not sorted by peer or lists a peer twice.
	ErrUnsortedWitness = newRuleError("ErrUnsortedWitness")

	// ErrUnsortedEvidence indicates evidence is not sorted by peer or lists a peer twice.
	ErrUnsortedEvidence = newRuleError("ErrUnsortedEvidence")

	// ErrUnknownPeerReferenced indicates includes, witness or evidence reference
	// a peer outside the schedule.
	ErrUnknownPeerReferenced = newRuleError("ErrUnknownPeerReferenced")

	// ErrNoIncludes indicates a non genesis point includes nothing.
	ErrNoIncludes = newRuleError("ErrNoIncludes")

	// ErrRoundTooLow indicates the round is at or below genesis while the
	// point is not the genesis point.
	ErrRoundTooLow = newRuleError("ErrRoundTooLow")

	// ErrRoundTooFarAhead indicates the round is further ahead of the
	// local DAG than points are accepted for.
	ErrRoundTooFarAhead = newRuleError("ErrRoundTooFarAhead")

	// ErrBadGenesis indicates a point at the genesis round that differs from genesis.
	ErrBadGenesis = newRuleError("ErrBadGenesis")

	// ErrBadGenesisSuccessor indicates a point right after genesis that does
	// not include and anchor exactly the genesis point.
	ErrBadGenesisSuccessor = newRuleError("ErrBadGenesisSuccessor")

	// ErrTimeBeforeAnchorTime indicates the point time is earlier than its anchor time.
	ErrTimeBeforeAnchorTime = newRuleError("ErrTimeBeforeAnchorTime")

	// ErrTimeTooMuchInTheFuture indicates that the point time is too far in the future.
	ErrTimeTooMuchInTheFuture = newRuleError("ErrTimeTooMuchInTheFuture")

	// ErrTimeNotIncreasing indicates the point time is not greater than the
	// time of the author's previous point.
	ErrTimeNotIncreasing = newRuleError("ErrTimeNotIncreasing")

	// ErrEvidenceWithoutPrevPoint indicates evidence is present while the author
	// has no previous point to attest.
	ErrEvidenceWithoutPrevPoint = newRuleError("ErrEvidenceWithoutPrevPoint")

	// ErrEvidenceFromAuthor indicates the author signed its own evidence.
	ErrEvidenceFromAuthor = newRuleError("ErrEvidenceFromAuthor")

	// ErrBadEvidenceSignature indicates an evidence signature does not verify.
	ErrBadEvidenceSignature = newRuleError("ErrBadEvidenceSignature")

	// ErrPayloadTooLarge indicates the payload exceeds the configured limits.
	ErrPayloadTooLarge = newRuleError("ErrPayloadTooLarge")

	// ErrMalformedLink indicates an anchor link whose shape is illegal for the point.
	ErrMalformedLink = newRuleError("ErrMalformedLink")

	// ErrDanglingLink indicates an anchor link that does not resolve to a
	// point reachable through includes or witness.
	ErrDanglingLink = newRuleError("ErrDanglingLink")

	// ErrNotAnchorCandidate indicates an anchor link that targets a point
	// that cannot be an anchor.
	ErrNotAnchorCandidate = newRuleError("ErrNotAnchorCandidate")

	// ErrProofAfterTrigger indicates the proven anchor is newer than the triggered one.
	ErrProofAfterTrigger = newRuleError("ErrProofAfterTrigger")

	// ErrAnchorTimeMismatch indicates anchor_time differs from the time of the proven anchor.
	ErrAnchorTimeMismatch = newRuleError("ErrAnchorTimeMismatch")

	// ErrAnchorRegression indicates an anchor link that targets an older
	// anchor than the author's previous point did.
	ErrAnchorRegression = newRuleError("ErrAnchorRegression")

	// ErrInvalidDependency indicates a referenced point is known to be invalid.
	ErrInvalidDependency = newRuleError("ErrInvalidDependency")
)

// RuleError identifies a rule violation. The caller can use type assertions
// to determine if a failure was specifically due to a rule violation.
type RuleError struct {
	message string
	inner   error
}

func (e RuleError) Error() string {
	if e.inner != nil {
		return e.message + ": " + e.inner.Error()
	}
	return e.message
}

// Unwrap satisfies the errors.Unwrap interface
func (e RuleError) Unwrap() error {
	return e.inner
}

// Cause satisfies the github.com/pkg/errors.Cause interface
func (e RuleError) Cause() error {
	return e.inner
}

func newRuleError(message string) RuleError {
	return RuleError{message: message, inner: nil}
}

// ErrMissingDependencies indicates a point references points that are not yet known locally.
type ErrMissingDependencies struct {
	MissingIDs []externalapi.PointID
}

func (e ErrMissingDependencies) Error() string {
	return fmt.Sprintf("missing the following points: %v", e.MissingIDs)
}

// NewErrMissingDependencies creates a new ErrMissingDependencies error wrapped in a RuleError
func NewErrMissingDependencies(missingIDs []externalapi.PointID) error {
	return errors.WithStack(RuleError{
		message: "ErrMissingDependencies",
		inner:   ErrMissingDependencies{missingIDs},
	})
}
