package externalapi

import "fmt"

// SignatureRejectionReason is the reason a peer refuses to sign a point.
type SignatureRejectionReason uint8

// The reasons a signature request is rejected.
const (
	// RejectionTooOldRound means the round left the responder's window.
	RejectionTooOldRound SignatureRejectionReason = iota
	// RejectionCannotSign means the requester's point is invalid or equivocated.
	RejectionCannotSign
	// RejectionUnknownPeer means the requester is not in the responder's schedule.
	RejectionUnknownPeer
)

func (r SignatureRejectionReason) String() string {
	switch r {
	case RejectionTooOldRound:
		return "tooOldRound"
	case RejectionCannotSign:
		return "cannotSign"
	case RejectionUnknownPeer:
		return "unknownPeer"
	}
	return fmt.Sprintf("SignatureRejectionReason(%d)", r)
}
