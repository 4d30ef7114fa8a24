package model

import "fmt"

// SignOutcome is the result of asking the local peer to sign a point.
type SignOutcome uint8

// The signing outcomes.
const (
	SignSigned SignOutcome = iota
	// SignNoPoint means no point of the location is known.
	SignNoPoint
	// SignPending means the point of the location is not validated yet.
	SignPending
	// SignRefused means the location holds only invalid points or is equivocated.
	SignRefused
)

func (o SignOutcome) String() string {
	switch o {
	case SignSigned:
		return "signed"
	case SignNoPoint:
		return "noPoint"
	case SignPending:
		return "pending"
	case SignRefused:
		return "refused"
	}
	return fmt.Sprintf("SignOutcome(%d)", o)
}
