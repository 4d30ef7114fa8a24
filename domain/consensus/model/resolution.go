package model

import (
	"fmt"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

// ResolutionStatus is the outcome of resolving a link.
type ResolutionStatus uint8

// The resolution outcomes.
const (
	// Resolved means the link designates ID.
	Resolved ResolutionStatus = iota
	// Unresolved means some points needed to decide are not known locally.
	Unresolved
	// Invalid means the link is inconsistent with the points it reaches.
	Invalid
)

func (s ResolutionStatus) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Unresolved:
		return "unresolved"
	case Invalid:
		return "invalid"
	}
	return fmt.Sprintf("ResolutionStatus(%d)", s)
}

// Resolution is the result of resolving a link. Missing is set for
// Unresolved results and Err for Invalid ones.
type Resolution struct {
	Status  ResolutionStatus
	ID      externalapi.PointID
	Missing []externalapi.PointID
	Err     error
}

func (r Resolution) String() string {
	switch r.Status {
	case Resolved:
		return fmt.Sprintf("resolved(%s)", r.ID)
	case Unresolved:
		return fmt.Sprintf("unresolved(missing %v)", r.Missing)
	}
	return fmt.Sprintf("invalid(%s)", r.Err)
}
