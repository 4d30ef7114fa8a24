package model

import (
	"fmt"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

// EvidenceState is the progress of collecting signatures for a local point.
type EvidenceState uint8

// The evidence collection states.
const (
	EvidencePending EvidenceState = iota
	EvidenceCollecting
	EvidenceProven
	EvidenceStale
)

func (s EvidenceState) String() string {
	switch s {
	case EvidencePending:
		return "pending"
	case EvidenceCollecting:
		return "collecting"
	case EvidenceProven:
		return "proven"
	case EvidenceStale:
		return "stale"
	}
	return fmt.Sprintf("EvidenceState(%d)", s)
}

// EvidenceCollector gathers peers' signatures over the local peer's points.
type EvidenceCollector interface {
	Track(point *externalapi.Point) EvidenceState
	AddSignature(id externalapi.PointID, peer externalapi.PeerID, signature externalapi.Signature) (EvidenceState, error)
	RecordRejection(id externalapi.PointID, peer externalapi.PeerID, reason externalapi.SignatureRejectionReason)
	ShouldQuery(id externalapi.PointID, peer externalapi.PeerID) bool
	State(id externalapi.PointID) (EvidenceState, bool)
	Weight(id externalapi.PointID) uint64
	Evidence(id externalapi.PointID) []externalapi.PeerSignaturePair
	Done(id externalapi.PointID) <-chan struct{}
	Evict(belowRound externalapi.Round) []externalapi.PointID
}
