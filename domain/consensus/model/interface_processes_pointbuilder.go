package model

import "github.com/pointdag/pointdagd/domain/consensus/model/externalapi"

// PointBuilder builds the local peer's points from the current DAG.
type PointBuilder interface {
	Coverage(round externalapi.Round) (weight uint64, isQuorum bool)
	BuildPoint(round externalapi.Round, payload [][]byte, now externalapi.UnixTime,
		prev *externalapi.Point, evidence []externalapi.PeerSignaturePair) (*externalapi.Point, error)
}
