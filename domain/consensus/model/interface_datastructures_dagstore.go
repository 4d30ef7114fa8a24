package model

import "github.com/pointdag/pointdagd/domain/consensus/model/externalapi"

// DAGStore is the windowed, round indexed set of points known locally.
type DAGStore interface {
	Insert(point *externalapi.Point) (bool, error)
	Get(id externalapi.PointID) (*externalapi.Point, bool)
	Has(id externalapi.PointID) bool
	State(id externalapi.PointID) (PointState, bool)
	SetState(id externalapi.PointID, state PointState) error
	FirstValid(round externalapi.Round, author externalapi.PeerID) (*externalapi.Point, bool)
	Versions(round externalapi.Round, author externalapi.PeerID) []*externalapi.Point
	IsEquivocated(round externalapi.Round, author externalapi.PeerID) bool
	RoundPoints(round externalapi.Round) []*externalapi.Point
	ValidPoints(round externalapi.Round) []*externalapi.Point
	SignFor(round externalapi.Round, author externalapi.PeerID,
		sign func(point *externalapi.Point) (externalapi.Signature, error)) (externalapi.Signature, error)
	EvictBelow(round externalapi.Round) []externalapi.PointID
	Bottom() externalapi.Round
	Top() externalapi.Round
	Rounds() []externalapi.Round
}
