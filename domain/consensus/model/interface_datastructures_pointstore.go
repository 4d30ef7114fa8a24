package model

import "github.com/pointdag/pointdagd/domain/consensus/model/externalapi"

// PointStore persists points and their validation state.
type PointStore interface {
	Put(point *externalapi.Point) error
	SetState(id externalapi.PointID, state PointState) error
	DeleteBelow(round externalapi.Round) error
	LoadFrom(round externalapi.Round) ([]*StoredPoint, error)
}

// StoredPoint is a point loaded from a PointStore along with its state.
type StoredPoint struct {
	Point *externalapi.Point
	State PointState
}
