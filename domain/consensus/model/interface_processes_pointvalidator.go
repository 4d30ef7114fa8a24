package model

import "github.com/pointdag/pointdagd/domain/consensus/model/externalapi"

// PointValidator checks points against the DAG rules.
type PointValidator interface {
	ValidateIntegrity(point *externalapi.Point) error
	ValidateWellFormed(point *externalapi.Point) error
	ValidateDependencies(point *externalapi.Point) ValidationResult
	Validate(point *externalapi.Point) ValidationResult
}
