package model

import (
	"fmt"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

// ValidationStatus is the outcome of validating a point.
type ValidationStatus uint8

// The validation outcomes.
const (
	ValidationValid ValidationStatus = iota
	ValidationInvalid
	// ValidationIncomplete means the point cannot be judged before the
	// points in Missing are downloaded or the points in Pending are validated.
	ValidationIncomplete
)

func (s ValidationStatus) String() string {
	switch s {
	case ValidationValid:
		return "valid"
	case ValidationInvalid:
		return "invalid"
	case ValidationIncomplete:
		return "incomplete"
	}
	return fmt.Sprintf("ValidationStatus(%d)", s)
}

// ValidationResult is the outcome of validating a point with its details.
type ValidationResult struct {
	Status  ValidationStatus
	Err     error
	Missing []externalapi.PointID
	Pending []externalapi.PointID
}

// ValidResult is the result of a valid point.
var ValidResult = ValidationResult{Status: ValidationValid}

// InvalidResult returns the result of a point that violates a rule.
func InvalidResult(err error) ValidationResult {
	return ValidationResult{Status: ValidationInvalid, Err: err}
}

// IncompleteResult returns the result of a point that cannot be judged yet.
func IncompleteResult(missing, pending []externalapi.PointID) ValidationResult {
	return ValidationResult{Status: ValidationIncomplete, Missing: missing, Pending: pending}
}

func (r ValidationResult) String() string {
	switch r.Status {
	case ValidationInvalid:
		return fmt.Sprintf("invalid: %s", r.Err)
	case ValidationIncomplete:
		return fmt.Sprintf("incomplete: missing %v, pending %v", r.Missing, r.Pending)
	}
	return r.Status.String()
}
