package model

import "fmt"

// PointState is the validation state of a point known to the DAG store.
type PointState uint8

// The validation states of a point.
const (
	// StatePending means the point passed the digest check and awaits validation.
	StatePending PointState = iota
	// StateValid means the point and all its dependencies are valid.
	StateValid
	// StateInvalid means the point, or one of its dependencies, violates a rule.
	StateInvalid
)

func (s PointState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	}
	return fmt.Sprintf("PointState(%d)", s)
}
