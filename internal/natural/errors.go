package natural

import (
	"errors"
	"fmt"
)

// Domain errors shared by the segment, joint and model packages.
var (
	// ErrDuplicateName indicates a segment, joint or marker registered twice.
	ErrDuplicateName = errors.New("natural: duplicate name")

	// ErrUnresolvedReference indicates a name that does not resolve to a registered item.
	ErrUnresolvedReference = errors.New("natural: unresolved reference")

	// ErrDimensionMismatch indicates a vector or matrix of unexpected size.
	ErrDimensionMismatch = errors.New("natural: dimension mismatch")

	// ErrReservedName indicates use of the reserved ground name for a segment.
	ErrReservedName = errors.New("natural: reserved name")

	// ErrIndexAssigned indicates a second index assignment on a segment or joint.
	ErrIndexAssigned = errors.New("natural: index already assigned")

	// ErrMissingChild indicates a two-segment joint evaluated without child coordinates.
	ErrMissingChild = errors.New("natural: missing child coordinates")

	// ErrNoInertia indicates dynamics requested on a segment without inertial parameters.
	ErrNoInertia = errors.New("natural: inertial parameters not provided")
)

// DuplicateNameError reports the kind and name of a duplicated item.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("natural: %s %q already exists", e.Kind, e.Name)
}

func (e *DuplicateNameError) Unwrap() error {
	return ErrDuplicateName
}

// UnresolvedReferenceError reports a name that From refers to but which is not registered.
type UnresolvedReferenceError struct {
	Kind string
	Name string
	From string
}

func (e *UnresolvedReferenceError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("natural: unknown %s %q", e.Kind, e.Name)
	}
	return fmt.Sprintf("natural: %s references unknown %s %q", e.From, e.Kind, e.Name)
}

func (e *UnresolvedReferenceError) Unwrap() error {
	return ErrUnresolvedReference
}

// DimensionMismatchError reports the expected and actual size of an input.
type DimensionMismatchError struct {
	What string
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("natural: %s has dimension %d, expected %d", e.What, e.Got, e.Want)
}

func (e *DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}

// CheckDim returns a *DimensionMismatchError when got != want.
func CheckDim(what string, want, got int) error {
	if want != got {
		return &DimensionMismatchError{What: what, Want: want, Got: got}
	}
	return nil
}
