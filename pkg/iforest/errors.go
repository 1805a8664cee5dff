package iforest

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the package. Callers match them with errors.Is;
// BuildError and RowError wrap them with the tree or row that failed.
var (
	ErrShapeMismatch   = errors.New("iforest: rows have inconsistent lengths or zero columns")
	ErrEmptyInput      = errors.New("iforest: input has no rows")
	ErrIndexOutOfRange = errors.New("iforest: index out of range")
	ErrNonFinite       = errors.New("iforest: NaN or Inf value")
	ErrNotFitted       = errors.New("iforest: forest has not been fitted")
	ErrInvalidConfig   = errors.New("iforest: invalid forest configuration")
	ErrCorruptModel    = errors.New("iforest: corrupt model record")
)

// BuildError reports the failure of a single tree during Fit.
type BuildError struct {
	Tree int
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("iforest: build tree %d: %v", e.Tree, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// RowError reports a row that could not be scored.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("iforest: row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
