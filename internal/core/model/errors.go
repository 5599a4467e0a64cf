package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTimeRange   = errors.New("diff to_time must not be before from_time")
	ErrMissingFromTime    = errors.New("from_time is required when diffing the default branch")
	ErrQueryNotExecuted   = errors.New("path query has not been executed")
	ErrUnknownEdgeStatus  = errors.New("unknown edge status")
	ErrNodeNotFound       = errors.New("node not found in diff")
	ErrRootNotFound       = errors.New("diff root not found")
	ErrBranchNotFound     = errors.New("branch not found")
	ErrConflictNotFound   = errors.New("conflict not found")
	ErrUnresolvedConflict = errors.New("conflict has no selected branch")
)

// PathError ties a failure to the diff path it happened on.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }
