package model

import "errors"

var (
	// ErrNotFound means the record is absent or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the input was rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrUpstreamUnavailable means an external generation or synthesis call failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrConflict means the record changed state underneath the caller.
	ErrConflict = errors.New("conflict")
)
