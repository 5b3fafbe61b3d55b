// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine configuration and passes.
var (
	// ErrNilSource is returned when an engine is created without a task source.
	ErrNilSource = errors.New("task source is nil")

	// ErrInvalidTolerance is returned when the tolerance is negative or NaN.
	ErrInvalidTolerance = errors.New("tolerance must be a non-negative number")

	// ErrUnknownVessel is returned when a vessel name has no registered
	// constructor.
	ErrUnknownVessel = errors.New("unknown vessel")

	// ErrDuplicateVessel is returned when a constructor is registered twice
	// under the same name.
	ErrDuplicateVessel = errors.New("vessel already registered")

	// ErrDuplicateLabel is returned when two vessels on one engine would
	// share an output label.
	ErrDuplicateLabel = errors.New("duplicate vessel label")

	// ErrNoSuchVessel is returned when looking up a label that no vessel on
	// the engine carries.
	ErrNoSuchVessel = errors.New("no such vessel")

	// ErrInvalidVesselInput is returned by constructors that cannot parse
	// their input string.
	ErrInvalidVesselInput = errors.New("invalid vessel input")

	// ErrMissingDomain is returned when a periodic source cannot report its
	// domain.
	ErrMissingDomain = errors.New("periodic source does not provide a domain")

	// ErrMissingWeightTest is returned when a source declares that it can
	// skip tasks but provides no weight test.
	ErrMissingWeightTest = errors.New("skippable source does not provide a weight test")

	// ErrDerivativeWidth is returned when derivatives are transferred into a
	// value narrower than the task.
	ErrDerivativeWidth = errors.New("derivative width mismatch")

	// ErrBufferIndexOutOfRange is reported when a vessel writes outside its
	// buffer slice.
	ErrBufferIndexOutOfRange = errors.New("buffer index out of range")

	// ErrPassAborted wraps every error that stops a pass before the vessels
	// are finished.
	ErrPassAborted = errors.New("pass aborted")

	// ErrCollectiveAborted is returned by a collective sum released by Abort.
	ErrCollectiveAborted = errors.New("collective sum aborted")

	// ErrCollectiveShape is returned when ranks contribute buffers of
	// different lengths to one collective sum.
	ErrCollectiveShape = errors.New("collective buffers differ in length")

	// ErrInvalidGroupSize is returned when a local group is created with
	// fewer than one rank.
	ErrInvalidGroupSize = errors.New("group size must be at least 1")
)

// PassError describes where a pass failed.
//
// Task is -1 when the failure is not tied to a task (collective sum,
// Finish). Vessel is empty when no vessel was involved.
type PassError struct {
	Pass   int
	Task   int
	Vessel string
	Err    error
}

// Error implements the error interface.
func (e *PassError) Error() string {
	switch {
	case e.Vessel != "" && e.Task >= 0:
		return fmt.Sprintf("pass %d: task %d: vessel %s: %v", e.Pass, e.Task, e.Vessel, e.Err)
	case e.Vessel != "":
		return fmt.Sprintf("pass %d: vessel %s: %v", e.Pass, e.Vessel, e.Err)
	case e.Task >= 0:
		return fmt.Sprintf("pass %d: task %d: %v", e.Pass, e.Task, e.Err)
	default:
		return fmt.Sprintf("pass %d: %v", e.Pass, e.Err)
	}
}

// Unwrap exposes both ErrPassAborted and the cause to errors.Is.
func (e *PassError) Unwrap() []error {
	return []error{ErrPassAborted, e.Err}
}
