// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package neighbors

import "errors"

// Sentinel errors for neighbor list operations.
var (
	// ErrEmptyList is returned when either atom list is empty.
	ErrEmptyList = errors.New("neighbor list atom lists must not be empty")

	// ErrInvalidCutoff is returned when the cutoff is not a positive number.
	ErrInvalidCutoff = errors.New("neighbor list cutoff must be positive")

	// ErrInvalidStride is returned for a negative stride.
	ErrInvalidStride = errors.New("neighbor list stride must be >= 0")

	// ErrNegativeIndex is returned when an atom index is negative.
	ErrNegativeIndex = errors.New("negative atom index")

	// ErrDuplicateIndex is returned when an atom appears twice in one list.
	ErrDuplicateIndex = errors.New("atom listed twice")

	// ErrPositionCountMismatch is returned by Update when the number of
	// positions is not len(list0)+len(list1).
	ErrPositionCountMismatch = errors.New("position count does not match the full list")

	// ErrOwnerOutOfRange is returned for an owner index outside list0.
	ErrOwnerOutOfRange = errors.New("owner index out of range")
)
