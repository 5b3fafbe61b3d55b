// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package colvar provides task sources that turn a particle configuration
// into per-task geometric values for the reduction engine.
//
// Distances builds one task per pair of a neighbor-list-pruned pair list.
// SecondaryStructure builds one task per six-residue backbone window and
// scores it against an ideal reference by distance RMSD.
//
// Derivatives are laid out as 3 components per requested atom followed by
// the 9 components of the box (virial) derivative.
package colvar

import "errors"

// Sentinel errors for task sources.
var (
	// ErrAtomOutOfRange is returned when a requested atom does not exist.
	ErrAtomOutOfRange = errors.New("atom index out of range")

	// ErrCoincidentAtoms is returned when a distance task has zero length
	// and therefore no derivative.
	ErrCoincidentAtoms = errors.New("coincident atoms")

	// ErrSegmentTooShort is returned for a backbone chain with fewer than
	// 30 atoms (six residues).
	ErrSegmentTooShort = errors.New("backbone segment too short for a helix window")

	// ErrMalformedChain is returned when a chain is not made of whole
	// five-atom residues.
	ErrMalformedChain = errors.New("backbone chain is not a multiple of 5 atoms")

	// ErrEmptyGroup is returned when a pair group has no atoms.
	ErrEmptyGroup = errors.New("atom group is empty")

	// ErrReferenceSize is returned when a secondary structure reference
	// does not have one position per window atom.
	ErrReferenceSize = errors.New("reference must have 30 positions")

	// ErrNoReferencePairs is returned when the bond length excludes every
	// pair of the reference window.
	ErrNoReferencePairs = errors.New("no reference pairs beyond bond length")

	// ErrPositionCount is returned when a position update has the wrong
	// number of atoms.
	ErrPositionCount = errors.New("position count mismatch")
)

// virialSize is the number of box derivative components.
const virialSize = 9
