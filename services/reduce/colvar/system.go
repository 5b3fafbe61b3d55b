// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package colvar

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/AleutianAI/multicolvar/services/reduce/geometry"
)

// CoordinateProvider returns the current positions of the given atoms, in
// the order requested.
type CoordinateProvider interface {
	Positions(ctx context.Context, atoms []int) ([]geometry.Vector, error)
}

// System is an in-memory particle configuration.
//
// Thread Safety: safe for concurrent use.
type System struct {
	mu        sync.RWMutex
	positions []geometry.Vector
	box       *geometry.Box
}

// NewSystem wraps positions and an optional periodic box. The positions
// are copied.
func NewSystem(positions []geometry.Vector, box *geometry.Box) *System {
	return &System{positions: append([]geometry.Vector(nil), positions...), box: box}
}

// RandomSystem places n atoms uniformly in the box.
func RandomSystem(n int, box *geometry.Box, rng *rand.Rand) *System {
	edges := box.Edges()
	positions := make([]geometry.Vector, n)
	for i := range positions {
		for k := range positions[i] {
			positions[i][k] = rng.Float64() * edges[k]
		}
	}
	return &System{positions: positions, box: box}
}

// NumberOfAtoms returns the atom count.
func (s *System) NumberOfAtoms() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// Box returns the periodic box, or nil.
func (s *System) Box() *geometry.Box {
	return s.box
}

// Metric returns the box when periodic and the plain metric otherwise.
func (s *System) Metric() geometry.Metric {
	if s.box != nil {
		return s.box
	}
	return geometry.Plain{}
}

// Positions implements CoordinateProvider.
func (s *System) Positions(ctx context.Context, atoms []int) ([]geometry.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]geometry.Vector, len(atoms))
	for i, a := range atoms {
		if a < 0 || a >= len(s.positions) {
			return nil, fmt.Errorf("%w: %d of %d", ErrAtomOutOfRange, a, len(s.positions))
		}
		out[i] = s.positions[a]
	}
	return out, nil
}

// SetPositions replaces every position.
func (s *System) SetPositions(positions []geometry.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(positions) != len(s.positions) {
		return fmt.Errorf("%w: got %d, want %d", ErrPositionCount, len(positions), len(s.positions))
	}
	copy(s.positions, positions)
	return nil
}

// Move displaces atom by delta, wrapping into the box when periodic.
func (s *System) Move(atom int, delta geometry.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if atom < 0 || atom >= len(s.positions) {
		return fmt.Errorf("%w: %d of %d", ErrAtomOutOfRange, atom, len(s.positions))
	}
	p := s.positions[atom].Add(delta)
	if s.box != nil {
		p = s.box.Wrap(p)
	}
	s.positions[atom] = p
	return nil
}

// RandomWalk moves every atom by a uniform step in [-step, step) per axis.
func (s *System) RandomWalk(step float64, rng *rand.Rand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.positions {
		var d geometry.Vector
		for k := range d {
			d[k] = (2*rng.Float64() - 1) * step
		}
		p := s.positions[i].Add(d)
		if s.box != nil {
			p = s.box.Wrap(p)
		}
		s.positions[i] = p
	}
}
