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
	"log/slog"
	"math"

	"github.com/AleutianAI/multicolvar/services/reduce/engine"
	"github.com/AleutianAI/multicolvar/services/reduce/geometry"
)

const (
	// atomsPerResidue is the backbone atoms per residue: N, CA, CB, C, O.
	atomsPerResidue = 5

	// residuesPerWindow is the window length in residues.
	residuesPerWindow = 6

	// WindowAtoms is the number of atoms in one window.
	WindowAtoms = atomsPerResidue * residuesPerWindow

	// DefaultBondLength excludes bonded pairs from the DRMSD, in nm.
	DefaultBondLength = 0.17

	// angstrom converts reference coordinates to nm.
	angstrom = 0.1
)

// alphaHelix is the ideal alpha helix backbone in angstroms, six residues
// of N, CA, CB, C, O.
var alphaHelix = [WindowAtoms]geometry.Vector{
	{0.733, 0.519, 5.298}, {1.763, 0.810, 4.301}, {3.166, 0.543, 4.881}, {1.527, -0.045, 3.053}, {1.646, 0.436, 1.928},
	{1.180, -1.312, 3.254}, {0.924, -2.203, 2.126}, {0.650, -3.626, 2.626}, {-0.239, -1.711, 1.261}, {-0.190, -1.815, 0.032},
	{-1.280, -1.172, 1.891}, {-2.416, -0.661, 1.127}, {-3.548, -0.217, 2.056}, {-1.964, 0.529, 0.276}, {-2.364, 0.659, -0.880},
	{-1.130, 1.391, 0.856}, {-0.620, 2.565, 0.148}, {0.228, 3.439, 1.077}, {0.231, 2.129, -1.032}, {0.179, 2.733, -2.099},
	{1.028, 1.084, -0.833}, {1.872, 0.593, -1.919}, {2.850, -0.462, -1.397}, {1.020, 0.020, -3.049}, {1.317, 0.227, -4.224},
	{-0.051, -0.684, -2.696}, {-0.927, -1.261, -3.713}, {-1.933, -2.219, -3.074}, {-1.663, -0.171, -4.475}, {-1.916, -0.296, -5.673},
}

// AlphaHelixReference returns the ideal alpha helix window in nm.
func AlphaHelixReference() []geometry.Vector {
	out := make([]geometry.Vector, WindowAtoms)
	for i, v := range alphaHelix {
		out[i] = v.Scale(angstrom)
	}
	return out
}

// SecondaryStructureConfig configures a SecondaryStructure source.
type SecondaryStructureConfig struct {
	// Chains lists the backbone atoms of each chain, five per residue in
	// N, CA, CB, C, O order.
	Chains [][]int

	// Reference is the ideal window. Nil uses AlphaHelixReference.
	Reference []geometry.Vector

	// BondLength drops reference pairs at or below this distance.
	// 0 uses DefaultBondLength.
	BondLength float64

	// Stride is the number of passes between re-admissions of every
	// window. 0 re-admits on every pass.
	Stride int
}

type referencePair struct {
	i, j int
	d0   float64
}

// SecondaryStructure is a task source with one task per six-residue
// window. The value is the distance RMSD of the window against the
// reference.
//
// Thread Safety: ComputeTask is safe for concurrent use between
// Prepare calls. Prepare must not overlap a pass.
type SecondaryStructure struct {
	provider CoordinateProvider
	metric   geometry.Metric
	clock    engine.RebuildClock
	logger   *slog.Logger

	atoms     []int
	windows   []int
	pairs     []referencePair
	positions []geometry.Vector
}

// NewSecondaryStructure creates a SecondaryStructure source.
//
// Description:
//
//	For every chain of n residues, windows start at residues 0, 1, ...
//	n-6. Window atoms are the 30 consecutive backbone atoms from the
//	start residue. Requested atoms are every chain atom in chain order.
//
// Outputs:
//
//	*SecondaryStructure - The source.
//	error - ErrMalformedChain, ErrSegmentTooShort, ErrReferenceSize, or
//	  ErrEmptyGroup when there are no chains.
func NewSecondaryStructure(provider CoordinateProvider, metric geometry.Metric, config SecondaryStructureConfig, logger *slog.Logger) (*SecondaryStructure, error) {
	if len(config.Chains) == 0 {
		return nil, ErrEmptyGroup
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metric == nil {
		metric = geometry.Plain{}
	}
	reference := config.Reference
	if reference == nil {
		reference = AlphaHelixReference()
	}
	if len(reference) != WindowAtoms {
		return nil, fmt.Errorf("%w: got %d", ErrReferenceSize, len(reference))
	}
	bondLength := config.BondLength
	if bondLength == 0 {
		bondLength = DefaultBondLength
	}
	if bondLength < 0 {
		return nil, fmt.Errorf("bond length must be >= 0, got %v", bondLength)
	}

	s := &SecondaryStructure{
		provider: provider,
		metric:   metric,
		clock:    engine.RebuildClock{Stride: config.Stride},
		logger:   logger,
	}
	for c, chain := range config.Chains {
		if len(chain)%atomsPerResidue != 0 {
			return nil, fmt.Errorf("%w: chain %d has %d atoms", ErrMalformedChain, c, len(chain))
		}
		if len(chain) < WindowAtoms {
			return nil, fmt.Errorf("%w: chain %d has %d atoms", ErrSegmentTooShort, c, len(chain))
		}
		offset := len(s.atoms)
		residues := len(chain) / atomsPerResidue
		for r := 0; r+residuesPerWindow <= residues; r++ {
			s.windows = append(s.windows, offset+atomsPerResidue*r)
		}
		s.atoms = append(s.atoms, chain...)
	}

	for i := 0; i < WindowAtoms; i++ {
		for j := i + 1; j < WindowAtoms; j++ {
			d0 := geometry.Delta(reference[i], reference[j]).Modulo()
			if d0 > bondLength {
				s.pairs = append(s.pairs, referencePair{i: i, j: j, d0: d0})
			}
		}
	}
	if len(s.pairs) == 0 {
		return nil, fmt.Errorf("%w: bond length %v", ErrNoReferencePairs, bondLength)
	}

	logger.Info("secondary structure source configured",
		slog.Int("chains", len(config.Chains)),
		slog.Int("windows", len(s.windows)),
		slog.Int("reference_pairs", len(s.pairs)),
		slog.Float64("bond_length", bondLength),
		slog.Int("stride", config.Stride),
	)
	return s, nil
}

// NumberOfTasks returns the window count.
func (s *SecondaryStructure) NumberOfTasks() int {
	return len(s.windows)
}

// NumberOfDerivatives returns 3 per chain atom plus the virial.
func (s *SecondaryStructure) NumberOfDerivatives() int {
	return 3*len(s.atoms) + virialSize
}

// Atoms returns the requested atoms in derivative order.
func (s *SecondaryStructure) Atoms() []int {
	return append([]int(nil), s.atoms...)
}

// Window returns the global atom indices of window index.
func (s *SecondaryStructure) Window(index int) []int {
	start := s.windows[index]
	return append([]int(nil), s.atoms[start:start+WindowAtoms]...)
}

// Prepare fetches the chain coordinates. Every window is re-admitted on
// the clock's rebuild passes.
func (s *SecondaryStructure) Prepare(ctx context.Context, pass int) (bool, error) {
	positions, err := s.provider.Positions(ctx, s.atoms)
	if err != nil {
		return false, fmt.Errorf("chain coordinates: %w", err)
	}
	s.positions = positions
	return s.clock.Due(pass), nil
}

// ComputeTask computes the DRMSD of window index and its derivatives.
func (s *SecondaryStructure) ComputeTask(ctx context.Context, index int, task *engine.Task) (bool, error) {
	if s.positions == nil {
		return false, fmt.Errorf("secondary structure: Prepare has not run")
	}
	start := s.windows[index]
	window := s.positions[start : start+WindowAtoms]

	seps := make([]geometry.Vector, len(s.pairs))
	dists := make([]float64, len(s.pairs))
	var sum float64
	for k, p := range s.pairs {
		seps[k] = s.metric.Separation(window[p.i], window[p.j])
		dists[k] = seps[k].Modulo()
		if dists[k] == 0 {
			return false, fmt.Errorf("%w: atoms %d and %d", ErrCoincidentAtoms, s.atoms[start+p.i], s.atoms[start+p.j])
		}
		diff := dists[k] - p.d0
		sum += diff * diff
	}
	n := float64(len(s.pairs))
	value := math.Sqrt(sum / n)
	task.SetValue(value)
	if value == 0 {
		return false, nil
	}

	base := 3 * len(s.atoms)
	for k, p := range s.pairs {
		factor := (dists[k] - p.d0) / (n * value * dists[k])
		for c := 0; c < 3; c++ {
			task.AddDerivative(3*(start+p.i)+c, -factor*seps[k][c])
			task.AddDerivative(3*(start+p.j)+c, factor*seps[k][c])
		}
		addVirial(task, base, seps[k], factor)
	}
	return false, nil
}
