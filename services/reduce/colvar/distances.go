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

	"github.com/AleutianAI/multicolvar/services/reduce/engine"
	"github.com/AleutianAI/multicolvar/services/reduce/geometry"
	"github.com/AleutianAI/multicolvar/services/reduce/neighbors"
)

// DistancesConfig configures a Distances source.
type DistancesConfig struct {
	// GroupA atoms own the pairs.
	GroupA []int

	// GroupB atoms are paired with every GroupA atom within the cutoff.
	GroupB []int

	// Cutoff is the neighbor list cutoff.
	Cutoff float64

	// Stride is the number of passes between neighbor list updates.
	// 0 updates on every pass.
	Stride int

	// SkipBeyond enables the weight test: pairs farther apart than this
	// are skipped until the next update. 0 disables skipping.
	SkipBeyond float64
}

// Distances is a task source with one task per neighbor pair. The value
// is the pair distance under the system metric.
//
// Thread Safety: ComputeTask is safe for concurrent use between
// Prepare calls. Prepare must not overlap a pass.
type Distances struct {
	provider   CoordinateProvider
	metric     geometry.Metric
	list       *neighbors.List
	clock      engine.RebuildClock
	skipBeyond float64
	logger     *slog.Logger

	atoms     []int
	pairs     []neighbors.Pair
	positions []geometry.Vector
}

// NewDistances creates a Distances source.
//
// Inputs:
//
//	provider - Source of coordinates.
//	metric - Separation metric. Nil measures plain distances.
//	config - Groups, cutoff, stride and weight test.
//	logger - Nil uses slog.Default().
//
// Outputs:
//
//	*Distances - Source whose initial task set pairs every GroupA atom
//	  with every GroupB atom; the first Prepare prunes it.
//	error - ErrEmptyGroup, or a neighbor list construction error.
func NewDistances(provider CoordinateProvider, metric geometry.Metric, config DistancesConfig, logger *slog.Logger) (*Distances, error) {
	if len(config.GroupA) == 0 || len(config.GroupB) == 0 {
		return nil, ErrEmptyGroup
	}
	if config.SkipBeyond < 0 {
		return nil, fmt.Errorf("skip distance must be >= 0, got %v", config.SkipBeyond)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metric == nil {
		metric = geometry.Plain{}
	}

	list, err := neighbors.New(config.GroupA, config.GroupB, config.Cutoff, config.Stride,
		neighbors.WithMetric(metric), neighbors.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("neighbor list: %w", err)
	}

	d := &Distances{
		provider:   provider,
		metric:     metric,
		list:       list,
		clock:      engine.RebuildClock{Stride: config.Stride},
		skipBeyond: config.SkipBeyond,
		logger:     logger,
		atoms:      list.RequestList(),
		pairs:      list.Pairs(),
	}
	logger.Info("distances source configured",
		slog.Int("group_a", len(config.GroupA)),
		slog.Int("group_b", len(config.GroupB)),
		slog.Float64("cutoff", config.Cutoff),
		slog.Int("stride", config.Stride),
		slog.Float64("skip_beyond", config.SkipBeyond),
	)
	return d, nil
}

// NumberOfTasks returns the current pair count.
func (d *Distances) NumberOfTasks() int {
	return len(d.pairs)
}

// NumberOfDerivatives returns 3 per requested atom plus the virial.
func (d *Distances) NumberOfDerivatives() int {
	return 3*len(d.atoms) + virialSize
}

// Atoms returns the requested atoms; derivative 3*i+k belongs to atom
// Atoms()[i], component k.
func (d *Distances) Atoms() []int {
	return append([]int(nil), d.atoms...)
}

// Pair returns the global atom indices of task index.
func (d *Distances) Pair(index int) (int, int) {
	p := d.pairs[index]
	return d.atoms[p.Owner], d.atoms[p.Neighbor]
}

// Prepare refreshes coordinates and, on rebuild passes, the neighbor list.
func (d *Distances) Prepare(ctx context.Context, pass int) (bool, error) {
	rebuild := d.clock.Due(pass)
	if rebuild {
		full := d.list.FullList()
		positions, err := d.provider.Positions(ctx, full)
		if err != nil {
			return false, fmt.Errorf("full list coordinates: %w", err)
		}
		request, err := d.list.Update(ctx, positions)
		if err != nil {
			return false, err
		}
		d.atoms = request
		d.pairs = d.list.Pairs()
		d.logger.Debug("distances neighbor list rebuilt",
			slog.Int("pass", pass),
			slog.Int("pairs", len(d.pairs)),
			slog.Int("atoms", len(d.atoms)),
		)
	}

	positions, err := d.provider.Positions(ctx, d.atoms)
	if err != nil {
		return false, fmt.Errorf("request coordinates: %w", err)
	}
	d.positions = positions
	return rebuild, nil
}

// CanSkip reports whether the weight test is enabled.
func (d *Distances) CanSkip() bool {
	return d.skipBeyond > 0
}

// ContributionIsSmall reports whether pair index is beyond SkipBeyond.
func (d *Distances) ContributionIsSmall(index int) bool {
	if d.skipBeyond <= 0 {
		return false
	}
	p := d.pairs[index]
	return d.beyondCutoff(geometry.Distance(d.metric, d.positions[p.Owner], d.positions[p.Neighbor]))
}

func (d *Distances) beyondCutoff(dist float64) bool {
	return d.skipBeyond > 0 && dist > d.skipBeyond
}

// ComputeTask computes the distance of pair index and its derivatives.
func (d *Distances) ComputeTask(ctx context.Context, index int, task *engine.Task) (bool, error) {
	if d.positions == nil {
		return false, fmt.Errorf("distances: Prepare has not run")
	}
	p := d.pairs[index]
	sep := d.metric.Separation(d.positions[p.Owner], d.positions[p.Neighbor])
	dist := sep.Modulo()
	if d.beyondCutoff(dist) {
		return true, nil
	}
	if dist == 0 {
		owner, neighbor := d.Pair(index)
		return false, fmt.Errorf("%w: atoms %d and %d", ErrCoincidentAtoms, owner, neighbor)
	}

	task.SetValue(dist)
	inv := 1 / dist
	for k := 0; k < 3; k++ {
		task.AddDerivative(3*p.Owner+k, -sep[k]*inv)
		task.AddDerivative(3*p.Neighbor+k, sep[k]*inv)
	}
	addVirial(task, 3*len(d.atoms), sep, inv)
	return false, nil
}

// addVirial accumulates -scale * sep (x) sep into the box derivatives.
func addVirial(task *engine.Task, base int, sep geometry.Vector, scale float64) {
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			task.AddDerivative(base+3*a+b, -scale*sep[a]*sep[b])
		}
	}
}
