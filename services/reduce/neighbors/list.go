// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package neighbors maintains a cutoff-pruned pair list between two atom
// groups.
//
// Atoms of list0 are owners; atoms of list1 are candidates. Until the first
// Update every owner is paired with every candidate. Update keeps the pairs
// whose separation d satisfies 0 < d <= cutoff and returns the compacted
// request list: the owners followed by the atoms they kept. Neighbor
// positions reported afterwards refer to that request list.
//
// The list never decides on its own when to update. Callers track the
// stride, typically through engine.RebuildClock.
//
// # Thread Safety
//
// A List is not safe for concurrent mutation. Concurrent reads between
// updates are safe.
package neighbors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/multicolvar/services/reduce/geometry"
)

// Pair is an owner and one of its neighbors, as positions in the current
// request list.
type Pair struct {
	Owner    int
	Neighbor int
}

// Option configures a List.
type Option func(*List)

// WithMetric measures separations with m, e.g. a periodic geometry.Box.
func WithMetric(m geometry.Metric) Option {
	return func(l *List) {
		l.metric = m
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *List) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// List is a cutoff neighbor list.
type List struct {
	list0  []int
	list1  []int
	cutoff float64
	stride int
	metric geometry.Metric
	logger *slog.Logger

	// neighbors[i] holds indices into list1 kept for owner i.
	neighbors [][]int
	request   []int
	index     []int
}

// New creates a neighbor list with every owner paired to every candidate.
//
// Inputs:
//
//	list0 - Owner atom indices. Must be non-empty and distinct.
//	list1 - Candidate atom indices. Must be non-empty and distinct. May
//	  overlap list0; self pairs are dropped at the first Update.
//	cutoff - Inclusive pruning distance. Must be > 0.
//	stride - Passes between updates, kept for callers. Values below 2 are
//	  accepted with a warning.
//
// Outputs:
//
//	*List - The list, with the full list as current request list.
//	error - ErrEmptyList, ErrInvalidCutoff, ErrInvalidStride,
//	  ErrNegativeIndex, ErrDuplicateIndex.
func New(list0, list1 []int, cutoff float64, stride int, opts ...Option) (*List, error) {
	if len(list0) == 0 || len(list1) == 0 {
		return nil, ErrEmptyList
	}
	if !(cutoff > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCutoff, cutoff)
	}
	if stride < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStride, stride)
	}
	if err := checkIndices("list0", list0); err != nil {
		return nil, err
	}
	if err := checkIndices("list1", list1); err != nil {
		return nil, err
	}

	l := &List{
		list0:  append([]int(nil), list0...),
		list1:  append([]int(nil), list1...),
		cutoff: cutoff,
		stride: stride,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.neighbors = make([][]int, len(l.list0))
	for i := range l.neighbors {
		all := make([]int, len(l.list1))
		for j := range all {
			all[j] = j
		}
		l.neighbors[i] = all
	}
	l.FullList()

	l.logger.Info("neighbor list created",
		slog.Int("owners", len(l.list0)),
		slog.Int("candidates", len(l.list1)),
		slog.Float64("cutoff", cutoff),
		slog.Int("stride", stride),
		slog.Bool("periodic", l.isPeriodic()),
	)
	if stride < 2 {
		l.logger.Warn("neighbor list stride below 2 updates on every pass",
			slog.Int("stride", stride),
		)
	}
	return l, nil
}

func checkIndices(name string, atoms []int) error {
	seen := make(map[int]struct{}, len(atoms))
	for _, a := range atoms {
		if a < 0 {
			return fmt.Errorf("%w: %s has %d", ErrNegativeIndex, name, a)
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("%w: %s has %d", ErrDuplicateIndex, name, a)
		}
		seen[a] = struct{}{}
	}
	return nil
}

// FullList returns list0 followed by list1 and makes it the current
// request list, so that the next Update receives positions in this order.
func (l *List) FullList() []int {
	full := make([]int, 0, len(l.list0)+len(l.list1))
	full = append(full, l.list0...)
	full = append(full, l.list1...)
	l.setRequest(full)
	return append([]int(nil), full...)
}

// Update prunes the pairs with the given positions.
//
// Description:
//
//	positions[i] is the position of list0[i] for i < len(list0) and
//	positions[len(list0)+j] that of list1[j], i.e. the FullList order.
//	A pair is kept when 0 < d <= cutoff. The returned request list holds
//	the owners in list0 order followed by every kept candidate, each atom
//	once at its first occurrence.
//
// Outputs:
//
//	[]int - The new request list.
//	error - ErrPositionCountMismatch; the list is then unchanged.
func (l *List) Update(ctx context.Context, positions []geometry.Vector) ([]int, error) {
	ctx, span := startUpdateSpan(ctx, len(l.list0), len(l.list1))
	defer span.End()
	start := time.Now()

	want := len(l.list0) + len(l.list1)
	if len(positions) != want {
		err := fmt.Errorf("%w: got %d, want %d", ErrPositionCountMismatch, len(positions), want)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	offset := len(l.list0)
	pairs := 0
	for i := range l.list0 {
		kept := l.neighbors[i][:0]
		for j := range l.list1 {
			d := geometry.Distance(l.metric, positions[i], positions[offset+j])
			if d > 0 && d <= l.cutoff {
				kept = append(kept, j)
			}
		}
		l.neighbors[i] = kept
		pairs += len(kept)
	}

	request := append(make([]int, 0, offset+pairs), l.list0...)
	seen := make(map[int]struct{}, cap(request))
	for _, a := range l.list0 {
		seen[a] = struct{}{}
	}
	for _, kept := range l.neighbors {
		for _, j := range kept {
			atom := l.list1[j]
			if _, dup := seen[atom]; dup {
				continue
			}
			seen[atom] = struct{}{}
			request = append(request, atom)
		}
	}
	l.setRequest(request)

	duration := time.Since(start)
	recordUpdateMetrics(ctx, duration, pairs)
	span.SetStatus(codes.Ok, "")
	l.logger.Debug("neighbor list updated",
		slog.Int("pairs", pairs),
		slog.Int("request_atoms", len(request)),
		slog.Duration("duration", duration),
	)
	return append([]int(nil), request...), nil
}

// Neighbors returns the neighbors of owner as positions in the current
// request list.
func (l *List) Neighbors(owner int) ([]int, error) {
	if owner < 0 || owner >= len(l.list0) {
		return nil, fmt.Errorf("%w: %d of %d", ErrOwnerOutOfRange, owner, len(l.list0))
	}
	out := make([]int, len(l.neighbors[owner]))
	for k, j := range l.neighbors[owner] {
		out[k] = l.index[l.list1[j]]
	}
	return out, nil
}

// NumberOfNeighbors returns how many candidates owner kept.
func (l *List) NumberOfNeighbors(owner int) (int, error) {
	if owner < 0 || owner >= len(l.list0) {
		return 0, fmt.Errorf("%w: %d of %d", ErrOwnerOutOfRange, owner, len(l.list0))
	}
	return len(l.neighbors[owner]), nil
}

// Pairs returns every (owner, neighbor) pair in request-list positions,
// grouped by owner in list0 order.
func (l *List) Pairs() []Pair {
	n := 0
	for _, kept := range l.neighbors {
		n += len(kept)
	}
	pairs := make([]Pair, 0, n)
	for i, kept := range l.neighbors {
		owner := l.index[l.list0[i]]
		for _, j := range kept {
			pairs = append(pairs, Pair{Owner: owner, Neighbor: l.index[l.list1[j]]})
		}
	}
	return pairs
}

// RequestList returns the current request list.
func (l *List) RequestList() []int {
	return append([]int(nil), l.request...)
}

// Stride returns the configured update stride.
func (l *List) Stride() int { return l.stride }

// Cutoff returns the pruning distance.
func (l *List) Cutoff() float64 { return l.cutoff }

// NumberOfOwners returns len(list0).
func (l *List) NumberOfOwners() int { return len(l.list0) }

// NumberOfCandidates returns len(list1).
func (l *List) NumberOfCandidates() int { return len(l.list1) }

func (l *List) isPeriodic() bool {
	_, ok := l.metric.(*geometry.Box)
	return ok
}

// setRequest stores the request list and rebuilds the reverse index,
// mapping every atom to its first position.
func (l *List) setRequest(request []int) {
	l.request = request
	maxAtom := 0
	for _, a := range l.list0 {
		maxAtom = max(maxAtom, a)
	}
	for _, a := range l.list1 {
		maxAtom = max(maxAtom, a)
	}
	if len(l.index) != maxAtom+1 {
		l.index = make([]int, maxAtom+1)
	}
	for i := range l.index {
		l.index[i] = -1
	}
	for pos := len(request) - 1; pos >= 0; pos-- {
		l.index[request[pos]] = pos
	}
}
