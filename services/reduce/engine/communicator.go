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
	"context"
	"fmt"
	"sync"
)

// Communicator is the collective layer between engine ranks.
//
// Description:
//
//	Every rank of a distributed pass calls Sum exactly once with its local
//	buffer, even when it evaluated no tasks. On return every rank holds
//	the element-wise sum over all ranks.
type Communicator interface {
	Rank() int
	Size() int
	Sum(ctx context.Context, data []float64) error
}

// Aborter is implemented by communicators that can release ranks blocked
// in Sum. A rank that fails before its Sum calls Abort in its place, so
// the rank count of every collective stays aligned.
type Aborter interface {
	Abort(err error)
}

// SingleProcess is the communicator of a lone rank. Sum is a no-op.
type SingleProcess struct{}

// Rank returns 0.
func (SingleProcess) Rank() int { return 0 }

// Size returns 1.
func (SingleProcess) Size() int { return 1 }

// Sum leaves data unchanged.
func (SingleProcess) Sum(ctx context.Context, data []float64) error {
	return ctx.Err()
}

// =============================================================================
// LocalGroup
// =============================================================================

// LocalGroup runs a collective sum among ranks that live in one process,
// each driven by its own goroutine.
//
// Description:
//
//	Every rank numbers its collectives. Contributions to collective n are
//	stored per rank and summed in rank order once the last rank arrives,
//	so the result is identical on every rank and does not depend on
//	arrival order. A member Abort withdraws that rank from its next
//	collective: ranks waiting in it are released with ErrCollectiveAborted
//	and ranks arriving later get the same error. The following collective
//	starts clean.
//
// Thread Safety: safe for concurrent use by the group's members.
type LocalGroup struct {
	size int

	mu     sync.Mutex
	next   []int
	rounds map[int]*round
}

// round is one numbered collective.
type round struct {
	contrib [][]float64
	arrived int
	seen    int
	result  []float64
	err     error
	closed  bool
	done    chan struct{}
}

// NewLocalGroup creates a group of size ranks.
func NewLocalGroup(size int) (*LocalGroup, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGroupSize, size)
	}
	return &LocalGroup{
		size:   size,
		next:   make([]int, size),
		rounds: make(map[int]*round),
	}, nil
}

// Member returns the communicator for rank.
func (g *LocalGroup) Member(rank int) Communicator {
	return &groupMember{group: g, rank: rank}
}

// Size returns the number of ranks.
func (g *LocalGroup) Size() int {
	return g.size
}

// Abort releases every rank waiting in a collective that has not
// completed. Collectives nobody has joined yet are unaffected.
func (g *LocalGroup) Abort(cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.rounds {
		r.abortLocked(cause)
	}
}

// withdraw takes rank out of its next collective and aborts it.
func (g *LocalGroup) withdraw(rank int, cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	seq, r := g.enterLocked(rank)
	r.abortLocked(cause)
	g.leaveLocked(seq, r)
}

// enterLocked returns the next collective of rank, creating it on first use.
func (g *LocalGroup) enterLocked(rank int) (int, *round) {
	seq := g.next[rank]
	g.next[rank]++
	r, ok := g.rounds[seq]
	if !ok {
		r = &round{contrib: make([][]float64, g.size), done: make(chan struct{})}
		g.rounds[seq] = r
	}
	return seq, r
}

// leaveLocked drops the collective once every rank has passed through it.
func (g *LocalGroup) leaveLocked(seq int, r *round) {
	r.seen++
	if r.seen == g.size {
		delete(g.rounds, seq)
	}
}

func (r *round) abortLocked(cause error) {
	if r.closed {
		return
	}
	r.err = fmt.Errorf("%w: %v", ErrCollectiveAborted, cause)
	r.closed = true
	close(r.done)
}

func (g *LocalGroup) sum(ctx context.Context, rank int, data []float64) error {
	g.mu.Lock()
	seq, r := g.enterLocked(rank)
	if r.closed {
		err := r.err
		g.leaveLocked(seq, r)
		g.mu.Unlock()
		return err
	}
	for other, c := range r.contrib {
		if c != nil && len(c) != len(data) {
			err := fmt.Errorf("%w: rank %d has %d, rank %d has %d", ErrCollectiveShape, rank, len(data), other, len(c))
			r.abortLocked(err)
			g.leaveLocked(seq, r)
			g.mu.Unlock()
			return err
		}
	}
	r.contrib[rank] = append(make([]float64, 0, len(data)), data...)
	r.arrived++
	g.leaveLocked(seq, r)
	if r.arrived == g.size {
		r.result = make([]float64, len(data))
		for _, c := range r.contrib {
			for i, v := range c {
				r.result[i] += v
			}
		}
		r.closed = true
		close(r.done)
	}
	g.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		g.mu.Lock()
		r.abortLocked(ctx.Err())
		g.mu.Unlock()
	}
	if r.err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return r.err
	}
	copy(data, r.result)
	return nil
}

type groupMember struct {
	group *LocalGroup
	rank  int
}

func (m *groupMember) Rank() int { return m.rank }

func (m *groupMember) Size() int { return m.group.size }

func (m *groupMember) Sum(ctx context.Context, data []float64) error {
	if m.rank < 0 || m.rank >= m.group.size {
		return fmt.Errorf("rank %d outside group of %d", m.rank, m.group.size)
	}
	return m.group.sum(ctx, m.rank, data)
}

func (m *groupMember) Abort(err error) {
	if m.rank < 0 || m.rank >= m.group.size {
		return
	}
	m.group.withdraw(m.rank, err)
}
