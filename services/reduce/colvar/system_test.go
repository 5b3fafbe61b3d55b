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
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/multicolvar/services/reduce/geometry"
)

func TestSystem_Positions(t *testing.T) {
	sys := lineSystem()
	assert.Equal(t, 4, sys.NumberOfAtoms())
	assert.Nil(t, sys.Box())
	assert.IsType(t, geometry.Plain{}, sys.Metric())

	got, err := sys.Positions(context.Background(), []int{3, 1})
	require.NoError(t, err)
	assert.Equal(t, []geometry.Vector{{0, 0.5, 0}, {1, 0, 0}}, got)

	_, err = sys.Positions(context.Background(), []int{4})
	assert.ErrorIs(t, err, ErrAtomOutOfRange)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sys.Positions(ctx, []int{0})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSystem_SetPositionsAndMove(t *testing.T) {
	sys := lineSystem()
	assert.ErrorIs(t, sys.SetPositions(make([]geometry.Vector, 2)), ErrPositionCount)
	assert.ErrorIs(t, sys.Move(7, geometry.Vector{}), ErrAtomOutOfRange)

	require.NoError(t, sys.Move(0, geometry.Vector{-1, 0, 0}))
	got, err := sys.Positions(context.Background(), []int{0})
	require.NoError(t, err)
	assert.Equal(t, geometry.Vector{-1, 0, 0}, got[0])
}

func TestSystem_PeriodicWrap(t *testing.T) {
	box, err := geometry.NewBox(2, 2, 2)
	require.NoError(t, err)
	sys := NewSystem([]geometry.Vector{{1.9, 1, 1}}, box)
	assert.Same(t, box, sys.Metric())

	require.NoError(t, sys.Move(0, geometry.Vector{0.3, 0, 0}))
	got, err := sys.Positions(context.Background(), []int{0})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got[0][0], 1e-12)
}

func TestSystem_RandomWalkStaysInBox(t *testing.T) {
	box, err := geometry.NewBox(3, 4, 5)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(1, 2))
	sys := RandomSystem(50, box, rng)
	for i := 0; i < 20; i++ {
		sys.RandomWalk(0.7, rng)
	}

	got, err := sys.Positions(context.Background(), seq(0, 50))
	require.NoError(t, err)
	edges := box.Edges()
	for _, p := range got {
		for k := range p {
			assert.GreaterOrEqual(t, p[k], 0.0)
			assert.Less(t, p[k], edges[k])
		}
	}
}
