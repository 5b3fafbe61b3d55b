// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector_Arithmetic(t *testing.T) {
	a := Vector{1, 2, 3}
	b := Vector{4, 6, 3}

	assert.Equal(t, Vector{5, 8, 6}, a.Add(b))
	assert.Equal(t, Vector{3, 4, 0}, Delta(a, b))
	assert.Equal(t, Vector{2, 4, 6}, a.Scale(2))
	assert.InDelta(t, 5.0, Delta(a, b).Modulo(), 1e-12)
	assert.InDelta(t, 25.0, Delta(a, b).Modulo2(), 1e-12)
}

func TestNewBox_RejectsBadEdges(t *testing.T) {
	tests := []struct {
		name  string
		edges [3]float64
	}{
		{"zero", [3]float64{0, 1, 1}},
		{"negative", [3]float64{1, -2, 1}},
		{"nan", [3]float64{1, 1, math.NaN()}},
		{"inf", [3]float64{math.Inf(1), 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBox(tt.edges[0], tt.edges[1], tt.edges[2])
			assert.ErrorIs(t, err, ErrInvalidBox)
		})
	}
}

func TestBox_MinimumImage(t *testing.T) {
	box, err := NewBox(10, 10, 10)
	require.NoError(t, err)

	a := Vector{0.5, 5, 5}
	b := Vector{9.5, 5, 5}

	sep := box.Separation(a, b)
	assert.InDelta(t, -1.0, sep[0], 1e-12)
	assert.InDelta(t, 1.0, Distance(box, a, b), 1e-12)
	assert.InDelta(t, 9.0, Distance(nil, a, b), 1e-12)
	assert.InDelta(t, 9.0, Distance(Plain{}, a, b), 1e-12)
}

func TestBox_MinimumImageNeverExceedsHalfEdge(t *testing.T) {
	box, err := NewBox(3, 4, 5)
	require.NoError(t, err)
	edges := box.Edges()

	for i := 0; i < 50; i++ {
		a := Vector{float64(i) * 0.37, float64(i) * 1.13, float64(i) * -0.71}
		b := Vector{float64(i) * -2.9, float64(i) * 0.05, float64(i) * 3.3}
		sep := box.Separation(a, b)
		for k := range sep {
			assert.LessOrEqual(t, math.Abs(sep[k]), edges[k]/2+1e-9)
		}
	}
}

func TestBox_Wrap(t *testing.T) {
	box, err := NewBox(2, 2, 2)
	require.NoError(t, err)

	w := box.Wrap(Vector{-0.5, 2.5, 1})
	assert.InDelta(t, 1.5, w[0], 1e-12)
	assert.InDelta(t, 0.5, w[1], 1e-12)
	assert.InDelta(t, 1.0, w[2], 1e-12)
}
