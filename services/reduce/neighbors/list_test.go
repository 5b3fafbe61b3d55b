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

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/multicolvar/services/reduce/geometry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		list0   []int
		list1   []int
		cutoff  float64
		stride  int
		wantErr error
	}{
		{"empty owners", nil, []int{1}, 1, 10, ErrEmptyList},
		{"empty candidates", []int{0}, []int{}, 1, 10, ErrEmptyList},
		{"zero cutoff", []int{0}, []int{1}, 0, 10, ErrInvalidCutoff},
		{"nan cutoff", []int{0}, []int{1}, math.NaN(), 10, ErrInvalidCutoff},
		{"negative stride", []int{0}, []int{1}, 1, -1, ErrInvalidStride},
		{"negative atom", []int{-1}, []int{1}, 1, 10, ErrNegativeIndex},
		{"duplicate owner", []int{2, 2}, []int{1}, 1, 10, ErrDuplicateIndex},
		{"duplicate candidate", []int{0}, []int{1, 3, 1}, 1, 10, ErrDuplicateIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.list0, tt.list1, tt.cutoff, tt.stride, WithLogger(quietLogger()))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_SmallStrideWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	l, err := New([]int{0}, []int{1}, 1, 1, WithLogger(logger))
	require.NoError(t, err)
	assert.Equal(t, 1, l.Stride())
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	_, err = New([]int{0}, []int{1}, 1, 5, WithLogger(logger))
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "level=WARN")
}

func TestNew_InitialListIsDense(t *testing.T) {
	l, err := New([]int{10, 11}, []int{20, 21, 22}, 1, 10, WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Len(t, l.Pairs(), 6)
	assert.Equal(t, []int{10, 11, 20, 21, 22}, l.RequestList())
	for owner := 0; owner < 2; owner++ {
		got, err := l.Neighbors(owner)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3, 4}, got)
	}
}

func TestUpdate_PruningRules(t *testing.T) {
	const cutoff = 1.5
	l, err := New([]int{0}, []int{1, 2, 3, 4}, cutoff, 10, WithLogger(quietLogger()))
	require.NoError(t, err)

	positions := []geometry.Vector{
		{0, 0, 0},              // owner 0
		{cutoff, 0, 0},         // exactly at cutoff: kept
		{cutoff + 1e-9, 0, 0},  // just beyond: dropped
		{0, 0, 0},              // coincident: dropped
		{0, 1, 1},              // inside: kept
	}
	request, err := l.Update(context.Background(), positions)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 4}, request)

	n, err := l.NumberOfNeighbors(0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := l.Neighbors(0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, []Pair{{Owner: 0, Neighbor: 1}, {Owner: 0, Neighbor: 2}}, l.Pairs())
}

func TestUpdate_MinimumImage(t *testing.T) {
	box, err := geometry.NewBox(10, 10, 10)
	require.NoError(t, err)
	positions := []geometry.Vector{{0.5, 5, 5}, {9.5, 5, 5}}

	periodic, err := New([]int{0}, []int{1}, 1.5, 10, WithMetric(box), WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = periodic.Update(context.Background(), positions)
	require.NoError(t, err)
	n, _ := periodic.NumberOfNeighbors(0)
	assert.Equal(t, 1, n)

	plain, err := New([]int{0}, []int{1}, 1.5, 10, WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = plain.Update(context.Background(), positions)
	require.NoError(t, err)
	n, _ = plain.NumberOfNeighbors(0)
	assert.Equal(t, 0, n)
}

func TestUpdate_PositionCountMismatch(t *testing.T) {
	l, err := New([]int{0, 1}, []int{2, 3}, 1, 10, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = l.Update(context.Background(), make([]geometry.Vector, 3))
	assert.ErrorIs(t, err, ErrPositionCountMismatch)
	assert.Len(t, l.Pairs(), 4, "failed update leaves the list unchanged")
}

func TestUpdate_SharedNeighborsAppearOnce(t *testing.T) {
	// Owners 0 and 1 both see atom 5; atom 6 is far from everyone.
	l, err := New([]int{0, 1}, []int{5, 6}, 2, 10, WithLogger(quietLogger()))
	require.NoError(t, err)

	positions := []geometry.Vector{{0, 0, 0}, {1, 0, 0}, {0.5, 0.5, 0}, {50, 0, 0}}
	request, err := l.Update(context.Background(), positions)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 5}, request)

	for owner := 0; owner < 2; owner++ {
		got, err := l.Neighbors(owner)
		require.NoError(t, err)
		assert.Equal(t, []int{2}, got)
	}
}

func TestUpdate_SelfPairsExcluded(t *testing.T) {
	atoms := []int{0, 1, 2}
	l, err := New(atoms, atoms, 5, 10, WithLogger(quietLogger()))
	require.NoError(t, err)

	pos := []geometry.Vector{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}
	request, err := l.Update(context.Background(), append(append([]geometry.Vector{}, pos...), pos...))
	require.NoError(t, err)
	assert.Equal(t, atoms, request)

	for owner := range atoms {
		n, err := l.NumberOfNeighbors(owner)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		got, err := l.Neighbors(owner)
		require.NoError(t, err)
		assert.NotContains(t, got, owner)
	}
}

func TestFullList_RoundTrip(t *testing.T) {
	list0 := []int{7, 3}
	list1 := []int{9, 4, 12, 1}
	l, err := New(list0, list1, 2, 10, WithLogger(quietLogger()))
	require.NoError(t, err)

	positions := []geometry.Vector{
		{0, 0, 0}, {10, 0, 0}, // owners
		{1, 0, 0}, {11, 0, 0}, {30, 0, 0}, {9, 0, 0},
	}
	_, err = l.Update(context.Background(), positions)
	require.NoError(t, err)

	full := l.FullList()
	assert.Equal(t, []int{7, 3, 9, 4, 12, 1}, full)
	assert.Equal(t, full, l.RequestList())

	want := map[int][]int{0: {9}, 1: {4, 1}}
	for owner, atoms := range want {
		got, err := l.Neighbors(owner)
		require.NoError(t, err)
		translated := make([]int, len(got))
		for k, pos := range got {
			translated[k] = full[pos]
		}
		assert.Equal(t, atoms, translated)
	}
}

func TestNeighbors_OwnerOutOfRange(t *testing.T) {
	l, err := New([]int{0}, []int{1}, 1, 10, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = l.Neighbors(1)
	assert.ErrorIs(t, err, ErrOwnerOutOfRange)
	_, err = l.NumberOfNeighbors(-1)
	assert.ErrorIs(t, err, ErrOwnerOutOfRange)
	assert.Equal(t, 1, l.NumberOfOwners())
	assert.Equal(t, 1, l.NumberOfCandidates())
	assert.Equal(t, 1.0, l.Cutoff())
}

func TestUpdate_NeighborCountBounded(t *testing.T) {
	list0 := []int{0, 1, 2, 3}
	list1 := []int{4, 5, 6, 7, 8, 9}
	l, err := New(list0, list1, 3, 10, WithLogger(quietLogger()))
	require.NoError(t, err)

	positions := make([]geometry.Vector, 10)
	for i := range positions {
		positions[i] = geometry.Vector{float64(i), float64(i % 3), 0}
	}
	_, err = l.Update(context.Background(), positions)
	require.NoError(t, err)
	for owner := range list0 {
		n, err := l.NumberOfNeighbors(owner)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, len(list1))
	}
}
