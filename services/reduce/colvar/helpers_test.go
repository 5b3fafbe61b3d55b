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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/multicolvar/services/reduce/engine"
	"github.com/AleutianAI/multicolvar/services/reduce/geometry"
)

// preparedSource is a task source whose coordinates are refreshed by
// Prepare.
type preparedSource interface {
	engine.TaskSource
	engine.Preparer
	Atoms() []int
}

// checkFiniteDifferences compares the analytic position derivatives of
// task index with central differences. Prepare is called with a pass that
// is not a rebuild so that the task set stays fixed.
func checkFiniteDifferences(t *testing.T, sys *System, src preparedSource, index, pass int) {
	t.Helper()
	const h = 1e-6
	ctx := context.Background()

	_, err := src.Prepare(ctx, pass)
	require.NoError(t, err)
	out, _, err := engine.Evaluate(ctx, src, index, "fd")
	require.NoError(t, err)
	analytic := out.Derivatives()

	for i, atom := range src.Atoms() {
		for k := 0; k < 3; k++ {
			var step geometry.Vector
			step[k] = h

			require.NoError(t, sys.Move(atom, step))
			_, err = src.Prepare(ctx, pass)
			require.NoError(t, err)
			plus, _, err := engine.Evaluate(ctx, src, index, "fd")
			require.NoError(t, err)

			require.NoError(t, sys.Move(atom, step.Scale(-2)))
			_, err = src.Prepare(ctx, pass)
			require.NoError(t, err)
			minus, _, err := engine.Evaluate(ctx, src, index, "fd")
			require.NoError(t, err)

			require.NoError(t, sys.Move(atom, step))

			numeric := (plus.Get() - minus.Get()) / (2 * h)
			scale := math.Max(1, math.Abs(numeric))
			assert.InDelta(t, numeric, analytic[3*i+k], 1e-5*scale, "task %d atom %d component %d", index, atom, k)
		}
	}
	_, err = src.Prepare(ctx, pass)
	require.NoError(t, err)
}
