// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build debug

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentSkipper skips every task without declaring skip capability.
type silentSkipper struct{ *fakeSource }

func (silentSkipper) ComputeTask(ctx context.Context, index int, task *Task) (bool, error) {
	return true, nil
}

func TestRun_UndeclaredSkipIsContractViolation(t *testing.T) {
	e := newTestEngine(t, silentSkipper{newFakeSource(randomValues(4, 1), 1)}, Config{Workers: 1})
	_, err := e.AddVessel("SUM", "", 0)
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.ErrorIs(t, err, ErrPassAborted)
	assert.Contains(t, err.Error(), "contract violation")
}
