// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vessel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSwitchingFunction(t *testing.T) {
	sf, err := ParseSwitchingFunction("{RATIONAL R_0=0.5 D_0=0.1 NN=8}")
	require.NoError(t, err)
	assert.Equal(t, Rational, sf.Kind)
	assert.Equal(t, 0.5, sf.R0)
	assert.Equal(t, 0.1, sf.D0)
	assert.Equal(t, 8, sf.NN)
	assert.Equal(t, 16, sf.MM)
	assert.True(t, math.IsInf(sf.DMax, 1))
	assert.Equal(t, "RATIONAL R_0=0.5 D_0=0.1 NN=8 MM=16", sf.String())

	sf, err = ParseSwitchingFunction("exp r_0=2 d_max=3")
	require.NoError(t, err)
	assert.Equal(t, Exponential, sf.Kind)
	assert.Equal(t, "EXP R_0=2 D_MAX=3", sf.String())

	_, err = ParseSwitchingFunction("R_0=1 EXTRA=2")
	assert.Error(t, err)
}

func TestSwitchingFunction_Shape(t *testing.T) {
	sf, err := NewRational(1, 6, 0)
	require.NoError(t, err)

	s, ds := sf.Calculate(-0.5)
	assert.Equal(t, 1.0, s)
	assert.Equal(t, 0.0, ds)

	s, _ = sf.Calculate(1)
	assert.InDelta(t, 0.5, s, 1e-12)

	sf.DMax = 2
	s, ds = sf.Calculate(2.5)
	assert.Equal(t, 0.0, s)
	assert.Equal(t, 0.0, ds)

	_, err = NewRational(1, 4, 4)
	assert.Error(t, err)
}

func TestSwitchingFunction_DerivativeMatchesFiniteDifference(t *testing.T) {
	funcs := []SwitchingFunction{
		{Kind: Rational, R0: 0.7, D0: 0.1, NN: 6, MM: 12, DMax: math.Inf(1)},
		{Kind: Rational, R0: 1.1, NN: 8, MM: 14, DMax: math.Inf(1)},
		{Kind: Exponential, R0: 0.4, D0: 0.2, DMax: math.Inf(1)},
		{Kind: Gaussian, R0: 0.9, DMax: math.Inf(1)},
	}
	const h = 1e-6
	for _, sf := range funcs {
		t.Run(sf.String(), func(t *testing.T) {
			for _, x := range []float64{0.35, 0.6, 0.95, 1.3, 2.2} {
				_, ds := sf.Calculate(x)
				plus, _ := sf.Calculate(x + h)
				minus, _ := sf.Calculate(x - h)
				assert.InDelta(t, (plus-minus)/(2*h), ds, 1e-6, "x=%v", x)
			}
		})
	}
}

func TestSwitchingFunction_RationalLimitIsContinuous(t *testing.T) {
	sf, err := NewRational(1, 6, 12)
	require.NoError(t, err)

	atOne, dAtOne := sf.Calculate(1)
	near, dNear := sf.Calculate(1 + 1e-6)
	assert.InDelta(t, near, atOne, 1e-5)
	assert.InDelta(t, dNear, dAtOne, 1e-4)
}
