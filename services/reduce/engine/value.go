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

import "math"

// Value is a named scalar output with derivatives, produced by a vessel's
// Finish or by a direct derivative transfer.
type Value struct {
	name        string
	value       float64
	derivatives []float64
	periodic    bool
	min, max    float64
}

// NewValue creates a non-periodic value with the given derivative width.
func NewValue(name string, numDerivatives int) *Value {
	v := &Value{name: name}
	v.Resize(numDerivatives)
	return v
}

// Name returns the value label.
func (v *Value) Name() string { return v.name }

// Get returns the scalar.
func (v *Value) Get() float64 { return v.value }

// Set assigns the scalar.
func (v *Value) Set(x float64) { v.value = x }

// NumberOfDerivatives returns the derivative width.
func (v *Value) NumberOfDerivatives() int { return len(v.derivatives) }

// Derivative returns derivative i.
func (v *Value) Derivative(i int) float64 { return v.derivatives[i] }

// Derivatives returns a copy of the derivative vector.
func (v *Value) Derivatives() []float64 {
	out := make([]float64, len(v.derivatives))
	copy(out, v.derivatives)
	return out
}

// SetDerivative assigns derivative i.
func (v *Value) SetDerivative(i int, d float64) { v.derivatives[i] = d }

// AddDerivative accumulates into derivative i.
func (v *Value) AddDerivative(i int, d float64) { v.derivatives[i] += d }

// ClearDerivatives zeroes every derivative.
func (v *Value) ClearDerivatives() { clear(v.derivatives) }

// Resize changes the derivative width, zeroing all derivatives.
func (v *Value) Resize(numDerivatives int) {
	if numDerivatives < 0 {
		numDerivatives = 0
	}
	if cap(v.derivatives) >= numDerivatives {
		v.derivatives = v.derivatives[:numDerivatives]
		clear(v.derivatives)
		return
	}
	v.derivatives = make([]float64, numDerivatives)
}

// GradientNorm returns the Euclidean norm of the derivatives.
func (v *Value) GradientNorm() float64 {
	var sum float64
	for _, d := range v.derivatives {
		sum += d * d
	}
	return math.Sqrt(sum)
}

// SetDomain marks the value periodic on [min, max).
func (v *Value) SetDomain(min, max float64) {
	v.periodic = true
	v.min, v.max = min, max
}

// SetNotPeriodic clears any periodic domain.
func (v *Value) SetNotPeriodic() {
	v.periodic = false
	v.min, v.max = 0, 0
}

// IsPeriodic reports whether a domain is set.
func (v *Value) IsPeriodic() bool { return v.periodic }

// Domain returns the periodic domain. Only meaningful when IsPeriodic.
func (v *Value) Domain() (min, max float64) { return v.min, v.max }
