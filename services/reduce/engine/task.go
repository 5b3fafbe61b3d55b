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
	"fmt"

	"github.com/AleutianAI/multicolvar/internal/assert"
)

// Task is the per-worker scratch record a TaskSource fills for one task.
//
// Description:
//
//	A Task holds the scalar value of the task being evaluated and its
//	derivatives with respect to the source's degrees of freedom. The
//	derivative vector has the source's full width but only the entries a
//	source touches are visited by ChainRule, TransferDerivatives and the
//	clear that follows each task, so sparse tasks stay cheap on wide
//	sources.
//
// Thread Safety:
//
//	Not safe for concurrent use. The engine gives every worker its own Task.
type Task struct {
	index       int
	value       float64
	derivatives []float64
	touched     []int
	marked      []bool
}

// NewTask creates a scratch Task with the given derivative width.
func NewTask(numDerivatives int) *Task {
	t := &Task{index: -1}
	t.resize(numDerivatives)
	return t
}

func (t *Task) resize(numDerivatives int) {
	if numDerivatives < 0 {
		numDerivatives = 0
	}
	t.derivatives = make([]float64, numDerivatives)
	t.marked = make([]bool, numDerivatives)
	t.touched = t.touched[:0]
	t.value = 0
}

// Index returns the task index currently held, or -1.
func (t *Task) Index() int {
	return t.index
}

// Value returns the task value.
func (t *Task) Value() float64 {
	return t.value
}

// SetValue sets the task value.
func (t *Task) SetValue(v float64) {
	t.value = v
}

// NumberOfDerivatives returns the derivative width.
func (t *Task) NumberOfDerivatives() int {
	return len(t.derivatives)
}

// Derivative returns d(value)/d(dof i).
func (t *Task) Derivative(i int) float64 {
	return t.derivatives[i]
}

// AddDerivative accumulates d into derivative i.
func (t *Task) AddDerivative(i int, d float64) {
	assert.That(i >= 0 && i < len(t.derivatives), "derivative %d outside width %d", i, len(t.derivatives))
	if !t.marked[i] {
		t.marked[i] = true
		t.touched = append(t.touched, i)
	}
	t.derivatives[i] += d
}

// Touched returns the indices of the derivatives set since the last clear,
// in first-touch order. The slice is owned by the Task.
func (t *Task) Touched() []int {
	return t.touched
}

// ChainRule folds df times the task derivatives into buf starting at offset.
//
// Description:
//
//	For every touched derivative i, buf[offset+i] += df * d_i. The
//	operation only accumulates; calling it again adds again.
//
// Inputs:
//
//	buf - The calling vessel's buffer slice.
//	offset - Position in buf of derivative 0 for this output.
//	df - Derivative of the vessel's function with respect to the task value.
//
// Limitations:
//
//	offset+width must fit inside buf. Writing past the slice panics; the
//	engine reports the panic as a pass error wrapping
//	ErrBufferIndexOutOfRange.
func (t *Task) ChainRule(buf Slice, offset int, df float64) {
	for _, i := range t.touched {
		buf.AddToBufferElement(offset+i, df*t.derivatives[i])
	}
}

// TransferDerivatives accumulates df times the task derivatives directly
// into dst, bypassing any buffer.
//
// Outputs:
//
//	error - ErrDerivativeWidth if dst is narrower than the task.
func (t *Task) TransferDerivatives(dst *Value, df float64) error {
	if dst.NumberOfDerivatives() < len(t.derivatives) {
		return fmt.Errorf("%w: value %q has %d derivatives, task has %d",
			ErrDerivativeWidth, dst.Name(), dst.NumberOfDerivatives(), len(t.derivatives))
	}
	for _, i := range t.touched {
		dst.AddDerivative(i, df*t.derivatives[i])
	}
	return nil
}

// reset prepares the Task for a new index, clearing the previous value and
// touched derivatives.
func (t *Task) reset(index int) {
	t.clear()
	t.index = index
}

func (t *Task) clear() {
	for _, i := range t.touched {
		t.derivatives[i] = 0
		t.marked[i] = false
	}
	t.touched = t.touched[:0]
	t.value = 0
}
