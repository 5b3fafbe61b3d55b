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
	"errors"
	"fmt"
	"math"

	"github.com/AleutianAI/multicolvar/services/reduce/engine"
)

var (
	// ErrNonPositiveValue is returned by MIN for a task value <= 0.
	ErrNonPositiveValue = errors.New("smooth minimum needs positive values")

	// ErrOverflow is returned when an exponential weight overflows.
	ErrOverflow = errors.New("exponential weight overflows")

	// ErrUndefinedMean is returned when the periodic mean has no direction.
	ErrUndefinedMean = errors.New("mean direction undefined")
)

// defaultBeta is the smoothing parameter of MIN and MAX.
const defaultBeta = 50

// extremum is a smooth minimum or maximum.
//
// The slice holds the sum of weights w(v) and its derivatives. Finish turns
// the sum into F(sum):
//
//	MIN: w = exp(beta / v), F = beta / ln(sum)
//	MAX: w = exp(v / beta), F = beta * ln(sum)
//
// With a single task both reduce to the task value.
type extremum struct {
	base
	beta    float64
	minimum bool
}

func newMin(opts engine.Options) (engine.Vessel, error) {
	return newExtremum(opts, true)
}

func newMax(opts engine.Options) (engine.Vessel, error) {
	return newExtremum(opts, false)
}

func newExtremum(opts engine.Options, minimum bool) (engine.Vessel, error) {
	p, err := parseParams(opts.Input)
	if err != nil {
		return nil, err
	}
	beta, err := p.float("BETA", defaultBeta)
	if err != nil {
		return nil, err
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	if !(beta > 0) || math.IsInf(beta, 1) {
		return nil, fmt.Errorf("%w: BETA must be positive and finite, got %v", engine.ErrInvalidVesselInput, beta)
	}
	return &extremum{base: newBase(opts), beta: beta, minimum: minimum}, nil
}

func (v *extremum) Resize(numDerivatives, numTasks int) int {
	v.resize(numDerivatives, numTasks)
	return 1 + numDerivatives
}

func (v *extremum) Calculate(task *engine.Task, buf engine.Slice, tolerance float64) (bool, error) {
	x := task.Value()
	var w, dw float64
	if v.minimum {
		if !(x > 0) {
			return false, fmt.Errorf("%w: task %d has %v", ErrNonPositiveValue, task.Index(), x)
		}
		w = math.Exp(v.beta / x)
		dw = -v.beta * w / (x * x)
	} else {
		w = math.Exp(x / v.beta)
		dw = w / v.beta
	}
	if math.IsInf(w, 1) {
		return false, fmt.Errorf("%w: task %d value %v beta %v", ErrOverflow, task.Index(), x, v.beta)
	}
	if w <= tolerance {
		return false, nil
	}
	buf.AddToBufferElement(0, w)
	task.ChainRule(buf, 1, dw)
	return true, nil
}

func (v *extremum) Finish(buf engine.Slice, tolerance float64) error {
	sum := buf.Get(0)
	if !(sum > 0) {
		v.finishScaled(buf, 0)
		return nil
	}
	logSum := math.Log(sum)
	var f, dfds float64
	if v.minimum {
		if logSum == 0 {
			return fmt.Errorf("%s: weight sum is exactly 1", v.label)
		}
		f = v.beta / logSum
		dfds = -v.beta / (sum * logSum * logSum)
	} else {
		f = v.beta * logSum
		dfds = v.beta / sum
	}
	v.out.Set(f)
	for i := 0; i < v.width; i++ {
		v.out.SetDerivative(i, dfds*buf.Get(1+i))
	}
	return nil
}

// =============================================================================
// Circular mean
// =============================================================================

// resultantEpsilon is the per-task resultant length below which the mean
// direction is treated as undefined.
const resultantEpsilon = 1e-12

// circularMean averages periodic values as angles on the domain circle.
//
// Slice layout: [sum sin, sum cos, d(sum sin) x D, d(sum cos) x D].
type circularMean struct {
	base
	min, period float64
	k           float64
}

func newCircularMean(opts engine.Options) (engine.Vessel, error) {
	period := opts.DomainMax - opts.DomainMin
	if !(period > 0) {
		return nil, fmt.Errorf("%w: empty periodic domain [%v, %v)", engine.ErrInvalidVesselInput, opts.DomainMin, opts.DomainMax)
	}
	v := &circularMean{base: newBase(opts), min: opts.DomainMin, period: period, k: 2 * math.Pi / period}
	v.out.SetDomain(opts.DomainMin, opts.DomainMax)
	return v, nil
}

func (v *circularMean) Resize(numDerivatives, numTasks int) int {
	v.resize(numDerivatives, numTasks)
	return 2 + 2*numDerivatives
}

func (v *circularMean) Calculate(task *engine.Task, buf engine.Slice, tolerance float64) (bool, error) {
	theta := v.k * (task.Value() - v.min)
	s, c := math.Sincos(theta)
	buf.AddToBufferElement(0, s)
	buf.AddToBufferElement(1, c)
	task.ChainRule(buf, 2, c*v.k)
	task.ChainRule(buf, 2+v.width, -s*v.k)
	return true, nil
}

func (v *circularMean) Finish(buf engine.Slice, tolerance float64) error {
	s, c := buf.Get(0), buf.Get(1)
	if v.numTasks == 0 {
		v.finishScaled(buf, 0)
		return nil
	}
	r2 := s*s + c*c
	if math.Sqrt(r2) < resultantEpsilon*float64(v.numTasks) {
		return fmt.Errorf("%s: %w", v.label, ErrUndefinedMean)
	}
	mean := v.min + math.Atan2(s, c)/v.k
	if mean < v.min {
		mean += v.period
	}
	v.out.Set(mean)
	for i := 0; i < v.width; i++ {
		dTheta := (c*buf.Get(2+i) - s*buf.Get(2+v.width+i)) / r2
		v.out.SetDerivative(i, dTheta/v.k)
	}
	return nil
}
