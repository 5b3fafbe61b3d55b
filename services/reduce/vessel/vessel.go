// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vessel provides the built-in reductions for the engine.
//
// Registered names:
//
//	SUM        sum of task values
//	AVERAGE    mean over the current task count (circular mean when the
//	           source is periodic)
//	LESS_THAN  sum of s(v) for a switching function s
//	MORE_THAN  sum of 1 - s(v)
//	BETWEEN    sum of a smeared window indicator over [LOWER, UPPER]
//	MIN        smooth minimum BETA / ln(sum exp(BETA / v))
//	MAX        smooth maximum BETA * ln(sum exp(v / BETA))
//
// Every vessel keeps its accumulated value in element 0 of its slice and
// the matching derivatives right after it.
package vessel

import (
	"fmt"
	"math"

	"github.com/AleutianAI/multicolvar/services/reduce/engine"
)

type builtin struct {
	name string
	ctor engine.Constructor
}

var builtins = []builtin{
	{"SUM", newSum},
	{"AVERAGE", newAverage},
	{"LESS_THAN", newLessThan},
	{"MORE_THAN", newMoreThan},
	{"BETWEEN", newBetween},
	{"MIN", newMin},
	{"MAX", newMax},
}

// Register adds every built-in vessel to r.
func Register(r *engine.Registry) error {
	for _, b := range builtins {
		if err := r.Register(b.name, b.ctor); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in vessels.
func NewRegistry() *engine.Registry {
	r := engine.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

// =============================================================================
// Shared state
// =============================================================================

// base carries what every built-in needs between Resize and Finish.
type base struct {
	name     string
	label    string
	width    int
	numTasks int
	out      *engine.Value
}

func newBase(opts engine.Options) base {
	label := engine.Label(opts.Name, opts.Number)
	return base{name: opts.Name, label: label, out: engine.NewValue(label, 0)}
}

func (b *base) Name() string          { return b.name }
func (b *base) Label() string         { return b.label }
func (b *base) Output() *engine.Value { return b.out }

func (b *base) resize(numDerivatives, numTasks int) {
	b.width = numDerivatives
	b.numTasks = numTasks
	b.out.Resize(numDerivatives)
}

// finishScaled writes scale*buf[0] and scale*buf[1:] into the output.
func (b *base) finishScaled(buf engine.Slice, scale float64) {
	b.out.Set(scale * buf.Get(0))
	for i := 0; i < b.width; i++ {
		b.out.SetDerivative(i, scale*buf.Get(1+i))
	}
}

// =============================================================================
// Function vessels
// =============================================================================

// transform maps a task value to its contribution and derivative.
type transform func(v float64) (f, df float64)

// functionVessel sums transform(v) over tasks whose contribution exceeds
// the tolerance.
type functionVessel struct {
	base
	fn    transform
	scale func(numTasks int) float64
}

func (v *functionVessel) Resize(numDerivatives, numTasks int) int {
	v.resize(numDerivatives, numTasks)
	return 1 + numDerivatives
}

func (v *functionVessel) Calculate(task *engine.Task, buf engine.Slice, tolerance float64) (bool, error) {
	f, df := v.fn(task.Value())
	if math.IsNaN(f) || math.IsNaN(df) {
		return false, fmt.Errorf("%s: non-finite contribution for task %d value %v", v.label, task.Index(), task.Value())
	}
	if math.Abs(f) <= tolerance {
		return false, nil
	}
	buf.AddToBufferElement(0, f)
	if df != 0 {
		task.ChainRule(buf, 1, df)
	}
	return true, nil
}

func (v *functionVessel) Finish(buf engine.Slice, tolerance float64) error {
	scale := 1.0
	if v.scale != nil {
		scale = v.scale(v.numTasks)
	}
	v.finishScaled(buf, scale)
	return nil
}

func identity(v float64) (float64, float64) { return v, 1 }

func newSum(opts engine.Options) (engine.Vessel, error) {
	p, err := parseParams(opts.Input)
	if err != nil {
		return nil, err
	}
	if p.kind != "" {
		return nil, fmt.Errorf("%w: SUM takes no arguments, got %q", engine.ErrInvalidVesselInput, p.kind)
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	if opts.Periodic {
		return nil, fmt.Errorf("%w: SUM of periodic values is undefined", engine.ErrInvalidVesselInput)
	}
	return &functionVessel{base: newBase(opts), fn: identity}, nil
}

func newAverage(opts engine.Options) (engine.Vessel, error) {
	p, err := parseParams(opts.Input)
	if err != nil {
		return nil, err
	}
	if p.kind != "" {
		return nil, fmt.Errorf("%w: AVERAGE takes no arguments, got %q", engine.ErrInvalidVesselInput, p.kind)
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	if opts.Periodic {
		return newCircularMean(opts)
	}
	return &functionVessel{
		base: newBase(opts),
		fn:   identity,
		scale: func(numTasks int) float64 {
			if numTasks == 0 {
				return 0
			}
			return 1 / float64(numTasks)
		},
	}, nil
}

func newLessThan(opts engine.Options) (engine.Vessel, error) {
	sf, err := parseSwitching(opts)
	if err != nil {
		return nil, err
	}
	return &functionVessel{base: newBase(opts), fn: sf.Calculate}, nil
}

func newMoreThan(opts engine.Options) (engine.Vessel, error) {
	sf, err := parseSwitching(opts)
	if err != nil {
		return nil, err
	}
	return &functionVessel{
		base: newBase(opts),
		fn: func(v float64) (float64, float64) {
			s, ds := sf.Calculate(v)
			return 1 - s, -ds
		},
	}, nil
}

func parseSwitching(opts engine.Options) (SwitchingFunction, error) {
	p, err := parseParams(opts.Input)
	if err != nil {
		return SwitchingFunction{}, err
	}
	sf, err := switchingFromParams(p)
	if err != nil {
		return sf, err
	}
	return sf, p.finish()
}

// defaultSmear is the window smearing as a fraction of the window width.
const defaultSmear = 0.5

func newBetween(opts engine.Options) (engine.Vessel, error) {
	p, err := parseParams(opts.Input)
	if err != nil {
		return nil, err
	}
	lower, err := p.requireFloat("LOWER")
	if err != nil {
		return nil, err
	}
	upper, err := p.requireFloat("UPPER")
	if err != nil {
		return nil, err
	}
	smear, err := p.float("SMEAR", defaultSmear)
	if err != nil {
		return nil, err
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	if !(upper > lower) {
		return nil, fmt.Errorf("%w: UPPER %v must exceed LOWER %v", engine.ErrInvalidVesselInput, upper, lower)
	}
	if !(smear > 0) {
		return nil, fmt.Errorf("%w: SMEAR must be positive, got %v", engine.ErrInvalidVesselInput, smear)
	}

	sigma := smear * (upper - lower)
	invSqrt2Sigma := 1 / (math.Sqrt2 * sigma)
	norm := 1 / (sigma * math.Sqrt(2*math.Pi))
	return &functionVessel{
		base: newBase(opts),
		fn: func(v float64) (float64, float64) {
			hi := (upper - v) * invSqrt2Sigma
			lo := (lower - v) * invSqrt2Sigma
			f := 0.5 * (math.Erf(hi) - math.Erf(lo))
			df := norm * (math.Exp(-lo*lo) - math.Exp(-hi*hi))
			return f, df
		},
	}, nil
}
