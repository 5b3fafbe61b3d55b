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
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// =============================================================================
// Test Doubles
// =============================================================================

var errBoom = errors.New("boom")

// fakeSource holds one value per task. Task i has derivative 2*v on dof
// i%width, so every dof accumulates a known sum.
type fakeSource struct {
	values []float64
	width  int
	failAt int
}

func newFakeSource(values []float64, width int) *fakeSource {
	return &fakeSource{values: values, width: width, failAt: -1}
}

func randomValues(n int, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	values := make([]float64, n)
	for i := range values {
		values[i] = rng.Float64()*2 - 0.5
	}
	return values
}

func (s *fakeSource) NumberOfTasks() int       { return len(s.values) }
func (s *fakeSource) NumberOfDerivatives() int { return s.width }

func (s *fakeSource) ComputeTask(ctx context.Context, index int, task *Task) (bool, error) {
	if index == s.failAt {
		return false, errBoom
	}
	v := s.values[index]
	task.SetValue(v)
	task.AddDerivative(index%s.width, 2*v)
	return false, nil
}

func (s *fakeSource) expectedSum(tol float64) (float64, []float64) {
	derivs := make([]float64, s.width)
	var sum float64
	for i, v := range s.values {
		if math.Abs(v) <= tol {
			continue
		}
		sum += v
		derivs[i%s.width] += 2 * v
	}
	return sum, derivs
}

// skippingSource skips tasks whose magnitude is below cut.
type skippingSource struct {
	*fakeSource
	cut float64
}

func (s *skippingSource) CanSkip() bool { return true }

func (s *skippingSource) ContributionIsSmall(index int) bool {
	return math.Abs(s.values[index]) < s.cut
}

func (s *skippingSource) ComputeTask(ctx context.Context, index int, task *Task) (bool, error) {
	if s.ContributionIsSmall(index) {
		return true, nil
	}
	return s.fakeSource.ComputeTask(ctx, index, task)
}

// declaresSkipOnly claims skip capability without a weight test.
type declaresSkipOnly struct{ *fakeSource }

func (declaresSkipOnly) CanSkip() bool { return true }

// periodicNoDomain is periodic without a domain.
type periodicNoDomain struct{ *fakeSource }

func (periodicNoDomain) IsPeriodic() bool { return true }

// periodicSource reports a domain.
type periodicSource struct{ *fakeSource }

func (periodicSource) IsPeriodic() bool                   { return true }
func (periodicSource) RetrieveDomain() (float64, float64) { return -math.Pi, math.Pi }

// growingSource rebuilds on every pass listed in rebuildAt and then
// exposes next as its task values.
type growingSource struct {
	*fakeSource
	next      map[int][]float64
	rebuildAt map[int]bool
	prepared  []int
}

func (s *growingSource) Prepare(ctx context.Context, pass int) (bool, error) {
	s.prepared = append(s.prepared, pass)
	if vals, ok := s.next[pass]; ok {
		s.values = vals
	}
	return s.rebuildAt[pass], nil
}

// sumVessel adds every task value above the tolerance.
type sumVessel struct {
	label string
	width int
	out   *Value
}

func newSumVessel(opts Options) (Vessel, error) {
	label := Label(opts.Name, opts.Number)
	return &sumVessel{label: label, out: NewValue(label, 0)}, nil
}

func (v *sumVessel) Name() string   { return "SUM" }
func (v *sumVessel) Label() string  { return v.label }
func (v *sumVessel) Output() *Value { return v.out }

func (v *sumVessel) Resize(numDerivatives, numTasks int) int {
	v.width = numDerivatives
	v.out.Resize(numDerivatives)
	return 1 + numDerivatives
}

func (v *sumVessel) Calculate(task *Task, buf Slice, tol float64) (bool, error) {
	val := task.Value()
	if math.Abs(val) <= tol {
		return false, nil
	}
	buf.AddToBufferElement(0, val)
	task.ChainRule(buf, 1, 1)
	return true, nil
}

func (v *sumVessel) Finish(buf Slice, tol float64) error {
	v.out.Set(buf.Get(0))
	for i := 0; i < v.width; i++ {
		v.out.SetDerivative(i, buf.Get(1+i))
	}
	return nil
}

// badVessel writes one element past its slice.
type badVessel struct{ sumVessel }

func (v *badVessel) Calculate(task *Task, buf Slice, tol float64) (bool, error) {
	buf.AddToBufferElement(buf.Len(), 1)
	return true, nil
}

// failingVessel errors on a given task index.
type failingVessel struct {
	sumVessel
	failAt int
}

func (v *failingVessel) Calculate(task *Task, buf Slice, tol float64) (bool, error) {
	if task.Index() == v.failAt {
		return false, fmt.Errorf("vessel refused task %d", task.Index())
	}
	return v.sumVessel.Calculate(task, buf, tol)
}

func testRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("SUM", newSumVessel)
	_ = r.Register("BAD", func(opts Options) (Vessel, error) {
		return &badVessel{sumVessel{label: "bad", out: NewValue("bad", 0)}}, nil
	})
	_ = r.Register("FAILING", func(opts Options) (Vessel, error) {
		return &failingVessel{sumVessel: sumVessel{label: "failing", out: NewValue("failing", 0)}, failAt: 7}, nil
	})
	_ = r.Register("DOMAIN", func(opts Options) (Vessel, error) {
		if !opts.Periodic {
			return nil, fmt.Errorf("%w: needs a periodic source", ErrInvalidVesselInput)
		}
		v := &sumVessel{label: "domain", out: NewValue("domain", 0)}
		v.out.SetDomain(opts.DomainMin, opts.DomainMax)
		return v, nil
	})
	return r
}
