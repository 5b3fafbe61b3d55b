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
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// Vessel Contract
// =============================================================================

// Vessel is a pluggable accumulator that folds task values into an output.
//
// Description:
//
//	The engine drives every vessel through the same lifecycle:
//
//	  1. Resize(D, N) whenever the derivative width D or task count N
//	     changes. The returned size is the vessel's share of the
//	     reduction buffer.
//	  2. Calculate(task, slice, tol) once per evaluated task on every
//	     worker. Calculate returns true when the task contributed more than
//	     tol, which keeps the task active for the next pass.
//	  3. Finish(slice, tol) once per pass, after the buffer has been summed
//	     across workers and ranks. Finish writes Output().
//
// Thread Safety:
//
//	Calculate is called concurrently from several workers with different
//	slices and tasks. It must only read vessel configuration and write
//	through the slice. Resize and Finish run on a single goroutine.
type Vessel interface {
	// Name returns the registered vessel name, such as "LESS_THAN".
	Name() string

	// Label returns the output label, unique per engine.
	Label() string

	// Resize adapts the vessel to a new derivative width and task count
	// and returns the number of buffer elements it needs.
	Resize(numDerivatives, numTasks int) int

	// Calculate folds one task into the vessel's slice.
	Calculate(task *Task, buf Slice, tolerance float64) (bool, error)

	// Finish turns the reduced slice into the output value.
	Finish(buf Slice, tolerance float64) error

	// Output returns the value written by the last successful Finish.
	Output() *Value
}

// Options is what a vessel constructor receives.
type Options struct {
	// Name is the registered vessel name.
	Name string

	// Input is the free-form argument string, e.g. "RATIONAL R_0=0.5".
	Input string

	// Number distinguishes several vessels of one kind; 0 means unnumbered.
	Number int

	// Periodic reports whether task values live on a periodic domain.
	Periodic bool

	// DomainMin and DomainMax bound the periodic domain.
	DomainMin, DomainMax float64
}

// Label derives an output label from a vessel name and number, e.g.
// ("LESS_THAN", 1) becomes "lessthan-1".
func Label(name string, number int) string {
	base := strings.ToLower(strings.ReplaceAll(name, "_", ""))
	if number > 0 {
		return fmt.Sprintf("%s-%d", base, number)
	}
	return base
}

// Constructor builds a vessel from its options.
type Constructor func(opts Options) (Vessel, error)

// =============================================================================
// Registry
// =============================================================================

// Registry maps vessel names to constructors.
//
// Thread Safety: safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under name.
//
// Outputs:
//
//	error - ErrDuplicateVessel if the name is taken.
func (r *Registry) Register(name string, c Constructor) error {
	key := strings.ToUpper(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.constructors[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateVessel, key)
	}
	r.constructors[key] = c
	return nil
}

// Create builds the vessel registered under opts.Name.
//
// Outputs:
//
//	Vessel - The new vessel.
//	error - ErrUnknownVessel, or the constructor's error.
func (r *Registry) Create(opts Options) (Vessel, error) {
	opts.Name = strings.ToUpper(opts.Name)
	r.mu.RLock()
	c, ok := r.constructors[opts.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVessel, opts.Name)
	}
	v, err := c(opts)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", opts.Name, err)
	}
	return v, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[strings.ToUpper(name)]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
