// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/multicolvar/services/reduce/engine"
)

var (
	// ErrNotFound is returned when no record exists for a run and pass.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord is returned for a record that cannot be keyed.
	ErrInvalidRecord = errors.New("invalid record")
)

// Output is the finished value of one vessel.
type Output struct {
	Label        string    `json:"label"`
	Value        float64   `json:"value"`
	GradientNorm float64   `json:"gradient_norm"`
	Derivatives  []float64 `json:"derivatives,omitempty"`
}

// Record holds the outputs of one pass.
type Record struct {
	RunID     string    `json:"run_id"`
	Pass      int       `json:"pass"`
	Time      time.Time `json:"time"`
	Tasks     int       `json:"tasks"`
	Evaluated int       `json:"evaluated"`
	Rebuilt   bool      `json:"rebuilt"`
	Outputs   []Output  `json:"outputs"`
}

// Validate checks that the record can be stored.
func (r Record) Validate() error {
	if r.RunID == "" || strings.Contains(r.RunID, "/") {
		return fmt.Errorf("%w: run id %q", ErrInvalidRecord, r.RunID)
	}
	if r.Pass < 0 {
		return fmt.Errorf("%w: pass %d", ErrInvalidRecord, r.Pass)
	}
	return nil
}

// NewRecord captures the outputs of vessels after a pass.
//
// Inputs:
//
//	runID - Run identifier.
//	result - The pass summary from engine.Run.
//	vessels - The engine's vessels, in layout order.
//	withDerivatives - Copy full derivative vectors into the record.
func NewRecord(runID string, result *engine.PassResult, vessels []engine.Vessel, withDerivatives bool) Record {
	rec := Record{
		RunID:     runID,
		Pass:      result.Pass,
		Time:      time.Now().UTC(),
		Tasks:     result.Tasks,
		Evaluated: result.Evaluated,
		Rebuilt:   result.Rebuilt,
		Outputs:   make([]Output, 0, len(vessels)),
	}
	for _, v := range vessels {
		value := v.Output()
		out := Output{
			Label:        v.Label(),
			Value:        value.Get(),
			GradientNorm: value.GradientNorm(),
		}
		if withDerivatives {
			out.Derivatives = value.Derivatives()
		}
		rec.Outputs = append(rec.Outputs, out)
	}
	return rec
}

// Sink receives pass records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

// MultiSink writes every record to each of its sinks.
type MultiSink []Sink

// Write writes rec to every sink and joins their errors.
func (m MultiSink) Write(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
