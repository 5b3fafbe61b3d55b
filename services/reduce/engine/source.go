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
	"fmt"
)

// TaskSource supplies the tasks an engine reduces.
//
// ComputeTask fills task with the value and derivatives of task index.
// Returning skip=true drops the task from this pass and from every pass
// until the next rebuild; only sources that implement SkipDeclarer and
// WeightTester may do that.
//
// ComputeTask is called concurrently from several workers with different
// tasks and indices.
type TaskSource interface {
	NumberOfTasks() int
	NumberOfDerivatives() int
	ComputeTask(ctx context.Context, index int, task *Task) (skip bool, err error)
}

// SkipDeclarer is implemented by sources that may skip tasks.
type SkipDeclarer interface {
	CanSkip() bool
}

// WeightTester decides whether a task's contribution is negligible.
type WeightTester interface {
	ContributionIsSmall(index int) bool
}

// PeriodicSource reports whether task values are periodic.
type PeriodicSource interface {
	IsPeriodic() bool
}

// DomainRetriever returns the periodic domain of task values.
type DomainRetriever interface {
	RetrieveDomain() (min, max float64)
}

// Preparer is implemented by sources that do per-pass work before tasks
// run, such as refreshing coordinates or rebuilding a neighbor list.
// Prepare reports whether the task index space was rebuilt, which
// re-admits every task to the next pass.
type Preparer interface {
	Prepare(ctx context.Context, pass int) (rebuilt bool, err error)
}

// Evaluate computes one task outside any engine pass and transfers its
// derivatives into a standalone Value.
//
// Outputs:
//
//	*Value - Value and derivatives of the task, labeled name.
//	bool - True if the source asked to skip the task; the value is then
//	  still returned but holds only what the source wrote.
//	error - Non-nil if the index is out of range or the source failed.
func Evaluate(ctx context.Context, src TaskSource, index int, name string) (*Value, bool, error) {
	if src == nil {
		return nil, false, ErrNilSource
	}
	if index < 0 || index >= src.NumberOfTasks() {
		return nil, false, fmt.Errorf("task %d outside [0, %d)", index, src.NumberOfTasks())
	}
	width := src.NumberOfDerivatives()
	task := NewTask(width)
	task.reset(index)
	skip, err := src.ComputeTask(ctx, index, task)
	if err != nil {
		return nil, false, fmt.Errorf("task %d: %w", index, err)
	}
	out := NewValue(name, width)
	out.Set(task.Value())
	if err := task.TransferDerivatives(out, 1); err != nil {
		return nil, false, err
	}
	return out, skip, nil
}
