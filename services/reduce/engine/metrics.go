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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for engine passes.
var (
	tracer = otel.Tracer("multicolvar.engine")
	meter  = otel.Meter("multicolvar.engine")
)

var (
	passLatency      metric.Float64Histogram
	tasksEvaluated   metric.Int64Counter
	tasksDeactivated metric.Int64Counter
	tasksSkipped     metric.Int64Counter
	passFailures     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		passLatency, err = meter.Float64Histogram(
			"reduce_pass_duration_seconds",
			metric.WithDescription("Duration of reduction passes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tasksEvaluated, err = meter.Int64Counter(
			"reduce_tasks_evaluated_total",
			metric.WithDescription("Tasks passed to the vessels"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tasksDeactivated, err = meter.Int64Counter(
			"reduce_tasks_deactivated_total",
			metric.WithDescription("Tasks deactivated because no vessel kept them"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tasksSkipped, err = meter.Int64Counter(
			"reduce_tasks_skipped_total",
			metric.WithDescription("Tasks skipped by the source weight test"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		passFailures, err = meter.Int64Counter(
			"reduce_pass_failures_total",
			metric.WithDescription("Passes aborted by a task, vessel or collective error"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordPassMetrics records metrics for a completed or failed pass.
func recordPassMetrics(ctx context.Context, duration time.Duration, result *PassResult, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	passLatency.Record(ctx, duration.Seconds(), attrs)
	if !success {
		passFailures.Add(ctx, 1)
		return
	}
	tasksEvaluated.Add(ctx, int64(result.Evaluated))
	tasksDeactivated.Add(ctx, int64(result.Deactivated))
	tasksSkipped.Add(ctx, int64(result.Skipped))
}

// startPassSpan creates a span for one pass.
func startPassSpan(ctx context.Context, pass, numTasks, workers int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Run",
		trace.WithAttributes(
			attribute.Int("reduce.pass", pass),
			attribute.Int("reduce.tasks", numTasks),
			attribute.Int("reduce.workers", workers),
		),
	)
}

// setPassSpanResult sets the result attributes on a pass span.
func setPassSpanResult(span trace.Span, result *PassResult) {
	span.SetAttributes(
		attribute.Bool("reduce.rebuilt", result.Rebuilt),
		attribute.Int("reduce.evaluated", result.Evaluated),
		attribute.Int("reduce.kept", result.Kept),
		attribute.Int("reduce.deactivated", result.Deactivated),
		attribute.Int("reduce.skipped", result.Skipped),
		attribute.Int("reduce.inactive", result.Inactive),
	)
}
