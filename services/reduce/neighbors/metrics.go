// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package neighbors

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("multicolvar.neighbors")
	meter  = otel.Meter("multicolvar.neighbors")
)

var (
	rebuildLatency metric.Float64Histogram
	pairsKept      metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		rebuildLatency, err = meter.Float64Histogram(
			"reduce_neighbor_rebuild_duration_seconds",
			metric.WithDescription("Duration of neighbor list updates"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		pairsKept, err = meter.Int64Histogram(
			"reduce_neighbor_pairs",
			metric.WithDescription("Pairs kept per neighbor list update"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordUpdateMetrics(ctx context.Context, duration time.Duration, pairs int) {
	if err := initMetrics(); err != nil {
		return
	}
	rebuildLatency.Record(ctx, duration.Seconds())
	pairsKept.Record(ctx, int64(pairs))
}

func startUpdateSpan(ctx context.Context, owners, candidates int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "List.Update",
		trace.WithAttributes(
			attribute.Int("neighbors.owners", owners),
			attribute.Int("neighbors.candidates", candidates),
		),
	)
}
