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
	"fmt"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement every output is written to.
const Measurement = "colvar"

// InfluxConfig configures an InfluxSink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes one point per output with tags run_id and label and
// fields value, gradient_norm and pass.
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	logger *slog.Logger
}

// NewInfluxSink creates a sink that writes synchronously to InfluxDB v2.
func NewInfluxSink(cfg InfluxConfig, logger *slog.Logger) *InfluxSink {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	logger.Info("influx sink configured",
		slog.String("influx_url", cfg.URL),
		slog.String("influx_org", cfg.Org),
		slog.String("influx_bucket", cfg.Bucket),
	)
	return &InfluxSink{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger,
	}
}

// Points converts rec into InfluxDB points.
func Points(rec Record) []*write.Point {
	points := make([]*write.Point, 0, len(rec.Outputs))
	for _, out := range rec.Outputs {
		points = append(points, influxdb2.NewPoint(
			Measurement,
			map[string]string{
				"run_id": rec.RunID,
				"label":  out.Label,
			},
			map[string]interface{}{
				"value":         out.Value,
				"gradient_norm": out.GradientNorm,
				"pass":          rec.Pass,
			},
			rec.Time,
		))
	}
	return points
}

// Write sends the points of rec.
func (s *InfluxSink) Write(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	points := Points(rec)
	if len(points) == 0 {
		return nil
	}
	if err := s.write.WritePoint(ctx, points...); err != nil {
		s.logger.Error("influx write failed",
			slog.String("run_id", rec.RunID),
			slog.Int("pass", rec.Pass),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
