// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/multicolvar/services/reduce/engine"
	"github.com/AleutianAI/multicolvar/services/reduce/storage"
)

// progressEvery is the minimum spacing between progress log lines.
const progressEvery = time.Second

type runOptions struct {
	passes      int
	ranks       int
	derivatives bool
}

func newRunCmd(st *cliState) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a fixed number of passes and print the final outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPasses(cmd, st, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.passes, "passes", "n", 10, "number of passes")
	cmd.Flags().IntVar(&opts.ranks, "ranks", 1, "number of simulated ranks")
	cmd.Flags().BoolVar(&opts.derivatives, "derivatives", false, "store output derivatives with each record")
	return cmd
}

func runPasses(cmd *cobra.Command, st *cliState, opts *runOptions) error {
	if opts.passes < 1 {
		return fmt.Errorf("passes must be >= 1, got %d", opts.passes)
	}
	ctx := cmd.Context()
	logger := st.slog()

	p, err := newPipeline(st.cfg, opts.ranks, logger)
	if err != nil {
		return err
	}
	sinks, _, err := st.openSinks()
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Error("close sinks", slog.String("error", err.Error()))
		}
	}()

	limiter := rate.NewLimiter(rate.Every(progressEvery), 1)
	var (
		last    *engine.PassResult
		lastRec storage.Record
		total   time.Duration
	)
	for i := 0; i < opts.passes; i++ {
		res, rec, err := p.step(ctx, opts.derivatives)
		if err != nil {
			return fmt.Errorf("pass %d: %w", i, err)
		}
		if len(sinks) > 0 {
			if err := sinks.Write(ctx, rec); err != nil {
				return fmt.Errorf("store pass %d: %w", res.Pass, err)
			}
		}
		total += res.Duration
		last, lastRec = res, rec
		if limiter.Allow() {
			logger.Info("progress",
				slog.Int("pass", res.Pass),
				slog.Int("of", opts.passes),
				slog.Int("tasks", res.Tasks),
				slog.Int("evaluated", res.Evaluated),
				slog.Bool("rebuilt", res.Rebuilt),
			)
		}
	}

	pr := st.printer
	pr.Title("Run " + p.RunID())
	pr.KeyValues([][2]string{
		{"passes", strconv.Itoa(opts.passes)},
		{"ranks", strconv.Itoa(opts.ranks)},
		{"tasks", strconv.Itoa(last.Tasks)},
		{"evaluated", strconv.Itoa(last.Evaluated)},
		{"mean pass", (total / time.Duration(opts.passes)).String()},
	})
	pr.Table(outputHeaders, outputRows(lastRec))
	return nil
}

var outputHeaders = []string{"vessel", "value", "gradient norm"}

func outputRows(rec storage.Record) [][]string {
	rows := make([][]string, 0, len(rec.Outputs))
	for _, o := range rec.Outputs {
		rows = append(rows, []string{o.Label, formatFloat(o.Value), formatFloat(o.GradientNorm)})
	}
	return rows
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', 8, 64)
}
