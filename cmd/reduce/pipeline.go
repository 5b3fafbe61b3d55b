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
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/multicolvar/services/reduce/colvar"
	"github.com/AleutianAI/multicolvar/services/reduce/config"
	"github.com/AleutianAI/multicolvar/services/reduce/engine"
	"github.com/AleutianAI/multicolvar/services/reduce/geometry"
	"github.com/AleutianAI/multicolvar/services/reduce/storage"
	"github.com/AleutianAI/multicolvar/services/reduce/vessel"
)

// seedStream is the second PCG word derived from the configured seed.
const seedStream = 0x9e3779b97f4a7c15

// rankState is one simulated rank: its own source and engine over the
// shared particle system.
type rankState struct {
	source *colvar.Distances
	engine *engine.Engine
}

// pipeline drives a random-walk particle system through the reduction
// engine, one pass per step.
//
// Thread Safety: step and inspect serialize on an internal mutex.
type pipeline struct {
	cfg    config.Config
	logger *slog.Logger
	runID  string

	mu     sync.Mutex
	system *colvar.System
	rng    *rand.Rand
	ranks  []*rankState
	steps  int
}

// newPipeline builds the system, one Distances source and engine per
// rank, and attaches the configured vessels.
//
// Inputs:
//
//	cfg - Validated configuration.
//	ranks - Number of simulated ranks sharing a LocalGroup. Must be >= 1.
//	logger - Logger for every component.
//
// Outputs:
//
//	*pipeline - Ready to step.
//	error - Non-nil if any component rejects its configuration.
func newPipeline(cfg config.Config, ranks int, logger *slog.Logger) (*pipeline, error) {
	if ranks < 1 {
		return nil, fmt.Errorf("ranks must be >= 1, got %d", ranks)
	}
	edge := cfg.System.Box
	box, err := geometry.NewBox(edge, edge, edge)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(cfg.System.Seed, cfg.System.Seed^seedStream))

	p := &pipeline{
		cfg:    cfg,
		logger: logger,
		runID:  uuid.NewString(),
		system: colvar.RandomSystem(cfg.System.Atoms, box, rng),
		rng:    rng,
	}

	var group *engine.LocalGroup
	if ranks > 1 {
		group, err = engine.NewLocalGroup(ranks)
		if err != nil {
			return nil, err
		}
	}

	registry := vessel.NewRegistry()
	for r := 0; r < ranks; r++ {
		rankLogger := logger.With(slog.Int("rank", r))
		src, err := colvar.NewDistances(p.system, p.system.Metric(), colvar.DistancesConfig{
			GroupA:     cfg.Distances.GroupA,
			GroupB:     cfg.Distances.GroupB,
			Cutoff:     cfg.Distances.Cutoff,
			Stride:     cfg.Distances.Stride,
			SkipBeyond: cfg.Distances.SkipBeyond,
		}, rankLogger)
		if err != nil {
			return nil, fmt.Errorf("distances source: %w", err)
		}

		opts := []engine.Option{engine.WithLogger(rankLogger)}
		if group != nil {
			opts = append(opts, engine.WithCommunicator(group.Member(r)))
		}
		eng, err := engine.New(src, registry, cfg.ToEngineConfig(), opts...)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		for _, v := range cfg.Vessels {
			if _, err := eng.AddVessel(v.Name, v.Input, v.Number); err != nil {
				return nil, err
			}
		}
		p.ranks = append(p.ranks, &rankState{source: src, engine: eng})
	}

	logger.Info("pipeline ready",
		slog.String("run_id", p.runID),
		slog.Int("atoms", cfg.System.Atoms),
		slog.Float64("box", edge),
		slog.Int("ranks", ranks),
		slog.Int("vessels", len(cfg.Vessels)),
	)
	return p, nil
}

// RunID returns the identifier attached to every record.
func (p *pipeline) RunID() string {
	return p.runID
}

// Vessels returns the vessels of rank 0.
func (p *pipeline) Vessels() []engine.Vessel {
	return p.ranks[0].engine.Vessels()
}

// step moves the particles (except before the first pass) and runs one
// pass on every rank.
//
// Outputs:
//
//	*engine.PassResult - The summary of rank 0.
//	storage.Record - The outputs of rank 0.
//	error - The first rank failure.
func (p *pipeline) step(ctx context.Context, withDerivatives bool) (*engine.PassResult, storage.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.steps > 0 && p.cfg.System.Step > 0 {
		p.system.RandomWalk(p.cfg.System.Step, p.rng)
	}
	p.steps++

	results := make([]*engine.PassResult, len(p.ranks))
	if len(p.ranks) == 1 {
		res, err := p.ranks[0].engine.Run(ctx)
		if err != nil {
			return nil, storage.Record{}, err
		}
		results[0] = res
	} else {
		var g errgroup.Group
		for r, rs := range p.ranks {
			g.Go(func() error {
				res, err := rs.engine.Run(ctx)
				results[r] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, storage.Record{}, err
		}
	}

	rec := storage.NewRecord(p.runID, results[0], p.ranks[0].engine.Vessels(), withDerivatives)
	return results[0], rec, nil
}

// taskReport describes one task evaluated outside a pass.
type taskReport struct {
	Task         int
	Tasks        int
	Owner        int
	Neighbor     int
	Value        float64
	GradientNorm float64
	Skipped      bool
}

// inspect refreshes the rank 0 source for the current configuration and
// evaluates one task directly.
func (p *pipeline) inspect(ctx context.Context, task int) (taskReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	src := p.ranks[0].source
	if _, err := src.Prepare(ctx, 0); err != nil {
		return taskReport{}, err
	}
	value, skipped, err := engine.Evaluate(ctx, src, task, fmt.Sprintf("task-%d", task))
	if err != nil {
		return taskReport{}, err
	}
	owner, neighbor := src.Pair(task)
	return taskReport{
		Task:         task,
		Tasks:        src.NumberOfTasks(),
		Owner:        owner,
		Neighbor:     neighbor,
		Value:        value.Get(),
		GradientNorm: value.GradientNorm(),
		Skipped:      skipped,
	}, nil
}
