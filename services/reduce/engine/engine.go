// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine runs task-parallel reductions with derivative propagation.
//
// A TaskSource defines N independent tasks, each producing a scalar value
// and its derivatives with respect to D degrees of freedom. Vessels fold the
// tasks into outputs through a shared reduction buffer. The Engine splits
// the tasks over workers, sums the worker buffers locally and then across
// ranks with one collective call, and finally lets every vessel finish.
//
// # Pass Lifecycle
//
//  1. Prepare the source (coordinates, neighbor list) and decide whether
//     this pass is a rebuild. A rebuild re-admits every task.
//  2. Each worker w of W visits tasks w, w+W, w+2W, ... below N, skipping
//     tasks deactivated earlier.
//  3. Local worker buffers are summed in worker order, then Communicator.Sum
//     combines ranks.
//  4. Vessels finish in registration order.
//
// Any task, vessel or collective error aborts the pass before step 4.
//
// # Skip Cache
//
// A task that no vessel kept (or that the source skipped) is not evaluated
// again until the next rebuild. Between rebuilds the outputs therefore
// lag behind tasks that have since grown above the tolerance. This is an
// approximation that the rebuild stride bounds.
//
// # Thread Safety
//
// Engine methods are safe for concurrent use; passes are serialized.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/multicolvar/internal/assert"
)

// Epsilon is the default tolerance: the machine epsilon of float64.
const Epsilon = 2.220446049250313e-16

const (
	// maxWorkers caps the local goroutine count regardless of CPU count.
	maxWorkers = 64

	// cancelCheckInterval is how many tasks a worker runs between context
	// checks.
	cancelCheckInterval = 64
)

// =============================================================================
// Configuration
// =============================================================================

// Config controls an Engine.
type Config struct {
	// Tolerance is the contribution threshold below which vessels drop a
	// task. Must be >= 0.
	Tolerance float64

	// Serial runs every task on one goroutine of this rank and skips the
	// collective sum.
	Serial bool

	// Workers is the number of local goroutines. 0 selects runtime.NumCPU().
	// Every rank of a group must use the same value.
	Workers int

	// RebuildStride re-admits every task each RebuildStride passes for
	// sources that do not implement Preparer. 0 re-admits every pass.
	RebuildStride int
}

// DefaultConfig returns a parallel configuration with machine-epsilon
// tolerance that re-admits every task on every pass.
func DefaultConfig() Config {
	return Config{Tolerance: Epsilon}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if math.IsNaN(c.Tolerance) || c.Tolerance < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTolerance, c.Tolerance)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.RebuildStride < 0 {
		return fmt.Errorf("rebuild stride must be >= 0, got %d", c.RebuildStride)
	}
	return nil
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCommunicator sets the collective layer. Nil keeps SingleProcess.
func WithCommunicator(comm Communicator) Option {
	return func(e *Engine) {
		if comm != nil {
			e.comm = comm
		}
	}
}

// PassResult summarizes one pass.
type PassResult struct {
	Pass        int
	Rebuilt     bool
	Tasks       int
	Evaluated   int
	Kept        int
	Deactivated int
	Skipped     int
	Inactive    int
	Duration    time.Duration
}

// =============================================================================
// Engine
// =============================================================================

// Engine reduces the tasks of one source through a set of vessels.
type Engine struct {
	source   TaskSource
	registry *Registry
	config   Config
	comm     Communicator
	logger   *slog.Logger
	clock    RebuildClock

	canSkip   bool
	periodic  bool
	domainMin float64
	domainMax float64

	mu             sync.Mutex
	vessels        []Vessel
	labels         map[string]int
	regions        []Region
	buffer         *Buffer
	workers        []*worker
	active         []bool
	activeSaved    []bool
	numTasks       int
	numDerivatives int
	pass           int
}

type worker struct {
	task   *Task
	buffer *Buffer
	stats  workerStats
}

type workerStats struct {
	evaluated, kept, deactivated, skipped, inactive int
}

// New creates an Engine.
//
// Description:
//
//	Validates the configuration and the source's declared capabilities.
//	A source that declares skip capability must implement WeightTester; a
//	periodic source must implement DomainRetriever.
//
// Inputs:
//
//	source - The task source. Must not be nil.
//	registry - Vessel constructors. Nil gives an empty registry.
//	config - Engine configuration.
//	opts - Logger and communicator.
//
// Outputs:
//
//	*Engine - Ready for AddVessel and Run.
//	error - ErrNilSource, ErrInvalidTolerance, ErrMissingWeightTest,
//	  ErrMissingDomain.
func New(source TaskSource, registry *Registry, config Config, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = NewRegistry()
	}

	e := &Engine{
		source:   source,
		registry: registry,
		config:   config,
		comm:     SingleProcess{},
		logger:   slog.Default(),
		clock:    RebuildClock{Stride: config.RebuildStride},
		labels:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}

	if sd, ok := source.(SkipDeclarer); ok && sd.CanSkip() {
		if _, ok := source.(WeightTester); !ok {
			return nil, ErrMissingWeightTest
		}
		e.canSkip = true
	}
	if ps, ok := source.(PeriodicSource); ok && ps.IsPeriodic() {
		dr, ok := source.(DomainRetriever)
		if !ok {
			return nil, ErrMissingDomain
		}
		e.periodic = true
		e.domainMin, e.domainMax = dr.RetrieveDomain()
	}

	e.resizeLocked()

	rank, size := e.topology()
	e.logger.Info("reduction engine configured",
		slog.Float64("tolerance", config.Tolerance),
		slog.Bool("serial", config.Serial),
		slog.Int("local_workers", e.localWorkers()),
		slog.Int("rank", rank),
		slog.Int("ranks", size),
		slog.Int("rebuild_stride", config.RebuildStride),
		slog.Bool("can_skip", e.canSkip),
		slog.Bool("periodic", e.periodic),
	)
	return e, nil
}

// AddVessel creates a vessel from the registry and appends it.
//
// Inputs:
//
//	name - Registered vessel name, e.g. "SUM".
//	input - Vessel argument string.
//	number - Label number; 0 for an unnumbered label.
//
// Outputs:
//
//	Vessel - The added vessel.
//	error - ErrUnknownVessel, ErrDuplicateLabel, or a constructor error.
func (e *Engine) AddVessel(name, input string, number int) (Vessel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.registry.Create(Options{
		Name:      name,
		Input:     input,
		Number:    number,
		Periodic:  e.periodic,
		DomainMin: e.domainMin,
		DomainMax: e.domainMax,
	})
	if err != nil {
		return nil, err
	}
	if _, ok := e.labels[v.Label()]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateLabel, v.Label())
	}
	e.labels[v.Label()] = len(e.vessels)
	e.vessels = append(e.vessels, v)
	e.resizeLocked()

	e.logger.Debug("vessel added",
		slog.String("name", v.Name()),
		slog.String("label", v.Label()),
		slog.String("input", input),
		slog.Int("buffer_start", e.regions[len(e.regions)-1].Start),
		slog.Int("buffer_size", e.regions[len(e.regions)-1].Size),
	)
	return v, nil
}

// Vessel returns the vessel with the given label.
func (e *Engine) Vessel(label string) (Vessel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.labels[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchVessel, label)
	}
	return e.vessels[i], nil
}

// Vessels returns the vessels in registration order.
func (e *Engine) Vessels() []Vessel {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Vessel, len(e.vessels))
	copy(out, e.vessels)
	return out
}

// Layout returns each vessel's buffer region in registration order.
func (e *Engine) Layout() []Region {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Region, len(e.regions))
	copy(out, e.regions)
	return out
}

// Resize re-reads N and D from the source and resizes every vessel.
func (e *Engine) Resize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resizeLocked()
}

// Pass returns the number of passes run so far.
func (e *Engine) Pass() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pass
}

// ActiveCount returns how many tasks the next pass will evaluate, before
// any rebuild.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, a := range e.active {
		if a {
			n++
		}
	}
	return n
}

// IsActive reports whether task i is currently active.
func (e *Engine) IsActive(i int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return i >= 0 && i < len(e.active) && e.active[i]
}

// ActivateAll re-admits every task.
func (e *Engine) ActivateAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activateAllLocked()
}

// Run executes one pass.
//
// Description:
//
//	See the package documentation for the pass lifecycle. On error the
//	vessels are not finished and keep the outputs of the last successful
//	pass, and the skip cache is restored to its state before the workers
//	ran. A rank that fails before the collective sum aborts its place in
//	it, so peers are released and the next pass starts a fresh collective.
//
// Outputs:
//
//	*PassResult - Counters for the pass.
//	error - A *PassError wrapping ErrPassAborted and the cause.
//
// Thread Safety: passes are serialized by the engine mutex.
func (e *Engine) Run(ctx context.Context) (*PassResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	pass := e.pass
	e.pass++

	rank, size := e.topology()
	local := e.localWorkers()
	total := size * local

	ctx, span := startPassSpan(ctx, pass, e.numTasks, total)
	defer span.End()

	collective := size > 1 && !e.config.Serial
	var restoreActive bool
	fail := func(err error) (*PassResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordPassMetrics(ctx, time.Since(start), nil, false)
		if restoreActive {
			copy(e.active, e.activeSaved)
		}
		e.logger.Error("pass aborted",
			slog.Int("pass", pass),
			slog.Int("rank", rank),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	// withdraw fails the pass before this rank reached the collective sum.
	withdraw := func(err error) (*PassResult, error) {
		if collective && e.buffer != nil && e.buffer.Len() > 0 {
			if a, ok := e.comm.(Aborter); ok {
				a.Abort(err)
			}
		}
		return fail(err)
	}

	rebuilt, err := e.prepare(ctx, pass)
	if err != nil {
		return withdraw(&PassError{Pass: pass, Task: -1, Err: fmt.Errorf("prepare: %w", err)})
	}
	if e.source.NumberOfTasks() != e.numTasks || e.source.NumberOfDerivatives() != e.numDerivatives {
		e.resizeLocked()
	}
	if rebuilt {
		e.activateAllLocked()
	}

	e.buffer.Clear()
	e.ensureWorkers(local)
	e.activeSaved = append(e.activeSaved[:0], e.active...)
	restoreActive = true

	g, gctx := errgroup.WithContext(ctx)
	for l := 0; l < local; l++ {
		w := e.workers[l]
		first := rank*local + l
		g.Go(func() error {
			return e.runWorker(gctx, pass, w, first, total)
		})
	}
	if err := g.Wait(); err != nil {
		return withdraw(err)
	}

	result := &PassResult{Pass: pass, Rebuilt: rebuilt, Tasks: e.numTasks}
	for _, w := range e.workers[:local] {
		if err := e.buffer.Accumulate(w.buffer); err != nil {
			return withdraw(&PassError{Pass: pass, Task: -1, Err: err})
		}
		result.Evaluated += w.stats.evaluated
		result.Kept += w.stats.kept
		result.Deactivated += w.stats.deactivated
		result.Skipped += w.stats.skipped
		result.Inactive += w.stats.inactive
	}

	if !e.config.Serial && e.buffer.Len() > 0 {
		if err := e.comm.Sum(ctx, e.buffer.Data()); err != nil {
			return fail(&PassError{Pass: pass, Task: -1, Err: fmt.Errorf("collective sum: %w", err)})
		}
	}

	for i, v := range e.vessels {
		if err := finishVessel(v, e.buffer.Slice(e.regions[i]), e.config.Tolerance); err != nil {
			return fail(&PassError{Pass: pass, Task: -1, Vessel: v.Label(), Err: err})
		}
	}

	result.Duration = time.Since(start)
	setPassSpanResult(span, result)
	span.SetStatus(codes.Ok, "")
	recordPassMetrics(ctx, result.Duration, result, true)

	e.logger.Debug("pass complete",
		slog.Int("pass", pass),
		slog.Bool("rebuilt", rebuilt),
		slog.Int("tasks", e.numTasks),
		slog.Int("evaluated", result.Evaluated),
		slog.Int("deactivated", result.Deactivated),
		slog.Int("skipped", result.Skipped),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// =============================================================================
// Internals
// =============================================================================

func (e *Engine) runWorker(ctx context.Context, pass int, w *worker, first, stride int) (err error) {
	current, vessel := -1, ""
	defer func() {
		if r := recover(); r != nil {
			err = &PassError{Pass: pass, Task: current, Vessel: vessel, Err: panicError(r)}
		}
	}()

	w.buffer.Clear()
	w.stats = workerStats{}
	visited := 0
	for i := first; i < e.numTasks; i += stride {
		if visited%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return &PassError{Pass: pass, Task: i, Err: err}
			}
		}
		visited++

		if !e.active[i] {
			w.stats.inactive++
			continue
		}
		current = i
		w.task.reset(i)

		skip, err := e.source.ComputeTask(ctx, i, w.task)
		if err != nil {
			return &PassError{Pass: pass, Task: i, Err: err}
		}
		if skip {
			assert.That(e.canSkip, "source skipped task %d without declaring skip capability", i)
			w.task.clear()
			e.active[i] = false
			w.stats.skipped++
			continue
		}

		w.stats.evaluated++
		keep := false
		for vi, v := range e.vessels {
			vessel = v.Label()
			contributes, err := v.Calculate(w.task, w.buffer.Slice(e.regions[vi]), e.config.Tolerance)
			if err != nil {
				return &PassError{Pass: pass, Task: i, Vessel: vessel, Err: err}
			}
			keep = keep || contributes
		}
		vessel = ""
		w.task.clear()

		if keep {
			w.stats.kept++
		} else {
			e.active[i] = false
			w.stats.deactivated++
		}
	}
	return nil
}

func finishVessel(v Vessel, buf Slice, tolerance float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return v.Finish(buf, tolerance)
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

func (e *Engine) prepare(ctx context.Context, pass int) (bool, error) {
	if p, ok := e.source.(Preparer); ok {
		return p.Prepare(ctx, pass)
	}
	return e.clock.Due(pass), nil
}

func (e *Engine) resizeLocked() {
	n := e.source.NumberOfTasks()
	d := e.source.NumberOfDerivatives()

	sizes := make([]int, len(e.vessels))
	for i, v := range e.vessels {
		sizes[i] = v.Resize(d, n)
	}
	regions, total := Layout(sizes)
	e.regions = regions
	e.buffer = NewBuffer(total)
	e.workers = nil

	if n != len(e.active) {
		e.active = make([]bool, n)
		e.activateAllLocked()
	}
	e.numTasks = n
	e.numDerivatives = d
}

func (e *Engine) ensureWorkers(local int) {
	if len(e.workers) == local {
		return
	}
	e.workers = make([]*worker, local)
	for l := range e.workers {
		e.workers[l] = &worker{
			task:   NewTask(e.numDerivatives),
			buffer: NewBuffer(e.buffer.Len()),
		}
	}
}

func (e *Engine) activateAllLocked() {
	for i := range e.active {
		e.active[i] = true
	}
}

func (e *Engine) topology() (rank, size int) {
	if e.config.Serial {
		return 0, 1
	}
	return e.comm.Rank(), e.comm.Size()
}

func (e *Engine) localWorkers() int {
	if e.config.Serial {
		return 1
	}
	n := e.config.Workers
	if n == 0 {
		n = runtime.NumCPU()
	}
	return min(max(n, 1), maxWorkers)
}
