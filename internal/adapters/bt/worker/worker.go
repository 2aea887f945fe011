// Package worker defines the workers that refresh Bradley-Terry abilities
// from the comparison log.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/scAIentist/sciblind-sub001/internal/adapters/bt/queue"
	"github.com/scAIentist/sciblind-sub001/internal/domain/bradleyterry"
	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
	"github.com/scAIentist/sciblind-sub001/pkg/logger"
	"github.com/scAIentist/sciblind-sub001/pkg/metrics"
)

// Default worker configuration constants.
const (
	// defaultWorkerCount is one: every refresh recomputes the whole model
	// from the full log, so parallel workers would only produce redundant
	// sweeps against the same store lock.
	defaultWorkerCount    = 1
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Request abstracts what workers read off the queue.
type Request = queue.Request

// Source supplies the comparison log to estimate from.
type Source interface {
	Comparisons(ctx context.Context) []model.Comparison
}

// Sink receives fitted abilities and standard errors.
type Sink interface {
	SetAbilities(ctx context.Context, abilities, standardErrors map[string]float64) int
}

// Queue defines how workers receive refresh requests.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Request
}

// Worker consumes refresh requests and re-estimates abilities.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	// It will process any remaining requests before stopping.
	Shutdown(ctx context.Context) error
}

// Stats is a snapshot of estimation activity since the pool was built.
type Stats struct {
	Runs           int  `json:"runs"`
	LastIterations int  `json:"last_iterations"`
	LastConverged  bool `json:"last_converged"`
}

// fitTracker accumulates fit outcomes across a pool's workers.
type fitTracker struct {
	runs           atomic.Int64
	lastIterations atomic.Int64
	lastConverged  atomic.Bool
}

func (t *fitTracker) record(result bradleyterry.Result) {
	t.runs.Add(1)
	t.lastIterations.Store(int64(result.Iterations))
	t.lastConverged.Store(result.Converged)
}

func (t *fitTracker) snapshot() Stats {
	return Stats{
		Runs:           int(t.runs.Load()),
		LastIterations: int(t.lastIterations.Load()),
		LastConverged:  t.lastConverged.Load(),
	}
}

// InMemoryWorker implements Worker for processing refresh requests.
type InMemoryWorker struct {
	queue   Queue
	source  Source
	sink    Sink
	tracker *fitTracker
	name    string

	// Estimator tuning; zero values defer to the estimator defaults.
	tolerance     float64
	maxIterations int

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, source Source, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		source:   source,
		sink:     sink,
		name:     "worker", // default name
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"), // will be updated by options
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	// Set up logger with worker name if not already set
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	requestChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case request, ok := <-requestChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			w.process(ctx, request)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()

	// Wait for worker to finish or context to timeout
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// stop signals the worker loop to exit. Safe to call more than once.
func (w *InMemoryWorker) stop() {
	select {
	case <-w.shutdown:
		// Already signaled
	default:
		close(w.shutdown)
	}
}

// process handles a single refresh request: snapshot the log, fit the
// model, push abilities back. Non-convergence is reported, not fatal.
func (w *InMemoryWorker) process(ctx context.Context, request Request) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordWorkerProcessingLatency(float64(latency))
	}()

	comparisons := w.source.Comparisons(ctx)
	if len(comparisons) == 0 {
		w.logger.Debug(ctx, "skipping refresh, no comparisons recorded",
			logger.String("reason", request.Reason),
		)
		return
	}

	var opts []bradleyterry.Option
	if w.tolerance > 0 {
		opts = append(opts, bradleyterry.WithTolerance(w.tolerance))
	}
	if w.maxIterations > 0 {
		opts = append(opts, bradleyterry.WithMaxIterations(w.maxIterations))
	}

	fitStart := time.Now()
	result := bradleyterry.Estimate(comparisons, opts...)
	fitLatency := time.Since(fitStart).Milliseconds()

	metrics.RecordEstimatorRun()
	metrics.RecordEstimatorRunDuration(float64(fitLatency))
	metrics.UpdateEstimatorLastIterations(result.Iterations)
	metrics.UpdateEstimatorConverged(result.Converged)
	metrics.UpdateEstimatorLastUnix(float64(time.Now().Unix()))

	if w.tracker != nil {
		w.tracker.record(result)
	}

	if !result.Converged {
		w.logger.Warn(ctx, "ability estimation did not converge",
			logger.String("reason", request.Reason),
			logger.Int("comparisons", len(comparisons)),
			logger.Int("iterations", result.Iterations),
		)
	}

	// The sink keeps standard errors on the Elo scale, matching the
	// ratings it reports them next to.
	eloErrs := make(map[string]float64, len(result.StandardErrors))
	for id, se := range result.StandardErrors {
		eloErrs[id] = bradleyterry.ErrorToEloScale(se)
	}
	applied := w.sink.SetAbilities(ctx, result.Abilities, eloErrs)

	fields := []logger.Field{
		logger.String("reason", request.Reason),
		logger.Int("comparisons", len(comparisons)),
		logger.Int("votes_at_request", request.Votes),
		logger.Int("applied", applied),
		logger.Int("iterations", result.Iterations),
		logger.Bool("converged", result.Converged),
		logger.Float64("fit_ms", float64(fitLatency)),
	}
	if !request.RequestedAt.IsZero() {
		lag := time.Since(request.RequestedAt).Milliseconds()
		fields = append(fields, logger.Float64("queue_lag_ms", float64(lag)))
	}
	w.logger.Debug(ctx, "abilities refreshed", fields...)
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	source  Source
	sink    Sink
	tracker *fitTracker

	// Shutdown control
	shutdown chan struct{}

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool. Worker options apply to every worker.
func NewPool(workerCount int, queue Queue, source Source, sink Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		source:   source,
		sink:     sink,
		tracker:  &fitTracker{},
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{}, opts...)
		workerOpts = append(workerOpts, WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(queue, source, sink, workerOpts...)
		pool.workers[i].tracker = pool.tracker
	}

	// Initialize worker metrics
	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerIdleCount(0)
	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Stats reports estimation activity for dashboards and logs.
func (p *Pool) Stats() Stats {
	return p.tracker.snapshot()
}

// Refresh re-estimates synchronously, bypassing the queue. Used for
// on-demand refreshes where the caller wants the result visible on return.
func (p *Pool) Refresh(ctx context.Context, reason string) error {
	select {
	case <-p.shutdown:
		return ErrStopped
	default:
	}

	p.workers[0].process(ctx, Request{Reason: reason, RequestedAt: time.Now()})
	return nil
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	p.signalShutdown()

	// Wait for all workers to finish
	for _, worker := range p.workers {
		select {
		case <-worker.done:
			// Worker finished
		case <-time.After(workerShutdownTimeout):
			// Worker timeout
		}
	}

	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(len(p.workers))
}

// signalShutdown flags the pool as stopped and signals every worker loop.
// Safe to call more than once.
func (p *Pool) signalShutdown() {
	select {
	case <-p.shutdown:
		// Already signaled
	default:
		close(p.shutdown)
	}
	for _, worker := range p.workers {
		worker.stop()
	}
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new requests
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	p.signalShutdown()

	// Wait for all workers to finish or context to timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(len(p.workers))

	return nil
}
