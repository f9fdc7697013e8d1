// Package batchproc owns the pending-transaction buffer and turns it into
// validated, digested batches.
//
// Producers call Enqueue from any number of goroutines. Drain atomically
// swaps the buffer out, validates the captured transactions outside the
// buffer lock (so producers keep enqueuing into the next buffer) and returns
// either a Batch or a *DrainError. Only one drain runs at a time; a second
// concurrent Drain fails fast with ErrDrainInProgress instead of waiting.
//
// Rejected transactions are consumed, not re-queued. The DrainError carries
// them so callers can resubmit.
package batchproc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gabapcia/txbatch/internal/batchvalidator"
	"github.com/gabapcia/txbatch/internal/digest"
	"github.com/gabapcia/txbatch/internal/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrDrainInProgress is returned by Drain when another drain is running.
	ErrDrainInProgress = errors.New("drain already in progress")

	// ErrServiceAlreadyStarted is returned if Start is called more than once.
	ErrServiceAlreadyStarted = errors.New("service already started")
)

// Validator judges a captured batch. *batchvalidator.Validator satisfies it.
type Validator[T digest.Transaction] interface {
	Validate(ctx context.Context, txs []T) (batchvalidator.Result, error)
}

// closeFunc stops the drain loop and waits for it to exit.
type closeFunc func()

// Processor buffers transactions and drains them into batches.
// Create it with New; the zero value is not usable.
type Processor[T digest.Transaction] struct {
	validator Validator[T]
	cfg       config
	ins       instruments

	mu      sync.Mutex // guards pending
	pending []T

	draining atomic.Bool // set while a drain is in flight

	lastMu sync.RWMutex
	last   lastDrain

	flushCh chan struct{} // wakes the drain loop when the flush threshold is hit

	lifecycleMu sync.Mutex
	isStarted   bool
	closeFunc   closeFunc
}

// New returns a Processor in the Accumulating state that validates drained
// transactions with v.
func New[T digest.Transaction](v Validator[T], opts ...Option) *Processor[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Processor[T]{
		validator: v,
		cfg:       cfg,
		ins:       newInstruments(cfg.meter),
		flushCh:   make(chan struct{}, 1),
	}
}

// Enqueue appends txs to the pending buffer in the given order. It never
// validates and never waits for a drain to finish.
func (p *Processor[T]) Enqueue(txs ...T) {
	if len(txs) == 0 {
		return
	}

	p.mu.Lock()
	p.pending = append(p.pending, txs...)
	size := len(p.pending)
	p.mu.Unlock()

	if p.cfg.flushThreshold > 0 && size >= p.cfg.flushThreshold {
		select {
		case p.flushCh <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered transactions.
func (p *Processor[T]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.pending)
}

// State reports whether a drain is currently in flight.
func (p *Processor[T]) State() State {
	if p.draining.Load() {
		return Draining
	}
	return Accumulating
}

// swap takes the pending buffer and leaves an empty one in its place.
func (p *Processor[T]) swap() []T {
	p.mu.Lock()
	defer p.mu.Unlock()

	txs := p.pending
	p.pending = nil
	return txs
}

// Drain captures everything enqueued so far and validates it.
//
// On acceptance it returns the Batch and updates the metrics snapshot. On
// rejection or predicate fault it returns a *DrainError holding the consumed
// transactions; an empty buffer yields a DrainError matching
// batchvalidator.ErrEmptyBatch. If another drain is running it returns
// ErrDrainInProgress and leaves the buffer untouched.
//
// Drain imposes no timeout of its own: a predicate that never returns stalls
// this drain.
func (p *Processor[T]) Drain(ctx context.Context) (Batch[T], error) {
	if !p.draining.CompareAndSwap(false, true) {
		return Batch[T]{}, ErrDrainInProgress
	}
	defer p.draining.Store(false)

	ctx, span := p.cfg.tracer.Start(ctx, "batchproc.Drain")
	defer span.End()

	drainStart := p.cfg.clock()
	txs := p.swap()
	span.SetAttributes(attribute.Int("batch.size", len(txs)))

	start := p.cfg.clock()
	res, err := p.validator.Validate(ctx, txs)
	if err != nil {
		p.ins.recordRejection(ctx, "predicate_faulted")
		span.RecordError(err)
		span.SetStatus(codes.Error, "predicate faulted")
		return Batch[T]{}, &DrainError[T]{Transactions: txs, Err: err}
	}

	if !res.Accepted() {
		if res.Reason != batchvalidator.ReasonEmptyBatch {
			p.ins.recordRejection(ctx, res.Reason.String())
		}
		span.SetAttributes(attribute.String("batch.reason", res.Reason.String()))
		return Batch[T]{}, &DrainError[T]{Transactions: txs, Err: res.Err()}
	}

	createdAt := p.cfg.clock()
	batch := Batch[T]{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Transactions: txs,
		Digest:       res.Digest,
		CreatedAt:    createdAt.UTC(),
		Elapsed:      createdAt.Sub(start),
	}

	total := createdAt.Sub(drainStart)
	p.setLast(lastDrain{count: batch.Len(), total: total, latency: batch.Elapsed, at: batch.CreatedAt})
	p.ins.recordBatch(ctx, batch.Len(), total)

	span.SetAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.String("batch.digest", batch.Digest.String()),
	)
	logger.Debug(ctx, "batch drained",
		"batch.id", batch.ID,
		"batch.size", batch.Len(),
		"batch.digest", batch.Digest.String(),
		"batch.elapsed", batch.Elapsed,
	)

	return batch, nil
}

func (p *Processor[T]) setLast(d lastDrain) {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()

	p.last = d
}

// Metrics returns throughput statistics for the most recent successful drain.
// It never fails; before the first successful drain it returns a zeroed
// snapshot with TargetAchieved false.
func (p *Processor[T]) Metrics() Metrics {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()

	return computeMetrics(p.last, p.cfg.throughputGoal)
}
