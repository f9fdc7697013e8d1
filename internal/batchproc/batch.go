package batchproc

import (
	"fmt"
	"time"

	"github.com/gabapcia/txbatch/internal/digest"
)

// Batch is an ordered group of transactions captured by a single drain and
// accepted by the validator. It is built once and handed to the caller; the
// Processor keeps no reference to it.
type Batch[T digest.Transaction] struct {
	ID           string        // UUIDv7 assigned at creation
	Transactions []T           // Exactly the drained buffer, in enqueue order
	Digest       digest.Digest // Integrity digest of Transactions
	CreatedAt    time.Time     // When the batch was assembled (UTC)
	Elapsed      time.Duration // Time spent validating and assembling the batch
}

// Len returns the number of transactions in the batch.
func (b Batch[T]) Len() int {
	return len(b.Transactions)
}

// DrainError is returned by Drain when the captured transactions were
// consumed without producing a Batch: either the validator rejected them or
// the predicate faulted. The transactions are NOT put back into the pending
// buffer; callers that want to retry must resubmit them from Transactions.
//
// DrainError unwraps to the validator error, so errors.Is works against
// batchvalidator.ErrEmptyBatch, ErrPredicateFailed and ErrPredicateFaulted.
type DrainError[T digest.Transaction] struct {
	Transactions []T
	Err          error
}

func (e *DrainError[T]) Error() string {
	return fmt.Sprintf("drain of %d transactions consumed without a batch: %v", len(e.Transactions), e.Err)
}

func (e *DrainError[T]) Unwrap() error {
	return e.Err
}

// State is the observable phase of the pending buffer lifecycle.
type State uint8

const (
	// Accumulating is the state between drains.
	Accumulating State = iota
	// Draining is the state while a drain is in flight.
	Draining
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Metrics is a read-only snapshot of the most recent successful drain.
//
// Before the first successful drain every field except ThroughputGoal is zero
// and TargetAchieved is false.
type Metrics struct {
	TransactionsProcessed int           // Transactions in the last batch
	TotalTime             time.Duration // Whole drain duration, buffer swap included
	Throughput            float64       // TransactionsProcessed per second of TotalTime
	ThroughputGoal        float64       // Configured goal, transactions per second
	TargetAchieved        bool          // Throughput >= ThroughputGoal
	Latency               time.Duration // The batch's own Elapsed
	LastDrainAt           time.Time     // CreatedAt of the last batch
}

// lastDrain holds the raw figures Metrics is computed from.
type lastDrain struct {
	count   int
	total   time.Duration
	latency time.Duration
	at      time.Time
}

// computeMetrics derives a snapshot from a drain's raw figures. A zero total
// duration yields zero throughput rather than a division by zero.
func computeMetrics(d lastDrain, goal float64) Metrics {
	m := Metrics{ThroughputGoal: goal}
	if d.at.IsZero() {
		return m
	}

	m.TransactionsProcessed = d.count
	m.TotalTime = d.total
	m.Latency = d.latency
	m.LastDrainAt = d.at

	if d.total > 0 {
		m.Throughput = float64(d.count) / d.total.Seconds()
	}
	m.TargetAchieved = m.Throughput >= goal
	return m
}
