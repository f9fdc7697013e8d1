package batchvalidator

import (
	"errors"
	"fmt"

	"github.com/gabapcia/txbatch/internal/digest"
)

var (
	// ErrEmptyBatch is the rejection for a batch with no transactions.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrDigestMismatch is the rejection for a batch whose recomputed digest
	// differs from the digest it was received with.
	ErrDigestMismatch = errors.New("digest mismatch")

	// ErrPredicateFailed is the rejection for a batch the predicate declined.
	ErrPredicateFailed = errors.New("predicate rejected batch")

	// ErrPredicateFaulted is returned when the predicate itself broke (returned
	// an error or panicked). It is not a rejection: the transactions were never
	// judged.
	ErrPredicateFaulted = errors.New("predicate faulted")
)

// Reason tells why a batch was rejected.
type Reason uint8

const (
	// ReasonNone marks an accepted batch.
	ReasonNone Reason = iota
	ReasonEmptyBatch
	ReasonDigestMismatch
	ReasonPredicateFailed
)

// String returns a stable, log-friendly name for the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonEmptyBatch:
		return "empty_batch"
	case ReasonDigestMismatch:
		return "digest_mismatch"
	case ReasonPredicateFailed:
		return "predicate_failed"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// sentinel maps a rejection reason to its sentinel error.
func (r Reason) sentinel() error {
	switch r {
	case ReasonEmptyBatch:
		return ErrEmptyBatch
	case ReasonDigestMismatch:
		return ErrDigestMismatch
	case ReasonPredicateFailed:
		return ErrPredicateFailed
	default:
		return nil
	}
}

// Result is the outcome of validating a batch. A Result with ReasonNone is an
// acceptance and carries the batch digest. Rejections carry the digest when
// one was computed (every reason except ReasonEmptyBatch).
type Result struct {
	Digest digest.Digest
	Reason Reason
	Count  int // number of transactions judged
}

// Accepted reports whether the batch was accepted.
func (r Result) Accepted() bool {
	return r.Reason == ReasonNone
}

// Err returns nil for an accepted result and a *RejectionError otherwise.
func (r Result) Err() error {
	if r.Accepted() {
		return nil
	}
	return &RejectionError{Reason: r.Reason, Count: r.Count}
}

// RejectionError is the error form of a rejected Result. It unwraps to the
// sentinel matching its Reason, so callers can use errors.Is(err, ErrEmptyBatch).
type RejectionError struct {
	Reason Reason
	Count  int
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("batch of %d transactions rejected: %s", e.Count, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason.sentinel()
}
