// Package batchvalidator decides whether an ordered batch of transactions is
// accepted. It always computes the batch digest and hands it, with the
// transactions, to a caller-supplied Predicate: the one place where real
// acceptance rules (signatures, balances, quorum checks) plug in.
package batchvalidator

import (
	"context"
	"fmt"

	"github.com/gabapcia/txbatch/internal/digest"
)

// Predicate is the acceptance rule for a batch. It returns false to reject
// the batch and a non-nil error when the rule itself could not be evaluated.
//
// The predicate may be slow or perform I/O. The validator imposes no timeout;
// ctx is passed through so the predicate can honor the caller's deadline.
type Predicate[T digest.Transaction] func(ctx context.Context, txs []T, d digest.Digest) (bool, error)

// AcceptAll is a Predicate that accepts every non-empty batch.
func AcceptAll[T digest.Transaction](context.Context, []T, digest.Digest) (bool, error) {
	return true, nil
}

// Validator applies a Predicate to batches.
type Validator[T digest.Transaction] struct {
	predicate Predicate[T]
}

// New returns a Validator using predicate. A nil predicate accepts every
// non-empty batch.
func New[T digest.Transaction](predicate Predicate[T]) *Validator[T] {
	if predicate == nil {
		predicate = AcceptAll[T]
	}

	return &Validator[T]{
		predicate: predicate,
	}
}

// Validate judges txs.
//
// An empty batch is rejected with ReasonEmptyBatch without calling the
// predicate. Otherwise the digest is computed and the predicate decides
// between acceptance and ReasonPredicateFailed.
//
// A returned error always wraps ErrPredicateFaulted and means no judgement
// was made; the Result then only carries the digest and count.
func (v *Validator[T]) Validate(ctx context.Context, txs []T) (Result, error) {
	if len(txs) == 0 {
		return Result{Reason: ReasonEmptyBatch}, nil
	}

	d := digest.Compute(txs)
	return v.judge(ctx, txs, d)
}

// Verify re-validates a batch received together with its digest. It rejects
// with ReasonDigestMismatch when the transactions no longer hash to expected,
// and otherwise behaves like Validate.
func (v *Validator[T]) Verify(ctx context.Context, txs []T, expected digest.Digest) (Result, error) {
	if len(txs) == 0 {
		return Result{Reason: ReasonEmptyBatch}, nil
	}

	d := digest.Compute(txs)
	if !d.Equal(expected) {
		return Result{Digest: d, Reason: ReasonDigestMismatch, Count: len(txs)}, nil
	}

	return v.judge(ctx, txs, d)
}

func (v *Validator[T]) judge(ctx context.Context, txs []T, d digest.Digest) (Result, error) {
	res := Result{Digest: d, Count: len(txs)}

	ok, err := v.callPredicate(ctx, txs, d)
	if err != nil {
		return res, err
	}

	if !ok {
		res.Reason = ReasonPredicateFailed
	}
	return res, nil
}

// callPredicate runs the predicate, turning both returned errors and panics
// into ErrPredicateFaulted.
func (v *Validator[T]) callPredicate(ctx context.Context, txs []T, d digest.Digest) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("%w: panic: %v", ErrPredicateFaulted, r)
		}
	}()

	ok, err = v.predicate(ctx, txs, d)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrPredicateFaulted, err)
	}
	return ok, nil
}
