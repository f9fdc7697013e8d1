package batchvalidator

import (
	"context"
	"fmt"

	"github.com/gabapcia/txbatch/internal/digest"
)

// All combines predicates into one that accepts a batch only if every
// predicate accepts it. Predicates run in order and evaluation stops at the
// first rejection or error. A nil entry is skipped; with no predicates the
// result accepts everything.
func All[T digest.Transaction](predicates ...Predicate[T]) Predicate[T] {
	return func(ctx context.Context, txs []T, d digest.Digest) (bool, error) {
		for i, p := range predicates {
			if p == nil {
				continue
			}

			ok, err := p(ctx, txs, d)
			if err != nil {
				return false, fmt.Errorf("predicate %d: %w", i, err)
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}
