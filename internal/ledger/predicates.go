package ledger

import (
	"context"
	"errors"

	"github.com/gabapcia/txbatch/internal/batchvalidator"
	"github.com/gabapcia/txbatch/internal/digest"
	"github.com/gabapcia/txbatch/internal/pkg/logger"
	"github.com/gabapcia/txbatch/internal/pkg/types"
	"github.com/gabapcia/txbatch/internal/pkg/validator"
)

// Wellformed rejects a batch holding any transfer that breaks its field rules.
func Wellformed(ctx context.Context, txs []Transfer, _ digest.Digest) (bool, error) {
	err := validator.ValidateEach(txs)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, validator.ErrValidationFailed):
		logger.Debug(ctx, "malformed transfer in batch", "error", err)
		return false, nil
	default:
		return false, err
	}
}

// UniqueIDs rejects a batch in which two transfers share an ID.
func UniqueIDs(ctx context.Context, txs []Transfer, _ digest.Digest) (bool, error) {
	seen := types.NewSet[string]()
	for _, tx := range txs {
		if !seen.Insert(tx.ID) {
			logger.Debug(ctx, "duplicate transfer in batch", "transfer.id", tx.ID)
			return false, nil
		}
	}
	return true, nil
}

// senderNonce is the last nonce seen for a sender within one batch.
type senderNonce struct {
	seen  bool
	nonce uint64
}

// NonceOrdering rejects a batch in which a sender's nonces do not strictly
// increase in batch order. Gaps are allowed.
func NonceOrdering(ctx context.Context, txs []Transfer, _ digest.Digest) (bool, error) {
	last := types.NewDefaultMap[string, senderNonce](func() senderNonce { return senderNonce{} })
	for _, tx := range txs {
		if prev := last.Get(tx.From); prev.seen && tx.Nonce <= prev.nonce {
			logger.Debug(ctx, "out of order nonce in batch",
				"transfer.id", tx.ID,
				"transfer.from", tx.From,
				"transfer.nonce", tx.Nonce,
				"previous_nonce", prev.nonce,
			)
			return false, nil
		}
		last.Set(tx.From, senderNonce{seen: true, nonce: tx.Nonce})
	}
	return true, nil
}

// Rules is the default acceptance rule for transfer batches: well-formed
// transfers, unique IDs and per-sender nonce ordering, checked in that order.
func Rules() batchvalidator.Predicate[Transfer] {
	return batchvalidator.All[Transfer](Wellformed, UniqueIDs, NonceOrdering)
}
