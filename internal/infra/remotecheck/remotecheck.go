// Package remotecheck provides a batch predicate that delegates the accept or
// reject decision to an external service over JSON-RPC.
//
// The service receives one positional parameter:
//
//	{"digest": "<hex>", "count": 2, "transactions": [...]}
//
// and answers with {"accepted": true|false, "reason": "..."}.
package remotecheck

import (
	"context"
	"fmt"

	"github.com/gabapcia/txbatch/internal/batchvalidator"
	"github.com/gabapcia/txbatch/internal/digest"
	"github.com/gabapcia/txbatch/internal/pkg/logger"
	transporthttp "github.com/gabapcia/txbatch/internal/pkg/transport/http"
	"github.com/gabapcia/txbatch/internal/pkg/transport/jsonrpc"
)

// DefaultMethod is the JSON-RPC method called when none is configured.
const DefaultMethod = "txbatch_checkBatch"

// Params is the payload sent for each batch.
type Params[T any] struct {
	Digest       digest.Digest `json:"digest"`
	Count        int           `json:"count"`
	Transactions []T           `json:"transactions"`
}

// Verdict is the service's answer.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// NewClient returns a JSON-RPC client for endpoint backed by the retrying
// HTTP client.
func NewClient(endpoint string, opts ...transporthttp.Option) jsonrpc.Client {
	return jsonrpc.NewClient(endpoint, transporthttp.NewClient(opts...))
}

// Predicate returns a batch predicate that calls method on c. Transport and
// remote errors are returned as errors, which the validator reports as a
// predicate fault rather than a rejection. An empty method uses DefaultMethod.
func Predicate[T digest.Transaction](c jsonrpc.Client, method string) batchvalidator.Predicate[T] {
	if method == "" {
		method = DefaultMethod
	}

	return func(ctx context.Context, txs []T, d digest.Digest) (bool, error) {
		var verdict Verdict
		params := Params[T]{Digest: d, Count: len(txs), Transactions: txs}
		if err := c.Call(ctx, method, &verdict, params); err != nil {
			return false, fmt.Errorf("remote check %s: %w", method, err)
		}

		if !verdict.Accepted {
			logger.Info(ctx, "batch rejected by remote check",
				"batch.digest", d.String(),
				"batch.size", len(txs),
				"reason", verdict.Reason,
			)
		}
		return verdict.Accepted, nil
	}
}
