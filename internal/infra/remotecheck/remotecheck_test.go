package remotecheck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gabapcia/txbatch/internal/batchvalidator"
	"github.com/gabapcia/txbatch/internal/digest"
	"github.com/gabapcia/txbatch/internal/ledger"
	transporthttp "github.com/gabapcia/txbatch/internal/pkg/transport/http"
	"github.com/gabapcia/txbatch/internal/pkg/transport/jsonrpc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type clientMock struct {
	mock.Mock
}

func (m *clientMock) Call(ctx context.Context, method string, result any, params ...any) error {
	args := m.Called(ctx, method, result, params)
	return args.Error(0)
}

type rpcCall struct {
	Method string                    `json:"method"`
	ID     string                    `json:"id"`
	Params []Params[ledger.Transfer] `json:"params"`
}

// checker is a JSON-RPC server answering with accept.
func checker(t *testing.T, accept bool, seen chan<- rpcCall) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		seen <- call

		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      call.ID,
			"result":  Verdict{Accepted: accept, Reason: "insufficient funds"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func transfers(t *testing.T) []ledger.Transfer {
	t.Helper()

	a, err := ledger.NewTransfer("alice", "bob", 10, 1)
	require.NoError(t, err)
	b, err := ledger.NewTransfer("bob", "carol", 5, 1)
	require.NoError(t, err)
	return []ledger.Transfer{a, b}
}

func TestPredicate(t *testing.T) {
	t.Run("accepted batch", func(t *testing.T) {
		seen := make(chan rpcCall, 1)
		srv := checker(t, true, seen)
		txs := transfers(t)
		d := digest.Compute(txs)

		p := Predicate[ledger.Transfer](NewClient(srv.URL), "")
		ok, err := p(t.Context(), txs, d)
		require.NoError(t, err)
		assert.True(t, ok)

		call := <-seen
		assert.Equal(t, DefaultMethod, call.Method)
		require.Len(t, call.Params, 1)
		assert.Equal(t, d, call.Params[0].Digest)
		assert.Equal(t, 2, call.Params[0].Count)
		assert.Equal(t, txs, call.Params[0].Transactions)
	})

	t.Run("rejected batch", func(t *testing.T) {
		seen := make(chan rpcCall, 1)
		srv := checker(t, false, seen)

		v := batchvalidator.New(Predicate[ledger.Transfer](NewClient(srv.URL), "ledger_check"))
		res, err := v.Validate(t.Context(), transfers(t))
		require.NoError(t, err)
		assert.Equal(t, batchvalidator.ReasonPredicateFailed, res.Reason)
		assert.Equal(t, "ledger_check", (<-seen).Method)
	})

	t.Run("unreachable service faults", func(t *testing.T) {
		srv := httptest.NewServer(nil)
		srv.Close()

		client := NewClient(srv.URL, transporthttp.WithRetryMax(0), transporthttp.WithTimeout(time.Second))
		v := batchvalidator.New(Predicate[ledger.Transfer](client, ""))

		_, err := v.Validate(t.Context(), transfers(t))
		assert.ErrorIs(t, err, batchvalidator.ErrPredicateFaulted)
	})

	t.Run("remote errors are wrapped", func(t *testing.T) {
		c := new(clientMock)
		c.On("Call", mock.Anything, DefaultMethod, mock.Anything, mock.Anything).
			Return(jsonrpc.ErrRemoteError).
			Once()

		p := Predicate[digest.Raw](c, "")
		ok, err := p(t.Context(), []digest.Raw{digest.Raw("x")}, digest.Digest{})

		assert.False(t, ok)
		assert.True(t, errors.Is(err, jsonrpc.ErrRemoteError))
		assert.Contains(t, err.Error(), "remote check "+DefaultMethod)
		c.AssertExpectations(t)
	})
}
