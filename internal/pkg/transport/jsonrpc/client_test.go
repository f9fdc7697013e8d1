package jsonrpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	transporthttp "github.com/gabapcia/txbatch/internal/pkg/transport/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *client {
	return NewClient(url, transporthttp.NewClient(
		transporthttp.WithTimeout(time.Second),
		transporthttp.WithRetryMax(0),
	))
}

func TestResponse_Err(t *testing.T) {
	t.Run("no error object", func(t *testing.T) {
		assert.NoError(t, response{JSONRPC: "2.0"}.Err())
	})

	t.Run("error object", func(t *testing.T) {
		err := response{Error: &rpcError{Code: -32601, Message: "method not found"}}.Err()

		assert.ErrorIs(t, err, ErrRemoteError)
		assert.EqualError(t, err, "json-rpc remote error: [-32601] method not found")
	})
}

func TestClient_Call(t *testing.T) {
	t.Run("request envelope and decoded result", func(t *testing.T) {
		var got request
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"id":      got.ID,
				"result":  map[string]any{"accepted": true},
			})
		}))
		t.Cleanup(srv.Close)

		var result struct {
			Accepted bool `json:"accepted"`
		}
		err := newTestClient(srv.URL).Call(t.Context(), "batch_check", &result, map[string]int{"count": 2})
		require.NoError(t, err)

		assert.True(t, result.Accepted)
		assert.Equal(t, "2.0", got.JSONRPC)
		assert.Equal(t, "batch_check", got.Method)
		assert.NotEmpty(t, got.ID)
		require.Len(t, got.Params, 1)
		assert.Equal(t, map[string]any{"count": float64(2)}, got.Params[0])
	})

	t.Run("params default to an empty array", func(t *testing.T) {
		var raw map[string]json.RawMessage
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			w.Write([]byte(`{"jsonrpc":"2.0","result":null}`))
		}))
		t.Cleanup(srv.Close)

		require.NoError(t, newTestClient(srv.URL).Call(t.Context(), "ping", nil))
		assert.JSONEq(t, `[]`, string(raw["params"]))
	})

	t.Run("remote error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32000,"message":"ledger unavailable"}}`))
		}))
		t.Cleanup(srv.Close)

		err := newTestClient(srv.URL).Call(t.Context(), "batch_check", nil)
		assert.ErrorIs(t, err, ErrRemoteError)
		assert.Contains(t, err.Error(), "ledger unavailable")
	})

	t.Run("non 2xx status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(srv.Close)

		err := newTestClient(srv.URL).Call(t.Context(), "batch_check", nil)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("not json"))
		}))
		t.Cleanup(srv.Close)

		err := newTestClient(srv.URL).Call(t.Context(), "batch_check", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode batch_check response")
	})

	t.Run("server down", func(t *testing.T) {
		srv := httptest.NewServer(nil)
		srv.Close()

		assert.Error(t, newTestClient(srv.URL).Call(t.Context(), "batch_check", nil))
	})
}
