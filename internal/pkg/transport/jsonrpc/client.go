// Package jsonrpc is a minimal JSON-RPC 2.0 client over HTTP.
package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

var (
	// ErrRemoteError is wrapped by errors carried in a JSON-RPC error object.
	ErrRemoteError = errors.New("json-rpc remote error")

	// ErrUnexpectedStatus is returned for non-2xx HTTP responses.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Error   *rpcError       `json:"error"`
	Result  json.RawMessage `json:"result"`
}

// Err converts the error object, if any, into an error wrapping ErrRemoteError.
func (r response) Err() error {
	if r.Error == nil {
		return nil
	}
	return fmt.Errorf("%w: [%d] %s", ErrRemoteError, r.Error.Code, r.Error.Message)
}

// Client calls remote JSON-RPC methods.
type Client interface {
	// Call invokes method with positional params and decodes the result into
	// result, which may be nil to discard it.
	Call(ctx context.Context, method string, result any, params ...any) error
}

type client struct {
	endpoint   string
	httpClient *retryablehttp.Client
}

var _ Client = (*client)(nil)

// NewClient returns a Client posting to endpoint through httpClient.
func NewClient(endpoint string, httpClient *retryablehttp.Client) *client {
	return &client{
		endpoint:   endpoint,
		httpClient: httpClient,
	}
}

func (c *client) Call(ctx context.Context, method string, result any, params ...any) error {
	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, res.StatusCode)
	}

	var data response
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	if err := data.Err(); err != nil {
		return err
	}

	if result == nil || len(data.Result) == 0 {
		return nil
	}
	return json.Unmarshal(data.Result, result)
}
