// Package rpcclient is the Go client of the node's JSON-RPC API.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/klingnet-intents/internal/payload"
	"github.com/Klingon-tech/klingnet-intents/internal/rpc"
	"github.com/Klingon-tech/klingnet-intents/internal/settlement"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

const (
	defaultTimeout = 10 * time.Second
	maxResponse    = 8 << 20
)

// Client talks to one node endpoint. It is safe for concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Uint64
}

func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, defaultTimeout)
}

// NewWithTimeout sets the per-request HTTP timeout. Non-positive values
// use the default.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      uint64      `json:"id"`
}

type response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	ID     uint64          `json:"id"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if kind := e.Kind(); kind != "" {
		return fmt.Sprintf("rpc error %d (%s): %s", e.Code, kind, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Kind is the rejection kind of a refused batch, such as "nonce_used". It
// is empty for other errors.
func (e *RPCError) Kind() string {
	if e.Code != rpc.CodeRejected || len(e.Data) == 0 {
		return ""
	}
	var data rpc.RejectionData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return ""
	}
	return data.Kind
}

// Call is CallContext without a context.
func (c *Client) Call(method string, params, result interface{}) error {
	return c.CallContext(context.Background(), method, params, result)
}

// CallContext invokes method and decodes the result into result, which may
// be nil to discard it.
func (c *Client) CallContext(ctx context.Context, method string, params, result interface{}) error {
	id := c.nextID.Add(1)
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if rpcResp.ID != id {
		return fmt.Errorf("response id %d does not match request %d", rpcResp.ID, id)
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// ProtocolInfo returns the node's ledger parameters.
func (c *Client) ProtocolInfo(ctx context.Context) (*rpc.ProtocolInfoResult, error) {
	var info rpc.ProtocolInfoResult
	if err := c.CallContext(ctx, "protocol_getInfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Account(ctx context.Context, id types.AccountID) (*settlement.AccountInfo, error) {
	var info settlement.AccountInfo
	if err := c.CallContext(ctx, "account_getInfo", rpc.AccountParam{Account: id}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// BalanceOf returns balances parallel to tokens.
func (c *Client) BalanceOf(ctx context.Context, id types.AccountID, tokens []types.TokenID) ([]types.U128, error) {
	var res rpc.BalanceResult
	if err := c.CallContext(ctx, "account_balanceOf", rpc.BalanceParam{Account: id, Tokens: tokens}, &res); err != nil {
		return nil, err
	}
	if len(res.Balances) != len(tokens) {
		return nil, fmt.Errorf("node returned %d balances for %d tokens", len(res.Balances), len(tokens))
	}
	return res.Balances, nil
}

func (c *Client) IsNonceUsed(ctx context.Context, id types.AccountID, n types.Nonce) (bool, error) {
	var res rpc.BoolResult
	if err := c.CallContext(ctx, "account_isNonceUsed", rpc.NonceParam{Account: id, Nonce: n}, &res); err != nil {
		return false, err
	}
	return res.Value, nil
}

// Submit sends a signed batch to intents_execute or intents_simulate and
// returns the raw receipt.
func (c *Client) Submit(ctx context.Context, method string, batch []payload.Signed) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.CallContext(ctx, method, rpc.SignedBatchParam{SignedPayloads: batch}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
