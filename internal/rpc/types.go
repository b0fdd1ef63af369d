package rpc

import (
	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/internal/payload"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	// CodeRejected is returned when the ledger refuses a batch. Error.Data
	// carries the rejection kind.
	CodeRejected = -32001
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RejectionData is the Data of a CodeRejected error.
type RejectionData struct {
	Kind string `json:"kind"`
	// Unmatched is set for invariant violations.
	Unmatched map[types.TokenID]types.I128 `json:"unmatched_deltas,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// SignedBatchParam is used by intents_execute and intents_simulate.
type SignedBatchParam struct {
	SignedPayloads []payload.Signed `json:"signed"`
}

// PredecessorParam is used by intents_executeAsPredecessor.
type PredecessorParam struct {
	Signer  types.AccountID `json:"signer_id"`
	Intents intents.Intents `json:"intents"`
}

// AccountParam is used by endpoints that take a single account.
type AccountParam struct {
	Account types.AccountID `json:"account_id"`
}

// BalanceParam is used by account_balanceOf.
type BalanceParam struct {
	Account types.AccountID `json:"account_id"`
	Tokens  []types.TokenID `json:"token_ids"`
}

// PublicKeyParam is used by account_hasPublicKey.
type PublicKeyParam struct {
	Account   types.AccountID `json:"account_id"`
	PublicKey types.PublicKey `json:"public_key"`
}

// NonceParam is used by account_isNonceUsed.
type NonceParam struct {
	Account types.AccountID `json:"account_id"`
	Nonce   types.Nonce     `json:"nonce"`
}

// ── Result types ────────────────────────────────────────────────────────

// BalanceResult is returned by account_balanceOf. Balances are parallel to
// the requested token ids.
type BalanceResult struct {
	Account  types.AccountID `json:"account_id"`
	Balances []types.U128    `json:"balances"`
}

// BoolResult wraps a boolean answer.
type BoolResult struct {
	Value bool `json:"value"`
}

// ProtocolInfoResult is returned by protocol_getInfo.
type ProtocolInfoResult struct {
	Version            string          `json:"version"`
	VerifyingContract  types.AccountID `json:"verifying_contract"`
	WNearID            types.AccountID `json:"wnear_id"`
	Fee                uint32          `json:"fee"`
	FeeCollector       types.AccountID `json:"fee_collector"`
	PendingWithdrawals int             `json:"pending_withdrawals"`
	Time               string          `json:"time"`
}
