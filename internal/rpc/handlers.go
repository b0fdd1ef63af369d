package rpc

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Klingon-tech/klingnet-intents/internal/engine"
	"github.com/Klingon-tech/klingnet-intents/internal/ledger"
	"github.com/Klingon-tech/klingnet-intents/internal/nonce"
	"github.com/Klingon-tech/klingnet-intents/internal/payload"
	"github.com/Klingon-tech/klingnet-intents/internal/settlement"
	"github.com/Klingon-tech/klingnet-intents/internal/state"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// rejectionKinds maps ledger errors to stable names for clients. Order
// matters only for errors wrapping several sentinels.
var rejectionKinds = []struct {
	err  error
	kind string
}{
	{engine.ErrInvariantViolated, "invariant_violated"},
	{engine.ErrInvalidSignature, "invalid_signature"},
	{engine.ErrWrongVerifyingContract, "wrong_verifying_contract"},
	{engine.ErrDeadlineExpired, "deadline_expired"},
	{engine.ErrDeadlineGreaterThanNonce, "deadline_greater_than_nonce"},
	{nonce.ErrNonceUsed, "nonce_used"},
	{nonce.ErrNonceExpired, "nonce_expired"},
	{state.ErrAccountLocked, "account_locked"},
	{state.ErrAccountNotFound, "account_not_found"},
	{state.ErrAuthByPredecessorIDDisabled, "auth_by_predecessor_id_disabled"},
	{state.ErrPublicKeyExists, "public_key_exists"},
	{state.ErrPublicKeyNotExist, "public_key_not_exist"},
	{state.ErrBalanceOverflow, "balance_overflow"},
	{state.ErrInvalidIntent, "invalid_intent"},
	{payload.ErrMalformed, "malformed_payload"},
	{payload.ErrUnknownStandard, "unknown_standard"},
	{settlement.ErrEmptyBatch, "empty_batch"},
}

// ledgerError converts a settlement error into a JSON-RPC error.
func ledgerError(err error) *Error {
	if errors.Is(err, ledger.ErrNotInitialized) {
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
	for _, rk := range rejectionKinds {
		if !errors.Is(err, rk.err) {
			continue
		}
		data := &RejectionData{Kind: rk.kind}
		var unmatched *engine.InvariantViolatedError
		if errors.As(err, &unmatched) {
			data.Unmatched = unmatched.Unmatched
		}
		return &Error{Code: CodeRejected, Message: err.Error(), Data: data}
	}
	if errors.Is(err, types.ErrInvalidTokenID) || errors.Is(err, types.ErrInvalidAccountID) {
		return &Error{Code: CodeRejected, Message: err.Error(), Data: &RejectionData{Kind: "invalid_intent"}}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func requireAccount(id types.AccountID) *Error {
	if id == "" {
		return &Error{Code: CodeInvalidParams, Message: "account_id is required"}
	}
	if err := id.Validate(); err != nil {
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

// ── Intents endpoints ───────────────────────────────────────────────────

func (s *Server) handleIntentsExecute(params json.RawMessage) (interface{}, *Error) {
	var p SignedBatchParam
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}
	receipt, err := s.settlement.Execute(p.SignedPayloads)
	if err != nil {
		return nil, ledgerError(err)
	}
	return receipt, nil
}

func (s *Server) handleIntentsSimulate(params json.RawMessage) (interface{}, *Error) {
	var p SignedBatchParam
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}
	sim, err := s.settlement.Simulate(p.SignedPayloads)
	if err != nil {
		return nil, ledgerError(err)
	}
	return sim, nil
}

func (s *Server) handleIntentsExecuteAsPredecessor(params json.RawMessage) (interface{}, *Error) {
	var p PredecessorParam
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAccount(p.Signer); err != nil {
		return nil, err
	}
	receipt, err := s.settlement.ExecuteAsPredecessor(p.Signer, p.Intents)
	if err != nil {
		return nil, ledgerError(err)
	}
	return receipt, nil
}

// ── Account endpoints ───────────────────────────────────────────────────

func (s *Server) handleAccountBalanceOf(params json.RawMessage) (interface{}, *Error) {
	var p BalanceParam
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAccount(p.Account); err != nil {
		return nil, err
	}
	if len(p.Tokens) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "token_ids is required"}
	}
	balances, err := s.settlement.BalanceOf(p.Account, p.Tokens)
	if err != nil {
		return nil, ledgerError(err)
	}
	return &BalanceResult{Account: p.Account, Balances: balances}, nil
}

func (s *Server) handleAccountGetInfo(params json.RawMessage) (interface{}, *Error) {
	var p AccountParam
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAccount(p.Account); err != nil {
		return nil, err
	}
	info, err := s.settlement.Account(p.Account)
	if err != nil {
		return nil, ledgerError(err)
	}
	return info, nil
}

func (s *Server) handleAccountPublicKeys(params json.RawMessage) (interface{}, *Error) {
	var p AccountParam
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAccount(p.Account); err != nil {
		return nil, err
	}
	info, err := s.settlement.Account(p.Account)
	if err != nil {
		return nil, ledgerError(err)
	}
	keys := info.PublicKeys
	if keys == nil {
		keys = []types.PublicKey{}
	}
	return keys, nil
}

func (s *Server) handleAccountHasPublicKey(params json.RawMessage) (interface{}, *Error) {
	var p PublicKeyParam
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAccount(p.Account); err != nil {
		return nil, err
	}
	if p.PublicKey.IsZero() {
		return nil, &Error{Code: CodeInvalidParams, Message: "public_key is required"}
	}
	ok, err := s.settlement.HasPublicKey(p.Account, p.PublicKey)
	if err != nil {
		return nil, ledgerError(err)
	}
	return &BoolResult{Value: ok}, nil
}

func (s *Server) handleAccountIsNonceUsed(params json.RawMessage) (interface{}, *Error) {
	var p NonceParam
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAccount(p.Account); err != nil {
		return nil, err
	}
	used, err := s.settlement.IsNonceUsed(p.Account, p.Nonce)
	if err != nil {
		return nil, ledgerError(err)
	}
	return &BoolResult{Value: used}, nil
}

func (s *Server) handleAccountIsLocked(params json.RawMessage) (interface{}, *Error) {
	var p AccountParam
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAccount(p.Account); err != nil {
		return nil, err
	}
	info, err := s.settlement.Account(p.Account)
	if err != nil {
		return nil, ledgerError(err)
	}
	return &BoolResult{Value: info.Locked}, nil
}

// ── Protocol endpoints ──────────────────────────────────────────────────

func (s *Server) handleProtocolGetInfo(_ json.RawMessage) (interface{}, *Error) {
	info, err := s.settlement.Info()
	if err != nil {
		return nil, ledgerError(err)
	}
	return &ProtocolInfoResult{
		Version:            s.version,
		VerifyingContract:  info.VerifyingContract,
		WNearID:            info.WNearID,
		Fee:                uint32(info.Fee),
		FeeCollector:       info.FeeCollector,
		PendingWithdrawals: info.PendingWithdrawals,
		Time:               info.Time.UTC().Format(time.RFC3339),
	}, nil
}
