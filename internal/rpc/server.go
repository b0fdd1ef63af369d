// Package rpc serves the settlement API over JSON-RPC 2.0 on HTTP.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-intents/config"
	klog "github.com/Klingon-tech/klingnet-intents/internal/log"
	"github.com/Klingon-tech/klingnet-intents/internal/metrics"
	"github.com/Klingon-tech/klingnet-intents/internal/settlement"
)

const (
	maxBodySize     = 1 << 20
	shutdownTimeout = 5 * time.Second
)

type handlerFunc func(params json.RawMessage) (interface{}, *Error)

// Server is the JSON-RPC endpoint of a settlement node.
type Server struct {
	addr       string
	settlement *settlement.Service
	version    string
	methods    map[string]handlerFunc
	server     *http.Server
	ln         net.Listener
	logger     zerolog.Logger
	metrics    *metrics.RPC

	allowedNets []*net.IPNet // empty allows every client
	corsOrigins []string
}

// New builds a server for svc. An optional RPCConfig restricts client IPs
// and enables CORS.
func New(addr string, svc *settlement.Service, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:       addr,
		settlement: svc,
		version:    config.Version,
		logger:     klog.RPC,
	}
	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}
	s.methods = map[string]handlerFunc{
		"intents_execute":              s.handleIntentsExecute,
		"intents_simulate":             s.handleIntentsSimulate,
		"intents_executeAsPredecessor": s.handleIntentsExecuteAsPredecessor,
		"account_balanceOf":            s.handleAccountBalanceOf,
		"account_getInfo":              s.handleAccountGetInfo,
		"account_publicKeys":           s.handleAccountPublicKeys,
		"account_hasPublicKey":         s.handleAccountHasPublicKey,
		"account_isNonceUsed":          s.handleAccountIsNonceUsed,
		"account_isLocked":             s.handleAccountIsLocked,
		"protocol_getInfo":             s.handleProtocolGetInfo,
	}

	mux := http.NewServeMux()
	mux.Handle("/", s.guard(http.HandlerFunc(s.serveRPC)))
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// SetMetrics enables per-method request metrics.
func (s *Server) SetMetrics(m *metrics.RPC) { s.metrics = m }

// parseAllowedIPs accepts CIDRs and bare addresses. Invalid entries are
// skipped; config validation reports them.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		if _, n, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, n)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()
	s.logger.Debug().Str("addr", ln.Addr().String()).Int("methods", len(s.methods)).Msg("RPC listening")
	return nil
}

// Addr returns the bound address, which differs from the configured one
// when listening on port 0.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// guard applies the IP allow list and CORS before next.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.clientAllowed(r.RemoteAddr) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) clientAllowed(remoteAddr string) bool {
	if len(s.allowedNets) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	for _, o := range s.corsOrigins {
		if o != "*" && o != origin {
			continue
		}
		w.Header().Set("Access-Control-Allow-Origin", o)
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		return
	}
}

// inbound is a request as received, with params left raw for the handler.
type inbound struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req inbound
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, `jsonrpc must be "2.0"`)
		return
	}

	start := time.Now()
	result, rpcErr := s.call(req.Method, req.Params)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
		s.logger.Debug().Str("method", req.Method).Int("code", code).Msg(rpcErr.Message)
	}
	s.metrics.ObserveRequest(req.Method, code, time.Since(start))

	writeJSON(w, Response{JSONRPC: "2.0", Result: result, Error: rpcErr, ID: req.ID})
}

func (s *Server) call(method string, params json.RawMessage) (interface{}, *Error) {
	h, ok := s.methods[method]
	if !ok {
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", method)}
	}
	return h(params)
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message}, ID: id})
}

// parseParams decodes params into target. Absent and null params are
// rejected.
func parseParams(params json.RawMessage, target interface{}) *Error {
	if len(params) == 0 || string(params) == "null" {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(params, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
