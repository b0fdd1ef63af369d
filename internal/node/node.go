// Package node wires a settlement ledger, its RPC surface and its
// background workers into a single embeddable unit.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-intents/config"
	"github.com/Klingon-tech/klingnet-intents/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-intents/internal/log"
	"github.com/Klingon-tech/klingnet-intents/internal/metrics"
	"github.com/Klingon-tech/klingnet-intents/internal/rpc"
	"github.com/Klingon-tech/klingnet-intents/internal/settlement"
	"github.com/Klingon-tech/klingnet-intents/internal/storage"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized settlement node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	db         storage.DB
	ledger     *ledger.Ledger
	settlement *settlement.Service
	dispatcher *ledger.Dispatcher

	rpcServer     *rpc.Server
	metricsServer *http.Server
	metricsAddr   string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens storage, initializes the ledger from genesis and starts the RPC
// and metrics listeners. Background workers start with Start.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Logger ───────────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/intents.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// ── 2. Genesis ──────────────────────────────────────────────────
	cfg.Genesis = expandHome(cfg.Genesis)
	genesis, err := config.ResolveGenesis(cfg)
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	if err := genesis.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("verifying_contract", genesis.VerifyingContract).
		Uint32("fee_pips", genesis.Fee).
		Msg("Starting intents settlement node")

	// ── 3. Storage ──────────────────────────────────────────────────
	db, err := storage.Open(cfg.DB.Backend, cfg.LedgerDir())
	if err != nil {
		return nil, fmt.Errorf("open %s database at %s: %w", cfg.DB.Backend, cfg.LedgerDir(), err)
	}
	logger.Info().Str("backend", cfg.DB.Backend).Str("path", cfg.LedgerDir()).Msg("Database opened")

	// ── 4. Ledger ───────────────────────────────────────────────────
	l, err := ledger.New(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := l.InitFromGenesis(genesis); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	// ── 5. Settlement + metrics ─────────────────────────────────────
	svc := settlement.New(l)
	dispatcher := ledger.NewDispatcher(l, ledger.LogHandler(klog.WithComponent("withdraw")), dispatchInterval(cfg))

	n := &Node{
		cfg:        cfg,
		genesis:    genesis,
		logger:     logger,
		db:         db,
		ledger:     l,
		settlement: svc,
		dispatcher: dispatcher,
	}

	if cfg.Metrics.Enabled {
		m := metrics.SettlementMetrics()
		svc.SetMetrics(m)
		dispatcher.SetMetrics(m)
		if err := n.startMetrics(cfg.Metrics.Addr); err != nil {
			db.Close()
			return nil, err
		}
	}

	// ── 6. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		rpcAddr := net.JoinHostPort(cfg.RPC.Addr, fmt.Sprint(cfg.RPC.Port))
		n.rpcServer = rpc.New(rpcAddr, svc, cfg.RPC)
		if cfg.Metrics.Enabled {
			n.rpcServer.SetMetrics(metrics.RPCMetrics())
		}
		if err := n.rpcServer.Start(); err != nil {
			n.stopMetrics()
			db.Close()
			return nil, fmt.Errorf("start RPC at %s: %w", rpcAddr, err)
		}
		logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	n.ctx, n.cancel = context.WithCancel(context.Background())
	return n, nil
}

// Start launches the withdrawal dispatcher.
func (n *Node) Start() error {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.dispatcher.Run(n.ctx)
	}()

	info, err := n.settlement.Info()
	if err != nil {
		return fmt.Errorf("read ledger info: %w", err)
	}
	n.logger.Info().
		Int("pending_withdrawals", info.PendingWithdrawals).
		Str("rpc", n.RPCAddr()).
		Str("metrics", n.metricsAddr).
		Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	n.stopMetrics()
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// MetricsAddr returns the address serving /metrics, if enabled.
func (n *Node) MetricsAddr() string {
	return n.metricsAddr
}

// Settlement returns the settlement service.
func (n *Node) Settlement() *settlement.Service {
	return n.settlement
}

// Ledger returns the underlying ledger.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// ── Metrics ─────────────────────────────────────────────────────────

func (n *Node) startMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	n.metricsAddr = ln.Addr().String()
	n.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := n.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	n.logger.Info().Str("addr", n.metricsAddr).Msg("Metrics endpoint started")
	return nil
}

func (n *Node) stopMetrics() {
	if n.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n.metricsServer.Shutdown(ctx)
}
