// Package node wires the stores, the attestation backends and the review
// services of an attestd process together and serves them over JSON-RPC.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dbm "github.com/tendermint/tm-db"
	"golang.org/x/net/netutil"

	"github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/internal/delivery"
	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/internal/rating"
	"github.com/tendermint/reviewattest/internal/review"
	rpccore "github.com/tendermint/reviewattest/internal/rpc/core"
	"github.com/tendermint/reviewattest/libs/log"
	"github.com/tendermint/reviewattest/libs/service"
	rpcserver "github.com/tendermint/reviewattest/rpc/jsonrpc/server"
	"github.com/tendermint/reviewattest/version"
)

// Node is the attestd service: the delivery registry, the review
// orchestrator and the rating aggregator behind an RPC server.
type Node struct {
	service.BaseService
	logger log.Logger

	config *config.Config
	signer ledger.Signer

	store    DurableStore
	extraDBs []dbm.DB
	ledger   ledger.Client
	rpcEnv   *rpccore.Environment

	rpcListeners []net.Listener
	prometheus   *http.Server
	cancel       context.CancelFunc
	tasks        *taskgroup.Group
}

// NewDefault constructs a node from cfg, loading or generating the signer
// key in the configured signer-key-file.
func NewDefault(cfg *config.Config, logger log.Logger) (*Node, error) {
	signer, err := ledger.LoadOrGenFileSigner(cfg.SignerKeyFile())
	if err != nil {
		return nil, fmt.Errorf("loading signer key: %w", err)
	}
	return New(cfg, logger, signer, config.DefaultDBProvider)
}

// New opens the stores named in cfg and builds the review services on
// them. The returned node owns the opened stores and closes them when it
// stops.
func New(cfg *config.Config, logger log.Logger, signer ledger.Signer, dbProvider config.DBProvider) (*Node, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	n := &Node{
		logger: logger,
		config: cfg,
		signer: signer,
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)

	s, err := OpenStore(cfg, dbProvider, logger.With("module", "store"))
	if err != nil {
		return nil, err
	}
	n.store = s

	metrics := defaultMetricsProvider(cfg.Instrumentation)

	registry := delivery.NewRegistry(s, cfg.Delivery, logger.With("module", "delivery"),
		delivery.WithMetrics(metrics.delivery))
	ratings := rating.NewAggregator(s, logger.With("module", "rating"), metrics.rating)

	opts := []review.OrchestratorOption{review.WithMetrics(metrics.review)}
	if cfg.Attestation.Enabled {
		content, contentDB, err := openContentStore(cfg, dbProvider, logger)
		if err != nil {
			n.closeStores()
			return nil, err
		}
		if contentDB != nil {
			n.extraDBs = append(n.extraDBs, contentDB)
		}

		client, ledgerDB, err := openLedger(cfg, dbProvider, signer, logger)
		if err != nil {
			n.closeStores()
			return nil, err
		}
		if ledgerDB != nil {
			n.extraDBs = append(n.extraDBs, ledgerDB)
		}
		n.ledger = client
		opts = append(opts, review.WithAttestor(content, client))
	}
	reviews := review.NewOrchestrator(s, registry, ratings, cfg.Attestation,
		logger.With("module", "review"), opts...)

	n.rpcEnv = &rpccore.Environment{
		Registry:   registry,
		Reviews:    reviews,
		Ratings:    ratings,
		CodePolicy: cfg.Delivery.CodePolicy,
		Ledger:     n.ledger,
		Logger:     logger.With("module", "rpc"),
		Config:     *cfg.RPC,
	}
	return n, nil
}

// OnStart starts the RPC listeners and, when enabled, the Prometheus
// server.
func (n *Node) OnStart(ctx context.Context) error {
	n.logger.Info("starting node",
		"version", version.AttestdSemVer,
		"attestation", n.rpcEnv.Reviews.CanAttest(),
		"code_policy", n.config.Delivery.CodePolicy,
		"signer", n.signer.PubKey().Address(),
	)

	sctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.tasks = taskgroup.New(nil)

	if n.config.Instrumentation.Prometheus && n.config.Instrumentation.PrometheusListenAddr != "" {
		n.prometheus = n.startPrometheusServer(n.config.Instrumentation.PrometheusListenAddr)
	}

	if err := n.startRPC(sctx); err != nil {
		cancel()
		n.stopPrometheus()
		return err
	}
	return nil
}

// OnStop shuts the servers down and closes the stores.
func (n *Node) OnStop() {
	n.logger.Info("stopping node")
	n.cancel()
	if err := n.tasks.Wait(); err != nil {
		n.logger.Error("RPC server shutdown", "err", err)
	}
	n.stopPrometheus()
	n.closeStores()
}

func (n *Node) startRPC(ctx context.Context) error {
	addrs := n.rpcEnv.ListenAddresses()
	if len(addrs) == 0 {
		n.logger.Info("RPC disabled, no listen address")
		return nil
	}

	handler := n.rpcEnv.Handler()
	cfg := n.rpcEnv.ServerConfig()

	// we may expose the rpc over both a unix and tcp socket
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		l, err := rpcserver.Listen(addr, cfg.MaxOpenConnections)
		if err != nil {
			for _, open := range listeners {
				open.Close()
			}
			return err
		}
		listeners = append(listeners, l)
	}

	logger := n.logger.With("module", "rpc-server")
	for _, l := range listeners {
		l := l
		n.tasks.Go(func() error {
			if err := rpcserver.Serve(ctx, l, handler, logger, cfg); err != nil {
				logger.Error("error serving RPC", "addr", l.Addr(), "err", err)
				return err
			}
			return nil
		})
	}
	n.rpcListeners = listeners
	return nil
}

// startPrometheusServer starts a Prometheus HTTP server, listening for
// metrics collectors on addr.
func (n *Node) startPrometheusServer(addr string) *http.Server {
	srv := &http.Server{
		Addr: addr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: n.config.Instrumentation.MaxOpenConnections},
			),
		),
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		n.logger.Error("Prometheus listener", "addr", addr, "err", err)
		return nil
	}
	if max := n.config.Instrumentation.MaxOpenConnections; max > 0 {
		l = netutil.LimitListener(l, max)
	}
	go func() {
		if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("Prometheus HTTP server Serve", "err", err)
		}
	}()
	return srv
}

func (n *Node) stopPrometheus() {
	if n.prometheus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.prometheus.Shutdown(ctx); err != nil {
		n.logger.Error("Prometheus HTTP server Shutdown", "err", err)
	}
}

func (n *Node) closeStores() {
	if n.store != nil {
		if err := n.store.Close(); err != nil {
			n.logger.Error("closing store", "err", err)
		}
	}
	for _, db := range n.extraDBs {
		if err := db.Close(); err != nil {
			n.logger.Error("closing database", "err", err)
		}
	}
}

// RPCEnvironment returns the environment the RPC routes are served from.
func (n *Node) RPCEnvironment() *rpccore.Environment { return n.rpcEnv }

// RPCAddrs returns the addresses the RPC server listens on, once started.
func (n *Node) RPCAddrs() []net.Addr {
	out := make([]net.Addr, len(n.rpcListeners))
	for i, l := range n.rpcListeners {
		out[i] = l.Addr()
	}
	return out
}

// Config returns the node's configuration.
func (n *Node) Config() *config.Config { return n.config }
