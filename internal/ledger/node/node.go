// Package node serves the review registry contract over JSON-RPC, so that
// attestd processes configured with a remote ledger can reach it.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/creachadair/taskgroup"

	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/internal/ledger/contract"
	"github.com/tendermint/reviewattest/libs/log"
	"github.com/tendermint/reviewattest/libs/service"
	rpcserver "github.com/tendermint/reviewattest/rpc/jsonrpc/server"
	rpctypes "github.com/tendermint/reviewattest/rpc/jsonrpc/types"
)

// Node is a service exposing a Contract on a JSON-RPC listener.
type Node struct {
	service.BaseService
	logger log.Logger

	contract *contract.Contract
	laddr    string
	config   *rpcserver.Config

	listener net.Listener
	cancel   context.CancelFunc
	tasks    *taskgroup.Group
}

// New returns a node serving c on laddr, e.g. tcp://127.0.0.1:8658.
func New(c *contract.Contract, laddr string, cfg *rpcserver.Config, logger log.Logger) *Node {
	if cfg == nil {
		cfg = rpcserver.DefaultConfig()
	}
	n := &Node{
		logger:   logger.With("module", "ledger-node"),
		contract: c,
		laddr:    laddr,
		config:   cfg,
	}
	n.BaseService = *service.NewBaseService(n.logger, "LedgerNode", n)
	return n
}

// OnStart implements service.Service.
func (n *Node) OnStart(ctx context.Context) error {
	listener, err := rpcserver.Listen(n.laddr, n.config.MaxOpenConnections)
	if err != nil {
		return err
	}
	n.listener = listener

	mux := http.NewServeMux()
	rpcserver.RegisterRPCFuncs(mux, n.Routes(), n.logger)

	sctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.tasks = taskgroup.New(nil)
	n.tasks.Go(func() error {
		if err := rpcserver.Serve(sctx, listener, mux, n.logger, n.config); err != nil {
			n.logger.Error("ledger RPC server stopped", "err", err)
			return err
		}
		return nil
	})
	n.logger.Info("ledger node started", "addr", listener.Addr(), "height", n.contract.Status().Height)
	return nil
}

// OnStop implements service.Service.
func (n *Node) OnStop() {
	n.cancel()
	if err := n.tasks.Wait(); err != nil {
		n.logger.Error("ledger node shutdown", "err", err)
	}
}

// Addr returns the address the node listens on, once started.
func (n *Node) Addr() net.Addr {
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// Routes returns the JSON-RPC routes of the node.
func (n *Node) Routes() map[string]*rpcserver.RPCFunc {
	return map[string]*rpcserver.RPCFunc{
		"broadcast_tx_commit": rpcserver.NewRPCFunc(n.BroadcastTxCommit),
		"reviewer_verified":   rpcserver.NewRPCFunc(n.ReviewerVerified),
		"has_reviewed":        rpcserver.NewRPCFunc(n.HasReviewed),
		"reviews":             rpcserver.NewRPCFunc(n.Reviews),
		"status":              rpcserver.NewRPCFunc(n.Status),
	}
}

// BroadcastTxCommit applies a signed transaction and returns its result.
// Refusals are reported through the result code.
func (n *Node) BroadcastTxCommit(ctx context.Context, req *ledger.RequestBroadcastTx) (*ledger.TxResult, error) {
	res, err := n.contract.DeliverTx(req.Tx)
	if err != nil {
		n.logger.Error("delivering tx", "err", err)
		return nil, fmt.Errorf("delivering tx: %w", err)
	}
	return &res, nil
}

func (n *Node) ReviewerVerified(ctx context.Context, req *ledger.RequestReviewer) (*ledger.ResultReviewerVerified, error) {
	if err := validateReviewer(req); err != nil {
		return nil, err
	}
	ok, err := n.contract.IsReviewerVerified(req.User, req.Product)
	if err != nil {
		return nil, err
	}
	return &ledger.ResultReviewerVerified{Verified: ok}, nil
}

func (n *Node) HasReviewed(ctx context.Context, req *ledger.RequestReviewer) (*ledger.ResultHasReviewed, error) {
	if err := validateReviewer(req); err != nil {
		return nil, err
	}
	ok, err := n.contract.HasReviewed(req.User, req.Product)
	if err != nil {
		return nil, err
	}
	return &ledger.ResultHasReviewed{Reviewed: ok}, nil
}

func (n *Node) Reviews(ctx context.Context, req *ledger.RequestProduct) (*ledger.ResultReviews, error) {
	if req.Product == "" {
		return nil, invalidParams(errors.New("product_id is required"))
	}
	reviews, err := n.contract.Reviews(req.Product)
	if err != nil {
		return nil, err
	}
	return &ledger.ResultReviews{Reviews: reviews}, nil
}

func (n *Node) Status(ctx context.Context) (*ledger.Status, error) {
	st := n.contract.Status()
	return &st, nil
}

func validateReviewer(req *ledger.RequestReviewer) error {
	if req.User == "" || req.Product == "" {
		return invalidParams(errors.New("user_id and product_id are required"))
	}
	return nil
}

func invalidParams(err error) error {
	return rpctypes.NewError(int(rpctypes.CodeInvalidParams), http.StatusBadRequest, rpctypes.CodeInvalidParams.String(), err.Error())
}
