package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendermint/reviewattest/libs/log"
	rpcclient "github.com/tendermint/reviewattest/rpc/jsonrpc/client"
	rpctypes "github.com/tendermint/reviewattest/rpc/jsonrpc/types"
	"github.com/tendermint/reviewattest/types"
)

// HTTPClient talks to a ledger node over JSON-RPC.
type HTTPClient struct {
	rpc    *rpcclient.Client
	signer Signer
	logger log.Logger
}

var (
	_ Client       = (*HTTPClient)(nil)
	_ StatusClient = (*HTTPClient)(nil)
)

// NewHTTPClient returns a client of the ledger node at remote that signs
// every write with signer.
func NewHTTPClient(remote string, signer Signer, logger log.Logger) (*HTTPClient, error) {
	if signer == nil {
		return nil, errors.New("ledger client requires a signer")
	}
	c, err := rpcclient.New(remote)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		rpc:    c,
		signer: signer,
		logger: logger.With("module", "ledger", "remote", remote),
	}, nil
}

func (c *HTTPClient) VerifyReviewer(ctx context.Context, user, product string) (Receipt, error) {
	return c.broadcast(ctx, NewTxBody(TxVerifyReviewer, user, product, ""))
}

func (c *HTTPClient) SubmitReview(ctx context.Context, user, product, contentID string) (Receipt, error) {
	return c.broadcast(ctx, NewTxBody(TxSubmitReview, user, product, contentID))
}

func (c *HTTPClient) IsReviewerVerified(ctx context.Context, user, product string) (bool, error) {
	var res ResultReviewerVerified
	if err := c.call(ctx, "reviewer_verified", RequestReviewer{User: user, Product: product}, &res); err != nil {
		return false, err
	}
	return res.Verified, nil
}

func (c *HTTPClient) HasReviewed(ctx context.Context, user, product string) (bool, error) {
	var res ResultHasReviewed
	if err := c.call(ctx, "has_reviewed", RequestReviewer{User: user, Product: product}, &res); err != nil {
		return false, err
	}
	return res.Reviewed, nil
}

func (c *HTTPClient) FetchReviews(ctx context.Context, product string) ([]Attestation, error) {
	var res ResultReviews
	if err := c.call(ctx, "reviews", RequestProduct{Product: product}, &res); err != nil {
		return nil, err
	}
	return res.Reviews, nil
}

// Status returns the state summary of the ledger node.
func (c *HTTPClient) Status(ctx context.Context) (Status, error) {
	var res Status
	if err := c.call(ctx, "status", nil, &res); err != nil {
		return Status{}, err
	}
	return res, nil
}

func (c *HTTPClient) broadcast(ctx context.Context, body TxBody) (Receipt, error) {
	tx, err := SignTx(c.signer, body)
	if err != nil {
		return Receipt{}, err
	}
	var res TxResult
	if err := c.call(ctx, "broadcast_tx_commit", RequestBroadcastTx{Tx: tx}, &res); err != nil {
		return Receipt{}, err
	}
	if !res.IsOK() {
		c.logger.Debug("transaction rejected", "type", body.Type, "code", res.Code, "log", res.Log)
		return Receipt{}, fmt.Errorf("%w: %s (code %d)", types.ErrLedgerRejected, res.Log, res.Code)
	}
	return res.Receipt(), nil
}

func (c *HTTPClient) call(ctx context.Context, method string, params, result interface{}) error {
	err := c.rpc.Call(ctx, method, params, result)
	if err == nil {
		return nil
	}
	return classify(method, err)
}

// classify maps a JSON-RPC failure to a ledger error class. Requests the
// node refused as malformed are rejections; everything else, including
// node-side failures, means the ledger is not usable right now.
func classify(method string, err error) error {
	var rpcErr *rpctypes.RPCError
	if errors.As(err, &rpcErr) {
		switch rpctypes.ErrorCode(rpcErr.Code) {
		case rpctypes.CodeInvalidRequest, rpctypes.CodeInvalidParams, rpctypes.CodeMethodNotFound:
			return fmt.Errorf("%w: %s: %v", types.ErrLedgerRejected, method, rpcErr)
		}
	}
	return fmt.Errorf("%w: %s: %v", types.ErrLedgerUnavailable, method, err)
}
