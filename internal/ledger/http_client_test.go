package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/reviewattest/libs/log"
	rpcserver "github.com/tendermint/reviewattest/rpc/jsonrpc/server"
	rpctypes "github.com/tendermint/reviewattest/rpc/jsonrpc/types"
	"github.com/tendermint/reviewattest/types"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		err  error
		want error
	}{
		{rpctypes.NewError(int(rpctypes.CodeInvalidParams), 400, "Invalid params", "x"), types.ErrLedgerRejected},
		{fmt.Errorf("wrapped: %w", rpctypes.NewError(int(rpctypes.CodeMethodNotFound), 404, "Method not found", "")), types.ErrLedgerRejected},
		{rpctypes.NewError(int(rpctypes.CodeInternalError), 500, "Internal error", "disk"), types.ErrLedgerUnavailable},
		{errors.New("post failed: connection refused"), types.ErrLedgerUnavailable},
		{context.DeadlineExceeded, types.ErrLedgerUnavailable},
	}
	for i, tc := range testCases {
		err := classify("status", tc.err)
		assert.ErrorIs(t, err, tc.want, "#%d", i)
		assert.Contains(t, err.Error(), "status", "#%d", i)
	}
	assert.NotEqual(t, types.ErrLedgerRejected.Error(), types.ErrLedgerUnavailable.Error())
}

// fakeNode answers broadcast_tx_commit with a fixed result and records the
// transactions it received.
type fakeNode struct {
	mtx    sync.Mutex
	result TxResult
	txs    []Tx
}

func (f *fakeNode) setResult(res TxResult) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.result = res
}

func (f *fakeNode) received() []Tx {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return append([]Tx(nil), f.txs...)
}

func (f *fakeNode) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	rpcserver.RegisterRPCFuncs(mux, map[string]*rpcserver.RPCFunc{
		"broadcast_tx_commit": rpcserver.NewRPCFunc(func(ctx context.Context, req *RequestBroadcastTx) (*TxResult, error) {
			f.mtx.Lock()
			defer f.mtx.Unlock()
			f.txs = append(f.txs, req.Tx)
			res := f.result
			res.Hash = req.Tx.Hash()
			return &res, nil
		}),
		"reviewer_verified": rpcserver.NewRPCFunc(func(ctx context.Context, req *RequestReviewer) (*ResultReviewerVerified, error) {
			return &ResultReviewerVerified{Verified: req.User == "alice"}, nil
		}),
		"reviews": rpcserver.NewRPCFunc(func(ctx context.Context, req *RequestProduct) (*ResultReviews, error) {
			return nil, errors.New("index corrupted")
		}),
	}, log.NewNopLogger())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTPClientBroadcast(t *testing.T) {
	node := &fakeNode{result: TxResult{Code: CodeOK, Height: 3}}
	ts := node.server(t)

	signer := testSigner(t)
	c, err := NewHTTPClient(ts.URL, signer, log.NewNopLogger())
	require.NoError(t, err)

	ctx := context.Background()
	rcpt, err := c.SubmitReview(ctx, "alice", "p1", "bafkreicid")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rcpt.Height)

	txs := node.received()
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.True(t, tx.VerifySignature())
	assert.Equal(t, TxSubmitReview, tx.Body.Type)
	assert.Equal(t, "bafkreicid", tx.Body.ContentID)
	assert.Equal(t, tx.Hash(), rcpt.TxID)

	node.setResult(TxResult{Code: CodeNotVerified, Log: "not verified"})
	_, err = c.SubmitReview(ctx, "bob", "p1", "bafkreicid")
	assert.ErrorIs(t, err, types.ErrLedgerRejected)
	assert.Contains(t, err.Error(), "not verified")

	ok, err := c.IsReviewerVerified(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	// node-side failures and unknown routes
	_, err = c.FetchReviews(ctx, "p1")
	assert.ErrorIs(t, err, types.ErrLedgerUnavailable)
	_, err = c.HasReviewed(ctx, "alice", "p1")
	assert.ErrorIs(t, err, types.ErrLedgerRejected)
}

func TestHTTPClientUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	c, err := NewHTTPClient(addr, testSigner(t), log.NewNopLogger())
	require.NoError(t, err)

	_, err = c.VerifyReviewer(context.Background(), "alice", "p1")
	assert.ErrorIs(t, err, types.ErrLedgerUnavailable)
	assert.Contains(t, err.Error(), "ledger node unreachable")
}

func TestNewHTTPClientRequiresSigner(t *testing.T) {
	_, err := NewHTTPClient("tcp://127.0.0.1:8658", nil, log.NewNopLogger())
	assert.Error(t, err)
}
