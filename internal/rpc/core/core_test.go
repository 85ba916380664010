package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/crypto/ed25519"
	"github.com/tendermint/reviewattest/internal/contentstore/local"
	"github.com/tendermint/reviewattest/internal/delivery"
	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/internal/ledger/contract"
	"github.com/tendermint/reviewattest/internal/rating"
	"github.com/tendermint/reviewattest/internal/review"
	"github.com/tendermint/reviewattest/internal/store/kv"
	"github.com/tendermint/reviewattest/libs/log"
	"github.com/tendermint/reviewattest/rpc/coretypes"
	rpcclient "github.com/tendermint/reviewattest/rpc/jsonrpc/client"
	rpctypes "github.com/tendermint/reviewattest/rpc/jsonrpc/types"
	"github.com/tendermint/reviewattest/types"
)

func newTestEnv(t *testing.T, unsafe bool) *Environment {
	t.Helper()
	logger := log.TestingLogger()

	s := kv.NewStore(dbm.NewMemDB())
	signer := ledger.NewFileSigner(ed25519.GenPrivKey(), "")
	c, err := contract.New(dbm.NewMemDB(), signer.PubKey(), logger)
	require.NoError(t, err)
	lc := contract.NewLocalClient(c, signer)

	dcfg := config.DefaultDeliveryConfig()
	registry := delivery.NewRegistry(s, dcfg, logger)
	ratings := rating.NewAggregator(s, logger, nil)
	reviews := review.NewOrchestrator(s, registry, ratings, config.TestAttestationConfig(), logger,
		review.WithAttestor(local.NewStore(dbm.NewMemDB()), lc))

	rpcConfig := config.TestRPCConfig()
	rpcConfig.Unsafe = unsafe
	return &Environment{
		Registry:   registry,
		Reviews:    reviews,
		Ratings:    ratings,
		CodePolicy: dcfg.CodePolicy,
		Ledger:     lc,
		Logger:     logger,
		Config:     *rpcConfig,
	}
}

func serve(t *testing.T, env *Environment) (*httptest.Server, *rpcclient.Client) {
	t.Helper()
	ts := httptest.NewServer(env.Handler())
	t.Cleanup(ts.Close)
	c, err := rpcclient.New(ts.URL)
	require.NoError(t, err)
	return ts, c
}

// post sends a raw JSON-RPC request and returns the HTTP status and the
// decoded response.
func post(t *testing.T, url, method string, params interface{}) (int, rpctypes.RPCResponse) {
	t.Helper()
	req, err := rpctypes.ParamsToRequest(1, method, params)
	require.NoError(t, err)
	bz, err := json.Marshal(req)
	require.NoError(t, err)

	res, err := http.Post(url, "application/json", bytes.NewReader(bz))
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var rsp rpctypes.RPCResponse
	require.NoError(t, json.Unmarshal(body, &rsp))
	return res.StatusCode, rsp
}

func TestRPCErrorMapping(t *testing.T) {
	testCases := []struct {
		err    error
		code   int
		status int
	}{
		{fmt.Errorf("%w: rating 9", types.ErrInvalidReview), int(rpctypes.CodeInvalidParams), http.StatusBadRequest},
		{types.ErrNotEntitled, CodeNotEntitled, http.StatusForbidden},
		{types.ErrCodeConsumed, CodeNotEntitled, http.StatusForbidden},
		{types.ErrDuplicateReview, CodeDuplicateReview, http.StatusConflict},
		{fmt.Errorf("order 1: %w", types.ErrAlreadyDelivered), CodeAlreadyDelivered, http.StatusConflict},
		{types.ErrReviewImmutable, CodeReviewImmutable, http.StatusMethodNotAllowed},
		{fmt.Errorf("review x: %w", types.ErrNotFound), CodeNotFound, http.StatusNotFound},
		{review.ErrAttestationDisabled, CodeAttestationDisabled, http.StatusNotImplemented},
		{fmt.Errorf("%w: dial", types.ErrContentStoreUnavailable), CodeContentStoreUnavailable, http.StatusBadGateway},
		{fmt.Errorf("%w: refused", types.ErrLedgerRejected), CodeLedgerRejected, http.StatusBadGateway},
		{fmt.Errorf("%w: timeout", types.ErrLedgerUnavailable), CodeLedgerUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: disk full", types.ErrStorageFailure), CodeStorageFailure, http.StatusInternalServerError},
	}
	for i, tc := range testCases {
		err := rpcError(tc.err)
		var e *rpctypes.RPCError
		require.True(t, errors.As(err, &e), "#%d", i)
		assert.Equal(t, tc.code, e.Code, "#%d", i)
		assert.Equal(t, tc.status, e.Status(), "#%d", i)
		// the specific cause survives
		assert.Equal(t, tc.err.Error(), e.Data, "#%d", i)
	}

	plain := errors.New("boom")
	assert.Equal(t, plain, rpcError(plain))
	assert.NoError(t, rpcError(nil))
}

func TestReviewFlowOverRPC(t *testing.T) {
	env := newTestEnv(t, true)
	ts, c := serve(t, env)
	ctx := context.Background()

	require.NoError(t, c.Call(ctx, "record_order", coretypes.RequestRecordOrder{
		Order: "ORDER-1", User: "alice", Products: []string{"p1", "p2"},
	}, nil))

	var delivered coretypes.ResultDeliveries
	require.NoError(t, c.Call(ctx, "mark_delivered", coretypes.RequestOrder{Order: "ORDER-1"}, &delivered))
	require.Len(t, delivered.Deliveries, 2)
	codes := map[string]string{}
	for _, d := range delivered.Deliveries {
		codes[d.Product] = d.Code
	}

	var verified coretypes.ResultVerifyCode
	require.NoError(t, c.Call(ctx, "verify_code",
		coretypes.RequestVerifyCode{User: "alice", Product: "p2", Code: codes["p1"]}, &verified))
	assert.False(t, verified.Valid)
	require.NoError(t, c.Call(ctx, "verify_code",
		coretypes.RequestVerifyCode{User: "alice", Product: "p1", Code: codes["p1"]}, &verified))
	assert.True(t, verified.Valid)

	var submitted coretypes.ResultSubmitReview
	require.NoError(t, c.Call(ctx, "submit_review", coretypes.RequestSubmitReview{
		User: "alice", Product: "p1", Rating: 4, Comment: "sturdy", Code: codes["p1"], Attest: true,
	}, &submitted))
	assert.Equal(t, review.StatusAttested, submitted.Attestation.Status)
	assert.True(t, submitted.Review.Attestation.Stored)

	var rated coretypes.ResultRating
	require.NoError(t, c.Call(ctx, "product_rating", coretypes.RequestProduct{Product: "p1"}, &rated))
	assert.Equal(t, 4.0, rated.OverallRating)
	assert.Equal(t, 1, rated.ReviewCount)

	var listed coretypes.ResultReviews
	require.NoError(t, c.Call(ctx, "product_reviews", coretypes.RequestProduct{Product: "p1"}, &listed))
	require.Equal(t, 1, listed.Total)
	assert.Equal(t, submitted.Review.ID, listed.Reviews[0].ID)

	var onLedger coretypes.ResultLedgerReviews
	require.NoError(t, c.Call(ctx, "ledger_reviews", coretypes.RequestProduct{Product: "p1"}, &onLedger))
	require.Len(t, onLedger.Reviews, 1)
	require.NotNil(t, onLedger.Reviews[0].Review)
	assert.Equal(t, "sturdy", onLedger.Reviews[0].Review.Comment)
	assert.Empty(t, onLedger.Reviews[0].Error)

	var mine coretypes.ResultDeliveries
	require.NoError(t, c.Call(ctx, "my_deliveries", coretypes.RequestUser{User: "alice"}, &mine))
	assert.Len(t, mine.Deliveries, 2)

	var status coretypes.ResultStatus
	require.NoError(t, c.Call(ctx, "status", nil, &status))
	assert.True(t, status.Attestation)
	require.NotNil(t, status.Ledger)
	assert.Equal(t, int64(2), status.Ledger.Height)

	// outcomes map onto HTTP statuses
	code, rsp := post(t, ts.URL, "submit_review", coretypes.RequestSubmitReview{
		User: "alice", Product: "p1", Rating: 5, Comment: "again", Code: codes["p1"],
	})
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, rsp.Error)
	assert.Equal(t, CodeDuplicateReview, rsp.Error.Code)

	code, rsp = post(t, ts.URL, "submit_review", coretypes.RequestSubmitReview{
		User: "bob", Product: "p1", Rating: 5, Comment: "never bought it",
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, CodeNotEntitled, rsp.Error.Code)

	code, rsp = post(t, ts.URL, "submit_review", coretypes.RequestSubmitReview{
		User: "alice", Product: "p2", Rating: 9, Comment: "off the scale",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, int(rpctypes.CodeInvalidParams), rsp.Error.Code)

	code, rsp = post(t, ts.URL, "delete_review", coretypes.RequestReview{ID: submitted.Review.ID})
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.Equal(t, CodeReviewImmutable, rsp.Error.Code)

	code, rsp = post(t, ts.URL, "review", coretypes.RequestReview{ID: "missing"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, CodeNotFound, rsp.Error.Code)

	code, rsp = post(t, ts.URL, "mark_delivered", coretypes.RequestOrder{Order: "ORDER-1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, CodeAlreadyDelivered, rsp.Error.Code)

	code, rsp = post(t, ts.URL, "my_deliveries", coretypes.RequestUser{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, rsp.Error.Data, "missing user")

	var recomputed coretypes.ResultRecomputeRatings
	require.NoError(t, c.Call(ctx, "recompute_ratings", nil, &recomputed))
	assert.Equal(t, 2, recomputed.Products)

	var all coretypes.ResultReviews
	require.NoError(t, c.Call(ctx, "all_reviews", nil, &all))
	assert.Equal(t, 1, all.Total)
}

func TestURIRoutes(t *testing.T) {
	env := newTestEnv(t, false)
	ts, _ := serve(t, env)

	res, err := http.Get(ts.URL + "/product_rating?product=%22p1%22")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var rsp rpctypes.RPCResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&rsp))
	require.Nil(t, rsp.Error)
	var sum coretypes.ResultRating
	require.NoError(t, json.Unmarshal(rsp.Result, &sum))
	assert.Equal(t, "p1", sum.Product)
	assert.Equal(t, 0, sum.ReviewCount)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestUnsafeRoutesNeedOptIn(t *testing.T) {
	safe := NewRoutesMap(newTestEnv(t, false), nil)
	for _, name := range []string{"record_order", "mark_delivered", "all_reviews", "delete_review", "retry_attestation", "recompute_ratings"} {
		assert.NotContains(t, safe, name)
	}
	for _, name := range []string{"health", "status", "submit_review", "review", "product_reviews",
		"product_rating", "verify_code", "my_deliveries", "ledger_reviews"} {
		assert.Contains(t, safe, name)
	}

	all := NewRoutesMap(newTestEnv(t, true), &RouteOptions{Unsafe: true})
	assert.Contains(t, all, "retry_attestation")

	env := newTestEnv(t, false)
	ts, _ := serve(t, env)
	code, rsp := post(t, ts.URL, "mark_delivered", coretypes.RequestOrder{Order: "ORDER-1"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, int(rpctypes.CodeMethodNotFound), rsp.Error.Code)
}

func TestListenAddresses(t *testing.T) {
	env := &Environment{Config: config.RPCConfig{ListenAddress: "tcp://127.0.0.1:1, ,unix:///tmp/a.sock"}}
	assert.Equal(t, []string{"tcp://127.0.0.1:1", "unix:///tmp/a.sock"}, env.ListenAddresses())
}
