package node

import (
	"context"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/reviewattest/crypto/ed25519"
	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/internal/ledger/contract"
	"github.com/tendermint/reviewattest/libs/log"
	"github.com/tendermint/reviewattest/types"
)

func startNode(t *testing.T, writer ledger.Signer) *Node {
	t.Helper()
	logger := log.TestingLogger()

	c, err := contract.New(dbm.NewMemDB(), writer.PubKey(), logger)
	require.NoError(t, err)

	n := New(c, "tcp://127.0.0.1:0", nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, n.Start(ctx))
	t.Cleanup(func() {
		if n.IsRunning() {
			require.NoError(t, n.Stop())
		}
	})
	return n
}

func TestNodeServesContract(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	signer := ledger.NewFileSigner(ed25519.GenPrivKey(), "")
	n := startNode(t, signer)

	client, err := ledger.NewHTTPClient("tcp://"+n.Addr().String(), signer, log.TestingLogger())
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := client.IsReviewerVerified(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.SubmitReview(ctx, "alice", "p1", "cid-1")
	assert.ErrorIs(t, err, types.ErrLedgerRejected)

	_, err = client.VerifyReviewer(ctx, "alice", "p1")
	require.NoError(t, err)

	rcpt, err := client.SubmitReview(ctx, "alice", "p1", "cid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rcpt.Height)

	reviewed, err := client.HasReviewed(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.True(t, reviewed)

	reviews, err := client.FetchReviews(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "cid-1", reviews[0].ContentID)
	assert.Equal(t, rcpt.TxID, reviews[0].TxID)

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Height)
	assert.Equal(t, signer.Address, st.Writer)

	// invalid arguments are rejections, not outages
	_, err = client.HasReviewed(ctx, "", "p1")
	assert.ErrorIs(t, err, types.ErrLedgerRejected)

	require.NoError(t, n.Stop())
}

func TestNodeRefusesOtherWriters(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	writer := ledger.NewFileSigner(ed25519.GenPrivKey(), "")
	n := startNode(t, writer)

	intruder := ledger.NewFileSigner(ed25519.GenPrivKey(), "")
	client, err := ledger.NewHTTPClient("tcp://"+n.Addr().String(), intruder, log.TestingLogger())
	require.NoError(t, err)

	_, err = client.VerifyReviewer(context.Background(), "alice", "p1")
	assert.ErrorIs(t, err, types.ErrLedgerRejected)
	assert.Contains(t, err.Error(), "not the registry writer")

	require.NoError(t, n.Stop())
}

func TestNodeStopsWithContext(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	signer := ledger.NewFileSigner(ed25519.GenPrivKey(), "")
	c, err := contract.New(dbm.NewMemDB(), signer.PubKey(), log.NewNopLogger())
	require.NoError(t, err)

	n := New(c, "tcp://127.0.0.1:0", nil, log.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, n.Start(ctx))
	assert.True(t, n.IsRunning())

	cancel()
	n.Wait()
	assert.False(t, n.IsRunning())
}

func TestNodeRejectsBadAddress(t *testing.T) {
	signer := ledger.NewFileSigner(ed25519.GenPrivKey(), "")
	c, err := contract.New(dbm.NewMemDB(), signer.PubKey(), log.NewNopLogger())
	require.NoError(t, err)

	n := New(c, "127.0.0.1:0", nil, log.NewNopLogger())
	assert.Error(t, n.Start(context.Background()))
}
