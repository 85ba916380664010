package rating

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"
	"pgregory.net/rapid"

	"github.com/tendermint/reviewattest/internal/store"
	"github.com/tendermint/reviewattest/internal/store/kv"
	"github.com/tendermint/reviewattest/libs/log"
	"github.com/tendermint/reviewattest/types"
)

func addReview(t *testing.T, s *kv.Store, user, product string, rating int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.CreateReview(context.Background(), types.ReviewRecord{
		ID:          fmt.Sprintf("%s-%s", user, product),
		User:        user,
		Product:     product,
		Rating:      rating,
		Comment:     "ok",
		Attestation: types.Attestation{State: types.AttestationCommitted},
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func TestSummarize(t *testing.T) {
	testCases := []struct {
		ratings []int
		mean    float64
		count   int
	}{
		{nil, 0, 0},
		{[]int{5, 3, 4}, 4.0, 3},
		{[]int{5}, 5.0, 1},
		{[]int{1, 2}, 1.5, 2},
		{[]int{4, 4, 5}, 4.3, 3},
		{[]int{5, 5, 4}, 4.7, 3},
		// 4.25 rounds away from zero
		{[]int{4, 4, 4, 5}, 4.3, 4},
		{[]int{1, 1, 1, 2}, 1.3, 4},
	}
	for i, tc := range testCases {
		mean, count := Summarize(tc.ratings)
		assert.Equal(t, tc.mean, mean, "#%d", i)
		assert.Equal(t, tc.count, count, "#%d", i)
	}
}

func TestSummarizeStaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ratings := rapid.SliceOfN(rapid.IntRange(types.MinRating, types.MaxRating), 1, 200).Draw(t, "ratings").([]int)
		mean, count := Summarize(ratings)
		if count != len(ratings) {
			t.Fatalf("count %d, want %d", count, len(ratings))
		}
		if mean < types.MinRating || mean > types.MaxRating {
			t.Fatalf("mean %v out of range", mean)
		}
	})
}

func TestRecompute(t *testing.T) {
	s := kv.NewStore(dbm.NewMemDB())
	a := NewAggregator(s, log.TestingLogger(), nil)
	ctx := context.Background()

	addReview(t, s, "alice", "p1", 5)
	addReview(t, s, "bob", "p1", 3)
	addReview(t, s, "carol", "p1", 4)
	addReview(t, s, "carol", "p2", 1)

	sum, err := a.Recompute(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, sum.OverallRating)
	assert.Equal(t, 3, sum.ReviewCount)

	// idempotent
	again, err := a.Recompute(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, sum.OverallRating, again.OverallRating)
	assert.Equal(t, sum.ReviewCount, again.ReviewCount)

	stored, err := a.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, stored.OverallRating)
	assert.Equal(t, 3, stored.ReviewCount)

	empty, err := a.Recompute(ctx, "p9")
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty.OverallRating)
	assert.Equal(t, 0, empty.ReviewCount)
}

func TestGetWithoutSummary(t *testing.T) {
	a := NewAggregator(kv.NewStore(dbm.NewMemDB()), log.NewNopLogger(), NopMetrics())
	sum, err := a.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, types.ProductRatingSummary{Product: "p1"}, sum)
}

func TestRecomputeAll(t *testing.T) {
	s := kv.NewStore(dbm.NewMemDB())
	a := NewAggregator(s, log.TestingLogger(), nil)
	ctx := context.Background()

	addReview(t, s, "alice", "p1", 5)
	addReview(t, s, "alice", "p2", 2)
	addReview(t, s, "bob", "p2", 3)

	// a stale summary is repaired
	require.NoError(t, s.SaveRating(ctx, types.ProductRatingSummary{Product: "p2", OverallRating: 1, ReviewCount: 9}))

	n, err := a.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p2, err := a.Get(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 2.5, p2.OverallRating)
	assert.Equal(t, 2, p2.ReviewCount)
}

type brokenStore struct{ Store }

func (brokenStore) ProductRatings(context.Context, string) ([]int, error) {
	return nil, store.Failure("product ratings", errors.New("io error"))
}

func TestRecomputeStorageFailure(t *testing.T) {
	a := NewAggregator(brokenStore{}, log.NewNopLogger(), nil)
	_, err := a.Recompute(context.Background(), "p1")
	assert.ErrorIs(t, err, types.ErrStorageFailure)
}
