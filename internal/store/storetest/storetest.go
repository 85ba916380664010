// Package storetest holds behavioral tests that every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/reviewattest/internal/store"
	"github.com/tendermint/reviewattest/types"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run runs the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	for name, fn := range map[string]func(*testing.T, store.Store){
		"Orders":                 testOrders,
		"DeliveryUniqueness":     testDeliveryUniqueness,
		"DeliveryUpdate":         testDeliveryUpdate,
		"DeliveriesByUser":       testDeliveriesByUser,
		"ConsumeCode":            testConsumeCode,
		"ReviewLifecycle":        testReviewLifecycle,
		"ConcurrentCreateReview": testConcurrentCreateReview,
		"Ratings":                testRatings,
	} {
		fn := fn
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

var cmpOpts = []cmp.Option{cmpopts.EquateApproxTime(time.Microsecond), cmpopts.EquateEmpty()}

func requireEqual(t *testing.T, want, got interface{}) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpOpts...); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func delivery(id, user, product, order string, at time.Time) types.DeliveryRecord {
	return types.DeliveryRecord{
		DeliveryID: id,
		User:       user,
		Product:    product,
		Order:      order,
		Status:     types.DeliveryPending,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func review(id, user, product string, rating int, at time.Time) types.ReviewRecord {
	return types.ReviewRecord{
		ID:          id,
		User:        user,
		Product:     product,
		Rating:      rating,
		Comment:     "fine product",
		Attestation: types.Attestation{State: types.AttestationCommitted},
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func testOrders(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetOrder(ctx, "ORDER-1")
	require.ErrorIs(t, err, types.ErrNotFound)

	o := types.Order{ID: "ORDER-1", User: "u1", Products: []string{"p1", "p2"}}
	require.NoError(t, s.SaveOrder(ctx, o))
	got, err := s.GetOrder(ctx, "ORDER-1")
	require.NoError(t, err)
	requireEqual(t, o, got)

	// replacing is allowed
	o.Products = []string{"p1", "p2", "p3"}
	require.NoError(t, s.SaveOrder(ctx, o))
	got, err = s.GetOrder(ctx, "ORDER-1")
	require.NoError(t, err)
	requireEqual(t, o, got)
}

func testDeliveryUniqueness(t *testing.T, s store.Store) {
	ctx := context.Background()

	d1 := delivery("d1", "u1", "p1", "o1", base)
	d1.Status = types.DeliveryDelivered
	d1.Code = "CODE000001"
	require.NoError(t, s.CreateDelivery(ctx, d1))

	dupID := delivery("d1", "u1", "p9", "o9", base)
	require.ErrorIs(t, s.CreateDelivery(ctx, dupID), types.ErrAlreadyExists)

	dupLine := delivery("d2", "u1", "p1", "o1", base)
	require.ErrorIs(t, s.CreateDelivery(ctx, dupLine), types.ErrAlreadyExists)

	dupCode := delivery("d3", "u2", "p2", "o2", base)
	dupCode.Status = types.DeliveryDelivered
	dupCode.Code = "CODE000001"
	require.ErrorIs(t, s.CreateDelivery(ctx, dupCode), store.ErrCodeTaken)

	// many records may lack a code
	require.NoError(t, s.CreateDelivery(ctx, delivery("d4", "u2", "p2", "o2", base)))
	require.NoError(t, s.CreateDelivery(ctx, delivery("d5", "u2", "p3", "o2", base)))

	got, err := s.DeliveryByCode(ctx, "CODE000001")
	require.NoError(t, err)
	requireEqual(t, d1, got)

	_, err = s.DeliveryByCode(ctx, "NOPE")
	require.ErrorIs(t, err, types.ErrNotFound)

	byOrder, err := s.DeliveriesByOrder(ctx, "o2")
	require.NoError(t, err)
	require.Len(t, byOrder, 2)

	line, err := s.DeliveryByOrderProduct(ctx, "o2", "p3")
	require.NoError(t, err)
	assert.Equal(t, "d5", line.DeliveryID)

	_, err = s.DeliveryByOrderProduct(ctx, "o2", "p9")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func testDeliveryUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()

	d := delivery("d1", "u1", "p1", "o1", base)
	require.NoError(t, s.CreateDelivery(ctx, d))

	ok, err := s.HasDelivered(ctx, "u1", "p1")
	require.NoError(t, err)
	require.False(t, ok)

	d.Status = types.DeliveryInProgress
	d.Code = "CODE000001"
	d.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, s.UpdateDelivery(ctx, d))
	// rewriting a record with its own code is not a collision
	require.NoError(t, s.UpdateDelivery(ctx, d))

	ok, err = s.HasDelivered(ctx, "u1", "p1")
	require.NoError(t, err)
	require.False(t, ok)

	d.Status = types.DeliveryDelivered
	d.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, s.UpdateDelivery(ctx, d))

	ok, err = s.HasDelivered(ctx, "u1", "p1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.HasDelivered(ctx, "u1", "p2")
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.DeliveryByCode(ctx, "CODE000001")
	require.NoError(t, err)
	requireEqual(t, d, got)

	other := delivery("d2", "u2", "p2", "o2", base)
	require.NoError(t, s.CreateDelivery(ctx, other))
	other.Status = types.DeliveryDelivered
	other.Code = "CODE000001"
	require.ErrorIs(t, s.UpdateDelivery(ctx, other), store.ErrCodeTaken)

	// delivered records are final
	again := d
	again.Code = "CODE000002"
	again.UpdatedAt = base.Add(2 * time.Hour)
	require.ErrorIs(t, s.UpdateDelivery(ctx, again), types.ErrAlreadyDelivered)
	got, err = s.DeliveryByCode(ctx, "CODE000001")
	require.NoError(t, err)
	requireEqual(t, d, got)
	_, err = s.DeliveryByCode(ctx, "CODE000002")
	require.ErrorIs(t, err, types.ErrNotFound)

	missing := delivery("nope", "u", "p", "o", base)
	require.ErrorIs(t, s.UpdateDelivery(ctx, missing), types.ErrNotFound)
}

func testDeliveriesByUser(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := delivery(fmt.Sprintf("d%d", i), "u1", fmt.Sprintf("p%d", i), "o1", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.CreateDelivery(ctx, d))
	}
	require.NoError(t, s.CreateDelivery(ctx, delivery("x", "u2", "p0", "o2", base)))

	got, err := s.DeliveriesByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"d2", "d1", "d0"}, []string{got[0].DeliveryID, got[1].DeliveryID, got[2].DeliveryID})

	none, err := s.DeliveriesByUser(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, none)
}

func testConsumeCode(t *testing.T, s store.Store) {
	ctx := context.Background()

	d := delivery("d1", "u1", "p1", "o1", base)
	d.Status = types.DeliveryDelivered
	d.Code = "CODE000001"
	require.NoError(t, s.CreateDelivery(ctx, d))

	require.ErrorIs(t, s.ConsumeCode(ctx, "MISSING", base), types.ErrNotFound)

	var (
		wg        sync.WaitGroup
		mtx       sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ConsumeCode(ctx, "CODE000001", base.Add(time.Hour))
			if err == nil {
				mtx.Lock()
				successes++
				mtx.Unlock()
				return
			}
			assert.ErrorIs(t, err, types.ErrCodeConsumed)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)

	got, err := s.DeliveryByCode(ctx, "CODE000001")
	require.NoError(t, err)
	require.True(t, got.Consumed())
}

func testReviewLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()

	r1 := review("r1", "u1", "p1", 5, base)
	r2 := review("r2", "u2", "p1", 3, base.Add(time.Minute))
	r3 := review("r3", "u1", "p2", 4, base.Add(2*time.Minute))
	for _, r := range []types.ReviewRecord{r1, r2, r3} {
		require.NoError(t, s.CreateReview(ctx, r))
	}

	dup := review("r4", "u1", "p1", 1, base)
	require.ErrorIs(t, s.CreateReview(ctx, dup), types.ErrDuplicateReview)

	got, err := s.GetReview(ctx, "r1")
	require.NoError(t, err)
	requireEqual(t, r1, got)

	got, err = s.ReviewByUserProduct(ctx, "u2", "p1")
	require.NoError(t, err)
	requireEqual(t, r2, got)

	_, err = s.ReviewByUserProduct(ctx, "u2", "p2")
	require.ErrorIs(t, err, types.ErrNotFound)
	_, err = s.GetReview(ctx, "missing")
	require.ErrorIs(t, err, types.ErrNotFound)

	byProduct, err := s.ReviewsByProduct(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, byProduct, 2)
	assert.Equal(t, "r2", byProduct[0].ID, "newest first")

	all, err := s.AllReviews(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].ID)

	ratings, err := s.ProductRatings(ctx, "p1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{5, 3}, ratings)

	att := types.Attestation{
		State:        types.AttestationAttested,
		Stored:       true,
		ContentID:    "bafkreiexample",
		LedgerTx:     "ABCDEF",
		LedgerHeight: 7,
	}
	upd := types.ReviewRecord{ID: "r1", ImageCID: "bafkreiimage", Attestation: att, UpdatedAt: base.Add(time.Hour)}
	require.NoError(t, s.UpdateAttestation(ctx, upd))
	got, err = s.GetReview(ctx, "r1")
	require.NoError(t, err)
	requireEqual(t, att, got.Attestation)
	assert.Equal(t, "bafkreiimage", got.ImageCID)
	assert.Equal(t, 5, got.Rating)
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Hour)))
	upd.ID = "missing"
	require.ErrorIs(t, s.UpdateAttestation(ctx, upd), types.ErrNotFound)

	require.ErrorIs(t, s.DeleteReview(ctx, "r1"), types.ErrReviewImmutable)
	require.NoError(t, s.DeleteReview(ctx, "r2"))
	require.ErrorIs(t, s.DeleteReview(ctx, "r2"), types.ErrNotFound)

	// the pair is free again once its review is gone
	require.NoError(t, s.CreateReview(ctx, review("r5", "u2", "p1", 2, base.Add(3*time.Minute))))
}

func testConcurrentCreateReview(t *testing.T, s store.Store) {
	ctx := context.Background()

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateReview(ctx, review(fmt.Sprintf("r%d", i), "u1", "p1", 4, base))
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
			continue
		}
		require.ErrorIs(t, err, types.ErrDuplicateReview)
	}
	require.Equal(t, 1, committed)
}

func testRatings(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetRating(ctx, "p1")
	require.ErrorIs(t, err, types.ErrNotFound)

	sum := types.ProductRatingSummary{Product: "p1", OverallRating: 4.5, ReviewCount: 2, UpdatedAt: base}
	require.NoError(t, s.SaveRating(ctx, sum))
	got, err := s.GetRating(ctx, "p1")
	require.NoError(t, err)
	requireEqual(t, sum, got)

	sum.OverallRating, sum.ReviewCount = 0, 0
	require.NoError(t, s.SaveRating(ctx, sum))
	got, err = s.GetRating(ctx, "p1")
	require.NoError(t, err)
	requireEqual(t, sum, got)

	require.NoError(t, s.SaveOrder(ctx, types.Order{ID: "o1", User: "u1", Products: []string{"p3"}}))
	require.NoError(t, s.CreateReview(ctx, review("r1", "u1", "p2", 5, base)))

	products, err := s.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, products)
}
