package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/internal/store"
	"github.com/tendermint/reviewattest/internal/store/kv"
	"github.com/tendermint/reviewattest/libs/log"
	"github.com/tendermint/reviewattest/types"
)

func newTestRegistry(t *testing.T, cfg *config.DeliveryConfig, options ...RegistryOption) (*Registry, *kv.Store) {
	t.Helper()
	s := kv.NewStore(dbm.NewMemDB())
	t.Cleanup(func() { _ = s.Close() })
	if cfg == nil {
		cfg = config.DefaultDeliveryConfig()
	}
	return NewRegistry(s, cfg, log.TestingLogger(), options...), s
}

func recordOrder(t *testing.T, r *Registry, id, user string, products ...string) {
	t.Helper()
	require.NoError(t, r.RecordOrder(context.Background(), types.Order{ID: id, User: user, Products: products}))
}

func TestMarkDeliveredIssuesDistinctCodes(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	recordOrder(t, r, "ORDER-1", "alice", "p1", "p2")

	records, err := r.MarkDelivered(ctx, "ORDER-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "p1", records[0].Product)
	assert.Equal(t, "p2", records[1].Product)
	assert.NotEqual(t, records[0].Code, records[1].Code)
	for _, rec := range records {
		assert.True(t, rec.IsDelivered())
		assert.Len(t, rec.Code, 10)
		assert.Regexp(t, "^[0-9A-Z]+$", rec.Code)
		require.NoError(t, rec.ValidateBasic())
	}

	// each code verifies only for its own product
	ok, err := r.VerifyCode(ctx, "alice", "p1", records[0].Code)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.VerifyCode(ctx, "alice", "p2", records[0].Code)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.VerifyCode(ctx, "alice", "p2", records[1].Code)
	require.NoError(t, err)
	assert.True(t, ok)

	delivered, err := r.HasDelivered(ctx, "alice", "p2")
	require.NoError(t, err)
	assert.True(t, delivered)

	_, err = r.MarkDelivered(ctx, "ORDER-1")
	assert.ErrorIs(t, err, types.ErrAlreadyDelivered)
}

func TestVerifyCodeRequiresExactTriple(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	recordOrder(t, r, "ORDER-1", "alice", "p1")
	recordOrder(t, r, "ORDER-2", "bob", "p1")

	records, err := r.MarkDelivered(ctx, "ORDER-1")
	require.NoError(t, err)
	code := records[0].Code

	testCases := []struct {
		user, product, code string
		want                bool
	}{
		{"alice", "p1", code, true},
		{"bob", "p1", code, false},
		{"alice", "p2", code, false},
		{"alice", "p1", "", false},
		{"alice", "p1", "0000000000", false},
		{"", "p1", code, false},
	}
	for i, tc := range testCases {
		ok, err := r.VerifyCode(ctx, tc.user, tc.product, tc.code)
		require.NoError(t, err, "#%d", i)
		assert.Equal(t, tc.want, ok, "#%d", i)
	}

	// bob's line is recorded but not delivered yet
	delivered, err := r.HasDelivered(ctx, "bob", "p1")
	require.NoError(t, err)
	assert.False(t, delivered)
}

func TestMarkDeliveredUnknownOrder(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	_, err := r.MarkDelivered(context.Background(), "nope")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMarkDeliveredKeepsExistingCode(t *testing.T) {
	r, s := newTestRegistry(t, nil)
	ctx := context.Background()
	recordOrder(t, r, "ORDER-1", "alice", "p1")

	pending, err := s.DeliveryByOrderProduct(ctx, "ORDER-1", "p1")
	require.NoError(t, err)
	pending.Code = "PRESET0001"
	pending.Status = types.DeliveryInProgress
	require.NoError(t, s.UpdateDelivery(ctx, pending))

	records, err := r.MarkDelivered(ctx, "ORDER-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "PRESET0001", records[0].Code)
	assert.Equal(t, pending.DeliveryID, records[0].DeliveryID)
}

func TestCodeCollisionsRetry(t *testing.T) {
	codes := []string{"AAAAAAAAAA", "AAAAAAAAAA", "BBBBBBBBBB"}
	var (
		mtx  sync.Mutex
		next int
	)
	gen := func() (string, error) {
		mtx.Lock()
		defer mtx.Unlock()
		c := codes[next%len(codes)]
		next++
		return c, nil
	}
	r, _ := newTestRegistry(t, nil, WithCodeSource(gen))
	ctx := context.Background()

	recordOrder(t, r, "ORDER-1", "alice", "p1")
	recordOrder(t, r, "ORDER-2", "alice", "p2")

	first, err := r.MarkDelivered(ctx, "ORDER-1")
	require.NoError(t, err)
	second, err := r.MarkDelivered(ctx, "ORDER-2")
	require.NoError(t, err)

	assert.Equal(t, "AAAAAAAAAA", first[0].Code)
	assert.Equal(t, "BBBBBBBBBB", second[0].Code)
}

func TestCodeCollisionsExhaustAttempts(t *testing.T) {
	cfg := config.DefaultDeliveryConfig()
	cfg.MaxCodeAttempts = 3
	calls := 0
	r, _ := newTestRegistry(t, cfg, WithCodeSource(func() (string, error) {
		calls++
		return "SAMECODE00", nil
	}))
	ctx := context.Background()

	recordOrder(t, r, "ORDER-1", "alice", "p1")
	_, err := r.MarkDelivered(ctx, "ORDER-1")
	require.NoError(t, err)

	recordOrder(t, r, "ORDER-2", "bob", "p1")
	_, err = r.MarkDelivered(ctx, "ORDER-2")
	assert.ErrorIs(t, err, types.ErrStorageFailure)
	assert.Equal(t, 4, calls)
}

func TestCodeSourceFailure(t *testing.T) {
	r, _ := newTestRegistry(t, nil, WithCodeSource(func() (string, error) {
		return "", errors.New("entropy exhausted")
	}))
	recordOrder(t, r, "ORDER-1", "alice", "p1")
	_, err := r.MarkDelivered(context.Background(), "ORDER-1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "entropy exhausted")
}

func TestConcurrentDeliveryEvents(t *testing.T) {
	r, s := newTestRegistry(t, nil)
	ctx := context.Background()
	products := []string{"p1", "p2", "p3", "p4"}
	require.NoError(t, s.SaveOrder(ctx, types.Order{ID: "ORDER-1", User: "alice", Products: products}))

	const n = 8
	var wg sync.WaitGroup
	results := make([][]types.DeliveryRecord, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.MarkDelivered(ctx, "ORDER-1")
		}(i)
	}
	wg.Wait()

	// whichever events got through agree on one record per line
	byProduct := map[string]types.DeliveryRecord{}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], types.ErrAlreadyDelivered)
			continue
		}
		for _, rec := range results[i] {
			if prev, ok := byProduct[rec.Product]; ok {
				assert.Equal(t, prev.DeliveryID, rec.DeliveryID)
				assert.Equal(t, prev.Code, rec.Code)
			}
			byProduct[rec.Product] = rec
		}
	}
	assert.Len(t, byProduct, len(products))

	stored, err := s.DeliveriesByOrder(ctx, "ORDER-1")
	require.NoError(t, err)
	assert.Len(t, stored, len(products))
}

func TestConcurrentDeliveryOfRecordedOrder(t *testing.T) {
	var (
		mtx  sync.Mutex
		next int
	)
	// a slow code source widens the window between reading a pending line
	// and writing its code
	gen := func() (string, error) {
		time.Sleep(2 * time.Millisecond)
		mtx.Lock()
		defer mtx.Unlock()
		next++
		return fmt.Sprintf("C%09d", next), nil
	}
	products := []string{"p1", "p2", "p3"}

	for round := 0; round < 5; round++ {
		r, s := newTestRegistry(t, nil, WithCodeSource(gen))
		ctx := context.Background()
		recordOrder(t, r, "ORDER-1", "alice", products...)

		const n = 8
		var wg sync.WaitGroup
		results := make([][]types.DeliveryRecord, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = r.MarkDelivered(ctx, "ORDER-1")
			}(i)
		}
		wg.Wait()

		byProduct := map[string]string{}
		succeeded := 0
		for i := 0; i < n; i++ {
			if errs[i] != nil {
				require.ErrorIs(t, errs[i], types.ErrAlreadyDelivered, "round %d call %d", round, i)
				continue
			}
			succeeded++
			require.Len(t, results[i], len(products))
			for _, rec := range results[i] {
				if code, ok := byProduct[rec.Product]; ok {
					require.Equal(t, code, rec.Code, "round %d call %d product %s", round, i, rec.Product)
				}
				byProduct[rec.Product] = rec.Code

				// every code handed out keeps verifying
				ok, err := r.VerifyCode(ctx, "alice", rec.Product, rec.Code)
				require.NoError(t, err)
				require.True(t, ok, "round %d call %d code %s for %s", round, i, rec.Code, rec.Product)
			}
		}
		require.NotZero(t, succeeded)

		stored, err := s.DeliveriesByOrder(ctx, "ORDER-1")
		require.NoError(t, err)
		require.Len(t, stored, len(products))
		for _, rec := range stored {
			assert.True(t, rec.IsDelivered())
			assert.Equal(t, byProduct[rec.Product], rec.Code)
		}
	}
}

func TestSingleUsePolicy(t *testing.T) {
	cfg := config.DefaultDeliveryConfig()
	cfg.CodePolicy = config.CodePolicySingleUse
	r, _ := newTestRegistry(t, cfg)
	ctx := context.Background()
	recordOrder(t, r, "ORDER-1", "alice", "p1")
	records, err := r.MarkDelivered(ctx, "ORDER-1")
	require.NoError(t, err)
	code := records[0].Code

	ok, err := r.VerifyCode(ctx, "alice", "p1", code)
	require.NoError(t, err)
	require.True(t, ok, "verification does not consume")
	ok, err = r.VerifyCode(ctx, "alice", "p1", code)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, r.ConsumeCode(ctx, "bob", "p1", code), types.ErrNotEntitled)
	require.NoError(t, r.ConsumeCode(ctx, "alice", "p1", code))
	assert.ErrorIs(t, r.ConsumeCode(ctx, "alice", "p1", code), types.ErrCodeConsumed)

	ok, err = r.VerifyCode(ctx, "alice", "p1", code)
	require.NoError(t, err)
	assert.False(t, ok)

	// the spent delivery no longer entitles either
	delivered, err := r.HasDelivered(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.ErrorIs(t, r.ConsumeDelivered(ctx, "alice", "p1"), types.ErrNotEntitled)
}

func TestConsumeDelivered(t *testing.T) {
	cfg := config.DefaultDeliveryConfig()
	cfg.CodePolicy = config.CodePolicySingleUse
	clock := time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC)
	r, _ := newTestRegistry(t, cfg, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	ctx := context.Background()
	recordOrder(t, r, "ORDER-1", "alice", "p1")
	first, err := r.MarkDelivered(ctx, "ORDER-1")
	require.NoError(t, err)
	recordOrder(t, r, "ORDER-2", "alice", "p1")
	second, err := r.MarkDelivered(ctx, "ORDER-2")
	require.NoError(t, err)

	// lines are spent oldest first
	require.NoError(t, r.ConsumeDelivered(ctx, "alice", "p1"))
	ok, err := r.VerifyCode(ctx, "alice", "p1", first[0].Code)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.VerifyCode(ctx, "alice", "p1", second[0].Code)
	require.NoError(t, err)
	assert.True(t, ok)

	delivered, err := r.HasDelivered(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.True(t, delivered)

	require.NoError(t, r.ConsumeDelivered(ctx, "alice", "p1"))
	delivered, err = r.HasDelivered(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.ErrorIs(t, r.ConsumeDelivered(ctx, "alice", "p1"), types.ErrNotEntitled)
	assert.ErrorIs(t, r.ConsumeDelivered(ctx, "bob", "p1"), types.ErrNotEntitled)
}

func TestReusablePolicyNeverConsumes(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	recordOrder(t, r, "ORDER-1", "alice", "p1")
	records, err := r.MarkDelivered(ctx, "ORDER-1")
	require.NoError(t, err)
	code := records[0].Code

	for i := 0; i < 3; i++ {
		require.NoError(t, r.ConsumeCode(ctx, "alice", "p1", code))
		require.NoError(t, r.ConsumeDelivered(ctx, "alice", "p1"))
		ok, err := r.VerifyCode(ctx, "alice", "p1", code)
		require.NoError(t, err)
		assert.True(t, ok)
		delivered, err := r.HasDelivered(ctx, "alice", "p1")
		require.NoError(t, err)
		assert.True(t, delivered)
	}
}

func TestListForUserNewestFirst(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r, _ := newTestRegistry(t, nil, WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		recordOrder(t, r, fmt.Sprintf("ORDER-%d", i), "alice", fmt.Sprintf("p%d", i))
	}
	recordOrder(t, r, "ORDER-9", "bob", "p1")

	list, err := r.ListForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "p3", list[0].Product)
	assert.Equal(t, "p1", list[2].Product)
	for _, rec := range list {
		assert.Equal(t, types.DeliveryPending, rec.Status)
		assert.Empty(t, rec.Code)
	}
}

func TestRecordOrderValidation(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	err := r.RecordOrder(ctx, types.Order{ID: "ORDER-1"})
	assert.ErrorIs(t, err, types.ErrInvalidOrder)

	// recording twice is harmless
	recordOrder(t, r, "ORDER-1", "alice", "p1")
	recordOrder(t, r, "ORDER-1", "alice", "p1")
	list, err := r.ListForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// failingStore fails every delivery lookup.
type failingStore struct {
	Store
}

func (failingStore) GetOrder(context.Context, string) (types.Order, error) {
	return types.Order{ID: "ORDER-1", User: "alice", Products: []string{"p1"}}, nil
}

func (failingStore) DeliveriesByOrder(context.Context, string) ([]types.DeliveryRecord, error) {
	return nil, store.Failure("deliveries by order", errors.New("disk on fire"))
}

func (failingStore) DeliveryByCode(context.Context, string) (types.DeliveryRecord, error) {
	return types.DeliveryRecord{}, store.Failure("delivery by code", errors.New("disk on fire"))
}

func TestStorageFailuresPropagate(t *testing.T) {
	r := NewRegistry(failingStore{}, config.DefaultDeliveryConfig(), log.NewNopLogger())
	ctx := context.Background()

	_, err := r.MarkDelivered(ctx, "ORDER-1")
	assert.ErrorIs(t, err, types.ErrStorageFailure)

	_, err = r.VerifyCode(ctx, "alice", "p1", "ABCDEFGHIJ")
	assert.ErrorIs(t, err, types.ErrStorageFailure)
}
