// Package rating keeps the per-product rating summaries in step with the
// review records they are derived from.
package rating

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tendermint/reviewattest/internal/store"
	"github.com/tendermint/reviewattest/libs/log"
	"github.com/tendermint/reviewattest/types"
)

// Store is the part of the durable store the aggregator uses.
type Store interface {
	ProductRatings(ctx context.Context, product string) ([]int, error)
	store.RatingStore
}

// Aggregator recomputes rating summaries. It holds no state of its own, so
// concurrent recomputations of one product converge on the same summary.
type Aggregator struct {
	logger  log.Logger
	store   Store
	metrics *Metrics
	now     func() time.Time
}

// NewAggregator returns an aggregator over s.
func NewAggregator(s Store, logger log.Logger, metrics *Metrics) *Aggregator {
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Aggregator{
		logger:  logger.With("module", "rating"),
		store:   s,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Summarize returns the mean of ratings rounded half away from zero to one
// decimal, and their count.
func Summarize(ratings []int) (float64, int) {
	n := len(ratings)
	if n == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	// tenths = round(10*sum/n), computed in integers
	num, den := 20*sum, 2*n
	var tenths int
	if num >= 0 {
		tenths = (num + n) / den
	} else {
		tenths = -((-num + n) / den)
	}
	return float64(tenths) / 10, n
}

// Recompute rebuilds and stores the summary of product from its reviews.
func (a *Aggregator) Recompute(ctx context.Context, product string) (types.ProductRatingSummary, error) {
	ratings, err := a.store.ProductRatings(ctx, product)
	if err != nil {
		return types.ProductRatingSummary{}, fmt.Errorf("loading ratings of %s: %w", product, err)
	}
	overall, count := Summarize(ratings)
	sum := types.ProductRatingSummary{
		Product:       product,
		OverallRating: overall,
		ReviewCount:   count,
		UpdatedAt:     a.now(),
	}
	if err := a.store.SaveRating(ctx, sum); err != nil {
		return types.ProductRatingSummary{}, fmt.Errorf("saving rating of %s: %w", product, err)
	}
	a.metrics.Recomputations.Add(1)
	a.logger.Debug("recomputed rating", "product", product, "rating", overall, "count", count)
	return sum, nil
}

// RecomputeAll recomputes every known product in turn and returns how many
// were updated. It stops at the first failure.
func (a *Aggregator) RecomputeAll(ctx context.Context) (int, error) {
	products, err := a.store.Products(ctx)
	if err != nil {
		return 0, err
	}
	for i, p := range products {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := a.Recompute(ctx, p); err != nil {
			return i, err
		}
	}
	a.logger.Info("recomputed all ratings", "products", len(products))
	return len(products), nil
}

// Get returns the stored summary of product, or a zero summary if none was
// computed yet.
func (a *Aggregator) Get(ctx context.Context, product string) (types.ProductRatingSummary, error) {
	sum, err := a.store.GetRating(ctx, product)
	if errors.Is(err, types.ErrNotFound) {
		return types.ProductRatingSummary{Product: product}, nil
	}
	return sum, err
}
