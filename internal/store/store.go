// Package store defines the durable store behind deliveries, reviews and
// rating summaries. The uniqueness rules the review protocol relies on
// (one review per user and product, one record per order line, unique
// delivery codes) are enforced by every implementation, so concurrent
// writers are serialized by the store rather than by callers.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tendermint/reviewattest/types"
)

// ErrCodeTaken is returned when a delivery code is already assigned to
// another record. The registry draws a new code and retries.
var ErrCodeTaken = errors.New("delivery code already issued")

// Failure wraps err as a types.ErrStorageFailure raised by op.
func Failure(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrStorageFailure, op, err)
}

// OrderStore records which products an order contains.
type OrderStore interface {
	// SaveOrder inserts or replaces the order.
	SaveOrder(ctx context.Context, o types.Order) error
	// GetOrder returns types.ErrNotFound for unknown orders.
	GetOrder(ctx context.Context, id string) (types.Order, error)
}

// DeliveryStore holds delivery records.
type DeliveryStore interface {
	// CreateDelivery inserts r. It returns types.ErrAlreadyExists when a
	// record with the same delivery id or the same (order, product)
	// exists and ErrCodeTaken when r.Code is assigned elsewhere.
	CreateDelivery(ctx context.Context, r types.DeliveryRecord) error
	// UpdateDelivery overwrites the status, code and timestamps of the
	// record with r.DeliveryID. Delivered records are final: it returns
	// types.ErrAlreadyDelivered when the stored record is Delivered, so of
	// two concurrent promotions of a line exactly one succeeds.
	// ErrCodeTaken as for CreateDelivery.
	UpdateDelivery(ctx context.Context, r types.DeliveryRecord) error

	DeliveryByOrderProduct(ctx context.Context, order, product string) (types.DeliveryRecord, error)
	DeliveriesByOrder(ctx context.Context, order string) ([]types.DeliveryRecord, error)
	// DeliveryByCode returns types.ErrNotFound if the code was never issued.
	DeliveryByCode(ctx context.Context, code string) (types.DeliveryRecord, error)
	// DeliveriesByUser returns the user's records, newest first.
	DeliveriesByUser(ctx context.Context, user string) ([]types.DeliveryRecord, error)
	// HasDelivered reports whether a Delivered record exists for the pair.
	HasDelivered(ctx context.Context, user, product string) (bool, error)

	// ConsumeCode marks the code as used at the given time. It succeeds for
	// exactly one caller; later callers get types.ErrCodeConsumed.
	ConsumeCode(ctx context.Context, code string, at time.Time) error
}

// ReviewStore holds review records.
type ReviewStore interface {
	// CreateReview inserts r and returns types.ErrDuplicateReview when a
	// review for (r.User, r.Product) exists.
	CreateReview(ctx context.Context, r types.ReviewRecord) error
	GetReview(ctx context.Context, id string) (types.ReviewRecord, error)
	ReviewByUserProduct(ctx context.Context, user, product string) (types.ReviewRecord, error)
	// ReviewsByProduct returns the product's reviews, newest first.
	ReviewsByProduct(ctx context.Context, product string) ([]types.ReviewRecord, error)
	// AllReviews returns every review, newest first.
	AllReviews(ctx context.Context) ([]types.ReviewRecord, error)
	// UpdateAttestation writes the attestation fields, image CID and
	// UpdatedAt of review r.ID. The review content is left untouched.
	UpdateAttestation(ctx context.Context, r types.ReviewRecord) error
	// DeleteReview removes a review that is not stored on the ledger. It
	// returns types.ErrReviewImmutable otherwise.
	DeleteReview(ctx context.Context, id string) error
	// ProductRatings returns the rating of every review of product.
	ProductRatings(ctx context.Context, product string) ([]int, error)
}

// RatingStore holds derived rating summaries.
type RatingStore interface {
	SaveRating(ctx context.Context, s types.ProductRatingSummary) error
	GetRating(ctx context.Context, product string) (types.ProductRatingSummary, error)
	// Products lists every product that has an order line, a review or a
	// summary, sorted.
	Products(ctx context.Context) ([]string, error)
}

// Store is the full durable store.
type Store interface {
	OrderStore
	DeliveryStore
	ReviewStore
	RatingStore

	Close() error
}
