package types

import "errors"

// Error classes shared by every component. Callers classify with errors.Is;
// components wrap these with context using fmt.Errorf and %w.
var (
	// ErrNotEntitled is returned when a user has no proof of delivery for
	// the product they try to review.
	ErrNotEntitled = errors.New("user is not entitled to review this product")
	// ErrDuplicateReview is returned when a review already exists for the
	// (user, product) pair.
	ErrDuplicateReview = errors.New("review already exists for this user and product")
	// ErrStorageFailure wraps any failure of the local durable store.
	ErrStorageFailure = errors.New("local store failure")
	// ErrContentStoreUnavailable is returned when the content-addressed store
	// cannot be reached.
	ErrContentStoreUnavailable = errors.New("content store unavailable")
	// ErrLedgerUnavailable is returned when the ledger node cannot be reached
	// or does not answer in time.
	ErrLedgerUnavailable = errors.New("ledger node unreachable")
	// ErrLedgerRejected is returned when the ledger node answered but refused
	// the transaction.
	ErrLedgerRejected = errors.New("ledger transaction rejected")
	ErrNotFound       = errors.New("not found")

	ErrAlreadyDelivered = errors.New("order already delivered")
	ErrReviewImmutable  = errors.New("review is stored on the ledger and cannot be deleted")
	ErrInvalidReview    = errors.New("invalid review")
	ErrInvalidOrder     = errors.New("invalid order")
	ErrCodeConsumed     = errors.New("delivery code already used")
	ErrAlreadyExists    = errors.New("already exists")
)
