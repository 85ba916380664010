// Package ledger is the attestation side of the review pipeline: a client
// for the review registry contract running on a ledger node.
//
// Every write is a Tx signed by the single writer identity configured at
// construction. The contract itself lives in the contract package; it can
// run in-process (LocalClient, see contract.NewLocalClient) or behind a
// ledger node reached over JSON-RPC (HTTPClient).
package ledger

import (
	"context"
	"time"

	tmbytes "github.com/tendermint/reviewattest/libs/bytes"
)

//go:generate ../../scripts/mockery_generate.sh Client

// Client is the ledger adapter used by the review orchestrator.
//
// Failures are classified as types.ErrLedgerUnavailable when the node could
// not be reached or did not answer in time, and as types.ErrLedgerRejected
// when the node answered and refused the transaction.
type Client interface {
	// VerifyReviewer marks user as entitled to review product on the
	// ledger. Verifying an already verified pair is a no-op that returns the
	// receipt of the original verification.
	VerifyReviewer(ctx context.Context, user, product string) (Receipt, error)
	IsReviewerVerified(ctx context.Context, user, product string) (bool, error)
	HasReviewed(ctx context.Context, user, product string) (bool, error)
	// SubmitReview records the content ID of a review snapshot. The reviewer
	// must be verified and must not have reviewed product before.
	SubmitReview(ctx context.Context, user, product, contentID string) (Receipt, error)
	FetchReviews(ctx context.Context, product string) ([]Attestation, error)
}

// StatusClient is implemented by clients that can report the ledger state.
type StatusClient interface {
	Status(ctx context.Context) (Status, error)
}

// Receipt identifies the ledger transaction that applied a write.
type Receipt struct {
	TxID   tmbytes.HexBytes `json:"tx_id"`
	Height int64            `json:"height"`
}

// Attestation is a review as recorded on the ledger.
type Attestation struct {
	User        string           `json:"user_id"`
	Product     string           `json:"product_id"`
	ContentID   string           `json:"content_id"`
	SubmittedAt time.Time        `json:"submitted_at"`
	TxID        tmbytes.HexBytes `json:"tx_id"`
	Height      int64            `json:"height"`
}

// Status summarizes the ledger state.
type Status struct {
	Height  int64            `json:"height"`
	AppHash tmbytes.HexBytes `json:"app_hash"`
	Writer  tmbytes.HexBytes `json:"writer_address"`
	Reviews int64            `json:"reviews"`
}
