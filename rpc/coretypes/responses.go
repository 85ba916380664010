package coretypes

import (
	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/internal/review"
	"github.com/tendermint/reviewattest/types"
	"github.com/tendermint/reviewattest/version"
)

type ResultHealth struct{}

// ResultStatus describes the node and its collaborators.
type ResultStatus struct {
	Version     version.Info   `json:"version"`
	Attestation bool           `json:"attestation_enabled"`
	CodePolicy  string         `json:"code_policy"`
	Ledger      *ledger.Status `json:"ledger,omitempty"`
	// LedgerError is set when attestation is enabled and the ledger
	// status could not be read.
	LedgerError string `json:"ledger_error,omitempty"`
}

// ResultSubmitReview reports the committed review and what happened to its
// attestation.
type ResultSubmitReview = review.Result

type ResultRetryAttestation = review.Result

type ResultReview struct {
	Review types.ReviewRecord `json:"review"`
}

type ResultReviews struct {
	Reviews []types.ReviewRecord `json:"reviews"`
	Total   int                  `json:"total"`
}

type ResultRating = types.ProductRatingSummary

type ResultVerifyCode struct {
	Valid bool `json:"valid"`
}

type ResultDeliveries struct {
	Deliveries []types.DeliveryRecord `json:"deliveries"`
}

type ResultLedgerReviews struct {
	Product string                `json:"product"`
	Reviews []review.LedgerReview `json:"reviews"`
}

type ResultRecordOrder struct {
	Order string `json:"order"`
}

type ResultDeleteReview struct {
	ID string `json:"id"`
}

type ResultRecomputeRatings struct {
	Products int `json:"products"`
}
