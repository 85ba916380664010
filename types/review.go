package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MinRating = 1
	MaxRating = 5

	// MaxCommentLength bounds the comment so snapshots stay small.
	MaxCommentLength = 4096
)

// AttestationState records where a review is in the commit protocol.
type AttestationState string

const (
	// AttestationCommitted means the review is stored locally and no
	// attestation outcome has been recorded.
	AttestationCommitted AttestationState = "committed"
	AttestationAttested  AttestationState = "attested"
	AttestationFailed    AttestationState = "attestation_failed"
)

// Attestation holds the chain-side pointers of a review. Stored is the
// authoritative flag; the remaining fields are set only when it is true.
type Attestation struct {
	State        AttestationState `json:"state"`
	Stored       bool             `json:"blockchain_stored"`
	ContentID    string           `json:"content_id,omitempty"`
	LedgerTx     string           `json:"ledger_tx,omitempty"`
	LedgerHeight int64            `json:"ledger_height,omitempty"`
	Failure      string           `json:"failure,omitempty"`
}

// ReviewRecord is a review as held by the local durable store.
type ReviewRecord struct {
	ID          string      `json:"id"`
	User        string      `json:"user_id"`
	Product     string      `json:"product_id"`
	Rating      int         `json:"rating"`
	Comment     string      `json:"comment"`
	ImageCID    string      `json:"image_cid,omitempty"`
	Attestation Attestation `json:"attestation"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ValidateRating returns ErrInvalidReview unless r is within [MinRating, MaxRating].
func ValidateRating(r int) error {
	if r < MinRating || r > MaxRating {
		return fmt.Errorf("%w: rating %d outside [%d, %d]", ErrInvalidReview, r, MinRating, MaxRating)
	}
	return nil
}

// ValidateBasic performs stateless checks on the review content.
func (r ReviewRecord) ValidateBasic() error {
	if r.User == "" {
		return fmt.Errorf("%w: empty user", ErrInvalidReview)
	}
	if r.Product == "" {
		return fmt.Errorf("%w: empty product", ErrInvalidReview)
	}
	if err := ValidateRating(r.Rating); err != nil {
		return err
	}
	if strings.TrimSpace(r.Comment) == "" {
		return fmt.Errorf("%w: empty comment", ErrInvalidReview)
	}
	if len(r.Comment) > MaxCommentLength {
		return fmt.Errorf("%w: comment longer than %d bytes", ErrInvalidReview, MaxCommentLength)
	}
	return nil
}

// Snapshot returns the immutable payload written to the content store.
func (r ReviewRecord) Snapshot() ReviewSnapshot {
	return ReviewSnapshot{
		ReviewID:  r.ID,
		User:      r.User,
		Product:   r.Product,
		Rating:    r.Rating,
		Comment:   r.Comment,
		ImageCID:  r.ImageCID,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ReviewSnapshot is the content-addressed form of a review. Field order is
// fixed and timestamps are strings so that equal reviews always encode to
// equal bytes.
type ReviewSnapshot struct {
	ReviewID  string `json:"review_id"`
	User      string `json:"user_id"`
	Product   string `json:"product_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	ImageCID  string `json:"image_cid,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Bytes returns the canonical encoding of the snapshot.
func (s ReviewSnapshot) Bytes() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeReviewSnapshot parses bytes produced by ReviewSnapshot.Bytes.
func DecodeReviewSnapshot(bz []byte) (ReviewSnapshot, error) {
	var s ReviewSnapshot
	if err := json.Unmarshal(bz, &s); err != nil {
		return ReviewSnapshot{}, fmt.Errorf("decoding review snapshot: %w", err)
	}
	if s.User == "" || s.Product == "" {
		return ReviewSnapshot{}, errors.New("review snapshot without user or product")
	}
	return s, nil
}
