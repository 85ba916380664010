// Package review accepts product reviews and anchors them on the ledger.
//
// A submission is committed to the local store first. Only then, and only
// when asked for, is a snapshot of the review written to the content store
// and its identifier submitted to the ledger. The two stores are never
// updated atomically: an attestation failure leaves the local review in
// place, marked as not stored on the ledger, and the submission still
// succeeds. RetryAttestation lets an operator finish the job later.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/internal/contentstore"
	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/internal/store"
	"github.com/tendermint/reviewattest/libs/log"
	"github.com/tendermint/reviewattest/types"
)

// ErrAttestationDisabled is returned by operations that need the content
// store and the ledger when either is not configured.
var ErrAttestationDisabled = errors.New("attestation is not configured")

// Registry answers entitlement questions. It is implemented by
// delivery.Registry.
type Registry interface {
	VerifyCode(ctx context.Context, user, product, code string) (bool, error)
	ConsumeCode(ctx context.Context, user, product, code string) error
	ConsumeDelivered(ctx context.Context, user, product string) error
	HasDelivered(ctx context.Context, user, product string) (bool, error)
}

// Aggregator refreshes rating summaries. It is implemented by
// rating.Aggregator.
type Aggregator interface {
	Recompute(ctx context.Context, product string) (types.ProductRatingSummary, error)
}

// Submission is a review as presented by its author.
type Submission struct {
	User    string `json:"user_id"`
	Product string `json:"product_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
	// Code is the delivery code the user received. When empty, entitlement
	// falls back to the user's delivery records.
	Code   string `json:"code,omitempty"`
	Image  []byte `json:"image,omitempty"`
	Attest bool   `json:"attest"`
}

// Status is the attestation outcome reported to the submitter.
type Status string

const (
	StatusAttested Status = "attested"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Failure causes reported with StatusFailed.
const (
	CauseContentStoreUnavailable = "content_store_unavailable"
	CauseLedgerUnavailable       = "ledger_unavailable"
	CauseLedgerRejected          = "ledger_rejected"
	CauseStorageFailure          = "storage_failure"
)

// Outcome describes what happened to the attestation of a review.
type Outcome struct {
	Status  Status `json:"status"`
	Cause   string `json:"cause,omitempty"`
	Message string `json:"message,omitempty"`
}

// Result is returned by a successful submission.
type Result struct {
	Review      types.ReviewRecord `json:"review"`
	Attestation Outcome            `json:"attestation"`
}

// Cause returns the failure cause of an attestation error.
func Cause(err error) string {
	switch {
	case errors.Is(err, types.ErrContentStoreUnavailable):
		return CauseContentStoreUnavailable
	case errors.Is(err, types.ErrLedgerRejected):
		return CauseLedgerRejected
	case errors.Is(err, types.ErrLedgerUnavailable):
		return CauseLedgerUnavailable
	default:
		return CauseStorageFailure
	}
}

// Orchestrator runs the review submission protocol.
type Orchestrator struct {
	logger     log.Logger
	store      store.ReviewStore
	registry   Registry
	aggregator Aggregator
	config     *config.AttestationConfig
	metrics    *Metrics

	content contentstore.Store
	ledger  ledger.Client

	now func() time.Time
}

// OrchestratorOption sets an optional parameter on the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithAttestor enables attestation through the given content store and
// ledger client.
func WithAttestor(content contentstore.Store, client ledger.Client) OrchestratorOption {
	return func(o *Orchestrator) {
		o.content = content
		o.ledger = client
	}
}

// WithMetrics sets the orchestrator's metrics collector.
func WithMetrics(metrics *Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// WithClock replaces the wall clock used for record timestamps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator returns an orchestrator committing to s.
func NewOrchestrator(
	s store.ReviewStore,
	registry Registry,
	aggregator Aggregator,
	cfg *config.AttestationConfig,
	logger log.Logger,
	options ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		logger:     logger.With("module", "review"),
		store:      s,
		registry:   registry,
		aggregator: aggregator,
		config:     cfg,
		metrics:    NopMetrics(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// CanAttest reports whether attestation is configured.
func (o *Orchestrator) CanAttest() bool {
	return o.config.Enabled && o.content != nil && o.ledger != nil
}

// Submit validates, authorizes and commits a review, then attests it if
// requested. Once the review is committed Submit succeeds; attestation
// problems are reported in the Result.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (Result, error) {
	now := o.now()
	rec := types.ReviewRecord{
		ID:          uuid.NewString(),
		User:        sub.User,
		Product:     sub.Product,
		Rating:      sub.Rating,
		Comment:     sub.Comment,
		Attestation: types.Attestation{State: types.AttestationCommitted},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := rec.ValidateBasic(); err != nil {
		o.metrics.Refusals.With("reason", "invalid").Add(1)
		return Result{}, err
	}

	if err := o.authorize(ctx, sub); err != nil {
		return Result{}, err
	}

	// the store's (user, product) constraint settles concurrent submissions
	if err := o.store.CreateReview(ctx, rec); err != nil {
		if errors.Is(err, types.ErrDuplicateReview) {
			o.metrics.Refusals.With("reason", "duplicate").Add(1)
		}
		return Result{}, err
	}
	o.metrics.Commits.Add(1)
	o.logger.Info("review committed", "review", rec.ID, "user", rec.User, "product", rec.Product)

	var err error
	if sub.Code != "" {
		err = o.registry.ConsumeCode(ctx, sub.User, sub.Product, sub.Code)
	} else {
		err = o.registry.ConsumeDelivered(ctx, sub.User, sub.Product)
	}
	if err != nil {
		o.logger.Error("failed to consume delivery code", "review", rec.ID, "err", err)
	}

	outcome := Outcome{Status: StatusSkipped}
	switch {
	case sub.Attest && o.CanAttest():
		rec, outcome = o.attest(ctx, rec, sub.Image)
	case sub.Attest:
		outcome.Message = ErrAttestationDisabled.Error()
	}

	o.refreshRating(ctx, rec.Product)
	return Result{Review: rec, Attestation: outcome}, nil
}

func (o *Orchestrator) authorize(ctx context.Context, sub Submission) error {
	_, err := o.store.ReviewByUserProduct(ctx, sub.User, sub.Product)
	switch {
	case err == nil:
		o.metrics.Refusals.With("reason", "duplicate").Add(1)
		return types.ErrDuplicateReview
	case !errors.Is(err, types.ErrNotFound):
		return err
	}

	var entitled bool
	if sub.Code != "" {
		entitled, err = o.registry.VerifyCode(ctx, sub.User, sub.Product, sub.Code)
	} else {
		entitled, err = o.registry.HasDelivered(ctx, sub.User, sub.Product)
	}
	if err != nil {
		return err
	}
	if !entitled {
		o.metrics.Refusals.With("reason", "not_entitled").Add(1)
		return types.ErrNotEntitled
	}
	return nil
}

// attest stores the review snapshot and anchors it on the ledger, then
// records the outcome on the review exactly once.
func (o *Orchestrator) attest(ctx context.Context, rec types.ReviewRecord, image []byte) (types.ReviewRecord, Outcome) {
	start := time.Now()
	defer func() {
		o.metrics.AttestationSeconds.Observe(time.Since(start).Seconds())
	}()

	if len(image) > 0 && rec.ImageCID == "" {
		id, err := o.put(ctx, image)
		if err != nil {
			o.metrics.ImageFailures.Add(1)
			o.logger.Error("failed to store review image; leaving it out", "review", rec.ID, "err", err)
		} else {
			rec.ImageCID = id
		}
	}

	att, err := o.anchor(ctx, rec)
	return o.record(ctx, rec, att, err)
}

// anchor writes the snapshot of rec and submits its CID, verifying the
// reviewer on the ledger first if needed.
func (o *Orchestrator) anchor(ctx context.Context, rec types.ReviewRecord) (types.Attestation, error) {
	snapshot, err := rec.Snapshot().Bytes()
	if err != nil {
		return types.Attestation{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	contentID, err := o.put(ctx, snapshot)
	if err != nil {
		return types.Attestation{}, err
	}

	verified, err := o.isVerified(ctx, rec.User, rec.Product)
	if err != nil {
		return types.Attestation{}, err
	}
	if !verified {
		vctx, cancel := withTimeout(ctx, o.config.VerifyTimeout)
		_, err := o.ledger.VerifyReviewer(vctx, rec.User, rec.Product)
		cancel()
		if err != nil {
			return types.Attestation{}, ledgerError("verify reviewer", err)
		}
	}

	sctx, cancel := withTimeout(ctx, o.config.SubmitTimeout)
	defer cancel()
	rcpt, err := o.ledger.SubmitReview(sctx, rec.User, rec.Product, contentID)
	if err != nil {
		return types.Attestation{}, ledgerError("submit review", err)
	}
	return types.Attestation{
		State:        types.AttestationAttested,
		Stored:       true,
		ContentID:    contentID,
		LedgerTx:     rcpt.TxID.String(),
		LedgerHeight: rcpt.Height,
	}, nil
}

// record writes the attestation outcome to the review.
func (o *Orchestrator) record(
	ctx context.Context,
	rec types.ReviewRecord,
	att types.Attestation,
	attErr error,
) (types.ReviewRecord, Outcome) {
	var outcome Outcome
	if attErr != nil {
		outcome = Outcome{Status: StatusFailed, Cause: Cause(attErr), Message: attErr.Error()}
		att = types.Attestation{State: types.AttestationFailed, Failure: attErr.Error()}
		o.logger.Error("review attestation failed",
			"review", rec.ID, "user", rec.User, "product", rec.Product,
			"cause", outcome.Cause, "err", attErr)
	} else {
		outcome = Outcome{Status: StatusAttested}
		o.logger.Info("review attested",
			"review", rec.ID, "content_id", att.ContentID, "tx", att.LedgerTx, "height", att.LedgerHeight)
	}
	o.metrics.Attestations.With("status", string(outcome.Status), "cause", outcome.Cause).Add(1)

	rec.Attestation = att
	rec.UpdatedAt = o.now()
	if err := o.store.UpdateAttestation(ctx, rec); err != nil {
		// RetryAttestation consults the ledger before writing again
		o.logger.Error("failed to record attestation outcome",
			"review", rec.ID, "status", outcome.Status, "err", err)
	}
	return rec, outcome
}

func (o *Orchestrator) put(ctx context.Context, data []byte) (string, error) {
	pctx, cancel := withTimeout(ctx, o.config.PutTimeout)
	defer cancel()
	id, err := o.content.Put(pctx, data)
	if err != nil {
		if errors.Is(err, types.ErrContentStoreUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", types.ErrContentStoreUnavailable, err)
	}
	return id, nil
}

func (o *Orchestrator) isVerified(ctx context.Context, user, product string) (bool, error) {
	vctx, cancel := withTimeout(ctx, o.config.VerifyTimeout)
	defer cancel()
	ok, err := o.ledger.IsReviewerVerified(vctx, user, product)
	if err != nil {
		return false, ledgerError("check reviewer", err)
	}
	return ok, nil
}

func (o *Orchestrator) refreshRating(ctx context.Context, product string) {
	if _, err := o.aggregator.Recompute(ctx, product); err != nil {
		o.logger.Error("failed to recompute rating", "product", product, "err", err)
	}
}

// ledgerError makes sure err carries a ledger error class. Errors the
// client did not classify count as the node being unavailable.
func ledgerError(op string, err error) error {
	if errors.Is(err, types.ErrLedgerRejected) || errors.Is(err, types.ErrLedgerUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", types.ErrLedgerUnavailable, op, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
