package review

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tendermint/reviewattest/internal/contentstore"
	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/types"
)

// Get returns the review with the given id.
func (o *Orchestrator) Get(ctx context.Context, id string) (types.ReviewRecord, error) {
	return o.store.GetReview(ctx, id)
}

// ListByProduct returns the reviews of product, newest first.
func (o *Orchestrator) ListByProduct(ctx context.Context, product string) ([]types.ReviewRecord, error) {
	return o.store.ReviewsByProduct(ctx, product)
}

// ListAll returns every review, newest first.
func (o *Orchestrator) ListAll(ctx context.Context) ([]types.ReviewRecord, error) {
	return o.store.AllReviews(ctx)
}

// Delete removes a review that was never stored on the ledger and refreshes
// the product's rating. Attested reviews are immutable.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	rec, err := o.store.GetReview(ctx, id)
	if err != nil {
		return err
	}
	if err := o.store.DeleteReview(ctx, id); err != nil {
		return err
	}
	o.metrics.Deletions.Add(1)
	o.logger.Info("review deleted", "review", id, "user", rec.User, "product", rec.Product)
	o.refreshRating(ctx, rec.Product)
	return nil
}

// RetryAttestation attests a review whose earlier attempt failed or never
// ran. If the ledger already holds a review for the pair, for instance
// because the outcome of an earlier attempt could not be recorded, that
// attestation is adopted instead of submitting again.
func (o *Orchestrator) RetryAttestation(ctx context.Context, id string) (Result, error) {
	rec, err := o.store.GetReview(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if rec.Attestation.Stored {
		return Result{Review: rec, Attestation: Outcome{Status: StatusAttested}}, nil
	}
	if !o.CanAttest() {
		return Result{}, ErrAttestationDisabled
	}

	hctx, cancel := withTimeout(ctx, o.config.VerifyTimeout)
	reviewed, err := o.ledger.HasReviewed(hctx, rec.User, rec.Product)
	cancel()
	if err != nil {
		rec, outcome := o.record(ctx, rec, types.Attestation{}, ledgerError("check review", err))
		return Result{Review: rec, Attestation: outcome}, nil
	}
	if !reviewed {
		rec, outcome := o.attest(ctx, rec, nil)
		return Result{Review: rec, Attestation: outcome}, nil
	}

	att, err := o.adopt(ctx, rec)
	rec, outcome := o.record(ctx, rec, att, err)
	return Result{Review: rec, Attestation: outcome}, nil
}

// adopt finds the ledger attestation of rec's (user, product) pair.
func (o *Orchestrator) adopt(ctx context.Context, rec types.ReviewRecord) (types.Attestation, error) {
	fctx, cancel := withTimeout(ctx, o.config.FetchTimeout)
	defer cancel()
	atts, err := o.ledger.FetchReviews(fctx, rec.Product)
	if err != nil {
		return types.Attestation{}, ledgerError("fetch reviews", err)
	}
	for _, a := range atts {
		if a.User != rec.User {
			continue
		}
		o.logger.Info("adopting existing ledger attestation", "review", rec.ID, "tx", a.TxID, "height", a.Height)
		return types.Attestation{
			State:        types.AttestationAttested,
			Stored:       true,
			ContentID:    a.ContentID,
			LedgerTx:     a.TxID.String(),
			LedgerHeight: a.Height,
		}, nil
	}
	return types.Attestation{}, fmt.Errorf("%w: ledger reports a review by %s for %s but does not list it",
		types.ErrLedgerUnavailable, rec.User, rec.Product)
}

// LedgerReview is a ledger attestation together with the review snapshot it
// points to. Error is set when the snapshot could not be fetched or did not
// match its content ID.
type LedgerReview struct {
	ledger.Attestation
	Review *types.ReviewSnapshot `json:"review,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// LedgerReviews lists the reviews of product recorded on the ledger, each
// with its snapshot read back from the content store.
func (o *Orchestrator) LedgerReviews(ctx context.Context, product string) ([]LedgerReview, error) {
	if !o.CanAttest() {
		return nil, ErrAttestationDisabled
	}
	fctx, cancel := withTimeout(ctx, o.config.FetchTimeout)
	atts, err := o.ledger.FetchReviews(fctx, product)
	cancel()
	if err != nil {
		return nil, ledgerError("fetch reviews", err)
	}

	out := make([]LedgerReview, len(atts))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range atts {
		i, a := i, a
		out[i].Attestation = a
		g.Go(func() error {
			snap, err := o.fetchSnapshot(gctx, a.ContentID)
			if err != nil {
				// a body that cannot be read is reported with its record,
				// but a canceled request fails as a whole
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				out[i].Error = err.Error()
				return nil
			}
			out[i].Review = &snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: reading review bodies: %v", types.ErrContentStoreUnavailable, err)
	}
	return out, nil
}

func (o *Orchestrator) fetchSnapshot(ctx context.Context, id string) (types.ReviewSnapshot, error) {
	fctx, cancel := withTimeout(ctx, o.config.FetchTimeout)
	defer cancel()
	bz, err := o.content.Get(fctx, id)
	if err != nil {
		return types.ReviewSnapshot{}, err
	}
	if err := contentstore.Verify(id, bz); err != nil {
		return types.ReviewSnapshot{}, err
	}
	return types.DecodeReviewSnapshot(bz)
}
