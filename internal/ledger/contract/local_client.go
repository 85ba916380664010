package contract

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/types"
)

// LocalClient is a ledger.Client that applies signed transactions to an
// in-process Contract.
type LocalClient struct {
	contract *Contract
	signer   ledger.Signer
}

var _ ledger.Client = (*LocalClient)(nil)

// NewLocalClient returns a client of c that signs every write with signer.
func NewLocalClient(c *Contract, signer ledger.Signer) *LocalClient {
	return &LocalClient{contract: c, signer: signer}
}

func (lc *LocalClient) VerifyReviewer(ctx context.Context, user, product string) (ledger.Receipt, error) {
	return lc.deliver(ctx, ledger.NewTxBody(ledger.TxVerifyReviewer, user, product, ""))
}

func (lc *LocalClient) SubmitReview(ctx context.Context, user, product, contentID string) (ledger.Receipt, error) {
	return lc.deliver(ctx, ledger.NewTxBody(ledger.TxSubmitReview, user, product, contentID))
}

func (lc *LocalClient) IsReviewerVerified(ctx context.Context, user, product string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	ok, err := lc.contract.IsReviewerVerified(user, product)
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (lc *LocalClient) HasReviewed(ctx context.Context, user, product string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	ok, err := lc.contract.HasReviewed(user, product)
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (lc *LocalClient) FetchReviews(ctx context.Context, product string) ([]ledger.Attestation, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	reviews, err := lc.contract.Reviews(product)
	if err != nil {
		return nil, unavailable(err)
	}
	return reviews, nil
}

// Status returns the state of the contract.
func (lc *LocalClient) Status(ctx context.Context) (ledger.Status, error) {
	if err := checkContext(ctx); err != nil {
		return ledger.Status{}, err
	}
	return lc.contract.Status(), nil
}

func (lc *LocalClient) deliver(ctx context.Context, body ledger.TxBody) (ledger.Receipt, error) {
	if err := checkContext(ctx); err != nil {
		return ledger.Receipt{}, err
	}
	tx, err := ledger.SignTx(lc.signer, body)
	if err != nil {
		return ledger.Receipt{}, err
	}
	res, err := lc.contract.DeliverTx(tx)
	if err != nil {
		return ledger.Receipt{}, unavailable(err)
	}
	if !res.IsOK() {
		return ledger.Receipt{}, fmt.Errorf("%w: %s (code %d)", types.ErrLedgerRejected, res.Log, res.Code)
	}
	return res.Receipt(), nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	if errors.Is(err, types.ErrLedgerUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", types.ErrLedgerUnavailable, err)
}
