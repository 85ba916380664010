package core

import (
	"context"

	"github.com/tendermint/reviewattest/internal/review"
	"github.com/tendermint/reviewattest/rpc/coretypes"
)

// SubmitReview commits a review for the calling user and attests it when
// asked to. A committed review is a success even if its attestation failed;
// the outcome is reported in the result.
func (env *Environment) SubmitReview(ctx context.Context, req *coretypes.RequestSubmitReview) (*coretypes.ResultSubmitReview, error) {
	if err := requireArg("user", req.User); err != nil {
		return nil, rpcError(err)
	}
	if err := requireArg("product", req.Product); err != nil {
		return nil, rpcError(err)
	}
	res, err := env.Reviews.Submit(ctx, review.Submission{
		User:    req.User,
		Product: req.Product,
		Rating:  req.Rating,
		Comment: req.Comment,
		Code:    req.Code,
		Image:   req.Image,
		Attest:  req.Attest,
	})
	if err != nil {
		return nil, rpcError(err)
	}
	return &res, nil
}

func (env *Environment) Review(ctx context.Context, req *coretypes.RequestReview) (*coretypes.ResultReview, error) {
	if err := requireArg("id", req.ID); err != nil {
		return nil, rpcError(err)
	}
	r, err := env.Reviews.Get(ctx, req.ID)
	if err != nil {
		return nil, rpcError(err)
	}
	return &coretypes.ResultReview{Review: r}, nil
}

// ProductReviews lists the reviews of a product, newest first.
func (env *Environment) ProductReviews(ctx context.Context, req *coretypes.RequestProduct) (*coretypes.ResultReviews, error) {
	if err := requireArg("product", req.Product); err != nil {
		return nil, rpcError(err)
	}
	rs, err := env.Reviews.ListByProduct(ctx, req.Product)
	if err != nil {
		return nil, rpcError(err)
	}
	return &coretypes.ResultReviews{Reviews: rs, Total: len(rs)}, nil
}

func (env *Environment) ProductRating(ctx context.Context, req *coretypes.RequestProduct) (*coretypes.ResultRating, error) {
	if err := requireArg("product", req.Product); err != nil {
		return nil, rpcError(err)
	}
	sum, err := env.Ratings.Get(ctx, req.Product)
	if err != nil {
		return nil, rpcError(err)
	}
	return &sum, nil
}

// LedgerReviews lists the reviews of a product as recorded on the ledger,
// each with its content read back from the content store.
func (env *Environment) LedgerReviews(ctx context.Context, req *coretypes.RequestProduct) (*coretypes.ResultLedgerReviews, error) {
	if err := requireArg("product", req.Product); err != nil {
		return nil, rpcError(err)
	}
	rs, err := env.Reviews.LedgerReviews(ctx, req.Product)
	if err != nil {
		return nil, rpcError(err)
	}
	return &coretypes.ResultLedgerReviews{Product: req.Product, Reviews: rs}, nil
}

//-----------------------------------------------------------------------------
// operator methods

func (env *Environment) AllReviews(ctx context.Context) (*coretypes.ResultReviews, error) {
	rs, err := env.Reviews.ListAll(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	return &coretypes.ResultReviews{Reviews: rs, Total: len(rs)}, nil
}

func (env *Environment) DeleteReview(ctx context.Context, req *coretypes.RequestReview) (*coretypes.ResultDeleteReview, error) {
	if err := requireArg("id", req.ID); err != nil {
		return nil, rpcError(err)
	}
	if err := env.Reviews.Delete(ctx, req.ID); err != nil {
		return nil, rpcError(err)
	}
	return &coretypes.ResultDeleteReview{ID: req.ID}, nil
}

func (env *Environment) RetryAttestation(ctx context.Context, req *coretypes.RequestReview) (*coretypes.ResultRetryAttestation, error) {
	if err := requireArg("id", req.ID); err != nil {
		return nil, rpcError(err)
	}
	res, err := env.Reviews.RetryAttestation(ctx, req.ID)
	if err != nil {
		return nil, rpcError(err)
	}
	return &res, nil
}

func (env *Environment) RecomputeRatings(ctx context.Context) (*coretypes.ResultRecomputeRatings, error) {
	n, err := env.Ratings.RecomputeAll(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	return &coretypes.ResultRecomputeRatings{Products: n}, nil
}
