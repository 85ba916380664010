package core

import (
	"context"

	"github.com/tendermint/reviewattest/rpc/coretypes"
	rpc "github.com/tendermint/reviewattest/rpc/jsonrpc/server"
)

type RoutesMap map[string]*rpc.RPCFunc

// RouteOptions provide optional settings to NewRoutesMap.  A nil *RouteOptions
// is ready for use and provides defaults as specified.
type RouteOptions struct {
	Unsafe bool // include operator methods (default false)
}

// NewRoutesMap constructs an RPC routing map for the given service
// implementation. If svc implements RPCUnsafe and opts.Unsafe is true, the
// operator methods will also be added to the map. Each call returns a fresh
// map.
func NewRoutesMap(svc RPCService, opts *RouteOptions) RoutesMap {
	if opts == nil {
		opts = new(RouteOptions)
	}
	out := RoutesMap{
		// info API
		"health": rpc.NewRPCFunc(svc.Health),
		"status": rpc.NewRPCFunc(svc.Status),

		// review API
		"submit_review":   rpc.NewRPCFunc(svc.SubmitReview),
		"review":          rpc.NewRPCFunc(svc.Review),
		"product_reviews": rpc.NewRPCFunc(svc.ProductReviews),
		"product_rating":  rpc.NewRPCFunc(svc.ProductRating),
		"ledger_reviews":  rpc.NewRPCFunc(svc.LedgerReviews),

		// delivery API
		"verify_code":   rpc.NewRPCFunc(svc.VerifyCode),
		"my_deliveries": rpc.NewRPCFunc(svc.MyDeliveries),
	}
	if u, ok := svc.(RPCUnsafe); ok && opts.Unsafe {
		out["record_order"] = rpc.NewRPCFunc(u.RecordOrder)
		out["mark_delivered"] = rpc.NewRPCFunc(u.MarkDelivered)
		out["all_reviews"] = rpc.NewRPCFunc(u.AllReviews)
		out["delete_review"] = rpc.NewRPCFunc(u.DeleteReview)
		out["retry_attestation"] = rpc.NewRPCFunc(u.RetryAttestation)
		out["recompute_ratings"] = rpc.NewRPCFunc(u.RecomputeRatings)
	}
	return out
}

// RPCService defines the set of methods exported by the RPC service
// implementation, for use in constructing a routing table.
type RPCService interface {
	Health(ctx context.Context) (*coretypes.ResultHealth, error)
	Status(ctx context.Context) (*coretypes.ResultStatus, error)
	SubmitReview(ctx context.Context, req *coretypes.RequestSubmitReview) (*coretypes.ResultSubmitReview, error)
	Review(ctx context.Context, req *coretypes.RequestReview) (*coretypes.ResultReview, error)
	ProductReviews(ctx context.Context, req *coretypes.RequestProduct) (*coretypes.ResultReviews, error)
	ProductRating(ctx context.Context, req *coretypes.RequestProduct) (*coretypes.ResultRating, error)
	LedgerReviews(ctx context.Context, req *coretypes.RequestProduct) (*coretypes.ResultLedgerReviews, error)
	VerifyCode(ctx context.Context, req *coretypes.RequestVerifyCode) (*coretypes.ResultVerifyCode, error)
	MyDeliveries(ctx context.Context, req *coretypes.RequestUser) (*coretypes.ResultDeliveries, error)
}

// RPCUnsafe defines the operator methods that may optionally be exported by
// the RPC service.
type RPCUnsafe interface {
	RecordOrder(ctx context.Context, req *coretypes.RequestRecordOrder) (*coretypes.ResultRecordOrder, error)
	MarkDelivered(ctx context.Context, req *coretypes.RequestOrder) (*coretypes.ResultDeliveries, error)
	AllReviews(ctx context.Context) (*coretypes.ResultReviews, error)
	DeleteReview(ctx context.Context, req *coretypes.RequestReview) (*coretypes.ResultDeleteReview, error)
	RetryAttestation(ctx context.Context, req *coretypes.RequestReview) (*coretypes.ResultRetryAttestation, error)
	RecomputeRatings(ctx context.Context) (*coretypes.ResultRecomputeRatings, error)
}

var (
	_ RPCService = (*Environment)(nil)
	_ RPCUnsafe  = (*Environment)(nil)
)
