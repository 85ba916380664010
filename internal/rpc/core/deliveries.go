package core

import (
	"context"
	"fmt"

	"github.com/tendermint/reviewattest/rpc/coretypes"
	"github.com/tendermint/reviewattest/types"
)

// VerifyCode reports whether a delivery code belongs to the user's delivered
// product. It does not spend single-use codes.
func (env *Environment) VerifyCode(ctx context.Context, req *coretypes.RequestVerifyCode) (*coretypes.ResultVerifyCode, error) {
	for _, a := range []struct{ name, value string }{
		{"user", req.User}, {"product", req.Product}, {"code", req.Code},
	} {
		if err := requireArg(a.name, a.value); err != nil {
			return nil, rpcError(err)
		}
	}
	ok, err := env.Registry.VerifyCode(ctx, req.User, req.Product, req.Code)
	if err != nil {
		return nil, rpcError(err)
	}
	return &coretypes.ResultVerifyCode{Valid: ok}, nil
}

// MyDeliveries lists the calling user's delivery records, newest first.
func (env *Environment) MyDeliveries(ctx context.Context, req *coretypes.RequestUser) (*coretypes.ResultDeliveries, error) {
	if err := requireArg("user", req.User); err != nil {
		return nil, rpcError(err)
	}
	ds, err := env.Registry.ListForUser(ctx, req.User)
	if err != nil {
		return nil, rpcError(err)
	}
	if ds == nil {
		ds = []types.DeliveryRecord{}
	}
	return &coretypes.ResultDeliveries{Deliveries: ds}, nil
}

//-----------------------------------------------------------------------------
// operator methods

// RecordOrder takes an order event from the order service.
func (env *Environment) RecordOrder(ctx context.Context, req *coretypes.RequestRecordOrder) (*coretypes.ResultRecordOrder, error) {
	if len(req.Products) > maxOrderLines {
		return nil, rpcError(fmt.Errorf("%w: more than %d products", errInvalidArgument, maxOrderLines))
	}
	err := env.Registry.RecordOrder(ctx, types.Order{ID: req.Order, User: req.User, Products: req.Products})
	if err != nil {
		return nil, rpcError(err)
	}
	return &coretypes.ResultRecordOrder{Order: req.Order}, nil
}

// MarkDelivered takes a delivery event and returns the delivered records,
// codes included, for the caller to notify the user.
func (env *Environment) MarkDelivered(ctx context.Context, req *coretypes.RequestOrder) (*coretypes.ResultDeliveries, error) {
	if err := requireArg("order", req.Order); err != nil {
		return nil, rpcError(err)
	}
	ds, err := env.Registry.MarkDelivered(ctx, req.Order)
	if err != nil {
		return nil, rpcError(err)
	}
	return &coretypes.ResultDeliveries{Deliveries: ds}, nil
}
