package core

import (
	"context"

	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/rpc/coretypes"
	"github.com/tendermint/reviewattest/version"
)

// Health gets node health. Returns empty result (200 OK) on success, no
// response in case of an error.
func (env *Environment) Health(ctx context.Context) (*coretypes.ResultHealth, error) {
	return &coretypes.ResultHealth{}, nil
}

// Status returns the software version, the attestation settings and, when
// a ledger is configured, its current state. An unreachable ledger is
// reported in the result rather than failing the call.
func (env *Environment) Status(ctx context.Context) (*coretypes.ResultStatus, error) {
	res := &coretypes.ResultStatus{
		Version:     version.Current(),
		Attestation: env.Reviews.CanAttest(),
		CodePolicy:  env.CodePolicy,
	}
	if sc, ok := env.Ledger.(ledger.StatusClient); ok {
		st, err := sc.Status(ctx)
		if err != nil {
			res.LedgerError = err.Error()
		} else {
			res.Ledger = &st
		}
	}
	return res, nil
}
