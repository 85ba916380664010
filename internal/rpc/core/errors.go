package core

import (
	"errors"
	"net/http"

	"github.com/tendermint/reviewattest/internal/review"
	rpctypes "github.com/tendermint/reviewattest/rpc/jsonrpc/types"
	"github.com/tendermint/reviewattest/types"
)

// Application error codes returned in JSON-RPC error objects.
const (
	CodeStorageFailure          = -32000
	CodeContentStoreUnavailable = -32001
	CodeNotEntitled             = -32003
	CodeNotFound                = -32004
	CodeReviewImmutable         = -32005
	CodeLedgerUnavailable       = -32006
	CodeLedgerRejected          = -32007
	CodeAttestationDisabled     = -32008
	CodeDuplicateReview         = -32009
	CodeAlreadyDelivered        = -32010
)

type errorClass struct {
	target  error
	code    int
	status  int
	message string
}

// errorClasses is checked in order; the first class err belongs to wins.
var errorClasses = []errorClass{
	{types.ErrInvalidReview, int(rpctypes.CodeInvalidParams), http.StatusBadRequest, "Invalid params"},
	{types.ErrInvalidOrder, int(rpctypes.CodeInvalidParams), http.StatusBadRequest, "Invalid params"},
	{errInvalidArgument, int(rpctypes.CodeInvalidParams), http.StatusBadRequest, "Invalid params"},
	{types.ErrNotEntitled, CodeNotEntitled, http.StatusForbidden, "Not entitled"},
	{types.ErrCodeConsumed, CodeNotEntitled, http.StatusForbidden, "Not entitled"},
	{types.ErrDuplicateReview, CodeDuplicateReview, http.StatusConflict, "Duplicate review"},
	{types.ErrAlreadyDelivered, CodeAlreadyDelivered, http.StatusConflict, "Already delivered"},
	{types.ErrReviewImmutable, CodeReviewImmutable, http.StatusMethodNotAllowed, "Review immutable"},
	{types.ErrNotFound, CodeNotFound, http.StatusNotFound, "Not found"},
	{review.ErrAttestationDisabled, CodeAttestationDisabled, http.StatusNotImplemented, "Attestation disabled"},
	{types.ErrContentStoreUnavailable, CodeContentStoreUnavailable, http.StatusBadGateway, "Content store unavailable"},
	{types.ErrLedgerRejected, CodeLedgerRejected, http.StatusBadGateway, "Ledger rejected"},
	{types.ErrLedgerUnavailable, CodeLedgerUnavailable, http.StatusServiceUnavailable, "Ledger unavailable"},
	{types.ErrStorageFailure, CodeStorageFailure, http.StatusInternalServerError, "Storage failure"},
}

var errInvalidArgument = errors.New("invalid argument")

// rpcError converts err into the RPC error reported to the caller. The
// original message is kept in the error data. Errors of no known class are
// returned unchanged and reported as internal errors.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	var e *rpctypes.RPCError
	if errors.As(err, &e) {
		return err
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return rpctypes.NewError(c.code, c.status, c.message, err.Error())
		}
	}
	return err
}
