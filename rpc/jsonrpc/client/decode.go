package client

import (
	"encoding/json"
	"fmt"
	"strconv"

	rpctypes "github.com/tendermint/reviewattest/rpc/jsonrpc/types"
)

func unmarshalResponseBytes(responseBytes []byte, expectedID int, result interface{}) error {
	var response rpctypes.RPCResponse
	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return fmt.Errorf("unmarshaling response: %w", err)
	}

	if response.Error != nil {
		return response.Error
	}

	if got, want := response.ID(), strconv.Itoa(expectedID); got != want {
		return fmt.Errorf("got response ID %q, wanted %q", got, want)
	}

	// Unmarshal the RawMessage into the result.
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(response.Result, result); err != nil {
		return fmt.Errorf("error unmarshaling result: %w", err)
	}
	return nil
}
