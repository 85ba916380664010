package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type SampleResult struct {
	Value string
}

func TestResponses(t *testing.T) {
	req := NewRequest(1)

	a := req.MakeResponse(&SampleResult{"hello"})
	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"result":{"Value":"hello"}}`, string(b))

	d := req.MakeErrorf(CodeParseError, "hello world")
	e, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32700,"message":"Parse error","data":"hello world"}}`, string(e))

	h := req.MakeErrorf(CodeMethodNotFound, "nope")
	i, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found","data":"nope"}}`, string(i))
}

func TestUnmarshallResponses(t *testing.T) {
	for _, id := range []string{`1`, `"abc"`, `-1`} {
		data := fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":{"Value":"hello"}}`, id)
		var resp RPCResponse
		require.NoError(t, json.Unmarshal([]byte(data), &resp))
		assert.Equal(t, id, resp.ID())
		assert.Nil(t, resp.Error)
		assert.JSONEq(t, `{"Value":"hello"}`, string(resp.Result))
	}

	var bad RPCResponse
	assert.Error(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":{},"result":{}}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"jsonrpc":"1.0","id":1,"result":{}}`), &bad))
}

func TestRequestRoundTrip(t *testing.T) {
	req, err := ParamsToRequest(7, "status", map[string]string{"user": "alice"})
	require.NoError(t, err)

	bz, err := json.Marshal(req)
	require.NoError(t, err)

	var got RPCRequest
	require.NoError(t, json.Unmarshal(bz, &got))
	assert.Equal(t, "7", got.ID())
	assert.Equal(t, "status", got.Method)
	assert.JSONEq(t, `{"user":"alice"}`, string(got.Params))
	assert.False(t, got.IsNotification())

	var note RPCRequest
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"x"}`), &note))
	assert.True(t, note.IsNotification())
}

func TestMakeErrorKeepsApplicationCodes(t *testing.T) {
	req := NewRequest(3)

	appErr := NewError(-32003, http.StatusForbidden, "Not entitled", "no delivery")
	resp := req.MakeError(fmt.Errorf("wrapped: %w", appErr))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32003, resp.Error.Code)
	assert.Equal(t, http.StatusForbidden, resp.Error.Status())

	resp = req.MakeError(errors.New("boom"))
	assert.Equal(t, int(CodeInternalError), resp.Error.Code)
	assert.Equal(t, http.StatusInternalServerError, resp.Error.Status())

	resp = req.MakeError(context.DeadlineExceeded)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Error.Status())

	assert.Equal(t, http.StatusBadRequest, RPCError{Code: int(CodeInvalidParams)}.Status())
	assert.Equal(t, http.StatusNotFound, RPCError{Code: int(CodeMethodNotFound)}.Status())
}
