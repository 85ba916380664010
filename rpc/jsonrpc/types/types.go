package types

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrorCode is the type of JSON-RPC error codes.
type ErrorCode int

func (e ErrorCode) String() string {
	if s, ok := errorCodeString[e]; ok {
		return s
	}
	return "server error"
}

// Constants defining the standard JSON-RPC error codes.
const (
	CodeParseError     ErrorCode = -32700 // Invalid JSON received by the server
	CodeInvalidRequest ErrorCode = -32600 // The JSON sent is not a valid request object
	CodeMethodNotFound ErrorCode = -32601 // The method does not exist or is unavailable
	CodeInvalidParams  ErrorCode = -32602 // Invalid method parameters
	CodeInternalError  ErrorCode = -32603 // Internal JSON-RPC error
	CodeServerError    ErrorCode = -32000 // Generic server error
)

var errorCodeString = map[ErrorCode]string{
	CodeParseError:     "Parse error",
	CodeInvalidRequest: "Invalid request",
	CodeMethodNotFound: "Method not found",
	CodeInvalidParams:  "Invalid params",
	CodeInternalError:  "Internal error",
}

//----------------------------------------
// REQUEST

type RPCRequest struct {
	id     json.RawMessage
	Method string
	Params json.RawMessage
}

// NewRequest returns an empty request with the specified ID.
func NewRequest(id int) RPCRequest {
	return RPCRequest{id: []byte(strconv.Itoa(id))}
}

// ID returns a string representation of the request ID.
func (req RPCRequest) ID() string { return string(req.id) }

// IsNotification reports whether req is a notification (has an empty ID).
func (req RPCRequest) IsNotification() bool { return len(req.id) == 0 }

type rpcRequestJSON struct {
	V  string          `json:"jsonrpc"` // must be "2.0"
	ID json.RawMessage `json:"id,omitempty"`
	M  string          `json:"method"`
	P  json.RawMessage `json:"params"`
}

// isNullOrEmpty reports whether params is either itself empty or is the
// record literal "null".
func isNullOrEmpty(params json.RawMessage) bool {
	return len(params) == 0 || bytes.Equal(params, []byte("null"))
}

// validID matches the text of a JSON value that is allowed to serve as a
// JSON-RPC request ID: a string or an integer.
func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		return true
	}
	_, err := strconv.ParseInt(string(id), 10, 64)
	return err == nil
}

// UnmarshalJSON decodes a request from a JSON-RPC 2.0 request object.
func (req *RPCRequest) UnmarshalJSON(data []byte) error {
	var wrapper rpcRequestJSON
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	} else if wrapper.V != "" && wrapper.V != "2.0" {
		return fmt.Errorf("invalid version: %q", wrapper.V)
	}
	if !validID(wrapper.ID) {
		return fmt.Errorf("invalid request ID: %q", string(wrapper.ID))
	}
	req.id = wrapper.ID
	req.Method = wrapper.M
	req.Params = wrapper.P
	return nil
}

// MarshalJSON marshals a request with the appropriate version tag.
func (req RPCRequest) MarshalJSON() ([]byte, error) {
	var params json.RawMessage
	if !isNullOrEmpty(req.Params) {
		params = req.Params
	}
	return json.Marshal(rpcRequestJSON{
		V:  "2.0",
		ID: req.id,
		M:  req.Method,
		P:  params,
	})
}

func (req RPCRequest) String() string {
	return fmt.Sprintf("RPCRequest{%s %s/%s}", req.ID(), req.Method, req.Params)
}

// MakeResponse constructs a success response to req with the given result.
// If there is an error marshaling result to JSON, it returns an error
// response instead.
func (req RPCRequest) MakeResponse(result interface{}) RPCResponse {
	data, err := json.Marshal(result)
	if err != nil {
		return req.MakeErrorf(CodeInternalError, "marshaling result: %v", err)
	}
	return RPCResponse{id: req.id, Result: data}
}

// MakeErrorf constructs an error response to req with the given code and a
// message constructed by formatting msg with args.
func (req RPCRequest) MakeErrorf(code ErrorCode, msg string, args ...interface{}) RPCResponse {
	return RPCResponse{
		id: req.id,
		Error: &RPCError{
			Code:    int(code),
			Message: code.String(),
			Data:    fmt.Sprintf(msg, args...),
		},
	}
}

// MakeError constructs an error response to req from the given error value.
// An error that already is (or wraps) an *RPCError is reported as-is, so
// that handlers can attach application-specific codes.
func (req RPCRequest) MakeError(err error) RPCResponse {
	if err == nil {
		panic("cannot construct an error response for nil")
	}
	var e *RPCError
	if errors.As(err, &e) {
		return RPCResponse{id: req.id, Error: e}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return RPCResponse{id: req.id, Error: &RPCError{
			Code:       int(CodeInternalError),
			Message:    CodeInternalError.String(),
			Data:       err.Error(),
			HTTPStatus: http.StatusServiceUnavailable,
		}}
	}
	return RPCResponse{id: req.id, Error: &RPCError{
		Code:    int(CodeInternalError),
		Message: CodeInternalError.String(),
		Data:    err.Error(),
	}}
}

// ParamsToRequest constructs a new RPCRequest with the given ID, method, and
// parameters.
func ParamsToRequest(id int, method string, params interface{}) (RPCRequest, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return RPCRequest{}, err
	}
	req := NewRequest(id)
	req.Method = method
	req.Params = payload
	return req, nil
}

//----------------------------------------
// RESPONSE

// RPCError is the error object of a JSON-RPC response. HTTPStatus is not
// transmitted; the server uses it to choose the status code of the HTTP
// response carrying the error.
type RPCError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Data       string `json:"data,omitempty"`
	HTTPStatus int    `json:"-"`
}

// NewError constructs an application error with the given code, message,
// and HTTP status.
func NewError(code int, httpStatus int, msg string, data string) *RPCError {
	return &RPCError{Code: code, Message: msg, Data: data, HTTPStatus: httpStatus}
}

func (err RPCError) Error() string {
	const baseFormat = "RPC error %v - %s"
	if err.Data != "" {
		return fmt.Sprintf(baseFormat+": %s", err.Code, err.Message, err.Data)
	}
	return fmt.Sprintf(baseFormat, err.Code, err.Message)
}

// Status returns the HTTP status code to report err with. Errors without an
// explicit status map from their JSON-RPC code.
func (err RPCError) Status() int {
	if err.HTTPStatus != 0 {
		return err.HTTPStatus
	}
	switch ErrorCode(err.Code) {
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeMethodNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type RPCResponse struct {
	id     json.RawMessage
	Result json.RawMessage
	Error  *RPCError
}

// ID returns a representation of the response ID.
func (resp RPCResponse) ID() string { return string(resp.id) }

type rpcResponseJSON struct {
	V  string          `json:"jsonrpc"` // must be "2.0"
	ID json.RawMessage `json:"id,omitempty"`
	R  json.RawMessage `json:"result,omitempty"`
	E  *RPCError       `json:"error,omitempty"`
}

// UnmarshalJSON decodes a response from a JSON-RPC 2.0 response object.
func (resp *RPCResponse) UnmarshalJSON(data []byte) error {
	var wrapper rpcResponseJSON
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	} else if wrapper.V != "" && wrapper.V != "2.0" {
		return fmt.Errorf("invalid version: %q", wrapper.V)
	}
	if !validID(wrapper.ID) {
		return fmt.Errorf("invalid response ID: %q", string(wrapper.ID))
	}
	resp.id = wrapper.ID
	resp.Result = wrapper.R
	resp.Error = wrapper.E
	return nil
}

// MarshalJSON marshals a response with the appropriate version tag.
func (resp RPCResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(rpcResponseJSON{
		V:  "2.0",
		ID: resp.id,
		R:  resp.Result,
		E:  resp.Error,
	})
}

func (resp RPCResponse) String() string {
	if resp.Error == nil {
		return fmt.Sprintf("RPCResponse{%s %X}", resp.ID(), []byte(resp.Result))
	}
	return fmt.Sprintf("RPCResponse{%s %v}", resp.ID(), resp.Error)
}

//----------------------------------------

// CallInfo carries JSON-RPC request metadata for RPC functions invoked via
// JSON-RPC. It can be recovered from the context with GetCallInfo.
type CallInfo struct {
	RPCRequest  *RPCRequest   // non-nil for requests via JSON-RPC
	HTTPRequest *http.Request // non-nil for requests via HTTP
}

type callInfoKey struct{}

// WithCallInfo returns a child context of ctx with the ci attached.
func WithCallInfo(ctx context.Context, ci *CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, ci)
}

// GetCallInfo returns the CallInfo record attached to ctx, or nil if ctx does
// not contain a call record.
func GetCallInfo(ctx context.Context) *CallInfo {
	if v := ctx.Value(callInfoKey{}); v != nil {
		return v.(*CallInfo)
	}
	return nil
}

// RemoteAddr returns the remote address (usually a string "IP:port"). If
// HTTPRequest is not set, an empty string is returned.
func (ci *CallInfo) RemoteAddr() string {
	if ci == nil || ci.HTTPRequest == nil {
		return ""
	}
	return ci.HTTPRequest.RemoteAddr
}
