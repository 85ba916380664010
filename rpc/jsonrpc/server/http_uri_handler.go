package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/tendermint/reviewattest/libs/log"
	rpctypes "github.com/tendermint/reviewattest/rpc/jsonrpc/types"
)

// uriReqID is a placeholder ID used for GET requests, which do not receive a
// JSON-RPC request ID from the caller.
const uriReqID = -1

// convert from a function name to the http handler
func makeHTTPHandler(rpcFunc *RPCFunc, logger log.Logger) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := rpctypes.WithCallInfo(req.Context(), &rpctypes.CallInfo{
			HTTPRequest: req,
		})
		jreq := rpctypes.NewRequest(uriReqID)

		params, err := parseURLParams(rpcFunc.args, req)
		if err != nil {
			writeHTTPResponse(w, logger, jreq.MakeErrorf(rpctypes.CodeInvalidParams, "%v", err))
			return
		}
		args, err := rpcFunc.parseParams(ctx, params)
		if err != nil {
			writeHTTPResponse(w, logger, jreq.MakeErrorf(rpctypes.CodeInvalidParams, "converting parameters: %v", err))
			return
		}

		result, err := rpcFunc.Call(args)
		if err == nil {
			writeHTTPResponse(w, logger, jreq.MakeResponse(result))
		} else {
			writeHTTPResponse(w, logger, jreq.MakeError(err))
		}
	}
}

// parseURLParams converts the query (or form) values of req into a JSON
// object keyed by parameter name, typed after the parameter fields.
func parseURLParams(args []argInfo, req *http.Request) ([]byte, error) {
	if err := req.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid HTTP request: %w", err)
	}

	params := make(map[string]interface{})
	for _, arg := range args {
		vals, ok := req.Form[arg.name]
		if !ok || len(vals) == 0 {
			continue
		}
		v := vals[0]
		switch {
		case arg.isBinary:
			dec, err := decodeBinary(v)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", arg.name, err)
			}
			params[arg.name] = dec
		case arg.kind == reflect.String:
			if isQuotedString(v) {
				var dec string
				if err := json.Unmarshal([]byte(v), &dec); err != nil {
					return nil, fmt.Errorf("parameter %q: invalid quoted string: %w", arg.name, err)
				}
				v = dec
			}
			params[arg.name] = v
		case arg.kind == reflect.Bool:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", arg.name, err)
			}
			params[arg.name] = b
		case isIntegerKind(arg.kind):
			z, err := decodeInteger(v)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", arg.name, err)
			}
			params[arg.name] = z
		default:
			params[arg.name] = json.RawMessage(v)
		}
	}
	return json.Marshal(params)
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// decodeBinary accepts 0x-prefixed hex or a quoted string.
func decodeBinary(v string) ([]byte, error) {
	if lc := strings.ToLower(v); strings.HasPrefix(lc, "0x") {
		dec, err := hex.DecodeString(lc[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex string: %w", err)
		} else if len(dec) == 0 {
			return nil, errors.New("invalid empty hex string")
		}
		return dec, nil
	}
	if isQuotedString(v) {
		var dec string
		if err := json.Unmarshal([]byte(v), &dec); err != nil {
			return nil, fmt.Errorf("invalid quoted string: %w", err)
		}
		return []byte(dec), nil
	}
	return nil, errors.New("binary values must be 0x-prefixed hex or quoted strings")
}

// isQuotedString reports whether s is enclosed in double quotes.
func isQuotedString(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`)
}

// decodeInteger decodes s into an int64. If s is "double quoted" the quotes
// are removed; otherwise s must be a base-10 digit string.
func decodeInteger(s string) (int64, error) {
	if isQuotedString(s) {
		s = s[1 : len(s)-1]
	}
	return strconv.ParseInt(s, 10, 64)
}
