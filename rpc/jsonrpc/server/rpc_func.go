package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/tendermint/reviewattest/libs/log"
)

// RegisterRPCFuncs adds a route to mux for each non-websocket function in the
// funcMap, and also a root JSON-RPC POST handler.
func RegisterRPCFuncs(mux *http.ServeMux, funcMap map[string]*RPCFunc, logger log.Logger) {
	for name, fn := range funcMap {
		mux.HandleFunc("/"+name, makeHTTPHandler(fn, logger))
	}
	mux.HandleFunc("/", handleInvalidJSONRPCPaths(makeJSONRPCHandler(funcMap, logger)))
}

// RPCFunc contains the introspected type information for a function.
type RPCFunc struct {
	f     reflect.Value // underlying rpc function
	param reflect.Type  // if non-nil, the parameter type of the request
	args  []argInfo     // names and kinds of the parameter fields
}

type argInfo struct {
	name string
	kind reflect.Kind
	// binary fields decode URL values from hex (0x...) rather than text
	isBinary bool
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// NewRPCFunc constructs an RPCFunc for f, which must be a function whose
// type signature matches one of these schemes:
//
//     func(context.Context) (R, error)
//     func(context.Context, *T) (R, error)
//
// for an arbitrary struct type T and type R. The fields of T name the
// parameters of the method, using their JSON tags. NewRPCFunc panics if f
// does not have one of these forms.
func NewRPCFunc(f interface{}) *RPCFunc {
	fn, err := newRPCFunc(f)
	if err != nil {
		panic(fmt.Sprintf("invalid RPC function: %v", err))
	}
	return fn
}

func newRPCFunc(f interface{}) (*RPCFunc, error) {
	if f == nil {
		return nil, errors.New("nil function")
	}
	fv := reflect.ValueOf(f)
	if fv.Kind() != reflect.Func {
		return nil, errors.New("not a function")
	}

	ft := fv.Type()
	if np := ft.NumIn(); np == 0 || np > 2 {
		return nil, errors.New("wrong number of parameters")
	} else if ft.In(0) != ctxType {
		return nil, errors.New("first parameter is not context.Context")
	} else if ft.NumOut() != 2 {
		return nil, errors.New("wrong number of results")
	} else if ft.Out(1) != errType {
		return nil, errors.New("last result is not error")
	}

	fn := &RPCFunc{f: fv}
	if ft.NumIn() == 2 {
		pt := ft.In(1)
		if pt.Kind() != reflect.Ptr || pt.Elem().Kind() != reflect.Struct {
			return nil, errors.New("parameter is not a pointer to a struct")
		}
		fn.param = pt.Elem()
		fn.args = paramArgs(fn.param)
	}
	return fn, nil
}

// paramArgs lists the exported fields of t by their JSON names.
func paramArgs(t reflect.Type) []argInfo {
	var args []argInfo
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" {
			name = strings.Split(tag, ",")[0]
			if name == "-" {
				continue
			} else if name == "" {
				name = f.Name
			}
		}
		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		args = append(args, argInfo{
			name:     name,
			kind:     ft.Kind(),
			isBinary: ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Uint8,
		})
	}
	return args
}

// parseParams parses the JSON parameters of a request into the arguments of
// fn, returning the corresponding argument values or an error.
func (fn *RPCFunc) parseParams(ctx context.Context, paramData []byte) ([]reflect.Value, error) {
	if fn.param == nil {
		if !isEmptyParams(paramData) {
			return nil, errors.New("method does not take parameters")
		}
		return []reflect.Value{reflect.ValueOf(ctx)}, nil
	}

	arg := reflect.New(fn.param)
	if isEmptyParams(paramData) {
		return []reflect.Value{reflect.ValueOf(ctx), arg}, nil
	}
	bits, err := fn.adjustParams(paramData)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bits, arg.Interface()); err != nil {
		return nil, err
	}
	return []reflect.Value{reflect.ValueOf(ctx), arg}, nil
}

// isEmptyParams reports whether data carries no parameter values.
func isEmptyParams(data []byte) bool {
	switch string(bytes.TrimSpace(data)) {
	case "", "null", "{}", "[]":
		return true
	}
	return false
}

// adjustParams checks whether data is encoded as a JSON array, and if so
// adjusts the values to match the corresponding parameter names.
func (fn *RPCFunc) adjustParams(data []byte) (json.RawMessage, error) {
	base := bytes.TrimSpace(data)
	if bytes.HasPrefix(base, []byte("[")) {
		var args []json.RawMessage
		if err := json.Unmarshal(base, &args); err != nil {
			return nil, err
		} else if len(args) != len(fn.args) {
			return nil, fmt.Errorf("got %d arguments, want %d", len(args), len(fn.args))
		}
		m := make(map[string]json.RawMessage)
		for i, arg := range args {
			m[fn.args[i].name] = arg
		}
		return json.Marshal(m)
	} else if !bytes.HasPrefix(base, []byte("{")) {
		return nil, errors.New("parameters must be an object or an array")
	}
	return base, nil
}

// Call invokes fn with the given arguments and returns its result.
func (fn *RPCFunc) Call(args []reflect.Value) (interface{}, error) {
	returns := fn.f.Call(args)
	if err := returns[1].Interface(); err != nil {
		return nil, err.(error)
	}
	return returns[0].Interface(), nil
}
