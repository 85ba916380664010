// Commons for HTTP handling
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/net/netutil"

	"github.com/tendermint/reviewattest/libs/log"
	rpctypes "github.com/tendermint/reviewattest/rpc/jsonrpc/types"
)

// Config is a RPC server configuration.
type Config struct {
	// The maximum number of connections that will be accepted by the listener.
	// See https://godoc.org/golang.org/x/net/netutil#LimitListener
	MaxOpenConnections int

	// Used to set the HTTP server's per-request read timeout.
	// See https://godoc.org/net/http#Server.ReadTimeout
	ReadTimeout time.Duration

	// Used to set the HTTP server's per-request write timeout. Note that this
	// affects ALL methods on the server, so it should not be set too low.
	// See https://godoc.org/net/http#Server.WriteTimeout
	WriteTimeout time.Duration

	// Limit the maximum request body size. Requests exceeding it are rejected
	// before the handler runs.
	MaxBodyBytes int64

	// Maximum size of request header.
	// See https://godoc.org/net/http#Server.MaxHeaderBytes
	MaxHeaderBytes int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConnections: 0, // unlimited
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxBodyBytes:       int64(1000000), // 1MB
		MaxHeaderBytes:     1 << 20,        // same as the net/http default
	}
}

// Serve creates a http.Server and calls Serve with the given listener. It
// wraps handler to recover panics and limit the request body size. Serve
// blocks until the server exits or ctx ends, and shuts the server down in
// the latter case.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger log.Logger, config *Config) error {
	logger.Info("serve", "msg", fmt.Sprintf("Starting RPC HTTP server on %s", listener.Addr()))
	h := RecoverAndLogHandler(MaxBytesHandler(handler, config.MaxBodyBytes), logger)
	s := &http.Server{
		Handler:        h,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sctx.Done()
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tcancel()
		_ = s.Shutdown(tctx)
	}()

	err := s.Serve(listener)
	logger.Info("RPC HTTP server stopped", "err", err)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Listen starts a new net.Listener on the given address. The address must be
// fully formed, with a tcp:// or unix:// prefix. It returns an error if the
// address is invalid.
func Listen(addr string, maxOpenConnections int) (listener net.Listener, err error) {
	parts := strings.SplitN(addr, "://", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf(
			"invalid listening address %s (use fully formed addresses, including the tcp:// or unix:// prefix)",
			addr,
		)
	}
	proto, addr := parts[0], parts[1]
	listener, err = net.Listen(proto, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %v: %v", addr, err)
	}
	if maxOpenConnections > 0 {
		listener = netutil.LimitListener(listener, maxOpenConnections)
	}

	return listener, nil
}

// MaxBytesHandler wraps h so that request bodies larger than n bytes are
// rejected with an error. A limit of zero or less disables the check.
func MaxBytesHandler(h http.Handler, n int64) http.Handler {
	if n <= 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, n)
		h.ServeHTTP(w, r)
	})
}

// writeRPCResponse writes a single JSON-RPC response. Error responses carry
// the HTTP status of their error.
func writeRPCResponse(w http.ResponseWriter, logger log.Logger, rsp rpctypes.RPCResponse) {
	status := http.StatusOK
	if rsp.Error != nil {
		status = rsp.Error.Status()
	}
	writeJSON(w, logger, status, rsp)
}

// writeRPCResponseBatch writes a batch of responses, always with status OK
// since the entries may have mixed outcomes.
func writeRPCResponseBatch(w http.ResponseWriter, logger log.Logger, rsps []rpctypes.RPCResponse) {
	writeJSON(w, logger, http.StatusOK, rsps)
}

// writeHTTPResponse writes the response to a GET request.
func writeHTTPResponse(w http.ResponseWriter, logger log.Logger, rsp rpctypes.RPCResponse) {
	writeRPCResponse(w, logger, rsp)
}

func writeJSON(w http.ResponseWriter, logger log.Logger, status int, v interface{}) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Error("failed to encode RPC response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logger.Error("failed to write response", "err", err)
	}
}

//-----------------------------------------------------------------------------

// RecoverAndLogHandler wraps an HTTP handler, adding error logging. If the
// inner handler panics, the wrapper recovers, logs, sends an HTTP 500 error
// response to the client.
func RecoverAndLogHandler(handler http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Wrap the ResponseWriter to remember the status
		rww := &responseWriterWrapper{-1, w}
		begin := time.Now()

		rww.Header().Set("X-Server-Time", fmt.Sprintf("%v", begin.Unix()))

		defer func() {
			// Handle any panics in the panic handler below. Does not use the logger, since we want
			// to avoid any further panics. However, we try to return a 500, since it otherwise
			// defaults to 200 and there is no other way to terminate the connection. If that
			// should panic for whatever reason then the Go HTTP server will handle it and
			// terminate the connection - panicing is the de-facto and only way to get the Go HTTP
			// server to terminate the request and close the connection/stream:
			// https://github.com/golang/go/issues/17790#issuecomment-258481416
			if e := recover(); e != nil {
				fmt.Fprintf(w, "Panic during RPC panic recovery: %v\n%v", e, string(debug.Stack()))
				w.WriteHeader(500)
			}
		}()

		defer func() {
			// Send a 500 error if a panic happens during a handler.
			// Without this, Chrome & Firefox were retrying aborted ajax requests,
			// at least to my localhost.
			if e := recover(); e != nil {
				logger.Error("Panic in RPC HTTP handler", "err", e, "stack", string(debug.Stack()))
				writeRPCResponse(rww, logger, rpctypes.RPCRequest{}.MakeErrorf(
					rpctypes.CodeInternalError, "panic in handler: %v", e))
			}

			// Finally, log.
			durationMS := time.Since(begin).Nanoseconds() / 1000000
			if rww.Status == -1 {
				rww.Status = 200
			}
			logger.Debug("served RPC HTTP response",
				"method", r.Method,
				"url", r.URL,
				"status", rww.Status,
				"duration", durationMS,
				"remoteAddr", r.RemoteAddr,
			)
		}()

		handler.ServeHTTP(rww, r)
	})
}

// Remember the status for logging
type responseWriterWrapper struct {
	Status int
	http.ResponseWriter
}

func (w *responseWriterWrapper) WriteHeader(status int) {
	w.Status = status
	w.ResponseWriter.WriteHeader(status)
}

// implements http.Hijacker
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.(http.Hijacker).Hijack()
}
