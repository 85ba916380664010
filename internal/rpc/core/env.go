package core

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/internal/delivery"
	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/internal/rating"
	"github.com/tendermint/reviewattest/internal/review"
	"github.com/tendermint/reviewattest/libs/log"
	rpcserver "github.com/tendermint/reviewattest/rpc/jsonrpc/server"
)

const (
	// maximum length of user, product, order and code arguments
	maxIDLength = 256
	// maximum number of products in one order
	maxOrderLines = 1000
)

//----------------------------------------------
// Environment contains objects and interfaces used by the RPC. It is expected
// to be setup once during startup.
type Environment struct {
	Registry   *delivery.Registry
	Reviews    *review.Orchestrator
	Ratings    *rating.Aggregator
	CodePolicy string

	// optional; reported by status when it implements ledger.StatusClient
	Ledger ledger.Client

	Logger log.Logger

	Config config.RPCConfig
}

// Handler returns the HTTP handler serving the routes of env, wrapped with
// CORS when it is enabled in the configuration.
func (env *Environment) Handler() http.Handler {
	routes := NewRoutesMap(env, &RouteOptions{Unsafe: env.Config.Unsafe})

	mux := http.NewServeMux()
	rpcserver.RegisterRPCFuncs(mux, routes, env.Logger.With("module", "rpc-server"))

	var rootHandler http.Handler = mux
	if env.Config.IsCorsEnabled() {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: env.Config.CORSAllowedOrigins,
			AllowedMethods: env.Config.CORSAllowedMethods,
			AllowedHeaders: env.Config.CORSAllowedHeaders,
		})
		rootHandler = corsMiddleware.Handler(mux)
	}
	return rootHandler
}

// ServerConfig returns the settings of the HTTP server for the RPC.
func (env *Environment) ServerConfig() *rpcserver.Config {
	cfg := rpcserver.DefaultConfig()
	cfg.MaxBodyBytes = env.Config.MaxBodyBytes
	cfg.MaxHeaderBytes = env.Config.MaxHeaderBytes
	cfg.MaxOpenConnections = env.Config.MaxOpenConnections
	if env.Config.ReadTimeout > 0 {
		cfg.ReadTimeout = env.Config.ReadTimeout
	}
	if env.Config.WriteTimeout > 0 {
		cfg.WriteTimeout = env.Config.WriteTimeout
	}
	return cfg
}

// ListenAddresses splits the comma separated listen address setting.
func (env *Environment) ListenAddresses() []string {
	var out []string
	for _, a := range strings.Split(env.Config.ListenAddress, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func requireArg(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: missing %s", errInvalidArgument, name)
	}
	if len(value) > maxIDLength {
		return fmt.Errorf("%w: %s longer than %d bytes", errInvalidArgument, name, maxIDLength)
	}
	return nil
}
