package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	cfg "github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/libs/log"
	"github.com/tendermint/reviewattest/libs/service"
	"github.com/tendermint/reviewattest/node"
)

// NodeProvider builds the service run by the start command.
type NodeProvider func(*cfg.Config, log.Logger) (service.Service, error)

// DefaultNodeProvider builds a node.Node from the configuration.
func DefaultNodeProvider(conf *cfg.Config, logger log.Logger) (service.Service, error) {
	n, err := node.NewDefault(conf, logger)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding an attestd node
func AddNodeFlags(cmd *cobra.Command) {
	// rpc flags
	cmd.Flags().String("rpc.laddr", config.RPC.ListenAddress, "RPC listen address. Port required")
	cmd.Flags().Bool("rpc.unsafe", config.RPC.Unsafe, "enable operator RPC methods")

	// store flags
	cmd.Flags().String("store.backend", config.Store.Backend, "durable store (kv | psql)")
	cmd.Flags().String("store.psql-conn", config.Store.PsqlConn, "PostgreSQL connection string")

	// delivery flags
	cmd.Flags().String("delivery.code-policy", config.Delivery.CodePolicy,
		"delivery code policy (reusable | single-use)")

	// attestation flags
	cmd.Flags().Bool("attestation.enabled", config.Attestation.Enabled, "attest reviews on the ledger")
	cmd.Flags().String("content-store.backend", config.ContentStore.Backend, "content store (local | ipfs)")
	cmd.Flags().String("content-store.ipfs-addr", config.ContentStore.IPFSAddress, "IPFS HTTP API address")
	cmd.Flags().String("ledger.mode", config.Ledger.Mode, "ledger mode (embedded | remote)")
	cmd.Flags().String("ledger.remote-addr", config.Ledger.RemoteAddress, "ledger node RPC address")

	// db flags
	cmd.Flags().String(
		"db-backend",
		config.DBBackend,
		"database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb | memdb")
	cmd.Flags().String(
		"db-dir",
		config.DBPath,
		"database directory")

	cmd.Flags().Bool("instrumentation.prometheus", config.Instrumentation.Prometheus, "serve Prometheus metrics")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
func NewRunNodeCmd(nodeProvider NodeProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the attestd node",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := nodeProvider(config, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			// The node stops when the command context ends, which main
			// ties to SIGINT and SIGTERM.
			if err := n.Start(cmd.Context()); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}
			logger.Info("started node", "node", n.String())

			n.Wait()
			return nil
		},
	}

	AddNodeFlags(cmd)
	return cmd
}
