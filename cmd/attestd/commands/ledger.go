package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	dbm "github.com/tendermint/tm-db"

	cfg "github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/crypto"
	"github.com/tendermint/reviewattest/crypto/ed25519"
	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/internal/ledger/contract"
	lnode "github.com/tendermint/reviewattest/internal/ledger/node"
)

// NewLedgerCmd returns the ledger command group.
func NewLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Run or inspect the review registry ledger",
	}
	cmd.AddCommand(newLedgerStartCmd(), newLedgerStatusCmd())
	return cmd
}

func newLedgerStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Serve the review registry contract to remote attestd nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, db, err := openContract(config)
			if err != nil {
				return err
			}
			defer db.Close()

			n := lnode.New(c, config.LedgerNode.ListenAddress, nil, logger)
			if err := n.Start(cmd.Context()); err != nil {
				return fmt.Errorf("failed to start ledger node: %w", err)
			}
			logger.Info("started ledger node", "addr", n.Addr())

			n.Wait()
			return nil
		},
	}
	cmd.Flags().String("ledger-node.laddr", config.LedgerNode.ListenAddress, "ledger RPC listen address")
	cmd.Flags().String("ledger-node.writer-pubkey", config.LedgerNode.WriterPubKey,
		"hex ed25519 public key allowed to write (default: the signer key)")
	return cmd
}

func newLedgerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the committed state of the embedded ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, db, err := openContract(config)
			if err != nil {
				return err
			}
			defer db.Close()
			return printJSON(cmd, c.Status())
		},
	}
}

func openContract(conf *cfg.Config) (*contract.Contract, dbm.DB, error) {
	writer, err := writerKey(conf)
	if err != nil {
		return nil, nil, err
	}
	db, err := cfg.DefaultDBProvider(&cfg.DBContext{ID: "ledger", Config: conf})
	if err != nil {
		return nil, nil, err
	}
	c, err := contract.New(db, writer, logger.With("module", "contract"))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return c, db, nil
}

// writerKey returns the configured writer key, falling back to the public
// key of the signer key file.
func writerKey(conf *cfg.Config) (crypto.PubKey, error) {
	if conf.LedgerNode.WriterPubKey != "" {
		bz, err := hex.DecodeString(conf.LedgerNode.WriterPubKey)
		if err != nil {
			return nil, fmt.Errorf("writer-pubkey: %w", err)
		}
		return ed25519.PubKey(bz), nil
	}
	signer, err := ledger.LoadOrGenFileSigner(conf.SignerKeyFile())
	if err != nil {
		return nil, err
	}
	return signer.PubKey(), nil
}
