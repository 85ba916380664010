package commands

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/reviewattest/internal/ledger"
	tmos "github.com/tendermint/reviewattest/libs/os"
)

type signerInfo struct {
	Address string `json:"address"`
	PubKey  string `json:"pub_key"`
	File    string `json:"file,omitempty"`
}

func printSigner(cmd *cobra.Command, s *ledger.FileSigner, file string) error {
	bz, err := json.MarshalIndent(signerInfo{
		Address: s.Address.String(),
		PubKey:  hex.EncodeToString(s.PubKey().Bytes()),
		File:    file,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(bz))
	return nil
}

// NewGenSignerCmd returns the command that generates a new signer key.
func NewGenSignerCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "gen-signer",
		Short: "Generate a new ledger signer key",
		Long: `Generate a new ed25519 signer key and write it to --output.
Point signer-key-file at it to use it, and give its pub_key to the ledger
node as writer-pubkey.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--output is required")
			}
			if tmos.FileExists(out) {
				return fmt.Errorf("refusing to overwrite %s", out)
			}
			s, err := ledger.GenFileSigner(out)
			if err != nil {
				return err
			}
			return printSigner(cmd, s, out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "file to write the key to")
	return cmd
}

// NewShowSignerCmd returns the command that prints the configured signer's
// address and public key.
func NewShowSignerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-signer",
		Short: "Show the address and public key of the signer key",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyFile := config.SignerKeyFile()
			if !tmos.FileExists(keyFile) {
				return fmt.Errorf("signer key file %s does not exist", keyFile)
			}
			s, err := ledger.LoadFileSigner(keyFile)
			if err != nil {
				return err
			}
			return printSigner(cmd, s, "")
		},
	}
}
