package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	cfg "github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/internal/ledger"
	tmos "github.com/tendermint/reviewattest/libs/os"
)

// NewInitCmd returns the command that writes the default config.toml and
// the signer key into the home directory. Existing files are kept.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize an attestd home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initFiles(config)
		},
	}
}

func initFiles(conf *cfg.Config) error {
	keyFile := conf.SignerKeyFile()
	if tmos.FileExists(keyFile) {
		logger.Info("found signer key", "path", keyFile)
	} else {
		signer, err := ledger.GenFileSigner(keyFile)
		if err != nil {
			return err
		}
		logger.Info("generated signer key", "path", keyFile, "address", signer.Address)
	}

	configFile := filepath.Join(conf.RootDir, "config", "config.toml")
	if tmos.FileExists(configFile) {
		logger.Info("found config file", "path", configFile)
		return nil
	}
	if err := cfg.WriteConfigFile(conf.RootDir, conf); err != nil {
		return err
	}
	logger.Info("generated config file", "path", configFile)
	return nil
}
