package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cfg "github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/libs/log"
)

var (
	config = cfg.DefaultConfig()
	logger = log.MustNewDefaultLogger(cfg.LogFormatPlain, "info")
)

// ParseConfig reads the configuration bound into viper by the flags, the
// environment and config.toml, roots it and validates it.
func ParseConfig() (*cfg.Config, error) {
	conf := cfg.DefaultConfig()
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}
	conf.SetRoot(conf.RootDir)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// NewRootCmd returns the root attestd command. Subcommands read the parsed
// configuration and the logger it sets up.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attestd",
		Short: "Verified-purchase reviews anchored on a ledger",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == VersionCmd.Name() {
				return nil
			}

			conf, err := ParseConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureRoot(conf.RootDir); err != nil {
				return err
			}
			l, err := log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
			if err != nil {
				return err
			}
			config, logger = conf, l
			return nil
		},
	}
	cmd.PersistentFlags().String("log-level", config.LogLevel, "log level")
	cmd.PersistentFlags().String("log-format", config.LogFormat, "log format (plain | json)")
	return cmd
}
