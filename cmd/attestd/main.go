package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tendermint/reviewattest/cmd/attestd/commands"
	cfg "github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/libs/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := commands.NewRootCmd()
	rootCmd.AddCommand(
		commands.NewInitCmd(),
		commands.NewGenSignerCmd(),
		commands.NewShowSignerCmd(),
		commands.NewLedgerCmd(),
		commands.NewRecomputeRatingsCmd(),
		commands.VersionCmd,
		// NOTE: to embed a custom store or ledger, build a NodeProvider and
		// pass it here instead.
		commands.NewRunNodeCmd(commands.DefaultNodeProvider),
	)

	cmd := cli.PrepareBaseCmd(rootCmd, "ATTEST", os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultAttestDir)))
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
