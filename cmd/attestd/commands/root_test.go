package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/libs/cli"
	tmos "github.com/tendermint/reviewattest/libs/os"
	"github.com/tendermint/reviewattest/node"
	"github.com/tendermint/reviewattest/types"
	"github.com/tendermint/reviewattest/version"
)

// writeConfigVals writes a toml file with the given values.
// It returns an error if writing was impossible.
func writeConfigVals(dir string, vals map[string]string) error {
	data := ""
	for k, v := range vals {
		data += fmt.Sprintf("%s = \"%s\"\n", k, v)
	}
	cfile := filepath.Join(dir, "config.toml")
	return os.WriteFile(cfile, []byte(data), 0600)
}

// clearConfig clears env vars and viper, and resets the package config.
func clearConfig(t *testing.T) {
	t.Helper()
	require.NoError(t, os.Unsetenv("ATTESTHOME"))
	require.NoError(t, os.Unsetenv("ATTEST_HOME"))
	viper.Reset()
	config = cfg.DefaultConfig()
	t.Cleanup(viper.Reset)
}

// testRootCmd builds a root command with a no-op subcommand, so that
// running it only parses the configuration.
func testRootCmd(defaultHome string, sub ...*cobra.Command) *cobra.Command {
	root := NewRootCmd()
	noop := &cobra.Command{
		Use:  "noop",
		RunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	root.AddCommand(append(sub, noop)...)
	return cli.PrepareBaseCmd(root, "ATTEST", defaultHome)
}

// runWithArgs executes cmd with args and the environment variables set,
// returning its output.
func runWithArgs(ctx context.Context, t *testing.T, cmd *cobra.Command, args []string, env map[string]string) (string, error) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootHome(t *testing.T) {
	defaultRoot := t.TempDir()
	newRoot := filepath.Join(defaultRoot, "something-else")
	cases := []struct {
		args []string
		env  map[string]string
		root string
	}{
		{nil, nil, defaultRoot},
		{[]string{"--home", newRoot}, nil, newRoot},
		{nil, map[string]string{"ATTEST_HOME": newRoot}, newRoot},
		{nil, map[string]string{"ATTESTHOME": newRoot}, newRoot},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			clearConfig(t)

			_, err := runWithArgs(ctx, t, testRootCmd(defaultRoot), append([]string{"noop"}, tc.args...), tc.env)
			require.NoError(t, err)

			require.Equal(t, tc.root, config.RootDir)
			require.Equal(t, tc.root, config.RPC.RootDir)
			assert.True(t, tmos.FileExists(filepath.Join(tc.root, "config")))
		})
	}
}

func TestRootFlagsEnv(t *testing.T) {
	defaults := cfg.DefaultConfig()
	defaultDir := t.TempDir()

	cases := []struct {
		args     []string
		env      map[string]string
		logLevel string
	}{
		{[]string{"--log-level", "debug"}, nil, "debug"},
		{nil, map[string]string{"ATTEST_LOG_LEVEL": "error"}, "error"},
		{nil, nil, defaults.LogLevel},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			clearConfig(t)

			_, err := runWithArgs(ctx, t, testRootCmd(defaultDir), append([]string{"noop"}, tc.args...), tc.env)
			require.NoError(t, err)

			assert.Equal(t, tc.logLevel, config.LogLevel)
		})
	}
}

func TestRootConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// write non-default config
	cvals := map[string]string{
		"log-level": "debug",
	}

	cases := []struct {
		args   []string
		logLvl string
	}{
		{nil, "debug"},                         // should load config
		{[]string{"--log-level=info"}, "info"}, // flag over rides
	}

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			clearConfig(t)
			root := t.TempDir()

			configDir := filepath.Join(root, "config")
			require.NoError(t, tmos.EnsureDir(configDir, 0700))
			require.NoError(t, writeConfigVals(configDir, cvals))

			_, err := runWithArgs(ctx, t, testRootCmd(root), append([]string{"noop"}, tc.args...), nil)
			require.NoError(t, err)

			require.Equal(t, tc.logLvl, config.LogLevel)
		})
	}
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	clearConfig(t)
	root := t.TempDir()
	_, err := runWithArgs(context.Background(), t, testRootCmd(root),
		[]string{"noop", "--log-format", "xml"}, nil)
	assert.Error(t, err)
}

func TestInitFiles(t *testing.T) {
	clearConfig(t)
	root := t.TempDir()
	ctx := context.Background()

	_, err := runWithArgs(ctx, t, testRootCmd(root, NewInitCmd()), []string{"init"}, nil)
	require.NoError(t, err)

	keyFile := filepath.Join(root, "config", "signer_key.json")
	require.True(t, tmos.FileExists(filepath.Join(root, "config", "config.toml")))
	first, err := ledger.LoadFileSigner(keyFile)
	require.NoError(t, err)

	// a second init keeps the existing key
	clearConfig(t)
	_, err = runWithArgs(ctx, t, testRootCmd(root, NewInitCmd()), []string{"init"}, nil)
	require.NoError(t, err)
	second, err := ledger.LoadFileSigner(keyFile)
	require.NoError(t, err)
	assert.Equal(t, first.Address, second.Address)

	// and show-signer reports it
	clearConfig(t)
	out, err := runWithArgs(ctx, t, testRootCmd(root, NewShowSignerCmd()), []string{"show-signer"}, nil)
	require.NoError(t, err)
	var info signerInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, first.Address.String(), info.Address)
	assert.Len(t, info.PubKey, 64)
}

func TestShowSignerWithoutKey(t *testing.T) {
	clearConfig(t)
	_, err := runWithArgs(context.Background(), t, testRootCmd(t.TempDir(), NewShowSignerCmd()),
		[]string{"show-signer"}, nil)
	assert.Error(t, err)
}

func TestGenSigner(t *testing.T) {
	clearConfig(t)
	root := t.TempDir()
	out := filepath.Join(root, "writer.json")

	_, err := runWithArgs(context.Background(), t, testRootCmd(root, NewGenSignerCmd()),
		[]string{"gen-signer", "--output", out}, nil)
	require.NoError(t, err)
	_, err = ledger.LoadFileSigner(out)
	require.NoError(t, err)

	clearConfig(t)
	_, err = runWithArgs(context.Background(), t, testRootCmd(root, NewGenSignerCmd()),
		[]string{"gen-signer", "--output", out}, nil)
	assert.Error(t, err, "existing keys are not overwritten")
}

func TestVersion(t *testing.T) {
	clearConfig(t)
	out, err := runWithArgs(context.Background(), t, testRootCmd(t.TempDir(), VersionCmd), []string{"version"}, nil)
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))
}

func TestRecomputeRatings(t *testing.T) {
	clearConfig(t)
	root := t.TempDir()
	ctx := context.Background()

	// seed the kv store the command will open
	conf := cfg.DefaultConfig().SetRoot(root)
	s, err := node.OpenStore(conf, cfg.DefaultDBProvider, logger)
	require.NoError(t, err)
	now := time.Now()
	for i, rating := range []int{5, 3, 4} {
		require.NoError(t, s.CreateReview(ctx, types.ReviewRecord{
			ID:          fmt.Sprintf("r%d", i),
			User:        fmt.Sprintf("u%d", i),
			Product:     "p1",
			Rating:      rating,
			Comment:     "ok",
			Attestation: types.Attestation{State: types.AttestationCommitted},
			CreatedAt:   now,
			UpdatedAt:   now,
		}))
	}
	require.NoError(t, s.Close())

	out, err := runWithArgs(ctx, t, testRootCmd(root, NewRecomputeRatingsCmd()), []string{"recompute-ratings"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "recomputed 1 products", strings.TrimSpace(out))

	s, err = node.OpenStore(conf, cfg.DefaultDBProvider, logger)
	require.NoError(t, err)
	defer s.Close()
	sum, err := s.GetRating(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, sum.OverallRating)
	assert.Equal(t, 3, sum.ReviewCount)
}
