package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsLoadViperReadsConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "config", "config.toml"),
		[]byte("log-level = \"debug\"\n[delivery]\ncode-policy = \"single-use\"\n"), 0o644))

	var level, policy string
	cmd := &cobra.Command{
		Use: "root",
		RunE: func(cmd *cobra.Command, args []string) error {
			level = viper.GetString("log-level")
			policy = viper.GetString("delivery.code-policy")
			return nil
		},
	}
	PrepareBaseCmd(cmd, "ATTESTTEST", home)
	cmd.SetArgs([]string{"--home", home})
	require.NoError(t, cmd.Execute())

	require.Equal(t, "debug", level)
	require.Equal(t, "single-use", policy)
}

func TestInitEnvCopiesUnprefixedVars(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("ATTESTTESTHOME", "/tmp/x")
	InitEnv("ATTESTTEST")
	require.Equal(t, "/tmp/x", os.Getenv("ATTESTTEST_HOME"))
	require.Equal(t, "/tmp/x", viper.GetString("home"))
}
