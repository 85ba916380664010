package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tmbytes "github.com/tendermint/reviewattest/libs/bytes"
)

func TestGenLoadFileSigner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signer_key.json")

	fs, err := GenFileSigner(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFileSigner(path)
	require.NoError(t, err)
	assert.Equal(t, fs.Address, loaded.Address)
	assert.True(t, fs.PubKey().Equals(loaded.PubKey()))

	msg := []byte("review")
	sig, err := loaded.Sign(msg)
	require.NoError(t, err)
	assert.True(t, fs.PubKey().VerifySignature(msg, sig))
}

func TestLoadOrGenFileSigner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signer_key.json")

	first, err := LoadOrGenFileSigner(path)
	require.NoError(t, err)
	second, err := LoadOrGenFileSigner(path)
	require.NoError(t, err)
	assert.Equal(t, first.Address, second.Address)
}

func TestLoadFileSignerRejectsTampering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signer_key.json")
	fs, err := GenFileSigner(path)
	require.NoError(t, err)

	bz, err := os.ReadFile(path)
	require.NoError(t, err)

	other, err := GenFileSigner(filepath.Join(dir, "other.json"))
	require.NoError(t, err)

	// swap the public key for another one
	tampered := strings.Replace(string(bz),
		tmbytes.HexBytes(fs.PubKey().Bytes()).String(),
		tmbytes.HexBytes(other.PubKey().Bytes()).String(), 1)
	require.NotEqual(t, string(bz), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0600))
	_, err = LoadFileSigner(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"type":"secp256k1"}`), 0600))
	_, err = LoadFileSigner(path)
	assert.Error(t, err)

	_, err = LoadFileSigner(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestFileSignerSaveRequiresPath(t *testing.T) {
	assert.Error(t, testSigner(t).Save())
}
