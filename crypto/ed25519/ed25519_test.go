package ed25519_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/reviewattest/crypto/ed25519"
)

func TestSignAndValidateEd25519(t *testing.T) {
	privKey := ed25519.GenPrivKey()
	pubKey := privKey.PubKey()

	msg := []byte("review:u1:p1:bafy")
	sig, err := privKey.Sign(msg)
	require.NoError(t, err)
	require.Len(t, sig, ed25519.SignatureSize)

	assert.True(t, pubKey.VerifySignature(msg, sig))

	// Mutate the signature, just one bit.
	sig[7] ^= byte(0x01)
	assert.False(t, pubKey.VerifySignature(msg, sig))

	assert.False(t, pubKey.VerifySignature(msg, sig[:10]))
}

func TestGenPrivKeyFromSecretIsDeterministic(t *testing.T) {
	a := ed25519.GenPrivKeyFromSecret([]byte("writer"))
	b := ed25519.GenPrivKeyFromSecret([]byte("writer"))
	c := ed25519.GenPrivKeyFromSecret([]byte("other"))

	require.True(t, a.Equals(b))
	require.False(t, a.Equals(c))
	require.True(t, a.PubKey().Equals(b.PubKey()))
	require.Len(t, a.PubKey().Address(), 20)
}

func TestPrivKeyFromBytes(t *testing.T) {
	k := ed25519.GenPrivKey()
	got, err := ed25519.PrivKeyFromBytes(k.Bytes())
	require.NoError(t, err)
	require.True(t, k.Equals(got))

	_, err = ed25519.PrivKeyFromBytes(k.Bytes()[:32])
	require.Error(t, err)

	tampered := append([]byte(nil), k.Bytes()...)
	tampered[40] ^= 0xff
	_, err = ed25519.PrivKeyFromBytes(tampered)
	require.Error(t, err)
}
