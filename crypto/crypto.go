package crypto

import (
	"crypto/sha256"

	"github.com/tendermint/reviewattest/libs/bytes"
)

const (
	// HashSize is the size in bytes of a transaction or content hash.
	HashSize = sha256.Size

	// AddressSize is the size of a public key address.
	AddressSize = 20
)

// Address identifies a signer. It is hex-encoded in JSON.
type Address = bytes.HexBytes

// AddressHash computes a truncated SHA-256 hash of bz for use as a signer
// address.
func AddressHash(bz []byte) Address {
	h := sha256.Sum256(bz)
	return Address(h[:AddressSize])
}

// Checksum returns the SHA256 of bz.
func Checksum(bz []byte) []byte {
	h := sha256.Sum256(bz)
	return h[:]
}

type PubKey interface {
	Address() Address
	Bytes() []byte
	VerifySignature(msg []byte, sig []byte) bool
	Equals(PubKey) bool
	Type() string
}

type PrivKey interface {
	Bytes() []byte
	Sign(msg []byte) ([]byte, error)
	PubKey() PubKey
	Equals(PrivKey) bool
	Type() string
}
