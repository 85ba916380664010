// Package contentstore defines the content-addressed store that holds review
// snapshots and images. Objects are named by their CID, so writing the same
// bytes twice yields the same identifier.
package contentstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

//go:generate ../../scripts/mockery_generate.sh Store

// Store puts and fetches immutable blobs by content identifier.
//
// Implementations return types.ErrContentStoreUnavailable when the backing
// system cannot be reached and types.ErrNotFound for unknown identifiers.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
}

// MaxObjectSize is the largest object a Store accepts. IPFS keeps an object
// of at most one chunk as a single raw block, so every stored object is
// named by ComputeCID and passes Verify whichever backend wrote it.
const MaxObjectSize = 1 << 20

// ErrObjectTooLarge is returned by Put for objects over MaxObjectSize.
var ErrObjectTooLarge = errors.New("object larger than 1 MiB")

// CheckSize returns ErrObjectTooLarge if data does not fit in one object.
func CheckSize(data []byte) error {
	if len(data) > MaxObjectSize {
		return fmt.Errorf("%w: %d bytes", ErrObjectTooLarge, len(data))
	}
	return nil
}

// prefix is the CID recipe used for every object: CIDv1, raw codec,
// sha2-256 multihash.
var prefix = cid.Prefix{
	Version:  1,
	Codec:    cid.Raw,
	MhType:   multihash.SHA2_256,
	MhLength: -1,
}

// ComputeCID returns the base32 CIDv1 of data.
func ComputeCID(data []byte) (string, error) {
	c, err := prefix.Sum(data)
	if err != nil {
		return "", fmt.Errorf("computing cid: %w", err)
	}
	return c.String(), nil
}

// Verify checks that data hashes to id. Identifiers produced with another
// recipe are checked with their own prefix.
func Verify(id string, data []byte) error {
	want, err := cid.Decode(id)
	if err != nil {
		return fmt.Errorf("invalid cid %q: %w", id, err)
	}
	got, err := want.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("computing cid: %w", err)
	}
	if !got.Equals(want) {
		return fmt.Errorf("content does not match cid %s", id)
	}
	return nil
}

// ValidateID reports whether id parses as a CID.
func ValidateID(id string) error {
	if _, err := cid.Decode(id); err != nil {
		return fmt.Errorf("invalid cid %q: %w", id, err)
	}
	return nil
}
