package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/creachadair/atomicfile"

	"github.com/tendermint/reviewattest/crypto"
	"github.com/tendermint/reviewattest/crypto/ed25519"
	tmbytes "github.com/tendermint/reviewattest/libs/bytes"
	tmos "github.com/tendermint/reviewattest/libs/os"
)

// Signer is the writer identity of the attestation service.
type Signer interface {
	PubKey() crypto.PubKey
	Sign(msg []byte) ([]byte, error)
}

// FileSigner is a Signer whose ed25519 key is persisted in a JSON file.
type FileSigner struct {
	Address crypto.Address
	Key     ed25519.PrivKey

	filePath string
}

var _ Signer = (*FileSigner)(nil)

type fileSignerJSON struct {
	Address tmbytes.HexBytes `json:"address"`
	Type    string           `json:"type"`
	PubKey  tmbytes.HexBytes `json:"pub_key"`
	PrivKey tmbytes.HexBytes `json:"priv_key"`
}

// NewFileSigner returns a signer for key, saved to filePath by Save.
func NewFileSigner(key ed25519.PrivKey, filePath string) *FileSigner {
	return &FileSigner{
		Address:  key.PubKey().Address(),
		Key:      key,
		filePath: filePath,
	}
}

// GenFileSigner generates a new key and writes it to filePath.
func GenFileSigner(filePath string) (*FileSigner, error) {
	fs := NewFileSigner(ed25519.GenPrivKey(), filePath)
	if err := fs.Save(); err != nil {
		return nil, err
	}
	return fs, nil
}

// LoadFileSigner reads the key stored at filePath.
func LoadFileSigner(filePath string) (*FileSigner, error) {
	bz, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading signer key from %v: %w", filePath, err)
	}
	var fj fileSignerJSON
	if err := json.Unmarshal(bz, &fj); err != nil {
		return nil, fmt.Errorf("decoding signer key from %v: %w", filePath, err)
	}
	if fj.Type != ed25519.KeyType {
		return nil, fmt.Errorf("signer key %v: unsupported key type %q", filePath, fj.Type)
	}
	key, err := ed25519.PrivKeyFromBytes(fj.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("signer key %v: %w", filePath, err)
	}
	fs := NewFileSigner(key, filePath)
	if !bytes.Equal(fs.Key.PubKey().Bytes(), fj.PubKey) {
		return nil, fmt.Errorf("signer key %v: public key does not match private key", filePath)
	}
	if !fs.Address.Equal(fj.Address) {
		return nil, fmt.Errorf("signer key %v: address does not match public key", filePath)
	}
	return fs, nil
}

// LoadOrGenFileSigner loads the signer at filePath if it exists, or
// generates and saves a new one.
func LoadOrGenFileSigner(filePath string) (*FileSigner, error) {
	if tmos.FileExists(filePath) {
		return LoadFileSigner(filePath)
	}
	return GenFileSigner(filePath)
}

// PubKey implements Signer.
func (fs *FileSigner) PubKey() crypto.PubKey { return fs.Key.PubKey() }

// Sign implements Signer.
func (fs *FileSigner) Sign(msg []byte) ([]byte, error) { return fs.Key.Sign(msg) }

// Save persists the key to its file with owner-only permissions.
func (fs *FileSigner) Save() error {
	if fs.filePath == "" {
		return errors.New("cannot save signer key: filePath not set")
	}
	data, err := json.MarshalIndent(fileSignerJSON{
		Address: fs.Address,
		Type:    ed25519.KeyType,
		PubKey:  fs.Key.PubKey().Bytes(),
		PrivKey: fs.Key.Bytes(),
	}, "", "  ")
	if err != nil {
		return err
	}
	if _, err := atomicfile.WriteAll(fs.filePath, bytes.NewReader(data), 0600); err != nil {
		return fmt.Errorf("writing signer key to %v: %w", fs.filePath, err)
	}
	return nil
}

// String returns a string representation of the FileSigner.
func (fs *FileSigner) String() string {
	return fmt.Sprintf("FileSigner{%v}", fs.Address)
}
