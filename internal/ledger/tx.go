package ledger

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tendermint/reviewattest/crypto/ed25519"
	tmbytes "github.com/tendermint/reviewattest/libs/bytes"
)

// ErrInvalidTx is returned by Tx.ValidateBasic.
var ErrInvalidTx = errors.New("invalid transaction")

// TxType names a contract operation.
type TxType string

const (
	TxVerifyReviewer TxType = "verify_reviewer"
	TxSubmitReview   TxType = "submit_review"
)

// Result codes of a delivered transaction. Any code other than CodeOK means
// the contract refused the transaction and its state is unchanged.
const (
	CodeOK              uint32 = 0
	CodeInvalidTx       uint32 = 1
	CodeUnauthorized    uint32 = 2
	CodeBadSignature    uint32 = 3
	CodeReplay          uint32 = 4
	CodeNotVerified     uint32 = 5
	CodeAlreadyReviewed uint32 = 6
)

// TxBody is the signed part of a transaction.
type TxBody struct {
	Type      TxType    `json:"type"`
	User      string    `json:"user_id"`
	Product   string    `json:"product_id"`
	ContentID string    `json:"content_id,omitempty"`
	Nonce     string    `json:"nonce"`
	Time      time.Time `json:"time"`
}

// NewTxBody returns a body with a fresh nonce and the current time, so two
// otherwise equal operations hash differently.
func NewTxBody(typ TxType, user, product, contentID string) TxBody {
	return TxBody{
		Type:      typ,
		User:      user,
		Product:   product,
		ContentID: contentID,
		Nonce:     uuid.New().String(),
		Time:      time.Now().UTC().Round(0),
	}
}

// SignBytes returns the canonical encoding of the body that is signed.
func (b TxBody) SignBytes() []byte {
	bz, err := json.Marshal(b)
	if err != nil {
		panic(err)
	}
	return bz
}

// Tx is a contract write, signed by the writer identity.
type Tx struct {
	Body      TxBody           `json:"body"`
	PubKey    tmbytes.HexBytes `json:"pub_key"`
	Signature tmbytes.HexBytes `json:"signature"`
}

// SignTx signs body with s.
func SignTx(s Signer, body TxBody) (Tx, error) {
	sig, err := s.Sign(body.SignBytes())
	if err != nil {
		return Tx{}, fmt.Errorf("signing %s tx: %w", body.Type, err)
	}
	return Tx{
		Body:      body,
		PubKey:    s.PubKey().Bytes(),
		Signature: sig,
	}, nil
}

// Hash identifies the transaction. It covers the body and the signature.
func (tx Tx) Hash() tmbytes.HexBytes {
	h := sha256.New()
	h.Write(tx.Body.SignBytes())
	h.Write(tx.Signature)
	return h.Sum(nil)
}

// ValidateBasic performs stateless checks.
func (tx Tx) ValidateBasic() error {
	b := tx.Body
	switch b.Type {
	case TxVerifyReviewer:
	case TxSubmitReview:
		if b.ContentID == "" {
			return fmt.Errorf("%w: submit_review without content id", ErrInvalidTx)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTx, b.Type)
	}
	if b.User == "" || b.Product == "" {
		return fmt.Errorf("%w: empty user or product", ErrInvalidTx)
	}
	if b.Nonce == "" {
		return fmt.Errorf("%w: empty nonce", ErrInvalidTx)
	}
	if b.Time.IsZero() {
		return fmt.Errorf("%w: zero time", ErrInvalidTx)
	}
	if len(tx.PubKey) != ed25519.PubKeySize {
		return fmt.Errorf("%w: public key must be %d bytes", ErrInvalidTx, ed25519.PubKeySize)
	}
	if len(tx.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature must be %d bytes", ErrInvalidTx, ed25519.SignatureSize)
	}
	return nil
}

// VerifySignature reports whether Signature is a valid signature of the body
// by PubKey.
func (tx Tx) VerifySignature() bool {
	return ed25519.PubKey(tx.PubKey).VerifySignature(tx.Body.SignBytes(), tx.Signature)
}

// TxResult is the outcome of delivering a transaction.
type TxResult struct {
	Code   uint32           `json:"code"`
	Log    string           `json:"log,omitempty"`
	Hash   tmbytes.HexBytes `json:"hash"`
	Height int64            `json:"height"`
}

// IsOK reports whether the transaction was accepted.
func (r TxResult) IsOK() bool { return r.Code == CodeOK }

// Receipt returns the receipt of an accepted transaction.
func (r TxResult) Receipt() Receipt {
	return Receipt{TxID: r.Hash, Height: r.Height}
}
