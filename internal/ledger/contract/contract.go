// Package contract implements the review registry contract: the ledger
// state that records which reviewers are verified and which reviews were
// attested.
//
// State lives in a tm-db database. Every accepted transaction increases the
// height by one and folds its hash into the app hash, so two replicas that
// applied the same transactions in the same order agree on both.
package contract

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/reviewattest/crypto"
	"github.com/tendermint/reviewattest/crypto/ed25519"
	"github.com/tendermint/reviewattest/internal/ledger"
	tmbytes "github.com/tendermint/reviewattest/libs/bytes"
	"github.com/tendermint/reviewattest/libs/log"
)

// State is the committed summary of the contract.
type State struct {
	Height  int64            `json:"height"`
	AppHash tmbytes.HexBytes `json:"app_hash"`
	Reviews int64            `json:"reviews"`
}

// Contract applies signed transactions to the registry. It is safe for
// concurrent use; transactions are applied one at a time.
type Contract struct {
	mtx    sync.Mutex
	db     dbm.DB
	writer crypto.PubKey
	state  State
	logger log.Logger
}

// New loads the contract state from db. Only transactions signed by writer
// are accepted.
func New(db dbm.DB, writer crypto.PubKey, logger log.Logger) (*Contract, error) {
	if writer == nil {
		return nil, fmt.Errorf("contract requires a writer key")
	}
	c := &Contract{
		db:     db,
		writer: writer,
		logger: logger.With("module", "contract"),
	}
	bz, err := db.Get(stateKey())
	if err != nil {
		return nil, fmt.Errorf("loading contract state: %w", err)
	}
	if len(bz) != 0 {
		if err := json.Unmarshal(bz, &c.state); err != nil {
			return nil, fmt.Errorf("decoding contract state: %w", err)
		}
	}
	return c, nil
}

// Status returns the committed state.
func (c *Contract) Status() ledger.Status {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return ledger.Status{
		Height:  c.state.Height,
		AppHash: c.state.AppHash,
		Writer:  c.writer.Address(),
		Reviews: c.state.Reviews,
	}
}

// DeliverTx validates and applies tx. A refused transaction is reported
// through the result code with a nil error; the error is reserved for
// failures of the underlying database.
func (c *Contract) DeliverTx(tx ledger.Tx) (ledger.TxResult, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	hash := tx.Hash()
	refuse := func(code uint32, format string, args ...interface{}) (ledger.TxResult, error) {
		msg := fmt.Sprintf(format, args...)
		c.logger.Debug("refused tx", "hash", hash, "type", tx.Body.Type, "code", code, "log", msg)
		return ledger.TxResult{Code: code, Log: msg, Hash: hash}, nil
	}

	if err := tx.ValidateBasic(); err != nil {
		return refuse(ledger.CodeInvalidTx, "%v", err)
	}
	if !c.writer.Equals(ed25519.PubKey(tx.PubKey)) {
		return refuse(ledger.CodeUnauthorized, "signer %v is not the registry writer", ed25519.PubKey(tx.PubKey).Address())
	}
	if !tx.VerifySignature() {
		return refuse(ledger.CodeBadSignature, "invalid signature")
	}
	seen, err := c.db.Has(txKey(hash))
	if err != nil {
		return ledger.TxResult{}, err
	}
	if seen {
		return refuse(ledger.CodeReplay, "transaction %v already applied", hash)
	}

	user, product := tx.Body.User, tx.Body.Product
	switch tx.Body.Type {
	case ledger.TxVerifyReviewer:
		var prev ledger.Receipt
		found, err := c.getJSON(verifiedKey(user, product), &prev)
		if err != nil {
			return ledger.TxResult{}, err
		} else if found {
			// Re-verification leaves the state untouched.
			return ledger.TxResult{Code: ledger.CodeOK, Log: "already verified", Hash: prev.TxID, Height: prev.Height}, nil
		}

		height := c.state.Height + 1
		batch := c.db.NewBatch()
		defer batch.Close()
		if err := setJSON(batch, verifiedKey(user, product), ledger.Receipt{TxID: hash, Height: height}); err != nil {
			return ledger.TxResult{}, err
		}
		return c.commit(batch, hash, c.state.Reviews)

	case ledger.TxSubmitReview:
		verified, err := c.db.Has(verifiedKey(user, product))
		if err != nil {
			return ledger.TxResult{}, err
		} else if !verified {
			return refuse(ledger.CodeNotVerified, "reviewer %q is not verified for product %q", user, product)
		}
		reviewed, err := c.db.Has(reviewKey(user, product))
		if err != nil {
			return ledger.TxResult{}, err
		} else if reviewed {
			return refuse(ledger.CodeAlreadyReviewed, "reviewer %q already reviewed product %q", user, product)
		}

		height := c.state.Height + 1
		att := ledger.Attestation{
			User:        user,
			Product:     product,
			ContentID:   tx.Body.ContentID,
			SubmittedAt: tx.Body.Time,
			TxID:        hash,
			Height:      height,
		}
		batch := c.db.NewBatch()
		defer batch.Close()
		if err := setJSON(batch, reviewKey(user, product), att); err != nil {
			return ledger.TxResult{}, err
		}
		if err := setJSON(batch, productReviewKey(product, height), att); err != nil {
			return ledger.TxResult{}, err
		}
		return c.commit(batch, hash, c.state.Reviews+1)
	}

	// unreachable after ValidateBasic
	return refuse(ledger.CodeInvalidTx, "unknown type %q", tx.Body.Type)
}

// commit records the transaction and the next state in batch, writes it,
// and only then advances the in-memory state.
func (c *Contract) commit(batch dbm.Batch, hash tmbytes.HexBytes, reviews int64) (ledger.TxResult, error) {
	next := State{
		Height:  c.state.Height + 1,
		AppHash: nextAppHash(c.state.AppHash, hash),
		Reviews: reviews,
	}
	res := ledger.TxResult{Code: ledger.CodeOK, Hash: hash, Height: next.Height}
	if err := setJSON(batch, txKey(hash), res); err != nil {
		return ledger.TxResult{}, err
	}
	if err := setJSON(batch, stateKey(), next); err != nil {
		return ledger.TxResult{}, err
	}
	if err := batch.WriteSync(); err != nil {
		return ledger.TxResult{}, err
	}
	c.state = next
	c.logger.Debug("applied tx", "hash", hash, "height", next.Height, "app_hash", next.AppHash)
	return res, nil
}

func nextAppHash(prev, txHash []byte) tmbytes.HexBytes {
	h := sha256.New()
	h.Write(prev)
	h.Write(txHash)
	return h.Sum(nil)
}

// IsReviewerVerified reports whether user was verified for product.
func (c *Contract) IsReviewerVerified(user, product string) (bool, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.db.Has(verifiedKey(user, product))
}

// HasReviewed reports whether a review by user of product was recorded.
func (c *Contract) HasReviewed(user, product string) (bool, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.db.Has(reviewKey(user, product))
}

// Reviews returns the reviews of product in the order they were recorded.
func (c *Contract) Reviews(product string) ([]ledger.Attestation, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	prefix := productReviewPrefix(product)
	it, err := c.db.Iterator(prefix, prefixEnd(prefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	reviews := []ledger.Attestation{}
	for ; it.Valid(); it.Next() {
		var att ledger.Attestation
		if err := json.Unmarshal(it.Value(), &att); err != nil {
			return nil, fmt.Errorf("decoding review at %X: %w", it.Key(), err)
		}
		reviews = append(reviews, att)
	}
	return reviews, it.Error()
}

func (c *Contract) getJSON(key []byte, v interface{}) (bool, error) {
	bz, err := c.db.Get(key)
	if err != nil {
		return false, err
	}
	if bz == nil {
		return false, nil
	}
	return true, json.Unmarshal(bz, v)
}

func setJSON(batch dbm.Batch, key []byte, v interface{}) error {
	bz, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return batch.Set(key, bz)
}
