// Package local implements contentstore.Store on a tm-db database. It is the
// default backend for single node deployments and tests.
package local

import (
	"context"
	"fmt"

	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/reviewattest/internal/contentstore"
	"github.com/tendermint/reviewattest/types"
)

var _ contentstore.Store = (*Store)(nil)

type Store struct {
	db dbm.DB
}

// NewStore returns a Store using db. The caller owns db.
func NewStore(db dbm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrContentStoreUnavailable, err)
	}
	if err := contentstore.CheckSize(data); err != nil {
		return "", err
	}
	id, err := contentstore.ComputeCID(data)
	if err != nil {
		return "", err
	}
	// identical content already stored under the same key
	if err := s.db.SetSync([]byte(id), data); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrContentStoreUnavailable, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrContentStoreUnavailable, err)
	}
	if err := contentstore.ValidateID(id); err != nil {
		return nil, err
	}
	data, err := s.db.Get([]byte(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrContentStoreUnavailable, err)
	}
	if data == nil {
		return nil, fmt.Errorf("content %s: %w", id, types.ErrNotFound)
	}
	if err := contentstore.Verify(id, data); err != nil {
		return nil, err
	}
	return data, nil
}
