// Package kv implements store.Store on a tm-db key/value database.
//
// tm-db has no conditional writes, so every mutation runs under the store's
// write lock: the uniqueness checks and the batch that follows them are one
// atomic step for all callers sharing the Store.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/reviewattest/internal/store"
	"github.com/tendermint/reviewattest/types"
)

var _ store.Store = (*Store)(nil)

// Store is a store.Store backed by a dbm.DB.
type Store struct {
	mtx sync.Mutex
	db  dbm.DB
}

// NewStore returns a Store using db. The Store owns db and closes it.
func NewStore(db dbm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

//-----------------------------------------------------------------------------
// orders

func (s *Store) SaveOrder(ctx context.Context, o types.Order) error {
	bz, err := json.Marshal(o)
	if err != nil {
		return store.Failure("encode order", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(orderKey(o.ID), bz); err != nil {
		return store.Failure("save order", err)
	}
	for _, p := range o.Products {
		if err := batch.Set(productKey(p), []byte{}); err != nil {
			return store.Failure("save order", err)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return store.Failure("save order", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (types.Order, error) {
	var o types.Order
	if err := s.getJSON(orderKey(id), &o); err != nil {
		return types.Order{}, err
	}
	return o, nil
}

//-----------------------------------------------------------------------------
// deliveries

func (s *Store) CreateDelivery(ctx context.Context, r types.DeliveryRecord) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if ok, err := s.db.Has(deliveryKey(r.DeliveryID)); err != nil {
		return store.Failure("create delivery", err)
	} else if ok {
		return fmt.Errorf("delivery %s: %w", r.DeliveryID, types.ErrAlreadyExists)
	}
	if ok, err := s.db.Has(deliveryLineKey(r.Order, r.Product)); err != nil {
		return store.Failure("create delivery", err)
	} else if ok {
		return fmt.Errorf("delivery for order %s product %s: %w", r.Order, r.Product, types.ErrAlreadyExists)
	}
	if err := s.checkCodeFree(r.Code, r.DeliveryID); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.putDelivery(batch, r, nil); err != nil {
		return err
	}
	if err := batch.Set(deliveryLineKey(r.Order, r.Product), []byte(r.DeliveryID)); err != nil {
		return store.Failure("create delivery", err)
	}
	if err := batch.Set(deliveryUserKey(r.User, r.CreatedAt.UnixNano(), r.DeliveryID), []byte{}); err != nil {
		return store.Failure("create delivery", err)
	}
	if err := batch.Set(productKey(r.Product), []byte{}); err != nil {
		return store.Failure("create delivery", err)
	}
	if err := batch.WriteSync(); err != nil {
		return store.Failure("create delivery", err)
	}
	return nil
}

func (s *Store) UpdateDelivery(ctx context.Context, r types.DeliveryRecord) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var prev types.DeliveryRecord
	if err := s.getJSON(deliveryKey(r.DeliveryID), &prev); err != nil {
		return err
	}
	if prev.IsDelivered() {
		return fmt.Errorf("delivery %s: %w", r.DeliveryID, types.ErrAlreadyDelivered)
	}
	if err := s.checkCodeFree(r.Code, r.DeliveryID); err != nil {
		return err
	}

	// identity and creation time never change
	r.User, r.Product, r.Order, r.CreatedAt = prev.User, prev.Product, prev.Order, prev.CreatedAt

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.putDelivery(batch, r, &prev); err != nil {
		return err
	}
	if err := batch.WriteSync(); err != nil {
		return store.Failure("update delivery", err)
	}
	return nil
}

// checkCodeFree returns store.ErrCodeTaken if code belongs to a record
// other than id. Must be called with the lock held.
func (s *Store) checkCodeFree(code, id string) error {
	if code == "" {
		return nil
	}
	owner, err := s.db.Get(deliveryCodeKey(code))
	if err != nil {
		return store.Failure("check delivery code", err)
	}
	if owner != nil && string(owner) != id {
		return store.ErrCodeTaken
	}
	return nil
}

// putDelivery writes r and maintains the code and Delivered indexes. prev
// is the stored version of r, if any.
func (s *Store) putDelivery(batch dbm.Batch, r types.DeliveryRecord, prev *types.DeliveryRecord) error {
	bz, err := json.Marshal(r)
	if err != nil {
		return store.Failure("encode delivery", err)
	}
	if err := batch.Set(deliveryKey(r.DeliveryID), bz); err != nil {
		return store.Failure("put delivery", err)
	}
	if prev != nil && prev.Code != "" && prev.Code != r.Code {
		if err := batch.Delete(deliveryCodeKey(prev.Code)); err != nil {
			return store.Failure("put delivery", err)
		}
	}
	if r.Code != "" {
		if err := batch.Set(deliveryCodeKey(r.Code), []byte(r.DeliveryID)); err != nil {
			return store.Failure("put delivery", err)
		}
	}
	upKey := deliveryUserProductKey(r.User, r.Product, r.DeliveryID)
	if r.IsDelivered() {
		err = batch.Set(upKey, []byte{})
	} else {
		err = batch.Delete(upKey)
	}
	if err != nil {
		return store.Failure("put delivery", err)
	}
	return nil
}

func (s *Store) DeliveryByOrderProduct(ctx context.Context, order, product string) (types.DeliveryRecord, error) {
	id, err := s.db.Get(deliveryLineKey(order, product))
	if err != nil {
		return types.DeliveryRecord{}, store.Failure("get delivery", err)
	}
	if id == nil {
		return types.DeliveryRecord{}, fmt.Errorf("delivery for order %s product %s: %w", order, product, types.ErrNotFound)
	}
	return s.getDelivery(string(id))
}

func (s *Store) DeliveriesByOrder(ctx context.Context, order string) ([]types.DeliveryRecord, error) {
	var ids []string
	err := s.scan(deliveryLinePrefix(order), false, func(key, value []byte) error {
		ids = append(ids, string(value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.getDeliveries(ids)
}

func (s *Store) DeliveryByCode(ctx context.Context, code string) (types.DeliveryRecord, error) {
	id, err := s.db.Get(deliveryCodeKey(code))
	if err != nil {
		return types.DeliveryRecord{}, store.Failure("get delivery", err)
	}
	if id == nil {
		return types.DeliveryRecord{}, fmt.Errorf("delivery code: %w", types.ErrNotFound)
	}
	return s.getDelivery(string(id))
}

func (s *Store) DeliveriesByUser(ctx context.Context, user string) ([]types.DeliveryRecord, error) {
	var ids []string
	err := s.scan(deliveryUserPrefix(user), true, func(key, value []byte) error {
		id, err := lastString(key)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.getDeliveries(ids)
}

func (s *Store) HasDelivered(ctx context.Context, user, product string) (bool, error) {
	found := false
	err := s.scan(deliveryUserProductPrefix(user, product), false, func(key, value []byte) error {
		found = true
		return errStopScan
	})
	return found, err
}

func (s *Store) ConsumeCode(ctx context.Context, code string, at time.Time) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	id, err := s.db.Get(deliveryCodeKey(code))
	if err != nil {
		return store.Failure("consume code", err)
	}
	if id == nil {
		return fmt.Errorf("delivery code: %w", types.ErrNotFound)
	}
	r, err := s.getDelivery(string(id))
	if err != nil {
		return err
	}
	if r.Consumed() {
		return types.ErrCodeConsumed
	}
	r.ConsumedAt = at
	r.UpdatedAt = at

	bz, err := json.Marshal(r)
	if err != nil {
		return store.Failure("encode delivery", err)
	}
	if err := s.db.SetSync(deliveryKey(r.DeliveryID), bz); err != nil {
		return store.Failure("consume code", err)
	}
	return nil
}

func (s *Store) getDelivery(id string) (types.DeliveryRecord, error) {
	var r types.DeliveryRecord
	if err := s.getJSON(deliveryKey(id), &r); err != nil {
		return types.DeliveryRecord{}, err
	}
	return r, nil
}

func (s *Store) getDeliveries(ids []string) ([]types.DeliveryRecord, error) {
	out := make([]types.DeliveryRecord, 0, len(ids))
	for _, id := range ids {
		r, err := s.getDelivery(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

//-----------------------------------------------------------------------------
// reviews

func (s *Store) CreateReview(ctx context.Context, r types.ReviewRecord) error {
	bz, err := json.Marshal(r)
	if err != nil {
		return store.Failure("encode review", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if ok, err := s.db.Has(reviewUserProductKey(r.User, r.Product)); err != nil {
		return store.Failure("create review", err)
	} else if ok {
		return types.ErrDuplicateReview
	}
	if ok, err := s.db.Has(reviewKey(r.ID)); err != nil {
		return store.Failure("create review", err)
	} else if ok {
		return fmt.Errorf("review %s: %w", r.ID, types.ErrAlreadyExists)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, kv := range [][2][]byte{
		{reviewKey(r.ID), bz},
		{reviewUserProductKey(r.User, r.Product), []byte(r.ID)},
		{reviewProductKey(r.Product, r.CreatedAt.UnixNano(), r.ID), []byte{}},
		{productKey(r.Product), []byte{}},
	} {
		if err := batch.Set(kv[0], kv[1]); err != nil {
			return store.Failure("create review", err)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return store.Failure("create review", err)
	}
	return nil
}

func (s *Store) GetReview(ctx context.Context, id string) (types.ReviewRecord, error) {
	var r types.ReviewRecord
	if err := s.getJSON(reviewKey(id), &r); err != nil {
		return types.ReviewRecord{}, err
	}
	return r, nil
}

func (s *Store) ReviewByUserProduct(ctx context.Context, user, product string) (types.ReviewRecord, error) {
	id, err := s.db.Get(reviewUserProductKey(user, product))
	if err != nil {
		return types.ReviewRecord{}, store.Failure("get review", err)
	}
	if id == nil {
		return types.ReviewRecord{}, fmt.Errorf("review by %s of %s: %w", user, product, types.ErrNotFound)
	}
	return s.GetReview(ctx, string(id))
}

func (s *Store) ReviewsByProduct(ctx context.Context, product string) ([]types.ReviewRecord, error) {
	var ids []string
	err := s.scan(reviewProductPrefix(product), true, func(key, value []byte) error {
		id, err := lastString(key)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// reads happen after the iterator is closed; memdb iterators hold the
	// db's read lock until then
	out := make([]types.ReviewRecord, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetReview(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) AllReviews(ctx context.Context) ([]types.ReviewRecord, error) {
	var out []types.ReviewRecord
	err := s.scan(reviewPrefix(), false, func(key, value []byte) error {
		var r types.ReviewRecord
		if err := json.Unmarshal(value, &r); err != nil {
			return store.Failure("decode review", err)
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateAttestation(ctx context.Context, upd types.ReviewRecord) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	r, err := s.GetReview(ctx, upd.ID)
	if err != nil {
		return err
	}
	r.Attestation = upd.Attestation
	r.ImageCID = upd.ImageCID
	r.UpdatedAt = upd.UpdatedAt
	bz, err := json.Marshal(r)
	if err != nil {
		return store.Failure("encode review", err)
	}
	if err := s.db.SetSync(reviewKey(r.ID), bz); err != nil {
		return store.Failure("update attestation", err)
	}
	return nil
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	r, err := s.GetReview(ctx, id)
	if err != nil {
		return err
	}
	if r.Attestation.Stored {
		return types.ErrReviewImmutable
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, key := range [][]byte{
		reviewKey(r.ID),
		reviewUserProductKey(r.User, r.Product),
		reviewProductKey(r.Product, r.CreatedAt.UnixNano(), r.ID),
	} {
		if err := batch.Delete(key); err != nil {
			return store.Failure("delete review", err)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return store.Failure("delete review", err)
	}
	return nil
}

func (s *Store) ProductRatings(ctx context.Context, product string) ([]int, error) {
	reviews, err := s.ReviewsByProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(reviews))
	for i, r := range reviews {
		out[i] = r.Rating
	}
	return out, nil
}

//-----------------------------------------------------------------------------
// ratings

func (s *Store) SaveRating(ctx context.Context, sum types.ProductRatingSummary) error {
	bz, err := json.Marshal(sum)
	if err != nil {
		return store.Failure("encode rating", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(ratingKey(sum.Product), bz); err != nil {
		return store.Failure("save rating", err)
	}
	if err := batch.Set(productKey(sum.Product), []byte{}); err != nil {
		return store.Failure("save rating", err)
	}
	if err := batch.WriteSync(); err != nil {
		return store.Failure("save rating", err)
	}
	return nil
}

func (s *Store) GetRating(ctx context.Context, product string) (types.ProductRatingSummary, error) {
	var sum types.ProductRatingSummary
	if err := s.getJSON(ratingKey(product), &sum); err != nil {
		return types.ProductRatingSummary{}, err
	}
	return sum, nil
}

func (s *Store) Products(ctx context.Context) ([]string, error) {
	var out []string
	err := s.scan(productPrefix(), false, func(key, value []byte) error {
		p, err := parseProductKey(key)
		if err != nil {
			return store.Failure("scan products", err)
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

//-----------------------------------------------------------------------------
// helpers

var errStopScan = errors.New("stop scan")

func (s *Store) getJSON(key []byte, v interface{}) error {
	bz, err := s.db.Get(key)
	if err != nil {
		return store.Failure("get", err)
	}
	if bz == nil {
		return types.ErrNotFound
	}
	if err := json.Unmarshal(bz, v); err != nil {
		return store.Failure("decode", err)
	}
	return nil
}

// scan calls fn for every key with the given prefix, in key order or in
// reverse. fn may return errStopScan to end the scan early.
func (s *Store) scan(prefix []byte, reverse bool, fn func(key, value []byte) error) error {
	var (
		itr dbm.Iterator
		err error
	)
	if reverse {
		itr, err = s.db.ReverseIterator(prefix, prefixEnd(prefix))
	} else {
		itr, err = s.db.Iterator(prefix, prefixEnd(prefix))
	}
	if err != nil {
		return store.Failure("iterate", err)
	}
	defer itr.Close()

	for ; itr.Valid(); itr.Next() {
		if err := fn(itr.Key(), itr.Value()); err != nil {
			if errors.Is(err, errStopScan) {
				return nil
			}
			return err
		}
	}
	if err := itr.Error(); err != nil {
		return store.Failure("iterate", err)
	}
	return nil
}
