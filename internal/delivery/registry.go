// Package delivery issues and checks the delivery codes that prove a user
// received a product. A code is issued when an order line is delivered and
// is the only thing a reviewer needs to present to show entitlement.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/internal/store"
	"github.com/tendermint/reviewattest/libs/log"
	tmrand "github.com/tendermint/reviewattest/libs/rand"
	"github.com/tendermint/reviewattest/types"
)

// Store is the part of the durable store the registry uses.
type Store interface {
	store.OrderStore
	store.DeliveryStore
}

// Registry tracks delivery records and their codes.
type Registry struct {
	logger  log.Logger
	store   Store
	config  *config.DeliveryConfig
	metrics *Metrics

	newCode func() (string, error)
	now     func() time.Time
}

// RegistryOption sets an optional parameter on the Registry.
type RegistryOption func(*Registry)

// WithMetrics sets the registry's metrics collector.
func WithMetrics(metrics *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = metrics }
}

// WithCodeSource replaces the random code generator.
func WithCodeSource(gen func() (string, error)) RegistryOption {
	return func(r *Registry) { r.newCode = gen }
}

// WithClock replaces the wall clock used for record timestamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns a registry backed by s.
func NewRegistry(s Store, cfg *config.DeliveryConfig, logger log.Logger, options ...RegistryOption) *Registry {
	r := &Registry{
		logger:  logger.With("module", "delivery"),
		store:   s,
		config:  cfg,
		metrics: NopMetrics(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	r.newCode = func() (string, error) {
		return tmrand.Code(tmrand.CodeAlphabet, r.config.CodeLength)
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *Registry) singleUse() bool {
	return r.config.CodePolicy == config.CodePolicySingleUse
}

// RecordOrder stores the order and opens a Pending record for each of its
// product lines. Recording the same order again is harmless.
func (r *Registry) RecordOrder(ctx context.Context, o types.Order) error {
	if err := o.ValidateBasic(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidOrder, err)
	}
	if err := r.store.SaveOrder(ctx, o); err != nil {
		return err
	}

	now := r.now()
	for _, product := range o.Products {
		rec := types.DeliveryRecord{
			DeliveryID: uuid.NewString(),
			User:       o.User,
			Product:    product,
			Order:      o.ID,
			Status:     types.DeliveryPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		err := r.store.CreateDelivery(ctx, rec)
		if err != nil && !errors.Is(err, types.ErrAlreadyExists) {
			return fmt.Errorf("recording line %s of order %s: %w", product, o.ID, err)
		}
	}
	r.logger.Debug("recorded order", "order", o.ID, "lines", len(o.Products))
	return nil
}

// MarkDelivered moves every line of the order to Delivered, issuing a code
// for lines that have none, and returns the resulting records in the order
// of the order's products. It fails with types.ErrAlreadyDelivered if any
// line was delivered before.
func (r *Registry) MarkDelivered(ctx context.Context, orderID string) ([]types.DeliveryRecord, error) {
	order, err := r.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}

	existing, err := r.store.DeliveriesByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, rec := range existing {
		if rec.IsDelivered() {
			return nil, fmt.Errorf("order %s: %w", orderID, types.ErrAlreadyDelivered)
		}
	}

	records := make([]types.DeliveryRecord, len(order.Products))
	g, gctx := errgroup.WithContext(ctx)
	for i, product := range order.Products {
		i, product := i, product
		g.Go(func() error {
			rec, err := r.deliverLine(gctx, order, product)
			if err != nil {
				return fmt.Errorf("delivering %s of order %s: %w", product, orderID, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Info("order delivered", "order", orderID, "user", order.User, "lines", len(records))
	return records, nil
}

func (r *Registry) deliverLine(ctx context.Context, order types.Order, product string) (types.DeliveryRecord, error) {
	rec, err := r.store.DeliveryByOrderProduct(ctx, order.ID, product)
	switch {
	case err == nil:
		return r.promote(ctx, rec)
	case !errors.Is(err, types.ErrNotFound):
		return types.DeliveryRecord{}, err
	}

	now := r.now()
	rec = types.DeliveryRecord{
		DeliveryID: uuid.NewString(),
		User:       order.User,
		Product:    product,
		Order:      order.ID,
		Status:     types.DeliveryDelivered,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = r.withFreshCode(func(code string) error {
		rec.Code = code
		return r.store.CreateDelivery(ctx, rec)
	})
	if errors.Is(err, types.ErrAlreadyExists) {
		// a concurrent event created the line first
		winner, err := r.store.DeliveryByOrderProduct(ctx, order.ID, product)
		if err != nil {
			return types.DeliveryRecord{}, err
		}
		return r.promote(ctx, winner)
	}
	if err != nil {
		return types.DeliveryRecord{}, err
	}
	r.metrics.DeliveredLines.Add(1)
	return rec, nil
}

// promote moves an existing record to Delivered, keeping its code if it
// already has one. When a concurrent event delivered the line first, the
// winner's record is returned.
func (r *Registry) promote(ctx context.Context, rec types.DeliveryRecord) (types.DeliveryRecord, error) {
	if rec.IsDelivered() {
		return rec, nil
	}
	rec.Status = types.DeliveryDelivered
	rec.UpdatedAt = r.now()

	var err error
	if rec.Code != "" {
		err = r.store.UpdateDelivery(ctx, rec)
	} else {
		err = r.withFreshCode(func(code string) error {
			rec.Code = code
			return r.store.UpdateDelivery(ctx, rec)
		})
	}
	if errors.Is(err, types.ErrAlreadyDelivered) {
		return r.store.DeliveryByOrderProduct(ctx, rec.Order, rec.Product)
	}
	if err != nil {
		return types.DeliveryRecord{}, err
	}
	r.metrics.DeliveredLines.Add(1)
	return rec, nil
}

// withFreshCode calls write with newly drawn codes until the store accepts
// one or the attempts run out. Errors other than store.ErrCodeTaken are
// returned as is.
func (r *Registry) withFreshCode(write func(code string) error) error {
	attempts := r.config.MaxCodeAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return fmt.Errorf("generating delivery code: %w", err)
		}
		err = write(code)
		if err == nil {
			r.metrics.CodesIssued.Add(1)
			return nil
		}
		if !errors.Is(err, store.ErrCodeTaken) {
			return err
		}
		r.metrics.CodeCollisions.Add(1)
		r.logger.Info("delivery code collision", "attempt", attempt, "max", attempts)
	}
	return fmt.Errorf("%w: no unused delivery code after %d attempts", types.ErrStorageFailure, attempts)
}

// VerifyCode reports whether code was issued for a delivered (user,
// product) line. Under the single-use policy a spent code does not verify.
// It never consumes the code.
func (r *Registry) VerifyCode(ctx context.Context, user, product, code string) (bool, error) {
	ok, err := r.verify(ctx, user, product, code)
	if err != nil {
		return false, err
	}
	result := "invalid"
	if ok {
		result = "valid"
	}
	r.metrics.CodeVerifications.With("result", result).Add(1)
	return ok, nil
}

func (r *Registry) verify(ctx context.Context, user, product, code string) (bool, error) {
	if code == "" || user == "" || product == "" {
		return false, nil
	}
	rec, err := r.store.DeliveryByCode(ctx, code)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if rec.User != user || rec.Product != product || rec.Code != code || !rec.IsDelivered() {
		return false, nil
	}
	if r.singleUse() && rec.Consumed() {
		return false, nil
	}
	return true, nil
}

// ConsumeCode spends a single-use code. Under the reusable policy it does
// nothing. It returns types.ErrNotEntitled if the code does not belong to
// the (user, product) line and types.ErrCodeConsumed if it was spent
// already.
func (r *Registry) ConsumeCode(ctx context.Context, user, product, code string) error {
	if !r.singleUse() {
		return nil
	}
	rec, err := r.store.DeliveryByCode(ctx, code)
	if errors.Is(err, types.ErrNotFound) {
		return types.ErrNotEntitled
	} else if err != nil {
		return err
	}
	if rec.User != user || rec.Product != product || !rec.IsDelivered() {
		return types.ErrNotEntitled
	}
	if err := r.store.ConsumeCode(ctx, code, r.now()); err != nil {
		return err
	}
	r.metrics.CodesConsumed.Add(1)
	return nil
}

// HasDelivered reports whether the user has a delivered line for product.
// Under the single-use policy the line's code must also be unspent: a
// delivery entitles to one review whether or not the code is presented.
func (r *Registry) HasDelivered(ctx context.Context, user, product string) (bool, error) {
	if !r.singleUse() {
		return r.store.HasDelivered(ctx, user, product)
	}
	_, err := r.unspentLine(ctx, user, product)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ConsumeDelivered spends the code of one delivered line of the (user,
// product) pair, for reviews submitted without a code. Under the reusable
// policy it does nothing. It returns types.ErrNotEntitled if no line with
// an unspent code is left.
func (r *Registry) ConsumeDelivered(ctx context.Context, user, product string) error {
	if !r.singleUse() {
		return nil
	}
	rec, err := r.unspentLine(ctx, user, product)
	if errors.Is(err, types.ErrNotFound) {
		return types.ErrNotEntitled
	} else if err != nil {
		return err
	}
	return r.ConsumeCode(ctx, user, product, rec.Code)
}

// unspentLine returns the oldest delivered line of the pair whose code was
// not consumed.
func (r *Registry) unspentLine(ctx context.Context, user, product string) (types.DeliveryRecord, error) {
	records, err := r.store.DeliveriesByUser(ctx, user)
	if err != nil {
		return types.DeliveryRecord{}, err
	}
	// records are newest first
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Product == product && rec.IsDelivered() && rec.Code != "" && !rec.Consumed() {
			return rec, nil
		}
	}
	return types.DeliveryRecord{}, fmt.Errorf("unspent delivery of %s to %s: %w", product, user, types.ErrNotFound)
}

// ListForUser returns the user's delivery records, newest first.
func (r *Registry) ListForUser(ctx context.Context, user string) ([]types.DeliveryRecord, error) {
	return r.store.DeliveriesByUser(ctx, user)
}
