// Package psql implements store.Store on PostgreSQL using the schema in
// schema.sql.
package psql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/adlio/schema"
	"github.com/lib/pq"

	"github.com/tendermint/reviewattest/internal/store"
	"github.com/tendermint/reviewattest/types"
)

const (
	DriverName = "postgres"

	// uniqueViolation is the SQLSTATE of a unique constraint violation.
	uniqueViolation = "23505"

	constraintDeliveryID   = "deliveries_delivery_id_key"
	constraintDeliveryCode = "deliveries_code_key"
	constraintDeliveryLine = "deliveries_order_product_key"
	constraintReviewPair   = "reviews_user_product_key"
	constraintReviewID     = "reviews_pkey"
)

//go:embed schema.sql
var schemaSQL string

var _ store.Store = (*Store)(nil)

// Store is a store.Store backed by a PostgreSQL database.
type Store struct {
	db *sql.DB
}

// NewStore opens a connection pool for connStr. It does not install the
// schema; call Migrate for that.
func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open(DriverName, connStr)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB returns the underlying Postgres connection used by the store.
// This is exported to support testing.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Migrate installs schema.sql if it has not been applied yet.
func (s *Store) Migrate() error {
	return schema.NewMigrator().Apply(s.db, Migrations())
}

// Migrations returns the schema migrations in application order.
func Migrations() []*schema.Migration {
	return []*schema.Migration{{
		ID:     "2024-05-01 review attestation schema",
		Script: schemaSQL,
	}}
}

// runInTransaction executes query in a fresh database transaction.
// If query reports an error, the transaction is rolled back and the
// error from query is reported to the caller.
// Otherwise, the result of committing the transaction is returned.
func runInTransaction(ctx context.Context, db *sql.DB, query func(*sql.Tx) error) error {
	dbtx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return store.Failure("begin transaction", err)
	}
	if err := query(dbtx); err != nil {
		_ = dbtx.Rollback() // report the initial error, not the rollback
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return store.Failure("commit", err)
	}
	return nil
}

// violatedConstraint returns the name of the unique constraint err
// violates, or "".
func violatedConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint
	}
	return ""
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

//-----------------------------------------------------------------------------
// orders

func (s *Store) SaveOrder(ctx context.Context, o types.Order) error {
	return runInTransaction(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO orders (order_id, user_id) VALUES ($1, $2)
  ON CONFLICT (order_id) DO UPDATE SET user_id = EXCLUDED.user_id;
`, o.ID, o.User); err != nil {
			return store.Failure("save order", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_products WHERE order_id = $1;`, o.ID); err != nil {
			return store.Failure("save order", err)
		}
		for i, p := range o.Products {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO order_products (order_id, product_id, position) VALUES ($1, $2, $3);
`, o.ID, p, i); err != nil {
				return store.Failure("save order", err)
			}
		}
		return nil
	})
}

func (s *Store) GetOrder(ctx context.Context, id string) (types.Order, error) {
	o := types.Order{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM orders WHERE order_id = $1;`, id).Scan(&o.User)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Order{}, fmt.Errorf("order %s: %w", id, types.ErrNotFound)
	} else if err != nil {
		return types.Order{}, store.Failure("get order", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id FROM order_products WHERE order_id = $1 ORDER BY position;`, id)
	if err != nil {
		return types.Order{}, store.Failure("get order", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return types.Order{}, store.Failure("get order", err)
		}
		o.Products = append(o.Products, p)
	}
	if err := rows.Err(); err != nil {
		return types.Order{}, store.Failure("get order", err)
	}
	return o, nil
}

//-----------------------------------------------------------------------------
// deliveries

const deliveryColumns = `delivery_id, user_id, product_id, order_id, code, status, consumed_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDelivery(row scanner) (types.DeliveryRecord, error) {
	var (
		r        types.DeliveryRecord
		code     sql.NullString
		status   string
		consumed sql.NullTime
	)
	if err := row.Scan(&r.DeliveryID, &r.User, &r.Product, &r.Order, &code, &status,
		&consumed, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return types.DeliveryRecord{}, err
	}
	r.Code = code.String
	r.Status = types.DeliveryStatus(status)
	if consumed.Valid {
		r.ConsumedAt = consumed.Time
	}
	return r, nil
}

func deliveryWriteError(op string, err error) error {
	switch violatedConstraint(err) {
	case constraintDeliveryCode:
		return store.ErrCodeTaken
	case constraintDeliveryID, constraintDeliveryLine:
		return fmt.Errorf("%s: %w", op, types.ErrAlreadyExists)
	default:
		return store.Failure(op, err)
	}
}

func (s *Store) CreateDelivery(ctx context.Context, r types.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries (`+deliveryColumns+`)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`, r.DeliveryID, r.User, r.Product, r.Order, nullString(r.Code), string(r.Status),
		nullTime(r.ConsumedAt), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return deliveryWriteError("create delivery", err)
	}
	return nil
}

func (s *Store) UpdateDelivery(ctx context.Context, r types.DeliveryRecord) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE deliveries SET code = $2, status = $3, consumed_at = $4, updated_at = $5
  WHERE delivery_id = $1 AND status <> $6;
`, r.DeliveryID, nullString(r.Code), string(r.Status), nullTime(r.ConsumedAt), r.UpdatedAt,
		string(types.DeliveryDelivered))
	if err != nil {
		return deliveryWriteError("update delivery", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Failure("update delivery", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.queryDelivery(ctx, `WHERE delivery_id = $1`, r.DeliveryID); err != nil {
		return err
	}
	return fmt.Errorf("delivery %s: %w", r.DeliveryID, types.ErrAlreadyDelivered)
}

func (s *Store) DeliveryByOrderProduct(ctx context.Context, order, product string) (types.DeliveryRecord, error) {
	return s.queryDelivery(ctx, `WHERE order_id = $1 AND product_id = $2`, order, product)
}

func (s *Store) DeliveriesByOrder(ctx context.Context, order string) ([]types.DeliveryRecord, error) {
	return s.queryDeliveries(ctx, `WHERE order_id = $1 ORDER BY product_id`, order)
}

func (s *Store) DeliveryByCode(ctx context.Context, code string) (types.DeliveryRecord, error) {
	return s.queryDelivery(ctx, `WHERE code = $1`, code)
}

func (s *Store) DeliveriesByUser(ctx context.Context, user string) ([]types.DeliveryRecord, error) {
	return s.queryDeliveries(ctx, `WHERE user_id = $1 ORDER BY created_at DESC, delivery_id DESC`, user)
}

func (s *Store) HasDelivered(ctx context.Context, user, product string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM deliveries WHERE user_id = $1 AND product_id = $2 AND status = $3);
`, user, product, string(types.DeliveryDelivered)).Scan(&ok)
	if err != nil {
		return false, store.Failure("has delivered", err)
	}
	return ok, nil
}

func (s *Store) ConsumeCode(ctx context.Context, code string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE deliveries SET consumed_at = $2, updated_at = $2
  WHERE code = $1 AND consumed_at IS NULL;
`, code, at)
	if err != nil {
		return store.Failure("consume code", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Failure("consume code", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.DeliveryByCode(ctx, code); err != nil {
		return err
	}
	return types.ErrCodeConsumed
}

func (s *Store) queryDelivery(ctx context.Context, where string, args ...interface{}) (types.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries `+where+`;`, args...)
	r, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DeliveryRecord{}, fmt.Errorf("delivery: %w", types.ErrNotFound)
	} else if err != nil {
		return types.DeliveryRecord{}, store.Failure("get delivery", err)
	}
	return r, nil
}

func (s *Store) queryDeliveries(ctx context.Context, where string, args ...interface{}) ([]types.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries `+where+`;`, args...)
	if err != nil {
		return nil, store.Failure("list deliveries", err)
	}
	defer rows.Close()

	var out []types.DeliveryRecord
	for rows.Next() {
		r, err := scanDelivery(rows)
		if err != nil {
			return nil, store.Failure("list deliveries", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Failure("list deliveries", err)
	}
	return out, nil
}

//-----------------------------------------------------------------------------
// reviews

const reviewColumns = `review_id, user_id, product_id, rating, comment, image_cid,
  attestation_state, blockchain_stored, content_id, ledger_tx, ledger_height,
  attestation_failure, created_at, updated_at`

func scanReview(row scanner) (types.ReviewRecord, error) {
	var (
		r     types.ReviewRecord
		state string
	)
	if err := row.Scan(&r.ID, &r.User, &r.Product, &r.Rating, &r.Comment, &r.ImageCID,
		&state, &r.Attestation.Stored, &r.Attestation.ContentID, &r.Attestation.LedgerTx,
		&r.Attestation.LedgerHeight, &r.Attestation.Failure, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return types.ReviewRecord{}, err
	}
	r.Attestation.State = types.AttestationState(state)
	return r, nil
}

func (s *Store) CreateReview(ctx context.Context, r types.ReviewRecord) error {
	a := r.Attestation
	_, err := s.db.ExecContext(ctx, `
INSERT INTO reviews (`+reviewColumns+`)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
`, r.ID, r.User, r.Product, r.Rating, r.Comment, r.ImageCID,
		string(a.State), a.Stored, a.ContentID, a.LedgerTx, a.LedgerHeight, a.Failure,
		r.CreatedAt, r.UpdatedAt)
	switch violatedConstraint(err) {
	case "":
	case constraintReviewPair:
		return types.ErrDuplicateReview
	case constraintReviewID:
		return fmt.Errorf("review %s: %w", r.ID, types.ErrAlreadyExists)
	}
	if err != nil {
		return store.Failure("create review", err)
	}
	return nil
}

func (s *Store) GetReview(ctx context.Context, id string) (types.ReviewRecord, error) {
	return s.queryReview(ctx, `WHERE review_id = $1`, id)
}

func (s *Store) ReviewByUserProduct(ctx context.Context, user, product string) (types.ReviewRecord, error) {
	return s.queryReview(ctx, `WHERE user_id = $1 AND product_id = $2`, user, product)
}

func (s *Store) ReviewsByProduct(ctx context.Context, product string) ([]types.ReviewRecord, error) {
	return s.queryReviews(ctx, `WHERE product_id = $1 ORDER BY created_at DESC, review_id DESC`, product)
}

func (s *Store) AllReviews(ctx context.Context) ([]types.ReviewRecord, error) {
	return s.queryReviews(ctx, `ORDER BY created_at DESC, review_id DESC`)
}

func (s *Store) UpdateAttestation(ctx context.Context, r types.ReviewRecord) error {
	a := r.Attestation
	res, err := s.db.ExecContext(ctx, `
UPDATE reviews SET attestation_state = $2, blockchain_stored = $3, content_id = $4,
  ledger_tx = $5, ledger_height = $6, attestation_failure = $7, image_cid = $8, updated_at = $9
  WHERE review_id = $1;
`, r.ID, string(a.State), a.Stored, a.ContentID, a.LedgerTx, a.LedgerHeight, a.Failure, r.ImageCID, r.UpdatedAt)
	if err != nil {
		return store.Failure("update attestation", err)
	}
	return expectOneRow(res, "update attestation")
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reviews WHERE review_id = $1 AND NOT blockchain_stored;`, id)
	if err != nil {
		return store.Failure("delete review", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Failure("delete review", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetReview(ctx, id); err != nil {
		return err
	}
	return types.ErrReviewImmutable
}

func (s *Store) ProductRatings(ctx context.Context, product string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rating FROM reviews WHERE product_id = $1;`, product)
	if err != nil {
		return nil, store.Failure("product ratings", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, store.Failure("product ratings", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Failure("product ratings", err)
	}
	return out, nil
}

func (s *Store) queryReview(ctx context.Context, where string, args ...interface{}) (types.ReviewRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews `+where+`;`, args...)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ReviewRecord{}, fmt.Errorf("review: %w", types.ErrNotFound)
	} else if err != nil {
		return types.ReviewRecord{}, store.Failure("get review", err)
	}
	return r, nil
}

func (s *Store) queryReviews(ctx context.Context, tail string, args ...interface{}) ([]types.ReviewRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reviewColumns+` FROM reviews `+tail+`;`, args...)
	if err != nil {
		return nil, store.Failure("list reviews", err)
	}
	defer rows.Close()

	var out []types.ReviewRecord
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, store.Failure("list reviews", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Failure("list reviews", err)
	}
	return out, nil
}

//-----------------------------------------------------------------------------
// ratings

func (s *Store) SaveRating(ctx context.Context, sum types.ProductRatingSummary) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO product_ratings (product_id, overall_rating, review_count, updated_at)
  VALUES ($1, $2, $3, $4)
  ON CONFLICT (product_id) DO UPDATE SET
    overall_rating = EXCLUDED.overall_rating,
    review_count = EXCLUDED.review_count,
    updated_at = EXCLUDED.updated_at;
`, sum.Product, sum.OverallRating, sum.ReviewCount, sum.UpdatedAt)
	if err != nil {
		return store.Failure("save rating", err)
	}
	return nil
}

func (s *Store) GetRating(ctx context.Context, product string) (types.ProductRatingSummary, error) {
	sum := types.ProductRatingSummary{Product: product}
	err := s.db.QueryRowContext(ctx, `
SELECT overall_rating, review_count, updated_at FROM product_ratings WHERE product_id = $1;
`, product).Scan(&sum.OverallRating, &sum.ReviewCount, &sum.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ProductRatingSummary{}, fmt.Errorf("rating of %s: %w", product, types.ErrNotFound)
	} else if err != nil {
		return types.ProductRatingSummary{}, store.Failure("get rating", err)
	}
	return sum, nil
}

func (s *Store) Products(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT product_id FROM reviews
UNION SELECT product_id FROM product_ratings
UNION SELECT product_id FROM order_products
UNION SELECT product_id FROM deliveries
ORDER BY product_id;
`)
	if err != nil {
		return nil, store.Failure("list products", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, store.Failure("list products", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Failure("list products", err)
	}
	return out, nil
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return store.Failure(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	return nil
}
