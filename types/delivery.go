package types

import (
	"errors"
	"fmt"
	"time"
)

// DeliveryStatus is the lifecycle state of one order line.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryInProgress DeliveryStatus = "in_progress"
	DeliveryDelivered  DeliveryStatus = "delivered"
)

// ValidateBasic checks that s is a known status.
func (s DeliveryStatus) ValidateBasic() error {
	switch s {
	case DeliveryPending, DeliveryInProgress, DeliveryDelivered:
		return nil
	default:
		return fmt.Errorf("unknown delivery status %q", string(s))
	}
}

// DeliveryRecord ties one product of one order to the user who bought it.
// Records are never deleted. Code is empty until the line is delivered.
type DeliveryRecord struct {
	DeliveryID string         `json:"delivery_id"`
	User       string         `json:"user_id"`
	Product    string         `json:"product_id"`
	Order      string         `json:"order_id"`
	Code       string         `json:"code,omitempty"`
	Status     DeliveryStatus `json:"status"`
	ConsumedAt time.Time      `json:"consumed_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// IsDelivered reports whether the record is in the Delivered state.
func (r DeliveryRecord) IsDelivered() bool { return r.Status == DeliveryDelivered }

// Consumed reports whether a single-use code has been spent.
func (r DeliveryRecord) Consumed() bool { return !r.ConsumedAt.IsZero() }

// ValidateBasic performs stateless checks on the record.
func (r DeliveryRecord) ValidateBasic() error {
	if r.DeliveryID == "" {
		return errors.New("empty delivery id")
	}
	if r.User == "" || r.Product == "" || r.Order == "" {
		return errors.New("delivery record needs user, product and order")
	}
	if err := r.Status.ValidateBasic(); err != nil {
		return err
	}
	if r.IsDelivered() && r.Code == "" {
		return errors.New("delivered record without a code")
	}
	return nil
}

// Order is the slice of an order the registry needs: who bought which
// products. Orders are owned by the order service; they are recorded here
// only so that delivery events can be resolved to product lines.
type Order struct {
	ID       string   `json:"order_id"`
	User     string   `json:"user_id"`
	Products []string `json:"products"`
}

// ValidateBasic performs stateless checks on the order.
func (o Order) ValidateBasic() error {
	if o.ID == "" {
		return errors.New("empty order id")
	}
	if o.User == "" {
		return errors.New("order without user")
	}
	if len(o.Products) == 0 {
		return errors.New("order without products")
	}
	seen := make(map[string]struct{}, len(o.Products))
	for _, p := range o.Products {
		if p == "" {
			return errors.New("empty product id in order")
		}
		if _, ok := seen[p]; ok {
			return fmt.Errorf("product %s listed twice", p)
		}
		seen[p] = struct{}{}
	}
	return nil
}
