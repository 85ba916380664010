package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeliveryRecordValidateBasic(t *testing.T) {
	r := DeliveryRecord{DeliveryID: "d1", User: "u", Product: "p", Order: "o", Status: DeliveryPending}
	require.NoError(t, r.ValidateBasic())

	r.Status = DeliveryDelivered
	require.Error(t, r.ValidateBasic(), "delivered records carry a code")

	r.Code = "ABCDEF1234"
	require.NoError(t, r.ValidateBasic())

	r.Status = "lost"
	require.Error(t, r.ValidateBasic())
}

func TestOrderValidateBasic(t *testing.T) {
	require.NoError(t, Order{ID: "o1", User: "u1", Products: []string{"a", "b"}}.ValidateBasic())
	require.Error(t, Order{User: "u1", Products: []string{"a"}}.ValidateBasic())
	require.Error(t, Order{ID: "o1", Products: []string{"a"}}.ValidateBasic())
	require.Error(t, Order{ID: "o1", User: "u1"}.ValidateBasic())
	require.Error(t, Order{ID: "o1", User: "u1", Products: []string{"a", "a"}}.ValidateBasic())
	require.Error(t, Order{ID: "o1", User: "u1", Products: []string{""}}.ValidateBasic())
}
