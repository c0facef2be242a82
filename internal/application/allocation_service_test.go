package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/internal/domain"
)

func TestAllocateOrder_LargestBinFirstAndBackorder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "3", "1")
	f.receive(t, "rcpt-2", "item-1", "loc-a2", "5", "1")
	f.receive(t, "rcpt-3", "item-1", "loc-stage", "100", "1")
	f.documents.PutOrder(tc, "order-1", domain.OrderLine{OrderID: "order-1", LineID: "1", ItemID: "item-1", Quantity: dec("10")})

	result, err := f.allocation.AllocateOrder(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	assert.Equal(t, 2, result.AllocationsCreated)
	require.Len(t, result.Shortfalls, 1)
	assert.True(t, result.Shortfalls[0].Missing.Equal(dec("2")), "staging stock is not pickable")

	allocations, err := f.allocation.Allocations(ctx, tc, "order-1")
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, "loc-a2", allocations[0].LocationID)
	assert.True(t, f.balance(t, "item-1", "loc-a2", domain.StateReserved).Equal(dec("5")))

	backorders, err := f.exceptions.ListBackorders(ctx, tc, domain.BackorderFilter{OrderID: "order-1"})
	require.NoError(t, err)
	require.Len(t, backorders, 1)
	assert.Equal(t, domain.BackorderOpen, backorders[0].Status)
}

func TestAllocateOrder_ReallocationReleasesPreviousReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "10", "1")
	f.documents.PutOrder(tc, "order-1", domain.OrderLine{OrderID: "order-1", LineID: "1", ItemID: "item-1", Quantity: dec("4")})

	_, err := f.allocation.AllocateOrder(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	result, err := f.allocation.AllocateOrder(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Released)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateReserved).Equal(dec("4")))
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("6")))

	released, err := f.allocation.DeallocateOrder(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("10")))
}

func TestAllocateOrder_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.allocation.AllocateOrder(context.Background(), tc, "missing", "planner")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
