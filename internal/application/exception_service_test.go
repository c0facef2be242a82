package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
)

func TestBackorders_ResolveAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.documents.PutOrder(tc, "order-1",
		domain.OrderLine{OrderID: "order-1", LineID: "1", ItemID: "item-1", Quantity: dec("2")},
		domain.OrderLine{OrderID: "order-1", LineID: "2", ItemID: "item-2", Quantity: dec("2")})

	result, err := f.allocation.AllocateOrder(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	require.Len(t, result.Shortfalls, 2)

	open, err := f.exceptions.ListBackorders(ctx, tc, domain.BackorderFilter{Status: domain.BackorderOpen})
	require.NoError(t, err)
	require.Len(t, open, 2)

	resolved, err := f.exceptions.ResolveBackorder(ctx, tc, CloseBackorderCommand{BackorderID: open[0].ID, Actor: "buyer", Note: "po placed"})
	require.NoError(t, err)
	assert.Equal(t, domain.BackorderResolved, resolved.Status)

	cancelled, err := f.exceptions.CancelBackorder(ctx, tc, CloseBackorderCommand{BackorderID: open[1].ID, Actor: "buyer"})
	require.NoError(t, err)
	assert.Equal(t, domain.BackorderCancelled, cancelled.Status)

	_, err = f.exceptions.CancelBackorder(ctx, tc, CloseBackorderCommand{BackorderID: open[1].ID, Actor: "buyer"})
	assert.True(t, errors.HasCode(err, errors.CodeConflict))
	_, err = f.exceptions.ResolveBackorder(ctx, tc, CloseBackorderCommand{BackorderID: "missing", Actor: "buyer"})
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestReallocation_SupersedesOpenBackorders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.documents.PutOrder(tc, "order-1", domain.OrderLine{OrderID: "order-1", LineID: "1", ItemID: "item-1", Quantity: dec("2")})

	_, err := f.allocation.AllocateOrder(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "5", "1")
	result, err := f.allocation.AllocateOrder(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	assert.Empty(t, result.Shortfalls)

	open, err := f.exceptions.ListBackorders(ctx, tc, domain.BackorderFilter{OrderID: "order-1", Status: domain.BackorderOpen})
	require.NoError(t, err)
	assert.Empty(t, open)

	cancelled, err := f.exceptions.ListBackorders(ctx, tc, domain.BackorderFilter{OrderID: "order-1", Status: domain.BackorderCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1, "superseded backorders are kept")
	assert.True(t, cancelled[0].Quantity.Equal(dec("2")))
}

func TestListExceptions_ClampsLimit(t *testing.T) {
	f := newFixture(t)
	out, err := f.exceptions.ListExceptions(context.Background(), tc, domain.ExceptionFilter{Limit: 10_000})
	require.NoError(t, err)
	assert.Empty(t, out)
}
