package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
)

func TestApplyMovement_ReplayReturnsOriginalEntry(t *testing.T) {
	f := newFixture(t)

	first := f.receive(t, "rcpt-1", "item-1", "loc-a1", "10", "2")
	again := f.receive(t, "rcpt-1", "item-1", "loc-a1", "10", "2")

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, domain.MovementReceipt, first.Kind)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("10")))
}

func TestApplyMovement_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.ApplyMovement(ctx, tc, ApplyMovementCommand{ItemID: "item-1", Quantity: dec("1"), ToLocationID: "loc-a1"})
	assert.True(t, errors.HasCode(err, errors.CodeValidationError), "missing correlation id")

	_, err = f.ledger.ApplyMovement(ctx, tc, ApplyMovementCommand{CorrelationID: "c", ItemID: "item-1", Quantity: dec("0"), ToLocationID: "loc-a1"})
	assert.True(t, errors.HasCode(err, errors.CodeValidationError), "zero quantity")

	_, err = f.ledger.ApplyMovement(ctx, tc, ApplyMovementCommand{CorrelationID: "c", ItemID: "nope", Quantity: dec("1"), ToLocationID: "loc-a1"})
	assert.True(t, errors.HasCode(err, errors.CodeNotFound), "unknown item")
}

func TestApplyMovement_InsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "3", "2")

	_, err := f.ledger.ApplyMovement(context.Background(), tc, ApplyMovementCommand{
		CorrelationID:  "move-1",
		ItemID:         "item-1",
		Quantity:       dec("5"),
		FromLocationID: "loc-a1",
		ToLocationID:   "loc-a2",
	})
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientInventory))
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("3")))
	assert.True(t, f.balance(t, "item-1", "loc-a2", domain.StateAvailable).IsZero())
}

func TestApplyMovement_IssueConsumesFIFOLayers(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "5", "2")
	f.receive(t, "rcpt-2", "item-1", "loc-a1", "5", "4")

	issue, err := f.ledger.ApplyMovement(context.Background(), tc, ApplyMovementCommand{
		CorrelationID:  "issue-1",
		ItemID:         "item-1",
		Quantity:       dec("7"),
		FromLocationID: "loc-a1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MovementIssue, issue.Kind)
	assert.True(t, issue.ExtendedCost.Equal(dec("18")), "5x2 + 2x4, got %s", issue.ExtendedCost)
}

func TestReserveAndRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "10", "1")

	_, err := f.ledger.Reserve(ctx, tc, ReservationCommand{CorrelationID: "r1", ItemID: "item-1", LocationID: "loc-a1", Quantity: dec("4")})
	require.NoError(t, err)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateReserved).Equal(dec("4")))

	entry, err := f.ledger.ReleaseReservation(ctx, tc, ReservationCommand{CorrelationID: "rel-1", ItemID: "item-1", LocationID: "loc-a1", Quantity: dec("9")})
	require.NoError(t, err)
	assert.Nil(t, entry, "a short reservation is left alone")

	entry, err = f.ledger.ReleaseReservation(ctx, tc, ReservationCommand{CorrelationID: "rel-2", ItemID: "item-1", LocationID: "loc-a1", Quantity: dec("4")})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.MovementStateTransfer, entry.Kind)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("10")))
}

func TestBalancesAndLedgerQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "10", "1")
	f.receive(t, "rcpt-2", "item-1", "loc-a2", "1", "1")

	_, err := f.ledger.Balances(ctx, tc, BalanceQuery{})
	assert.True(t, errors.HasCode(err, errors.CodeValidationError))

	balances, err := f.ledger.Balances(ctx, tc, BalanceQuery{ItemID: "item-1", LocationID: "loc-a2"})
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Quantity.Equal(dec("1")))

	entries, err := f.ledger.LedgerEntries(ctx, tc, LedgerQuery{CorrelationID: "rcpt-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = f.ledger.LedgerEntries(ctx, tc, LedgerQuery{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
