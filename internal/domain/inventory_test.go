package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

var testTenant = tenant.Context{TenantID: "tenant-1", FacilityID: "dc-1"}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMovementRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     MovementRequest
		wantErr error
	}{
		{
			name: "receipt",
			req:     MovementRequest{CorrelationID: "c1", ItemID: "i1", Quantity: dec("5"), ToLocationID: "l1"},
			wantErr: nil,
		},
		{
			name: "zero quantity",
			req:     MovementRequest{CorrelationID: "c1", ItemID: "i1", Quantity: decimal.Zero, ToLocationID: "l1"},
			wantErr: ErrInvalidQuantity,
		},
		{
			name: "no locations",
			req:     MovementRequest{CorrelationID: "c1", ItemID: "i1", Quantity: dec("1")},
			wantErr: ErrMissingLocation,
		},
		{
			name: "missing correlation",
			req:     MovementRequest{ItemID: "i1", Quantity: dec("1"), ToLocationID: "l1"},
			wantErr: ErrMissingCorrelationID,
		},
		{
			name: "state change across locations",
			req:     MovementRequest{CorrelationID: "c1", ItemID: "i1", Quantity: dec("1"), FromLocationID: "a", ToLocationID: "b", ToState: StateReserved},
			wantErr: ErrInvalidStateTransfer,
		},
		{
			name: "same location same state",
			req:     MovementRequest{CorrelationID: "c1", ItemID: "i1", Quantity: dec("1"), FromLocationID: "a", ToLocationID: "a"},
			wantErr: ErrInvalidStateTransfer,
		},
		{
			name: "reservation transfer",
			req:     MovementRequest{CorrelationID: "c1", ItemID: "i1", Quantity: dec("1"), FromLocationID: "a", ToLocationID: "a", ToState: StateReserved},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Normalized().Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMovementRequest_Kind(t *testing.T) {
	assert.Equal(t, MovementReceipt, MovementRequest{ToLocationID: "a"}.Normalized().Kind())
	assert.Equal(t, MovementIssue, MovementRequest{FromLocationID: "a"}.Normalized().Kind())
	assert.Equal(t, MovementMove, MovementRequest{FromLocationID: "a", ToLocationID: "b"}.Normalized().Kind())
	assert.Equal(t, MovementStateTransfer, MovementRequest{FromLocationID: "a", ToLocationID: "a", ToState: StateReserved}.Normalized().Kind())
}

func TestMovementRequest_IdempotencyKeyIgnoresActorAndReason(t *testing.T) {
	a := MovementRequest{CorrelationID: "c1", ItemID: "i1", Quantity: dec("2"), ToLocationID: "l1", Actor: "alice", Reason: "x"}.Normalized()
	b := a
	b.Actor, b.Reason = "bob", "y"
	assert.Equal(t, a.IdempotencyKey(), b.IdempotencyKey())

	c := a
	c.Quantity = dec("3")
	assert.NotEqual(t, a.IdempotencyKey(), c.IdempotencyKey())
}

func TestBalance_ApplyNeverGoesNegative(t *testing.T) {
	b := NewBalance(testTenant, BalanceKey{ItemID: "i1", LocationID: "l1", State: StateAvailable})
	require.NoError(t, b.Apply(dec("5")))

	err := b.Apply(dec("-6"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientInventory))
	assert.True(t, b.Quantity.Equal(dec("5")), "failed apply must leave the balance unchanged")

	require.NoError(t, b.Apply(dec("-5")))
	assert.True(t, b.Quantity.IsZero())
}

func TestCostLayers_ConsumeFIFO(t *testing.T) {
	layers := CostLayers{
		NewCostLayer(testTenant, "i1", "l1", dec("100"), dec("10"), "r1"),
		NewCostLayer(testTenant, "i1", "l1", dec("50"), dec("12"), "r2"),
	}

	consumed := layers.ConsumeFIFO(dec("120"))

	assert.True(t, consumed.Quantity.Equal(dec("120")))
	assert.True(t, consumed.ExtendedCost.Equal(dec("1240")), "got %s", consumed.ExtendedCost)
	assert.True(t, layers[0].Remaining.IsZero())
	assert.True(t, layers[1].Remaining.Equal(dec("30")))
	assert.Len(t, consumed.Touched, 2)
}

func TestItemValuation_CostingRules(t *testing.T) {
	item := &Item{ID: "i1", SKU: "SKU-1", StandardCost: dec("7"), ValuationMethod: ValuationFIFO}

	t.Run("receipt falls back to standard cost", func(t *testing.T) {
		v := NewItemValuation(testTenant, item)
		assert.True(t, v.ReceiptUnitCost(nil).Equal(dec("7")))
	})

	t.Run("override wins", func(t *testing.T) {
		v := NewItemValuation(testTenant, item)
		v.ApplyReceipt(dec("10"), dec("9"))
		override := dec("11")
		assert.True(t, v.ReceiptUnitCost(&override).Equal(dec("11")))
		assert.True(t, v.ReceiptUnitCost(nil).Equal(dec("9")))
	})

	t.Run("moving average uses pre-movement on hand", func(t *testing.T) {
		v := NewItemValuation(testTenant, item)
		v.ApplyReceipt(dec("100"), dec("10"))
		v.ApplyReceipt(dec("50"), dec("12"))
		assert.True(t, v.OnHandQty.Equal(dec("150")))
		assert.Equal(t, "10.67", v.AvgCost.StringFixed(2))
	})

	t.Run("fifo shortfall priced at average", func(t *testing.T) {
		v := NewItemValuation(testTenant, item)
		v.ApplyReceipt(dec("10"), dec("5"))
		unit, ext := v.IssueCost(dec("12"), FIFOConsumption{Quantity: dec("10"), ExtendedCost: dec("40")})
		assert.True(t, ext.Equal(dec("50")), "got %s", ext)
		assert.Equal(t, "4.17", unit.StringFixed(2))
	})

	t.Run("weighted average ignores layers", func(t *testing.T) {
		wa := *item
		wa.ValuationMethod = ValuationWeightedAverage
		v := NewItemValuation(testTenant, &wa)
		v.ApplyReceipt(dec("10"), dec("6"))
		_, ext := v.IssueCost(dec("2"), FIFOConsumption{Quantity: dec("2"), ExtendedCost: dec("100")})
		assert.True(t, ext.Equal(dec("12")))
	})
}

func TestAllocation_Correlations(t *testing.T) {
	bal := NewBalance(testTenant, BalanceKey{ItemID: "i1", LocationID: "l1", State: StateAvailable})
	a := NewAllocation(testTenant, OrderLine{OrderID: "o1", LineID: "ln1", ItemID: "i1"}, bal, dec("3"))
	b := NewAllocation(testTenant, OrderLine{OrderID: "o1", LineID: "ln1", ItemID: "i1"}, bal, dec("3"))

	assert.NotEqual(t, a.ReserveCorrelation(), b.ReserveCorrelation(), "reallocation must not replay an earlier reservation")
	assert.Contains(t, a.ReleaseCorrelation(), "dealloc:o1:")

	a.RecordPick(dec("5"))
	assert.Equal(t, AllocationPicked, a.Status)
	assert.True(t, a.Picked.Equal(dec("3")), "picked is capped at the allocated quantity")
}

func TestBackorder_Lifecycle(t *testing.T) {
	b := NewBackorder(testTenant, OrderLine{OrderID: "o1", LineID: "ln1", ItemID: "i1"}, dec("4"), ReasonInsufficientAvailable)
	events := b.PullDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "wms.allocation.backorder-created", events[0].EventType())

	require.NoError(t, b.Resolve("bob", "restocked"))
	assert.Equal(t, BackorderResolved, b.Status)
	assert.ErrorIs(t, b.Cancel("bob", ""), ErrBackorderClosed)
}

func TestPutawayCandidates(t *testing.T) {
	capacity := dec("10")
	bins := []*Location{
		{ID: "b2", Code: "B-02", Type: LocationTypeBin, Zone: "Z2"},
		{ID: "s1", Code: "STAGE", Type: LocationTypeStage},
		{ID: "b1", Code: "B-01", Type: LocationTypeBin, Zone: "Z1", CapacityUnits: &capacity},
		{ID: "b3", Code: "B-03", Type: LocationTypeBin, Zone: "Z2"},
	}

	got, err := PutawayCandidates(&Item{PreferredZone: "Z2"}, bins)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B-02", got[0].Code)

	got, err = PutawayCandidates(&Item{PreferredZone: "Z9"}, bins)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "B-01", got[0].Code)

	_, err = PutawayCandidates(&Item{}, bins[1:2])
	assert.ErrorIs(t, err, ErrNoBinLocations)

	assert.True(t, FillRatio(bins[2], dec("4"), dec("1")).Equal(dec("0.5")))
}
