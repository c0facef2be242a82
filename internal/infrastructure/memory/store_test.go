package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/outbox"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

var (
	tc1 = tenant.Context{TenantID: "t1", FacilityID: "f1"}
	tc2 = tenant.Context{TenantID: "t2", FacilityID: "f1"}
)

func availableKey(item, loc string) domain.BalanceKey {
	return domain.BalanceKey{ItemID: item, LocationID: loc, State: domain.StateAvailable}
}

func putBalance(t *testing.T, s *Store, tc tenant.Context, key domain.BalanceKey, qty int64) {
	t.Helper()
	require.NoError(t, s.WithinTransaction(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		b := domain.NewBalance(tc, key)
		b.Quantity = decimal.NewFromInt(qty)
		return repos.Balances().Save(ctx, b)
	}))
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	putBalance(t, s, tc1, availableKey("i1", "l1"), 5)

	boom := errors.New("boom")
	err := s.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		b, err := repos.Balances().Get(ctx, tc1, availableKey("i1", "l1"))
		require.NoError(t, err)
		b.Quantity = decimal.NewFromInt(99)
		require.NoError(t, repos.Balances().Save(ctx, b))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_ = s.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		b, err := repos.Balances().Get(ctx, tc1, availableKey("i1", "l1"))
		require.NoError(t, err)
		assert.True(t, b.Quantity.Equal(decimal.NewFromInt(5)))
		return nil
	})
}

func TestStore_GetReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	task := domain.NewTask(tc1, domain.TaskPutaway, domain.SourceManual, "m1", domain.TaskContext{},
		[]domain.TaskStep{domain.NewStep(10, "Confirm", domain.ConfirmExpectation{})})

	_ = s.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		require.NoError(t, repos.Tasks().Insert(ctx, task))
		got, err := repos.Tasks().Get(ctx, tc1, task.ID)
		require.NoError(t, err)
		got.Steps[0].Prompt = "changed"
		again, err := repos.Tasks().Get(ctx, tc1, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "Confirm", again.Steps[0].Prompt)
		assert.Nil(t, again.DomainEvents)

		_, err = repos.Tasks().Get(ctx, tc2, task.ID)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
		return nil
	})
}

func TestLedger_DuplicateIdempotencyKey(t *testing.T) {
	s := NewStore()
	req := domain.MovementRequest{CorrelationID: "c1", ItemID: "i1", ToLocationID: "l1", Quantity: decimal.NewFromInt(1)}.Normalized()

	_ = s.WithinTransaction(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		require.NoError(t, repos.Ledger().Insert(ctx, domain.NewLedgerEntry(tc1, req)))
		assert.ErrorIs(t, repos.Ledger().Insert(ctx, domain.NewLedgerEntry(tc1, req)), domain.ErrDuplicateMovement)
		require.NoError(t, repos.Ledger().Insert(ctx, domain.NewLedgerEntry(tc2, req)), "keys are tenant scoped")

		found, err := repos.Ledger().FindByIdempotencyKey(ctx, tc1, req.IdempotencyKey())
		require.NoError(t, err)
		require.NotNil(t, found)
		missing, err := repos.Ledger().FindByIdempotencyKey(ctx, tc1, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	})
}

func TestBalances_LockAvailableForItem(t *testing.T) {
	s := NewStore()
	putBalance(t, s, tc1, availableKey("i1", "a"), 3)
	putBalance(t, s, tc1, availableKey("i1", "b"), 7)
	putBalance(t, s, tc1, availableKey("i1", "c"), 9)
	putBalance(t, s, tc1, availableKey("i1", "z"), 0)
	putBalance(t, s, tc1, domain.BalanceKey{ItemID: "i1", LocationID: "a", State: domain.StateHold}, 50)

	_ = s.WithinTransaction(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		rows, err := repos.Balances().LockAvailableForItem(ctx, tc1, "i1", []string{"a", "b", "z"})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "b", rows[0].LocationID)
		assert.Equal(t, "a", rows[1].LocationID)

		total, err := repos.Balances().SumAtLocation(ctx, tc1, "a")
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.NewFromInt(53)))
		return nil
	})
}

func TestCostLayers_FindOpenOldestFirst(t *testing.T) {
	s := NewStore()
	newer := domain.NewCostLayer(tc1, "i1", "l1", decimal.NewFromInt(2), decimal.NewFromInt(5), "r2")
	older := domain.NewCostLayer(tc1, "i1", "l1", decimal.NewFromInt(2), decimal.NewFromInt(4), "r1")
	older.ReceivedAt = newer.ReceivedAt.Add(-time.Hour)
	empty := domain.NewCostLayer(tc1, "i1", "l1", decimal.NewFromInt(2), decimal.NewFromInt(3), "r0")
	empty.Remaining = decimal.Zero

	_ = s.WithinTransaction(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		for _, l := range []*domain.CostLayer{newer, older, empty} {
			require.NoError(t, repos.CostLayers().Save(ctx, l))
		}
		layers, err := repos.CostLayers().FindOpen(ctx, tc1, "i1", "l1")
		require.NoError(t, err)
		require.Len(t, layers, 2)
		assert.Equal(t, "r1", layers[0].CorrelationID)
		return nil
	})
}

func TestOutbox_RelayLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	relay := s.Outbox()

	_ = s.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Outbox().SaveAll(ctx, []*outbox.OutboxEvent{
			{ID: "e1", AggregateID: "task-1", EventType: "wms.task.created", MaxRetries: 2},
			{ID: "e2", AggregateID: "task-1", EventType: "wms.task.completed", MaxRetries: 2},
		})
	})

	pending, err := relay.FindUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "e1", pending[0].ID)

	require.NoError(t, relay.MarkPublished(ctx, "e1"))
	require.NoError(t, relay.IncrementRetry(ctx, "e2", "broker down"))
	require.NoError(t, relay.IncrementRetry(ctx, "e2", "broker down"))

	pending, err = relay.FindUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "e2 exhausted its retries")

	all, err := relay.FindByAggregateID(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].IsPublished())
	assert.Equal(t, "broker down", all[1].LastError)
}

func TestLocker_SerializesSameItem(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	release, err := l.Lock(ctx, tc1, []string{"b", "a", "a"})
	require.NoError(t, err)

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(blocked, tc1, []string{"a"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := l.Lock(ctx, tc2, []string{"a"})
	require.NoError(t, err, "other tenants do not contend")
	other()

	release()
	again, err := l.Lock(ctx, tc1, []string{"a", "b"})
	require.NoError(t, err)
	again()
}

func TestCatalogAndDocuments(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	c.AddItem(&domain.Item{ID: "i1", TenantID: "t1", SKU: "SKU-1"})
	c.AddLocation(&domain.Location{ID: "l2", TenantID: "t1", FacilityID: "f1", Code: "B", Type: domain.LocationTypeBin})
	c.AddLocation(&domain.Location{ID: "l1", TenantID: "t1", FacilityID: "f1", Code: "A", Type: domain.LocationTypeBin})

	item, err := c.GetItemBySKU(ctx, tc1, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, "i1", item.ID)
	_, err = c.GetItem(ctx, tc2, "i1")
	assert.ErrorIs(t, err, domain.ErrUnknownItem)

	bins, err := c.ListLocations(ctx, tc1, domain.LocationTypeBin)
	require.NoError(t, err)
	require.Len(t, bins, 2)
	assert.Equal(t, "A", bins[0].Code)

	d := NewDocuments()
	d.PutOrder(tc1, "o1", domain.OrderLine{OrderID: "o1", LineID: "1", ItemID: "i1", Quantity: decimal.NewFromInt(2)})
	lines, err := d.OrderLines(ctx, tc1, "o1")
	require.NoError(t, err)
	assert.Len(t, lines, 1)
	_, err = d.OrderLines(ctx, tc2, "o1")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestLoadSeed(t *testing.T) {
	ctx := context.Background()
	c, d, p := NewCatalog(), NewDocuments(), NewProductionOrders()
	err := LoadSeed(strings.NewReader(`
tenantId: t1
facilityId: f1
items:
  - {id: i1, sku: SKU-1, name: Widget, standardCost: "2.5"}
locations:
  - {id: l1, code: A-01, type: BIN, zone: A, capacity: "40"}
  - {id: stage, code: STAGE, type: STAGE}
orders:
  - id: o1
    lines:
      - {itemId: i1, quantity: "3"}
receipts:
  - id: r1
    ref: ASN-1
    lines:
      - {itemId: i1, quantity: "10", unitCost: "2"}
productionOrders:
  - {id: mo1, number: MO-1, itemId: i1, operations: 2, components: [i1]}
`), c, d, p)
	require.NoError(t, err)

	item, err := c.GetItem(ctx, tc1, "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultValuationMethod, item.ValuationMethod)
	assert.True(t, item.StandardCost.Equal(decimal.RequireFromString("2.5")))

	bin, err := c.GetLocationByCode(ctx, tc1, "A-01")
	require.NoError(t, err)
	require.NotNil(t, bin.CapacityUnits)
	stage, err := c.GetLocation(ctx, tc1, "stage")
	require.NoError(t, err)
	assert.Nil(t, stage.CapacityUnits)

	lines, err := d.OrderLines(ctx, tc1, "o1")
	require.NoError(t, err)
	assert.Equal(t, "1", lines[0].LineID)
	receipt, err := d.ReceiptLines(ctx, tc1, "r1")
	require.NoError(t, err)
	assert.Equal(t, "ASN-1", receipt[0].ReceiptRef)

	order, err := p.FindOrder(ctx, tc1, "MO-1")
	require.NoError(t, err)
	ok, err := p.RequiresItem(ctx, tc1, order.ID, "i1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadSeed_BadQuantity(t *testing.T) {
	err := LoadSeed(strings.NewReader("orders:\n  - id: o1\n    lines:\n      - {itemId: i1, quantity: lots}\n"),
		NewCatalog(), NewDocuments(), NewProductionOrders())
	assert.ErrorContains(t, err, "order o1 line 1")
}

func TestScanSessions_FindByHandoff(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	session, err := domain.NewScanSession(tc1, domain.ScanModeQC, "op-1")
	require.NoError(t, err)
	code, err := session.IssueHandoff("op-1")
	require.NoError(t, err)
	require.NoError(t, s.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.ScanSessions().Insert(ctx, session)
	}))

	_ = s.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		found, err := repos.ScanSessions().FindByHandoff(ctx, tc1, strings.ToLower(code))
		require.NoError(t, err)
		assert.Equal(t, session.ID, found.ID)

		_, err = repos.ScanSessions().FindByHandoff(ctx, tc2, code)
		assert.ErrorIs(t, err, domain.ErrHandoffNotFound, "codes are tenant scoped")
		return nil
	})
}
