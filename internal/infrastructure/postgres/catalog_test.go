package postgres

import (
	"context"
	stderrors "errors"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/resilience"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

var tc = tenant.Context{TenantID: "acme", FacilityID: "dc-1"}

// fakeQuerier answers queries whose SQL contains a registered table name
type fakeQuerier struct {
	rows     map[string][][]any
	err      error
	affected int64
	execs    []string
	args     []any
}

func (f *fakeQuerier) match(sql string) [][]any {
	for table, rows := range f.rows {
		if strings.Contains(sql, "FROM "+table) {
			return rows
		}
	}
	return nil
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return &fakeRows{data: f.match(sql), idx: -1}, nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.args = args
	return fakeRow{rows: f.match(sql), err: f.err}
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.args = args
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("UPDATE " + strconv.FormatInt(f.affected, 10)), nil
}

type fakeRow struct {
	rows [][]any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(r.rows) == 0 {
		return pgx.ErrNoRows
	}
	return assign(r.rows[0], dest)
}

type fakeRows struct {
	pgx.Rows
	data [][]any
	idx  int
}

func (r *fakeRows) Next() bool             { r.idx++; return r.idx < len(r.data) }
func (r *fakeRows) Scan(dest ...any) error { return assign(r.data[r.idx], dest) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

func assign(values, dest []any) error {
	if len(values) != len(dest) {
		return stderrors.New("column count mismatch")
	}
	for i, v := range values {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}

func strPtr(s string) *string { return &s }

func breaker(failures uint32) *resilience.CircuitBreaker {
	cfg := resilience.DefaultBreakerConfig("erp-test")
	cfg.ConsecutiveFailures = failures
	cfg.Timeout = time.Minute
	return resilience.NewCircuitBreaker(cfg, nil)
}

func TestCatalog_GetItem(t *testing.T) {
	q := &fakeQuerier{rows: map[string][][]any{
		"items": {{"item-1", "acme", "SKU-1", "Widget", "A", "2.50", "WEIGHTED_AVERAGE", "USD"}},
	}}
	item, err := NewCatalog(q, breaker(5)).GetItem(context.Background(), tc, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", item.SKU)
	assert.Equal(t, "A", item.PreferredZone)
	assert.True(t, item.StandardCost.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, domain.ValuationMethod("WEIGHTED_AVERAGE"), item.ValuationMethod)
	assert.Equal(t, []any{"acme", "item-1"}, q.args)
}

func TestCatalog_MissingRowsDoNotTripBreaker(t *testing.T) {
	cb := breaker(1)
	catalog := NewCatalog(&fakeQuerier{}, cb)
	for i := 0; i < 3; i++ {
		_, err := catalog.GetItemBySKU(context.Background(), tc, "NOPE")
		assert.ErrorIs(t, err, domain.ErrUnknownItem)
		_, err = catalog.GetLocationByCode(context.Background(), tc, "NOPE")
		assert.ErrorIs(t, err, domain.ErrUnknownLocation)
	}
	assert.Equal(t, "closed", cb.State().String())
}

func TestCatalog_BreakerOpensOnFailures(t *testing.T) {
	q := &fakeQuerier{err: stderrors.New("connection refused")}
	catalog := NewCatalog(q, breaker(2))

	for i := 0; i < 2; i++ {
		_, err := catalog.GetItem(context.Background(), tc, "item-1")
		assert.ErrorContains(t, err, "connection refused")
	}
	_, err := catalog.GetItem(context.Background(), tc, "item-1")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestCatalog_ListLocations(t *testing.T) {
	q := &fakeQuerier{rows: map[string][][]any{
		"locations": {
			{"loc-a1", "acme", "dc-1", "A-01-01", "BIN", "A", strPtr("20")},
			{"loc-a2", "acme", "dc-1", "A-02-01", "BIN", "A", nil},
		},
	}}
	locs, err := NewCatalog(q, breaker(5)).ListLocations(context.Background(), tc, domain.LocationTypeBin)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	require.NotNil(t, locs[0].CapacityUnits)
	assert.True(t, locs[0].CapacityUnits.Equal(decimal.NewFromInt(20)))
	assert.Nil(t, locs[1].CapacityUnits)
	assert.True(t, locs[0].IsPickable())
	assert.Equal(t, []any{"acme", "dc-1", "BIN"}, q.args)
}

func TestDocuments_Lines(t *testing.T) {
	q := &fakeQuerier{rows: map[string][][]any{
		"order_lines":   {{"ord-1", "1", "item-1", "3"}, {"ord-1", "2", "item-2", "1.5"}},
		"receipt_lines": {{"rcv-1", "ASN-9", "1", "item-1", "10", "2.00", ""}},
	}}
	docs := NewDocuments(q, breaker(5))

	lines, err := docs.OrderLines(context.Background(), tc, "ord-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, lines[1].Quantity.Equal(decimal.RequireFromString("1.5")))

	receipt, err := docs.ReceiptLines(context.Background(), tc, "rcv-1")
	require.NoError(t, err)
	assert.Equal(t, "ASN-9", receipt[0].ReceiptRef)
	assert.True(t, receipt[0].UnitCost.Equal(decimal.NewFromInt(2)))

	_, err = docs.CountLines(context.Background(), tc, "cnt-1")
	assert.ErrorIs(t, err, domain.ErrCountRequestNotFound)
}

func TestProductionOrders(t *testing.T) {
	q := &fakeQuerier{rows: map[string][][]any{
		"production_orders": {{"mo-1", "acme", "MO-100", "item-2"}},
	}, affected: 1}
	orders := NewProductionOrders(q, breaker(5))

	order, err := orders.FindOrder(context.Background(), tc, "MO-100")
	require.NoError(t, err)
	assert.Equal(t, "mo-1", order.ID)

	require.NoError(t, orders.StartOperation(context.Background(), tc, "mo-1", 1, "op-1"))
	require.NoError(t, orders.RecordQC(context.Background(), tc, "mo-1", 1, "VISUAL", "PASS", "op-1"))
	assert.Len(t, q.execs, 2)

	q.affected = 0
	err = orders.StartOperation(context.Background(), tc, "mo-1", 9, "op-1")
	assert.ErrorContains(t, err, "no operation 9")
}
