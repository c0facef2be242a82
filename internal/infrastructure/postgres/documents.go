package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/resilience"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// Documents implements domain.Documents over the ERP line tables
type Documents struct {
	db db
}

func NewDocuments(q Querier, cb *resilience.CircuitBreaker) *Documents {
	return &Documents{db: db{q: q, cb: cb}}
}

func (d *Documents) OrderLines(ctx context.Context, tc tenant.Context, orderID string) ([]domain.OrderLine, error) {
	sql := `SELECT order_id, line_id, item_id, quantity::text FROM order_lines
		WHERE tenant_id = $1 AND facility_id = $2 AND order_id = $3 ORDER BY line_id`
	var out []domain.OrderLine
	err := d.db.query(ctx, sql, []any{tc.TenantID, tc.FacilityID, orderID}, func(rows pgx.Rows) error {
		var (
			line domain.OrderLine
			qty  string
		)
		if err := rows.Scan(&line.OrderID, &line.LineID, &line.ItemID, &qty); err != nil {
			return err
		}
		var err error
		if line.Quantity, err = decimal.NewFromString(qty); err != nil {
			return err
		}
		out = append(out, line)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	if len(out) == 0 {
		return nil, domain.ErrOrderNotFound
	}
	return out, nil
}

func (d *Documents) ReceiptLines(ctx context.Context, tc tenant.Context, receiptID string) ([]domain.ReceiptLine, error) {
	sql := `SELECT receipt_id, receipt_ref, line_id, item_id, expected_qty::text, unit_cost::text, lot_id FROM receipt_lines
		WHERE tenant_id = $1 AND facility_id = $2 AND receipt_id = $3 ORDER BY line_id`
	var out []domain.ReceiptLine
	err := d.db.query(ctx, sql, []any{tc.TenantID, tc.FacilityID, receiptID}, func(rows pgx.Rows) error {
		var (
			line      domain.ReceiptLine
			qty, cost string
		)
		if err := rows.Scan(&line.ReceiptID, &line.ReceiptRef, &line.LineID, &line.ItemID, &qty, &cost, &line.LotID); err != nil {
			return err
		}
		var err error
		if line.ExpectedQuantity, err = decimal.NewFromString(qty); err != nil {
			return err
		}
		if line.UnitCost, err = decimal.NewFromString(cost); err != nil {
			return err
		}
		out = append(out, line)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt lines: %w", err)
	}
	if len(out) == 0 {
		return nil, domain.ErrReceiptNotFound
	}
	return out, nil
}

func (d *Documents) CountLines(ctx context.Context, tc tenant.Context, countID string) ([]domain.CountLine, error) {
	sql := `SELECT count_id, line_id, location_id FROM count_lines
		WHERE tenant_id = $1 AND facility_id = $2 AND count_id = $3 ORDER BY line_id`
	var out []domain.CountLine
	err := d.db.query(ctx, sql, []any{tc.TenantID, tc.FacilityID, countID}, func(rows pgx.Rows) error {
		var line domain.CountLine
		if err := rows.Scan(&line.CountID, &line.LineID, &line.LocationID); err != nil {
			return err
		}
		out = append(out, line)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load count lines: %w", err)
	}
	if len(out) == 0 {
		return nil, domain.ErrCountRequestNotFound
	}
	return out, nil
}

var _ domain.Documents = (*Documents)(nil)

// ProductionOrders implements domain.ProductionOrders. Operation starts and QC
// results are written back to the ERP tables.
type ProductionOrders struct {
	db  db
	now func() time.Time
}

func NewProductionOrders(q Querier, cb *resilience.CircuitBreaker) *ProductionOrders {
	return &ProductionOrders{db: db{q: q, cb: cb}, now: func() time.Time { return time.Now().UTC() }}
}

// FindOrder matches ref against the order id first, then its number
func (p *ProductionOrders) FindOrder(ctx context.Context, tc tenant.Context, ref string) (*domain.ProductionOrder, error) {
	var order domain.ProductionOrder
	found, err := p.db.queryRow(ctx,
		`SELECT id, tenant_id, number, item_id FROM production_orders
		WHERE tenant_id = $1 AND (id = $2 OR number = $2) ORDER BY (id = $2) DESC LIMIT 1`,
		[]any{tc.TenantID, ref}, &order.ID, &order.TenantID, &order.Number, &order.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load production order: %w", err)
	}
	if !found {
		return nil, domain.ErrProductionOrderNotFound
	}
	return &order, nil
}

func (p *ProductionOrders) RequiresItem(ctx context.Context, tc tenant.Context, orderID, itemID string) (bool, error) {
	var required bool
	_, err := p.db.queryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM production_order_components c
			JOIN production_orders o ON o.id = c.order_id
			WHERE o.tenant_id = $1 AND c.order_id = $2 AND c.item_id = $3)`,
		[]any{tc.TenantID, orderID, itemID}, &required)
	if err != nil {
		return false, fmt.Errorf("failed to check order components: %w", err)
	}
	return required, nil
}

func (p *ProductionOrders) StartOperation(ctx context.Context, tc tenant.Context, orderID string, seq int, actor string) error {
	affected, err := p.db.exec(ctx,
		`UPDATE production_operations op SET started_at = COALESCE(op.started_at, $4), started_by = COALESCE(op.started_by, $5)
		FROM production_orders o
		WHERE o.id = op.order_id AND o.tenant_id = $1 AND op.order_id = $2 AND op.seq = $3`,
		tc.TenantID, orderID, seq, p.now(), actor)
	if err != nil {
		return fmt.Errorf("failed to start operation: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("production order %s has no operation %d", orderID, seq)
	}
	return nil
}

func (p *ProductionOrders) RecordQC(ctx context.Context, tc tenant.Context, orderID string, seq int, checkCode, result, actor string) error {
	affected, err := p.db.exec(ctx,
		`INSERT INTO production_qc_records (order_id, seq, check_code, result, recorded_by, recorded_at)
		SELECT op.order_id, op.seq, $4, $5, $6, $7
		FROM production_operations op JOIN production_orders o ON o.id = op.order_id
		WHERE o.tenant_id = $1 AND op.order_id = $2 AND op.seq = $3`,
		tc.TenantID, orderID, seq, checkCode, result, actor, p.now())
	if err != nil {
		return fmt.Errorf("failed to record qc result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("production order %s has no operation %d", orderID, seq)
	}
	return nil
}

var _ domain.ProductionOrders = (*ProductionOrders)(nil)
