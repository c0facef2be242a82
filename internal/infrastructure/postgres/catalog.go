package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/resilience"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// Numerics are selected as text and parsed into decimals so no pgx numeric
// extension is needed.
const (
	itemColumns     = `id, tenant_id, sku, name, preferred_zone, standard_cost::text, valuation_method, currency`
	locationColumns = `id, tenant_id, facility_id, code, type, zone, capacity_units::text`
)

// Catalog implements domain.ReferenceCatalog over the items and locations tables
type Catalog struct {
	db db
}

// NewCatalog creates a catalog reading through q guarded by cb
func NewCatalog(q Querier, cb *resilience.CircuitBreaker) *Catalog {
	return &Catalog{db: db{q: q, cb: cb}}
}

func (c *Catalog) GetItem(ctx context.Context, tc tenant.Context, itemID string) (*domain.Item, error) {
	return c.item(ctx, `SELECT `+itemColumns+` FROM items WHERE tenant_id = $1 AND id = $2`, tc.TenantID, itemID)
}

func (c *Catalog) GetItemBySKU(ctx context.Context, tc tenant.Context, sku string) (*domain.Item, error) {
	return c.item(ctx, `SELECT `+itemColumns+` FROM items WHERE tenant_id = $1 AND sku = $2`, tc.TenantID, sku)
}

func (c *Catalog) item(ctx context.Context, sql string, args ...any) (*domain.Item, error) {
	var (
		item   domain.Item
		cost   string
		method string
	)
	found, err := c.db.queryRow(ctx, sql, args,
		&item.ID, &item.TenantID, &item.SKU, &item.Name, &item.PreferredZone, &cost, &method, &item.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to load item: %w", err)
	}
	if !found {
		return nil, domain.ErrUnknownItem
	}
	if item.StandardCost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("item %s has invalid standard cost %q: %w", item.ID, cost, err)
	}
	item.ValuationMethod = domain.ValuationMethod(method)
	return &item, nil
}

func (c *Catalog) GetLocation(ctx context.Context, tc tenant.Context, locationID string) (*domain.Location, error) {
	return c.location(ctx, `SELECT `+locationColumns+` FROM locations WHERE tenant_id = $1 AND facility_id = $2 AND id = $3`,
		tc.TenantID, tc.FacilityID, locationID)
}

func (c *Catalog) GetLocationByCode(ctx context.Context, tc tenant.Context, code string) (*domain.Location, error) {
	return c.location(ctx, `SELECT `+locationColumns+` FROM locations WHERE tenant_id = $1 AND facility_id = $2 AND code = $3`,
		tc.TenantID, tc.FacilityID, code)
}

func (c *Catalog) location(ctx context.Context, sql string, args ...any) (*domain.Location, error) {
	var (
		loc      domain.Location
		locType  string
		capacity *string
	)
	found, err := c.db.queryRow(ctx, sql, args,
		&loc.ID, &loc.TenantID, &loc.FacilityID, &loc.Code, &locType, &loc.Zone, &capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to load location: %w", err)
	}
	if !found {
		return nil, domain.ErrUnknownLocation
	}
	loc.Type = domain.LocationType(locType)
	if loc.CapacityUnits, err = optionalDecimal(capacity); err != nil {
		return nil, fmt.Errorf("location %s has invalid capacity: %w", loc.ID, err)
	}
	return &loc, nil
}

// ListLocations returns locations of type ordered by code; an empty type lists all
func (c *Catalog) ListLocations(ctx context.Context, tc tenant.Context, locationType domain.LocationType) ([]*domain.Location, error) {
	sql := `SELECT ` + locationColumns + ` FROM locations WHERE tenant_id = $1 AND facility_id = $2 AND ($3 = '' OR type = $3) ORDER BY code`
	var out []*domain.Location
	err := c.db.query(ctx, sql, []any{tc.TenantID, tc.FacilityID, string(locationType)}, func(rows pgx.Rows) error {
		var (
			loc      domain.Location
			locType  string
			capacity *string
		)
		if err := rows.Scan(&loc.ID, &loc.TenantID, &loc.FacilityID, &loc.Code, &locType, &loc.Zone, &capacity); err != nil {
			return err
		}
		loc.Type = domain.LocationType(locType)
		var err error
		if loc.CapacityUnits, err = optionalDecimal(capacity); err != nil {
			return err
		}
		out = append(out, &loc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return out, nil
}

func optionalDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var _ domain.ReferenceCatalog = (*Catalog)(nil)
