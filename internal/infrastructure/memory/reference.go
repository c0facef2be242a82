package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// Catalog is an in-memory ReferenceCatalog
type Catalog struct {
	mu        sync.RWMutex
	items     []*domain.Item
	locations []*domain.Location
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{}
}

// AddItem registers or replaces an item
func (c *Catalog) AddItem(item *domain.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = slices.DeleteFunc(c.items, func(i *domain.Item) bool {
		return i.TenantID == item.TenantID && i.ID == item.ID
	})
	c.items = append(c.items, clone(item))
}

// AddLocation registers or replaces a location
func (c *Catalog) AddLocation(loc *domain.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations = slices.DeleteFunc(c.locations, func(l *domain.Location) bool {
		return l.TenantID == loc.TenantID && l.ID == loc.ID
	})
	c.locations = append(c.locations, clone(loc))
}

func (c *Catalog) GetItem(_ context.Context, tc tenant.Context, itemID string) (*domain.Item, error) {
	return c.findItem(func(i *domain.Item) bool { return i.TenantID == tc.TenantID && i.ID == itemID })
}

func (c *Catalog) GetItemBySKU(_ context.Context, tc tenant.Context, sku string) (*domain.Item, error) {
	return c.findItem(func(i *domain.Item) bool { return i.TenantID == tc.TenantID && i.SKU == sku })
}

func (c *Catalog) GetLocation(_ context.Context, tc tenant.Context, locationID string) (*domain.Location, error) {
	return c.findLocation(tc, func(l *domain.Location) bool { return l.ID == locationID })
}

func (c *Catalog) GetLocationByCode(_ context.Context, tc tenant.Context, code string) (*domain.Location, error) {
	return c.findLocation(tc, func(l *domain.Location) bool { return l.Code == code })
}

// ListLocations returns locations of a type ordered by code; an empty type lists all
func (c *Catalog) ListLocations(_ context.Context, tc tenant.Context, locationType domain.LocationType) ([]*domain.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*domain.Location
	for _, l := range c.locations {
		if inScope(tc, l.TenantID, l.FacilityID) && (locationType == "" || l.Type == locationType) {
			out = append(out, clone(l))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Location) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (c *Catalog) findItem(match func(*domain.Item) bool) (*domain.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, i := range c.items {
		if match(i) {
			return clone(i), nil
		}
	}
	return nil, domain.ErrUnknownItem
}

func (c *Catalog) findLocation(tc tenant.Context, match func(*domain.Location) bool) (*domain.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.locations {
		if inScope(tc, l.TenantID, l.FacilityID) && match(l) {
			return clone(l), nil
		}
	}
	return nil, domain.ErrUnknownLocation
}

// Documents is an in-memory store of orders, receipts and count requests
type Documents struct {
	mu       sync.RWMutex
	orders   map[string][]domain.OrderLine
	receipts map[string][]domain.ReceiptLine
	counts   map[string][]domain.CountLine
}

// NewDocuments creates an empty document store
func NewDocuments() *Documents {
	return &Documents{
		orders:   make(map[string][]domain.OrderLine),
		receipts: make(map[string][]domain.ReceiptLine),
		counts:   make(map[string][]domain.CountLine),
	}
}

func (d *Documents) PutOrder(tc tenant.Context, orderID string, lines ...domain.OrderLine) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders[scopedKey(tc, orderID)] = slices.Clone(lines)
}

func (d *Documents) PutReceipt(tc tenant.Context, receiptID string, lines ...domain.ReceiptLine) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.receipts[scopedKey(tc, receiptID)] = slices.Clone(lines)
}

func (d *Documents) PutCount(tc tenant.Context, countID string, lines ...domain.CountLine) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[scopedKey(tc, countID)] = slices.Clone(lines)
}

func (d *Documents) OrderLines(_ context.Context, tc tenant.Context, orderID string) ([]domain.OrderLine, error) {
	return lookup(&d.mu, d.orders, scopedKey(tc, orderID), domain.ErrOrderNotFound)
}

func (d *Documents) ReceiptLines(_ context.Context, tc tenant.Context, receiptID string) ([]domain.ReceiptLine, error) {
	return lookup(&d.mu, d.receipts, scopedKey(tc, receiptID), domain.ErrReceiptNotFound)
}

func (d *Documents) CountLines(_ context.Context, tc tenant.Context, countID string) ([]domain.CountLine, error) {
	return lookup(&d.mu, d.counts, scopedKey(tc, countID), domain.ErrCountRequestNotFound)
}

func lookup[T any](mu *sync.RWMutex, table map[string][]T, key string, notFound error) ([]T, error) {
	mu.RLock()
	defer mu.RUnlock()
	lines, ok := table[key]
	if !ok {
		return nil, notFound
	}
	return slices.Clone(lines), nil
}

// OperationRecord is one call made against a production order
type OperationRecord struct {
	OrderID   string
	Seq       int
	Kind      string
	CheckCode string
	Result    string
	Actor     string
}

// ProductionOrders is an in-memory MES stand-in that records the operations
// started and QC results booked against its orders.
type ProductionOrders struct {
	mu         sync.Mutex
	orders     []*domain.ProductionOrder
	components map[string][]string
	operations map[string]int
	records    []OperationRecord
}

// NewProductionOrders creates an empty production order store
func NewProductionOrders() *ProductionOrders {
	return &ProductionOrders{
		components: make(map[string][]string),
		operations: make(map[string]int),
	}
}

// AddOrder registers an order with its operation count and the component
// items it consumes.
func (p *ProductionOrders) AddOrder(order *domain.ProductionOrder, operations int, componentItemIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, clone(order))
	p.components[order.ID] = slices.Clone(componentItemIDs)
	p.operations[order.ID] = operations
}

// Records returns every operation recorded so far
func (p *ProductionOrders) Records() []OperationRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.records)
}

func (p *ProductionOrders) FindOrder(_ context.Context, tc tenant.Context, ref string) (*domain.ProductionOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.orders {
		if o.TenantID == tc.TenantID && (o.ID == ref || o.Number == ref) {
			return clone(o), nil
		}
	}
	return nil, domain.ErrProductionOrderNotFound
}

func (p *ProductionOrders) RequiresItem(_ context.Context, _ tenant.Context, orderID, itemID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Contains(p.components[orderID], itemID), nil
}

func (p *ProductionOrders) StartOperation(_ context.Context, _ tenant.Context, orderID string, seq int, actor string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOperation(orderID, seq); err != nil {
		return err
	}
	p.records = append(p.records, OperationRecord{OrderID: orderID, Seq: seq, Kind: "START_OP", Actor: actor})
	return nil
}

func (p *ProductionOrders) RecordQC(_ context.Context, _ tenant.Context, orderID string, seq int, checkCode, result, actor string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOperation(orderID, seq); err != nil {
		return err
	}
	p.records = append(p.records, OperationRecord{
		OrderID: orderID, Seq: seq, Kind: "QC", CheckCode: checkCode, Result: result, Actor: actor,
	})
	return nil
}

func (p *ProductionOrders) checkOperation(orderID string, seq int) error {
	n, ok := p.operations[orderID]
	if !ok {
		return domain.ErrProductionOrderNotFound
	}
	if seq < 1 || seq > n {
		return fmt.Errorf("production order %s has no operation %d", orderID, seq)
	}
	return nil
}

var (
	_ domain.ReferenceCatalog = (*Catalog)(nil)
	_ domain.Documents        = (*Documents)(nil)
	_ domain.ProductionOrders = (*ProductionOrders)(nil)
)
