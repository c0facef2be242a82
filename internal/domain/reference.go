package domain

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// LocationType classifies a storable location
type LocationType string

const (
	LocationTypeBin   LocationType = "BIN"
	LocationTypeStage LocationType = "STAGE"
	LocationTypeDock  LocationType = "DOCK"
	LocationTypePack  LocationType = "PACK"
)

// Well-known location codes used when a document does not name one
const (
	DefaultStagingLocationCode = "STAGE"
	DefaultPackLocationCode    = "PACK"
)

// Item is stock-keeping master data owned by the ERP side
type Item struct {
	ID              string          `bson:"_id" json:"id"`
	TenantID        string          `bson:"tenantId" json:"tenantId"`
	SKU             string          `bson:"sku" json:"sku"`
	Name            string          `bson:"name" json:"name"`
	PreferredZone   string          `bson:"preferredZone,omitempty" json:"preferredZone,omitempty"`
	StandardCost    decimal.Decimal `bson:"standardCost" json:"standardCost"`
	ValuationMethod ValuationMethod `bson:"valuationMethod" json:"valuationMethod"`
	Currency        string          `bson:"currency" json:"currency"`
}

// Location is a storable place in a facility
type Location struct {
	ID            string           `bson:"_id" json:"id"`
	TenantID      string           `bson:"tenantId" json:"tenantId"`
	FacilityID    string           `bson:"facilityId" json:"facilityId"`
	Code          string           `bson:"code" json:"code"`
	Type          LocationType     `bson:"type" json:"type"`
	Zone          string           `bson:"zone,omitempty" json:"zone,omitempty"`
	CapacityUnits *decimal.Decimal `bson:"capacityUnits,omitempty" json:"capacityUnits,omitempty"`
}

// IsPickable reports whether allocation may draw from this location
func (l *Location) IsPickable() bool {
	return l.Type == LocationTypeBin
}

// ReferenceCatalog is the read-only view of item and location master data.
// Lookups return ErrUnknownItem / ErrUnknownLocation when nothing matches.
type ReferenceCatalog interface {
	GetItem(ctx context.Context, tc tenant.Context, itemID string) (*Item, error)
	GetItemBySKU(ctx context.Context, tc tenant.Context, sku string) (*Item, error)
	GetLocation(ctx context.Context, tc tenant.Context, locationID string) (*Location, error)
	GetLocationByCode(ctx context.Context, tc tenant.Context, code string) (*Location, error)
	ListLocations(ctx context.Context, tc tenant.Context, locationType LocationType) ([]*Location, error)
}

// OrderLine is one demand line of an outbound order
type OrderLine struct {
	OrderID  string          `bson:"orderId" json:"orderId"`
	LineID   string          `bson:"lineId" json:"lineId"`
	ItemID   string          `bson:"itemId" json:"itemId"`
	Quantity decimal.Decimal `bson:"quantity" json:"quantity"`
}

// ReceiptLine is one expected line of an inbound receipt
type ReceiptLine struct {
	ReceiptID        string          `bson:"receiptId" json:"receiptId"`
	ReceiptRef       string          `bson:"receiptRef" json:"receiptRef"`
	LineID           string          `bson:"lineId" json:"lineId"`
	ItemID           string          `bson:"itemId" json:"itemId"`
	ExpectedQuantity decimal.Decimal `bson:"expectedQuantity" json:"expectedQuantity"`
	UnitCost         decimal.Decimal `bson:"unitCost" json:"unitCost"`
	LotID            string          `bson:"lotId,omitempty" json:"lotId,omitempty"`
}

// CountLine names a location to count for a cycle count request
type CountLine struct {
	CountID    string `bson:"countId" json:"countId"`
	LineID     string `bson:"lineId" json:"lineId"`
	LocationID string `bson:"locationId" json:"locationId"`
}

// Documents exposes the business documents the core executes against.
// An unknown document yields ErrOrderNotFound / ErrReceiptNotFound / ErrCountRequestNotFound.
type Documents interface {
	OrderLines(ctx context.Context, tc tenant.Context, orderID string) ([]OrderLine, error)
	ReceiptLines(ctx context.Context, tc tenant.Context, receiptID string) ([]ReceiptLine, error)
	CountLines(ctx context.Context, tc tenant.Context, countID string) ([]CountLine, error)
}

// ProductionOrder is the manufacturing order a scan session works against
type ProductionOrder struct {
	ID       string `bson:"_id" json:"id"`
	TenantID string `bson:"tenantId" json:"tenantId"`
	Number   string `bson:"number" json:"number"`
	ItemID   string `bson:"itemId" json:"itemId"`
}

// ProductionOrders is the manufacturing collaborator driven by scan sessions
type ProductionOrders interface {
	// FindOrder matches by id or order number
	FindOrder(ctx context.Context, tc tenant.Context, ref string) (*ProductionOrder, error)
	RequiresItem(ctx context.Context, tc tenant.Context, orderID, itemID string) (bool, error)
	StartOperation(ctx context.Context, tc tenant.Context, orderID string, seq int, actor string) error
	RecordQC(ctx context.Context, tc tenant.Context, orderID string, seq int, checkCode, result, actor string) error
}
