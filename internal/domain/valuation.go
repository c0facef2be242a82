package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// ValuationMethod represents the inventory cost valuation method
type ValuationMethod string

const (
	// ValuationFIFO - First-In-First-Out: oldest cost layers are consumed first
	ValuationFIFO ValuationMethod = "FIFO"

	// ValuationWeightedAverage - issues are costed at the moving average.
	// Layers are still consumed so switching back to FIFO stays consistent.
	ValuationWeightedAverage ValuationMethod = "WEIGHTED_AVERAGE"
)

// DefaultValuationMethod is used when an item carries none
const DefaultValuationMethod = ValuationFIFO

// IsValid checks if the valuation method is valid
func (v ValuationMethod) IsValid() bool {
	switch v {
	case ValuationFIFO, ValuationWeightedAverage:
		return true
	default:
		return false
	}
}

// String returns the string representation of the valuation method
func (v ValuationMethod) String() string {
	return string(v)
}

// ItemValuation tracks on-hand quantity and moving average cost for one item
type ItemValuation struct {
	ID        string          `bson:"_id" json:"id"`
	TenantID  string          `bson:"tenantId" json:"tenantId"`
	ItemID    string          `bson:"itemId" json:"itemId"`
	Method    ValuationMethod `bson:"method" json:"method"`
	Currency  string          `bson:"currency" json:"currency"`
	OnHandQty decimal.Decimal `bson:"onHandQty" json:"onHandQty"`
	AvgCost   decimal.Decimal `bson:"avgCost" json:"avgCost"`
	StdCost   decimal.Decimal `bson:"stdCost" json:"stdCost"`
	UpdatedAt time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// ValuationID is the storage key of an item valuation
func ValuationID(tc tenant.Context, itemID string) string {
	return tc.TenantID + "|" + itemID
}

// NewItemValuation seeds a valuation from item master data
func NewItemValuation(tc tenant.Context, item *Item) *ItemValuation {
	method := item.ValuationMethod
	if !method.IsValid() {
		method = DefaultValuationMethod
	}
	currency := item.Currency
	if currency == "" {
		currency = "USD"
	}
	return &ItemValuation{
		ID:        ValuationID(tc, item.ID),
		TenantID:  tc.TenantID,
		ItemID:    item.ID,
		Method:    method,
		Currency:  currency,
		OnHandQty: decimal.Zero,
		AvgCost:   decimal.Zero,
		StdCost:   item.StandardCost,
		UpdatedAt: time.Now().UTC(),
	}
}

// ReceiptUnitCost picks the cost of a receipt: explicit override, else moving
// average, else standard cost.
func (v *ItemValuation) ReceiptUnitCost(override *decimal.Decimal) decimal.Decimal {
	if override != nil && override.IsPositive() {
		return *override
	}
	if v.AvgCost.IsPositive() {
		return v.AvgCost
	}
	return v.StdCost
}

// ApplyReceipt folds a receipt into the moving average using the
// pre-movement on-hand quantity.
func (v *ItemValuation) ApplyReceipt(qty, unitCost decimal.Decimal) {
	newQty := v.OnHandQty.Add(qty)
	if newQty.IsPositive() {
		v.AvgCost = v.AvgCost.Mul(v.OnHandQty).Add(unitCost.Mul(qty)).Div(newQty)
	}
	v.OnHandQty = newQty
	v.UpdatedAt = time.Now().UTC()
}

// ApplyIssue removes issued quantity from on-hand. The average does not move.
func (v *ItemValuation) ApplyIssue(qty decimal.Decimal) {
	v.OnHandQty = decimal.Max(v.OnHandQty.Sub(qty), decimal.Zero)
	v.UpdatedAt = time.Now().UTC()
}

// IssueCost prices an issue of qty given what FIFO layers could cover.
// Any shortfall is costed at the moving average; WEIGHTED_AVERAGE items cost
// the whole quantity at the average.
func (v *ItemValuation) IssueCost(qty decimal.Decimal, consumed FIFOConsumption) (unitCost, extended decimal.Decimal) {
	if v.Method == ValuationWeightedAverage {
		extended = qty.Mul(v.AvgCost)
	} else {
		shortfall := qty.Sub(consumed.Quantity)
		extended = consumed.ExtendedCost
		if shortfall.IsPositive() {
			extended = extended.Add(shortfall.Mul(v.AvgCost))
		}
	}
	if qty.IsPositive() {
		unitCost = extended.Div(qty)
	}
	return unitCost, extended
}
