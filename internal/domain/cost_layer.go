package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// CostLayer is a FIFO bucket of received quantity at one (item, location)
type CostLayer struct {
	ID            string          `bson:"_id" json:"id"`
	TenantID      string          `bson:"tenantId" json:"tenantId"`
	FacilityID    string          `bson:"facilityId" json:"facilityId"`
	ItemID        string          `bson:"itemId" json:"itemId"`
	LocationID    string          `bson:"locationId" json:"locationId"`
	Quantity      decimal.Decimal `bson:"quantity" json:"quantity"`
	Remaining     decimal.Decimal `bson:"remaining" json:"remaining"`
	UnitCost      decimal.Decimal `bson:"unitCost" json:"unitCost"`
	CorrelationID string          `bson:"correlationId" json:"correlationId"`
	ReceivedAt    time.Time       `bson:"receivedAt" json:"receivedAt"`
}

// NewCostLayer creates a new cost layer
func NewCostLayer(tc tenant.Context, itemID, locationID string, qty, unitCost decimal.Decimal, correlationID string) *CostLayer {
	return &CostLayer{
		ID:            uuid.New().String(),
		TenantID:      tc.TenantID,
		FacilityID:    tc.FacilityID,
		ItemID:        itemID,
		LocationID:    locationID,
		Quantity:      qty,
		Remaining:     qty,
		UnitCost:      unitCost,
		CorrelationID: correlationID,
		ReceivedAt:    time.Now().UTC(),
	}
}

// IsEmpty returns true if the layer has nothing left to consume
func (cl *CostLayer) IsEmpty() bool {
	return !cl.Remaining.IsPositive()
}

// Consume removes qty from this layer and returns the cost consumed
func (cl *CostLayer) Consume(qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.GreaterThan(cl.Remaining) {
		return decimal.Zero, fmt.Errorf("cannot consume %s units from layer with %s units", qty, cl.Remaining)
	}
	cl.Remaining = cl.Remaining.Sub(qty)
	return qty.Mul(cl.UnitCost), nil
}

// FIFOConsumption is what a FIFO pass over layers managed to cover
type FIFOConsumption struct {
	Quantity     decimal.Decimal
	ExtendedCost decimal.Decimal
	Touched      []*CostLayer
}

// CostLayers is an oldest-first sequence of layers
type CostLayers []*CostLayer

// TotalRemaining returns the unconsumed quantity across all layers
func (cls CostLayers) TotalRemaining() decimal.Decimal {
	total := decimal.Zero
	for _, layer := range cls {
		total = total.Add(layer.Remaining)
	}
	return total
}

// ConsumeFIFO consumes up to qty oldest-first. It never fails on shortage;
// the caller prices any uncovered remainder.
func (cls CostLayers) ConsumeFIFO(qty decimal.Decimal) FIFOConsumption {
	result := FIFOConsumption{Quantity: decimal.Zero, ExtendedCost: decimal.Zero}
	remaining := qty
	for _, layer := range cls {
		if !remaining.IsPositive() {
			break
		}
		if layer.IsEmpty() {
			continue
		}
		take := decimal.Min(layer.Remaining, remaining)
		cost, err := layer.Consume(take)
		if err != nil {
			continue
		}
		remaining = remaining.Sub(take)
		result.Quantity = result.Quantity.Add(take)
		result.ExtendedCost = result.ExtendedCost.Add(cost)
		result.Touched = append(result.Touched, layer)
	}
	return result
}
