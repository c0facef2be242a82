package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// LedgerEntry is the immutable record of one applied movement
type LedgerEntry struct {
	ID             string            `bson:"_id" json:"id"`
	TenantID       string            `bson:"tenantId" json:"tenantId"`
	FacilityID     string            `bson:"facilityId" json:"facilityId"`
	IdempotencyKey string            `bson:"idempotencyKey" json:"-"`
	CorrelationID  string            `bson:"correlationId" json:"correlationId"`
	Kind           MovementKind      `bson:"kind" json:"kind"`
	ItemID         string            `bson:"itemId" json:"itemId"`
	FromLocationID string            `bson:"fromLocationId,omitempty" json:"fromLocationId,omitempty"`
	ToLocationID   string            `bson:"toLocationId,omitempty" json:"toLocationId,omitempty"`
	LotID          string            `bson:"lotId,omitempty" json:"lotId,omitempty"`
	ContainerID    string            `bson:"containerId,omitempty" json:"containerId,omitempty"`
	State          BalanceState      `bson:"state" json:"state"`
	ToState        BalanceState      `bson:"toState" json:"toState"`
	Quantity       decimal.Decimal   `bson:"quantity" json:"quantity"`
	UnitCost       decimal.Decimal   `bson:"unitCost" json:"unitCost"`
	ExtendedCost   decimal.Decimal   `bson:"extendedCost" json:"extendedCost"`
	Actor          string            `bson:"actor" json:"actor"`
	Reason         string            `bson:"reason,omitempty" json:"reason,omitempty"`
	Meta           map[string]string `bson:"meta,omitempty" json:"meta,omitempty"`
	CreatedAt      time.Time         `bson:"createdAt" json:"createdAt"`
}

// NewLedgerEntry records a validated, normalized request. Costs start at zero
// and are set by the ledger for receipts and issues.
func NewLedgerEntry(tc tenant.Context, req MovementRequest) *LedgerEntry {
	return &LedgerEntry{
		ID:             uuid.New().String(),
		TenantID:       tc.TenantID,
		FacilityID:     tc.FacilityID,
		IdempotencyKey: req.IdempotencyKey(),
		CorrelationID:  req.CorrelationID,
		Kind:           req.Kind(),
		ItemID:         req.ItemID,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		LotID:          req.LotID,
		ContainerID:    req.ContainerID,
		State:          req.State,
		ToState:        req.ToState,
		Quantity:       req.Quantity,
		UnitCost:       decimal.Zero,
		ExtendedCost:   decimal.Zero,
		Actor:          req.Actor,
		Reason:         req.Reason,
		Meta:           req.Meta,
		CreatedAt:      time.Now().UTC(),
	}
}

// SetCost stamps the valuation of a receipt or issue
func (e *LedgerEntry) SetCost(unitCost, extended decimal.Decimal) {
	e.UnitCost = unitCost
	e.ExtendedCost = extended
}

// ChangedEvent describes the entry for downstream consumers
func (e *LedgerEntry) ChangedEvent() *InventoryChangedEvent {
	return &InventoryChangedEvent{
		EntryID:        e.ID,
		CorrelationID:  e.CorrelationID,
		Kind:           string(e.Kind),
		ItemID:         e.ItemID,
		FromLocationID: e.FromLocationID,
		ToLocationID:   e.ToLocationID,
		LotID:          e.LotID,
		ContainerID:    e.ContainerID,
		State:          string(e.State),
		ToState:        string(e.ToState),
		Quantity:       e.Quantity,
		UnitCost:       e.UnitCost,
		ExtendedCost:   e.ExtendedCost,
		Actor:          e.Actor,
		Reason:         e.Reason,
		ChangedAt:      e.CreatedAt,
	}
}
