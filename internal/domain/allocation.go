package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// AllocationStatus is the lifecycle of an allocation
type AllocationStatus string

const (
	// AllocationOpen holds RESERVED stock at its location
	AllocationOpen AllocationStatus = "OPEN"
	// AllocationPicked has been consumed by a pick; it no longer holds stock
	// and counts towards its line's fulfilled quantity.
	AllocationPicked AllocationStatus = "PICKED"
)

// Allocation is one reserved slice of balance satisfying part of an order line
type Allocation struct {
	ID          string           `bson:"_id" json:"id"`
	TenantID    string           `bson:"tenantId" json:"tenantId"`
	FacilityID  string           `bson:"facilityId" json:"facilityId"`
	OrderID     string           `bson:"orderId" json:"orderId"`
	OrderLineID string           `bson:"orderLineId" json:"orderLineId"`
	ItemID      string           `bson:"itemId" json:"itemId"`
	LocationID  string           `bson:"locationId" json:"locationId"`
	LotID       string           `bson:"lotId,omitempty" json:"lotId,omitempty"`
	ContainerID string           `bson:"containerId,omitempty" json:"containerId,omitempty"`
	Quantity    decimal.Decimal  `bson:"quantity" json:"quantity"`
	Status      AllocationStatus `bson:"status" json:"status"`
	Picked      decimal.Decimal  `bson:"picked" json:"picked"`
	CreatedAt   time.Time        `bson:"createdAt" json:"createdAt"`
	PickedAt    *time.Time       `bson:"pickedAt,omitempty" json:"pickedAt,omitempty"`
}

// NewAllocation creates an allocation drawn from the given balance
func NewAllocation(tc tenant.Context, line OrderLine, from *Balance, qty decimal.Decimal) *Allocation {
	return &Allocation{
		ID:          uuid.New().String(),
		TenantID:    tc.TenantID,
		FacilityID:  tc.FacilityID,
		OrderID:     line.OrderID,
		OrderLineID: line.LineID,
		ItemID:      line.ItemID,
		LocationID:  from.LocationID,
		LotID:       from.LotID,
		ContainerID: from.ContainerID,
		Quantity:    qty,
		Status:      AllocationOpen,
		Picked:      decimal.Zero,
		CreatedAt:   time.Now().UTC(),
	}
}

// IsOpen reports whether the allocation still holds a reservation
func (a *Allocation) IsOpen() bool {
	return a.Status == AllocationOpen
}

// RecordPick closes the allocation with the quantity actually picked. The
// unpicked remainder is released by the caller.
func (a *Allocation) RecordPick(picked decimal.Decimal) {
	now := time.Now().UTC()
	a.Picked = decimal.Min(picked, a.Quantity)
	a.Status = AllocationPicked
	a.PickedAt = &now
}

// ReserveCorrelation is the correlation id of the reservation movement. The
// allocation id keeps a re-allocation from replaying an earlier reservation.
func (a *Allocation) ReserveCorrelation() string {
	return fmt.Sprintf("alloc:%s:%s:%s", a.OrderID, a.OrderLineID, a.ID)
}

// ReleaseCorrelation is the correlation id of the release movement
func (a *Allocation) ReleaseCorrelation() string {
	return fmt.Sprintf("dealloc:%s:%s", a.OrderID, a.ID)
}

// BackorderStatus is the lifecycle of a backorder
type BackorderStatus string

const (
	BackorderOpen      BackorderStatus = "OPEN"
	BackorderResolved  BackorderStatus = "RESOLVED"
	BackorderCancelled BackorderStatus = "CANCELLED"
)

// Backorder reasons
const (
	// ReasonInsufficientAvailable is recorded when pickable stock does not cover a line
	ReasonInsufficientAvailable = "INSUFFICIENT_AVAILABLE"
	// ReasonShortPick is recorded when a short pick is resolved by backordering
	ReasonShortPick = "SHORT_PICK"
)

// Backorder records demand that allocation could not cover
type Backorder struct {
	ID          string          `bson:"_id" json:"id"`
	TenantID    string          `bson:"tenantId" json:"tenantId"`
	FacilityID  string          `bson:"facilityId" json:"facilityId"`
	OrderID     string          `bson:"orderId" json:"orderId"`
	OrderLineID string          `bson:"orderLineId" json:"orderLineId"`
	ItemID      string          `bson:"itemId" json:"itemId"`
	Quantity    decimal.Decimal `bson:"quantity" json:"quantity"`
	Reason      string          `bson:"reason" json:"reason"`
	Status      BackorderStatus `bson:"status" json:"status"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
	ClosedAt    *time.Time      `bson:"closedAt,omitempty" json:"closedAt,omitempty"`
	ClosedBy    string          `bson:"closedBy,omitempty" json:"closedBy,omitempty"`
	Note        string          `bson:"note,omitempty" json:"note,omitempty"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewBackorder creates an OPEN backorder for the shortfall of line
func NewBackorder(tc tenant.Context, line OrderLine, shortfall decimal.Decimal, reason string) *Backorder {
	now := time.Now().UTC()
	b := &Backorder{
		ID:          uuid.New().String(),
		TenantID:    tc.TenantID,
		FacilityID:  tc.FacilityID,
		OrderID:     line.OrderID,
		OrderLineID: line.LineID,
		ItemID:      line.ItemID,
		Quantity:    shortfall,
		Reason:      reason,
		Status:      BackorderOpen,
		CreatedAt:   now,
	}
	b.AddDomainEvent(&BackorderCreatedEvent{
		BackorderID: b.ID,
		OrderID:     b.OrderID,
		OrderLineID: b.OrderLineID,
		ItemID:      b.ItemID,
		Quantity:    b.Quantity,
		Reason:      reason,
		CreatedAt:   now,
	})
	return b
}

// Resolve closes the backorder as fulfilled
func (b *Backorder) Resolve(actor, note string) error {
	return b.close(BackorderResolved, actor, note)
}

// Cancel closes the backorder without fulfilment
func (b *Backorder) Cancel(actor, note string) error {
	return b.close(BackorderCancelled, actor, note)
}

func (b *Backorder) close(status BackorderStatus, actor, note string) error {
	if b.Status != BackorderOpen {
		return ErrBackorderClosed
	}
	now := time.Now().UTC()
	b.Status = status
	b.ClosedAt = &now
	b.ClosedBy = actor
	b.Note = note
	b.AddDomainEvent(&BackorderClosedEvent{
		BackorderID: b.ID,
		OrderID:     b.OrderID,
		Status:      string(status),
		ClosedBy:    actor,
		ClosedAt:    now,
	})
	return nil
}

// AddDomainEvent adds a domain event
func (b *Backorder) AddDomainEvent(event DomainEvent) {
	b.DomainEvents = append(b.DomainEvents, event)
}

// PullDomainEvents returns and clears pending domain events
func (b *Backorder) PullDomainEvents() []DomainEvent {
	events := b.DomainEvents
	b.DomainEvents = nil
	return events
}

// Shortfall is the uncovered part of one demand line
type Shortfall struct {
	OrderLineID string          `json:"orderLineId"`
	ItemID      string          `json:"itemId"`
	Requested   decimal.Decimal `json:"requested"`
	Allocated   decimal.Decimal `json:"allocated"`
	Missing     decimal.Decimal `json:"missing"`
	BackorderID string          `json:"backorderId"`
}

// AllocationResult is the outcome of one allocation run
type AllocationResult struct {
	OrderID            string        `json:"orderId"`
	AllocationsCreated int           `json:"allocationsCreated"`
	Allocations        []*Allocation `json:"allocations"`
	Shortfalls         []Shortfall   `json:"shortfalls"`
	Released           int           `json:"released"`
}
