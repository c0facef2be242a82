package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// ShipmentStatus is the outbound lifecycle of an order
type ShipmentStatus string

const (
	ShipmentCreated ShipmentStatus = "CREATED"
	ShipmentPacked  ShipmentStatus = "PACKED"
	ShipmentShipped ShipmentStatus = "SHIPPED"
)

// HandlingUnitStatus is the lifecycle of a physical container
type HandlingUnitStatus string

const (
	HandlingUnitOpen    HandlingUnitStatus = "OPEN"
	HandlingUnitClosed  HandlingUnitStatus = "CLOSED"
	HandlingUnitShipped HandlingUnitStatus = "SHIPPED"
)

// Shipment is created on first pack of an order
type Shipment struct {
	ID              string         `bson:"_id" json:"id"`
	TenantID        string         `bson:"tenantId" json:"tenantId"`
	FacilityID      string         `bson:"facilityId" json:"facilityId"`
	OrderID         string         `bson:"orderId" json:"orderId"`
	Status          ShipmentStatus `bson:"status" json:"status"`
	HandlingUnitIDs []string       `bson:"handlingUnitIds" json:"handlingUnitIds"`
	CreatedAt       time.Time      `bson:"createdAt" json:"createdAt"`
	PackedAt        *time.Time     `bson:"packedAt,omitempty" json:"packedAt,omitempty"`
	ShippedAt       *time.Time     `bson:"shippedAt,omitempty" json:"shippedAt,omitempty"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewShipment creates a CREATED shipment for an order
func NewShipment(tc tenant.Context, orderID string) *Shipment {
	return &Shipment{
		ID:              uuid.New().String(),
		TenantID:        tc.TenantID,
		FacilityID:      tc.FacilityID,
		OrderID:         orderID,
		Status:          ShipmentCreated,
		HandlingUnitIDs: []string{},
		CreatedAt:       time.Now().UTC(),
	}
}

// Link associates a handling unit once
func (s *Shipment) Link(hu *HandlingUnit) {
	for _, id := range s.HandlingUnitIDs {
		if id == hu.ID {
			return
		}
	}
	s.HandlingUnitIDs = append(s.HandlingUnitIDs, hu.ID)
	hu.ShipmentID = s.ID
}

// Pack marks the shipment PACKED. lpn is the scanned container, if any.
func (s *Shipment) Pack(lpn string) {
	now := time.Now().UTC()
	s.Status = ShipmentPacked
	s.PackedAt = &now
	s.AddDomainEvent(&ShipmentPackedEvent{ShipmentID: s.ID, OrderID: s.OrderID, LPN: lpn, PackedAt: now})
}

// Ship marks the shipment SHIPPED
func (s *Shipment) Ship(lpn string) {
	now := time.Now().UTC()
	s.Status = ShipmentShipped
	s.ShippedAt = &now
	s.AddDomainEvent(&ShipmentShippedEvent{ShipmentID: s.ID, OrderID: s.OrderID, LPN: lpn, ShippedAt: now})
}

// AddDomainEvent adds a domain event
func (s *Shipment) AddDomainEvent(event DomainEvent) {
	s.DomainEvents = append(s.DomainEvents, event)
}

// PullDomainEvents returns and clears pending domain events
func (s *Shipment) PullDomainEvents() []DomainEvent {
	events := s.DomainEvents
	s.DomainEvents = nil
	return events
}

// HandlingUnit is a labelled container (LPN)
type HandlingUnit struct {
	ID         string             `bson:"_id" json:"id"`
	TenantID   string             `bson:"tenantId" json:"tenantId"`
	FacilityID string             `bson:"facilityId" json:"facilityId"`
	LPN        string             `bson:"lpn" json:"lpn"`
	Status     HandlingUnitStatus `bson:"status" json:"status"`
	ShipmentID string             `bson:"shipmentId,omitempty" json:"shipmentId,omitempty"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewHandlingUnit creates an OPEN handling unit
func NewHandlingUnit(tc tenant.Context, lpn string) *HandlingUnit {
	return &HandlingUnit{
		ID:         uuid.New().String(),
		TenantID:   tc.TenantID,
		FacilityID: tc.FacilityID,
		LPN:        lpn,
		Status:     HandlingUnitOpen,
		UpdatedAt:  time.Now().UTC(),
	}
}

// Close seals the unit after packing
func (h *HandlingUnit) Close() {
	h.Status = HandlingUnitClosed
	h.UpdatedAt = time.Now().UTC()
}

// MarkShipped records the unit leaving the building
func (h *HandlingUnit) MarkShipped() {
	h.Status = HandlingUnitShipped
	h.UpdatedAt = time.Now().UTC()
}
