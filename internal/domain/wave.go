package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// WaveStatus is the wave lifecycle
type WaveStatus string

const (
	WavePlanned  WaveStatus = "PLANNED"
	WaveReleased WaveStatus = "RELEASED"
	WaveDone     WaveStatus = "DONE"
)

// WaveOrderStatus tracks one order through the wave
type WaveOrderStatus string

const (
	WaveOrderInWave  WaveOrderStatus = "IN_WAVE"
	WaveOrderPicking WaveOrderStatus = "PICKING"
	WaveOrderDone    WaveOrderStatus = "DONE"
)

// WaveOrder is an order batched into a wave
type WaveOrder struct {
	OrderID string          `bson:"orderId" json:"orderId"`
	Status  WaveOrderStatus `bson:"status" json:"status"`
	Tote    string          `bson:"tote,omitempty" json:"tote,omitempty"`
}

// Wave batches orders into one consolidated pick
type Wave struct {
	ID         string      `bson:"_id" json:"id"`
	TenantID   string      `bson:"tenantId" json:"tenantId"`
	FacilityID string      `bson:"facilityId" json:"facilityId"`
	Status     WaveStatus  `bson:"status" json:"status"`
	Orders     []WaveOrder `bson:"orders" json:"orders"`
	PickTaskID string      `bson:"pickTaskId,omitempty" json:"pickTaskId,omitempty"`
	Cart       string      `bson:"cart,omitempty" json:"cart,omitempty"`
	CreatedAt  time.Time   `bson:"createdAt" json:"createdAt"`
	ReleasedAt *time.Time  `bson:"releasedAt,omitempty" json:"releasedAt,omitempty"`
	ReleasedBy string      `bson:"releasedBy,omitempty" json:"releasedBy,omitempty"`
	UpdatedAt  time.Time   `bson:"updatedAt" json:"updatedAt"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewWave creates a PLANNED wave. Blank and repeated order ids are dropped.
func NewWave(tc tenant.Context, orderIDs []string) (*Wave, error) {
	seen := make(map[string]bool)
	var orders []WaveOrder
	for _, id := range orderIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		orders = append(orders, WaveOrder{OrderID: id, Status: WaveOrderInWave})
	}
	if len(orders) == 0 {
		return nil, ErrEmptyWave
	}

	now := time.Now().UTC()
	w := &Wave{
		ID:         uuid.New().String(),
		TenantID:   tc.TenantID,
		FacilityID: tc.FacilityID,
		Status:     WavePlanned,
		Orders:     orders,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	w.AddDomainEvent(&WaveCreatedEvent{
		WaveID:    w.ID,
		OrderIDs:  w.OrderIDs(),
		CreatedAt: now,
	})
	return w, nil
}

// OrderIDs lists the wave orders in wave order
func (w *Wave) OrderIDs() []string {
	ids := make([]string, 0, len(w.Orders))
	for _, o := range w.Orders {
		ids = append(ids, o.OrderID)
	}
	return ids
}

// Release moves the wave to RELEASED with its consolidated pick task
func (w *Wave) Release(pickTaskID string, plan WavePlan, actor string) error {
	if w.Status != WavePlanned {
		return ErrWaveNotPlanned
	}
	now := time.Now().UTC()
	for i := range w.Orders {
		w.Orders[i].Status = WaveOrderPicking
		w.Orders[i].Tote = plan.ToteFor(w.Orders[i].OrderID)
	}
	w.Status = WaveReleased
	w.PickTaskID = pickTaskID
	w.Cart = plan.Cart
	w.ReleasedAt = &now
	w.ReleasedBy = actor
	w.UpdatedAt = now

	totes := make(map[string]string, len(plan.Totes))
	for _, t := range plan.Totes {
		totes[t.OrderID] = t.Tote
	}
	w.AddDomainEvent(&WaveReleasedEvent{
		WaveID:     w.ID,
		PickTaskID: pickTaskID,
		OrderIDs:   w.OrderIDs(),
		Cart:       plan.Cart,
		Totes:      totes,
		StopCount:  len(plan.Stops),
		ReleasedBy: actor,
		ReleasedAt: now,
	})
	return nil
}

// MarkOrdersDone closes the wave once its pick has been finalized
func (w *Wave) MarkOrdersDone() {
	for i := range w.Orders {
		w.Orders[i].Status = WaveOrderDone
	}
	w.Status = WaveDone
	w.UpdatedAt = time.Now().UTC()
}

// AddDomainEvent adds a domain event
func (w *Wave) AddDomainEvent(event DomainEvent) {
	w.DomainEvents = append(w.DomainEvents, event)
}

// PullDomainEvents returns and clears pending domain events
func (w *Wave) PullDomainEvents() []DomainEvent {
	events := w.DomainEvents
	w.DomainEvents = nil
	return events
}
