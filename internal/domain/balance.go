package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// BalanceState is the disposition of a quantity at a location
type BalanceState string

const (
	StateAvailable  BalanceState = "AVAILABLE"
	StateReserved   BalanceState = "RESERVED"
	StateQuarantine BalanceState = "QUARANTINE"
	StateHold       BalanceState = "HOLD"
)

// IsValid checks if the state is a known balance state
func (s BalanceState) IsValid() bool {
	switch s {
	case StateAvailable, StateReserved, StateQuarantine, StateHold:
		return true
	default:
		return false
	}
}

// BalanceKey identifies one balance row within a tenant and facility
type BalanceKey struct {
	ItemID      string
	LocationID  string
	LotID       string
	ContainerID string
	State       BalanceState
}

func (k BalanceKey) String() string {
	return strings.Join([]string{k.ItemID, k.LocationID, k.LotID, k.ContainerID, string(k.State)}, "|")
}

// BalanceID is the storage key of a balance row
func BalanceID(tc tenant.Context, key BalanceKey) string {
	return tc.TenantID + "|" + tc.FacilityID + "|" + key.String()
}

// Balance is the projected quantity for one key. Rows are created lazily and
// never deleted; they may sit at zero.
type Balance struct {
	ID          string          `bson:"_id" json:"id"`
	TenantID    string          `bson:"tenantId" json:"tenantId"`
	FacilityID  string          `bson:"facilityId" json:"facilityId"`
	ItemID      string          `bson:"itemId" json:"itemId"`
	LocationID  string          `bson:"locationId" json:"locationId"`
	LotID       string          `bson:"lotId" json:"lotId,omitempty"`
	ContainerID string          `bson:"containerId" json:"containerId,omitempty"`
	State       BalanceState    `bson:"state" json:"state"`
	Quantity    decimal.Decimal `bson:"quantity" json:"quantity"`
	LockVersion int64           `bson:"lockVersion" json:"-"`
	UpdatedAt   time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// NewBalance creates an empty balance row for key
func NewBalance(tc tenant.Context, key BalanceKey) *Balance {
	return &Balance{
		ID:          BalanceID(tc, key),
		TenantID:    tc.TenantID,
		FacilityID:  tc.FacilityID,
		ItemID:      key.ItemID,
		LocationID:  key.LocationID,
		LotID:       key.LotID,
		ContainerID: key.ContainerID,
		State:       key.State,
		Quantity:    decimal.Zero,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Key returns the balance key
func (b *Balance) Key() BalanceKey {
	return BalanceKey{
		ItemID:      b.ItemID,
		LocationID:  b.LocationID,
		LotID:       b.LotID,
		ContainerID: b.ContainerID,
		State:       b.State,
	}
}

// Apply adds delta to the balance. A result below zero is rejected and leaves
// the balance untouched.
func (b *Balance) Apply(delta decimal.Decimal) error {
	next := b.Quantity.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: %s %s at %s has %s, needs %s",
			ErrInsufficientInventory, b.State, b.ItemID, b.LocationID, b.Quantity, delta.Neg())
	}
	b.Quantity = next
	b.UpdatedAt = time.Now().UTC()
	return nil
}
