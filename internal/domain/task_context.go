package domain

import "github.com/shopspring/decimal"

// TaskContext carries the typed payload of a task. Exactly one member is set,
// matching the task type.
type TaskContext struct {
	Receive  *ReceiveContext  `bson:"receive,omitempty" json:"receive,omitempty"`
	Putaway  *PutawayContext  `bson:"putaway,omitempty" json:"putaway,omitempty"`
	Pick     *PickContext     `bson:"pick,omitempty" json:"pick,omitempty"`
	Pack     *ShipmentContext `bson:"pack,omitempty" json:"pack,omitempty"`
	Ship     *ShipmentContext `bson:"ship,omitempty" json:"ship,omitempty"`
	Count    *CountContext    `bson:"count,omitempty" json:"count,omitempty"`
	WavePick *WavePickContext `bson:"wavePick,omitempty" json:"wavePick,omitempty"`
}

// ReceiveContext drives a RECEIVE task: stock arrives at the staging location
type ReceiveContext struct {
	ReceiptID           string          `bson:"receiptId" json:"receiptId"`
	ReceiptLineID       string          `bson:"receiptLineId" json:"receiptLineId"`
	ItemID              string          `bson:"itemId" json:"itemId"`
	SKU                 string          `bson:"sku" json:"sku"`
	LotID               string          `bson:"lotId,omitempty" json:"lotId,omitempty"`
	ExpectedQty         decimal.Decimal `bson:"expectedQty" json:"expectedQty"`
	UnitCost            decimal.Decimal `bson:"unitCost" json:"unitCost"`
	StagingLocationID   string          `bson:"stagingLocationId" json:"stagingLocationId"`
	StagingLocationCode string          `bson:"stagingLocationCode" json:"stagingLocationCode"`
}

// PutawayContext drives a PUTAWAY task: staging to a bin
type PutawayContext struct {
	ItemID           string          `bson:"itemId" json:"itemId"`
	SKU              string          `bson:"sku" json:"sku"`
	LotID            string          `bson:"lotId,omitempty" json:"lotId,omitempty"`
	Quantity         decimal.Decimal `bson:"quantity" json:"quantity"`
	FromLocationID   string          `bson:"fromLocationId" json:"fromLocationId"`
	FromLocationCode string          `bson:"fromLocationCode" json:"fromLocationCode"`
	ToLocationID     string          `bson:"toLocationId" json:"toLocationId"`
	ToLocationCode   string          `bson:"toLocationCode" json:"toLocationCode"`
}

// PickContext drives a PICK task against one allocation
type PickContext struct {
	OrderID          string          `bson:"orderId" json:"orderId"`
	OrderLineID      string          `bson:"orderLineId" json:"orderLineId"`
	AllocationID     string          `bson:"allocationId" json:"allocationId"`
	ItemID           string          `bson:"itemId" json:"itemId"`
	SKU              string          `bson:"sku" json:"sku"`
	LotID            string          `bson:"lotId,omitempty" json:"lotId,omitempty"`
	ContainerID      string          `bson:"containerId,omitempty" json:"containerId,omitempty"`
	Quantity         decimal.Decimal `bson:"quantity" json:"quantity"`
	FromLocationID   string          `bson:"fromLocationId" json:"fromLocationId"`
	FromLocationCode string          `bson:"fromLocationCode" json:"fromLocationCode"`
	ToLocationID     string          `bson:"toLocationId" json:"toLocationId"`
	ToLocationCode   string          `bson:"toLocationCode" json:"toLocationCode"`
}

// ShipmentContext drives PACK and SHIP tasks for one order
type ShipmentContext struct {
	OrderID string `bson:"orderId" json:"orderId"`
}

// CountContext drives a blind COUNT task at one location
type CountContext struct {
	CountID      string `bson:"countId" json:"countId"`
	CountLineID  string `bson:"countLineId" json:"countLineId"`
	LocationID   string `bson:"locationId" json:"locationId"`
	LocationCode string `bson:"locationCode" json:"locationCode"`
	Mode         string `bson:"mode" json:"mode"`
}

// WavePickContext drives one consolidated multi-order pick
type WavePickContext struct {
	WaveID           string   `bson:"waveId" json:"waveId"`
	Plan             WavePlan `bson:"plan" json:"plan"`
	PackLocationID   string   `bson:"packLocationId" json:"packLocationId"`
	PackLocationCode string   `bson:"packLocationCode" json:"packLocationCode"`
}

// OrderID returns the order a task works for, if any
func (c TaskContext) OrderID() string {
	switch {
	case c.Pick != nil:
		return c.Pick.OrderID
	case c.Pack != nil:
		return c.Pack.OrderID
	case c.Ship != nil:
		return c.Ship.OrderID
	default:
		return ""
	}
}
