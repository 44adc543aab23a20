package model

import "time"

// OrderSide is the direction of a virtual order or position.
type OrderSide string

const (
	Long  OrderSide = "long"
	Short OrderSide = "short"
)

// Opposite flips the side, used when constructing a TP/SL order against
// an existing position.
func (s OrderSide) Opposite() OrderSide {
	if s == Long {
		return Short
	}
	return Long
}

// OrderType is the trigger kind of a virtual order.
type OrderType string

const (
	Market            OrderType = "market"
	Limit             OrderType = "limit"
	StopMarket        OrderType = "stop_market"
	TakeProfitMarket  OrderType = "take_profit_market"
)

// OrderStatus is the lifecycle state of a virtual order.
type OrderStatus string

const (
	OrderCreated  OrderStatus = "created"
	OrderPlaced   OrderStatus = "placed"
	OrderFilled   OrderStatus = "filled"
	OrderCanceled OrderStatus = "canceled"
	OrderExpired  OrderStatus = "expired"
	OrderRejected OrderStatus = "rejected"
)

// Terminal reports whether status is one that migrates the order from
// unfilled_orders to history_orders.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderExpired, OrderRejected:
		return true
	default:
		return false
	}
}

// VirtualOrder is an order tracked by the virtual trading system.
type VirtualOrder struct {
	OrderID      string
	StrategyID   string
	NodeID       string
	NodeName     string
	OrderConfigID int
	Symbol       string
	Exchange     string
	Side         OrderSide
	Type         OrderType
	Status       OrderStatus
	Quantity     float64
	OpenPrice    float64
	TP           *float64
	SL           *float64
	PositionID   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// VirtualPosition is an open or closed position tracked by the VTS.
type VirtualPosition struct {
	PositionID    string
	Symbol        string
	Exchange      string
	Side          OrderSide
	Quantity      float64
	EntryPrice    float64
	CurrentPrice  float64
	RealizedPnL   float64
	UnrealizedPnL float64
	Leverage      float64
	Margin        float64
	CreatedAt     time.Time
	ClosedAt      *time.Time
}

// VirtualTransaction is an immutable fill record.
type VirtualTransaction struct {
	TransactionID string
	OrderID       string
	PositionID    string
	Symbol        string
	Exchange      string
	Side          OrderSide
	Quantity      float64
	Price         float64
	RealizedPnL   float64
	CreatedAt     time.Time
}
