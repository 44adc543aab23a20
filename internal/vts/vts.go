// Package vts implements the virtual trading system: a deterministic
// matching engine that holds orders, positions, balances and margins,
// checks unfilled orders against bar OHLC, fills them, and recomputes
// account state in a fixed order on every bar.
package vts

import (
	"fmt"
	"sync"
	"time"

	"github.com/riverbt/nodeflow/pkg/bterr"
	"github.com/riverbt/nodeflow/pkg/model"
)

// Event is the tagged union of outbound VTS lifecycle events. At most
// one of the pointer fields is set; UpdateFinished carries none.
type Event struct {
	Kind                     EventKind
	Order                    *model.VirtualOrder
	Position                 *model.VirtualPosition
	Transaction              *model.VirtualTransaction
	LimitOrderExecutedPrice  float64
}

type EventKind string

const (
	EventFuturesOrderCreated         EventKind = "FuturesOrderCreated"
	EventFuturesOrderFilled          EventKind = "FuturesOrderFilled"
	EventFuturesOrderCanceled        EventKind = "FuturesOrderCanceled"
	EventLimitOrderExecutedDirectly  EventKind = "LimitOrderExecutedDirectly"
	EventPositionCreated             EventKind = "PositionCreated"
	EventPositionUpdated             EventKind = "PositionUpdated"
	EventPositionClosed              EventKind = "PositionClosed"
	EventTransactionCreated          EventKind = "TransactionCreated"
	EventUpdateFinished              EventKind = "UpdateFinished"
)

// Sink receives VTS events. Node.order/Node.position subscribe through
// the strategy context, which implements Sink by fanning events onto
// the relevant node output handles.
type Sink interface {
	Emit(Event)
}

// Context is the virtual trading system's state and the strategy
// context's exclusive owner of it; every method below must be called
// with the strategy context's single-writer discipline (spec.md §5:
// "VTS state exclusively accessed via an async mutex").
type Context struct {
	mu sync.Mutex

	sink Sink

	klinePrices map[model.KlineKey]model.Kline

	unfilledOrders  []model.VirtualOrder
	historyOrders   []model.VirtualOrder
	currentPositions []model.VirtualPosition
	historyPositions []model.VirtualPosition
	transactions    []model.VirtualTransaction

	InitialBalance float64
	Balance        float64
	AvailableBalance float64
	Equity         float64
	RealizedPnL    float64
	UnrealizedPnL  float64
	UsedMargin     float64
	FrozenMargin   float64
	MarginRatio    float64
	FeeRate        float64
	Leverage       float64

	orderSeq int
}

// New constructs a VTS context with the given initial account
// parameters. sink receives every emitted event.
func New(initialBalance, leverage, feeRate float64, sink Sink) *Context {
	return &Context{
		sink:             sink,
		klinePrices:      make(map[model.KlineKey]model.Kline),
		InitialBalance:   initialBalance,
		Balance:          initialBalance,
		AvailableBalance: initialBalance,
		Equity:           initialBalance,
		Leverage:         leverage,
		FeeRate:          feeRate,
	}
}

func (c *Context) emit(e Event) {
	if c.sink != nil {
		c.sink.Emit(e)
	}
}

func (c *Context) nextOrderID() string {
	c.orderSeq++
	return fmt.Sprintf("order-%d", c.orderSeq)
}

// Reset clears all orders/positions/transactions and restores available
// balance/margins to their initial state.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unfilledOrders = nil
	c.historyOrders = nil
	c.currentPositions = nil
	c.historyPositions = nil
	c.transactions = nil
	c.AvailableBalance = c.InitialBalance
	c.Balance = c.InitialBalance
	c.Equity = c.InitialBalance
	c.RealizedPnL = 0
	c.UnrealizedPnL = 0
	c.UsedMargin = 0
	c.FrozenMargin = 0
	c.MarginRatio = 0
}

// HandleKlineUpdate updates the cached price for key and runs the full
// bar recomputation (update_system) on every call.
func (c *Context) HandleKlineUpdate(key model.KlineKey, kline model.Kline) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.klinePrices[key] = kline
	return c.updateSystem(key, kline)
}

// updateSystem performs the bar recomputation in the exact required
// order. Caller must hold c.mu.
func (c *Context) updateSystem(key model.KlineKey, kline model.Kline) error {
	if err := c.checkUnfilledOrders(key, kline); err != nil {
		return err
	}
	c.updatePosition(key, kline)
	c.updateRealizedPnL()
	c.updateUnrealizedPnL()
	c.updateUsedMargin()
	c.updateFrozenMargin()
	c.updateBalance()
	c.updateEquity()
	c.updateAvailableBalance()
	c.updateMarginRatio()
	c.emit(Event{Kind: EventUpdateFinished})
	return nil
}

func (c *Context) updatePosition(key model.KlineKey, kline model.Kline) {
	for i := range c.currentPositions {
		p := &c.currentPositions[i]
		if p.Symbol != key.Symbol || p.Exchange != key.Exchange {
			continue
		}
		p.CurrentPrice = kline.Close
		p.UnrealizedPnL = unrealizedPnL(*p)
		c.emit(Event{Kind: EventPositionUpdated, Position: clonePosition(p)})
	}
}

func unrealizedPnL(p model.VirtualPosition) float64 {
	if p.Side == model.Long {
		return (p.CurrentPrice - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - p.CurrentPrice) * p.Quantity
}

func (c *Context) updateRealizedPnL() {
	var total float64
	for _, p := range c.historyPositions {
		total += p.RealizedPnL
	}
	c.RealizedPnL = total
}

func (c *Context) updateUnrealizedPnL() {
	var total float64
	for _, p := range c.currentPositions {
		total += p.UnrealizedPnL
	}
	c.UnrealizedPnL = total
}

func (c *Context) updateUsedMargin() {
	var total float64
	for _, p := range c.currentPositions {
		total += p.Margin
	}
	c.UsedMargin = total
}

func (c *Context) updateFrozenMargin() {
	var total float64
	for _, o := range c.unfilledOrders {
		if c.Leverage <= 0 {
			continue
		}
		total += (o.Quantity * o.OpenPrice) / c.Leverage
	}
	c.FrozenMargin = total
}

func (c *Context) updateBalance() {
	c.Balance = c.InitialBalance + c.RealizedPnL
}

func (c *Context) updateEquity() {
	c.Equity = c.Balance + c.UnrealizedPnL
}

func (c *Context) updateAvailableBalance() {
	c.AvailableBalance = c.Equity - c.UsedMargin - c.FrozenMargin
}

func (c *Context) updateMarginRatio() {
	if c.Equity == 0 {
		c.MarginRatio = 0
		return
	}
	c.MarginRatio = c.UsedMargin / c.Equity
}

func clonePosition(p *model.VirtualPosition) *model.VirtualPosition {
	cp := *p
	return &cp
}

// findKlinePrice returns the latest cached kline for (exchange, symbol),
// matching by exact exchange+symbol (any stored key's range/interval
// fields are ignored, mirroring the "latest kline for this symbol" cache
// semantics described in spec.md §4.2).
func (c *Context) findKlinePrice(exchange, symbol string) (model.Kline, error) {
	for k, v := range c.klinePrices {
		if k.Exchange == exchange && k.Symbol == symbol {
			return v, nil
		}
	}
	return model.Kline{}, bterr.ErrKlineKeyNotFound
}

// CreateOrderParams describes a new order request from an order node.
type CreateOrderParams struct {
	StrategyID    string
	NodeID        string
	NodeName      string
	OrderConfigID int
	Symbol        string
	Exchange      string
	Price         float64
	Side          model.OrderSide
	Type          model.OrderType
	Quantity      float64
	TP            *float64
	SL            *float64
	Now           time.Time
}

// CreateOrder implements the order-creation / immediate-fill rules from
// spec.md §4.2's order-triggering table for Market and Limit orders.
func (c *Context) CreateOrder(p CreateOrderParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kline, err := c.findKlinePrice(p.Exchange, p.Symbol)
	if err != nil {
		return err
	}
	currentPrice := kline.Close

	newOrder := func(price float64) model.VirtualOrder {
		o := model.VirtualOrder{
			OrderID:       c.nextOrderID(),
			StrategyID:    p.StrategyID,
			NodeID:        p.NodeID,
			NodeName:      p.NodeName,
			OrderConfigID: p.OrderConfigID,
			Symbol:        p.Symbol,
			Exchange:      p.Exchange,
			Side:          p.Side,
			Type:          p.Type,
			Status:        model.OrderCreated,
			Quantity:      p.Quantity,
			OpenPrice:     price,
			TP:            p.TP,
			SL:            p.SL,
			CreatedAt:     p.Now,
			UpdatedAt:     p.Now,
		}
		c.unfilledOrders = append(c.unfilledOrders, o)
		c.emit(Event{Kind: EventFuturesOrderCreated, Order: cloneOrder(&o)})
		return o
	}

	switch p.Type {
	case model.Market:
		order := newOrder(currentPrice)
		return c.executeOrder(order.OrderID, currentPrice, p.Now)

	case model.Limit:
		immediate := (p.Side == model.Long && p.Price >= currentPrice) ||
			(p.Side == model.Short && p.Price <= currentPrice)
		if immediate {
			order := newOrder(currentPrice)
			if err := c.executeOrder(order.OrderID, currentPrice, p.Now); err != nil {
				return err
			}
			c.emit(Event{Kind: EventLimitOrderExecutedDirectly, Order: &order, LimitOrderExecutedPrice: p.Price})
			return nil
		}
		newOrder(p.Price)
		return nil

	default:
		return bterr.ErrUnsupportedOrderType
	}
}

func cloneOrder(o *model.VirtualOrder) *model.VirtualOrder {
	cp := *o
	return &cp
}

// checkUnfilledOrders matches unfilled limit/stop/take-profit orders for
// (exchange, symbol) against the current bar's high/low per the trigger
// table in spec.md §4.2. Caller must hold c.mu.
func (c *Context) checkUnfilledOrders(key model.KlineKey, kline model.Kline) error {
	var ids []string
	for _, o := range c.unfilledOrders {
		if o.Exchange == key.Exchange && o.Symbol == key.Symbol &&
			(o.Status == model.OrderCreated || o.Status == model.OrderPlaced) {
			ids = append(ids, o.OrderID)
		}
	}

	for _, id := range ids {
		order, ok := c.findUnfilled(id)
		if !ok {
			continue
		}
		high, low := kline.High, kline.Low

		switch order.Type {
		case model.Limit:
			switch order.Side {
			case model.Long:
				if low <= order.OpenPrice {
					if err := c.executeOrder(order.OrderID, order.OpenPrice, kline.Datetime); err != nil {
						return err
					}
				}
			case model.Short:
				if high >= order.OpenPrice {
					if err := c.executeOrder(order.OrderID, order.OpenPrice, kline.Datetime); err != nil {
						return err
					}
				}
			}
		case model.StopMarket:
			switch order.Side {
			case model.Long:
				if high >= order.OpenPrice {
					if err := c.executeSLOrder(order.OrderID, kline.Datetime); err != nil {
						return err
					}
				}
			case model.Short:
				if low <= order.OpenPrice {
					if err := c.executeSLOrder(order.OrderID, kline.Datetime); err != nil {
						return err
					}
				}
			}
		case model.TakeProfitMarket:
			switch order.Side {
			case model.Long:
				if low <= order.OpenPrice {
					if err := c.executeTPOrder(order.OrderID, kline.Datetime); err != nil {
						return err
					}
				}
			case model.Short:
				if high >= order.OpenPrice {
					if err := c.executeTPOrder(order.OrderID, kline.Datetime); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (c *Context) findUnfilled(orderID string) (model.VirtualOrder, bool) {
	for _, o := range c.unfilledOrders {
		if o.OrderID == orderID {
			return o, true
		}
	}
	return model.VirtualOrder{}, false
}

func (c *Context) findUnfilledIndex(orderID string) int {
	for i, o := range c.unfilledOrders {
		if o.OrderID == orderID {
			return i
		}
	}
	return -1
}

// updateOrderStatus moves a terminal-status order from unfilled to
// history. Caller must hold c.mu.
func (c *Context) updateOrderStatus(orderID string, status model.OrderStatus, now time.Time) (model.VirtualOrder, error) {
	idx := c.findUnfilledIndex(orderID)
	if idx == -1 {
		return model.VirtualOrder{}, bterr.ErrOrderNotFound
	}
	c.unfilledOrders[idx].Status = status
	c.unfilledOrders[idx].UpdatedAt = now
	order := c.unfilledOrders[idx]
	if status.Terminal() {
		c.unfilledOrders = append(c.unfilledOrders[:idx], c.unfilledOrders[idx+1:]...)
		c.historyOrders = append(c.historyOrders, order)
	}
	return order, nil
}

// executeOrder fills order at fillPrice: opens a new position (entry
// orders) or, if the order carries a position_id (TP/SL), is handled by
// executeTPOrder/executeSLOrder instead. Caller must hold c.mu.
func (c *Context) executeOrder(orderID string, fillPrice float64, now time.Time) error {
	order, err := c.updateOrderStatus(orderID, model.OrderFilled, now)
	if err != nil {
		return err
	}
	order.OpenPrice = fillPrice

	position := model.VirtualPosition{
		PositionID:   fmt.Sprintf("pos-%s", order.OrderID),
		Symbol:       order.Symbol,
		Exchange:     order.Exchange,
		Side:         order.Side,
		Quantity:     order.Quantity,
		EntryPrice:   fillPrice,
		CurrentPrice: fillPrice,
		Margin:       (order.Quantity * fillPrice) / nonZero(c.Leverage),
		CreatedAt:    order.CreatedAt,
	}
	c.currentPositions = append(c.currentPositions, position)
	c.emit(Event{Kind: EventPositionCreated, Position: clonePosition(&position)})

	txn := model.VirtualTransaction{
		TransactionID: fmt.Sprintf("txn-%s", order.OrderID),
		OrderID:       order.OrderID,
		PositionID:    position.PositionID,
		Symbol:        order.Symbol,
		Exchange:      order.Exchange,
		Side:          order.Side,
		Quantity:      order.Quantity,
		Price:         fillPrice,
		CreatedAt:     order.UpdatedAt,
	}
	c.transactions = append(c.transactions, txn)
	c.emit(Event{Kind: EventTransactionCreated, Transaction: &txn})
	c.emit(Event{Kind: EventFuturesOrderFilled, Order: &order})

	if tp := createTPOrder(&order, &position); tp != nil {
		c.unfilledOrders = append(c.unfilledOrders, *tp)
	}
	if sl := createSLOrder(&order, &position); sl != nil {
		c.unfilledOrders = append(c.unfilledOrders, *sl)
	}
	return nil
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// createTPOrder builds the take-profit sibling for a freshly filled
// entry order, flipping side relative to the opened position's side.
func createTPOrder(order *model.VirtualOrder, position *model.VirtualPosition) *model.VirtualOrder {
	if order.TP == nil {
		return nil
	}
	pid := position.PositionID
	return &model.VirtualOrder{
		OrderID:    fmt.Sprintf("tp-%s", order.OrderID),
		StrategyID: order.StrategyID,
		NodeID:     order.NodeID,
		NodeName:   order.NodeName,
		Symbol:     order.Symbol,
		Exchange:   order.Exchange,
		Side:       position.Side.Opposite(),
		Type:       model.TakeProfitMarket,
		Status:     model.OrderPlaced,
		Quantity:   position.Quantity,
		OpenPrice:  *order.TP,
		PositionID: &pid,
		CreatedAt:  order.UpdatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
}

// createSLOrder builds the stop-loss sibling, symmetric with createTPOrder.
func createSLOrder(order *model.VirtualOrder, position *model.VirtualPosition) *model.VirtualOrder {
	if order.SL == nil {
		return nil
	}
	pid := position.PositionID
	return &model.VirtualOrder{
		OrderID:    fmt.Sprintf("sl-%s", order.OrderID),
		StrategyID: order.StrategyID,
		NodeID:     order.NodeID,
		NodeName:   order.NodeName,
		Symbol:     order.Symbol,
		Exchange:   order.Exchange,
		Side:       position.Side.Opposite(),
		Type:       model.StopMarket,
		Status:     model.OrderPlaced,
		Quantity:   position.Quantity,
		OpenPrice:  *order.SL,
		PositionID: &pid,
		CreatedAt:  order.UpdatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
}

// executeTPOrder / executeSLOrder close the parent position at the
// order's trigger price, realize P&L, move the position to history and
// cancel the sibling (SL cancels when TP fires, and vice versa).
func (c *Context) executeTPOrder(orderID string, now time.Time) error {
	return c.executeClosingOrder(orderID, now)
}
func (c *Context) executeSLOrder(orderID string, now time.Time) error {
	return c.executeClosingOrder(orderID, now)
}

func (c *Context) executeClosingOrder(orderID string, now time.Time) error {
	order, ok := c.findUnfilled(orderID)
	if !ok {
		return bterr.ErrOrderNotFound
	}
	if order.PositionID == nil {
		return bterr.ErrOrderNotFound
	}
	posIdx := c.findPositionIndex(*order.PositionID)
	if posIdx == -1 {
		return bterr.ErrOrderNotFound
	}
	position := c.currentPositions[posIdx]

	realized := unrealizedPnLAt(position, order.OpenPrice)
	position.CurrentPrice = order.OpenPrice
	position.RealizedPnL = realized
	closedAt := now
	position.ClosedAt = &closedAt

	c.currentPositions = append(c.currentPositions[:posIdx], c.currentPositions[posIdx+1:]...)
	c.historyPositions = append(c.historyPositions, position)
	c.emit(Event{Kind: EventPositionClosed, Position: clonePosition(&position)})

	if _, err := c.updateOrderStatus(orderID, model.OrderFilled, now); err != nil {
		return err
	}
	c.emit(Event{Kind: EventFuturesOrderFilled, Order: &order})

	txn := model.VirtualTransaction{
		TransactionID: fmt.Sprintf("txn-%s", orderID),
		OrderID:       orderID,
		PositionID:    position.PositionID,
		Symbol:        order.Symbol,
		Exchange:      order.Exchange,
		Side:          order.Side,
		Quantity:      order.Quantity,
		Price:         order.OpenPrice,
		RealizedPnL:   realized,
		CreatedAt:     now,
	}
	c.transactions = append(c.transactions, txn)
	c.emit(Event{Kind: EventTransactionCreated, Transaction: &txn})

	// cancel the sibling TP/SL order tied to the same position.
	for _, sib := range c.unfilledOrders {
		if sib.PositionID != nil && *sib.PositionID == position.PositionID && sib.OrderID != orderID {
			if _, err := c.updateOrderStatus(sib.OrderID, model.OrderCanceled, now); err != nil {
				return err
			}
			c.emit(Event{Kind: EventFuturesOrderCanceled, Order: &sib})
			break
		}
	}
	return nil
}

func unrealizedPnLAt(p model.VirtualPosition, price float64) float64 {
	if p.Side == model.Long {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}

func (c *Context) findPositionIndex(positionID string) int {
	for i, p := range c.currentPositions {
		if p.PositionID == positionID {
			return i
		}
	}
	return -1
}

// Snapshot returns a read-only copy of account state and order/position
// slices, used by the admin API and persistence layer.
type Snapshot struct {
	Balance, AvailableBalance, Equity float64
	RealizedPnL, UnrealizedPnL        float64
	UsedMargin, FrozenMargin, MarginRatio float64
	UnfilledOrders   []model.VirtualOrder
	HistoryOrders    []model.VirtualOrder
	CurrentPositions []model.VirtualPosition
	HistoryPositions []model.VirtualPosition
	Transactions     []model.VirtualTransaction
}

func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Balance:          c.Balance,
		AvailableBalance: c.AvailableBalance,
		Equity:           c.Equity,
		RealizedPnL:      c.RealizedPnL,
		UnrealizedPnL:    c.UnrealizedPnL,
		UsedMargin:       c.UsedMargin,
		FrozenMargin:     c.FrozenMargin,
		MarginRatio:      c.MarginRatio,
		UnfilledOrders:   append([]model.VirtualOrder{}, c.unfilledOrders...),
		HistoryOrders:    append([]model.VirtualOrder{}, c.historyOrders...),
		CurrentPositions: append([]model.VirtualPosition{}, c.currentPositions...),
		HistoryPositions: append([]model.VirtualPosition{}, c.historyPositions...),
		Transactions:     append([]model.VirtualTransaction{}, c.transactions...),
	}
}
