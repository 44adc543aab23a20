// Package position implements the position node (spec.md §4.5): a
// pass-through sink that receives VTS position lifecycle events forwarded
// by the strategy context and republishes them on its own output, so a
// strategy graph can branch on "position opened/updated/closed" the same
// way it branches on kline or indicator updates.
package position

import (
	"github.com/anthdm/hollywood/actor"

	"github.com/riverbt/nodeflow/internal/node"
	"github.com/riverbt/nodeflow/internal/strategycmd"
	"github.com/riverbt/nodeflow/internal/vts"
	"github.com/riverbt/nodeflow/pkg/model"
)

type Config struct {
	Symbol   string
	Exchange string
}

type Handler struct {
	Base    *node.Base
	Config  Config
	cycleID int64
}

func New(base *node.Base, cfg Config) *Handler {
	return &Handler{Base: base, Config: cfg}
}

func (h *Handler) HandleCommand(ctx *actor.Context, cmd any) error { return nil }

func (h *Handler) HandleEngineEvent(ctx *actor.Context, evt any) error {
	tick, ok := evt.(node.CycleTick)
	if !ok {
		return nil
	}
	h.cycleID = tick.PlayIndex

	// A position node is normally a leaf (spec.md line 169: pass-through
	// sink for leaf-node completion), but VTS only emits a position event
	// for a symbol/exchange with a currently open position — any bar
	// before the first entry, or after a close, delivers nothing to
	// HandleSourceNodeEvent. The cycle barrier must still see this leaf
	// complete every cycle, so signal here unconditionally rather than
	// only on a matching VTS event.
	if h.Base.IsLeaf() {
		ctx.Send(h.Base.StrategyPID, strategycmd.ExecuteOverCmd{NodeID: h.Base.ID, CycleID: h.cycleID})
	}
	return nil
}

// HandleSourceNodeEvent receives VTS events the strategy context forwards
// to every position node watching the affected symbol/exchange.
func (h *Handler) HandleSourceNodeEvent(ctx *actor.Context, from string, evt any) error {
	e, ok := evt.(vts.Event)
	if !ok {
		return nil
	}

	switch e.Kind {
	case vts.EventPositionCreated, vts.EventPositionUpdated, vts.EventPositionClosed:
		if e.Position == nil || !h.matches(e.Position.Symbol, e.Position.Exchange) {
			return nil
		}
		h.Base.DefaultOutput.Emit(ctx, UpdateEvent{Kind: string(e.Kind), Position: *e.Position})
	default:
		return nil
	}

	if h.Base.IsLeaf() {
		ctx.Send(h.Base.StrategyPID, strategycmd.ExecuteOverCmd{NodeID: h.Base.ID, CycleID: h.cycleID})
	}
	return nil
}

func (h *Handler) matches(symbol, exchange string) bool {
	return (h.Config.Symbol == "" || h.Config.Symbol == symbol) &&
		(h.Config.Exchange == "" || h.Config.Exchange == exchange)
}

// UpdateEvent is the republished position lifecycle notification.
type UpdateEvent struct {
	Kind     string
	Position model.VirtualPosition
}
