// Package order implements the order node (spec.md §4.5): on a trigger
// from an upstream condition (if/else case match), builds a VirtualOrder
// from its configured parameters and sends it to the virtual trading
// system via the strategy context's command protocol.
package order

import (
	"github.com/anthdm/hollywood/actor"

	"github.com/riverbt/nodeflow/internal/node"
	"github.com/riverbt/nodeflow/internal/node/ifelse"
	"github.com/riverbt/nodeflow/internal/strategycmd"
	"github.com/riverbt/nodeflow/pkg/model"
)

// Config is the node's fixed order template; the triggering case only
// decides whether the order fires, not its parameters.
type Config struct {
	OrderConfigID int
	Symbol        string
	Exchange      string
	Side          model.OrderSide
	Type          model.OrderType
	Quantity      float64
	LimitPrice    float64 // used when Type == model.Limit
	TP            *float64
	SL            *float64
}

type Handler struct {
	Base   *node.Base
	Config Config
}

func New(base *node.Base, cfg Config) *Handler {
	return &Handler{Base: base, Config: cfg}
}

func (h *Handler) HandleCommand(ctx *actor.Context, cmd any) error { return nil }

func (h *Handler) HandleEngineEvent(ctx *actor.Context, evt any) error { return nil }

func (h *Handler) HandleSourceNodeEvent(ctx *actor.Context, from string, evt any) error {
	if trig, ok := evt.(ifelse.TriggerEvent); ok {
		// the last case did not match: no order, only cycle completion.
		return h.executeOver(ctx, trig.CycleID)
	}
	match, ok := evt.(ifelse.ConditionMatchEvent)
	if !ok {
		return nil
	}
	if match.CaseID == nil {
		// the default else branch never triggers an order.
		return h.executeOver(ctx, match.CycleID)
	}

	price := h.Config.LimitPrice
	reply := make(chan error, 1)
	ctx.Send(h.Base.StrategyPID, strategycmd.CreateVirtualOrderCmd{
		NodeID: h.Base.ID,
		Params: strategycmd.VirtualOrderParams{
			OrderConfigID: h.Config.OrderConfigID,
			Symbol:        h.Config.Symbol,
			Exchange:      h.Config.Exchange,
			Price:         price,
			Side:          h.Config.Side,
			Type:          h.Config.Type,
			Quantity:      h.Config.Quantity,
			TP:            h.Config.TP,
			SL:            h.Config.SL,
		},
		Reply: reply,
	})
	if err := <-reply; err != nil {
		h.Base.Log.Error().Err(err).Str("case_id", *match.CaseID).Msg("order creation failed")
	}

	return h.executeOver(ctx, match.CycleID)
}

func (h *Handler) executeOver(ctx *actor.Context, cycleID int64) error {
	if h.Base.IsLeaf() {
		ctx.Send(h.Base.StrategyPID, strategycmd.ExecuteOverCmd{NodeID: h.Base.ID, CycleID: cycleID})
	}
	return nil
}
