// Package indicator implements the indicator node (spec.md §4.5): on
// each upstream KlineUpdate matching its configured (symbol, interval),
// either re-publishes a precomputed slice (min-interval case) or buffers
// bars locally and calls the external indicator engine once it has
// enough lookback.
package indicator

import (
	"github.com/anthdm/hollywood/actor"

	klinepkg "github.com/riverbt/nodeflow/internal/node/kline"
	"github.com/riverbt/nodeflow/internal/node"
	"github.com/riverbt/nodeflow/internal/strategycmd"
	"github.com/riverbt/nodeflow/pkg/model"
)

// Engine is the consumed external indicator-calculation interface
// (spec.md §6): calculate_history_indicator.
type Engine interface {
	CalculateHistoryIndicator(key model.IndicatorKey, series []model.Kline, cfg model.IndicatorConfig) ([]model.IndicatorValue, error)
}

type Config struct {
	Symbol      string
	Exchange    string
	Interval    model.Interval
	IsMinInterval bool
	Lookback    int
	IndicatorConfig model.IndicatorConfig
}

type Handler struct {
	Base   *node.Base
	Config Config
	Engine Engine

	buffer []model.Kline
	key    model.IndicatorKey
}

func New(base *node.Base, cfg Config, engine Engine) *Handler {
	return &Handler{Base: base, Config: cfg, Engine: engine}
}

func (h *Handler) HandleCommand(ctx *actor.Context, cmd any) error {
	if _, ok := cmd.(node.NodeReset); ok {
		h.buffer = nil
	}
	return nil
}

func (h *Handler) HandleEngineEvent(ctx *actor.Context, evt any) error { return nil }

func (h *Handler) HandleSourceNodeEvent(ctx *actor.Context, from string, evt any) error {
	upd, ok := evt.(klinepkg.KlineUpdatePayload)
	if !ok {
		return nil
	}
	if upd.Key.Symbol != h.Config.Symbol || upd.Key.Exchange != h.Config.Exchange || upd.Key.Interval != h.Config.Interval {
		return nil
	}

	if h.Config.IsMinInterval {
		limit := 1
		reply := make(chan strategycmd.GetIndicatorDataReply, 1)
		ctx.Send(h.Base.StrategyPID, strategycmd.GetIndicatorDataCmd{NodeID: h.Base.ID, Key: h.key, Datetime: &upd.Kline.Datetime, Limit: &limit, Reply: reply})
		r := <-reply
		if r.Err != nil || len(r.Records) == 0 {
			h.Base.DefaultOutput.Emit(ctx, triggerEvent{CycleID: upd.CycleID})
			return h.executeOver(ctx, upd.CycleID)
		}
		h.Base.DefaultOutput.Emit(ctx, IndicatorUpdateEvent{Key: h.key, Value: r.Records[len(r.Records)-1], CycleID: upd.CycleID})
		return h.executeOver(ctx, upd.CycleID)
	}

	h.buffer = append(h.buffer, upd.Kline)
	if len(h.buffer) < h.Config.Lookback+1 {
		h.Base.DefaultOutput.Emit(ctx, triggerEvent{CycleID: upd.CycleID})
		return h.executeOver(ctx, upd.CycleID)
	}

	values, err := h.Engine.CalculateHistoryIndicator(h.key, h.buffer, h.Config.IndicatorConfig)
	if err != nil || len(values) == 0 {
		h.Base.DefaultOutput.Emit(ctx, triggerEvent{CycleID: upd.CycleID})
		return h.executeOver(ctx, upd.CycleID)
	}
	latest := values[len(values)-1]

	reply := make(chan error, 1)
	ctx.Send(h.Base.StrategyPID, strategycmd.UpdateIndicatorDataCmd{NodeID: h.Base.ID, Key: h.key, Record: latest, Reply: reply})
	<-reply

	h.Base.DefaultOutput.Emit(ctx, IndicatorUpdateEvent{Key: h.key, Value: latest, CycleID: upd.CycleID})
	return h.executeOver(ctx, upd.CycleID)
}

func (h *Handler) executeOver(ctx *actor.Context, cycleID int64) error {
	if h.Base.IsLeaf() {
		ctx.Send(h.Base.StrategyPID, strategycmd.ExecuteOverCmd{NodeID: h.Base.ID, CycleID: cycleID})
	}
	return nil
}

// IndicatorUpdateEvent is the published payload consumed by downstream
// if/else, variable and order nodes.
type IndicatorUpdateEvent struct {
	Key     model.IndicatorKey
	Value   model.IndicatorValue
	CycleID int64
}

// triggerEvent is the "empty, I processed this cycle" forward-progress
// signal emitted when the buffer is too short or calculation failed.
type triggerEvent struct {
	CycleID int64
}
