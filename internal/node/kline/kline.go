// Package kline implements the K-line source node (spec.md §4.5): loads
// history for a configured symbol/interval/range on init, then replays
// one bar per cycle tick from its own cached series.
package kline

import (
	"time"

	"github.com/anthdm/hollywood/actor"

	"github.com/riverbt/nodeflow/internal/node"
	"github.com/riverbt/nodeflow/internal/strategycmd"
	"github.com/riverbt/nodeflow/pkg/bterr"
	"github.com/riverbt/nodeflow/pkg/model"
)

// Source is the consumed exchange client interface (spec.md §6):
// kline_history and support_kline_intervals.
type Source interface {
	KlineHistory(exchange, symbol string, interval model.Interval, start, end time.Time) ([]model.Kline, error)
	SupportedIntervals(exchange string) ([]model.Interval, error)
}

// Config is the node's parsed backtestConfig.
type Config struct {
	Account  string
	Symbol   string
	Exchange string
	Interval model.Interval
	Start    time.Time
	End      time.Time
}

// Handler implements node.EventHandler for the K-line source node kind.
type Handler struct {
	Base   *node.Base
	Config Config
	Source Source

	cached     []model.Kline
	key        model.KlineKey
	minInterval model.Interval
}

func New(base *node.Base, cfg Config, source Source) *Handler {
	return &Handler{Base: base, Config: cfg, Source: source}
}

func (h *Handler) key0() model.KlineKey {
	return model.KlineKey{Exchange: h.Config.Exchange, Symbol: h.Config.Symbol, Interval: h.Config.Interval, RangeStart: h.Config.Start, RangeEnd: h.Config.End}
}

func (h *Handler) HandleCommand(ctx *actor.Context, cmd any) error {
	switch cmd.(type) {
	case node.StartInit:
		return h.init(ctx)
	case node.NodeReset:
		// the loaded history is kept: it is not per-cycle scratch state,
		// and the restarted cycle driver replays it from play_index 0.
		return nil
	}
	return nil
}

func (h *Handler) init(ctx *actor.Context) error {
	if h.Config.Account == "" {
		return bterr.ErrDataSourceAccountIsNotConfigured
	}
	if h.Config.Symbol == "" {
		return bterr.ErrSymbolsIsNotConfigured
	}
	if h.Config.Start.IsZero() || h.Config.End.IsZero() {
		return bterr.ErrTimeRangeIsNotConfigured
	}

	history, err := h.Source.KlineHistory(h.Config.Exchange, h.Config.Symbol, h.Config.Interval, h.Config.Start, h.Config.End)
	if err != nil {
		return bterr.ErrLoadKlineFromExchangeFailed.WithCause(err)
	}
	if len(history) == 0 || history[0].Datetime.After(h.Config.Start) {
		return bterr.ErrInsufficientHistory
	}

	h.key = h.key0()
	h.cached = history

	reply := make(chan error, 1)
	ctx.Send(h.Base.StrategyPID, strategycmd.InitKlineDataCmd{NodeID: h.Base.ID, Key: h.key, Series: history, Reply: reply})
	if err := <-reply; err != nil {
		return err
	}

	intervalReply := make(chan strategycmd.GetMinIntervalReply, 1)
	ctx.Send(h.Base.StrategyPID, strategycmd.GetMinIntervalCmd{NodeID: h.Base.ID, Reply: intervalReply})
	h.minInterval = (<-intervalReply).Interval
	return nil
}

func (h *Handler) HandleSourceNodeEvent(ctx *actor.Context, from string, evt any) error {
	return nil
}

// HandleEngineEvent processes a cycle tick: only the min-interval K-line
// drives advancement, so a node configured at a coarser interval simply
// skips ticks until its own slice has a bar for this cycle's timestamp.
func (h *Handler) HandleEngineEvent(ctx *actor.Context, evt any) error {
	tick, ok := evt.(node.CycleTick)
	if !ok {
		return nil
	}

	var bar model.Kline
	if h.Config.Interval == h.minInterval {
		idx := int(tick.PlayIndex)
		if idx < 0 || idx >= len(h.cached) {
			return nil
		}
		bar = h.cached[idx]
		if !bar.Datetime.Equal(tick.Time) {
			return bterr.ErrKlineTimestampNotEqual
		}
	} else {
		found := false
		for _, k := range h.cached {
			if k.Datetime.Equal(tick.Time) {
				bar, found = k, true
				break
			}
		}
		if !found {
			return nil
		}
	}

	h.Base.DefaultOutput.Emit(ctx, KlineUpdatePayload{Key: h.key, Kline: bar, CycleID: tick.PlayIndex})

	if h.Base.IsLeaf() {
		ctx.Send(h.Base.StrategyPID, strategycmd.ExecuteOverCmd{NodeID: h.Base.ID, CycleID: tick.PlayIndex})
	}
	return nil
}

// KlineUpdatePayload is the (KlineKey, Kline, cycle_id) payload of a
// K-line update; it carries no separate strategy time. It is published
// on the node's default output
// and forwarded to the strategy context via the strategy-bound handle.
type KlineUpdatePayload struct {
	Key     model.KlineKey
	Kline   model.Kline
	CycleID int64
}
