// Package engine is the strategy context (C6): it owns the parsed graph,
// the K-line and indicator time-series stores, the virtual trading
// system, the custom/sys variable maps and the cycle driver, and is the
// exclusive recipient of every node's output (grounded on
// internal/exchange/exchange.go's parent-actor-wires-children pattern,
// generalized to spec.md §4.6's command protocol and init sequence).
package engine

import (
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"

	"github.com/riverbt/nodeflow/internal/event"
	"github.com/riverbt/nodeflow/internal/node"
	"github.com/riverbt/nodeflow/internal/node/indicator"
	"github.com/riverbt/nodeflow/internal/node/kline"
	"github.com/riverbt/nodeflow/internal/nodefsm"
	"github.com/riverbt/nodeflow/internal/strategycmd"
	"github.com/riverbt/nodeflow/internal/tsstore"
	"github.com/riverbt/nodeflow/internal/vts"
	"github.com/riverbt/nodeflow/pkg/bterr"
	"github.com/riverbt/nodeflow/pkg/model"
)

// Control messages the API/admin layer sends to a running strategy.
type (
	Build     struct{ Graph []byte }
	Play      struct{ Reply chan error }
	Pause     struct{ Reply chan error }
	Stop      struct{ Reply chan error }
	ResetRun  struct{ Reply chan error }
	GetStats  struct{ Reply chan vts.Snapshot }
)

// Strategy is the hollywood actor.Receiver implementing C6.
type Strategy struct {
	id     string
	log    zerolog.Logger
	bus    event.Bus
	source kline.Source
	engine indicator.Engine

	initialBalance, leverage, feeRate float64

	graph *GraphDoc

	klineStore     *tsstore.Store[model.KlineKey, model.Kline]
	indicatorStore *tsstore.Store[model.IndicatorKey, model.IndicatorValue]
	vts            *vts.Context

	customVars map[string]float64
	sysVars    map[string]float64

	nodeBase map[string]*node.Base
	nodePID  map[string]*actor.PID
	nodeType map[string]string

	leafNodeIDs        map[string]bool
	executeOverNodeIDs map[string]bool

	minInterval model.Interval
	totalBars   int64
	minBars     []model.Kline

	cycle        *cycleDriver
	cycleStarted bool
	readyNodes   int

	failed bool
	self   *actor.PID
	// engineRef is captured once at actor.Started; the cycle driver's
	// background goroutine runs outside any Receive call and needs its
	// own way to reach node mailboxes.
	engineRef *actor.Engine

	// ctx is valid only for the duration of the Receive call currently
	// in progress; hollywood delivers one message at a time per actor,
	// so this never races. forwardVTSEvent uses it to push position
	// lifecycle events to node mailboxes from inside a VTS callback.
	ctx *actor.Context
}

// New constructs a Strategy context; Build (sent once the actor is
// spawned) parses the graph and wires everything else.
func New(id string, source kline.Source, indicatorEngine indicator.Engine, bus event.Bus, initialBalance, leverage, feeRate float64, log zerolog.Logger) *Strategy {
	return &Strategy{
		id:              id,
		log:             log.With().Str("strategy_id", id).Logger(),
		bus:             bus,
		source:          source,
		engine:          indicatorEngine,
		initialBalance:  initialBalance,
		leverage:        leverage,
		feeRate:         feeRate,
		klineStore:      tsstore.New[model.KlineKey, model.Kline](klineIntervalOf),
		indicatorStore:  tsstore.New[model.IndicatorKey, model.IndicatorValue](indicatorIntervalOf),
		customVars:      make(map[string]float64),
		sysVars:         make(map[string]float64),
		nodeBase:        make(map[string]*node.Base),
		nodePID:         make(map[string]*actor.PID),
		nodeType:        make(map[string]string),
		leafNodeIDs:     make(map[string]bool),
		executeOverNodeIDs: make(map[string]bool),
	}
}

func klineIntervalOf(k model.KlineKey) (model.Interval, bool)           { return k.Interval, true }
func indicatorIntervalOf(k model.IndicatorKey) (model.Interval, bool)   { return k.Kline.Interval, true }

func (s *Strategy) Receive(ctx *actor.Context) {
	s.ctx = ctx
	switch msg := ctx.Message().(type) {
	case actor.Started:
		s.self = ctx.PID()
		s.engineRef = ctx.Engine()

	case actor.Stopped:

	case Build:
		if err := s.build(ctx, msg.Graph); err != nil {
			s.log.Error().Err(err).Msg("strategy build failed")
			s.failed = true
		}

	case Play:
		msg.Reply <- s.play()
	case Pause:
		if s.cycle == nil {
			msg.Reply <- bterr.ErrNodeStateNotReady
			break
		}
		msg.Reply <- s.cycle.pause()
	case Stop:
		s.stopAll(ctx)
		msg.Reply <- nil
	case ResetRun:
		msg.Reply <- s.reset(ctx)
	case GetStats:
		msg.Reply <- s.vts.Snapshot()

	case strategycmd.GetStrategyKeysCmd:
		msg.Reply <- strategycmd.GetStrategyKeysReply{}
	case strategycmd.GetMinIntervalCmd:
		msg.Reply <- strategycmd.GetMinIntervalReply{Interval: s.minInterval}

	case strategycmd.InitKlineDataCmd:
		if msg.Key.Interval == s.minInterval && int64(len(msg.Series)) > s.totalBars {
			s.totalBars = int64(len(msg.Series))
			s.minBars = msg.Series
		}
		msg.Reply <- s.klineStore.Init(msg.Key, msg.Series)
	case strategycmd.AppendKlineDataCmd:
		msg.Reply <- s.klineStore.Append(msg.Key, msg.Series)
	case strategycmd.GetKlineDataCmd:
		records, idx, err := s.klineStore.Slice(msg.Key, msg.Datetime, msg.Index, msg.Limit)
		msg.Reply <- strategycmd.GetKlineDataReply{Records: records, ResolvedIndex: idx, Err: err}
	case strategycmd.UpdateKlineDataCmd:
		s.klineStore.Update(msg.Key, msg.Record)
		msg.Reply <- nil

	case strategycmd.InitIndicatorDataCmd:
		msg.Reply <- s.indicatorStore.Init(msg.Key, msg.Series)
	case strategycmd.GetIndicatorDataCmd:
		records, idx, err := s.indicatorStore.Slice(msg.Key, msg.Datetime, msg.Index, msg.Limit)
		msg.Reply <- strategycmd.GetIndicatorDataReply{Records: records, ResolvedIndex: idx, Err: err}
	case strategycmd.UpdateIndicatorDataCmd:
		s.indicatorStore.Update(msg.Key, msg.Record)
		msg.Reply <- nil

	case strategycmd.InitCustomVariableValueCmd:
		s.customVars[msg.Name] = msg.Value
		msg.Reply <- nil
	case strategycmd.GetCustomVariableValueCmd:
		v, ok := s.customVars[msg.Name]
		msg.Reply <- strategycmd.GetCustomVariableValueReply{Value: v, Found: ok}
	case strategycmd.UpdateCustomVariableValueCmd:
		s.customVars[msg.Name] = msg.Value
		s.publish(event.Event{Kind: event.KindCustomVariableUpdate, StrategyID: s.id, NodeID: msg.NodeID, Message: msg.Name})
		msg.Reply <- nil
	case strategycmd.ResetCustomVariableValueCmd:
		delete(s.customVars, msg.Name)
		msg.Reply <- nil
	case strategycmd.UpdateSysVariableValueCmd:
		s.sysVars[msg.Name] = msg.Value
		s.publish(event.Event{Kind: event.KindSysVariableUpdate, StrategyID: s.id, NodeID: msg.NodeID, Message: msg.Name})
		msg.Reply <- nil

	case strategycmd.AddNodeCycleTrackerCmd:
		// performance telemetry only; nothing to aggregate synchronously.

	case strategycmd.CreateVirtualOrderCmd:
		msg.Reply <- s.createOrder(msg)

	case strategycmd.ExecuteOverCmd:
		s.onExecuteOver(msg)

	case strategycmd.NodeStateLogCmd:
		s.onNodeStateLog(msg)

	case node.Failed:
		s.log.Error().Str("node_id", msg.NodeID).Err(msg.Err).Msg("node failed")
		s.failed = true

	case kline.KlineUpdatePayload:
		s.onKlineUpdate(msg)

	default:
		_ = msg
	}
}

func (s *Strategy) publish(e event.Event) {
	e.Timestamp = timeOrNow(e.Timestamp)
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func (s *Strategy) onKlineUpdate(msg kline.KlineUpdatePayload) {
	if err := s.vts.HandleKlineUpdate(msg.Key, msg.Kline); err != nil {
		s.log.Error().Err(err).Msg("vts update failed")
		s.failed = true
		return
	}
	s.publish(event.Event{Kind: event.KindKlineUpdate, StrategyID: s.id, CycleID: msg.CycleID, Kline: &msg.Kline, KlineKey: &msg.Key})
}

func (s *Strategy) createOrder(msg strategycmd.CreateVirtualOrderCmd) error {
	return s.vts.CreateOrder(vtsParams(s.id, msg))
}

func (s *Strategy) onExecuteOver(msg strategycmd.ExecuteOverCmd) {
	if s.cycle == nil || msg.CycleID != s.cycle.currentPlayIndex() {
		s.log.Warn().Str("node_id", msg.NodeID).Int64("cycle_id", msg.CycleID).Msg("stale ExecuteOver ignored")
		return
	}
	s.executeOverNodeIDs[msg.NodeID] = true
	if len(s.executeOverNodeIDs) == len(s.leafNodeIDs) {
		s.executeOverNodeIDs = make(map[string]bool)
		s.cycle.notifyExecuteOver()
	}
}

func (s *Strategy) onNodeStateLog(msg strategycmd.NodeStateLogCmd) {
	ev := event.Event{Kind: event.KindNodeStateLog, StrategyID: s.id, NodeID: msg.NodeID, Message: msg.State}
	if msg.Err != nil {
		chain := bterr.CodeChain(msg.Err)
		if len(chain) > 0 {
			ev.ErrorCode = chain[0]
		}
		ev.ErrorCodeChain = chain
		ev.Level = "error"
	}
	s.publish(ev)

	if msg.Err == nil && msg.State == string(nodefsm.Running) {
		s.readyNodes++
		if s.readyNodes == len(s.nodeBase) && !s.cycleStarted {
			s.startCycle()
		}
	}
}

// startCycle launches the cycle driver's playback goroutine once every
// node has reached Running (spec.md §4.6's init-then-run sequencing).
// It starts parked: nothing advances until Play is called.
func (s *Strategy) startCycle() {
	s.cycleStarted = true
	s.cycle = newCycleDriver(s.totalBars, 0)
	go s.cycle.run(s.onCycleTick, s.onPlayFinished)
}

func (s *Strategy) onCycleTick(playIndex int64) {
	tick := node.CycleTick{PlayIndex: playIndex, Time: s.timeForIndex(playIndex)}
	for _, pid := range s.nodePID {
		s.engineRef.Send(pid, tick)
	}
}

// timeForIndex returns the minimum-interval bar's timestamp for a given
// play index, used so nodes configured at a coarser interval can check
// their own bar's timestamp against the cycle's current time.
func (s *Strategy) timeForIndex(idx int64) time.Time {
	if idx < 0 || int(idx) >= len(s.minBars) {
		return time.Time{}
	}
	return s.minBars[idx].Datetime
}

func (s *Strategy) onPlayFinished() {
	s.publish(event.Event{Kind: event.KindPlayFinished, StrategyID: s.id})
}

func (s *Strategy) play() error {
	if s.failed {
		return bterr.ErrStrategyFailed
	}
	if s.cycle == nil {
		return bterr.ErrNodeStateNotReady
	}
	return s.cycle.play()
}

func (s *Strategy) stopAll(ctx *actor.Context) {
	if s.cycle != nil {
		s.cycle.stop()
	}
	for _, pid := range s.nodePID {
		ctx.Send(pid, node.StartStop{})
	}
}

func (s *Strategy) reset(ctx *actor.Context) error {
	if s.cycle != nil {
		s.cycle.stop()
	}
	s.vts.Reset()
	s.customVars = make(map[string]float64)
	s.sysVars = make(map[string]float64)
	s.executeOverNodeIDs = make(map[string]bool)
	for _, pid := range s.nodePID {
		ctx.Send(pid, node.NodeReset{})
	}
	// Nodes are already Running from the initial build; reset only
	// clears per-cycle scratch state, so the cycle driver can restart
	// immediately rather than waiting on another round of state logs.
	s.cycleStarted = false
	s.startCycle()
	return nil
}

// sink adapts Strategy to vts.Sink, fanning VTS lifecycle events to every
// position node subscribed to the affected symbol/exchange and onto the
// event bus, per spec.md §6.
type sink struct{ s *Strategy }

func (sk sink) Emit(e vts.Event) {
	sk.s.forwardVTSEvent(e)
}

func (s *Strategy) forwardVTSEvent(e vts.Event) {
	kindMap := map[vts.EventKind]event.Kind{
		vts.EventFuturesOrderCreated:        event.KindFuturesOrderCreated,
		vts.EventFuturesOrderFilled:         event.KindFuturesOrderFilled,
		vts.EventFuturesOrderCanceled:       event.KindFuturesOrderCanceled,
		vts.EventLimitOrderExecutedDirectly: event.KindLimitOrderExecutedDirectly,
		vts.EventPositionCreated:            event.KindPositionCreated,
		vts.EventPositionUpdated:            event.KindPositionUpdated,
		vts.EventPositionClosed:             event.KindPositionClosed,
		vts.EventTransactionCreated:         event.KindTransactionCreated,
	}
	if k, ok := kindMap[e.Kind]; ok {
		s.publish(event.Event{Kind: k, StrategyID: s.id, Order: e.Order, Position: e.Position, Transaction: e.Transaction})
	}

	if e.Position == nil || s.ctx == nil {
		return
	}
	for nodeID, typ := range s.nodeType {
		if typ != TypePosition {
			continue
		}
		s.ctx.Send(s.nodePID[nodeID], e)
	}
}

func vtsParams(strategyID string, msg strategycmd.CreateVirtualOrderCmd) vts.CreateOrderParams {
	return vts.CreateOrderParams{
		StrategyID:    strategyID,
		NodeID:        msg.NodeID,
		OrderConfigID: msg.Params.OrderConfigID,
		Symbol:        msg.Params.Symbol,
		Exchange:      msg.Params.Exchange,
		Price:         msg.Params.Price,
		Side:          msg.Params.Side,
		Type:          msg.Params.Type,
		Quantity:      msg.Params.Quantity,
		TP:            msg.Params.TP,
		SL:            msg.Params.SL,
		Now:           time.Now(),
	}
}
