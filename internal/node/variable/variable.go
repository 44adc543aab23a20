// Package variable implements the variable node (spec.md §4.5): holds
// user-defined named variables with initial values, update rules and
// reset rules. Updates are dataflow-triggered: an upstream kline or
// indicator event updates every rule sourced from that node. The
// condition-triggered path (conditionTrigger) exists only inside this
// package: no other code sends it, and the node runtime does not route
// it to HandleCommand.
package variable

import (
	"fmt"

	"github.com/anthdm/hollywood/actor"
	"go.starlark.net/starlark"

	"github.com/riverbt/nodeflow/internal/node"
	klinepkg "github.com/riverbt/nodeflow/internal/node/kline"
	indicatorpkg "github.com/riverbt/nodeflow/internal/node/indicator"
	"github.com/riverbt/nodeflow/internal/strategycmd"
)

// NullPolicy governs what a dataflow-triggered update does when its
// source field is missing or zero.
type NullPolicy string

const (
	Skip             NullPolicy = "skip"
	UsePreviousValue NullPolicy = "use_previous_value"
	ValueReplace     NullPolicy = "value_replace"
	StillUpdate      NullPolicy = "still_update"
)

// Rule is a single configured variable's update behavior.
type Rule struct {
	Name         string
	Initial      float64
	SourceField  string // e.g. "close", or an indicator field name
	SourceNodeID string
	// UpdateScript, if non-empty, is a Starlark expression evaluated
	// with the incoming field value bound to `value` and the variable's
	// previous value bound to `prev`; its result becomes the new value.
	// This supplements spec.md's "arithmetic on incoming data" with
	// user-scriptable rules (SPEC_FULL.md §4 domain stack).
	UpdateScript string
	NullPolicy   NullPolicy
	ReplaceValue float64
}

type Config struct {
	Rules []Rule
}

type Handler struct {
	Base   *node.Base
	Config Config

	previous map[string]float64
	program  map[string]*starlark.Program
}

func New(base *node.Base, cfg Config) *Handler {
	h := &Handler{Base: base, Config: cfg, previous: make(map[string]float64), program: make(map[string]*starlark.Program)}
	for _, r := range cfg.Rules {
		h.previous[r.Name] = r.Initial
	}
	return h
}

func (h *Handler) HandleCommand(ctx *actor.Context, cmd any) error {
	switch c := cmd.(type) {
	case node.StartInit:
		for _, r := range h.Config.Rules {
			reply := make(chan error, 1)
			ctx.Send(h.Base.StrategyPID, strategycmd.InitCustomVariableValueCmd{NodeID: h.Base.ID, Name: r.Name, Value: r.Initial, Reply: reply})
			if err := <-reply; err != nil {
				return err
			}
		}
	case node.NodeReset:
		for _, r := range h.Config.Rules {
			h.previous[r.Name] = r.Initial
			reply := make(chan error, 1)
			ctx.Send(h.Base.StrategyPID, strategycmd.ResetCustomVariableValueCmd{NodeID: h.Base.ID, Name: r.Name, Reply: reply})
			<-reply
		}
	case conditionTrigger:
		return h.runConditionTriggers(ctx, c)
	}
	return nil
}

type conditionTrigger struct {
	Op      string // "get" | "reset"; any other op, "update" included, does nothing
	CycleID int64
}

func (h *Handler) runConditionTriggers(ctx *actor.Context, c conditionTrigger) error {
	for _, r := range h.Config.Rules {
		switch c.Op {
		case "get":
			reply := make(chan strategycmd.GetCustomVariableValueReply, 1)
			ctx.Send(h.Base.StrategyPID, strategycmd.GetCustomVariableValueCmd{NodeID: h.Base.ID, Name: r.Name, Reply: reply})
			v := <-reply
			h.Base.DefaultOutput.Emit(ctx, UpdateEvent{Name: r.Name, Value: v.Value, CycleID: c.CycleID})
		case "reset":
			h.previous[r.Name] = r.Initial
			reply := make(chan error, 1)
			ctx.Send(h.Base.StrategyPID, strategycmd.ResetCustomVariableValueCmd{NodeID: h.Base.ID, Name: r.Name, Reply: reply})
			<-reply
			h.Base.DefaultOutput.Emit(ctx, UpdateEvent{Name: r.Name, Value: r.Initial, CycleID: c.CycleID})
		}
	}
	return nil
}

func (h *Handler) HandleEngineEvent(ctx *actor.Context, evt any) error { return nil }

func (h *Handler) HandleSourceNodeEvent(ctx *actor.Context, from string, evt any) error {
	var field float64
	var cycleID int64
	var ok bool

	switch e := evt.(type) {
	case klinepkg.KlineUpdatePayload:
		cycleID = e.CycleID
		for _, r := range h.Config.Rules {
			if r.SourceNodeID == from {
				field, ok = e.Kline.Close, true
				break
			}
		}
	case indicatorpkg.IndicatorUpdateEvent:
		cycleID = e.CycleID
		for _, r := range h.Config.Rules {
			if r.SourceNodeID == from {
				if v, found := e.Value.Fields[r.SourceField]; found {
					field, ok = v, true
				}
				break
			}
		}
	default:
		return nil
	}

	for _, r := range h.Config.Rules {
		if r.SourceNodeID != from {
			continue
		}
		newVal, skip := h.applyRule(r, field, ok)
		if skip {
			continue
		}
		h.previous[r.Name] = newVal

		reply := make(chan error, 1)
		ctx.Send(h.Base.StrategyPID, strategycmd.UpdateCustomVariableValueCmd{NodeID: h.Base.ID, Name: r.Name, Value: newVal, Reply: reply})
		if err := <-reply; err != nil {
			return err
		}
		h.Base.DefaultOutput.Emit(ctx, UpdateEvent{Name: r.Name, Value: newVal, CycleID: cycleID})
	}

	if h.Base.IsLeaf() {
		ctx.Send(h.Base.StrategyPID, strategycmd.ExecuteOverCmd{NodeID: h.Base.ID, CycleID: cycleID})
	}
	return nil
}

// applyRule implements the null/zero error policy and, when configured,
// the Starlark update script.
func (h *Handler) applyRule(r Rule, value float64, ok bool) (newValue float64, skip bool) {
	if !ok || value == 0 {
		switch r.NullPolicy {
		case UsePreviousValue:
			return h.previous[r.Name], false
		case ValueReplace:
			return r.ReplaceValue, false
		case StillUpdate:
			// fall through to normal computation with value==0
		default: // Skip
			return 0, true
		}
	}

	if r.UpdateScript == "" {
		return value, false
	}

	result, err := h.evalScript(r, value)
	if err != nil {
		h.Base.Log.Warn().Err(err).Str("variable", r.Name).Msg("update script failed, keeping previous value")
		return h.previous[r.Name], false
	}
	return result, false
}

func (h *Handler) evalScript(r Rule, value float64) (float64, error) {
	program, ok := h.program[r.Name]
	if !ok {
		_, prog, err := starlark.SourceProgram(r.Name+".star", "result = "+r.UpdateScript, nil)
		if err != nil {
			return 0, fmt.Errorf("compile update script: %w", err)
		}
		program = prog
		h.program[r.Name] = program
	}

	thread := &starlark.Thread{Name: r.Name}
	globals := starlark.StringDict{
		"value": starlark.Float(value),
		"prev":  starlark.Float(h.previous[r.Name]),
	}
	out, err := program.Init(thread, globals)
	if err != nil {
		return 0, err
	}
	result, ok := out["result"].(starlark.Float)
	if !ok {
		return 0, fmt.Errorf("update script for %s did not produce a numeric result", r.Name)
	}
	return float64(result), nil
}

// UpdateEvent is published when a variable's value changes (or is read
// by a condition-triggered Get).
type UpdateEvent struct {
	Name    string
	Value   float64
	CycleID int64
}
