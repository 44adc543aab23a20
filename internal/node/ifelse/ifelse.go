// Package ifelse implements the if/else node (spec.md §4.5), grounded on
// original_source/engine/src/strategy_engine/node/if_else_node/if_else_node_context.rs:
// a received-data slot keyed by upstream node id, AND/OR short-circuit
// case evaluation, and the else branch treated as reachable (the
// REDESIGN FLAG in spec.md §9 — the source's else block was provably
// unreachable; this implementation fixes that).
package ifelse

import (
	"encoding/json"
	"math"

	"github.com/anthdm/hollywood/actor"

	"github.com/riverbt/nodeflow/internal/node"
	klinepkg "github.com/riverbt/nodeflow/internal/node/kline"
	indicatorpkg "github.com/riverbt/nodeflow/internal/node/indicator"
	"github.com/riverbt/nodeflow/internal/strategycmd"
)

type LogicOperator string

const (
	And LogicOperator = "and"
	Or  LogicOperator = "or"
)

type CompareOp string

const (
	GT CompareOp = ">"
	LT CompareOp = "<"
	EQ CompareOp = "="
	NE CompareOp = "!="
	GE CompareOp = ">="
	LE CompareOp = "<="
)

// VarRef identifies a value either as a reference to an upstream node's
// variable or as a literal constant.
type VarRef struct {
	IsConstant bool
	NodeID     string
	VarName    string
	Constant   float64
}

type Condition struct {
	Left  VarRef
	Right VarRef
	Op    CompareOp
}

type Case struct {
	ID       string
	Operator LogicOperator
	Conditions []Condition
}

type Config struct {
	UpstreamNodeIDs []string // every node_id this if/else awaits a flag from
	Cases           []Case
}

type Handler struct {
	Base   *node.Base
	Config Config

	receivedFlag map[string]bool
	receivedValue map[string]map[string]float64 // node_id -> var_name -> value
	cycleID      int64
}

func New(base *node.Base, cfg Config) *Handler {
	h := &Handler{Base: base, Config: cfg}
	h.resetFlags()
	return h
}

func (h *Handler) resetFlags() {
	h.receivedFlag = make(map[string]bool, len(h.Config.UpstreamNodeIDs))
	for _, id := range h.Config.UpstreamNodeIDs {
		h.receivedFlag[id] = false
	}
	if h.receivedValue == nil {
		h.receivedValue = make(map[string]map[string]float64)
	}
}

func (h *Handler) HandleCommand(ctx *actor.Context, cmd any) error {
	if _, ok := cmd.(node.NodeReset); ok {
		h.resetFlags()
	}
	return nil
}

func (h *Handler) HandleEngineEvent(ctx *actor.Context, evt any) error { return nil }

func (h *Handler) HandleSourceNodeEvent(ctx *actor.Context, from string, evt any) error {
	switch e := evt.(type) {
	case klinepkg.KlineUpdatePayload:
		h.store(from, "close", e.Kline.Close)
		h.cycleID = e.CycleID
	case indicatorpkg.IndicatorUpdateEvent:
		for name, v := range e.Value.Fields {
			h.store(from, name, v)
		}
		h.cycleID = e.CycleID
	default:
		return nil
	}

	if !h.allFlagsSet() {
		return nil
	}

	h.evaluate(ctx)
	h.resetFlags()
	return nil
}

func (h *Handler) store(nodeID, varName string, value float64) {
	if _, ok := h.receivedValue[nodeID]; !ok {
		h.receivedValue[nodeID] = make(map[string]float64)
	}
	h.receivedValue[nodeID][varName] = value
	h.receivedFlag[nodeID] = true
}

func (h *Handler) allFlagsSet() bool {
	for _, set := range h.receivedFlag {
		if !set {
			return false
		}
	}
	return len(h.receivedFlag) > 0
}

type conditionResult struct {
	Left, Right float64
	LeftOK, RightOK bool
	Op     CompareOp
	Result bool
}

func (h *Handler) evaluate(ctx *actor.Context) {
	for i, c := range h.Config.Cases {
		results, matched := h.evaluateCase(c)
		h.logResults(ctx, c.ID, results)
		if matched {
			caseID := c.ID
			h.Base.NamedOutputs["if_else_node_case_"+c.ID+"_output"].Emit(ctx, ConditionMatchEvent{CaseID: &caseID, CycleID: h.cycleID})
			h.executeOver(ctx)
			return
		}
		if i == len(h.Config.Cases)-1 {
			// Last case didn't match: also fire a Trigger on its own
			// output, so a downstream node wired only to this case's
			// handle (not the else handle) still advances every cycle.
			if out, ok := h.Base.NamedOutputs["if_else_node_case_"+c.ID+"_output"]; ok {
				out.Emit(ctx, TriggerEvent{CycleID: h.cycleID})
			}
		}
	}
	h.Base.NamedOutputs["if_else_node_else_output"].Emit(ctx, ConditionMatchEvent{CaseID: nil, CycleID: h.cycleID})
	h.executeOver(ctx)
}

func (h *Handler) executeOver(ctx *actor.Context) {
	if h.Base.IsLeaf() {
		ctx.Send(h.Base.StrategyPID, strategycmd.ExecuteOverCmd{NodeID: h.Base.ID, CycleID: h.cycleID})
	}
}

// evaluateCase runs the case's conditions with AND/OR short-circuit
// semantics, returning the per-condition results for logging alongside
// the overall match.
func (h *Handler) evaluateCase(c Case) ([]conditionResult, bool) {
	var results []conditionResult
	switch c.Operator {
	case Or:
		matched := false
		for _, cond := range c.Conditions {
			r := h.evaluateCondition(cond)
			results = append(results, r)
			if r.Result {
				matched = true
				break
			}
		}
		return results, matched
	default: // And
		matched := true
		for _, cond := range c.Conditions {
			r := h.evaluateCondition(cond)
			results = append(results, r)
			if !r.Result {
				matched = false
				break
			}
		}
		return results, matched && len(c.Conditions) > 0
	}
}

func (h *Handler) evaluateCondition(cond Condition) conditionResult {
	left, leftOK := h.resolve(cond.Left)
	right, rightOK := h.resolve(cond.Right)
	r := conditionResult{Left: left, Right: right, LeftOK: leftOK, RightOK: rightOK, Op: cond.Op}
	if !leftOK || !rightOK {
		// null-value policy: missing operand makes the condition false.
		h.Base.Log.Warn().Str("case_node", cond.Left.NodeID).Msg("if/else condition operand missing, treating as false")
		r.Result = false
		return r
	}
	r.Result = compare(left, right, cond.Op)
	return r
}

func (h *Handler) resolve(ref VarRef) (float64, bool) {
	if ref.IsConstant {
		return ref.Constant, true
	}
	vars, ok := h.receivedValue[ref.NodeID]
	if !ok {
		return 0, false
	}
	v, ok := vars[ref.VarName]
	return v, ok
}

func compare(l, r float64, op CompareOp) bool {
	switch op {
	case GT:
		return l > r
	case LT:
		return l < r
	case GE:
		return l >= r
	case LE:
		return l <= r
	case NE:
		return math.Abs(l-r) >= 1e-9
	default: // EQ
		return math.Abs(l-r) < 1e-9
	}
}

func (h *Handler) logResults(ctx *actor.Context, caseID string, results []conditionResult) {
	payload, _ := json.Marshal(results)
	h.Base.Log.Debug().Str("case_id", caseID).RawJSON("conditions", payload).Msg("if/else case evaluated")
}

// ConditionMatchEvent is emitted on the matched case's named output (or
// the else output when CaseID is nil).
type ConditionMatchEvent struct {
	CaseID  *string
	CycleID int64
}

// TriggerEvent is emitted on the last case's own output when that case
// was evaluated and didn't match, so a node wired downstream of it still
// receives a signal on every cycle, not only on a match.
type TriggerEvent struct {
	CycleID int64
}
