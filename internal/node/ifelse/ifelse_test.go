package ifelse

import (
	"testing"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"

	"github.com/riverbt/nodeflow/internal/node"
	"github.com/riverbt/nodeflow/internal/strategycmd"
)

func newTestHandler(cfg Config) *Handler {
	base := node.NewBase("n1", "test-ifelse", "strat1", nil, nil, zerolog.New(nil))
	return New(base, cfg)
}

type recorder struct {
	received chan any
}

func (r *recorder) Receive(ctx *actor.Context) {
	switch ctx.Message().(type) {
	case actor.Started, actor.Stopped:
		return
	default:
		r.received <- ctx.Message()
	}
}

// evalActor lets a test drive Handler.evaluate with a real *actor.Context,
// which handle.Handle.Emit requires.
type evalActor struct {
	h *Handler
}

func (a *evalActor) Receive(ctx *actor.Context) {
	if _, ok := ctx.Message().(triggerEvaluate); ok {
		a.h.evaluate(ctx)
	}
}

type triggerEvaluate struct{}

func drain(t *testing.T, ch chan any) any {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func drainNone(t *testing.T, ch chan any) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("expected no further message, got %#v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestEvaluateEmitsTriggerOnLastUnmatchedCase exercises the fix for a
// downstream node wired only to the last case's own output handle (not
// the else handle): it must still see a signal on a non-matching cycle.
func TestEvaluateEmitsTriggerOnLastUnmatchedCase(t *testing.T) {
	eng, err := actor.NewEngine(actor.NewEngineConfig())
	if err != nil {
		t.Fatalf("failed to create actor engine: %v", err)
	}
	rec := &recorder{received: make(chan any, 16)}
	recPID := eng.Spawn(func() actor.Receiver { return rec }, "strategy")

	base := node.NewBase("n1", "test-ifelse", "strat1", recPID,
		[]string{"if_else_node_case_c1_output", "if_else_node_else_output"}, zerolog.New(nil))
	cfg := Config{Cases: []Case{{
		ID:       "c1",
		Operator: And,
		Conditions: []Condition{
			{Left: VarRef{IsConstant: true, Constant: 1}, Right: VarRef{IsConstant: true, Constant: 2}, Op: GT},
		},
	}}}
	h := New(base, cfg)
	h.cycleID = 9
	pid := eng.Spawn(func() actor.Receiver { return &evalActor{h: h} }, "ifelse")

	eng.Send(pid, triggerEvaluate{})

	first := drain(t, rec.received)
	trig, ok := first.(TriggerEvent)
	if !ok {
		t.Fatalf("expected TriggerEvent on the last unmatched case's own output, got %T", first)
	}
	if trig.CycleID != 9 {
		t.Errorf("expected cycle 9, got %d", trig.CycleID)
	}

	second := drain(t, rec.received)
	match, ok := second.(ConditionMatchEvent)
	if !ok || match.CaseID != nil {
		t.Fatalf("expected an else ConditionMatchEvent with nil CaseID, got %#v", second)
	}

	third := drain(t, rec.received)
	if _, ok := third.(strategycmd.ExecuteOverCmd); !ok {
		t.Fatalf("expected ExecuteOverCmd for the leaf node, got %T", third)
	}
}

func TestEvaluateEmitsOnMatchedCase(t *testing.T) {
	eng, err := actor.NewEngine(actor.NewEngineConfig())
	if err != nil {
		t.Fatalf("failed to create actor engine: %v", err)
	}
	rec := &recorder{received: make(chan any, 16)}
	recPID := eng.Spawn(func() actor.Receiver { return rec }, "strategy")

	base := node.NewBase("n1", "test-ifelse", "strat1", recPID,
		[]string{"if_else_node_case_c1_output", "if_else_node_else_output"}, zerolog.New(nil))
	cfg := Config{Cases: []Case{{
		ID:       "c1",
		Operator: And,
		Conditions: []Condition{
			{Left: VarRef{IsConstant: true, Constant: 2}, Right: VarRef{IsConstant: true, Constant: 1}, Op: GT},
		},
	}}}
	h := New(base, cfg)
	h.cycleID = 4
	pid := eng.Spawn(func() actor.Receiver { return &evalActor{h: h} }, "ifelse")

	eng.Send(pid, triggerEvaluate{})

	first := drain(t, rec.received)
	match, ok := first.(ConditionMatchEvent)
	if !ok || match.CaseID == nil || *match.CaseID != "c1" {
		t.Fatalf("expected a matched ConditionMatchEvent for case c1, got %#v", first)
	}

	second := drain(t, rec.received)
	if over, ok := second.(strategycmd.ExecuteOverCmd); !ok || over.CycleID != 4 {
		t.Fatalf("expected ExecuteOverCmd for cycle 4, got %#v", second)
	}

	drainNone(t, rec.received)
}

func TestCompare(t *testing.T) {
	cases := []struct {
		l, r float64
		op   CompareOp
		want bool
	}{
		{1, 2, GT, false},
		{2, 1, GT, true},
		{1, 2, LT, true},
		{1, 1, GE, true},
		{1, 1, LE, true},
		{1, 1, EQ, true},
		{1, 1.0000000001, EQ, true},
		{1, 2, NE, true},
		{1, 1, NE, false},
	}
	for _, c := range cases {
		if got := compare(c.l, c.r, c.op); got != c.want {
			t.Errorf("compare(%v, %v, %v) = %v, want %v", c.l, c.r, c.op, got, c.want)
		}
	}
}

func TestResolveConstant(t *testing.T) {
	h := newTestHandler(Config{})
	v, ok := h.resolve(VarRef{IsConstant: true, Constant: 3.5})
	if !ok || v != 3.5 {
		t.Errorf("expected constant 3.5, got %v ok=%v", v, ok)
	}
}

func TestResolveMissingUpstreamValue(t *testing.T) {
	h := newTestHandler(Config{})
	_, ok := h.resolve(VarRef{NodeID: "n2", VarName: "close"})
	if ok {
		t.Error("expected ok=false for an upstream node with no stored value")
	}
}

func TestResolveStoredValue(t *testing.T) {
	h := newTestHandler(Config{})
	h.store("n2", "close", 100)
	v, ok := h.resolve(VarRef{NodeID: "n2", VarName: "close"})
	if !ok || v != 100 {
		t.Errorf("expected stored value 100, got %v ok=%v", v, ok)
	}
}

func TestEvaluateConditionMissingOperandIsFalse(t *testing.T) {
	h := newTestHandler(Config{})
	cond := Condition{Left: VarRef{NodeID: "missing", VarName: "close"}, Right: VarRef{IsConstant: true, Constant: 1}, Op: GT}
	r := h.evaluateCondition(cond)
	if r.Result {
		t.Error("expected a missing operand to evaluate as false")
	}
}

func TestEvaluateCaseAndRequiresAllTrue(t *testing.T) {
	h := newTestHandler(Config{})
	h.store("n2", "close", 10)

	c := Case{
		Operator: And,
		Conditions: []Condition{
			{Left: VarRef{NodeID: "n2", VarName: "close"}, Right: VarRef{IsConstant: true, Constant: 5}, Op: GT},
			{Left: VarRef{NodeID: "n2", VarName: "close"}, Right: VarRef{IsConstant: true, Constant: 20}, Op: GT},
		},
	}
	_, matched := h.evaluateCase(c)
	if matched {
		t.Error("expected AND case with one false condition to not match")
	}

	c.Conditions[1] = Condition{Left: VarRef{NodeID: "n2", VarName: "close"}, Right: VarRef{IsConstant: true, Constant: 1}, Op: GT}
	_, matched = h.evaluateCase(c)
	if !matched {
		t.Error("expected AND case with all true conditions to match")
	}
}

func TestEvaluateCaseOrShortCircuits(t *testing.T) {
	h := newTestHandler(Config{})
	h.store("n2", "close", 10)

	c := Case{
		Operator: Or,
		Conditions: []Condition{
			{Left: VarRef{NodeID: "n2", VarName: "close"}, Right: VarRef{IsConstant: true, Constant: 100}, Op: GT},
			{Left: VarRef{NodeID: "n2", VarName: "close"}, Right: VarRef{IsConstant: true, Constant: 1}, Op: GT},
		},
	}
	_, matched := h.evaluateCase(c)
	if !matched {
		t.Error("expected OR case with one true condition to match")
	}
}

func TestEvaluateCaseEmptyConditionsNeverMatches(t *testing.T) {
	h := newTestHandler(Config{})
	_, matched := h.evaluateCase(Case{Operator: And})
	if matched {
		t.Error("expected a case with zero conditions to never match")
	}
}

func TestAllFlagsSetAndResetFlags(t *testing.T) {
	h := newTestHandler(Config{UpstreamNodeIDs: []string{"a", "b"}})
	if h.allFlagsSet() {
		t.Error("expected flags unset right after construction")
	}
	h.store("a", "close", 1)
	if h.allFlagsSet() {
		t.Error("expected flags unset until every upstream has reported")
	}
	h.store("b", "close", 2)
	if !h.allFlagsSet() {
		t.Error("expected all flags set once every upstream has reported")
	}
	h.resetFlags()
	if h.allFlagsSet() {
		t.Error("expected resetFlags to clear the received flags")
	}
}

func TestAllFlagsSetFalseWithNoUpstreams(t *testing.T) {
	h := newTestHandler(Config{})
	if h.allFlagsSet() {
		t.Error("expected allFlagsSet to be false when there are no configured upstreams")
	}
}
