package order_test

import (
	"testing"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"

	"github.com/riverbt/nodeflow/internal/node"
	"github.com/riverbt/nodeflow/internal/node/ifelse"
	"github.com/riverbt/nodeflow/internal/node/order"
	"github.com/riverbt/nodeflow/internal/strategycmd"
	"github.com/riverbt/nodeflow/pkg/model"
)

// recorder stands in for the strategy context: it captures every message
// sent to it so tests can assert on the command protocol an order node
// emits, and auto-replies to Reply-channel commands.
type recorder struct {
	received chan any
}

func newRecorder() *recorder {
	return &recorder{received: make(chan any, 16)}
}

func (r *recorder) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started, actor.Stopped:
		return
	case strategycmd.CreateVirtualOrderCmd:
		r.received <- msg
		msg.Reply <- nil
	default:
		r.received <- msg
	}
}

// testNodeActor is a minimal stand-in for engine.NodeActor: it forwards
// any message that isn't a lifecycle no-op straight to the handler's
// HandleSourceNodeEvent, skipping the state-machine gating that belongs
// to the real node runtime (out of scope for this package's tests).
type testNodeActor struct {
	handler node.EventHandler
}

func (a *testNodeActor) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started, actor.Stopped, node.StartInit, node.StartRun, node.StartStop:
		return
	default:
		_ = a.handler.HandleSourceNodeEvent(ctx, "", msg)
	}
}

func newNodeActorForTest(base *node.Base, handler node.EventHandler) actor.Receiver {
	return &testNodeActor{handler: handler}
}

func newTestEngine(t *testing.T) *actor.Engine {
	t.Helper()
	e, err := actor.NewEngine(actor.NewEngineConfig())
	if err != nil {
		t.Fatalf("failed to create actor engine: %v", err)
	}
	return e
}

func drainUntil[T any](t *testing.T, ch chan any) T {
	t.Helper()
	for {
		select {
		case msg := <-ch:
			if v, ok := msg.(T); ok {
				return v
			}
		case <-time.After(time.Second):
			var zero T
			t.Fatalf("timed out waiting for message of expected type, got zero value %v", zero)
			return zero
		}
	}
}

func TestOrderNodeEmitsCreateVirtualOrderOnCaseMatch(t *testing.T) {
	eng := newTestEngine(t)
	rec := newRecorder()
	recPID := eng.Spawn(func() actor.Receiver { return rec }, "strategy")

	base := node.NewBase("order1", "order", "strat1", recPID, nil, zerolog.New(nil))
	cfg := order.Config{
		Symbol:   "BTCUSDT",
		Exchange: "bybit",
		Side:     model.Long,
		Type:     model.Market,
		Quantity: 1,
	}
	handler := order.New(base, cfg)
	na := newNodeActorForTest(base, handler)
	orderPID := eng.Spawn(func() actor.Receiver { return na }, "order")

	eng.Send(orderPID, node.StartInit{})
	eng.Send(orderPID, node.StartRun{})

	caseID := "case-1"
	eng.Send(orderPID, ifelse.ConditionMatchEvent{CaseID: &caseID, CycleID: 7})

	cmd := drainUntil[strategycmd.CreateVirtualOrderCmd](t, rec.received)
	if cmd.Params.Symbol != "BTCUSDT" || cmd.Params.Quantity != 1 {
		t.Errorf("unexpected order params: %+v", cmd.Params)
	}

	over := drainUntil[strategycmd.ExecuteOverCmd](t, rec.received)
	if over.CycleID != 7 {
		t.Errorf("expected ExecuteOverCmd cycle 7, got %d", over.CycleID)
	}
}

func TestOrderNodeSkipsOrderOnElseBranch(t *testing.T) {
	eng := newTestEngine(t)
	rec := newRecorder()
	recPID := eng.Spawn(func() actor.Receiver { return rec }, "strategy")

	base := node.NewBase("order1", "order", "strat1", recPID, nil, zerolog.New(nil))
	handler := order.New(base, order.Config{Symbol: "BTCUSDT"})
	na := newNodeActorForTest(base, handler)
	orderPID := eng.Spawn(func() actor.Receiver { return na }, "order")

	eng.Send(orderPID, node.StartInit{})
	eng.Send(orderPID, node.StartRun{})

	eng.Send(orderPID, ifelse.ConditionMatchEvent{CaseID: nil, CycleID: 3})

	over := drainUntil[strategycmd.ExecuteOverCmd](t, rec.received)
	if over.CycleID != 3 {
		t.Errorf("expected ExecuteOverCmd cycle 3, got %d", over.CycleID)
	}

	select {
	case msg := <-rec.received:
		if _, ok := msg.(strategycmd.CreateVirtualOrderCmd); ok {
			t.Fatal("expected no order on the else branch")
		}
	case <-time.After(50 * time.Millisecond):
	}
}
