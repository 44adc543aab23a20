package position_test

import (
	"testing"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"

	"github.com/riverbt/nodeflow/internal/node"
	"github.com/riverbt/nodeflow/internal/node/position"
	"github.com/riverbt/nodeflow/internal/strategycmd"
	"github.com/riverbt/nodeflow/internal/vts"
	"github.com/riverbt/nodeflow/pkg/model"
)

type recorder struct {
	received chan any
}

func newRecorder() *recorder {
	return &recorder{received: make(chan any, 16)}
}

func (r *recorder) Receive(ctx *actor.Context) {
	switch ctx.Message().(type) {
	case actor.Started, actor.Stopped:
		return
	default:
		r.received <- ctx.Message()
	}
}

// testNodeActor forwards everything but lifecycle no-ops straight to the
// handler, mirroring engine.NodeActor's dispatch without pulling in the
// state machine (out of scope for this package).
type testNodeActor struct {
	handler node.EventHandler
}

func (a *testNodeActor) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started, actor.Stopped, node.StartInit, node.StartRun, node.StartStop:
		return
	case node.CycleTick:
		_ = a.handler.HandleEngineEvent(ctx, msg)
	default:
		_ = a.handler.HandleSourceNodeEvent(ctx, "", msg)
	}
}

func newTestEngine(t *testing.T) *actor.Engine {
	t.Helper()
	e, err := actor.NewEngine(actor.NewEngineConfig())
	if err != nil {
		t.Fatalf("failed to create actor engine: %v", err)
	}
	return e
}

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

func TestPositionNodeRepublishesMatchingEvent(t *testing.T) {
	eng := newTestEngine(t)
	rec := newRecorder()
	recPID := eng.Spawn(func() actor.Receiver { return rec }, "strategy")

	base := node.NewBase("pos1", "position", "strat1", recPID, nil, zerolog.New(nil))
	handler := position.New(base, position.Config{Symbol: "BTCUSDT", Exchange: "bybit"})
	pid := eng.Spawn(func() actor.Receiver { return &testNodeActor{handler: handler} }, "position")

	eng.Send(pid, node.CycleTick{PlayIndex: 5})
	eng.Send(pid, vts.Event{
		Kind:     vts.EventPositionCreated,
		Position: &model.VirtualPosition{Symbol: "BTCUSDT", Exchange: "bybit"},
	})

	// The tick alone already signals leaf completion (see
	// TestPositionNodeSignalsLeafCompletionOnQuietCycle); the matching VTS
	// event additionally republishes the update and signals again.
	first := drain(t, rec.received)
	if over, ok := first.(strategycmd.ExecuteOverCmd); !ok || over.CycleID != 5 {
		t.Fatalf("expected ExecuteOverCmd for cycle 5 from the tick, got %#v", first)
	}

	second := drain(t, rec.received)
	upd, ok := second.(position.UpdateEvent)
	if !ok {
		t.Fatalf("expected UpdateEvent, got %T", second)
	}
	if upd.Position.Symbol != "BTCUSDT" {
		t.Errorf("expected republished position symbol BTCUSDT, got %s", upd.Position.Symbol)
	}

	third := drain(t, rec.received)
	if over, ok := third.(strategycmd.ExecuteOverCmd); !ok || over.CycleID != 5 {
		t.Fatalf("expected a second ExecuteOverCmd for cycle 5 from the matching event, got %#v", third)
	}
}

// TestPositionNodeSignalsLeafCompletionOnQuietCycle exercises the fix for
// the stall a leaf position node would otherwise cause on any bar where
// its symbol has no open position: VTS never emits a position event for
// such a bar, so cycle completion must come from the tick alone.
func TestPositionNodeSignalsLeafCompletionOnQuietCycle(t *testing.T) {
	eng := newTestEngine(t)
	rec := newRecorder()
	recPID := eng.Spawn(func() actor.Receiver { return rec }, "strategy")

	base := node.NewBase("pos1", "position", "strat1", recPID, nil, zerolog.New(nil))
	handler := position.New(base, position.Config{Symbol: "BTCUSDT", Exchange: "bybit"})
	pid := eng.Spawn(func() actor.Receiver { return &testNodeActor{handler: handler} }, "position")

	eng.Send(pid, node.CycleTick{PlayIndex: 7})

	msg := drain(t, rec.received)
	over, ok := msg.(strategycmd.ExecuteOverCmd)
	if !ok {
		t.Fatalf("expected ExecuteOverCmd, got %T", msg)
	}
	if over.CycleID != 7 {
		t.Errorf("expected cycle 7, got %d", over.CycleID)
	}
}

// TestPositionNodeNonLeafDoesNotSignalOnTick confirms the unconditional
// tick signal only fires when the node is actually a leaf: a position
// node with a downstream subscriber must not short-circuit completion
// for whatever consumes its default output.
func TestPositionNodeNonLeafDoesNotSignalOnTick(t *testing.T) {
	eng := newTestEngine(t)
	rec := newRecorder()
	recPID := eng.Spawn(func() actor.Receiver { return rec }, "strategy")

	base := node.NewBase("pos1", "position", "strat1", recPID, nil, zerolog.New(nil))
	base.DefaultOutput.Subscribe(&actor.PID{})
	handler := position.New(base, position.Config{Symbol: "BTCUSDT", Exchange: "bybit"})
	pid := eng.Spawn(func() actor.Receiver { return &testNodeActor{handler: handler} }, "position")

	eng.Send(pid, node.CycleTick{PlayIndex: 7})

	select {
	case msg := <-rec.received:
		t.Fatalf("expected no ExecuteOverCmd for a non-leaf node, got %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPositionNodeIgnoresNonMatchingSymbol(t *testing.T) {
	eng := newTestEngine(t)
	rec := newRecorder()
	recPID := eng.Spawn(func() actor.Receiver { return rec }, "strategy")

	base := node.NewBase("pos1", "position", "strat1", recPID, nil, zerolog.New(nil))
	handler := position.New(base, position.Config{Symbol: "BTCUSDT", Exchange: "bybit"})
	pid := eng.Spawn(func() actor.Receiver { return &testNodeActor{handler: handler} }, "position")

	eng.Send(pid, vts.Event{
		Kind:     vts.EventPositionCreated,
		Position: &model.VirtualPosition{Symbol: "ETHUSDT", Exchange: "bybit"},
	})

	select {
	case msg := <-rec.received:
		t.Fatalf("expected no message for a non-matching symbol, got %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPositionNodeIgnoresUnrelatedEventKind(t *testing.T) {
	eng := newTestEngine(t)
	rec := newRecorder()
	recPID := eng.Spawn(func() actor.Receiver { return rec }, "strategy")

	base := node.NewBase("pos1", "position", "strat1", recPID, nil, zerolog.New(nil))
	handler := position.New(base, position.Config{})
	pid := eng.Spawn(func() actor.Receiver { return &testNodeActor{handler: handler} }, "position")

	eng.Send(pid, vts.Event{Kind: vts.EventFuturesOrderCreated})

	select {
	case msg := <-rec.received:
		t.Fatalf("expected no message for an unrelated event kind, got %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
