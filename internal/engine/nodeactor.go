package engine

import (
	"github.com/anthdm/hollywood/actor"

	"github.com/riverbt/nodeflow/internal/node"
	"github.com/riverbt/nodeflow/internal/nodefsm"
	"github.com/riverbt/nodeflow/internal/strategycmd"
)

// NodeActor is the single hollywood actor.Receiver shared by every node
// kind in the catalog (spec.md §9 Design Notes: node kinds are a tagged
// enum to avoid virtual calls on hot paths — the per-kind logic lives in
// node.EventHandler implementations, while this wrapper owns the one
// thing every kind shares: the state machine and its actions, and the
// hollywood mailbox dispatch).
type NodeActor struct {
	Base    *node.Base
	Handler node.EventHandler

	// SourceOf maps an upstream node's PID to that node's id, so the id
	// of a domain event's sender can be passed to HandleSourceNodeEvent.
	// Populated by the strategy context during graph wiring.
	SourceOf map[*actor.PID]string
}

func NewNodeActor(base *node.Base, handler node.EventHandler) *NodeActor {
	return &NodeActor{Base: base, Handler: handler, SourceOf: make(map[*actor.PID]string)}
}

func (a *NodeActor) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started:
		// nothing to do: the strategy context drives StartInit explicitly
		// once graph wiring is complete.

	case actor.Stopped:

	case node.StartInit:
		a.fire(ctx, nodefsm.Trigger{Kind: nodefsm.StartInit})
		if err := a.Handler.HandleCommand(ctx, msg); err != nil {
			a.fail(ctx, err)
			return
		}
		a.fire(ctx, nodefsm.Trigger{Kind: nodefsm.FinishInit})

	case node.StartRun:
		a.fire(ctx, nodefsm.Trigger{Kind: nodefsm.StartRun})
		_ = a.Handler.HandleCommand(ctx, msg)

	case node.StartStop:
		a.fire(ctx, nodefsm.Trigger{Kind: nodefsm.StartStop})
		_ = a.Handler.HandleCommand(ctx, msg)
		a.fire(ctx, nodefsm.Trigger{Kind: nodefsm.FinishStop})

	case node.NodeReset:
		if err := a.Handler.HandleCommand(ctx, msg); err != nil {
			a.fail(ctx, err)
		}

	case node.CycleTick:
		if a.Base.Machine.Current != nodefsm.Running {
			return
		}
		if err := a.Handler.HandleEngineEvent(ctx, msg); err != nil {
			a.fail(ctx, err)
		}

	default:
		if a.Base.Machine.Current != nodefsm.Running || a.Base.IsCancelled() {
			return
		}
		from := a.SourceOf[ctx.Sender()]
		if err := a.Handler.HandleSourceNodeEvent(ctx, from, msg); err != nil {
			a.fail(ctx, err)
		}
	}
}

// fire applies a state transition and performs its returned actions; the
// only actions this generic wrapper interprets directly are logging ones
// (RegisterExchange/LoadHistoryFromExchange/ListenNodeEvents are carried
// out by the node-kind handler itself via HandleCommand, since they are
// domain-specific; CancelAsyncTask sets the cancellation flag).
func (a *NodeActor) fire(ctx *actor.Context, t nodefsm.Trigger) {
	actions, err := a.Base.Machine.Fire(t)
	if err != nil {
		a.Base.Log.Error().Err(err).Str("trigger", string(t.Kind)).Msg("invalid node state transition")
		return
	}
	for _, act := range actions {
		switch act.Kind {
		case nodefsm.ActionLogTransition:
			a.Base.Log.Info().Interface("transition", act.Payload).Msg("node state transition")
			ctx.Send(a.Base.StrategyPID, strategycmd.NodeStateLogCmd{NodeID: a.Base.ID, State: string(a.Base.Machine.Current)})
		case nodefsm.ActionLogError:
			if err, ok := act.Payload.(error); ok {
				a.Base.Log.Error().Err(err).Msg("node failed")
			}
		case nodefsm.ActionCancelAsyncTask:
			a.Base.Cancel()
		}
	}
}

func (a *NodeActor) fail(ctx *actor.Context, err error) {
	a.fire(ctx, nodefsm.Trigger{Kind: nodefsm.Fail, Err: err})
	ctx.Send(a.Base.StrategyPID, node.Failed{NodeID: a.Base.ID, Err: err})
	ctx.Send(a.Base.StrategyPID, strategycmd.NodeStateLogCmd{NodeID: a.Base.ID, State: string(a.Base.Machine.Current), Err: err})
}
