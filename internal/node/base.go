// Package node provides the common node runtime: the base context every
// node kind embeds, the command/event contract the strategy context and
// node catalog implement, and the listener dispatch shared by every
// node actor's Receive method.
package node

import (
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"

	"github.com/riverbt/nodeflow/internal/handle"
	"github.com/riverbt/nodeflow/internal/nodefsm"
)

// Base is embedded by every concrete node kind's context. It carries the
// shared identity, state machine, output handles and cancellation flag
// described in spec.md §4.4.
type Base struct {
	ID         string
	Name       string
	StrategyID string

	Machine *nodefsm.Machine

	DefaultOutput  *handle.Handle
	NamedOutputs   map[string]*handle.Handle

	StrategyPID *actor.PID
	Log         zerolog.Logger

	cancelled bool
}

// NewBase constructs a Base with a fresh, Created-state machine and the
// handles every node has: a default output plus the caller-supplied
// named ones (if/else case outputs, etc). strategyPID is bound into
// every handle so the strategy context always observes emitted events.
func NewBase(id, name, strategyID string, strategyPID *actor.PID, namedHandles []string, log zerolog.Logger) *Base {
	b := &Base{
		ID:           id,
		Name:         name,
		StrategyID:   strategyID,
		Machine:      nodefsm.New(),
		DefaultOutput: handle.New("default", strategyPID),
		NamedOutputs: make(map[string]*handle.Handle),
		StrategyPID:  strategyPID,
		Log:          log.With().Str("node_id", id).Str("node_name", name).Logger(),
	}
	for _, n := range namedHandles {
		b.NamedOutputs[n] = handle.New(n, strategyPID)
	}
	return b
}

// IsLeaf reports whether none of the node's outputs (default plus any
// named ones, e.g. if/else case outputs) have a subscriber (spec.md
// §4.4/§4.6's leaf-detection rule: "any node whose default output has
// zero subscribers OR no downstream handle bound").
func (b *Base) IsLeaf() bool {
	if b.DefaultOutput.ConnectCount() > 0 {
		return false
	}
	for _, h := range b.NamedOutputs {
		if h.ConnectCount() > 0 {
			return false
		}
	}
	return true
}

// Cancel flips the node's cancellation flag; EventHandler implementations
// must check IsCancelled() in their loops and stop processing.
func (b *Base) Cancel()          { b.cancelled = true }
func (b *Base) IsCancelled() bool { return b.cancelled }

// EventHandler is the per-kind dispatch contract every node in the
// catalog implements; the node's hollywood Receive method forwards here
// based on message type.
type EventHandler interface {
	HandleCommand(ctx *actor.Context, cmd any) error
	HandleSourceNodeEvent(ctx *actor.Context, from string, evt any) error
	HandleEngineEvent(ctx *actor.Context, evt any) error
}

// Messages common to every node actor's mailbox.

// CycleTick is published on the cycle watch channel and forwarded to
// every node actor at the start of a new play_index.
type CycleTick struct {
	PlayIndex int64
	Time      time.Time
}

// NodeReset asks a node to clear per-cycle scratch state; sent by the
// strategy context on a reset() control command.
type NodeReset struct{}

// StartInit / StartRun / StartStop drive the node's state machine from
// the strategy context's init/shutdown sequencing (spec.md §4.6).
type StartInit struct{}
type StartRun struct{}
type StartStop struct{}

// Failed is sent to the strategy context when a node's machine
// transitions to Failed, so the context can aggregate failures
// (spec.md §7: "the strategy context aggregates node failures").
type Failed struct {
	NodeID string
	Err    error
}

// ExecuteOver is emitted by leaf nodes on their strategy-bound handle
// once they have finished processing the current cycle.
type ExecuteOver struct {
	NodeID    string
	CycleID   int64
}
