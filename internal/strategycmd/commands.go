// Package strategycmd is the strategy context's command protocol
// (spec.md §4.6): one message type per command, each carrying the
// requesting node id; request/response commands also carry a reply
// channel acting as the oneshot response sender. It is a separate package from internal/engine so that node
// catalog packages can send these commands to the strategy context's
// PID without importing internal/engine itself (which in turn imports
// the node catalog packages to spawn them).
package strategycmd

import (
	"time"

	"github.com/riverbt/nodeflow/pkg/model"
)

// Every strategy command carries the requesting node id. Every command
// except AddNodeCycleTrackerCmd, ExecuteOverCmd and NodeStateLogCmd
// (which are fire-and-forget) also carries a channel the strategy
// context's single command-processing goroutine uses as the "oneshot
// response sender" from spec.md §4.6. Nodes never touch
// the strategy context directly (Design Notes: "no direct node ->
// strategy reference") — they hold only a *actor.PID to send commands to
// and read the reply channel they passed in.

type GetStrategyKeysCmd struct {
	NodeID string
	Reply  chan GetStrategyKeysReply
}
type GetStrategyKeysReply struct {
	KlineKeys     []model.KlineKey
	IndicatorKeys []model.IndicatorKey
}

type GetMinIntervalCmd struct {
	NodeID string
	Reply  chan GetMinIntervalReply
}
type GetMinIntervalReply struct {
	Interval model.Interval
}

type InitKlineDataCmd struct {
	NodeID string
	Key    model.KlineKey
	Series []model.Kline
	Reply  chan error
}

type AppendKlineDataCmd struct {
	NodeID string
	Key    model.KlineKey
	Series []model.Kline
	Reply  chan error
}

type GetKlineDataCmd struct {
	NodeID   string
	Key      model.KlineKey
	Datetime *time.Time
	Index    *int
	Limit    *int
	Reply    chan GetKlineDataReply
}
type GetKlineDataReply struct {
	Records       []model.Kline
	ResolvedIndex int
	Err           error
}

type UpdateKlineDataCmd struct {
	NodeID string
	Key    model.KlineKey
	Record model.Kline
	Reply  chan error
}

type InitIndicatorDataCmd struct {
	NodeID string
	Key    model.IndicatorKey
	Series []model.IndicatorValue
	Reply  chan error
}

type GetIndicatorDataCmd struct {
	NodeID   string
	Key      model.IndicatorKey
	Datetime *time.Time
	Index    *int
	Limit    *int
	Reply    chan GetIndicatorDataReply
}
type GetIndicatorDataReply struct {
	Records       []model.IndicatorValue
	ResolvedIndex int
	Err           error
}

type UpdateIndicatorDataCmd struct {
	NodeID string
	Key    model.IndicatorKey
	Record model.IndicatorValue
	Reply  chan error
}

type InitCustomVariableValueCmd struct {
	NodeID string
	Name   string
	Value  float64
	Reply  chan error
}

type GetCustomVariableValueCmd struct {
	NodeID string
	Name   string
	Reply  chan GetCustomVariableValueReply
}
type GetCustomVariableValueReply struct {
	Value float64
	Found bool
}

type UpdateCustomVariableValueCmd struct {
	NodeID string
	Name   string
	Value  float64
	Reply  chan error
}

type ResetCustomVariableValueCmd struct {
	NodeID string
	Name   string
	Reply  chan error
}

type UpdateSysVariableValueCmd struct {
	NodeID string
	Name   string
	Value  float64
	Reply  chan error
}

type AddNodeCycleTrackerCmd struct {
	NodeID   string
	CycleID  int64
	Duration time.Duration
}

// CreateVirtualOrderCmd is how order nodes reach the VTS (spec.md §4.5
// order node: "builds a VirtualOrder... and sends it to the VTS").
type CreateVirtualOrderCmd struct {
	NodeID string
	Params VirtualOrderParams
	Reply  chan error
}

// VirtualOrderParams mirrors vts.CreateOrderParams without importing the
// vts package from the command surface, keeping node packages decoupled
// from VTS internals (they only know the command protocol).
type VirtualOrderParams struct {
	OrderConfigID int
	Symbol        string
	Exchange      string
	Price         float64
	Side          model.OrderSide
	Type          model.OrderType
	Quantity      float64
	TP            *float64
	SL            *float64
}

// ExecuteOverCmd is sent by a leaf node when it has finished processing
// the current cycle; the strategy context tallies these against
// leaf_node_ids to gate cycle advancement (spec.md §4.7).
type ExecuteOverCmd struct {
	NodeID  string
	CycleID int64
}

// NodeStateLogCmd forwards a node's state-machine transition (or error)
// so the strategy context can emit NodeStateLog and aggregate failures.
type NodeStateLogCmd struct {
	NodeID  string
	State   string
	Err     error
}
