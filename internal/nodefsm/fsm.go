// Package nodefsm is the generic parameterized node state machine: a
// pure (State, Trigger) -> (State, []Action) transition table, shared by
// every node kind in the catalog. The node runtime interprets the
// returned actions; the machine itself never performs I/O.
package nodefsm

import "github.com/riverbt/nodeflow/pkg/bterr"

type State string

const (
	Created      State = "created"
	Initializing State = "initializing"
	Initialized  State = "initialized"
	Running      State = "running"
	Stopping     State = "stopping"
	Stopped      State = "stopped"
	Failed       State = "failed"
)

type TriggerKind string

const (
	StartInit TriggerKind = "start_init"
	FinishInit TriggerKind = "finish_init"
	StartRun  TriggerKind = "start_run"
	StartStop TriggerKind = "start_stop"
	FinishStop TriggerKind = "finish_stop"
	Fail      TriggerKind = "fail"
)

// Trigger is a transition request; Err is only set for the Fail trigger.
type Trigger struct {
	Kind TriggerKind
	Err  error
}

// Action is a node-kind-specific side effect the runtime must perform
// after a transition. Kind is one of the tagged actions named in
// spec.md §4.3; Payload carries kind-specific data (e.g. the error for
// LogError).
type Action struct {
	Kind    string
	Payload any
}

const (
	ActionRegisterExchange        = "RegisterExchange"
	ActionLoadHistoryFromExchange = "LoadHistoryFromExchange"
	ActionListenNodeEvents        = "ListenNodeEvents"
	ActionCancelAsyncTask         = "CancelAsyncTask"
	ActionLogTransition           = "LogTransition"
	ActionLogError                = "LogError"
)

// Machine records a node's current/previous state and logs every
// transition (logging is done by the caller via the returned actions;
// the machine itself stays pure).
type Machine struct {
	Previous State
	Current  State
}

// New constructs a machine in the Created state.
func New() *Machine {
	return &Machine{Current: Created}
}

// Fire applies trigger to the machine's current state, returning the
// actions the runtime must perform. Invalid transitions return
// bterr.ErrInvalidStateTransition and leave the machine unchanged,
// except for Fail, which is valid from any non-terminal state.
func (m *Machine) Fire(t Trigger) ([]Action, error) {
	next, actions, ok := transition(m.Current, t)
	if !ok {
		return nil, bterr.ErrInvalidStateTransition
	}
	m.Previous = m.Current
	m.Current = next
	return append([]Action{{Kind: ActionLogTransition, Payload: transitionLog{From: m.Previous, To: m.Current, Trigger: t.Kind}}}, actions...), nil
}

type transitionLog struct {
	From, To State
	Trigger  TriggerKind
}

// transition is the pure (State, Trigger) -> (State, []Action) table.
func transition(s State, t Trigger) (State, []Action, bool) {
	if t.Kind == Fail {
		if s == Stopped || s == Failed {
			return s, nil, false
		}
		return Failed, []Action{{Kind: ActionCancelAsyncTask}, {Kind: ActionLogError, Payload: t.Err}}, true
	}

	switch s {
	case Created:
		if t.Kind == StartInit {
			return Initializing, []Action{
				{Kind: ActionRegisterExchange},
				{Kind: ActionLoadHistoryFromExchange},
			}, true
		}
	case Initializing:
		if t.Kind == FinishInit {
			return Initialized, nil, true
		}
	case Initialized:
		if t.Kind == StartRun {
			return Running, []Action{{Kind: ActionListenNodeEvents}}, true
		}
	case Running:
		if t.Kind == StartStop {
			return Stopping, []Action{{Kind: ActionCancelAsyncTask}}, true
		}
	case Stopping:
		if t.Kind == FinishStop {
			return Stopped, nil, true
		}
	}
	return s, nil, false
}
