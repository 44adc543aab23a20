// Package handle implements the node output handle: a typed broadcast
// sender with zero or more subscriber PIDs, grounded on
// SPEC_FULL.md §7 (hollywood has no native multicast, so a handle is a
// subscriber-list fan-out over ctx.Send).
package handle

import (
	"sync"

	"github.com/anthdm/hollywood/actor"
)

// Capacity is the bounded broadcast capacity named in spec.md §5
// ("broadcast channels have bounded capacity ≈100"). It gates ordinary
// subscriber sends; the strategy-bound handle is exempt (see Handle.Bound).
const Capacity = 100

// Handle is one named output on a node: a list of subscriber PIDs,
// bounded by sem, plus, for the always-present strategy-bound leg, a
// direct PID that is never subject to the bounded-capacity drop policy.
type Handle struct {
	mu            sync.RWMutex
	name          string
	subscribers   []*actor.PID
	strategyBound *actor.PID
	sem           chan struct{}
}

// New creates a named handle with a bounded subscriber fan-out. If
// strategyBound is non-nil, every Emit also sends (uncapped) to it,
// implementing the "always — the strategy context subscribes here"
// fan-out leg from spec.md §4.4.
func New(name string, strategyBound *actor.PID) *Handle {
	return &Handle{name: name, strategyBound: strategyBound, sem: make(chan struct{}, Capacity)}
}

// Subscribe adds pid as a subscriber, incrementing the handle's connect
// count. Graph wiring (strategy context init step 1) calls this once
// per edge bound to this handle.
func (h *Handle) Subscribe(pid *actor.PID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, pid)
}

// ConnectCount returns the number of subscribers wired to this handle.
// A zero default-output connect count marks the owning node a leaf.
func (h *Handle) ConnectCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Emit sends msg to every subscriber in send order (per-subscriber FIFO
// is hollywood's own mailbox guarantee) and, if set, to the
// strategy-bound PID without capacity gating.
func (h *Handle) Emit(ctx *actor.Context, msg any) {
	h.mu.RLock()
	subs := append([]*actor.PID{}, h.subscribers...)
	h.mu.RUnlock()

	for _, pid := range subs {
		select {
		case h.sem <- struct{}{}:
			ctx.Send(pid, msg)
			<-h.sem
		default:
			// bounded capacity exceeded: drop silently. Emit returns void
			// by design, so there is no caller to report the drop to;
			// this package stays dependency-free of logging.
		}
	}
	if h.strategyBound != nil {
		ctx.Send(h.strategyBound, msg)
	}
}
