package engine

import (
	"fmt"
	"time"

	"github.com/anthdm/hollywood/actor"

	"github.com/riverbt/nodeflow/internal/node"
	"github.com/riverbt/nodeflow/internal/node/ifelse"
	"github.com/riverbt/nodeflow/internal/node/indicator"
	"github.com/riverbt/nodeflow/internal/node/kline"
	"github.com/riverbt/nodeflow/internal/node/order"
	"github.com/riverbt/nodeflow/internal/node/position"
	"github.com/riverbt/nodeflow/internal/node/variable"
	"github.com/riverbt/nodeflow/internal/vts"
	"github.com/riverbt/nodeflow/pkg/bterr"
	"github.com/riverbt/nodeflow/pkg/model"
)

// build runs the initialization order from spec.md §4.6: parse, resolve
// the minimum interval, spawn every node, wire edges, mark leaves, and
// start every node. The cycle driver is not created here: startCycle
// creates it once every node has reported Running.
func (s *Strategy) build(ctx *actor.Context, raw []byte) error {
	doc, err := ParseGraph(raw)
	if err != nil {
		return err
	}
	s.graph = doc

	minInterval, err := resolveMinInterval(doc.Nodes)
	if err != nil {
		return err
	}
	s.minInterval = minInterval

	s.vts = vts.New(s.initialBalance, s.leverage, s.feeRate, sink{s})

	actors := make(map[string]*NodeActor, len(doc.Nodes))

	for _, n := range doc.Nodes {
		base, handler, err := s.newHandler(n, doc.Edges)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		na := NewNodeActor(base, handler)
		pid := ctx.SpawnChild(func() actor.Receiver { return na }, n.ID)

		s.nodeBase[n.ID] = base
		s.nodePID[n.ID] = pid
		actors[n.ID] = na
	}

	for _, e := range doc.Edges {
		srcBase, ok := s.nodeBase[e.Source]
		if !ok {
			return fmt.Errorf("edge references unknown source node %q", e.Source)
		}
		targetPID, ok := s.nodePID[e.Target]
		if !ok {
			return fmt.Errorf("edge references unknown target node %q", e.Target)
		}
		h := srcBase.DefaultOutput
		if e.SourceHandle != "" && e.SourceHandle != "default" {
			if named, ok := srcBase.NamedOutputs[e.SourceHandle]; ok {
				h = named
			}
		}
		h.Subscribe(targetPID)
		// SourceOf is keyed by the source node's own PID, the value
		// NodeActor.Receive observes via ctx.Sender() on delivery.
		actors[e.Target].SourceOf[s.nodePID[e.Source]] = e.Source
	}

	for id, base := range s.nodeBase {
		if base.IsLeaf() {
			s.leafNodeIDs[id] = true
		}
	}

	for _, n := range doc.Nodes {
		s.nodeType[n.ID] = n.Type
	}

	for _, pid := range s.nodePID {
		ctx.Send(pid, node.StartInit{})
		ctx.Send(pid, node.StartRun{})
	}

	return nil
}

// newHandler constructs the node.Base and node-kind-specific EventHandler
// for one graph node.
func (s *Strategy) newHandler(n NodeDoc, edges []EdgeDoc) (*node.Base, node.EventHandler, error) {
	log := s.log

	switch n.Type {
	case TypeKline:
		cfg, err := parseKlineConfig(n)
		if err != nil {
			return nil, nil, err
		}
		base := node.NewBase(n.ID, n.Data.NodeName, s.id, s.self, nil, log)
		return base, kline.New(base, cfg, s.source), nil

	case TypeIndicator:
		cfg, err := parseIndicatorConfig(n)
		if err != nil {
			return nil, nil, err
		}
		base := node.NewBase(n.ID, n.Data.NodeName, s.id, s.self, nil, log)
		return base, indicator.New(base, cfg, s.engine), nil

	case TypeIfElse:
		cfg, err := parseIfElseConfig(n, edges)
		if err != nil {
			return nil, nil, err
		}
		base := node.NewBase(n.ID, n.Data.NodeName, s.id, s.self, namedOutputsFor(n, cfg), log)
		return base, ifelse.New(base, cfg), nil

	case TypeVariable:
		cfg, err := parseVariableConfig(n)
		if err != nil {
			return nil, nil, err
		}
		base := node.NewBase(n.ID, n.Data.NodeName, s.id, s.self, nil, log)
		return base, variable.New(base, cfg), nil

	case TypeOrder:
		cfg, err := parseOrderConfig(n)
		if err != nil {
			return nil, nil, err
		}
		base := node.NewBase(n.ID, n.Data.NodeName, s.id, s.self, nil, log)
		return base, order.New(base, cfg), nil

	case TypePosition:
		cfg, err := parsePositionConfig(n)
		if err != nil {
			return nil, nil, err
		}
		base := node.NewBase(n.ID, n.Data.NodeName, s.id, s.self, nil, log)
		return base, position.New(base, cfg), nil

	default:
		return nil, nil, fmt.Errorf("unknown node type %q", n.Type)
	}
}

// resolveMinInterval implements spec.md §4.6 step 2: group kline node
// configs by symbol, compute each symbol's minimum configured interval,
// and require they all agree.
func resolveMinInterval(nodes []NodeDoc) (model.Interval, error) {
	bySymbol := make(map[string]time.Duration)
	bySymbolInterval := make(map[string]model.Interval)

	for _, n := range nodes {
		if n.Type != TypeKline {
			continue
		}
		cfg, err := parseKlineConfig(n)
		if err != nil {
			return "", err
		}
		d, err := intervalDuration(cfg.Interval)
		if err != nil {
			return "", err
		}
		symbol := cfg.Symbol
		if cur, ok := bySymbol[symbol]; !ok || d < cur {
			bySymbol[symbol] = d
			bySymbolInterval[symbol] = cfg.Interval
		}
	}

	if len(bySymbol) == 0 {
		return "", bterr.ErrSymbolsIsNotConfigured
	}

	var common model.Interval
	var commonDuration time.Duration
	first := true
	for _, interval := range bySymbolInterval {
		d, _ := intervalDuration(interval)
		if first {
			common = interval
			commonDuration = d
			first = false
			continue
		}
		if d != commonDuration {
			return "", bterr.ErrIntervalNotSame
		}
	}
	return common, nil
}

// intervalDuration parses a kline interval string ("1m", "5m", "1h",
// "1d") into a comparable duration. The graph document never needs
// anything finer than minutes/hours/days.
func intervalDuration(interval model.Interval) (time.Duration, error) {
	s := string(interval)
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}
	unit := s[len(s)-1]
	var n int
	if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported interval unit in %q", s)
	}
}
