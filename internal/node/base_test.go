package node_test

import (
	"testing"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"

	"github.com/riverbt/nodeflow/internal/node"
)

func TestNewBaseIsLeafWithNoOutputsConnected(t *testing.T) {
	base := node.NewBase("n1", "test", "strat1", nil, []string{"case_a", "case_b"}, zerolog.New(nil))
	if !base.IsLeaf() {
		t.Error("expected a node with zero connected outputs to be a leaf")
	}
}

func TestBaseNotLeafWhenDefaultOutputConnected(t *testing.T) {
	base := node.NewBase("n1", "test", "strat1", nil, nil, zerolog.New(nil))
	base.DefaultOutput.Subscribe(&actor.PID{})
	if base.IsLeaf() {
		t.Error("expected a node with a connected default output to not be a leaf")
	}
}

func TestBaseNotLeafWhenNamedOutputConnected(t *testing.T) {
	base := node.NewBase("n1", "test", "strat1", nil, []string{"case_a"}, zerolog.New(nil))
	base.NamedOutputs["case_a"].Subscribe(&actor.PID{})
	if base.IsLeaf() {
		t.Error("expected a node with a connected named output to not be a leaf")
	}
}

func TestBaseCancel(t *testing.T) {
	base := node.NewBase("n1", "test", "strat1", nil, nil, zerolog.New(nil))
	if base.IsCancelled() {
		t.Fatal("expected a fresh node to not be cancelled")
	}
	base.Cancel()
	if !base.IsCancelled() {
		t.Error("expected IsCancelled to report true after Cancel")
	}
}
