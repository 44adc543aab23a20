package event

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventMarshalsCamelCaseFields(t *testing.T) {
	caseID := "case-1"
	e := Event{
		Kind:       KindConditionMatch,
		StrategyID: "strat1",
		NodeID:     "node1",
		CycleID:    5,
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CaseID:     &caseID,
	}

	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	for _, key := range []string{"kind", "strategyId", "nodeId", "cycleId", "timestamp", "caseId"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("expected JSON key %q to be present, got %v", key, fields)
		}
	}
	if _, ok := fields["kline"]; ok {
		t.Error("expected omitempty to drop unset kline field")
	}
}

func TestEventOmitsEmptyOptionalFields(t *testing.T) {
	e := Event{Kind: KindPlayFinished, StrategyID: "strat1"}
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	for _, key := range []string{"nodeId", "cycleId", "order", "position", "transaction", "caseId", "message", "level", "errorCode", "errorCodeChain"} {
		if _, ok := fields[key]; ok {
			t.Errorf("expected omitempty field %q to be absent, got present", key)
		}
	}
}
