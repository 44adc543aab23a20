package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/riverbt/nodeflow/pkg/bterr"
)

// GraphDoc is the inbound strategy configuration document (spec.md §6):
// a JSON document of nodes and edges. Unknown fields are rejected per
// Design Notes ("reject unknown or missing fields at load time").
type GraphDoc struct {
	Nodes []NodeDoc `json:"nodes"`
	Edges []EdgeDoc `json:"edges"`
}

type NodeDoc struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data NodeDataDoc `json:"data"`
}

type NodeDataDoc struct {
	NodeName       string             `json:"nodeName"`
	StrategyID     string             `json:"strategyId"`
	BacktestConfig BacktestConfigDoc  `json:"backtestConfig"`
	RawConfig      json.RawMessage    `json:"config"`
}

type BacktestConfigDoc struct {
	DataSource        string                `json:"dataSource"`
	ExchangeModeConfig ExchangeModeConfigDoc `json:"exchangeModeConfig"`
}

type ExchangeModeConfigDoc struct {
	SelectedAccount    string        `json:"selectedAccount"`
	SelectedSymbol     string        `json:"selectedSymbol"`
	SelectedIndicators []string      `json:"selectedIndicators"`
	TimeRange          TimeRangeDoc  `json:"timeRange"`
}

type TimeRangeDoc struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type EdgeDoc struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle"`
}

// ParseGraph decodes raw into a GraphDoc, rejecting unknown fields.
func ParseGraph(raw []byte) (*GraphDoc, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var doc GraphDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, bterr.ErrGraphParseFailed.WithCause(fmt.Errorf("decode strategy graph: %w", err))
	}
	if len(doc.Nodes) == 0 {
		return nil, bterr.ErrGraphParseFailed.WithCause(fmt.Errorf("strategy graph has no nodes"))
	}
	return &doc, nil
}
