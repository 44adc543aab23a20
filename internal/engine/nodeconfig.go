package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/riverbt/nodeflow/internal/node/ifelse"
	"github.com/riverbt/nodeflow/internal/node/indicator"
	"github.com/riverbt/nodeflow/internal/node/kline"
	"github.com/riverbt/nodeflow/internal/node/order"
	"github.com/riverbt/nodeflow/internal/node/position"
	"github.com/riverbt/nodeflow/internal/node/variable"
	"github.com/riverbt/nodeflow/pkg/model"
)

// Node type strings as they appear in the inbound graph document's
// node.type field (spec.md §6).
const (
	TypeKline     = "kline_node"
	TypeIndicator = "indicator_node"
	TypeIfElse    = "if_else_node"
	TypeVariable  = "variable_node"
	TypeOrder     = "order_node"
	TypePosition  = "position_node"
)

const dateLayout = "2006-01-02"

func parseKlineConfig(doc NodeDoc) (kline.Config, error) {
	start, err := time.Parse(dateLayout, doc.Data.BacktestConfig.ExchangeModeConfig.TimeRange.StartDate)
	if err != nil {
		return kline.Config{}, fmt.Errorf("parse start_date: %w", err)
	}
	end, err := time.Parse(dateLayout, doc.Data.BacktestConfig.ExchangeModeConfig.TimeRange.EndDate)
	if err != nil {
		return kline.Config{}, fmt.Errorf("parse end_date: %w", err)
	}

	var raw struct {
		Interval string `json:"interval"`
	}
	_ = json.Unmarshal(doc.Data.RawConfig, &raw)

	return kline.Config{
		Account:  doc.Data.BacktestConfig.ExchangeModeConfig.SelectedAccount,
		Symbol:   doc.Data.BacktestConfig.ExchangeModeConfig.SelectedSymbol,
		Exchange: doc.Data.BacktestConfig.DataSource,
		Interval: model.Interval(raw.Interval),
		Start:    start,
		End:      end,
	}, nil
}

func parseIndicatorConfig(doc NodeDoc) (indicator.Config, error) {
	var raw struct {
		Symbol        string            `json:"symbol"`
		Exchange      string            `json:"exchange"`
		Interval      string            `json:"interval"`
		IsMinInterval bool              `json:"isMinInterval"`
		Lookback      int               `json:"lookback"`
		Kind          string            `json:"kind"`
		Params        map[string]string `json:"params"`
	}
	if err := json.Unmarshal(doc.Data.RawConfig, &raw); err != nil {
		return indicator.Config{}, fmt.Errorf("parse indicator node config: %w", err)
	}
	return indicator.Config{
		Symbol:        raw.Symbol,
		Exchange:      raw.Exchange,
		Interval:      model.Interval(raw.Interval),
		IsMinInterval: raw.IsMinInterval,
		Lookback:      raw.Lookback,
		IndicatorConfig: model.IndicatorConfig{
			Kind:   raw.Kind,
			Params: raw.Params,
		},
	}, nil
}

func parseIfElseConfig(doc NodeDoc, edges []EdgeDoc) (ifelse.Config, error) {
	var raw struct {
		Cases []struct {
			ID         string `json:"id"`
			Operator   string `json:"operator"`
			Conditions []struct {
				Left struct {
					IsConstant bool    `json:"isConstant"`
					NodeID     string  `json:"nodeId"`
					VarName    string  `json:"varName"`
					Constant   float64 `json:"constant"`
				} `json:"left"`
				Right struct {
					IsConstant bool    `json:"isConstant"`
					NodeID     string  `json:"nodeId"`
					VarName    string  `json:"varName"`
					Constant   float64 `json:"constant"`
				} `json:"right"`
				Op string `json:"op"`
			} `json:"conditions"`
		} `json:"cases"`
	}
	if err := json.Unmarshal(doc.Data.RawConfig, &raw); err != nil {
		return ifelse.Config{}, fmt.Errorf("parse if/else node config: %w", err)
	}

	upstream := map[string]bool{}
	for _, e := range edges {
		if e.Target == doc.ID {
			upstream[e.Source] = true
		}
	}
	ids := make([]string, 0, len(upstream))
	for id := range upstream {
		ids = append(ids, id)
	}

	cases := make([]ifelse.Case, 0, len(raw.Cases))
	for _, c := range raw.Cases {
		conds := make([]ifelse.Condition, 0, len(c.Conditions))
		for _, cond := range c.Conditions {
			conds = append(conds, ifelse.Condition{
				Left:  ifelse.VarRef{IsConstant: cond.Left.IsConstant, NodeID: cond.Left.NodeID, VarName: cond.Left.VarName, Constant: cond.Left.Constant},
				Right: ifelse.VarRef{IsConstant: cond.Right.IsConstant, NodeID: cond.Right.NodeID, VarName: cond.Right.VarName, Constant: cond.Right.Constant},
				Op:    ifelse.CompareOp(cond.Op),
			})
		}
		op := ifelse.And
		if c.Operator == "or" {
			op = ifelse.Or
		}
		cases = append(cases, ifelse.Case{ID: c.ID, Operator: op, Conditions: conds})
	}

	return ifelse.Config{UpstreamNodeIDs: ids, Cases: cases}, nil
}

func parseVariableConfig(doc NodeDoc) (variable.Config, error) {
	var raw struct {
		Rules []struct {
			Name         string  `json:"name"`
			Initial      float64 `json:"initial"`
			SourceField  string  `json:"sourceField"`
			SourceNodeID string  `json:"sourceNodeId"`
			UpdateScript string  `json:"updateScript"`
			NullPolicy   string  `json:"nullPolicy"`
			ReplaceValue float64 `json:"replaceValue"`
		} `json:"rules"`
	}
	if err := json.Unmarshal(doc.Data.RawConfig, &raw); err != nil {
		return variable.Config{}, fmt.Errorf("parse variable node config: %w", err)
	}
	rules := make([]variable.Rule, 0, len(raw.Rules))
	for _, r := range raw.Rules {
		rules = append(rules, variable.Rule{
			Name:         r.Name,
			Initial:      r.Initial,
			SourceField:  r.SourceField,
			SourceNodeID: r.SourceNodeID,
			UpdateScript: r.UpdateScript,
			NullPolicy:   variable.NullPolicy(r.NullPolicy),
			ReplaceValue: r.ReplaceValue,
		})
	}
	return variable.Config{Rules: rules}, nil
}

func parseOrderConfig(doc NodeDoc) (order.Config, error) {
	var raw struct {
		OrderConfigID int      `json:"orderConfigId"`
		Symbol        string   `json:"symbol"`
		Exchange      string   `json:"exchange"`
		Side          string   `json:"side"`
		Type          string   `json:"type"`
		Quantity      float64  `json:"quantity"`
		LimitPrice    float64  `json:"limitPrice"`
		TP            *float64 `json:"tp"`
		SL            *float64 `json:"sl"`
	}
	if err := json.Unmarshal(doc.Data.RawConfig, &raw); err != nil {
		return order.Config{}, fmt.Errorf("parse order node config: %w", err)
	}
	return order.Config{
		OrderConfigID: raw.OrderConfigID,
		Symbol:        raw.Symbol,
		Exchange:      raw.Exchange,
		Side:          model.OrderSide(raw.Side),
		Type:          model.OrderType(raw.Type),
		Quantity:      raw.Quantity,
		LimitPrice:    raw.LimitPrice,
		TP:            raw.TP,
		SL:            raw.SL,
	}, nil
}

func parsePositionConfig(doc NodeDoc) (position.Config, error) {
	var raw struct {
		Symbol   string `json:"symbol"`
		Exchange string `json:"exchange"`
	}
	_ = json.Unmarshal(doc.Data.RawConfig, &raw)
	return position.Config{Symbol: raw.Symbol, Exchange: raw.Exchange}, nil
}

// namedOutputsFor returns the named output handles a node of this type
// needs beyond its default output (if/else case + else outputs).
func namedOutputsFor(doc NodeDoc, cfg ifelse.Config) []string {
	if doc.Type != TypeIfElse {
		return nil
	}
	names := make([]string, 0, len(cfg.Cases)+1)
	for _, c := range cfg.Cases {
		names = append(names, "if_else_node_case_"+c.ID+"_output")
	}
	names = append(names, "if_else_node_else_output")
	return names
}
