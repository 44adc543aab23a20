// Package event defines the engine's outbound event union (spec.md §6):
// the tagged events nodes and the strategy context publish on output
// handles and on the event bus. JSON field names are camelCase to match
// the external event bus contract.
package event

import (
	"time"

	"github.com/riverbt/nodeflow/pkg/model"
)

type Kind string

const (
	KindPlayFinished            Kind = "PlayFinished"
	KindKlineUpdate             Kind = "KlineUpdate"
	KindTimeUpdate              Kind = "TimeUpdate"
	KindIndicatorUpdate         Kind = "IndicatorUpdate"
	KindSysVariableUpdate       Kind = "SysVariableUpdate"
	KindCustomVariableUpdate    Kind = "CustomVariableUpdate"
	KindFuturesOrderCreated     Kind = "FuturesOrderCreated"
	KindFuturesOrderFilled      Kind = "FuturesOrderFilled"
	KindFuturesOrderCanceled    Kind = "FuturesOrderCanceled"
	KindLimitOrderExecutedDirectly Kind = "LimitOrderExecutedDirectly"
	KindTakeProfitOrderCreated  Kind = "TakeProfitOrderCreated"
	KindStopLossOrderCreated    Kind = "StopLossOrderCreated"
	KindPositionCreated         Kind = "PositionCreated"
	KindPositionUpdated         Kind = "PositionUpdated"
	KindPositionClosed          Kind = "PositionClosed"
	KindStrategyStatsUpdated    Kind = "StrategyStatsUpdated"
	KindTransactionCreated      Kind = "TransactionCreated"
	KindNodeStateLog            Kind = "NodeStateLog"
	KindStrategyStateLog        Kind = "StrategyStateLog"
	KindStrategyRunningLog      Kind = "StrategyRunningLog"
	KindStrategyPerformanceUpdate Kind = "StrategyPerformanceUpdate"
	KindConditionMatch          Kind = "ConditionMatch"
	KindTrigger                 Kind = "Trigger"
	KindExecuteOver             Kind = "ExecuteOver"
)

// Event is the single outbound envelope. Exactly the fields relevant to
// Kind are populated; this mirrors the source's tagged-union-over-JSON
// shape without needing Go-side sum types.
type Event struct {
	Kind       Kind      `json:"kind"`
	StrategyID string    `json:"strategyId"`
	NodeID     string    `json:"nodeId,omitempty"`
	CycleID    int64     `json:"cycleId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	Kline     *model.Kline         `json:"kline,omitempty"`
	KlineKey  *model.KlineKey      `json:"klineKey,omitempty"`
	Indicator *model.IndicatorValue `json:"indicator,omitempty"`

	Order       *model.VirtualOrder       `json:"order,omitempty"`
	Position    *model.VirtualPosition    `json:"position,omitempty"`
	Transaction *model.VirtualTransaction `json:"transaction,omitempty"`

	CaseID  *string `json:"caseId,omitempty"`
	Message string  `json:"message,omitempty"`

	Level string `json:"level,omitempty"`

	ErrorCode      string   `json:"errorCode,omitempty"`
	ErrorCodeChain []string `json:"errorCodeChain,omitempty"`
}

// Bus is anything that accepts outbound events: the eventbus publisher,
// or a recording sink in tests.
type Bus interface {
	Publish(Event)
}
