// Package indicatorengine is a deterministic reference implementation of
// the indicator node's consumed calculation engine (spec.md §6), adapted
// from the teacher's internal/strategy technical-indicator math (SMA,
// EMA, RSI, MACD) but operating directly on []model.Kline closes instead
// of starlark.List, since this engine is a plain Go dependency rather
// than a user-scriptable builtin. Indicator mathematics beyond these four
// are explicitly out of scope (spec.md §1 Non-goals: "TA-Lib indicator
// mathematics").
package indicatorengine

import (
	"fmt"
	"math"
	"strconv"

	"github.com/riverbt/nodeflow/pkg/bterr"
	"github.com/riverbt/nodeflow/pkg/model"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) CalculateHistoryIndicator(key model.IndicatorKey, series []model.Kline, cfg model.IndicatorConfig) ([]model.IndicatorValue, error) {
	closes := make([]float64, len(series))
	for i, k := range series {
		closes[i] = k.Close
	}

	switch cfg.Kind {
	case "sma":
		period, err := periodOf(cfg, "period", 20)
		if err != nil {
			return nil, err
		}
		return values(series, sma(closes, period), "value"), nil

	case "ema":
		period, err := periodOf(cfg, "period", 20)
		if err != nil {
			return nil, err
		}
		return values(series, ema(closes, period), "value"), nil

	case "rsi":
		period, err := periodOf(cfg, "period", 14)
		if err != nil {
			return nil, err
		}
		return values(series, rsi(closes, period), "value"), nil

	case "macd":
		fast, err := periodOf(cfg, "fast", 12)
		if err != nil {
			return nil, err
		}
		slow, err := periodOf(cfg, "slow", 26)
		if err != nil {
			return nil, err
		}
		signalPeriod, err := periodOf(cfg, "signal", 9)
		if err != nil {
			return nil, err
		}
		macdLine := subtract(ema(closes, fast), ema(closes, slow))
		signalLine := ema(macdLine, signalPeriod)
		hist := subtract(macdLine, signalLine)
		out := make([]model.IndicatorValue, len(series))
		for i, k := range series {
			out[i] = model.IndicatorValue{Datetime: k.Datetime, Fields: map[string]float64{
				"macd": macdLine[i], "signal": signalLine[i], "hist": hist[i],
			}}
		}
		return out, nil

	default:
		return nil, bterr.ErrCalculateHistoryIndicatorFailed.WithCause(fmt.Errorf("unsupported indicator kind %q", cfg.Kind))
	}
}

func periodOf(cfg model.IndicatorConfig, name string, fallback int) (int, error) {
	raw, ok := cfg.Params[name]
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, bterr.ErrCalculateHistoryIndicatorFailed.WithCause(fmt.Errorf("invalid %s parameter %q: %w", name, raw, err))
	}
	return v, nil
}

func values(series []model.Kline, v []float64, field string) []model.IndicatorValue {
	out := make([]model.IndicatorValue, len(series))
	for i, k := range series {
		out[i] = model.IndicatorValue{Datetime: k.Datetime, Fields: map[string]float64{field: v[i]}}
	}
	return out
}

func sma(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	for i := range prices {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += prices[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}

func ema(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	if len(prices) == 0 {
		return out
	}
	multiplier := 2.0 / (float64(period) + 1.0)
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = prices[i]*multiplier + out[i-1]*(1-multiplier)
	}
	return out
}

func rsi(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	if len(prices) < period+1 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	for i := 0; i < period; i++ {
		out[i] = math.NaN()
	}
	out[period] = rsiFromAvg(avgGain, avgLoss)
	for i := period + 1; i < len(prices); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func subtract(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
