// Package model holds the data types shared across the engine: klines,
// indicator values, orders, positions and the keys that identify their
// series in the time-series store.
package model

import "time"

// Kline is one OHLCV bar. Invariant: low <= min(open,close) <=
// max(open,close) <= high; volume >= 0.
type Kline struct {
	Datetime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Valid reports whether k satisfies the OHLC ordering invariant.
func (k Kline) Valid() bool {
	if k.Volume < 0 {
		return false
	}
	lo := min(k.Open, k.Close)
	hi := max(k.Open, k.Close)
	return k.Low <= lo && hi <= k.High
}

// Interval is a kline period such as "1m", "1h", "1d".
type Interval string

// KlineKey identifies one kline series.
type KlineKey struct {
	Exchange   string
	Symbol     string
	Interval   Interval
	RangeStart time.Time
	RangeEnd   time.Time
}

// IndicatorConfig identifies the parameters of one indicator instance,
// e.g. {Kind: "sma", Params: {"period": "20"}}.
type IndicatorConfig struct {
	Kind   string
	Params map[string]string
}

// IndicatorKey identifies one derived indicator series.
type IndicatorKey struct {
	Kline  KlineKey
	Config IndicatorConfig
}

// IndicatorValue is a time-keyed, schema-opaque indicator record. Fields
// holds named numeric outputs (e.g. {"value": 54.2} for SMA, or
// {"macd": .., "signal": .., "hist": ..} for MACD).
type IndicatorValue struct {
	Datetime time.Time
	Fields   map[string]float64
}

// Timestamp returns the value's key used for ordering/dedup in a series.
func (k Kline) Timestamp() time.Time          { return k.Datetime }
func (v IndicatorValue) Timestamp() time.Time { return v.Datetime }
