// Package exchangeclient implements the kline.Source consumed interface
// (spec.md §6: kline_history and support_kline_intervals) against real
// and fixture-backed data sources, grounded on pkg/exchanges/bybit.go's
// GetKlines call shape.
package exchangeclient

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/rs/zerolog"

	"github.com/riverbt/nodeflow/pkg/bterr"
	"github.com/riverbt/nodeflow/pkg/model"
)

// BybitSource loads historical spot klines from Bybit's V5 REST API,
// paging backwards from end to start in Limit-sized windows.
type BybitSource struct {
	client *bybit.Client
	log    zerolog.Logger
	limit  int
}

func NewBybitSource(apiKey, secret string, testnet bool, log zerolog.Logger) *BybitSource {
	client := bybit.NewClient().WithAuth(apiKey, secret)
	if testnet {
		client = client.WithBaseURL("https://api-testnet.bybit.com")
	}
	return &BybitSource{client: client, log: log, limit: 1000}
}

var intervalMap = map[model.Interval]bybit.Interval{
	"1m":  bybit.Interval("1"),
	"5m":  bybit.Interval("5"),
	"15m": bybit.Interval("15"),
	"30m": bybit.Interval("30"),
	"1h":  bybit.Interval("60"),
	"4h":  bybit.Interval("240"),
	"1d":  bybit.Interval("D"),
}

// KlineHistory implements kline.Source: it pages backwards from end,
// stopping once a returned page's earliest bar reaches or passes start,
// then clips the assembled series to [start, end].
func (b *BybitSource) KlineHistory(exchange, symbol string, interval model.Interval, start, end time.Time) ([]model.Kline, error) {
	bybitInterval, ok := intervalMap[interval]
	if !ok {
		return nil, bterr.ErrIntervalNotSupported.WithCause(fmt.Errorf("interval %q", interval))
	}

	var all []model.Kline
	cursor := end

	for {
		limit := b.limit
		startMillis := start.UnixMilli()
		endMillis := cursor.UnixMilli()
		param := bybit.V5GetKlineParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   bybit.SymbolV5(symbol),
			Interval: bybitInterval,
			Start:    &startMillis,
			End:      &endMillis,
			Limit:    &limit,
		}

		resp, err := b.client.V5().Market().GetKline(param)
		if err != nil {
			return nil, bterr.ErrExchangeRequestFailed.WithCause(err)
		}
		if len(resp.Result.List) == 0 {
			break
		}

		page := make([]model.Kline, 0, len(resp.Result.List))
		for _, item := range resp.Result.List {
			k, err := klineFromV5(item)
			if err != nil {
				return nil, bterr.ErrExchangeRequestFailed.WithCause(err)
			}
			page = append(page, k)
		}
		earliest := page[0].Datetime
		for _, k := range page[1:] {
			if k.Datetime.Before(earliest) {
				earliest = k.Datetime
			}
		}
		all = append(page, all...)

		if !earliest.After(start) || len(resp.Result.List) < b.limit {
			break
		}
		cursor = earliest.Add(-time.Millisecond)
	}

	return clip(all, start, end), nil
}

func (b *BybitSource) SupportedIntervals(exchange string) ([]model.Interval, error) {
	out := make([]model.Interval, 0, len(intervalMap))
	for k := range intervalMap {
		out = append(out, k)
	}
	return out, nil
}

func klineFromV5(item *bybit.V5GetKlineList) (model.Kline, error) {
	startMillis, err := strconv.ParseInt(item.StartTime, 10, 64)
	if err != nil {
		return model.Kline{}, fmt.Errorf("parse start time: %w", err)
	}
	open, _ := strconv.ParseFloat(item.Open, 64)
	high, _ := strconv.ParseFloat(item.High, 64)
	low, _ := strconv.ParseFloat(item.Low, 64)
	closePrice, _ := strconv.ParseFloat(item.Close, 64)
	volume, _ := strconv.ParseFloat(item.Volume, 64)
	return model.Kline{
		Datetime: time.UnixMilli(startMillis).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}, nil
}

func clip(series []model.Kline, start, end time.Time) []model.Kline {
	out := make([]model.Kline, 0, len(series))
	for _, k := range series {
		if k.Datetime.Before(start) || k.Datetime.After(end) {
			continue
		}
		out = append(out, k)
	}
	return out
}
