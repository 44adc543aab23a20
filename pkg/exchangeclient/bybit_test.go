package exchangeclient

import (
	"testing"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/rs/zerolog"

	"github.com/riverbt/nodeflow/pkg/model"
)

func TestClip(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)

	series := []model.Kline{
		{Datetime: start.Add(-time.Minute)},
		{Datetime: start},
		{Datetime: start.Add(5 * time.Minute)},
		{Datetime: end},
		{Datetime: end.Add(time.Minute)},
	}

	out := clip(series, start, end)
	if len(out) != 3 {
		t.Fatalf("expected 3 klines within [start,end], got %d", len(out))
	}
	if out[0].Datetime != start || out[2].Datetime != end {
		t.Errorf("unexpected clip bounds: first=%v last=%v", out[0].Datetime, out[2].Datetime)
	}
}

func TestKlineFromV5(t *testing.T) {
	item := &bybit.V5GetKlineList{
		StartTime: "1704067200000",
		Open:      "100.5",
		High:      "101.5",
		Low:       "99.5",
		Close:     "100.8",
		Volume:    "12.34",
	}

	k, err := klineFromV5(item)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if k.Open != 100.5 || k.High != 101.5 || k.Low != 99.5 || k.Close != 100.8 || k.Volume != 12.34 {
		t.Errorf("unexpected kline values: %+v", k)
	}
	expected := time.UnixMilli(1704067200000).UTC()
	if !k.Datetime.Equal(expected) {
		t.Errorf("expected datetime %v, got %v", expected, k.Datetime)
	}
}

func TestKlineFromV5InvalidStartTime(t *testing.T) {
	item := &bybit.V5GetKlineList{StartTime: "not-a-number"}
	_, err := klineFromV5(item)
	if err == nil {
		t.Fatal("expected error for unparseable start time")
	}
}

func TestBybitSourceSupportedIntervals(t *testing.T) {
	b := NewBybitSource("key", "secret", true, zerolog.New(nil))
	intervals, err := b.SupportedIntervals("bybit")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(intervals) != len(intervalMap) {
		t.Fatalf("expected %d intervals, got %d", len(intervalMap), len(intervals))
	}
}

func TestBybitSourceKlineHistoryUnsupportedInterval(t *testing.T) {
	b := NewBybitSource("key", "secret", true, zerolog.New(nil))
	_, err := b.KlineHistory("bybit", "BTCUSDT", model.Interval("2m"), time.Now(), time.Now())
	if err == nil {
		t.Fatal("expected error for unsupported interval")
	}
}
