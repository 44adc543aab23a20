package exchangeclient

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/riverbt/nodeflow/pkg/bterr"
	"github.com/riverbt/nodeflow/pkg/model"
)

// FileSource is a deterministic, fixture-backed kline.Source for tests
// and offline replays: CSV files named "<symbol>_<interval>.csv" under
// Dir, one row per bar (datetime,open,high,low,close,volume), datetime
// as RFC3339.
type FileSource struct {
	Dir       string
	Intervals []model.Interval
}

func NewFileSource(dir string, intervals ...model.Interval) *FileSource {
	return &FileSource{Dir: dir, Intervals: intervals}
}

func (f *FileSource) KlineHistory(exchange, symbol string, interval model.Interval, start, end time.Time) ([]model.Kline, error) {
	path := fmt.Sprintf("%s/%s_%s.csv", f.Dir, symbol, interval)
	file, err := os.Open(path)
	if err != nil {
		return nil, bterr.ErrExchangeRequestFailed.WithCause(err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, bterr.ErrExchangeRequestFailed.WithCause(err)
	}

	out := make([]model.Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		dt, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, bterr.ErrExchangeRequestFailed.WithCause(fmt.Errorf("parse datetime %q: %w", row[0], err))
		}
		if dt.Before(start) || dt.After(end) {
			continue
		}
		k := model.Kline{Datetime: dt}
		k.Open, _ = strconv.ParseFloat(row[1], 64)
		k.High, _ = strconv.ParseFloat(row[2], 64)
		k.Low, _ = strconv.ParseFloat(row[3], 64)
		k.Close, _ = strconv.ParseFloat(row[4], 64)
		k.Volume, _ = strconv.ParseFloat(row[5], 64)
		out = append(out, k)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Datetime.Before(out[j].Datetime) })
	return out, nil
}

func (f *FileSource) SupportedIntervals(exchange string) ([]model.Interval, error) {
	return f.Intervals, nil
}
