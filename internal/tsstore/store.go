// Package tsstore implements the engine's time-series store: per-key
// ordered sequences of klines and indicator values with datetime-indexed
// slicing. It is owned exclusively by the strategy context; nodes never
// touch it directly, they go through strategy commands.
package tsstore

import (
	"sort"
	"sync"
	"time"

	"github.com/riverbt/nodeflow/pkg/bterr"
	"github.com/riverbt/nodeflow/pkg/model"
)

// Record is anything that can be ordered and deduplicated by timestamp.
type Record interface {
	Timestamp() time.Time
}

// Store is a generic, read-write-locked map of Key -> ordered []Record.
// Two instances are used by the strategy context: one keyed by
// model.KlineKey holding model.Kline, one keyed by model.IndicatorKey
// holding model.IndicatorValue.
type Store[K comparable, V Record] struct {
	mu     sync.RWMutex
	series map[K][]V
	// minInterval, when non-empty, restricts Init to keys whose Interval
	// func reports the strategy's resolved minimum interval. Only the
	// kline store sets this; pass nil to disable the check.
	intervalOf func(K) (model.Interval, bool)
	minInterval model.Interval
}

// New creates an empty store. intervalOf extracts the kline interval
// from a key for the Init min-interval check; pass nil for stores (like
// the indicator store) that have no such restriction.
func New[K comparable, V Record](intervalOf func(K) (model.Interval, bool)) *Store[K, V] {
	return &Store[K, V]{
		series:     make(map[K][]V),
		intervalOf: intervalOf,
	}
}

// SetMinInterval records the strategy's resolved minimum interval, used
// by Init's SymbolIsNotMinInterval check.
func (s *Store[K, V]) SetMinInterval(interval model.Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minInterval = interval
}

// Init installs the initial series for key if the key is absent or its
// current series is empty.
func (s *Store[K, V]) Init(key K, values []V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.intervalOf != nil && s.minInterval != "" {
		if interval, ok := s.intervalOf(key); ok && interval != s.minInterval {
			return bterr.ErrSymbolIsNotMinInterval
		}
	}

	if existing, ok := s.series[key]; ok && len(existing) > 0 {
		return nil
	}
	s.series[key] = sortDedup(values)
	return nil
}

// Append merges values into key's series, sorting by datetime and
// deduplicating by datetime (keeping the later occurrence).
func (s *Store[K, V]) Append(key K, values []V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := append(append([]V{}, s.series[key]...), values...)
	s.series[key] = sortDedup(merged)
}

// Update replaces the last record if it shares record.Timestamp() with
// the new one, otherwise appends. An empty series just appends.
func (s *Store[K, V]) Update(key K, record V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.series[key]
	if n := len(cur); n > 0 && cur[n-1].Timestamp().Equal(record.Timestamp()) {
		cur[n-1] = record
		return
	}
	s.series[key] = append(cur, record)
}

// GetLength returns the number of records stored for key.
func (s *Store[K, V]) GetLength(key K) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[key])
}

// Slice implements the central lookup described by the store's slice
// semantics: both datetime and limit given uses indexHint as an O(1)
// fast path when it points at an exact match, else falls back to binary
// search; resolvedIndex is -1 when not applicable.
func (s *Store[K, V]) Slice(key K, datetime *time.Time, indexHint *int, limit *int) (records []V, resolvedIndex int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, ok := s.series[key]
	if !ok {
		return nil, -1, bterr.ErrKeyNotFound
	}

	switch {
	case datetime != nil && limit != nil:
		target, empty := resolveTarget(full, *datetime, indexHint)
		if empty {
			return []V{}, -1, nil
		}
		from := target + 1 - *limit
		if from < 0 {
			from = 0
		}
		return cloneRange(full, from, target+1), target, nil

	case datetime != nil:
		target, empty := resolveTarget(full, *datetime, indexHint)
		if empty {
			return []V{}, -1, nil
		}
		return cloneRange(full, 0, target+1), target, nil

	case limit != nil:
		n := len(full)
		from := n - *limit
		if from < 0 {
			from = 0
		}
		return cloneRange(full, from, n), -1, nil

	default:
		return cloneRange(full, 0, len(full)), -1, nil
	}
}

// resolveTarget finds the index `target` such that records[0..target+1]
// ends at or before datetime. empty is true when no such index exists
// (datetime is before the first record).
func resolveTarget[V Record](full []V, datetime time.Time, indexHint *int) (target int, empty bool) {
	if indexHint != nil {
		i := *indexHint
		if i >= 0 && i < len(full) && full[i].Timestamp().Equal(datetime) {
			return i, false
		}
	}

	p := sort.Search(len(full), func(i int) bool {
		return !full[i].Timestamp().Before(datetime)
	})
	if p < len(full) && full[p].Timestamp().Equal(datetime) {
		return p, false
	}
	if p == 0 {
		return 0, true
	}
	return p - 1, false
}

func cloneRange[V any](full []V, from, to int) []V {
	out := make([]V, to-from)
	copy(out, full[from:to])
	return out
}

func sortDedup[V Record](values []V) []V {
	cp := append([]V{}, values...)
	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].Timestamp().Before(cp[j].Timestamp())
	})
	out := cp[:0:0]
	for i, v := range cp {
		if i > 0 && v.Timestamp().Equal(cp[i-1].Timestamp()) {
			out[len(out)-1] = v
			continue
		}
		out = append(out, v)
	}
	return out
}
