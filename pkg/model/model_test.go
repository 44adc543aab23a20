package model

import (
	"testing"
	"time"
)

func TestKlineValid(t *testing.T) {
	cases := []struct {
		name string
		k    Kline
		want bool
	}{
		{"well formed", Kline{Open: 10, High: 12, Low: 9, Close: 11, Volume: 5}, true},
		{"negative volume", Kline{Open: 10, High: 12, Low: 9, Close: 11, Volume: -1}, false},
		{"low above open/close", Kline{Open: 10, High: 12, Low: 10.5, Close: 11, Volume: 1}, false},
		{"high below open/close", Kline{Open: 10, High: 10.5, Low: 9, Close: 11, Volume: 1}, false},
		{"flat bar", Kline{Open: 10, High: 10, Low: 10, Close: 10, Volume: 0}, true},
	}
	for _, c := range cases {
		if got := c.k.Valid(); got != c.want {
			t.Errorf("%s: Valid() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestKlineTimestamp(t *testing.T) {
	dt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	k := Kline{Datetime: dt}
	if !k.Timestamp().Equal(dt) {
		t.Errorf("expected Timestamp to return Datetime, got %v", k.Timestamp())
	}
}

func TestIndicatorValueTimestamp(t *testing.T) {
	dt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	v := IndicatorValue{Datetime: dt}
	if !v.Timestamp().Equal(dt) {
		t.Errorf("expected Timestamp to return Datetime, got %v", v.Timestamp())
	}
}

func TestOrderSideOpposite(t *testing.T) {
	if Long.Opposite() != Short {
		t.Errorf("expected Long.Opposite() == Short, got %v", Long.Opposite())
	}
	if Short.Opposite() != Long {
		t.Errorf("expected Short.Opposite() == Long, got %v", Short.Opposite())
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderFilled, OrderCanceled, OrderExpired, OrderRejected}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %v to be terminal", s)
		}
	}
	nonTerminal := []OrderStatus{OrderCreated, OrderPlaced}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %v to not be terminal", s)
		}
	}
}
