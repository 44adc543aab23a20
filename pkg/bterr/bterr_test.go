package bterr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessageWithoutCause(t *testing.T) {
	e := New("TEST", 9001, 400, "something broke", "出错了")
	if got := e.Error(); got != "TEST_9001: something broke" {
		t.Errorf("unexpected error string: %q", got)
	}
}

func TestErrorMessageWithCause(t *testing.T) {
	e := New("TEST", 9002, 400, "something broke", "出错了")
	wrapped := e.WithCause(errors.New("root cause"))
	want := "TEST_9002: something broke: root cause"
	if got := wrapped.Error(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestWithCauseDoesNotMutateOriginal(t *testing.T) {
	e := New("TEST", 9003, 400, "something broke", "出错了")
	_ = e.WithCause(errors.New("root cause"))
	if e.Cause != nil {
		t.Error("expected WithCause to leave the package-level definition untouched")
	}
}

func TestErrorCode(t *testing.T) {
	e := New("TEST", 9004, 400, "broke", "坏了")
	if got := e.ErrorCode(); got != "TEST_9004" {
		t.Errorf("expected TEST_9004, got %q", got)
	}
}

func TestNewIsIdempotentPerPrefixCode(t *testing.T) {
	a := New("TEST", 9005, 400, "first registration", "first")
	b := New("TEST", 9005, 500, "second registration attempt", "second")
	if a != b {
		t.Error("expected New to return the existing registration for a repeated prefix+code")
	}
	if b.HTTPStatus != 400 {
		t.Errorf("expected the original HTTPStatus to win, got %d", b.HTTPStatus)
	}
}

func TestLookup(t *testing.T) {
	e := New("TEST", 9006, 400, "lookup me", "找到我")
	got, ok := Lookup("TEST_9006")
	if !ok || got != e {
		t.Errorf("expected Lookup to find the registered error, got %v ok=%v", got, ok)
	}

	_, ok = Lookup("TEST_0000")
	if ok {
		t.Error("expected Lookup to report false for an unregistered code")
	}
}

func TestCodeChainWalksWrappedErrors(t *testing.T) {
	inner := New("INNER", 1001, 400, "inner failure", "内部错误")
	outer := New("OUTER", 2002, 500, "outer failure", "外部错误").WithCause(inner)

	chain := CodeChain(outer)
	if len(chain) != 2 || chain[0] != "OUTER_2002" || chain[1] != "INNER_1001" {
		t.Errorf("unexpected chain: %v", chain)
	}
}

func TestCodeChainStopsAtNonBterrError(t *testing.T) {
	outer := New("OUTER", 2003, 500, "outer failure", "外部错误").WithCause(fmt.Errorf("plain error"))
	chain := CodeChain(outer)
	if len(chain) != 1 || chain[0] != "OUTER_2003" {
		t.Errorf("expected chain to stop at the plain error, got %v", chain)
	}
}

func TestCodeChainEmptyForNilError(t *testing.T) {
	if chain := CodeChain(nil); chain != nil {
		t.Errorf("expected nil chain for nil error, got %v", chain)
	}
}

func TestAs(t *testing.T) {
	e := New("TEST", 9007, 400, "as test", "as测试")
	wrapped := fmt.Errorf("context: %w", e)

	var target *Error
	if !As(wrapped, &target) {
		t.Fatal("expected As to find the wrapped *Error")
	}
	if target.Code != 9007 {
		t.Errorf("expected code 9007, got %d", target.Code)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root")
	e := New("TEST", 9008, 400, "unwrap test", "解包测试").WithCause(cause)
	if errors.Unwrap(e) != cause {
		t.Error("expected Unwrap to return the cause")
	}
}
