package engine

import (
	"sync"
	"testing"
	"time"
)

func TestCycleDriverParksUntilPlay(t *testing.T) {
	d := newCycleDriver(3, 0)

	var mu sync.Mutex
	var ticks []int64
	finished := make(chan struct{})

	go d.run(func(playIndex int64) {
		mu.Lock()
		ticks = append(ticks, playIndex)
		mu.Unlock()
		d.notifyExecuteOver()
	}, func() { close(finished) })

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	n := len(ticks)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no ticks before Play, got %d", n)
	}

	if err := d.play(); err != nil {
		t.Fatalf("expected no error from play(), got %v", err)
	}

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("cycle driver did not finish within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %d (%v)", len(ticks), ticks)
	}
	for i, idx := range ticks {
		if idx != int64(i) {
			t.Errorf("expected tick %d to carry play_index %d, got %d", i, i, idx)
		}
	}
}

func TestCycleDriverPauseResume(t *testing.T) {
	d := newCycleDriver(5, 0)

	tickCh := make(chan int64, 10)
	finished := make(chan struct{})

	// The test itself plays the strategy context's role and signals
	// ExecuteOver, so it can pause while the driver waits on a tick.
	go d.run(func(playIndex int64) {
		tickCh <- playIndex
	}, func() { close(finished) })

	if err := d.play(); err != nil {
		t.Fatalf("expected no error from play(), got %v", err)
	}

	select {
	case <-tickCh:
	case <-time.After(time.Second):
		t.Fatal("expected a tick after play()")
	}

	if err := d.pause(); err != nil {
		t.Fatalf("expected no error from pause(), got %v", err)
	}
	if err := d.pause(); err == nil {
		t.Error("expected error pausing an already-paused driver")
	}
	d.notifyExecuteOver()

	select {
	case idx := <-tickCh:
		t.Fatalf("expected no further ticks while paused, got %d", idx)
	case <-time.After(50 * time.Millisecond):
	}

	if err := d.play(); err != nil {
		t.Fatalf("expected no error resuming play(), got %v", err)
	}
	if err := d.play(); err == nil {
		t.Error("expected error playing an already-playing driver")
	}

	select {
	case <-tickCh:
	case <-time.After(time.Second):
		t.Fatal("expected a tick after resuming play()")
	}

	d.stop()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("cycle driver did not finish after stop()")
	}
}

func TestCycleDriverStopWhilePaused(t *testing.T) {
	d := newCycleDriver(10, 0)
	finished := make(chan struct{})

	go d.run(func(playIndex int64) {
		d.notifyExecuteOver()
	}, func() { close(finished) })

	time.Sleep(10 * time.Millisecond)
	d.stop()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("cycle driver did not finish after stop() while parked")
	}
}

func TestCycleDriverCurrentPlayIndex(t *testing.T) {
	d := newCycleDriver(2, 0)
	if idx := d.currentPlayIndex(); idx != -1 {
		t.Errorf("expected initial play_index -1, got %d", idx)
	}

	finished := make(chan struct{})
	go d.run(func(playIndex int64) { d.notifyExecuteOver() }, func() { close(finished) })

	d.play()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("cycle driver did not finish within timeout")
	}

	if idx := d.currentPlayIndex(); idx != 1 {
		t.Errorf("expected final play_index 1 (totalBars=2), got %d", idx)
	}
}
