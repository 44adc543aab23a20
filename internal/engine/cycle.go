package engine

import (
	"sync"
	"time"

	"github.com/riverbt/nodeflow/pkg/bterr"
)

// cycleDriver is the playback clock (spec.md §4.7): a goroutine owned by
// the Strategy actor, not a hollywood actor itself, since its loop is a
// plain cooperative wait/notify cycle with no mailbox of its own.
type cycleDriver struct {
	mu         sync.Mutex
	playIndex  int64
	totalBars  int64
	isPlaying  bool
	stopped    bool
	playSpeed  time.Duration

	notify chan struct{}
	resume chan struct{}
	done   chan struct{}
}

func newCycleDriver(totalBars int64, playSpeed time.Duration) *cycleDriver {
	return &cycleDriver{
		playIndex: -1,
		totalBars: totalBars,
		playSpeed: playSpeed,
		notify:    make(chan struct{}, 1),
		resume:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// run is the loop from spec.md §4.7. The driver starts parked (isPlaying
// is false until play() is called, even though newCycleDriver has
// already set playIndex to -1) so Build can launch this goroutine right
// away and it won't advance a single bar until the caller issues Play.
// onTick is called synchronously with the new play_index (the Strategy
// actor fans it out to every node as a node.CycleTick); onFinished is
// called once the run completes or is cancelled.
func (d *cycleDriver) run(onTick func(playIndex int64), onFinished func()) {
	defer close(d.done)

	for {
		d.mu.Lock()
		playing, stopped := d.isPlaying, d.stopped
		d.mu.Unlock()
		if stopped {
			break
		}
		if !playing {
			<-d.resume
			d.mu.Lock()
			stopped = d.stopped
			d.mu.Unlock()
			if stopped {
				break
			}
		}

		d.mu.Lock()
		next := d.playIndex + 1
		d.mu.Unlock()
		if next >= d.totalBars {
			break
		}

		d.mu.Lock()
		d.playIndex = next
		d.mu.Unlock()

		onTick(next)

		<-d.notify

		if d.playSpeed > 0 {
			time.Sleep(d.playSpeed)
		}
	}
	onFinished()
}

// notifyExecuteOver wakes the driver once the strategy context has seen
// ExecuteOver from every leaf for the current play_index.
func (d *cycleDriver) notifyExecuteOver() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *cycleDriver) play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isPlaying {
		return bterr.ErrAlreadyPlaying
	}
	d.isPlaying = true
	select {
	case d.resume <- struct{}{}:
	default:
	}
	return nil
}

func (d *cycleDriver) pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isPlaying {
		return bterr.ErrAlreadyPaused
	}
	d.isPlaying = false
	return nil
}

func (d *cycleDriver) stop() {
	d.mu.Lock()
	d.stopped = true
	playing := d.isPlaying
	d.isPlaying = true
	d.mu.Unlock()
	if !playing {
		select {
		case d.resume <- struct{}{}:
		default:
		}
	}
	d.notifyExecuteOver()
}

func (d *cycleDriver) currentPlayIndex() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playIndex
}
