package httpclient

import (
	"context"
	"sync/atomic"
	"time"
)

// throughputWatchdog implements the "low-speed" abort described in
// spec.md §4.4: the transfer is considered stalled when, over one Window,
// fewer than Threshold bytes per second arrive on average. Windows are
// checked back to back, not as a rolling average.
type throughputWatchdog struct {
	threshold int64
	window    time.Duration

	bytesSinceTick atomic.Int64
	trippedFlag    atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newThroughputWatchdog(ctx context.Context, low LowSpeed) *throughputWatchdog {
	wctx, cancel := context.WithCancel(ctx)

	w := &throughputWatchdog{
		threshold: low.Threshold,
		window:    low.Window,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	if low.Threshold <= 0 || low.Window <= 0 {
		close(w.done)
		return w
	}

	go w.run(wctx)

	return w
}

func (w *throughputWatchdog) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if float64(w.bytesSinceTick.Swap(0)) < float64(w.threshold)*w.window.Seconds() {
				w.trippedFlag.Store(true)
				return
			}
		}
	}
}

func (w *throughputWatchdog) observe(n int) {
	w.bytesSinceTick.Add(int64(n))
}

func (w *throughputWatchdog) tripped() bool {
	return w.trippedFlag.Load()
}

func (w *throughputWatchdog) stop() {
	w.cancel()
	<-w.done
}
