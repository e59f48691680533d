package coordinator

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/NamanBalaji/rangedl/internal/classify"
	"github.com/NamanBalaji/rangedl/internal/fsmap"
	"github.com/NamanBalaji/rangedl/internal/httpclient"
	"github.com/NamanBalaji/rangedl/internal/rangefile"
)

const (
	directConnectTimeout = 3 * time.Second
	retryBaseDelay       = 500 * time.Millisecond
	retryMaxDelay        = 2 * time.Minute
)

// retryBackoff mirrors the teacher's exponential-backoff-with-jitter helper:
// doubling delay per retry, +/-10% jitter, capped at retryMaxDelay.
func retryBackoff(retryCount int) time.Duration {
	delay := retryBaseDelay * (1 << uint(retryCount))

	jitter := time.Duration(rand.Float64()*float64(delay)*0.2) - time.Duration(float64(delay)*0.1)
	finalDelay := delay + jitter

	if finalDelay > retryMaxDelay {
		finalDelay = retryMaxDelay
	}

	return finalDelay
}

// runDirect implements spec.md §4.6.3. It returns nil on success or a
// pointer to the terminal error kind on failure.
func (c *Coordinator) runDirect(ctx context.Context, rf *rangefile.RangeFile, url, dest string, progress ProgressFunc, cfg Config, probe probeResult, t0 time.Time) *classify.Kind {
	if err := rf.Reserve(probe.contentLength, cfg.BlockSize); err != nil {
		kind := classify.RuntimeError
		return &kind
	}

	if err := rf.Open(dest); err != nil {
		fsKind, _ := fsmap.Map(dest, err)
		return &fsKind
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	retryCount := 0

	for {
		cancelled := &atomic.Bool{}
		attemptCtx, cancel := context.WithCancel(ctx)

		stop := make(chan struct{})
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					if !progress(probe.contentLength, rf.Processed()) {
						cancelled.Store(true)
						cancel()

						return
					}
				}
			}
		}()

		var fillErr error

		sink := func(data []byte) (int, error) {
			if err := rf.FillSequential(data, len(data)); err != nil {
				fillErr = err
				return 0, err
			}

			return len(data), nil
		}

		status, err := c.http.StreamingGet(attemptCtx, url, cfg.Headers, directConnectTimeout, httpclient.DefaultLowSpeed, sink)

		close(stop)
		cancel()

		if fillErr != nil {
			fsKind, _ := fsmap.Map(dest, fillErr)
			return &fsKind
		}

		if cancelled.Load() {
			kind := classify.OperationInterrupted
			return &kind
		}

		var kind classify.Kind

		var fatal bool

		if err != nil {
			if errors.Is(err, context.Canceled) {
				kind, fatal = classify.Classify(classify.Outcome{WasCancelled: true})
			} else {
				kind, fatal = classify.Classify(classify.Outcome{Transport: transportCodeOf(err)})
			}
		} else {
			kind, fatal = classify.Classify(classify.Outcome{TransportOK: true, HTTPStatus: status})
		}

		if kind == classify.Success {
			return nil
		}

		if fatal {
			return &kind
		}

		remaining := cfg.Timeout - time.Since(t0)
		if remaining <= 0 {
			return &kind
		}

		delay := retryBackoff(retryCount)
		if delay > remaining {
			delay = remaining
		}

		retryCount++

		c.log.Warnf("direct mode retrying %s after %v (backoff %v): %v", url, kind, delay, err)

		select {
		case <-ctx.Done():
			kind := classify.OperationInterrupted
			return &kind
		case <-time.After(delay):
		}

		// A retry is a fresh GET of the whole body, so reopen the temp file
		// to write it from offset 0 over the earlier attempt's bytes.
		err = rf.Close(false)
		if err == nil {
			err = rf.Reserve(probe.contentLength, cfg.BlockSize)
		}
		if err == nil {
			err = rf.Open(dest)
		}
		if err != nil {
			fsKind, _ := fsmap.Map(dest, err)
			return &fsKind
		}
	}
}
