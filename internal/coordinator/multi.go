package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/rangedl/internal/classify"
	"github.com/NamanBalaji/rangedl/internal/fsmap"
	"github.com/NamanBalaji/rangedl/internal/interval"
	"github.com/NamanBalaji/rangedl/internal/rangefile"
)

const (
	multiConnectTimeout = directConnectTimeout
	dumpPeriod          = 5 * time.Second
)

// runMulti implements spec.md §4.6.4: a worker pool over a shared
// RangeFile, arbitrated by a single coordinator loop.
func (c *Coordinator) runMulti(ctx context.Context, rf *rangefile.RangeFile, url, dest string, progress ProgressFunc, cfg Config, probe probeResult, t0 time.Time) *classify.Kind {
	if err := rf.Reserve(probe.contentLength, cfg.BlockSize); err != nil {
		kind := classify.RuntimeError
		return &kind
	}

	if err := rf.Open(dest); err != nil {
		fsKind, _ := fsmap.Map(dest, err)
		return &fsKind
	}

	global := &atomicFlag{}
	global.store(flagRunning)

	states := make([]*workerState, cfg.Connections)
	for i := range states {
		states[i] = newWorkerState()
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var g errgroup.Group

	for i := range states {
		ws := states[i]

		g.Go(func() error {
			c.workerLoop(workerCtx, rf, url, dest, cfg, global, ws)
			return nil
		})
	}

	var downloadErr *classify.Kind

	pollInterval := cfg.Interval
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}

	lastDump := time.Now()
	i := 0

loop:
	for global.load() == flagRunning && !rf.IsFull() {
		for i < len(states) && states[i].getFlag() == wsFinished {
			i++
		}

		if i >= len(states) {
			break
		}

		if time.Since(t0) > cfg.Timeout && states[i].outcome() != noError {
			if modal, allErroring := modalErrorKind(states); allErroring {
				global.store(flagFailed)
				downloadErr = &modal

				break loop
			}
		}

		if !progress(probe.contentLength, rf.Processed()) {
			global.store(flagCancelled)
			kind := classify.OperationInterrupted
			downloadErr = &kind

			break loop
		}

		if time.Since(lastDump) >= dumpPeriod {
			if err := rf.Dump(); err != nil {
				c.log.Warnf("dump failed: %v", err)
			}

			lastDump = time.Now()
		}

		time.Sleep(pollInterval)
	}

	cancelWorkers()
	_ = g.Wait()

	if downloadErr == nil && !rf.IsFull() {
		if modal, allErroring := modalErrorKind(states); allErroring {
			downloadErr = &modal
		} else {
			kind := classify.RuntimeError
			downloadErr = &kind
		}
	}

	return downloadErr
}

// workerLoop implements spec.md §4.6.4's "Worker loop".
func (c *Coordinator) workerLoop(ctx context.Context, rf *rangefile.RangeFile, url, dest string, cfg Config, global *atomicFlag, ws *workerState) {
	ws.setFlag(wsRunning)

	for global.load() == flagRunning {
		iv, ok := rf.Allocate()
		if !ok {
			ws.setFlag(wsFinished)
			return
		}

		kind, fatal := c.attemptRange(ctx, rf, url, dest, cfg, iv)
		ws.recordOutcome(kind)

		if fatal {
			ws.setFlag(wsInterrupted)
			return
		}
	}

	ws.setFlag(wsFinished)
}

// attemptRange performs one rangedGet+fill attempt and classifies the
// result, always deallocating iv on the way out.
func (c *Coordinator) attemptRange(ctx context.Context, rf *rangefile.RangeFile, url, dest string, cfg Config, iv interval.TrackedInterval) (classify.Kind, bool) {
	defer rf.Deallocate(iv)

	body, status, err := c.http.RangedGet(ctx, url, cfg.Headers, multiConnectTimeout, iv.Start, iv.End)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return classify.Classify(classify.Outcome{WasCancelled: true})
		}

		return classify.Classify(classify.Outcome{Transport: transportCodeOf(err)})
	}

	if status != 200 && status != 206 {
		return classify.Classify(classify.Outcome{TransportOK: true, HTTPStatus: status})
	}

	if _, ferr := rf.Fill(iv, body, len(body)); ferr != nil {
		fsKind, _ := fsmap.Map(dest, ferr)
		return classify.Classify(classify.Outcome{FilesystemKind: fsKind})
	}

	return classify.Classify(classify.Outcome{TransportOK: true, HTTPStatus: status})
}

// atomicFlag is a tiny typed wrapper around atomic.Int32 so globalFlag
// reads/writes read naturally at call sites.
type atomicFlag struct {
	v atomic.Int32
}

func (f *atomicFlag) store(val globalFlag) {
	f.v.Store(int32(val))
}

func (f *atomicFlag) load() globalFlag {
	return globalFlag(f.v.Load())
}
