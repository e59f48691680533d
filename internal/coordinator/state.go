package coordinator

import (
	"sync"
	"sync/atomic"

	"github.com/NamanBalaji/rangedl/internal/classify"
)

// globalFlag is the three-valued shared atomic from spec.md §4.6.5.
type globalFlag int32

const (
	flagRunning globalFlag = iota
	flagFailed
	flagCancelled
)

func (f globalFlag) String() string {
	switch f {
	case flagRunning:
		return "running"
	case flagFailed:
		return "failed"
	case flagCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// workerFlag is the per-worker lifecycle state from spec.md §4.6.4.
type workerFlag int32

const (
	wsNone workerFlag = iota
	wsRunning
	wsFinished
	wsInterrupted
)

// noError is the lastError sentinel meaning "no attempt has concluded
// yet" — distinct from classify.Success, which means the most recent
// attempt actually succeeded.
const noError classify.Kind = -1

// workerState is one worker's {flag, lastError} pair (spec.md §4.6.4).
type workerState struct {
	flag atomic.Int32

	mu        sync.Mutex
	lastError classify.Kind
}

func newWorkerState() *workerState {
	ws := &workerState{lastError: noError}
	ws.flag.Store(int32(wsNone))

	return ws
}

func (ws *workerState) setFlag(f workerFlag) {
	ws.flag.Store(int32(f))
}

func (ws *workerState) getFlag() workerFlag {
	return workerFlag(ws.flag.Load())
}

func (ws *workerState) recordOutcome(kind classify.Kind) {
	ws.mu.Lock()
	ws.lastError = kind
	ws.mu.Unlock()
}

func (ws *workerState) outcome() classify.Kind {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return ws.lastError
}

// modalErrorKind returns the most frequent non-success, non-none kind
// across states, for the coordinator's timeout-arbitration step. It
// returns (kind, true) only when at least one worker has recorded an
// outcome and none of them is Success.
func modalErrorKind(states []*workerState) (classify.Kind, bool) {
	counts := map[classify.Kind]int{}

	for _, ws := range states {
		kind := ws.outcome()

		if kind == classify.Success {
			return classify.Success, false
		}

		if kind == noError {
			continue
		}

		counts[kind]++
	}

	if len(counts) == 0 {
		return classify.Success, false
	}

	var best classify.Kind
	bestCount := -1

	for kind, n := range counts {
		if n > bestCount {
			best, bestCount = kind, n
		}
	}

	return best, true
}
