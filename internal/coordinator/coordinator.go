// Package coordinator implements the multi-worker download coordinator
// (spec.md §4.6, component C7): mode selection, the direct-mode
// single-stream path, the multi-mode worker pool, and the three-valued
// global cancellation flag they share.
package coordinator

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/rangedl/internal/classify"
	"github.com/NamanBalaji/rangedl/internal/fsmap"
	"github.com/NamanBalaji/rangedl/internal/rangefile"
)

// Config is the coordinator's view of spec.md §6's Preferences record.
type Config struct {
	Connections int
	Interval    time.Duration
	BlockSize   int64
	Timeout     time.Duration
	Headers     map[string]string
}

// ProgressFunc is the embedder's progress callback (spec.md §6).
// Returning false requests cancellation.
type ProgressFunc func(totalBytes, processedBytes int64) bool

// Coordinator drives one downloadFile invocation end to end.
type Coordinator struct {
	http HTTPAdapter
	log  Logger
}

// New constructs a Coordinator. A nil log installs NopLogger.
func New(http HTTPAdapter, log Logger) *Coordinator {
	if log == nil {
		log = NopLogger{}
	}

	return &Coordinator{http: http, log: log}
}

// Download implements spec.md §6's downloadFile. Every log line it and its
// helpers emit for this call is prefixed with a fresh correlation id, so
// interleaved log output from concurrent downloads can be told apart.
func (c *Coordinator) Download(ctx context.Context, url, dest string, progress ProgressFunc, cfg Config) (ok bool, kind classify.Kind) {
	id := uuid.New()
	scoped := &Coordinator{http: c.http, log: withCorrelationID(c.log, id)}

	return scoped.download(ctx, url, dest, progress, cfg)
}

func (c *Coordinator) download(ctx context.Context, url, dest string, progress ProgressFunc, cfg Config) (ok bool, kind classify.Kind) {
	t0 := time.Now()

	var probe probeResult

	if cfg.Connections > 1 {
		p, err := runProbe(ctx, c.http, url, cfg.Headers, t0, cfg.Timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return false, classify.OperationInterrupted
			}

			k, _ := classifyTransportErr(err)
			c.log.Errorf("probe failed for %s: %v", url, err)

			return false, k
		}

		probe = p
	} else {
		probe = probeResult{skipped: true, contentLength: -1}
	}

	direct := isDirectMode(cfg.Connections, cfg.BlockSize, probe)

	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		fsKind, _ := fsmap.Map(dest, err)
		c.log.Errorf("pre-open cleanup of %s failed: %v", dest, err)

		return false, fsKind
	}

	rf := rangefile.New(probe.contentLength, cfg.BlockSize)

	var downloadErr *classify.Kind

	if direct {
		downloadErr = c.runDirect(ctx, rf, url, dest, progress, cfg, probe, t0)
	} else {
		downloadErr = c.runMulti(ctx, rf, url, dest, progress, cfg, probe, t0)
	}

	finished := downloadErr == nil

	closeErr := rf.Close(finished)
	if closeErr != nil {
		fsKind, _ := fsmap.Map(dest, closeErr)
		c.log.Errorf("close(finished=%v) failed: %v", finished, closeErr)

		if finished {
			// Download was otherwise successful; adopt the close error
			// per spec.md §4.6.6.
			downloadErr = &fsKind
		}
	}

	if downloadErr != nil {
		return false, *downloadErr
	}

	return true, classify.Success
}

func classifyTransportErr(err error) (classify.Kind, bool) {
	return classify.Classify(classify.Outcome{Transport: transportCodeOf(err)})
}
