package coordinator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/NamanBalaji/rangedl/internal/httpclient"
)

const minMultiModeSize = 10 * 1024 * 1024 // 10 MiB, spec.md §4.6.1

// HTTPAdapter is the HTTP client adapter capability (spec.md §4.4); it is
// an interface so the coordinator can be driven by an in-memory fake in
// tests. *httpclient.Client satisfies it.
type HTTPAdapter interface {
	Probe(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (contentLength int64, acceptRanges string, header http.Header, status int, err error)
	StreamingGet(ctx context.Context, url string, headers map[string]string, connectTimeout time.Duration, low httpclient.LowSpeed, sink httpclient.WriteSink) (status int, err error)
	RangedGet(ctx context.Context, url string, headers map[string]string, connectTimeout time.Duration, start, end int64) (body []byte, status int, err error)
}

// transportCodeOf extracts the httpclient.TransportCode carried by err, if
// any, defaulting to TransportUnknownError otherwise.
func transportCodeOf(err error) httpclient.TransportCode {
	var te *httpclient.TransportError
	if errors.As(err, &te) {
		return te.Code
	}

	return httpclient.TransportUnknownError
}

type probeResult struct {
	skipped       bool
	contentLength int64
	acceptRanges  string
	status        int
}

// runProbe implements spec.md §4.6.1's probe-with-retry: on any
// NetworkError whose cumulative elapsed time is still within timeout,
// retry; otherwise stop.
func runProbe(ctx context.Context, http HTTPAdapter, url string, headers map[string]string, t0 time.Time, timeout time.Duration) (probeResult, error) {
	for {
		length, acceptRanges, _, status, err := http.Probe(ctx, url, headers, 3*time.Second)
		if err == nil {
			return probeResult{contentLength: length, acceptRanges: acceptRanges, status: status}, nil
		}

		if errors.Is(err, context.Canceled) {
			return probeResult{}, err
		}

		var te *httpclient.TransportError
		isNetworkErr := errors.As(err, &te)

		if isNetworkErr && time.Since(t0) < timeout {
			continue
		}

		return probeResult{}, err
	}
}

// isDirectMode decides direct vs multi per spec.md §4.6.1.
func isDirectMode(connections int, blockSize int64, p probeResult) bool {
	if connections <= 1 || p.skipped {
		return true
	}

	if p.contentLength == -1 {
		return true
	}

	if p.contentLength <= blockSize {
		return true
	}

	if p.acceptRanges == "" {
		return true
	}

	return p.contentLength < minMultiModeSize
}
