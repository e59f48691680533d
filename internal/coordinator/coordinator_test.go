package coordinator

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/NamanBalaji/rangedl/internal/classify"
	"github.com/NamanBalaji/rangedl/internal/httpclient"
)

// fakeHTTP is an in-memory HTTPAdapter fake, per spec.md §9's guidance to
// model injection points as capability records testable with fakes.
type fakeHTTP struct {
	mu sync.Mutex

	contentLength int64
	acceptRanges  string
	probeStatus   int
	probeErr      error

	body []byte

	rangedGetErr  error
	rangedGetFunc func(start, end int64) ([]byte, int, error)

	streamErr error
}

func (f *fakeHTTP) Probe(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (int64, string, http.Header, int, error) {
	return f.contentLength, f.acceptRanges, nil, f.probeStatus, f.probeErr
}

func (f *fakeHTTP) StreamingGet(ctx context.Context, url string, headers map[string]string, connectTimeout time.Duration, low httpclient.LowSpeed, sink httpclient.WriteSink) (int, error) {
	if f.streamErr != nil {
		return 0, f.streamErr
	}

	if _, err := sink(f.body); err != nil {
		return 0, err
	}

	return http.StatusOK, nil
}

func (f *fakeHTTP) RangedGet(ctx context.Context, url string, headers map[string]string, connectTimeout time.Duration, start, end int64) ([]byte, int, error) {
	if f.rangedGetFunc != nil {
		return f.rangedGetFunc(start, end)
	}

	if f.rangedGetErr != nil {
		return nil, 0, f.rangedGetErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.body[start : end+1], http.StatusPartialContent, nil
}

func alwaysContinue(int64, int64) bool { return true }

func TestDirectModeForSmallNoRangeResource(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	body := []byte("hello, world")

	fake := &fakeHTTP{contentLength: int64(len(body)), acceptRanges: "", probeStatus: http.StatusOK, body: body}

	coord := New(fake, nil)

	ok, kind := coord.Download(context.Background(), "https://example.com/f", dest, alwaysContinue, Config{
		Connections: 4,
		Interval:    10 * time.Millisecond,
		BlockSize:   1024,
		Timeout:     time.Second,
	})

	if !ok || kind != classify.Success {
		t.Fatalf("Download() = (%v, %v), want (true, Success)", ok, kind)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}

	if string(got) != string(body) {
		t.Fatalf("dest contents = %q, want %q", got, body)
	}

	if _, err := os.Stat(dest + ".meta"); !os.IsNotExist(err) {
		t.Errorf("expected no leftover .meta file")
	}

	if _, err := os.Stat(dest + ".temp"); !os.IsNotExist(err) {
		t.Errorf("expected no leftover .temp file")
	}
}

func TestMultiModeDownloadsFourRangesCleanly(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")

	total := int64(12 * 1024 * 1024) // above minMultiModeSize so multi mode is actually selected
	body := make([]byte, total)
	for i := range body {
		body[i] = byte(i % 251)
	}

	fake := &fakeHTTP{contentLength: total, acceptRanges: "bytes", probeStatus: http.StatusOK, body: body}

	coord := New(fake, nil)

	ok, kind := coord.Download(context.Background(), "https://example.com/f", dest, alwaysContinue, Config{
		Connections: 4,
		Interval:    5 * time.Millisecond,
		BlockSize:   1024 * 1024,
		Timeout:     5 * time.Second,
	})

	if !ok || kind != classify.Success {
		t.Fatalf("Download() = (%v, %v), want (true, Success)", ok, kind)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}

	if len(got) != len(body) {
		t.Fatalf("dest size = %d, want %d", len(got), len(body))
	}

	for i := range body {
		if got[i] != body[i] {
			t.Fatalf("byte %d mismatch: got %d, want %d", i, got[i], body[i])
		}
	}
}

func TestCancellationProducesOperationInterrupted(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")

	total := int64(12 * 1024 * 1024) // above minMultiModeSize so multi mode is actually selected
	body := make([]byte, total)

	fake := &fakeHTTP{contentLength: total, acceptRanges: "bytes", probeStatus: http.StatusOK, body: body}

	coord := New(fake, nil)

	var calls int

	progress := func(total, processed int64) bool {
		calls++
		return calls < 2
	}

	ok, kind := coord.Download(context.Background(), "https://example.com/f", dest, progress, Config{
		Connections: 4,
		Interval:    5 * time.Millisecond,
		BlockSize:   1024 * 1024,
		Timeout:     5 * time.Second,
	})

	if ok || kind != classify.OperationInterrupted {
		t.Fatalf("Download() = (%v, %v), want (false, OperationInterrupted)", ok, kind)
	}

	if _, err := os.Stat(dest + ".temp"); err != nil {
		t.Errorf("expected .temp to survive cancellation: %v", err)
	}
}

func TestNotFoundFailsWithoutRetryLoop(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")

	total := int64(12 * 1024 * 1024) // above minMultiModeSize so multi mode is actually selected

	fake := &fakeHTTP{
		contentLength: total,
		acceptRanges:  "bytes",
		probeStatus:   http.StatusOK,
		rangedGetFunc: func(start, end int64) ([]byte, int, error) {
			return nil, http.StatusNotFound, nil
		},
	}

	coord := New(fake, nil)

	ok, kind := coord.Download(context.Background(), "https://example.com/f", dest, alwaysContinue, Config{
		Connections: 4,
		Interval:    5 * time.Millisecond,
		BlockSize:   1024 * 1024,
		Timeout:     20 * time.Millisecond,
	})

	if ok || kind != classify.FileNotFound {
		t.Fatalf("Download() = (%v, %v), want (false, FileNotFound)", ok, kind)
	}
}
