// Package rangedl is the library-level API (spec.md §6): a resumable,
// multi-connection HTTP/HTTPS file downloader built around the
// range-partitioned download engine in internal/coordinator.
package rangedl

import (
	"context"
	"errors"
	"time"

	"github.com/NamanBalaji/rangedl/internal/classify"
	"github.com/NamanBalaji/rangedl/internal/coordinator"
	"github.com/NamanBalaji/rangedl/internal/httpclient"
)

// ErrorKind is the domain error taxonomy from spec.md §7.
type ErrorKind = classify.Kind

const (
	Success                        = classify.Success
	UnknownError                   = classify.UnknownError
	InvalidArgument                = classify.InvalidArgument
	RuntimeError                   = classify.RuntimeError
	OutOfMemory                    = classify.OutOfMemory
	PermissionDenied               = classify.PermissionDenied
	OperationFailed                = classify.OperationFailed
	OperationInterrupted           = classify.OperationInterrupted
	FilesystemError                = classify.FilesystemError
	FilesystemIOError              = classify.FilesystemIOError
	FilesystemNotSupportLargeFiles = classify.FilesystemNotSupportLargeFiles
	FilesystemUnavailable          = classify.FilesystemUnavailable
	FilesystemNoSpace              = classify.FilesystemNoSpace
	FilesystemNetworkError         = classify.FilesystemNetworkError
	FileNotFound                   = classify.FileNotFound
	FileNotWritable                = classify.FileNotWritable
	FilePathTooLong                = classify.FilePathTooLong
	FileWasUsedByOtherProcesses    = classify.FileWasUsedByOtherProcesses
	NetworkError                   = classify.NetworkError
	ServerError                    = classify.ServerError
)

// Preferences is spec.md §6's Preferences record.
type Preferences struct {
	Connections int
	Interval    time.Duration
	BlockSize   int64
	Timeout     time.Duration
	Headers     map[string]string
}

// DefaultPreferences returns the documented defaults.
func DefaultPreferences() Preferences {
	return Preferences{
		Connections: 4,
		Interval:    100 * time.Millisecond,
		BlockSize:   1 << 20,
		Timeout:     5000 * time.Millisecond,
	}
}

// ProgressFunc is the embedder's progress callback (spec.md §6).
type ProgressFunc func(totalBytes, processedBytes int64) bool

// Logger is the injected logging capability (spec.md §9).
type Logger = coordinator.Logger

// Downloader exposes the three library-level operations of spec.md §6. The
// zero value is not usable; construct with New.
type Downloader struct {
	coord *coordinator.Coordinator
	http  *httpclient.Client
}

// New constructs a Downloader. A nil log installs a no-op logger.
func New(log Logger) *Downloader {
	client := httpclient.New()

	return &Downloader{
		coord: coordinator.New(client, log),
		http:  client,
	}
}

// DownloadFile implements spec.md §6's downloadFile.
func (d *Downloader) DownloadFile(ctx context.Context, url, destination string, progress ProgressFunc, prefs Preferences) (ok bool, kind ErrorKind) {
	return d.coord.Download(ctx, url, destination, coordinator.ProgressFunc(progress), coordinator.Config{
		Connections: prefs.Connections,
		Interval:    prefs.Interval,
		BlockSize:   prefs.BlockSize,
		Timeout:     prefs.Timeout,
		Headers:     prefs.Headers,
	})
}

// RequestContent implements spec.md §6's requestContent: a one-shot GET
// with an 8-second connect timeout, returning the full body for
// successful 200 responses.
func (d *Downloader) RequestContent(ctx context.Context, url string, headers map[string]string) (statusCode int, body []byte, kind ErrorKind) {
	status, body, err := d.http.RequestContent(ctx, url, headers)
	if err != nil {
		k, _ := classify.Classify(classify.Outcome{Transport: transportCodeOf(err)})
		return status, nil, k
	}

	if status != 200 {
		k, _ := classify.Classify(classify.Outcome{TransportOK: true, HTTPStatus: status})
		return status, body, k
	}

	return status, body, classify.Success
}

// ProbeAttributes implements spec.md §6's probeAttributes.
func (d *Downloader) ProbeAttributes(ctx context.Context, url string, headers map[string]string, timeoutMs int) (contentLength int64, contentRange, acceptRanges string, rawHeader map[string][]string, ok bool, kind ErrorKind) {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	length, ranges, header, status, err := d.http.Probe(ctx, url, headers, timeout)
	if err != nil {
		k, _ := classify.Classify(classify.Outcome{Transport: transportCodeOf(err)})
		return -1, "", "", nil, false, k
	}

	if status >= 400 {
		k, _ := classify.Classify(classify.Outcome{TransportOK: true, HTTPStatus: status})
		return -1, "", "", map[string][]string(header), false, k
	}

	return length, header.Get("Content-Range"), ranges, map[string][]string(header), true, classify.Success
}

func transportCodeOf(err error) httpclient.TransportCode {
	var te *httpclient.TransportError
	if errors.As(err, &te) {
		return te.Code
	}

	return httpclient.TransportUnknownError
}
