// Package httpclient is the HTTP client adapter (spec.md §4.4, component
// C5): a narrow capability set — probe, streamingGet, rangedGet — wrapping
// net/http with the transport tuning and header plumbing the corpus uses
// for resumable download clients.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultConnectTimeout = 30 * time.Second
	keepAlivePeriod       = 30 * time.Second
	defaultIdleTimeout    = 90 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	expectContinueTimeout = 1 * time.Second
	maxIdleConns          = 100
	maxConnsPerHost       = 16

	DefaultUserAgent = "rangedl/1.0"

	defaultDownloadName = "download"
)

// LowSpeed describes the throughput watchdog applied to streaming requests
// (spec.md §4.4): if throughput stays below Threshold bytes/s for Window,
// the request is aborted. RangedGet applies no watchdog.
type LowSpeed struct {
	Threshold int64
	Window    time.Duration
}

// DefaultLowSpeed is the watchdog the coordinator wires into its
// direct-mode streaming requests (1 KiB/s over 8 s, spec.md §4.4).
// Multi-mode worker requests go through RangedGet, which has none.
var DefaultLowSpeed = LowSpeed{Threshold: 1024, Window: 8 * time.Second}

// Client is the HTTP client adapter. InsecureSkipVerify defaults to true,
// matching spec.md §6 ("TLS verification is off by default... implementers
// targeting production should consider making it configurable") — it is
// exposed here as a field so code holding a Client can flip it.
// rangedl.New builds its Client with the default and does not expose it,
// so downloads made through a rangedl.Downloader always skip verification.
type Client struct {
	InsecureSkipVerify bool

	httpOnce sync.Once
	http     *http.Client
}

// New constructs a Client with the corpus's usual transport tuning.
// InsecureSkipVerify defaults to true; an embedder wanting verified TLS
// must flip it before issuing the first request — the underlying
// http.Transport is built lazily, on first use, from whatever value the
// field holds at that point, and then reused for connection pooling.
func New() *Client {
	return &Client{InsecureSkipVerify: true}
}

// client lazily builds the pooled *http.Client on first use, so a field
// flip made any time before the first request still takes effect.
func (c *Client) client() *http.Client {
	c.httpOnce.Do(func() {
		c.http = &http.Client{Transport: c.transport()}
	})

	return c.http
}

func (c *Client) transport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultConnectTimeout,
			KeepAlive: keepAlivePeriod,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       defaultIdleTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		DisableCompression:    true,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: c.InsecureSkipVerify},
	}
}

// Response groups a status code, the response headers and a classified
// transport error. The adapter's operations return these as separate
// values and do not use this type.
type Response struct {
	Status    int
	Header    http.Header
	transport error
}

func newRequest(ctx context.Context, method, rawURL string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Probe performs the HEAD-equivalent probe described in spec.md §4.4: a
// GET with "Range: bytes=0-" so servers that only support ranges (and
// ignore HEAD) still reveal content length and range support. contentLength
// is -1 when Content-Length is absent.
func (c *Client) Probe(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) (contentLength int64, acceptRanges string, header http.Header, status int, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := newRequest(ctx, http.MethodGet, rawURL, headers)
	if err != nil {
		return -1, "", nil, 0, err
	}

	req.Header.Set("Range", "bytes=0-")

	resp, err := c.client().Do(req)
	if err != nil {
		return -1, "", nil, 0, ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1))

	contentLength = resp.ContentLength
	acceptRanges = resp.Header.Get("Accept-Ranges")

	if resp.StatusCode == http.StatusPartialContent && acceptRanges == "" {
		acceptRanges = "bytes"
	}

	return contentLength, acceptRanges, resp.Header, resp.StatusCode, nil
}

// WriteSink receives streamed bytes; it returns the number of bytes
// actually persisted (mirroring RangeFile.Fill's n return) and an error on
// write failure.
type WriteSink func(data []byte) (int, error)

// StreamingGet streams the response body through sink, honoring ctx for
// cooperative cancellation. connectTimeout bounds the wait for the
// response headers only. It returns the HTTP status and a classified
// transport error (nil on success).
func (c *Client) StreamingGet(ctx context.Context, rawURL string, headers map[string]string, connectTimeout time.Duration, low LowSpeed, sink WriteSink) (status int, err error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := newRequest(reqCtx, http.MethodGet, rawURL, headers)
	if err != nil {
		return 0, err
	}

	connectTimer := time.AfterFunc(connectTimeout, cancel)
	resp, err := c.client().Do(req)

	if !connectTimer.Stop() && ctx.Err() == nil {
		if err == nil {
			resp.Body.Close()
		}

		return 0, &TransportError{Code: TransportTimeout, Err: context.DeadlineExceeded}
	}

	if err != nil {
		return 0, ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	watchdog := newThroughputWatchdog(ctx, low)
	defer watchdog.stop()

	// A tripped watchdog cancels the request, so a read blocked on a
	// stalled connection returns as well.
	go func() {
		<-watchdog.done
		if watchdog.tripped() {
			cancel()
		}
	}()

	buf := make([]byte, 32*1024)

	for {
		if watchdog.tripped() {
			return resp.StatusCode, ErrLowSpeedAbort
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			watchdog.observe(n)

			if _, werr := sink(buf[:n]); werr != nil {
				return resp.StatusCode, fmt.Errorf("httpclient: write sink: %w", werr)
			}
		}

		if rerr != nil {
			if rerr == io.EOF {
				return resp.StatusCode, nil
			}

			if watchdog.tripped() {
				return resp.StatusCode, ErrLowSpeedAbort
			}

			return resp.StatusCode, ClassifyTransportError(rerr)
		}
	}
}

// RangedGet buffers the full body for [start,end] and returns it, per
// spec.md §4.4's implementation note: buffered rather than streamed, so a
// mid-stream error body from a misbehaving origin is never written into
// the file.
func (c *Client) RangedGet(ctx context.Context, rawURL string, headers map[string]string, connectTimeout time.Duration, start, end int64) (body []byte, status int, err error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := newRequest(reqCtx, http.MethodGet, rawURL, headers)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	connectTimer := time.AfterFunc(connectTimeout, cancel)
	resp, err := c.client().Do(req)

	if !connectTimer.Stop() && ctx.Err() == nil {
		if err == nil {
			resp.Body.Close()
		}

		return nil, 0, &TransportError{Code: TransportTimeout, Err: context.DeadlineExceeded}
	}

	if err != nil {
		return nil, 0, ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer

	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, resp.StatusCode, ClassifyTransportError(err)
	}

	return buf.Bytes(), resp.StatusCode, nil
}

// RequestContent performs the one-shot GET exposed at the library boundary
// (spec.md §6, requestContent) with an 8-second connect timeout.
func (c *Client) RequestContent(ctx context.Context, rawURL string, headers map[string]string) (status int, body []byte, err error) {
	body, status, err = c.plainGet(ctx, rawURL, headers, 8*time.Second)
	return status, body, err
}

// plainGet performs a GET with no Range header and buffers the whole body.
func (c *Client) plainGet(ctx context.Context, rawURL string, headers map[string]string, connectTimeout time.Duration) ([]byte, int, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := newRequest(reqCtx, http.MethodGet, rawURL, headers)
	if err != nil {
		return nil, 0, err
	}

	connectTimer := time.AfterFunc(connectTimeout, cancel)
	resp, err := c.client().Do(req)

	if !connectTimer.Stop() && ctx.Err() == nil {
		if err == nil {
			resp.Body.Close()
		}

		return nil, 0, &TransportError{Code: TransportTimeout, Err: context.DeadlineExceeded}
	}

	if err != nil {
		return nil, 0, ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, resp.StatusCode, ClassifyTransportError(err)
	}

	return buf.Bytes(), resp.StatusCode, nil
}

// Filename extracts a download filename from Content-Disposition, falling
// back to the URL's "filename" query param, then its path base, then a
// generic default.
func Filename(header http.Header, requestURL string) string {
	if name, ok := filenameFromContentDisposition(header.Get("Content-Disposition")); ok {
		return name
	}

	if idx := strings.Index(requestURL, "?"); idx >= 0 {
		for _, kv := range strings.Split(requestURL[idx+1:], "&") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 && parts[0] == "filename" && parts[1] != "" {
				return parts[1]
			}
		}
	}

	base := path.Base(strings.SplitN(requestURL, "?", 2)[0])
	if base != "" && base != "/" && base != "." {
		return base
	}

	return defaultDownloadName
}

func filenameFromContentDisposition(header string) (string, bool) {
	if header == "" {
		return "", false
	}

	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", false
	}

	if name, ok := params["filename"]; ok {
		return name, true
	}

	if name, ok := params["filename*"]; ok {
		return name, true
	}

	return "", false
}

// ParseLastModified parses an RFC1123 Last-Modified header, returning the
// zero time on failure.
func ParseLastModified(header string) time.Time {
	if header == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC1123, header)
	if err != nil {
		return time.Time{}
	}

	return t
}

// ParseContentRangeTotal extracts the total size from a Content-Range
// header of the form "bytes a-b/total"; returns -1 if absent or malformed.
func ParseContentRangeTotal(header string) int64 {
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return -1
	}

	total, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil {
		return -1
	}

	return total
}
