package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
)

// TransportCode is the adapter's transport-error vocabulary, the input
// column of the classifier table in spec.md §4.5.
type TransportCode int

const (
	TransportOK TransportCode = iota
	TransportSendError
	TransportRecvError
	TransportResolveFailure
	TransportConnectFailure
	TransportTimeout
	TransportSSLConnect
	TransportProxy
	TransportInternal
	TransportEmptyResponse
	TransportUnknownError
)

func (c TransportCode) String() string {
	switch c {
	case TransportOK:
		return "ok"
	case TransportSendError:
		return "send_error"
	case TransportRecvError:
		return "recv_error"
	case TransportResolveFailure:
		return "resolve_failure"
	case TransportConnectFailure:
		return "connect_failure"
	case TransportTimeout:
		return "timeout"
	case TransportSSLConnect:
		return "ssl_connect"
	case TransportProxy:
		return "proxy"
	case TransportInternal:
		return "internal"
	case TransportEmptyResponse:
		return "empty_response"
	default:
		return "unknown_error"
	}
}

// TransportError wraps the original net/http error with the classified
// TransportCode the rest of the pipeline dispatches on.
type TransportError struct {
	Code TransportCode
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("httpclient: %s: %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrLowSpeedAbort is returned by StreamingGet when the throughput
// watchdog trips.
var ErrLowSpeedAbort = errors.New("httpclient: aborted by low-speed watchdog")

// ClassifyTransportError maps a net/http-layer error to a TransportError.
// context.Canceled is returned unwrapped so callers can distinguish
// cooperative cancellation from a genuine transport fault.
func ClassifyTransportError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Code: TransportTimeout, Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return &TransportError{Code: TransportTimeout, Err: err}
		}

		var tlsErr tls.RecordHeaderError
		if errors.As(urlErr.Err, &tlsErr) {
			return &TransportError{Code: TransportSSLConnect, Err: err}
		}

		if _, ok := urlErr.Err.(*tls.CertificateVerificationError); ok {
			return &TransportError{Code: TransportSSLConnect, Err: err}
		}

		var dnsErr *net.DNSError
		if errors.As(urlErr.Err, &dnsErr) {
			return &TransportError{Code: TransportResolveFailure, Err: err}
		}

		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) {
			if opErr.Op == "dial" {
				return &TransportError{Code: TransportConnectFailure, Err: err}
			}

			return &TransportError{Code: TransportSendError, Err: err}
		}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &TransportError{Code: TransportEmptyResponse, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &TransportError{Code: TransportTimeout, Err: err}
		}

		return &TransportError{Code: TransportRecvError, Err: err}
	}

	return &TransportError{Code: TransportUnknownError, Err: err}
}
