// Package classify implements the pure, table-driven error classifier
// (spec.md §4.5, component C6): it takes the outcome of one attempt —
// an HTTP status, a transport code, an optional filesystem error, and
// whether cancellation was in flight — and produces a domain error Kind
// plus whether that Kind is fatal to the worker that hit it.
package classify

import (
	"net/http"

	"github.com/NamanBalaji/rangedl/internal/httpclient"
)

// Kind is the domain error taxonomy from spec.md §7.
type Kind int

const (
	Success Kind = iota
	UnknownError
	InvalidArgument
	RuntimeError
	OutOfMemory
	PermissionDenied
	OperationFailed
	OperationInterrupted
	FilesystemError
	FilesystemIOError
	FilesystemNotSupportLargeFiles
	FilesystemUnavailable
	FilesystemNoSpace
	FilesystemNetworkError
	FileNotFound
	FileNotWritable
	FilePathTooLong
	FileWasUsedByOtherProcesses
	NetworkError
	ServerError
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "Success"
	case UnknownError:
		return "UnknownError"
	case InvalidArgument:
		return "InvalidArgument"
	case RuntimeError:
		return "RuntimeError"
	case OutOfMemory:
		return "OutOfMemory"
	case PermissionDenied:
		return "PermissionDenied"
	case OperationFailed:
		return "OperationFailed"
	case OperationInterrupted:
		return "OperationInterrupted"
	case FilesystemError:
		return "FilesystemError"
	case FilesystemIOError:
		return "FilesystemIOError"
	case FilesystemNotSupportLargeFiles:
		return "FilesystemNotSupportLargeFiles"
	case FilesystemUnavailable:
		return "FilesystemUnavailable"
	case FilesystemNoSpace:
		return "FilesystemNoSpace"
	case FilesystemNetworkError:
		return "FilesystemNetworkError"
	case FileNotFound:
		return "FileNotFound"
	case FileNotWritable:
		return "FileNotWritable"
	case FilePathTooLong:
		return "FilePathTooLong"
	case FileWasUsedByOtherProcesses:
		return "FileWasUsedByOtherProcesses"
	case NetworkError:
		return "NetworkError"
	case ServerError:
		return "ServerError"
	default:
		return "UnknownError"
	}
}

// Outcome is the input to Classify: the result of a single worker
// attempt (an HTTP round trip or a fill against the RangeFile).
type Outcome struct {
	HTTPStatus     int
	Transport      httpclient.TransportCode
	TransportOK    bool // true when the round trip completed, so HTTPStatus is meaningful
	FilesystemKind Kind // Success when no filesystem error occurred
	WasCancelled   bool
}

// Classify is pure and table-driven, matching spec.md §4.5 exactly.
func Classify(o Outcome) (kind Kind, fatal bool) {
	if o.FilesystemKind != Success {
		return o.FilesystemKind, true
	}

	if o.WasCancelled {
		return OperationInterrupted, true
	}

	if !o.TransportOK {
		switch o.Transport {
		case httpclient.TransportSendError,
			httpclient.TransportRecvError,
			httpclient.TransportResolveFailure,
			httpclient.TransportConnectFailure,
			httpclient.TransportTimeout,
			httpclient.TransportSSLConnect,
			httpclient.TransportProxy:
			return NetworkError, false
		case httpclient.TransportInternal,
			httpclient.TransportEmptyResponse,
			httpclient.TransportUnknownError:
			return NetworkError, false
		default:
			return RuntimeError, false
		}
	}

	switch o.HTTPStatus {
	case http.StatusOK, http.StatusPartialContent:
		return Success, false
	case http.StatusNotFound:
		return FileNotFound, true
	case http.StatusServiceUnavailable:
		return ServerError, true
	}

	if o.HTTPStatus >= http.StatusBadRequest {
		return OperationFailed, false
	}

	return RuntimeError, false
}
