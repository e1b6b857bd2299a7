// Package kerr defines the error values shared by the node layer and the
// devices behind it, and the result codes they translate to at the system
// call boundary.
package kerr

import "errors"

// Device errors.
var (
	// ErrStreamClosed signals that the peer feeding or draining this direction
	// of a channel is gone for good. It is an end-of-stream marker, not a
	// fault, and callers must not retry on it.
	ErrStreamClosed = errors.New("stream closed")

	// ErrInvalidArgument reports a malformed request payload. No state changes.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInappropriateCall reports a control request the device does not
	// understand. No state changes.
	ErrInappropriateCall = errors.New("inappropriate call for device")
)

// Node layer errors.
var (
	ErrBadHandle    = errors.New("bad handle")
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("no such node")
	ErrExists       = errors.New("node already exists")
	ErrDestroyed    = errors.New("node destroyed")
)

// Result is the numeric outcome reported to user space for a node operation.
type Result int

const (
	Success Result = iota
	StreamClosed
	InvalidArgument
	InappropriateCallForDevice
	BadHandle
	AccessDenied
	NotFound
	Exists
	Destroyed
	Failure // anything without a dedicated code
)

var resultErrors = map[Result]error{
	StreamClosed:               ErrStreamClosed,
	InvalidArgument:            ErrInvalidArgument,
	InappropriateCallForDevice: ErrInappropriateCall,
	BadHandle:                  ErrBadHandle,
	AccessDenied:               ErrAccessDenied,
	NotFound:                   ErrNotFound,
	Exists:                     ErrExists,
	Destroyed:                  ErrDestroyed,
}

// ResultOf maps an error returned by the node layer to its Result. Wrapped
// errors are matched with errors.Is.
func ResultOf(err error) Result {
	if err == nil {
		return Success
	}
	for code := StreamClosed; code < Failure; code++ {
		if errors.Is(err, resultErrors[code]) {
			return code
		}
	}
	return Failure
}

// Errno returns the value handed back to user space: 0 on success, the
// negated code otherwise.
func (r Result) Errno() int {
	return -int(r)
}

func (r Result) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case StreamClosed:
		return "ERR_STREAM_CLOSED"
	case InvalidArgument:
		return "ERR_INVALID_ARGUMENT"
	case InappropriateCallForDevice:
		return "ERR_INAPPROPRIATE_CALL_FOR_DEVICE"
	case BadHandle:
		return "ERR_BAD_HANDLE"
	case AccessDenied:
		return "ERR_ACCESS_DENIED"
	case NotFound:
		return "ERR_NO_SUCH_NODE"
	case Exists:
		return "ERR_NODE_EXISTS"
	case Destroyed:
		return "ERR_NODE_DESTROYED"
	default:
		return "ERR_FAILURE"
	}
}
