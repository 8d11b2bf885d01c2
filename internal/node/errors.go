package node

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRemoteAction matches failures of sms, call, hangup and data requests.
	ErrRemoteAction = errors.New("remote action failed")
	// ErrRemoteQuery matches failures of log and info queries.
	ErrRemoteQuery = errors.New("remote query failed")
)

// Op names a control-server operation.
type Op string

const (
	OpSMS      Op = "sms"
	OpCall     Op = "call"
	OpHangup   Op = "hangup"
	OpData     Op = "data"
	OpGetLog   Op = "get log"
	OpResetLog Op = "reset log"
	OpInfo     Op = "info"
)

// Action reports whether op is a one-shot command rather than a query.
func (op Op) Action() bool {
	switch op {
	case OpSMS, OpCall, OpHangup, OpData:
		return true
	}
	return false
}

// RemoteError describes a failed exchange with a control server. StatusCode
// is zero when no response was received; Err then holds the transport error.
type RemoteError struct {
	Node       string
	Op         Op
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	prefix := fmt.Sprintf("node %q %s", e.Node, e.Op)
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s %s: %v", prefix, e.Method, e.URL, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: request failed: %d %s: %s", prefix, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	default:
		return fmt.Sprintf("%s: request failed: %d %s", prefix, e.StatusCode, http.StatusText(e.StatusCode))
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is maps the error onto ErrRemoteAction or ErrRemoteQuery by operation.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteAction:
		return e.Op.Action()
	case ErrRemoteQuery:
		return !e.Op.Action()
	}
	return false
}
