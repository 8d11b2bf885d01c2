package wait

import (
	"errors"
	"fmt"
	"time"

	"enoctl/internal/activity"
)

// ErrTimeout matches every TimeoutError.
var ErrTimeout = errors.New("timed out waiting for activity")

// TimeoutError reports that no matching record appeared before the deadline.
// It does not unwrap to LastErr, so errors.Is(err, node.ErrRemoteQuery) is
// false for a timeout even when every fetch failed.
type TimeoutError struct {
	Node        string
	Predicate   activity.Predicate
	Timeout     time.Duration
	Polls       int
	FetchErrors int
	LastErr     error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("node %q: no %s record after %s (%d polls", e.Node, e.Predicate, e.Timeout, e.Polls)
	if e.FetchErrors > 0 {
		msg += fmt.Sprintf(", %d failed fetches, last: %v", e.FetchErrors, e.LastErr)
	}
	return msg + ")"
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
