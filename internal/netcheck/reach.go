package netcheck

import (
	"context"
	"sync"
	"time"

	"enoctl/internal/node"
)

// NodeStatus is the reachability of one node's control server.
type NodeStatus struct {
	Name      string
	Address   string
	Reachable bool
	Latency   time.Duration
	Info      node.Info
	Err       error
}

// CheckNodes queries GET / on every handle concurrently. Results keep the
// order of handles.
func CheckNodes(ctx context.Context, handles []*node.Handle, timeout time.Duration) []NodeStatus {
	out := make([]NodeStatus, len(handles))
	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func(i int, h *node.Handle) {
			defer wg.Done()
			out[i] = checkNode(ctx, h, timeout)
		}(i, h)
	}
	wg.Wait()
	return out
}

func checkNode(ctx context.Context, h *node.Handle, timeout time.Duration) NodeStatus {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	st := NodeStatus{Name: h.Name(), Address: h.BaseURL()}
	start := time.Now()
	info, err := h.Info(ctx)
	st.Latency = time.Since(start)
	if err != nil {
		st.Err = err
		return st
	}
	st.Reachable = true
	st.Info = info
	return st
}

// Unreachable counts statuses that failed.
func Unreachable(statuses []NodeStatus) int {
	n := 0
	for _, st := range statuses {
		if !st.Reachable {
			n++
		}
	}
	return n
}
