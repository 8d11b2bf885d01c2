// Package simnode is an in-process stand-in for eno hardware. Each Server
// speaks the control-server HTTP API, and a Network routes SMS and calls
// between servers by phone number so multi-node scenarios can run without
// radios.
package simnode

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Fetcher performs a data request and reports the bytes received.
type Fetcher func(ctx context.Context, target string) (int64, error)

// Network connects simulated nodes by phone number.
type Network struct {
	mu       sync.Mutex
	byNumber map[string]*Server
	delay    time.Duration
	fetch    Fetcher
	logger   *slog.Logger
}

// NetworkOption configures a Network.
type NetworkOption func(*Network)

// WithDeliveryDelay delays SMS and call delivery, as a carrier would.
func WithDeliveryDelay(d time.Duration) NetworkOption {
	return func(n *Network) { n.delay = d }
}

// WithFetcher replaces the HTTP fetcher used for data requests.
func WithFetcher(f Fetcher) NetworkOption {
	return func(n *Network) {
		if f != nil {
			n.fetch = f
		}
	}
}

// WithLogger sets the logger shared by the network's servers.
func WithLogger(l *slog.Logger) NetworkOption {
	return func(n *Network) {
		if l != nil {
			n.logger = l
		}
	}
}

// NewNetwork creates an empty network.
func NewNetwork(opts ...NetworkOption) *Network {
	n := &Network{
		byNumber: make(map[string]*Server),
		fetch:    httpFetch,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Add creates a node with the given name and phone number.
func (n *Network) Add(name, phoneNumber string) *Server {
	s := newServer(n, name, phoneNumber)
	n.mu.Lock()
	n.byNumber[phoneNumber] = s
	n.mu.Unlock()
	return s
}

func (n *Network) lookup(phoneNumber string) (*Server, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.byNumber[phoneNumber]
	return s, ok
}

// deliver runs fn now or after the configured delay.
func (n *Network) deliver(fn func()) {
	if n.delay <= 0 {
		fn()
		return
	}
	time.AfterFunc(n.delay, fn)
}

func httpFetch(ctx context.Context, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	return io.Copy(io.Discard, res.Body)
}
