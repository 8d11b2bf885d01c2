// Package node drives a single eno node through its control server.
//
// Every method is one synchronous HTTP exchange. Nothing is retried: a
// failed action is reported to the caller immediately and any retry policy
// belongs to the scenario. A Handle holds no mutable state, so handles for
// different nodes can be used from separate goroutines freely. Concurrent
// scenarios against the same node are not coordinated here; the log on the
// remote side is shared state and callers must own a node exclusively.
package node

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"enoctl/internal/activity"
	"enoctl/internal/model"
)

const (
	DefaultHTTPTimeout = 10 * time.Second

	maxErrorBody = 4 << 10
	maxLogBody   = 8 << 20
)

// Handle is a typed reference to one remote node.
type Handle struct {
	node    model.Node
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Handle.
type Option func(*Handle)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handle) {
		if c != nil {
			h.http = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(h *Handle) {
		if d > 0 {
			h.http = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handle) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a handle for n. The node address may omit the scheme.
func New(n model.Node, opts ...Option) *Handle {
	h := &Handle{
		node:    n,
		baseURL: normalizeBaseURL(n.Address),
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("node", n.Name)
	return h
}

// Name returns the inventory name of the node.
func (h *Handle) Name() string { return h.node.Name }

// PhoneNumber returns the node's number, empty if not provisioned.
func (h *Handle) PhoneNumber() string { return h.node.PhoneNumber }

// HasPhoneNumber reports whether the SIM has a known number.
func (h *Handle) HasPhoneNumber() bool { return h.node.PhoneNumber != "" }

// BaseURL returns the control server root.
func (h *Handle) BaseURL() string { return h.baseURL }

// SendSMS asks the node to text message to phoneNumber.
func (h *Handle) SendSMS(ctx context.Context, phoneNumber, message string) error {
	if phoneNumber == "" {
		return fmt.Errorf("%w: sms requires a destination phone number", activity.ErrInvalidArgument)
	}
	return h.postForm(ctx, OpSMS, "/sms", url.Values{
		"phone_number": {phoneNumber},
		"message":      {message},
	})
}

// Call places a call that is hung up as soon as it is answered.
func (h *Handle) Call(ctx context.Context, phoneNumber string) error {
	return h.PlaceCall(ctx, phoneNumber, true)
}

// PlaceCall asks the node to call phoneNumber. With hangupImmediately false
// the call stays up until Hangup.
func (h *Handle) PlaceCall(ctx context.Context, phoneNumber string, hangupImmediately bool) error {
	if phoneNumber == "" {
		return fmt.Errorf("%w: call requires a destination phone number", activity.ErrInvalidArgument)
	}
	return h.postForm(ctx, OpCall, "/call", url.Values{
		"phone_number":       {phoneNumber},
		"hangup_immediately": {strconv.FormatBool(hangupImmediately)},
	})
}

// Hangup terminates any ongoing call. What happens without an active call is
// up to the control server.
func (h *Handle) Hangup(ctx context.Context) error {
	return h.postForm(ctx, OpHangup, "/hangup", nil)
}

// RequestData asks the node to fetch target over its cellular data link.
// The fetch happens asynchronously; its result shows up in the data log.
func (h *Handle) RequestData(ctx context.Context, target string) error {
	if target == "" {
		return fmt.Errorf("%w: data request requires a target", activity.ErrInvalidArgument)
	}
	return h.postForm(ctx, OpData, "/data", url.Values{"target": {target}})
}

// GetLog fetches the current log for kind. The kind is validated before any
// request is made.
func (h *Handle) GetLog(ctx context.Context, kind activity.Kind) (activity.Log, error) {
	if err := kind.Check(); err != nil {
		return activity.Log{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.logURL(kind), nil)
	if err != nil {
		return activity.Log{}, err
	}
	body, err := h.do(req, OpGetLog, maxLogBody)
	if err != nil {
		return activity.Log{}, err
	}
	log, err := activity.Decode(kind, body)
	if err != nil {
		return activity.Log{}, h.remoteError(req, OpGetLog, http.StatusOK, "", err)
	}
	return log, nil
}

// ResetLog clears the log for kind on the node.
func (h *Handle) ResetLog(ctx context.Context, kind activity.Kind) error {
	if err := kind.Check(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, h.logURL(kind), nil)
	if err != nil {
		return err
	}
	_, err = h.do(req, OpResetLog, maxErrorBody)
	return err
}

func (h *Handle) logURL(kind activity.Kind) string {
	return h.baseURL + "/log/" + url.PathEscape(string(kind))
}

func (h *Handle) postForm(ctx context.Context, op Op, path string, form url.Values) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, body)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	_, err = h.do(req, op, maxErrorBody)
	return err
}

func (h *Handle) do(req *http.Request, op Op, limit int64) ([]byte, error) {
	start := time.Now()
	res, err := h.http.Do(req)
	if err != nil {
		h.logger.Debug("request failed", "op", string(op), "method", req.Method, "url", req.URL.String(), "err", err)
		return nil, h.remoteError(req, op, 0, "", err)
	}
	defer res.Body.Close()

	h.logger.Debug("request done", "op", string(op), "method", req.Method, "url", req.URL.String(),
		"status", res.StatusCode, "elapsed", time.Since(start))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, h.remoteError(req, op, res.StatusCode, strings.TrimSpace(string(body)), nil)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, limit))
	if err != nil {
		return nil, h.remoteError(req, op, res.StatusCode, "", err)
	}
	return data, nil
}

func (h *Handle) remoteError(req *http.Request, op Op, status int, body string, err error) error {
	return &RemoteError{
		Node:       h.node.Name,
		Op:         op,
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: status,
		Body:       body,
		Err:        err,
	}
}

func normalizeBaseURL(addr string) string {
	addr = strings.TrimRight(strings.TrimSpace(addr), "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}
