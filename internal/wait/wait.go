// Package wait blocks until a node reports an activity.
//
// Control servers offer no push channel, so the only way to learn that an
// SMS arrived or a call connected is to fetch the node's log repeatedly and
// scan it. A wait polls at a fixed interval until a record matches the
// predicate or the timeout elapses. Fetch failures during the wait are
// tolerated until the deadline; only the absence of a match is reported.
//
// A Coordinator holds configuration only. Waits share nothing, so several
// may run at once from different goroutines, one per node.
package wait

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"enoctl/internal/activity"
	"enoctl/internal/model"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Outcome labels used in metrics and the journal.
const (
	OutcomeMatched   = "matched"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomeInvalid   = "invalid"
)

// Source is a node whose activity log can be queried.
type Source interface {
	Name() string
	GetLog(ctx context.Context, kind activity.Kind) (activity.Log, error)
}

// Recorder receives one outcome per finished wait.
type Recorder interface {
	Record(model.WaitOutcome) error
}

// Coordinator runs bounded polling waits.
type Coordinator struct {
	interval  time.Duration
	logger    *slog.Logger
	collector *Collector
	recorder  Recorder
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPollInterval sets the pause between log fetches.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCollector reports polls and outcomes to Prometheus.
func WithCollector(col *Collector) Option {
	return func(c *Coordinator) { c.collector = col }
}

// WithRecorder appends every outcome to r.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// New creates a Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		interval: DefaultPollInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForActivity waits with a default Coordinator.
func ForActivity(ctx context.Context, src Source, p activity.Predicate, timeout time.Duration) (activity.Record, error) {
	return New().Wait(ctx, src, p, timeout)
}

// Wait polls src until a record matches p and returns the earliest such
// record. A non-positive timeout means DefaultTimeout.
//
// The predicate is validated before anything is fetched. When no record
// matches in time the error is a *TimeoutError, returned no earlier than
// timeout and no later than timeout plus one poll interval. Cancelling ctx
// ends the wait early with ctx.Err().
func (c *Coordinator) Wait(ctx context.Context, src Source, p activity.Predicate, timeout time.Duration) (activity.Record, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	kind := string(p.Kind)
	logger := c.logger.With("node", src.Name(), "kind", kind, "predicate", p.String())

	start := time.Now()
	st := &state{}
	if err := p.Validate(); err != nil {
		c.finish(logger, src, p, start, st, OutcomeInvalid, err)
		return nil, err
	}

	deadline := start.Add(timeout)
	// A fetch started at the deadline may run at most one more interval.
	fetchCap := deadline.Add(c.interval)

	for {
		st.polls++
		c.collector.incPoll(kind)

		fetchCtx, cancel := context.WithDeadline(ctx, fetchCap)
		log, err := src.GetLog(fetchCtx, p.Kind)
		cancel()

		switch {
		case ctx.Err() != nil:
			c.finish(logger, src, p, start, st, OutcomeCancelled, ctx.Err())
			return nil, ctx.Err()
		case errors.Is(err, activity.ErrInvalidArgument):
			c.finish(logger, src, p, start, st, OutcomeInvalid, err)
			return nil, err
		case err != nil:
			st.fetchErrors++
			st.lastErr = err
			c.collector.incFetchError(kind)
			logger.Debug("log fetch failed, will retry", "attempt", st.polls, "err", err)
		default:
			if rec, idx, ok := log.Find(p); ok {
				logger.Debug("record matched", "attempt", st.polls, "index", idx)
				c.finish(logger, src, p, start, st, OutcomeMatched, nil)
				return rec, nil
			}
		}

		now := time.Now()
		if !now.Before(deadline) {
			terr := &TimeoutError{
				Node:        src.Name(),
				Predicate:   p,
				Timeout:     timeout,
				Polls:       st.polls,
				FetchErrors: st.fetchErrors,
				LastErr:     st.lastErr,
			}
			c.finish(logger, src, p, start, st, OutcomeTimeout, terr)
			return nil, terr
		}

		pause := c.interval
		if remaining := deadline.Sub(now); remaining < pause {
			pause = remaining
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.finish(logger, src, p, start, st, OutcomeCancelled, ctx.Err())
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

type state struct {
	polls       int
	fetchErrors int
	lastErr     error
}

func (c *Coordinator) finish(logger *slog.Logger, src Source, p activity.Predicate, start time.Time, st *state, outcome string, err error) {
	elapsed := time.Since(start)
	c.collector.observeOutcome(string(p.Kind), outcome, elapsed)

	attrs := []any{"outcome", outcome, "polls", st.polls, "fetch_errors", st.fetchErrors, "elapsed", elapsed}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	logger.Info("wait finished", attrs...)

	if c.recorder == nil {
		return
	}
	row := model.WaitOutcome{
		Timestamp:   start.UTC(),
		Node:        src.Name(),
		Kind:        string(p.Kind),
		Predicate:   p.String(),
		Matched:     outcome == OutcomeMatched,
		Polls:       st.polls,
		FetchErrors: st.fetchErrors,
		ElapsedMs:   float64(elapsed.Microseconds()) / 1000.0,
	}
	if err != nil {
		row.Error = err.Error()
	}
	if rerr := c.recorder.Record(row); rerr != nil {
		logger.Warn("journal append failed", "err", rerr)
	}
}
