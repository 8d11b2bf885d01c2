package wait

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enoctl/internal/activity"
	"enoctl/internal/model"
	"enoctl/internal/node"
)

// scripted serves a fixed sequence of responses, repeating the last one.
type scripted struct {
	name  string
	calls atomic.Int32
	steps []func() (activity.Log, error)
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) GetLog(ctx context.Context, kind activity.Kind) (activity.Log, error) {
	i := int(s.calls.Add(1)) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i]()
}

func logOf(recs ...activity.Record) func() (activity.Log, error) {
	return func() (activity.Log, error) {
		return activity.Log{Kind: activity.KindSMS, Records: recs}, nil
	}
}

func failing(err error) func() (activity.Log, error) {
	return func() (activity.Log, error) { return activity.Log{}, err }
}

type memRecorder struct {
	mu   sync.Mutex
	rows []model.WaitOutcome
}

func (m *memRecorder) Record(o model.WaitOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, o)
	return nil
}

func smsBody(t *testing.T, body string) activity.Predicate {
	t.Helper()
	p, err := activity.NewPredicate(activity.KindSMS, activity.WithBody(body))
	require.NoError(t, err)
	return p
}

func TestWait_ReturnsAsSoonAsMatched(t *testing.T) {
	t.Parallel()

	src := &scripted{name: "two", steps: []func() (activity.Log, error){
		logOf(),
		logOf(activity.SMS{Sender: "+1", Body: "noise"}),
		logOf(activity.SMS{Sender: "+1", Body: "noise"}, activity.SMS{Sender: "+1", Body: "M"}),
	}}
	c := New(WithPollInterval(10 * time.Millisecond))

	rec, err := c.Wait(context.Background(), src, smsBody(t, "M"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "M", rec.(activity.SMS).Body)
	assert.Equal(t, int32(3), src.calls.Load(), "no polling after the match")
}

func TestWait_EarliestMatchWins(t *testing.T) {
	t.Parallel()

	src := &scripted{name: "two", steps: []func() (activity.Log, error){
		logOf(
			activity.SMS{Sender: "+1", Body: "dup", Timestamp: time.Unix(200, 0)},
			activity.SMS{Sender: "+2", Body: "dup", Timestamp: time.Unix(100, 0)},
		),
	}}
	rec, err := New().Wait(context.Background(), src, smsBody(t, "dup"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "+1", rec.(activity.SMS).Sender, "arrival order decides, not timestamps")
}

func TestWait_InvalidPredicateNeverFetches(t *testing.T) {
	t.Parallel()

	src := &scripted{name: "two", steps: []func() (activity.Log, error){logOf()}}
	bad := []activity.Predicate{
		{Kind: "fax"},
		{Kind: activity.KindCall, Body: activity.Exactly("hi")},
		{Kind: activity.KindData, Sender: activity.Exactly("+1")},
	}
	for _, p := range bad {
		_, err := New().Wait(context.Background(), src, p, time.Second)
		assert.ErrorIs(t, err, activity.ErrInvalidArgument, p.String())
	}
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestWait_TimeoutBounds(t *testing.T) {
	t.Parallel()

	const (
		timeout  = 300 * time.Millisecond
		interval = 50 * time.Millisecond
	)
	src := &scripted{name: "two", steps: []func() (activity.Log, error){logOf(activity.SMS{Body: "other"})}}
	c := New(WithPollInterval(interval))

	start := time.Now()
	_, err := c.Wait(context.Background(), src, smsBody(t, "never"), timeout)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, errors.Is(err, node.ErrRemoteQuery))
	assert.GreaterOrEqual(t, elapsed, timeout)
	// Scheduling slack on top of the one-interval bound.
	assert.Less(t, elapsed, timeout+interval+100*time.Millisecond)

	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "two", terr.Node)
	assert.GreaterOrEqual(t, terr.Polls, 2)
	assert.Equal(t, 0, terr.FetchErrors)
}

func TestWait_ToleratesTransientFetchFailure(t *testing.T) {
	t.Parallel()

	remote := &node.RemoteError{Node: "two", Op: node.OpGetLog, StatusCode: 503}
	src := &scripted{name: "two", steps: []func() (activity.Log, error){
		failing(remote),
		failing(errors.New("connection reset by peer")),
		logOf(activity.SMS{Sender: "+1", Body: "M"}),
	}}
	rec := &memRecorder{}
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := New(WithPollInterval(10*time.Millisecond), WithRecorder(rec), WithLogger(logger))

	got, err := c.Wait(context.Background(), src, smsBody(t, "M"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "M", got.(activity.SMS).Body)

	var retries int
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "two", entry["node"])
		assert.Equal(t, "sms", entry["kind"])
		if entry["msg"] == "log fetch failed, will retry" {
			retries++
			assert.NotEmpty(t, entry["err"])
			assert.Contains(t, entry, "attempt")
		}
	}
	assert.Equal(t, 2, retries)

	require.Len(t, rec.rows, 1)
	assert.True(t, rec.rows[0].Matched)
	assert.Equal(t, 3, rec.rows[0].Polls)
	assert.Equal(t, 2, rec.rows[0].FetchErrors)
	assert.Equal(t, `sms{body="M"}`, rec.rows[0].Predicate)
}

func TestWait_PersistentFailureEndsInTimeoutNotQueryError(t *testing.T) {
	t.Parallel()

	remote := &node.RemoteError{Node: "two", Op: node.OpGetLog, StatusCode: 503}
	src := &scripted{name: "two", steps: []func() (activity.Log, error){failing(remote)}}
	c := New(WithPollInterval(20 * time.Millisecond))

	_, err := c.Wait(context.Background(), src, smsBody(t, "M"), 100*time.Millisecond)
	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.False(t, errors.Is(err, node.ErrRemoteQuery))
	assert.Equal(t, terr.Polls, terr.FetchErrors)
	assert.Equal(t, remote, terr.LastErr)
}

func TestWait_ContextCancellation(t *testing.T) {
	t.Parallel()

	src := &scripted{name: "two", steps: []func() (activity.Log, error){logOf()}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(WithPollInterval(10*time.Millisecond)).Wait(ctx, src, smsBody(t, "M"), 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWait_DefaultTimeout(t *testing.T) {
	t.Parallel()

	src := &scripted{name: "two", steps: []func() (activity.Log, error){logOf(activity.SMS{Body: "M"})}}
	rec, err := ForActivity(context.Background(), src, smsBody(t, "M"), 0)
	require.NoError(t, err)
	assert.Equal(t, "M", rec.(activity.SMS).Body)
}

func TestAll_RunsWaitsConcurrently(t *testing.T) {
	t.Parallel()

	// Each source only matches after ~200ms; run sequentially both would take 400ms.
	delayed := func(name string) *scripted {
		ready := time.Now().Add(200 * time.Millisecond)
		return &scripted{name: name, steps: []func() (activity.Log, error){
			func() (activity.Log, error) {
				if time.Now().Before(ready) {
					return activity.Log{Kind: activity.KindCall}, nil
				}
				return activity.Log{Kind: activity.KindCall, Records: []activity.Record{activity.Call{Sender: "+" + name}}}, nil
			},
		}}
	}
	callFrom := func(sender string) activity.Predicate {
		p, err := activity.NewPredicate(activity.KindCall, activity.WithSender(sender))
		require.NoError(t, err)
		return p
	}

	c := New(WithPollInterval(20 * time.Millisecond))
	start := time.Now()
	results := c.All(context.Background(),
		Expectation{Source: delayed("2"), Predicate: callFrom("+2"), Timeout: time.Second},
		Expectation{Source: delayed("4"), Predicate: callFrom("+4"), Timeout: time.Second},
	)
	require.NoError(t, Err(results))
	assert.Less(t, time.Since(start), 380*time.Millisecond)
	assert.Equal(t, "+2", results[0].Record.(activity.Call).Sender)
	assert.Equal(t, "+4", results[1].Record.(activity.Call).Sender)
}

func TestAll_CollectsIndividualFailures(t *testing.T) {
	t.Parallel()

	ok := &scripted{name: "a", steps: []func() (activity.Log, error){logOf(activity.SMS{Body: "M"})}}
	never := &scripted{name: "b", steps: []func() (activity.Log, error){logOf()}}
	c := New(WithPollInterval(10 * time.Millisecond))

	results := c.All(context.Background(),
		Expectation{Source: ok, Predicate: smsBody(t, "M"), Timeout: time.Second},
		Expectation{Source: never, Predicate: smsBody(t, "M"), Timeout: 50 * time.Millisecond},
	)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrTimeout)
	assert.ErrorIs(t, Err(results), ErrTimeout)
}

func TestCollector_CountsPollsAndOutcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	col, err := NewCollector(reg)
	require.NoError(t, err)

	src := &scripted{name: "two", steps: []func() (activity.Log, error){
		failing(fmt.Errorf("boom")),
		logOf(activity.SMS{Body: "M"}),
	}}
	c := New(WithPollInterval(5*time.Millisecond), WithCollector(col))
	_, err = c.Wait(context.Background(), src, smsBody(t, "M"), time.Second)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(col.Polls.WithLabelValues("sms")))
	assert.Equal(t, 1.0, testutil.ToFloat64(col.FetchErrors.WithLabelValues("sms")))
	assert.Equal(t, 1.0, testutil.ToFloat64(col.Outcomes.WithLabelValues("sms", OutcomeMatched)))

	series, err := testutil.GatherAndCount(col.Gatherer(), "eno_wait_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, series)

	again, err := NewCollector(reg)
	require.NoError(t, err)
	assert.Same(t, col.Polls, again.Polls, "re-registration reuses collectors")
}

func TestTimeoutError_Message(t *testing.T) {
	t.Parallel()

	err := &TimeoutError{
		Node:        "two",
		Predicate:   activity.Predicate{Kind: activity.KindCall, Sender: activity.Exactly("+1")},
		Timeout:     10 * time.Second,
		Polls:       40,
		FetchErrors: 1,
		LastErr:     errors.New("503"),
	}
	assert.Equal(t, `node "two": no call{sender="+1"} record after 10s (40 polls, 1 failed fetches, last: 503)`, err.Error())
}
