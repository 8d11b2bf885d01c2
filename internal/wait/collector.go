package wait

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes wait-loop metrics to Prometheus.
type Collector struct {
	gatherer prometheus.Gatherer

	Polls       *prometheus.CounterVec
	FetchErrors *prometheus.CounterVec
	Outcomes    *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
}

// NewCollector registers wait metrics against reg, or the default registerer
// when reg is nil. Registering twice on the same registry reuses the existing
// collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	polls, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eno_wait_polls_total",
		Help: "Activity log fetches issued by the wait loop.",
	}, []string{"kind"}), "eno_wait_polls_total")
	if err != nil {
		return nil, err
	}

	fetchErrors, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eno_wait_fetch_errors_total",
		Help: "Activity log fetches that failed and were retried by the wait loop.",
	}, []string{"kind"}), "eno_wait_fetch_errors_total")
	if err != nil {
		return nil, err
	}

	outcomes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eno_wait_outcomes_total",
		Help: "Completed waits by activity kind and outcome.",
	}, []string{"kind", "outcome"}), "eno_wait_outcomes_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eno_wait_duration_seconds",
		Help:    "Time from the start of a wait until it matched, timed out or was cancelled.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"kind"}), "eno_wait_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:    gatherer,
		Polls:       polls,
		FetchErrors: fetchErrors,
		Outcomes:    outcomes,
		Duration:    duration,
	}, nil
}

// Gatherer returns the gatherer the collector was registered with.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// WriteTextfile dumps the gathered metrics in the text exposition format,
// suitable for a node_exporter textfile directory.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.gatherer)
}

func (c *Collector) incPoll(kind string) {
	if c == nil {
		return
	}
	c.Polls.WithLabelValues(kind).Inc()
}

func (c *Collector) incFetchError(kind string) {
	if c == nil {
		return
	}
	c.FetchErrors.WithLabelValues(kind).Inc()
}

func (c *Collector) observeOutcome(kind, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.Outcomes.WithLabelValues(kind, outcome).Inc()
	c.Duration.WithLabelValues(kind).Observe(d.Seconds())
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
