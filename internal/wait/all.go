package wait

import (
	"context"
	"errors"
	"sync"
	"time"

	"enoctl/internal/activity"
)

// Expectation is one wait to run as part of All.
type Expectation struct {
	Source    Source
	Predicate activity.Predicate
	Timeout   time.Duration
}

// Result is the outcome of one Expectation.
type Result struct {
	Expectation
	Record  activity.Record
	Err     error
	Elapsed time.Duration
}

// All runs every expectation in its own goroutine and returns the results in
// input order once all of them have finished. Each wait keeps its own
// deadline; one failing does not stop the others.
func (c *Coordinator) All(ctx context.Context, exps ...Expectation) []Result {
	results := make([]Result, len(exps))
	var wg sync.WaitGroup
	for i, exp := range exps {
		wg.Add(1)
		go func(i int, exp Expectation) {
			defer wg.Done()
			start := time.Now()
			rec, err := c.Wait(ctx, exp.Source, exp.Predicate, exp.Timeout)
			results[i] = Result{Expectation: exp, Record: rec, Err: err, Elapsed: time.Since(start)}
		}(i, exp)
	}
	wg.Wait()
	return results
}

// Err joins the errors of all failed results.
func Err(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
