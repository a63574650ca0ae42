package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/rustyeddy/gateway/broker"
)

// Step is one shape of a mutating request. Retry decides, for an outcome that
// was not accepted, whether the chain may move on to the next step.
type Step struct {
	Name    string
	Method  string
	URL     func() string
	Payload func() any
	Timeout time.Duration
	Retry   func(Outcome) bool
}

// ChainResult is the record of one chain execution.
type ChainResult struct {
	Accepted bool
	Attempts []broker.Attempt
	Outcomes []Outcome
}

// Final is the outcome of the last attempt.
func (r ChainResult) Final() Outcome {
	if len(r.Outcomes) == 0 {
		return Outcome{}
	}
	return r.Outcomes[len(r.Outcomes)-1]
}

// Best picks the most informative outcome: an accepted one if any, otherwise
// the highest ranked failure, earliest first on ties.
func (r ChainResult) Best() Outcome {
	best, bestRank := Outcome{}, -1
	for _, o := range r.Outcomes {
		if rk := rank(o); rk > bestRank {
			best, bestRank = o, rk
		}
	}
	return best
}

func rank(o Outcome) int {
	switch {
	case o.Accepted():
		return 4
	case o.Err == nil && o.ExplicitFailure():
		return 3
	case o.Err == nil:
		return 2
	case o.TimedOut:
		return 1
	default:
		return 0
	}
}

// Run executes steps in order against the bridge, stopping at the first
// accepted attempt or at the first failure its step does not retry.
func (c *Client) Run(ctx context.Context, token string, steps []Step) ChainResult {
	var res ChainResult
	for i, s := range steps {
		var body any
		if s.Payload != nil {
			body = s.Payload()
		}
		url := s.URL()
		out := c.Do(ctx, Request{
			Method:  s.Method,
			URL:     url,
			Token:   token,
			Body:    body,
			Timeout: s.Timeout,
		})

		a := broker.Attempt{Name: s.Name, Method: s.Method, URL: url, Status: out.Status, Accepted: out.Accepted()}
		if !a.Accepted {
			a.Error = out.Message()
		}
		res.Attempts = append(res.Attempts, a)
		res.Outcomes = append(res.Outcomes, out)

		if a.Accepted {
			res.Accepted = true
			return res
		}
		last := i == len(steps)-1
		if last || s.Retry == nil || !s.Retry(out) {
			return res
		}
		// The caller gave up; further shapes cannot succeed.
		if ctx.Err() != nil {
			return res
		}
		c.log.WithField("step", s.Name).WithField("status", out.Status).Info("falling back to next request shape")
	}
	return res
}

// RetryableClose is the close chain's transition predicate: transport
// failures, timeouts, 405, 415 and other >= 400 responses move on, except a
// 401 and an error response whose body explicitly asserts failure.
func RetryableClose(o Outcome) bool {
	if o.Err != nil {
		return true
	}
	switch o.Status {
	case http.StatusUnauthorized:
		return false
	case http.StatusMethodNotAllowed, http.StatusUnsupportedMediaType:
		return true
	}
	if o.Status >= http.StatusBadRequest {
		return !o.ExplicitFailure()
	}
	return false
}

// RetryableModify moves on after any failure except a 401.
func RetryableModify(o Outcome) bool {
	return !o.Unauthorized()
}
