package errors

import (
	stderrors "errors"
	"strings"
	"time"
)

// Decision is the outcome of classifying a terminal job error.
type Decision struct {
	Retry   bool
	Backoff time.Duration
	Reason  string
}

// RetryPolicy decides whether a failed invocation should be re-run by the broker
// and how long the broker should wait first.
type RetryPolicy struct {
	RateLimitBackoff   time.Duration
	ServerErrorBackoff time.Duration
	DefaultBackoff     time.Duration
}

// DefaultRetryPolicy is used when a worker does not override backoffs.
var DefaultRetryPolicy = RetryPolicy{
	RateLimitBackoff:   60 * time.Second,
	ServerErrorBackoff: 10 * time.Second,
	DefaultBackoff:     5 * time.Second,
}

// Classify maps an error onto retry or fatal. Typed errors are classified by HTTP
// status first and then by code; untyped errors by message text. Anything not
// recognized is assumed transient.
func (p RetryPolicy) Classify(err error) Decision {
	if err == nil {
		return Decision{Reason: "no error"}
	}

	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return p.classifyStandard(stdErr)
	}

	return p.classifyMessage(err.Error())
}

func (p RetryPolicy) classifyStandard(e *StandardError) Decision {
	if IsFatalErrorCode(e.Code) {
		return Decision{Reason: string(e.Code)}
	}

	if e.HTTPStatus != 0 {
		return p.classifyStatus(e.HTTPStatus, e.RetryAfter)
	}

	if e.Retryable {
		return Decision{Retry: true, Backoff: p.DefaultBackoff, Reason: string(e.Code)}
	}
	return Decision{Reason: string(e.Code)}
}

func (p RetryPolicy) classifyStatus(status int, retryAfter time.Duration) Decision {
	switch status {
	case 429:
		backoff := p.RateLimitBackoff
		if retryAfter > 0 {
			backoff = retryAfter
		}
		return Decision{Retry: true, Backoff: backoff, Reason: "rate limited"}
	case 502, 503, 504:
		return Decision{Retry: true, Backoff: p.ServerErrorBackoff, Reason: "upstream unavailable"}
	case 401, 403:
		return Decision{Reason: "authentication rejected"}
	default:
		return Decision{Reason: "upstream request rejected"}
	}
}

var (
	rateLimitPhrases   = []string{"429", "rate limit", "too many requests", "request_limit_exceeded"}
	serverErrorPhrases = []string{"502", "503", "504", "bad gateway", "service unavailable", "gateway timeout"}
	fatalPhrases       = []string{
		"401", "403", "unauthorized", "forbidden",
		"missing", "required", "not configured", "user not found",
	}
)

func (p RetryPolicy) classifyMessage(msg string) Decision {
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, rateLimitPhrases):
		return Decision{Retry: true, Backoff: p.RateLimitBackoff, Reason: "rate limited"}
	case containsAny(lower, serverErrorPhrases):
		return Decision{Retry: true, Backoff: p.ServerErrorBackoff, Reason: "upstream unavailable"}
	case containsAny(lower, fatalPhrases):
		return Decision{Reason: "non-retryable failure"}
	default:
		return Decision{Retry: true, Backoff: p.DefaultBackoff, Reason: "unrecognized error"}
	}
}

func containsAny(s string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(s, phrase) {
			return true
		}
	}
	return false
}
