package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"
)

var (
	// ErrUnconfigured is returned when no provider tier has usable credentials.
	ErrUnconfigured = errors.New("gateway: no provider configured")
	// ErrExhausted matches every *ExhaustedError.
	ErrExhausted = errors.New("gateway: all providers exhausted")
	// ErrRateLimited matches an *ExhaustedError whose last attempt was rate limited.
	ErrRateLimited = errors.New("gateway: rate limited")
	// ErrAuthFailure matches an *ExhaustedError whose last attempt was rejected for bad credentials.
	ErrAuthFailure = errors.New("gateway: provider authentication failed")

	errEmptyResponse = errors.New("empty response")
)

// Kind classifies a single failed attempt.
type Kind string

const (
	KindUnknown     Kind = "error"
	KindEmpty       Kind = "empty_response"
	KindRateLimited Kind = "rate_limited"
	KindAuth        Kind = "auth"
	KindTimeout     Kind = "timeout"
	KindUnavailable Kind = "unavailable"
	KindCanceled    Kind = "canceled"
)

// StatusError is an HTTP-level failure reported by a provider.
type StatusError struct {
	Code    int
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	if e.Status != "" {
		return fmt.Sprintf("status %d (%s): %s", e.Code, e.Status, msg)
	}
	return fmt.Sprintf("status %d: %s", e.Code, msg)
}

// AttemptError records why one model of one provider failed.
type AttemptError struct {
	Provider string
	Model    string
	Kind     Kind
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every configured model failed.
// Its message is that of the last failure.
type ExhaustedError struct {
	Attempts []*AttemptError
}

func (e *ExhaustedError) Error() string {
	last := e.Last()
	if last == nil {
		return ErrExhausted.Error()
	}
	return fmt.Sprintf("gateway: %d model attempt(s) failed, last: %v", len(e.Attempts), last)
}

// Last returns the final failed attempt, or nil if none were made.
func (e *ExhaustedError) Last() *AttemptError {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1]
}

// Kind is the kind of the last failed attempt.
func (e *ExhaustedError) Kind() Kind {
	if last := e.Last(); last != nil {
		return last.Kind
	}
	return KindUnknown
}

func (e *ExhaustedError) Is(target error) bool {
	switch target {
	case ErrExhausted:
		return true
	case ErrRateLimited:
		return e.Kind() == KindRateLimited
	case ErrAuthFailure:
		return e.Kind() == KindAuth
	}
	return false
}

func (e *ExhaustedError) Unwrap() error {
	if last := e.Last(); last != nil {
		return last
	}
	return nil
}

var (
	rateLimitHints = []string{"quota", "rate limit", "rate_limit", "resource_exhausted", "too many requests"}
	authHints      = []string{"api key", "api_key", "unauthenticated", "unauthorized", "permission denied", "permission_denied"}

	// a status code only counts when labeled, e.g. "status 429" or "code: 403"
	statusCodeHint = regexp.MustCompile(`\b(?:status|code|http)\W{0,3}(\d{3})\b`)
)

// Classify maps a provider error onto a Kind. Structured errors are
// inspected first; message heuristics are the fallback.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, errEmptyResponse):
		return KindEmpty
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return KindUnavailable
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusTooManyRequests:
			return KindRateLimited
		case statusErr.Code == http.StatusUnauthorized, statusErr.Code == http.StatusForbidden:
			return KindAuth
		case statusErr.Code >= 500:
			return KindUnavailable
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	code := labeledStatus(msg)
	if code == http.StatusTooManyRequests {
		return KindRateLimited
	}
	for _, hint := range rateLimitHints {
		if strings.Contains(msg, hint) {
			return KindRateLimited
		}
	}
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return KindAuth
	}
	for _, hint := range authHints {
		if strings.Contains(msg, hint) {
			return KindAuth
		}
	}
	return KindUnknown
}

func labeledStatus(msg string) int {
	m := statusCodeHint.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}
