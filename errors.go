package pmcopilot

import (
	"context"
	"errors"

	"github.com/dhamidi/pmcopilot/gateway"
	"github.com/dhamidi/pmcopilot/history"
)

// Kind is the class of a failed call, as reported to callers.
type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindProviderExhausted Kind = "provider_exhausted"
	KindRateLimited       Kind = "rate_limited"
	KindAuthFailure       Kind = "auth_failure"
	KindPersistence       Kind = "persistence"
	KindUnconfigured      Kind = "unconfigured"
	KindInvalidInput      Kind = "invalid_input"
	KindCanceled          Kind = "canceled"
	KindInternal          Kind = "internal"
)

var (
	ErrUnauthorized      = errors.New("conversation not found or access denied")
	ErrProviderExhausted = errors.New("AI service unavailable")
	ErrRateLimited       = errors.New("AI service rate limit reached, try again later")
	ErrAuthFailure       = errors.New("AI service rejected its credentials")
	ErrPersistence       = errors.New("failed to save conversation")
	ErrUnconfigured      = errors.New("no AI provider configured")
	ErrInvalidInput      = errors.New("invalid input")
	ErrCanceled          = errors.New("request canceled")
	ErrInternal          = errors.New("internal error")
)

var kindErrors = map[Kind]error{
	KindUnauthorized:      ErrUnauthorized,
	KindProviderExhausted: ErrProviderExhausted,
	KindRateLimited:       ErrRateLimited,
	KindAuthFailure:       ErrAuthFailure,
	KindPersistence:       ErrPersistence,
	KindUnconfigured:      ErrUnconfigured,
	KindInvalidInput:      ErrInvalidInput,
	KindCanceled:          ErrCanceled,
	KindInternal:          ErrInternal,
}

// ChatError is returned by every Service operation. Its message is safe to
// show to the end user; the underlying cause is kept in Err for logging.
type ChatError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ChatError) Error() string {
	msg := kindErrors[e.Kind]
	if msg == nil {
		msg = ErrInternal
	}
	if e.Kind == KindInvalidInput && e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": " + msg.Error()
}

func (e *ChatError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRateLimited) and friends match on Kind.
func (e *ChatError) Is(target error) bool {
	return kindErrors[e.Kind] == target
}

// Detail is the full internal error text.
func (e *ChatError) Detail() string {
	if e.Err == nil {
		return e.Error()
	}
	return e.Err.Error()
}

// KindOf classifies err. Errors that carry no known cause are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}

	switch {
	case errors.Is(err, history.ErrUnauthorized), errors.Is(err, history.ErrConversationNotFound):
		return KindUnauthorized
	case errors.Is(err, gateway.ErrUnconfigured):
		return KindUnconfigured
	case errors.Is(err, gateway.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, gateway.ErrAuthFailure):
		return KindAuthFailure
	case errors.Is(err, gateway.ErrExhausted):
		return KindProviderExhausted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindInternal
}

func newError(op string, err error) *ChatError {
	return &ChatError{Kind: KindOf(err), Op: op, Err: err}
}
