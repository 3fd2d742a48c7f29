package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// Typed failure classes for engine calls. Callers branch on these with
// errors.Is to decide whether a fallback response is appropriate.
var (
	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("engine: rate limited")

	// ErrQuotaExceeded indicates the account has run out of quota or credits.
	ErrQuotaExceeded = errors.New("engine: quota exceeded")

	// ErrInvalidRequest indicates the request itself was rejected and
	// retrying with the same payload cannot succeed.
	ErrInvalidRequest = errors.New("engine: invalid request")

	// ErrUnavailable indicates a transient provider or network failure.
	ErrUnavailable = errors.New("engine: provider unavailable")
)

// Degradable reports whether err is a failure for which a degraded
// (fallback) answer should be produced instead of failing the turn.
// Invalid requests are not degradable: they indicate a caller bug.
func Degradable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrUnavailable)
}

// callStatus renders an error as a metrics label value.
func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// classify maps a raw provider SDK error onto one of the typed failure
// classes, preserving the original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return classifyStatus(oaErr.StatusCode, err)
	}

	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return classifyStatus(anErr.StatusCode, err)
	}

	// Network errors and anything else the SDKs do not wrap.
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func classifyStatus(status int, err error) error {
	switch {
	case status == 429:
		if isQuotaError(err) {
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case status == 402 || status == 403:
		if isQuotaError(err) {
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

func isQuotaError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient_quota") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "credit balance")
}
