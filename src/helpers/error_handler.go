package helpers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type TerminalError struct {
	Message string
	Cause   error
}

func (e *TerminalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TerminalError) Unwrap() error {
	return e.Cause
}

type ConfigurationError struct{ TerminalError }
type DatabaseError struct{ TerminalError }

// NetworkError covers transport failures: refused, reset, timeout, canceled.
type NetworkError struct{ TerminalError }

// ServerError is a non-success HTTP status from the backend.
type ServerError struct {
	TerminalError
	StatusCode int
	Code       string // error body "code", may be empty
}

// StreamError is a classified push-stream failure. Reason is empty for
// transient failures that should be retried.
type StreamError struct {
	TerminalError
	Reason models.FallbackReason
}

// -----------------------------------------------------------------------------

func NewNetworkError(message string, cause error) *NetworkError {
	return &NetworkError{TerminalError{Message: message, Cause: cause}}
}

func NewServerError(status int, code, message string) *ServerError {
	msg := fmt.Sprintf("backend returned %d", status)
	if code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, code)
	}
	if message != "" {
		msg = fmt.Sprintf("%s: %s", msg, message)
	}
	return &ServerError{TerminalError: TerminalError{Message: msg}, StatusCode: status, Code: code}
}

func NewStreamError(reason models.FallbackReason, message string, cause error) *StreamError {
	return &StreamError{TerminalError: TerminalError{Message: message, Cause: cause}, Reason: reason}
}

func NewDatabaseError(message string, cause error) *DatabaseError {
	return &DatabaseError{TerminalError{Message: message, Cause: cause}}
}

func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{TerminalError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------

// Transient reports whether a stream error should be retried.
func (e *StreamError) Transient() bool {
	return e.Reason == models.ReasonNone
}

// -----------------------------------------------------------------------------

// IsNetworkError reports whether err wraps a *NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// ServerStatus returns the HTTP status of a wrapped *ServerError, or 0.
func ServerStatus(err error) int {
	var se *ServerError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// -----------------------------------------------------------------------------
// Backoff
// -----------------------------------------------------------------------------

// Backoff is a capped exponential schedule. Attempts are 1-based.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Factor      float64
	MaxAttempts int
}

// DefaultBackoff is 500ms doubling to an 8s cap over 6 attempts.
func DefaultBackoff() Backoff {
	return Backoff{Initial: 500 * time.Millisecond, Max: 8 * time.Second, Factor: 2, MaxAttempts: 6}
}

// -----------------------------------------------------------------------------

// Delay returns the wait before the given attempt. It never decreases.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(b.Initial)
	for i := 1; i < attempt; i++ {
		d *= factor
		if b.Max > 0 && d >= float64(b.Max) {
			return b.Max
		}
	}
	if b.Max > 0 && time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

// Exhausted reports whether attempt is past the allowed count.
func (b Backoff) Exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt > b.MaxAttempts
}

// -----------------------------------------------------------------------------

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff runs fn until it succeeds, the schedule is exhausted or ctx ends.
func RetryWithBackoff(ctx context.Context, operation string, b Backoff, log *logger.Logger, fn func() error) error {
	var lastErr error
	for attempt := 1; !b.Exhausted(attempt); attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if b.Exhausted(attempt + 1) {
			break
		}
		delay := b.Delay(attempt)
		if log != nil {
			log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt, b.MaxAttempts, operation, lastErr, delay)
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return &TerminalError{Message: fmt.Sprintf("%s failed after %d attempts", operation, b.MaxAttempts), Cause: lastErr}
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

type ErrorHandler struct {
	Logger *logger.Logger
	count  atomic.Int64
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.NewLogger(nil, "ErrorHandler")
	}
	return &ErrorHandler{Logger: log}
}

// -----------------------------------------------------------------------------

// ErrorCount is the number of errors handled so far.
func (e *ErrorHandler) ErrorCount() int64 {
	return e.count.Load()
}

// -----------------------------------------------------------------------------

// Handle logs err with a severity picked from its type.
func (e *ErrorHandler) Handle(err error, where string) {
	if err == nil {
		return
	}
	e.count.Add(1)

	var (
		ne *NetworkError
		st *StreamError
	)
	status := ServerStatus(err)
	switch {
	case errors.Is(err, context.Canceled):
		e.Logger.Debug("%s canceled", where)
	case errors.As(err, &st):
		e.Logger.Warning("Stream failure in %s (%s): %v", where, st.Reason, err)
	case errors.As(err, &ne):
		e.Logger.Warning("Network failure in %s: %v", where, err)
	case status > 0 && status < 500:
		e.Logger.Warning("Request rejected in %s: %v", where, err)
	default:
		e.Logger.Error("Error in %s: %v", where, err)
	}
}
