package errors

import (
	"context"
	"fmt"
	"time"
)

/*
RpcError represents a JSON-RPC error response.
*/
type RpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

/*
Error implements the error interface for RpcError.
*/
func (e *RpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

/*
Is reports whether target carries the same code, so errors.Is keeps matching
the sentinels below after WithMessagef or WithData produced a copy.
*/
func (e *RpcError) Is(target error) bool {
	t, ok := target.(*RpcError)
	return ok && t.Code == e.Code
}

// Convenience errors (JSON‑RPC reserved codes -32700 .. -32600)
// A2A-specific codes occupy -32001 .. -32007.
var (
	ErrParseError     = &RpcError{Code: -32700, Message: "Invalid JSON payload"}
	ErrInvalidRequest = &RpcError{Code: -32600, Message: "Request payload validation error"}
	ErrMethodNotFound = &RpcError{Code: -32601, Message: "Method not found"}
	ErrInvalidParams  = &RpcError{Code: -32602, Message: "Invalid parameters"}
	ErrInternal       = &RpcError{Code: -32603, Message: "Internal error"}

	// A2A-specific errors.
	ErrTaskNotFound                 = &RpcError{Code: -32001, Message: "Task not found"}
	ErrTaskNotCancelable            = &RpcError{Code: -32002, Message: "Task cannot be canceled"}
	ErrPushNotificationNotSupported = &RpcError{Code: -32003, Message: "Push Notification is not supported"}
	ErrUnsupportedOperation         = &RpcError{Code: -32004, Message: "This operation is not supported"}
	ErrContentTypeNotSupported      = &RpcError{Code: -32005, Message: "Incompatible content types"}
	ErrInvalidAgentResponse         = &RpcError{Code: -32006, Message: "Invalid agent response"}
	ErrExtendedCardNotConfigured    = &RpcError{Code: -32007, Message: "Authenticated Extended Card is not configured"}
)

// WithMessagef creates a *copy* of an RpcError with a formatted message.
// It does not modify the original error variable.
func (e *RpcError) WithMessagef(format string, args ...any) *RpcError {
	// Return a new error instance to avoid modifying the global variables
	newErr := *e // Create a shallow copy
	newErr.Message = fmt.Sprintf(format, args...)
	return &newErr
}

// WithData creates a copy of an RpcError carrying structured diagnostic data.
func (e *RpcError) WithData(data any) *RpcError {
	newErr := *e
	newErr.Data = data
	return &newErr
}

/*
FromError normalizes any error into an *RpcError. RpcErrors pass through
untouched, everything else becomes an internal error that keeps the original
text in the message.
*/
func FromError(err error) *RpcError {
	if err == nil {
		return nil
	}

	if rpcErr, ok := err.(*RpcError); ok {
		return rpcErr
	}

	return ErrInternal.WithMessagef("Internal error: %s", err.Error())
}

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2.0,
	}
}

// RetryWithBackoff executes a function with exponential backoff retry logic.
// It stops early when the context is done.
func RetryWithBackoff(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var err error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * config.BackoffFactor)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("after %d attempts, last error: %w", config.MaxAttempts, err)
}
