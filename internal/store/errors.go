package store

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrLookupTimeout is returned when a single store lookup exceeds its budget.
	ErrLookupTimeout = errors.New("store lookup timed out")
	// ErrBreakerOpen is returned while a store's circuit breaker rejects calls.
	ErrBreakerOpen = errors.New("store circuit breaker open")
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (storeErrorsTotal).
const (
	ErrorCategoryTimeout     ErrorCategory = "timeout"
	ErrorCategoryBreakerOpen ErrorCategory = "breaker_open"
	ErrorCategoryNetwork     ErrorCategory = "network"
	ErrorCategoryDecode      ErrorCategory = "decode"
	ErrorCategoryCanceled    ErrorCategory = "canceled"
	ErrorCategoryUnknown     ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrBreakerOpen) {
		return ErrorCategoryBreakerOpen
	}

	if errors.Is(err, ErrLookupTimeout) || errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) {
		return ErrorCategoryTimeout
	}

	if errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}

	if mongo.IsNetworkError(err) {
		return ErrorCategoryNetwork
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "server selection") {
		return ErrorCategoryNetwork
	}

	if strings.Contains(errStr, "decode") || strings.Contains(errStr, "cannot unmarshal") {
		return ErrorCategoryDecode
	}

	return ErrorCategoryUnknown
}
