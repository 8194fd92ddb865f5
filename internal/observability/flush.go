package observability

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Closer releases a backend (store client, cache connection) during shutdown.
type Closer func(ctx context.Context) error

// FlushAndClose runs every closer, then flushes logs. Closer failures are
// logged and joined into the returned error; all closers run regardless.
// Call during graceful shutdown after in-flight requests have drained.
func FlushAndClose(ctx context.Context, logger *zap.Logger, closers ...Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c(ctx); err != nil {
			if logger != nil {
				logger.Warn("backend close failed", zap.Error(err))
			}
			errs = append(errs, err)
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}
