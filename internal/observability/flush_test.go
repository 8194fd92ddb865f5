package observability

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFlushAndClose_RunsEveryCloser(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	boom := errors.New("disconnect failed")
	var calls []string
	err := FlushAndClose(context.Background(), logger,
		func(context.Context) error { calls = append(calls, "mongo"); return boom },
		nil,
		func(context.Context) error { calls = append(calls, "cache"); return nil },
	)

	if !errors.Is(err, boom) {
		t.Fatalf("FlushAndClose() error = %v, want %v", err, boom)
	}
	if len(calls) != 2 || calls[0] != "mongo" || calls[1] != "cache" {
		t.Errorf("closers called = %v, want [mongo cache]", calls)
	}
	if logs.FilterMessage("backend close failed").Len() != 1 {
		t.Error("expected one close failure log entry")
	}
}

func TestFlushAndClose_NilLogger(t *testing.T) {
	if err := FlushAndClose(context.Background(), nil); err != nil {
		t.Errorf("FlushAndClose(nil) error = %v", err)
	}
}
