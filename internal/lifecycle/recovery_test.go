package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestFibDelays verifies that fibDelays generates Fibonacci multiples of the
// initial delay up to the maximum.
func TestFibDelays(t *testing.T) {
	delays := fibDelays(time.Minute, 13*time.Minute)
	want := []time.Duration{1, 2, 3, 5, 8, 13}
	if assert.Len(t, delays, len(want)) {
		for i, w := range want {
			assert.Equal(t, w*time.Minute, delays[i])
		}
	}
	assert.Nil(t, fibDelays(0, time.Minute))
	assert.Nil(t, fibDelays(time.Minute, time.Second))
}

func TestRecovery_RunRecovers(t *testing.T) {
	var attempts atomic.Int32
	var recovered atomic.Bool
	r := &Recovery{
		Ping: func(context.Context) error {
			if attempts.Add(1) >= 2 {
				return nil
			}
			return errors.New("server selection timeout")
		},
		Initial:     5 * time.Millisecond,
		Max:         50 * time.Millisecond,
		OnRecovered: func() { recovered.Store(true) },
		OnExhausted: func() { t.Error("OnExhausted should not be called") },
	}

	assert.True(t, r.Run(context.Background()))
	assert.True(t, recovered.Load())
	assert.Equal(t, int32(2), attempts.Load())
}

func TestRecovery_RunExhausted(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var exhausted atomic.Bool
	r := &Recovery{
		Ping:        func(context.Context) error { return errors.New("down") },
		Initial:     5 * time.Millisecond,
		Max:         20 * time.Millisecond,
		Logger:      zap.New(core),
		OnRecovered: func() { t.Error("OnRecovered should not be called") },
		OnExhausted: func() { exhausted.Store(true) },
	}

	assert.False(t, r.Run(context.Background()))
	assert.True(t, exhausted.Load())
	assert.Equal(t, 1, logs.FilterMessage("store recovery exhausted").Len())
	// 5ms, 10ms, 15ms
	assert.Equal(t, 3, logs.FilterMessage("store recovery check failed").Len())
}

func TestRecovery_NotifyStartsSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var pings atomic.Int32
	r := &Recovery{
		Ping: func(context.Context) error {
			pings.Add(1)
			return nil
		},
		Initial:     time.Millisecond,
		Max:         time.Millisecond,
		OnRecovered: func() { close(done) },
	}
	r.Start(ctx)
	r.Notify()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recovery did not run after Notify")
	}
	assert.Equal(t, int32(1), pings.Load())
}

func TestRecovery_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Recovery{
		Ping:    func(context.Context) error { t.Error("Ping should not be called"); return nil },
		Initial: time.Hour,
		Max:     time.Hour,
	}
	assert.False(t, r.Run(ctx))
}
