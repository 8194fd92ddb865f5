package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/traffic"
)

// PingFunc checks whether the stores are reachable again.
type PingFunc func(ctx context.Context) error

// Recovery pings the stores on a Fibonacci schedule once the service reports
// degraded, and clears the error window when a ping succeeds so health
// returns to healthy without waiting for the window to age out.
type Recovery struct {
	Ping        PingFunc
	Initial     time.Duration
	Max         time.Duration
	PingTimeout time.Duration
	Clock       clockwork.Clock
	Logger      *zap.Logger
	OnRecovered func()
	OnExhausted func()

	once    sync.Once
	trigger chan struct{}
	running atomic.Bool
}

func (r *Recovery) init() {
	r.once.Do(func() {
		r.trigger = make(chan struct{}, 1)
		if r.Clock == nil {
			r.Clock = clockwork.NewRealClock()
		}
		if r.Logger == nil {
			r.Logger = zap.NewNop()
		}
		if r.PingTimeout <= 0 {
			r.PingTimeout = 5 * time.Second
		}
		if r.OnRecovered == nil {
			r.OnRecovered = traffic.Reset
		}
	})
}

// Notify signals that the service is degraded. Non-blocking; safe to call from handlers.
func (r *Recovery) Notify() {
	r.init()
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Start runs the listener until ctx is done. At most one retry sequence runs at a time.
func (r *Recovery) Start(ctx context.Context) {
	r.init()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.trigger:
				if r.running.Swap(true) {
					continue
				}
				go func() {
					defer r.running.Store(false)
					r.Run(ctx)
				}()
			}
		}
	}()
}

// Run executes one retry sequence: delays of Initial, 2*Initial, 3*Initial,
// 5*Initial and so on up to Max. Returns true when a ping succeeded.
func (r *Recovery) Run(ctx context.Context) bool {
	r.init()
	delays := fibDelays(r.Initial, r.Max)
	for i, d := range delays {
		select {
		case <-ctx.Done():
			return false
		case <-r.Clock.After(d):
		}
		pingCtx, cancel := context.WithTimeout(ctx, r.PingTimeout)
		err := r.Ping(pingCtx)
		cancel()
		if err == nil {
			r.Logger.Info("store recovery check succeeded", zap.Int("attempt", i+1))
			r.OnRecovered()
			return true
		}
		r.Logger.Warn("store recovery check failed",
			zap.Int("attempt", i+1), zap.Duration("delay", d), zap.Error(err))
	}
	if len(delays) > 0 {
		r.Logger.Error("store recovery exhausted", zap.Int("attempts", len(delays)))
		if r.OnExhausted != nil {
			r.OnExhausted()
		}
	}
	return false
}

func fibDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 || max < initial {
		return nil
	}
	var out []time.Duration
	for a, b := int64(1), int64(2); ; a, b = b, a+b {
		d := time.Duration(a) * initial
		if d > max {
			break
		}
		out = append(out, d)
	}
	return out
}
