package intercept

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dekarrin/lectern"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Names of the built-in interceptors as used in configuration.
const (
	NameLog      = "log"
	NameMetrics  = "metrics"
	NameThrottle = "throttle"
)

// Logging returns an Interceptor that logs each invocation before it proceeds
// and after it returns. It never alters the result.
func Logging(log lectern.Logger) Interceptor {
	return func(ctx context.Context, inv *Invocation, next Next) (any, error) {
		log.Infof("[BEFORE] Calling %s with args %v", inv.Target, inv.Args)

		start := time.Now()
		result, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			log.Warnf("[AFTER] %s failed after %s: %v", inv.Target, elapsed, err)
		} else {
			log.Infof("[AFTER] Finished %s in %s", inv.Target, elapsed)
		}
		return result, err
	}
}

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Metrics returns an Interceptor that counts invocations and observes their
// duration by target and outcome. Its collectors are registered with reg.
func Metrics(reg prometheus.Registerer) (Interceptor, error) {
	invocations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lectern",
			Subsystem: "invocation",
			Name:      "total",
			Help:      "Total number of operation invocations",
		},
		[]string{"target", "outcome"},
	)

	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lectern",
			Subsystem: "invocation",
			Name:      "duration_seconds",
			Help:      "Time taken to complete an operation invocation",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"target", "outcome"},
	)

	if err := reg.Register(invocations); err != nil {
		return nil, fmt.Errorf("register invocation counter: %w", err)
	}
	if err := reg.Register(latency); err != nil {
		reg.Unregister(invocations)
		return nil, fmt.Errorf("register invocation histogram: %w", err)
	}

	return func(ctx context.Context, inv *Invocation, next Next) (any, error) {
		start := time.Now()
		result, err := next(ctx)

		outcome := outcomeSuccess
		if err != nil {
			outcome = outcomeError
		}
		invocations.WithLabelValues(inv.Target, outcome).Inc()
		latency.WithLabelValues(inv.Target, outcome).Observe(time.Since(start).Seconds())

		return result, err
	}, nil
}

// Throttle returns an Interceptor that limits the rate of invocations of each
// target to limit per second with bursts of at most burst. An invocation over
// the limit is not continued, and its error will return true for
// errors.Is(err, lectern.ErrThrottled).
func Throttle(limit rate.Limit, burst int) Interceptor {
	var mtx sync.Mutex
	limiters := map[string]*rate.Limiter{}

	getLimiter := func(target string) *rate.Limiter {
		mtx.Lock()
		defer mtx.Unlock()

		l, ok := limiters[target]
		if !ok {
			l = rate.NewLimiter(limit, burst)
			limiters[target] = l
		}
		return l
	}

	return func(ctx context.Context, inv *Invocation, next Next) (any, error) {
		if !getLimiter(inv.Target).Allow() {
			return nil, lectern.NewError(inv.Target, lectern.ErrThrottled)
		}
		return next(ctx)
	}
}
