package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/glickorun/internal/market"
	"github.com/sawpanic/glickorun/internal/rating"
)

// GuardConfig configures rate limiting and circuit breaking around a provider
type GuardConfig struct {
	Name                string        `yaml:"name"`
	RPS                 float64       `yaml:"rps"`   // per asset (default: 5)
	Burst               int           `yaml:"burst"` // default: 1
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	FailureRatio        float64       `yaml:"failure_ratio"`
	MinRequests         uint32        `yaml:"min_requests"`
	Interval            time.Duration `yaml:"interval"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

// DefaultGuardConfig returns sensible defaults
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:                name,
		RPS:                 5,
		Burst:               1,
		ConsecutiveFailures: 3,
		FailureRatio:        0.05,
		MinRequests:         20,
		Interval:            60 * time.Second,
		OpenTimeout:         60 * time.Second,
	}
}

// GuardedProvider throttles calls per asset and stops calling a failing
// provider until its breaker half-opens.
type GuardedProvider struct {
	inner   Provider
	config  GuardConfig
	breaker *gobreaker.CircuitBreaker

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewGuardedProvider wraps inner with a rate limiter and circuit breaker
func NewGuardedProvider(inner Provider, config GuardConfig) *GuardedProvider {
	if config.RPS <= 0 {
		config.RPS = 5
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	st := gobreaker.Settings{
		Name:     config.Name,
		Interval: config.Interval,
		Timeout:  config.OpenTimeout,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if config.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= config.ConsecutiveFailures {
			return true
		}
		if counts.Requests < config.MinRequests || config.FailureRatio <= 0 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > config.FailureRatio
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
	}

	return &GuardedProvider{
		inner:    inner,
		config:   config,
		breaker:  gobreaker.NewCircuitBreaker(st),
		limiters: make(map[string]*rate.Limiter),
	}
}

// PriceSeries forwards to the inner provider when allowed
func (g *GuardedProvider) PriceSeries(ctx context.Context, asset string, start, end time.Time) ([]market.PricePoint, error) {
	out, err := g.execute(ctx, asset, func() (interface{}, error) {
		return g.inner.PriceSeries(ctx, asset, start, end)
	})
	if err != nil {
		return nil, err
	}
	return out.([]market.PricePoint), nil
}

// RatingSeries forwards to the inner provider when allowed
func (g *GuardedProvider) RatingSeries(ctx context.Context, asset string, start, end time.Time) ([]rating.Point, error) {
	out, err := g.execute(ctx, asset, func() (interface{}, error) {
		return g.inner.RatingSeries(ctx, asset, start, end)
	})
	if err != nil {
		return nil, err
	}
	return out.([]rating.Point), nil
}

// State reports the breaker state
func (g *GuardedProvider) State() gobreaker.State {
	return g.breaker.State()
}

func (g *GuardedProvider) execute(ctx context.Context, asset string, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter(asset).Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit wait for %s: %w", g.config.Name, asset, err)
	}
	out, err := g.breaker.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", g.config.Name, asset, err)
	}
	return out, nil
}

// limiter returns or creates the limiter for asset
func (g *GuardedProvider) limiter(asset string) *rate.Limiter {
	g.mu.RLock()
	l, ok := g.limiters[asset]
	g.mu.RUnlock()
	if ok {
		return l
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.limiters[asset]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(g.config.RPS), g.config.Burst)
	g.limiters[asset] = l
	return l
}
