// Package marketdata fetches quotes and option chains from external
// providers. All calls take a context and happen outside the ledger's lock.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"paperledger/internal/models"
)

// Provider defines read-only market data access.
type Provider interface {
	// GetQuote returns the current quote for an underlying symbol.
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// GetExpirations returns the available option expiration dates for a
	// symbol, in ascending order.
	GetExpirations(ctx context.Context, symbol string) ([]time.Time, error)

	// GetOptionChain returns the option contracts for one symbol and
	// expiration date.
	GetOptionChain(ctx context.Context, symbol string, expiration time.Time) ([]models.Contract, error)
}

// ErrChainsUnsupported is returned by providers that only serve underlying
// quotes.
var ErrChainsUnsupported = errors.New("option chains not supported by this provider")

// CircuitBreakerProvider wraps a Provider so a failing upstream stops being
// hammered. While the breaker is open, calls fail fast.
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

var _ Provider = (*CircuitBreakerProvider)(nil)

// BreakerSettings configures circuit breaker behavior.
type BreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerProvider wraps the provider with default breaker settings.
func NewCircuitBreakerProvider(p Provider, log *logrus.Logger) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(p, log, BreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerProviderWithSettings wraps the provider with custom
// breaker settings.
func NewCircuitBreakerProviderWithSettings(p Provider, log *logrus.Logger, settings BreakerSettings) *CircuitBreakerProvider {
	if log == nil {
		log = logrus.New()
	}
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &CircuitBreakerProvider{
		provider: p,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

func execBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	provider Provider,
	fn func(Provider) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(provider) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetQuote wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) (*models.Quote, error) {
		return p.GetQuote(ctx, symbol)
	})
}

// GetExpirations wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) ([]time.Time, error) {
		return p.GetExpirations(ctx, symbol)
	})
}

// GetOptionChain wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetOptionChain(ctx context.Context, symbol string, expiration time.Time) ([]models.Contract, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) ([]models.Contract, error) {
		return p.GetOptionChain(ctx, symbol, expiration)
	})
}
