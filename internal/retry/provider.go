// Package retry wraps a market data provider with bounded retries for
// transient upstream failures.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"paperledger/internal/marketdata"
	"paperledger/internal/models"
)

// Config controls retry behavior.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig is tuned for polling market data once a session, not for
// latency-sensitive paths.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Provider decorates a marketdata.Provider with retries. Only transient
// errors are retried; a 404 or an auth failure comes back immediately.
type Provider struct {
	inner  marketdata.Provider
	log    *logrus.Logger
	config Config
}

var _ marketdata.Provider = (*Provider)(nil)

// NewProvider wraps the given provider. The optional config overrides
// DefaultConfig.
func NewProvider(inner marketdata.Provider, log *logrus.Logger, config ...Config) *Provider {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if log == nil {
		log = logrus.New()
	}
	return &Provider{inner: inner, log: log, config: cfg}
}

// GetQuote retries transient failures of the underlying call.
func (p *Provider) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return withRetry(ctx, p, "quote "+symbol, func(ctx context.Context) (*models.Quote, error) {
		return p.inner.GetQuote(ctx, symbol)
	})
}

// GetExpirations retries transient failures of the underlying call.
func (p *Provider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	return withRetry(ctx, p, "expirations "+symbol, func(ctx context.Context) ([]time.Time, error) {
		return p.inner.GetExpirations(ctx, symbol)
	})
}

// GetOptionChain retries transient failures of the underlying call.
func (p *Provider) GetOptionChain(ctx context.Context, symbol string, expiration time.Time) ([]models.Contract, error) {
	op := fmt.Sprintf("chain %s %s", symbol, expiration.Format("2006-01-02"))
	return withRetry(ctx, p, op, func(ctx context.Context) ([]models.Contract, error) {
		return p.inner.GetOptionChain(ctx, symbol, expiration)
	})
}

func withRetry[T any](ctx context.Context, p *Provider, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	opCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if err := opCtx.Err(); err != nil {
			return zero, fmt.Errorf("%s: canceled: %w", op, err)
		}

		result, err := fn(opCtx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == p.config.MaxRetries {
			break
		}

		p.log.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt + 1,
			"backoff": backoff.String(),
		}).WithError(err).Warn("Transient market data failure, retrying")

		select {
		case <-time.After(backoff):
			backoff = p.nextBackoff(backoff)
		case <-opCtx.Done():
			return zero, fmt.Errorf("%s: timed out during backoff: %w", op, opCtx.Err())
		}
	}

	return zero, fmt.Errorf("%s: failed after %d attempts: %w", op, p.config.MaxRetries+1, lastErr)
}

func (p *Provider) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > p.config.MaxBackoff {
		backoff = p.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			p.log.WithError(err).Debug("Failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
