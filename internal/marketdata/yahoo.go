package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"paperledger/internal/models"
)

// YahooClient serves underlying quotes from Yahoo Finance. It needs no API
// key, which makes it a useful fallback, but it cannot serve option chains.
type YahooClient struct{}

var _ Provider = (*YahooClient)(nil)

// NewYahooClient returns a keyless quote-only provider.
func NewYahooClient() *YahooClient {
	return &YahooClient{}
}

// GetQuote retrieves the current quote for a symbol.
func (y *YahooClient) GetQuote(_ context.Context, symbol string) (*models.Quote, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if q == nil {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}

	ts := time.Now().UTC()
	if q.RegularMarketTime > 0 {
		ts = time.Unix(int64(q.RegularMarketTime), 0).UTC()
	}
	return &models.Quote{
		Symbol:    symbol,
		Last:      decimal.NewFromFloat(q.RegularMarketPrice),
		Bid:       decimal.NewFromFloat(q.Bid),
		Ask:       decimal.NewFromFloat(q.Ask),
		Timestamp: ts,
	}, nil
}

// GetExpirations is not supported; Yahoo serves underlying quotes only.
func (y *YahooClient) GetExpirations(context.Context, string) ([]time.Time, error) {
	return nil, ErrChainsUnsupported
}

// GetOptionChain is not supported; Yahoo serves underlying quotes only.
func (y *YahooClient) GetOptionChain(context.Context, string, time.Time) ([]models.Contract, error) {
	return nil, ErrChainsUnsupported
}
