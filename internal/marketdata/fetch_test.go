package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperledger/internal/models"
)

// stubProvider serves canned data and can be told to fail per symbol.
type stubProvider struct {
	mu      sync.Mutex
	failFor map[string]bool
	calls   int
}

func (s *stubProvider) GetQuote(_ context.Context, symbol string) (*models.Quote, error) {
	s.mu.Lock()
	s.calls++
	fail := s.failFor[symbol]
	s.mu.Unlock()
	if fail {
		return nil, errors.New("upstream down")
	}
	return &models.Quote{
		Symbol:    symbol,
		Last:      decimal.NewFromInt(100),
		Bid:       decimal.NewFromFloat(99.9),
		Ask:       decimal.NewFromFloat(100.1),
		Timestamp: time.Now().UTC(),
	}, nil
}

func (s *stubProvider) GetExpirations(context.Context, string) ([]time.Time, error) {
	return []time.Time{time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)}, nil
}

func (s *stubProvider) GetOptionChain(_ context.Context, symbol string, exp time.Time) ([]models.Contract, error) {
	s.mu.Lock()
	fail := s.failFor[symbol]
	s.mu.Unlock()
	if fail {
		return nil, errors.New("upstream down")
	}
	return []models.Contract{
		{
			Symbol:     symbol + "-C100",
			Underlying: symbol,
			Strike:     decimal.NewFromInt(100),
			Expiration: exp,
			OptionType: models.OptionTypeCall,
			Bid:        decimal.NewFromInt(5),
			Ask:        decimal.NewFromInt(6),
		},
	}, nil
}

func TestFetchSnapshots(t *testing.T) {
	provider := &stubProvider{}
	exp := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	snaps := FetchSnapshots(context.Background(), provider, []ChainRequest{
		{Symbol: "AAPL", Expirations: []time.Time{exp}},
		{Symbol: "MSFT", Expirations: []time.Time{exp}},
	})

	require.Len(t, snaps, 2)
	require.Contains(t, snaps, "AAPL")
	assert.True(t, snaps["AAPL"].UnderlyingPrice.Equal(decimal.NewFromInt(100)))
	require.Len(t, snaps["AAPL"].Contracts, 1)
}

func TestFetchSnapshotsIsolatesFailures(t *testing.T) {
	provider := &stubProvider{failFor: map[string]bool{"MSFT": true}}
	exp := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	snaps := FetchSnapshots(context.Background(), provider, []ChainRequest{
		{Symbol: "AAPL", Expirations: []time.Time{exp}},
		{Symbol: "MSFT", Expirations: []time.Time{exp}},
	})

	require.Len(t, snaps, 1)
	assert.Contains(t, snaps, "AAPL")
	assert.NotContains(t, snaps, "MSFT")
}

func TestRequestsForPositions(t *testing.T) {
	expNear := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	expFar := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	leg := func(exp time.Time) models.Leg {
		return models.Leg{
			Strike:     decimal.NewFromInt(100),
			Expiration: exp,
			OptionType: models.OptionTypeCall,
			Quantity:   1,
		}
	}

	positions := []*models.Position{
		{ID: "a", Symbol: "AAPL", Status: models.StatusOpen, Legs: []models.Leg{leg(expNear), leg(expFar)}},
		{ID: "b", Symbol: "AAPL", Status: models.StatusOpen, Legs: []models.Leg{leg(expNear)}},
		{ID: "c", Symbol: "MSFT", Status: models.StatusClosed, Legs: []models.Leg{leg(expNear)}},
	}

	reqs := RequestsForPositions(positions)
	require.Len(t, reqs, 1, "closed positions contribute nothing")
	assert.Equal(t, "AAPL", reqs[0].Symbol)
	assert.Len(t, reqs[0].Expirations, 2, "duplicate expirations collapse")
}
