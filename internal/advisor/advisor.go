// Package advisor asks an external language model what to do with the
// portfolio. The advisor only proposes; the ledger validates and decides what
// actually happens.
package advisor

import (
	"context"

	"paperledger/internal/models"
)

// MarketContext is the market data handed to the advisor alongside the
// portfolio snapshot.
type MarketContext struct {
	Quotes map[string]*models.Quote
	Chains map[string]*models.ChainSnapshot
}

// Provider proposes new positions and management decisions. Implementations
// return raw, untrusted candidates; nothing here is applied without
// normalization and validation downstream.
type Provider interface {
	// ProposeOpportunities suggests candidates for new positions given the
	// current portfolio and market state. The limit caps how many come back.
	ProposeOpportunities(ctx context.Context, snap *models.PortfolioSnapshot, market *MarketContext, limit int) ([]models.RawOpportunity, error)

	// ProposeDecision suggests a management action for one open position.
	ProposeDecision(ctx context.Context, position *models.Position, market *MarketContext) (*models.Decision, error)
}
