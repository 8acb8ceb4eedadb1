package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statistics summarizes realized performance over closed positions.
type Statistics struct {
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	WinRate       float64         `json:"win_rate"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	AverageWin    decimal.Decimal `json:"average_win"`
	AverageLoss   decimal.Decimal `json:"average_loss"`
	CurrentStreak int             `json:"current_streak"`
}

// PortfolioSnapshot is a consistent read-only view of the whole portfolio.
// Positions are deep copies; mutating a snapshot never affects the ledger.
type PortfolioSnapshot struct {
	InitialCash   decimal.Decimal `json:"initial_cash"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	OpenValue     decimal.Decimal `json:"open_value"`
	Equity        decimal.Decimal `json:"equity"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	OpenPositions int             `json:"open_positions"`
	Positions     []*Position     `json:"positions"`
	Stats         Statistics      `json:"stats"`
	AsOf          time.Time       `json:"as_of"`
}

// OpenSymbols returns the distinct underlying symbols of OPEN positions.
func (s *PortfolioSnapshot) OpenSymbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range s.Positions {
		if p.IsOpen() && !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	return out
}

// ResetSummary reports the outcome of a portfolio reset.
type ResetSummary struct {
	PositionsReset int             `json:"positions_reset"`
	PriorCash      decimal.Decimal `json:"prior_cash"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	At             time.Time       `json:"at"`
}
