package main

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"paperledger/internal/advisor"
	"paperledger/internal/ledger"
	"paperledger/internal/marketdata"
	"paperledger/internal/models"
)

// Session runs one full portfolio pass: revalue everything, review each open
// position with the advisor, then look for new opportunities if there is
// room. All market data and advisor I/O happens here, outside the ledger.
type Session struct {
	ledger   *ledger.Ledger
	market   marketdata.Provider
	advisor  advisor.Provider
	log      *logrus.Logger
	symbols  []string
	maxIdeas int
}

// NewSession wires a session over its collaborators.
func NewSession(l *ledger.Ledger, market marketdata.Provider, adv advisor.Provider, log *logrus.Logger, symbols []string, maxIdeas int) *Session {
	return &Session{
		ledger:   l,
		market:   market,
		advisor:  adv,
		log:      log,
		symbols:  symbols,
		maxIdeas: maxIdeas,
	}
}

// Run executes one session pass. Individual failures are logged and skipped;
// an error comes back only when the whole pass is unusable.
func (s *Session) Run(ctx context.Context) error {
	snap := s.ledger.Snapshot()
	s.log.WithFields(logrus.Fields{
		"cash":   snap.CashBalance.StringFixed(2),
		"equity": snap.Equity.StringFixed(2),
		"open":   snap.OpenPositions,
	}).Info("Session started")

	chains := s.revalue(ctx, snap)

	market := s.buildMarketContext(ctx, chains)
	s.reviewPositions(ctx, market)
	s.scout(ctx, market)

	s.log.Info("Session complete")
	return ctx.Err()
}

// revalue fetches chains for every open position and marks them to market.
func (s *Session) revalue(ctx context.Context, snap *models.PortfolioSnapshot) map[string]*models.ChainSnapshot {
	requests := marketdata.RequestsForPositions(snap.Positions)
	if len(requests) == 0 {
		return nil
	}

	chains := marketdata.FetchSnapshots(ctx, s.market, requests)
	for _, err := range s.ledger.RevalueAll(chains) {
		var perr *models.PricingError
		if errors.As(err, &perr) {
			s.log.WithFields(logrus.Fields{
				"position": perr.PositionID,
				"symbol":   perr.Symbol,
			}).Warn("Position kept its last value: " + perr.Reason)
			continue
		}
		s.log.WithError(err).Error("Revaluation failed")
	}
	return chains
}

// buildMarketContext gathers quotes for the advisor across the configured
// universe plus anything currently held.
func (s *Session) buildMarketContext(ctx context.Context, chains map[string]*models.ChainSnapshot) *advisor.MarketContext {
	market := &advisor.MarketContext{
		Quotes: make(map[string]*models.Quote),
		Chains: chains,
	}

	seen := make(map[string]bool)
	symbols := append([]string{}, s.symbols...)
	symbols = append(symbols, s.ledger.Snapshot().OpenSymbols()...)
	for _, sym := range symbols {
		if seen[sym] {
			continue
		}
		seen[sym] = true

		quote, err := s.market.GetQuote(ctx, sym)
		if err != nil {
			s.log.WithError(err).WithField("symbol", sym).Warn("Quote unavailable")
			continue
		}
		market.Quotes[sym] = quote
	}
	return market
}

// reviewPositions asks the advisor about each open position and applies what
// survives validation.
func (s *Session) reviewPositions(ctx context.Context, market *advisor.MarketContext) {
	for _, p := range s.ledger.Snapshot().Positions {
		if !p.IsOpen() {
			continue
		}

		decision, err := s.advisor.ProposeDecision(ctx, p, market)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"position": p.ID,
				"symbol":   p.Symbol,
			}).Warn("Advisor decision rejected")
			continue
		}

		if _, err := s.ledger.ApplyDecision(p.ID, *decision); err != nil {
			var derr *models.DecisionError
			if errors.As(err, &derr) && derr.AlreadyClosed {
				s.log.WithField("position", p.ID).Info("Position already closed, decision skipped")
				continue
			}
			s.log.WithError(err).WithField("position", p.ID).Error("Failed to apply decision")
		}
	}
}

// scout asks for new opportunities while there is capacity. Every rejection
// is logged with the offending field; bad candidates never block good ones.
func (s *Session) scout(ctx context.Context, market *advisor.MarketContext) {
	if !s.ledger.HasCapacity() {
		s.log.Debug("Portfolio at capacity, skipping opportunity scan")
		return
	}

	candidates, err := s.advisor.ProposeOpportunities(ctx, s.ledger.Snapshot(), market, s.maxIdeas)
	if err != nil {
		s.log.WithError(err).Warn("Opportunity scan failed")
		return
	}

	for _, raw := range candidates {
		p, err := s.ledger.CreatePosition(raw)
		if err != nil {
			switch {
			case isValidation(err):
				s.log.WithError(err).Warn("Candidate rejected")
			case isCapacity(err):
				s.log.Info("Capacity reached, remaining candidates skipped")
				return
			case isInsufficientCash(err):
				s.log.WithError(err).Info("Candidate skipped for lack of cash")
			default:
				s.log.WithError(err).Error("Failed to open position")
			}
			continue
		}
		s.log.WithFields(logrus.Fields{
			"position": p.ID,
			"symbol":   p.Symbol,
			"strategy": p.Strategy,
		}).Info("Opened position from advisor candidate")
	}
}

func isValidation(err error) bool {
	var verr *models.ValidationError
	return errors.As(err, &verr)
}

func isCapacity(err error) bool {
	var cerr *models.CapacityError
	return errors.As(err, &cerr)
}

func isInsufficientCash(err error) bool {
	var ierr *models.InsufficientCashError
	return errors.As(err, &ierr)
}

// Loop runs sessions on the given interval until the context ends. The first
// session runs immediately.
func (s *Session) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.WithError(err).Error("Session failed")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.WithError(err).Error("Session failed")
			}
		}
	}
}
