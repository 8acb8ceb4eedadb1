// Package ledger owns the paper portfolio: cash, positions, and the rules
// that govern every mutation. It is the only writer; everything else reads
// snapshots or hands the ledger validated inputs.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"paperledger/internal/models"
	"paperledger/internal/storage"
	"paperledger/internal/valuation"
)

// Config holds the portfolio parameters fixed at construction.
type Config struct {
	InitialCash      decimal.Decimal
	MaxOpenPositions int
}

// Ledger tracks cash and positions under a single mutex. Market data and
// advisor calls never happen inside it; callers fetch first and hand results
// in. Persistence happens under the lock so the durable record can never
// run ahead of or behind memory.
type Ledger struct {
	mu        sync.RWMutex
	cfg       Config
	cash      decimal.Decimal
	positions map[string]*models.Position
	order     []string
	store     storage.Interface
	log       *logrus.Logger
}

// NewLedger builds a ledger over the given store, restoring any persisted
// state. A fresh store starts at the configured initial cash.
func NewLedger(cfg Config, store storage.Interface, log *logrus.Logger) (*Ledger, error) {
	if cfg.MaxOpenPositions <= 0 {
		return nil, fmt.Errorf("max open positions must be positive (got %d)", cfg.MaxOpenPositions)
	}
	if !cfg.InitialCash.IsPositive() {
		return nil, fmt.Errorf("initial cash must be positive (got %s)", cfg.InitialCash)
	}
	if log == nil {
		log = logrus.New()
	}

	l := &Ledger{
		cfg:       cfg,
		cash:      cfg.InitialCash,
		positions: make(map[string]*models.Position),
		store:     store,
		log:       log,
	}

	persisted, err := store.LoadPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	for _, p := range persisted {
		if err := p.ValidateState(); err != nil {
			return nil, fmt.Errorf("persisted state is corrupt: %w", err)
		}
		l.positions[p.ID] = p
		l.order = append(l.order, p.ID)
	}

	cash, ok, err := store.LoadCashBalance()
	if err != nil {
		return nil, fmt.Errorf("failed to load cash balance: %w", err)
	}
	if ok {
		l.cash = cash
	} else if err := store.SaveCashBalance(l.cash); err != nil {
		return nil, fmt.Errorf("failed to persist initial cash: %w", err)
	}

	log.WithFields(logrus.Fields{
		"cash":      l.cash.StringFixed(2),
		"positions": len(l.positions),
	}).Info("Ledger restored")
	return l, nil
}

// openCount must be called with the lock held.
func (l *Ledger) openCount() int {
	n := 0
	for _, p := range l.positions {
		if p.IsOpen() {
			n++
		}
	}
	return n
}

// CreatePosition validates an advisor candidate and, if it passes, opens a
// position: entry cost leaves cash, the position enters at that same value.
// Rejections are typed so callers can log exactly what was wrong; nothing is
// ever repaired silently beyond the documented defaults.
func (l *Ledger) CreatePosition(raw models.RawOpportunity) (*models.Position, error) {
	now := time.Now().UTC()
	opp, err := normalizeOpportunity(raw, now)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.openCount() >= l.cfg.MaxOpenPositions {
		return nil, &models.CapacityError{Max: l.cfg.MaxOpenPositions}
	}
	if opp.EntryCost.IsPositive() && opp.EntryCost.GreaterThan(l.cash) {
		return nil, &models.InsufficientCashError{
			Required:  opp.EntryCost.StringFixed(2),
			Available: l.cash.StringFixed(2),
		}
	}

	p := &models.Position{
		ID:              uuid.NewString(),
		Symbol:          opp.Symbol,
		Strategy:        opp.Strategy,
		Legs:            opp.Legs,
		EntryCost:       opp.EntryCost,
		CurrentValue:    opp.EntryCost,
		ProfitTarget:    opp.TargetReturn,
		StopLoss:        negatedRisk(opp),
		Status:          models.StatusOpen,
		Rationale:       opp.Rationale,
		Confidence:      opp.Confidence,
		TimeHorizonDays: opp.TimeHorizonDays,
		CreatedAt:       now,
	}

	if err := l.store.SavePosition(p); err != nil {
		return nil, fmt.Errorf("failed to persist position %s: %w", p.ID, err)
	}

	l.cash = l.cash.Sub(opp.EntryCost)
	if err := l.store.SaveCashBalance(l.cash); err != nil {
		// Roll memory back so cash and store cannot diverge.
		l.cash = l.cash.Add(opp.EntryCost)
		return nil, fmt.Errorf("failed to persist cash after opening %s: %w", p.ID, err)
	}

	l.positions[p.ID] = p
	l.order = append(l.order, p.ID)

	l.log.WithFields(logrus.Fields{
		"position": p.ID,
		"symbol":   p.Symbol,
		"strategy": p.Strategy,
		"cost":     p.EntryCost.StringFixed(2),
		"cash":     l.cash.StringFixed(2),
	}).Info("Position opened")

	return p.Clone(), nil
}

// The stop loss is derived from max risk: losing the full allowed amount
// marks the position at entry cost minus that risk, floored at zero.
func negatedRisk(opp *models.Opportunity) decimal.NullDecimal {
	if !opp.MaxRisk.Valid {
		return decimal.NullDecimal{}
	}
	floor := opp.EntryCost.Sub(opp.MaxRisk.Decimal)
	if floor.IsNegative() {
		floor = decimal.Zero
	}
	return decimal.NewNullDecimal(floor)
}

// Revalue marks one position to market against the given chain. Non-OPEN
// positions are left untouched. A position that cannot be priced returns a
// PricingError and keeps its previous value.
func (l *Ledger) Revalue(id string, chain *models.ChainSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.revalueLocked(id, chain)
}

func (l *Ledger) revalueLocked(id string, chain *models.ChainSnapshot) error {
	p, ok := l.positions[id]
	if !ok {
		return fmt.Errorf("position %s not found", id)
	}
	if !p.IsOpen() {
		return nil
	}
	if chain == nil {
		return &models.PricingError{PositionID: id, Symbol: p.Symbol, Reason: "no chain snapshot"}
	}

	value, greeks, err := valuation.Value(p.Legs, chain)
	if err != nil {
		return &models.PricingError{PositionID: id, Symbol: p.Symbol, Reason: err.Error()}
	}

	p.CurrentValue = value
	p.Greeks = greeks
	if err := l.store.UpdatePosition(p); err != nil {
		return fmt.Errorf("failed to persist revalued position %s: %w", id, err)
	}
	return nil
}

// RevalueAll marks every OPEN position against the chains provided, keyed by
// symbol. One position failing never blocks the others; all failures are
// returned together.
func (l *Ledger) RevalueAll(chains map[string]*models.ChainSnapshot) []error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, id := range l.order {
		p := l.positions[id]
		if !p.IsOpen() {
			continue
		}
		if err := l.revalueLocked(id, chains[p.Symbol]); err != nil {
			l.log.WithError(err).WithField("position", id).Warn("Revaluation failed")
			errs = append(errs, err)
		}
	}
	return errs
}

// ApplyDecision records a decision in the position's audit history and then
// applies its effect. The record always lands first, so the history explains
// every mutation. A CLOSE against an already terminal position is reported as
// such, never swallowed.
func (l *Ledger) ApplyDecision(id string, d models.Decision) (*models.Position, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s not found", id)
	}
	if p.Status.Terminal() {
		return nil, &models.DecisionError{
			PositionID:    id,
			Action:        d.Action,
			Reason:        fmt.Sprintf("position is %s", p.Status),
			AlreadyClosed: p.Status == models.StatusClosed,
		}
	}

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.PositionID = id
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	if err := l.store.AppendDecision(&d); err != nil {
		return nil, fmt.Errorf("failed to record decision for position %s: %w", id, err)
	}
	p.AppendDecision(d)

	log := l.log.WithFields(logrus.Fields{
		"position": id,
		"symbol":   p.Symbol,
		"action":   d.Action,
	})

	switch d.Action {
	case models.ActionHold:
		log.Info("Holding position")
		return p.Clone(), nil

	case models.ActionAdjustStop:
		p.StopLoss = d.StopLoss
		if err := l.store.UpdatePosition(p); err != nil {
			return nil, fmt.Errorf("failed to persist stop adjustment for %s: %w", id, err)
		}
		log.WithField("stop_loss", d.StopLoss.Decimal.StringFixed(2)).Info("Stop loss adjusted")
		return p.Clone(), nil

	case models.ActionAdjustTarget:
		p.ProfitTarget = d.TargetPrice
		if err := l.store.UpdatePosition(p); err != nil {
			return nil, fmt.Errorf("failed to persist target adjustment for %s: %w", id, err)
		}
		log.WithField("profit_target", d.TargetPrice.Decimal.StringFixed(2)).Info("Profit target adjusted")
		return p.Clone(), nil

	case models.ActionClose:
		if err := l.closeLocked(p); err != nil {
			return nil, err
		}
		return p.Clone(), nil

	default:
		return nil, &models.ValidationError{Field: "action", Reason: fmt.Sprintf("unrecognized action %q", d.Action)}
	}
}

// ClosePosition exits a position at its current value, crediting the proceeds
// to cash. Closing a position that is already terminal returns a
// DecisionError with AlreadyClosed set, so callers can distinguish a retry
// from a bug.
func (l *Ledger) ClosePosition(id, reasoning string) (*models.Position, error) {
	d := models.Decision{
		Action:     models.ActionClose,
		Confidence: 1,
		Reasoning:  reasoning,
	}
	if d.Reasoning == "" {
		d.Reasoning = "closed by request"
	}
	return l.ApplyDecision(id, d)
}

// closeLocked must be called with the lock held and the position OPEN.
func (l *Ledger) closeLocked(p *models.Position) error {
	proceeds := p.CurrentValue
	realized := proceeds.Sub(p.EntryCost)

	p.Status = models.StatusClosed
	p.ClosedAt = time.Now().UTC()
	p.RealizedPnL = decimal.NewNullDecimal(realized)

	if err := l.store.UpdatePosition(p); err != nil {
		p.Status = models.StatusOpen
		p.ClosedAt = time.Time{}
		p.RealizedPnL = decimal.NullDecimal{}
		return fmt.Errorf("failed to persist close of position %s: %w", p.ID, err)
	}

	l.cash = l.cash.Add(proceeds)
	if err := l.store.SaveCashBalance(l.cash); err != nil {
		// Reopen the position, in memory and in the store, so the persisted
		// cash row and the persisted position never disagree.
		l.cash = l.cash.Sub(proceeds)
		p.Status = models.StatusOpen
		p.ClosedAt = time.Time{}
		p.RealizedPnL = decimal.NullDecimal{}
		if uerr := l.store.UpdatePosition(p); uerr != nil {
			l.log.WithError(uerr).WithField("position", p.ID).Error("Failed to reopen position after cash persist failure")
		}
		return fmt.Errorf("failed to persist cash after closing %s: %w", p.ID, err)
	}

	l.log.WithFields(logrus.Fields{
		"position": p.ID,
		"symbol":   p.Symbol,
		"proceeds": proceeds.StringFixed(2),
		"pnl":      realized.StringFixed(2),
		"cash":     l.cash.StringFixed(2),
	}).Info("Position closed")
	return nil
}

// ResetPortfolio abandons every OPEN position and restores cash to the
// configured initial balance. Reset positions stay on record for audit but
// carry no realized P&L and never count toward statistics.
func (l *Ledger) ResetPortfolio() (*models.ResetSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	summary := &models.ResetSummary{
		PriorCash: l.cash,
		At:        time.Now().UTC(),
	}

	var reset []*models.Position
	for _, id := range l.order {
		p := l.positions[id]
		if !p.IsOpen() {
			continue
		}
		p.Status = models.StatusReset
		if err := l.store.UpdatePosition(p); err != nil {
			p.Status = models.StatusOpen
			l.reopenAll(reset)
			return nil, fmt.Errorf("failed to persist reset of position %s: %w", id, err)
		}
		reset = append(reset, p)
		summary.PositionsReset++
	}

	prior := l.cash
	l.cash = l.cfg.InitialCash
	if err := l.store.SaveCashBalance(l.cash); err != nil {
		l.cash = prior
		l.reopenAll(reset)
		return nil, fmt.Errorf("failed to persist cash after reset: %w", err)
	}
	summary.CashBalance = l.cash

	l.log.WithFields(logrus.Fields{
		"positions_reset": summary.PositionsReset,
		"cash":            l.cash.StringFixed(2),
	}).Warn("Portfolio reset")
	return summary, nil
}

// reopenAll unwinds a partial reset after a persistence failure, restoring
// each position to OPEN in memory and in the store. Must be called with the
// lock held.
func (l *Ledger) reopenAll(positions []*models.Position) {
	for _, p := range positions {
		p.Status = models.StatusOpen
		if err := l.store.UpdatePosition(p); err != nil {
			l.log.WithError(err).WithField("position", p.ID).Error("Failed to reopen position after reset persist failure")
		}
	}
}

// GetPosition returns a copy of one position.
func (l *Ledger) GetPosition(id string) (*models.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Snapshot returns a consistent copy of the whole portfolio. Every position
// is cloned; the caller can do anything with the result.
func (l *Ledger) Snapshot() *models.PortfolioSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := &models.PortfolioSnapshot{
		InitialCash: l.cfg.InitialCash,
		CashBalance: l.cash,
		AsOf:        time.Now().UTC(),
	}

	var closed []*models.Position
	for _, id := range l.order {
		p := l.positions[id]
		snap.Positions = append(snap.Positions, p.Clone())
		switch p.Status {
		case models.StatusOpen:
			snap.OpenPositions++
			snap.OpenValue = snap.OpenValue.Add(p.CurrentValue)
			snap.UnrealizedPnL = snap.UnrealizedPnL.Add(p.UnrealizedPnL())
		case models.StatusClosed:
			snap.RealizedPnL = snap.RealizedPnL.Add(p.RealizedPnL.Decimal)
			closed = append(closed, p)
		}
	}
	snap.Equity = snap.CashBalance.Add(snap.OpenValue)
	snap.Stats = computeStatistics(closed)
	return snap
}

// computeStatistics summarizes CLOSED positions only. RESET positions are on
// record but never counted.
func computeStatistics(closed []*models.Position) models.Statistics {
	var stats models.Statistics
	if len(closed) == 0 {
		return stats
	}

	sort.Slice(closed, func(i, j int) bool {
		return closed[i].ClosedAt.Before(closed[j].ClosedAt)
	})

	var winTotal, lossTotal decimal.Decimal
	for _, p := range closed {
		pnl := p.RealizedPnL.Decimal
		stats.TotalTrades++
		stats.TotalPnL = stats.TotalPnL.Add(pnl)
		// Break-even closes count toward neither side.
		switch pnl.Sign() {
		case 1:
			stats.WinningTrades++
			winTotal = winTotal.Add(pnl)
		case -1:
			stats.LosingTrades++
			lossTotal = lossTotal.Add(pnl)
		}
	}

	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades)
	if stats.WinningTrades > 0 {
		stats.AverageWin = winTotal.Div(decimal.NewFromInt(int64(stats.WinningTrades)))
	}
	if stats.LosingTrades > 0 {
		stats.AverageLoss = lossTotal.Div(decimal.NewFromInt(int64(stats.LosingTrades)))
	}

	// Streak runs backwards from the most recent close; wins count up,
	// losses count down, and a break-even close ends any streak.
	last := closed[len(closed)-1].RealizedPnL.Decimal.Sign()
	for i := len(closed) - 1; last != 0 && i >= 0; i-- {
		if closed[i].RealizedPnL.Decimal.Sign() != last {
			break
		}
		stats.CurrentStreak += last
	}
	return stats
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// OpenPositionCount returns how many positions are currently OPEN.
func (l *Ledger) OpenPositionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.openCount()
}

// HasCapacity reports whether another position may be opened.
func (l *Ledger) HasCapacity() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.openCount() < l.cfg.MaxOpenPositions
}
