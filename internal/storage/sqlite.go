package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"paperledger/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id                TEXT PRIMARY KEY,
	symbol            TEXT NOT NULL,
	strategy          TEXT NOT NULL,
	legs              TEXT NOT NULL,
	entry_cost        TEXT NOT NULL,
	current_value     TEXT NOT NULL,
	profit_target     TEXT,
	stop_loss         TEXT,
	realized_pnl      TEXT,
	status            TEXT NOT NULL,
	rationale         TEXT NOT NULL DEFAULT '',
	confidence        REAL NOT NULL DEFAULT 0,
	time_horizon_days INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	closed_at         TEXT
);

CREATE TABLE IF NOT EXISTS decisions (
	id                TEXT PRIMARY KEY,
	position_id       TEXT NOT NULL REFERENCES positions(id),
	action            TEXT NOT NULL,
	confidence        REAL NOT NULL,
	reasoning         TEXT NOT NULL,
	target_price      TEXT,
	stop_loss         TEXT,
	time_horizon_days INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_position ON decisions(position_id, created_at);

CREATE TABLE IF NOT EXISTS portfolio (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	cash_balance TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
`

// sqliteStorage persists portfolio state to a single SQLite database file.
// Positions are updated in place; decisions are insert-only.
type sqliteStorage struct {
	mu sync.Mutex
	db *sql.DB
}

// Compile-time check that sqliteStorage satisfies the interface.
var _ Interface = (*sqliteStorage)(nil)

func newSQLiteStorage(path string) (*sqliteStorage, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// The driver is not safe for concurrent writers on one connection pool
	// beyond what SQLite itself serializes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &sqliteStorage{db: db}, nil
}

func (s *sqliteStorage) SavePosition(p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	legs, err := json.Marshal(p.Legs)
	if err != nil {
		return fmt.Errorf("failed to encode legs for position %s: %w", p.ID, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO positions (
			id, symbol, strategy, legs, entry_cost, current_value,
			profit_target, stop_loss, realized_pnl, status, rationale,
			confidence, time_horizon_days, created_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Symbol, string(p.Strategy), string(legs),
		p.EntryCost.String(), p.CurrentValue.String(),
		nullDecimalValue(p.ProfitTarget), nullDecimalValue(p.StopLoss),
		nullDecimalValue(p.RealizedPnL), string(p.Status), p.Rationale,
		p.Confidence, p.TimeHorizonDays,
		p.CreatedAt.UTC().Format(time.RFC3339Nano), nullTimeValue(p.ClosedAt))
	if err != nil {
		return fmt.Errorf("failed to insert position %s: %w", p.ID, err)
	}

	for i := range p.Decisions {
		if err := insertDecision(tx, &p.Decisions[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *sqliteStorage) UpdatePosition(p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE positions SET
			current_value = ?, profit_target = ?, stop_loss = ?,
			realized_pnl = ?, status = ?, closed_at = ?
		WHERE id = ?`,
		p.CurrentValue.String(), nullDecimalValue(p.ProfitTarget),
		nullDecimalValue(p.StopLoss), nullDecimalValue(p.RealizedPnL),
		string(p.Status), nullTimeValue(p.ClosedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update position %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of position %s: %w", p.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("position %s not found in storage", p.ID)
	}
	return nil
}

func (s *sqliteStorage) AppendDecision(d *models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertDecision(tx, d); err != nil {
		return err
	}
	return tx.Commit()
}

func insertDecision(tx *sql.Tx, d *models.Decision) error {
	_, err := tx.Exec(`
		INSERT INTO decisions (
			id, position_id, action, confidence, reasoning,
			target_price, stop_loss, time_horizon_days, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.PositionID, string(d.Action), d.Confidence, d.Reasoning,
		nullDecimalValue(d.TargetPrice), nullDecimalValue(d.StopLoss),
		d.TimeHorizonDays, d.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert decision %s for position %s: %w", d.ID, d.PositionID, err)
	}
	return nil
}

func (s *sqliteStorage) LoadPositions() ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, symbol, strategy, legs, entry_cost, current_value,
			profit_target, stop_loss, realized_pnl, status, rationale,
			confidence, time_horizon_days, created_at, closed_at
		FROM positions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	byID := make(map[string]*models.Position)

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	if err := s.attachDecisions(byID); err != nil {
		return nil, err
	}
	return positions, nil
}

func scanPosition(rows *sql.Rows) (*models.Position, error) {
	var (
		p                        models.Position
		legsJSON                 string
		entryCost, currentValue  string
		target, stop, realized   sql.NullString
		createdAt                string
		closedAt                 sql.NullString
		strategy, status         string
	)

	err := rows.Scan(&p.ID, &p.Symbol, &strategy, &legsJSON, &entryCost,
		&currentValue, &target, &stop, &realized, &status, &p.Rationale,
		&p.Confidence, &p.TimeHorizonDays, &createdAt, &closedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan position row: %w", err)
	}

	p.Strategy = models.StrategyType(strategy)
	p.Status = models.PositionStatus(status)

	if err := json.Unmarshal([]byte(legsJSON), &p.Legs); err != nil {
		return nil, fmt.Errorf("failed to decode legs for position %s: %w", p.ID, err)
	}
	if p.EntryCost, err = decimal.NewFromString(entryCost); err != nil {
		return nil, fmt.Errorf("failed to parse entry_cost for position %s: %w", p.ID, err)
	}
	if p.CurrentValue, err = decimal.NewFromString(currentValue); err != nil {
		return nil, fmt.Errorf("failed to parse current_value for position %s: %w", p.ID, err)
	}
	if p.ProfitTarget, err = scanNullDecimal(target); err != nil {
		return nil, fmt.Errorf("failed to parse profit_target for position %s: %w", p.ID, err)
	}
	if p.StopLoss, err = scanNullDecimal(stop); err != nil {
		return nil, fmt.Errorf("failed to parse stop_loss for position %s: %w", p.ID, err)
	}
	if p.RealizedPnL, err = scanNullDecimal(realized); err != nil {
		return nil, fmt.Errorf("failed to parse realized_pnl for position %s: %w", p.ID, err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for position %s: %w", p.ID, err)
	}
	if closedAt.Valid {
		if p.ClosedAt, err = time.Parse(time.RFC3339Nano, closedAt.String); err != nil {
			return nil, fmt.Errorf("failed to parse closed_at for position %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func (s *sqliteStorage) attachDecisions(byID map[string]*models.Position) error {
	rows, err := s.db.Query(`
		SELECT id, position_id, action, confidence, reasoning,
			target_price, stop_loss, time_horizon_days, created_at
		FROM decisions ORDER BY created_at`)
	if err != nil {
		return fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d            models.Decision
			action       string
			target, stop sql.NullString
			createdAt    string
		)
		err := rows.Scan(&d.ID, &d.PositionID, &action, &d.Confidence,
			&d.Reasoning, &target, &stop, &d.TimeHorizonDays, &createdAt)
		if err != nil {
			return fmt.Errorf("failed to scan decision row: %w", err)
		}
		d.Action = models.DecisionAction(action)
		if d.TargetPrice, err = scanNullDecimal(target); err != nil {
			return fmt.Errorf("failed to parse target_price for decision %s: %w", d.ID, err)
		}
		if d.StopLoss, err = scanNullDecimal(stop); err != nil {
			return fmt.Errorf("failed to parse stop_loss for decision %s: %w", d.ID, err)
		}
		if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return fmt.Errorf("failed to parse created_at for decision %s: %w", d.ID, err)
		}

		if p, ok := byID[d.PositionID]; ok {
			p.Decisions = append(p.Decisions, d)
		}
	}
	return rows.Err()
}

func (s *sqliteStorage) SaveCashBalance(cash decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO portfolio (id, cash_balance, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET cash_balance = excluded.cash_balance, updated_at = excluded.updated_at`,
		cash.String(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save cash balance: %w", err)
	}
	return nil
}

func (s *sqliteStorage) LoadCashBalance() (decimal.Decimal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cash string
	err := s.db.QueryRow(`SELECT cash_balance FROM portfolio WHERE id = 1`).Scan(&cash)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to load cash balance: %w", err)
	}
	d, err := decimal.NewFromString(cash)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to parse cash balance %q: %w", cash, err)
	}
	return d, true, nil
}

func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

func nullDecimalValue(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nullTimeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func scanNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
