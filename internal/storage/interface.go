// Package storage persists portfolio state between runs. The ledger owns all
// in-memory state; storage is its durable record.
package storage

import (
	"github.com/shopspring/decimal"

	"paperledger/internal/models"
)

// Interface defines the persistence operations the ledger depends on.
// Implementations must be safe for concurrent use.
type Interface interface {
	// SavePosition inserts a new position with its decision history.
	SavePosition(p *models.Position) error

	// UpdatePosition rewrites an existing position's mutable fields.
	UpdatePosition(p *models.Position) error

	// AppendDecision durably records one decision for a position.
	AppendDecision(d *models.Decision) error

	// LoadPositions returns all persisted positions, decisions included,
	// in creation order.
	LoadPositions() ([]*models.Position, error)

	// SaveCashBalance records the current cash balance.
	SaveCashBalance(cash decimal.Decimal) error

	// LoadCashBalance returns the persisted cash balance. The second
	// return is false when no balance has ever been saved.
	LoadCashBalance() (decimal.Decimal, bool, error)

	// Close releases the underlying store.
	Close() error
}

// NewStorage opens the SQLite-backed store at path, creating the schema if
// needed.
func NewStorage(path string) (Interface, error) {
	return newSQLiteStorage(path)
}
