package storage

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"paperledger/internal/models"
)

// MockStorage is an in-memory Interface implementation for tests. It records
// everything it is handed and can be told to fail on demand.
type MockStorage struct {
	mu        sync.Mutex
	positions map[string]*models.Position
	order     []string
	decisions []models.Decision
	cash      decimal.Decimal
	cashSet   bool

	// FailNext, when set, makes the next write operation return an error.
	FailNext bool
	// FailNextCash, when set, makes only the next SaveCashBalance fail,
	// letting earlier writes in the same operation succeed.
	FailNextCash bool
}

var _ Interface = (*MockStorage)(nil)

// NewMockStorage returns an empty in-memory store.
func NewMockStorage() *MockStorage {
	return &MockStorage{positions: make(map[string]*models.Position)}
}

func (m *MockStorage) failIfArmed(op string) error {
	if m.FailNext {
		m.FailNext = false
		return fmt.Errorf("mock storage: %s failed", op)
	}
	return nil
}

func (m *MockStorage) SavePosition(p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failIfArmed("SavePosition"); err != nil {
		return err
	}
	if _, exists := m.positions[p.ID]; exists {
		return fmt.Errorf("position %s already saved", p.ID)
	}
	m.positions[p.ID] = p.Clone()
	m.order = append(m.order, p.ID)
	return nil
}

func (m *MockStorage) UpdatePosition(p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failIfArmed("UpdatePosition"); err != nil {
		return err
	}
	if _, exists := m.positions[p.ID]; !exists {
		return fmt.Errorf("position %s not found", p.ID)
	}
	m.positions[p.ID] = p.Clone()
	return nil
}

func (m *MockStorage) AppendDecision(d *models.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failIfArmed("AppendDecision"); err != nil {
		return err
	}
	m.decisions = append(m.decisions, *d)
	return nil
}

func (m *MockStorage) LoadPositions() ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Position, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.positions[id].Clone())
	}
	return out, nil
}

func (m *MockStorage) SaveCashBalance(cash decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failIfArmed("SaveCashBalance"); err != nil {
		return err
	}
	if m.FailNextCash {
		m.FailNextCash = false
		return fmt.Errorf("mock storage: SaveCashBalance failed")
	}
	m.cash = cash
	m.cashSet = true
	return nil
}

func (m *MockStorage) LoadCashBalance() (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cash, m.cashSet, nil
}

func (m *MockStorage) Close() error { return nil }

// DecisionCount reports how many decisions have been appended.
func (m *MockStorage) DecisionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.decisions)
}
