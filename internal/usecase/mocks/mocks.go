package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

// MockTransactionRepository is a mock implementation of TransactionRepository.
type MockTransactionRepository struct {
	mu           sync.RWMutex
	transactions []domain.Transaction

	ListByRangeFunc func(ctx context.Context, start, end domain.Date, psp string) ([]domain.Transaction, error)
}

func NewMockTransactionRepository(txs ...domain.Transaction) *MockTransactionRepository {
	return &MockTransactionRepository{transactions: txs}
}

func (m *MockTransactionRepository) ListByRange(ctx context.Context, start, end domain.Date, psp string) ([]domain.Transaction, error) {
	if m.ListByRangeFunc != nil {
		return m.ListByRangeFunc(ctx, start, end, psp)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Transaction
	for _, tx := range m.transactions {
		if tx.Date.Before(start) || tx.Date.After(end) {
			continue
		}
		if psp != "" && !strings.EqualFold(tx.PSP, psp) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// MockPSPRepository is a mock implementation of PSPRepository.
type MockPSPRepository struct {
	psps []*domain.PSP

	ListFunc func(ctx context.Context) ([]*domain.PSP, error)
}

// NewMockPSPRepository registers active PSPs by name.
func NewMockPSPRepository(names ...string) *MockPSPRepository {
	m := &MockPSPRepository{}
	for _, n := range names {
		m.psps = append(m.psps, &domain.PSP{Name: n, Currency: "TRY", Active: true})
	}
	return m
}

func (m *MockPSPRepository) List(ctx context.Context) ([]*domain.PSP, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return m.psps, nil
}

// MockOverrideRepository is an in-memory OverrideRepository.
type MockOverrideRepository struct {
	mu        sync.RWMutex
	overrides map[domain.OverrideKey]*domain.Override

	GetFunc          func(ctx context.Context, key domain.OverrideKey) (*domain.Override, error)
	GetForUpdateFunc func(ctx context.Context, tx usecase.Transaction, key domain.OverrideKey) (*domain.Override, error)
	UpsertFunc       func(ctx context.Context, tx usecase.Transaction, override *domain.Override) error
	ListByRangeFunc  func(ctx context.Context, start, end domain.Date) ([]*domain.Override, error)
}

func NewMockOverrideRepository() *MockOverrideRepository {
	return &MockOverrideRepository{
		overrides: make(map[domain.OverrideKey]*domain.Override),
	}
}

func (m *MockOverrideRepository) Get(ctx context.Context, key domain.OverrideKey) (*domain.Override, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.overrides[key]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, domain.ErrOverrideNotFound
}

func (m *MockOverrideRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, key domain.OverrideKey) (*domain.Override, error) {
	if m.GetForUpdateFunc != nil {
		return m.GetForUpdateFunc(ctx, tx, key)
	}
	return m.Get(ctx, key)
}

func (m *MockOverrideRepository) Upsert(ctx context.Context, tx usecase.Transaction, override *domain.Override) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx, override)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.overrides[override.Key()]; ok {
		override.CreatedAt = existing.CreatedAt
	}
	cp := *override
	m.overrides[override.Key()] = &cp
	return nil
}

func (m *MockOverrideRepository) ListByRange(ctx context.Context, start, end domain.Date) ([]*domain.Override, error) {
	if m.ListByRangeFunc != nil {
		return m.ListByRangeFunc(ctx, start, end)
	}
	return m.Range(start, end), nil
}

// Range returns copies of the stored overrides in [start, end] without going
// through ListByRangeFunc.
func (m *MockOverrideRepository) Range(start, end domain.Date) []*domain.Override {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Override
	for _, o := range m.overrides {
		if o.Date.Before(start) || o.Date.After(end) {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out
}

// Put seeds an override.
func (m *MockOverrideRepository) Put(o *domain.Override) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[o.Key()] = o
}

// MockAuditRepository is an in-memory AuditRepository ordered newest first.
type MockAuditRepository struct {
	mu      sync.RWMutex
	entries []*domain.AuditEntry

	CreateTxFunc  func(ctx context.Context, tx usecase.Transaction, entry *domain.AuditEntry) error
	ListAfterFunc func(ctx context.Context, filter domain.AuditFilter, after *domain.AuditCursor, limit int) ([]*domain.AuditEntry, error)
}

func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

func (m *MockAuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, entry *domain.AuditEntry) error {
	if m.CreateTxFunc != nil {
		return m.CreateTxFunc(ctx, tx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns every stored entry in insertion order.
func (m *MockAuditRepository) Entries() []*domain.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.AuditEntry(nil), m.entries...)
}

func (m *MockAuditRepository) matching(filter domain.AuditFilter) []*domain.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.AuditEntry
	for _, e := range m.entries {
		if filter.StartDate != nil && e.Date.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && e.Date.After(*filter.EndDate) {
			continue
		}
		if filter.PSP != "" && !strings.Contains(strings.ToLower(e.PSP), strings.ToLower(filter.PSP)) {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *MockAuditRepository) List(ctx context.Context, filter domain.AuditFilter, limit, offset int) ([]*domain.AuditEntry, error) {
	all := m.matching(filter)
	if offset >= len(all) {
		return []*domain.AuditEntry{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MockAuditRepository) Count(ctx context.Context, filter domain.AuditFilter) (int64, error) {
	return int64(len(m.matching(filter))), nil
}

func (m *MockAuditRepository) ListAfter(ctx context.Context, filter domain.AuditFilter, after *domain.AuditCursor, limit int) ([]*domain.AuditEntry, error) {
	if m.ListAfterFunc != nil {
		return m.ListAfterFunc(ctx, filter, after, limit)
	}
	var out []*domain.AuditEntry
	for _, e := range m.matching(filter) {
		if after != nil {
			if e.UpdatedAt.After(after.UpdatedAt) {
				continue
			}
			if e.UpdatedAt.Equal(after.UpdatedAt) && e.ID >= after.ID {
				continue
			}
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// MockOutboxRepository is a mock implementation of OutboxRepository.
type MockOutboxRepository struct {
	mu     sync.Mutex
	events []*domain.OutboxEvent

	CreateFunc func(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockOutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.OutboxEvent
	for _, e := range m.events {
		if !e.Published {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			e.Published = true
			e.PublishedAt = &publishedAt
		}
	}
	return nil
}

func (m *MockOutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	for _, e := range m.events {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return nil
}

// Events returns every created event.
func (m *MockOutboxRepository) Events() []*domain.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.OutboxEvent(nil), m.events...)
}

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return &MockTransaction{}, nil
}

// MockTransaction is a mock implementation of Transaction.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	return nil
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	return nil
}

// MockIDGenerator is a mock implementation of IDGenerator.
type MockIDGenerator struct {
	GenerateFunc func() string
	counter      int
	mu           sync.Mutex
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("mock-id-%04d", m.counter)
}

// MockCache is an in-memory Cache. Missing keys return (nil, nil).
type MockCache struct {
	mu          sync.RWMutex
	data        map[string][]byte
	generations map[string]int64

	GetFunc        func(ctx context.Context, key string) ([]byte, error)
	InvalidateFunc func(ctx context.Context, key string) error
}

func NewMockCache() *MockCache {
	return &MockCache{data: make(map[string][]byte), generations: make(map[string]int64)}
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key], nil
}

func (m *MockCache) Generation(ctx context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generations[key], nil
}

func (m *MockCache) SetIfGeneration(ctx context.Context, key string, value []byte, ttl time.Duration, gen int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[key] != gen {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *MockCache) Invalidate(ctx context.Context, key string) error {
	if m.InvalidateFunc != nil {
		return m.InvalidateFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[key]++
	delete(m.data, key)
	return nil
}

// Has reports whether key is cached.
func (m *MockCache) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok
}

// MockRetrier runs the operation up to Attempts times while it fails.
type MockRetrier struct {
	Attempts int
	calls    int
}

func (m *MockRetrier) Retry(ctx context.Context, op func() error) error {
	attempts := m.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		m.calls++
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}

// Calls returns how many times the operation ran.
func (m *MockRetrier) Calls() int { return m.calls }
