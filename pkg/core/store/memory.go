package store

import (
	"context"
	"fmt"
	"sync"

	"portfolio_metrics/pkg/models"
)

// MemoryLedger keeps records in process memory. Writers of different keys
// proceed in parallel; writers of the same key are serialized.
type MemoryLedger struct {
	mu    sync.RWMutex
	facts map[string]map[models.FactKey]models.FactRecord

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		facts: make(map[string]map[models.FactKey]models.FactRecord),
		locks: make(map[string]*sync.Mutex),
	}
}

func (l *MemoryLedger) keyLock(company string, key models.FactKey) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	id := company + "|" + key.String()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

func (l *MemoryLedger) Load(ctx context.Context, company string) (map[models.FactKey]models.FactRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneRecords(l.facts[company]), nil
}

func (l *MemoryLedger) Apply(ctx context.Context, company string, keys []models.FactKey, fn ApplyFunc) error {
	keys = sortedKeys(keys)
	for _, k := range keys {
		m := l.keyLock(company, k)
		m.Lock()
		defer m.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	current := make(map[models.FactKey]models.FactRecord, len(keys))
	l.mu.RLock()
	for _, k := range keys {
		if rec, ok := l.facts[company][k]; ok {
			current[k] = rec.Clone()
		}
	}
	l.mu.RUnlock()

	writes, err := fn(current)
	if err != nil {
		return err
	}
	if err := checkWrites(company, keys, writes); err != nil {
		return fmt.Errorf("apply %s: %w", company, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.facts[company] == nil {
		l.facts[company] = make(map[models.FactKey]models.FactRecord)
	}
	for k, rec := range writes {
		rec.Company = company
		l.facts[company][k] = rec.Clone()
	}
	return nil
}

func (l *MemoryLedger) History(ctx context.Context, company string, key models.FactKey) ([]models.ChangeLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.facts[company][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, company, key)
	}
	return rec.Clone().ChangeLog, nil
}
