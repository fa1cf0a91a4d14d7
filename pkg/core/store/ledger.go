// Package store persists fact ledgers and metric mappings.
//
// Three ledger backends share one contract:
//   - MemoryLedger: process-local, for tests and one-shot CLI runs
//   - FileLedger: one JSON document per company on local disk
//   - PostgresLedger: fact_records table, serialized with advisory locks
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"portfolio_metrics/pkg/models"
)

var (
	ErrNotFound = errors.New("fact not found")
	// ErrForeignKey is returned when an apply function writes a key it did not lock.
	ErrForeignKey = errors.New("apply wrote a key outside its lock set")
)

// ApplyFunc receives the current records for the locked keys (absent keys
// are missing from the map) and returns the records to persist.
type ApplyFunc func(current map[models.FactKey]models.FactRecord) (map[models.FactKey]models.FactRecord, error)

// Ledger stores at most one current FactRecord per (company, key).
type Ledger interface {
	// Load returns every current record of a company.
	Load(ctx context.Context, company string) (map[models.FactKey]models.FactRecord, error)
	// Apply serializes on keys, hands their current records to fn and
	// persists what fn returns. Nothing is written when fn fails.
	Apply(ctx context.Context, company string, keys []models.FactKey, fn ApplyFunc) error
	// History returns the change log of one fact, oldest first.
	History(ctx context.Context, company string, key models.FactKey) ([]models.ChangeLogEntry, error)
}

// sortedKeys de-duplicates keys and orders them so that locks are always
// taken in the same order.
func sortedKeys(keys []models.FactKey) []models.FactKey {
	seen := make(map[models.FactKey]bool, len(keys))
	out := make([]models.FactKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// checkWrites rejects records outside the lock set and records whose
// identity disagrees with their map key.
func checkWrites(company string, keys []models.FactKey, writes map[models.FactKey]models.FactRecord) error {
	allowed := make(map[models.FactKey]bool, len(keys))
	for _, k := range keys {
		allowed[k] = true
	}
	for k, rec := range writes {
		if !allowed[k] {
			return fmt.Errorf("%w: %s", ErrForeignKey, k)
		}
		if rec.Key() != k {
			return fmt.Errorf("record %s stored under key %s", rec.Key(), k)
		}
		if rec.Company != "" && rec.Company != company {
			return fmt.Errorf("record for company %q written to %q", rec.Company, company)
		}
	}
	return nil
}

func cloneRecords(in map[models.FactKey]models.FactRecord) map[models.FactKey]models.FactRecord {
	out := make(map[models.FactKey]models.FactRecord, len(in))
	for k, rec := range in {
		out[k] = rec.Clone()
	}
	return out
}
