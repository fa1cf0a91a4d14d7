package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"portfolio_metrics/pkg/core/canon"
	"portfolio_metrics/pkg/models"
)

// FileMappings keeps every company's label mappings in one JSON file next
// to the file ledger. Each call loads the file, runs against an in-memory
// store and writes the file back when it changed.
type FileMappings struct {
	path string
	mu   sync.Mutex
}

var _ canon.MappingStore = (*FileMappings)(nil)

func NewFileMappings(dir string) (*FileMappings, error) {
	if dir == "" {
		dir = filepath.Join(".cache", "ledger")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mappings dir: %w", err)
	}
	return &FileMappings{path: filepath.Join(dir, "mappings.json")}, nil
}

func (f *FileMappings) Find(ctx context.Context, company, label string) (m models.MetricMapping, err error) {
	err = f.with(false, func(mem *canon.MemoryMappings) error {
		m, err = mem.Find(ctx, company, label)
		return err
	})
	return m, err
}

func (f *FileMappings) Save(ctx context.Context, in models.MetricMapping) (m models.MetricMapping, err error) {
	err = f.with(true, func(mem *canon.MemoryMappings) error {
		m, err = mem.Save(ctx, in)
		return err
	})
	return m, err
}

func (f *FileMappings) Pending(ctx context.Context, company string) (out []models.MetricMapping, err error) {
	err = f.with(false, func(mem *canon.MemoryMappings) error {
		out, err = mem.Pending(ctx, company)
		return err
	})
	return out, err
}

func (f *FileMappings) Review(ctx context.Context, id string, status models.MappingStatus, metricID string) (m models.MetricMapping, err error) {
	err = f.with(true, func(mem *canon.MemoryMappings) error {
		m, err = mem.Review(ctx, id, status, metricID)
		return err
	})
	return m, err
}

func (f *FileMappings) with(write bool, fn func(mem *canon.MemoryMappings) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	mem := canon.NewMemoryMappings()
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read mappings: %w", err)
	default:
		var stored []models.MetricMapping
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("decode mappings: %w", err)
		}
		for _, m := range stored {
			if _, err := mem.Save(context.Background(), m); err != nil {
				return fmt.Errorf("load mapping %s: %w", m.ID, err)
			}
		}
	}

	if err := fn(mem); err != nil || !write {
		return err
	}

	out, err := json.MarshalIndent(mem.All(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode mappings: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".mappings-*.tmp")
	if err != nil {
		return fmt.Errorf("write mappings: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("write mappings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write mappings: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}
