package canon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"portfolio_metrics/pkg/models"
)

var ErrMappingNotFound = errors.New("mapping not found")

// MappingStore persists company-specific label mappings. Labels are stored
// in their Normalize form; there is at most one mapping per (company, label).
type MappingStore interface {
	// Find returns the mapping for a label, or ErrMappingNotFound.
	Find(ctx context.Context, company, label string) (models.MetricMapping, error)
	// Save inserts or replaces the mapping for (company, label). A missing ID is assigned.
	Save(ctx context.Context, m models.MetricMapping) (models.MetricMapping, error)
	// Pending lists a company's mappings awaiting review, oldest first.
	Pending(ctx context.Context, company string) ([]models.MetricMapping, error)
	// Review approves or rejects a mapping. metricID, when set, replaces the suggestion.
	Review(ctx context.Context, id string, status models.MappingStatus, metricID string) (models.MetricMapping, error)
}

// MemoryMappings is an in-process MappingStore.
type MemoryMappings struct {
	mu      sync.RWMutex
	byID    map[string]models.MetricMapping
	byLabel map[string]string // company|label -> id
	now     func() time.Time
}

var _ MappingStore = (*MemoryMappings)(nil)

func NewMemoryMappings() *MemoryMappings {
	return &MemoryMappings{
		byID:    make(map[string]models.MetricMapping),
		byLabel: make(map[string]string),
		now:     time.Now,
	}
}

func labelKey(company, label string) string { return company + "|" + label }

func (s *MemoryMappings) Find(ctx context.Context, company, label string) (models.MetricMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byLabel[labelKey(company, label)]
	if !ok {
		return models.MetricMapping{}, ErrMappingNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryMappings) Save(ctx context.Context, m models.MetricMapping) (models.MetricMapping, error) {
	if m.Company == "" || m.RawLabel == "" {
		return models.MetricMapping{}, fmt.Errorf("mapping needs company and label")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := labelKey(m.Company, m.RawLabel)
	if existing, ok := s.byLabel[key]; ok && m.ID == "" {
		m.ID = existing
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	s.byID[m.ID] = m
	s.byLabel[key] = m.ID
	return m, nil
}

func (s *MemoryMappings) Pending(ctx context.Context, company string) ([]models.MetricMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MetricMapping
	for _, m := range s.byID {
		if m.Company == company && m.Status == models.MappingPending {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RawLabel < out[j].RawLabel
	})
	return out, nil
}

func (s *MemoryMappings) Review(ctx context.Context, id string, status models.MappingStatus, metricID string) (models.MetricMapping, error) {
	if metricID != "" && !IsCanonical(metricID) {
		return models.MetricMapping{}, fmt.Errorf("%w: %q", ErrUnknownMetric, metricID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return models.MetricMapping{}, fmt.Errorf("%w: %s", ErrMappingNotFound, id)
	}
	m.Status = status
	if metricID != "" {
		m.MetricID = metricID
	}
	s.byID[id] = m
	return m, nil
}

// All returns every mapping ordered by company, then label.
func (s *MemoryMappings) All() []models.MetricMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MetricMapping, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Company != out[j].Company {
			return out[i].Company < out[j].Company
		}
		return out[i].RawLabel < out[j].RawLabel
	})
	return out
}
