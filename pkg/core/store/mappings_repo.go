package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"portfolio_metrics/pkg/core/canon"
	"portfolio_metrics/pkg/models"
)

// PostgresMappings stores reviewed and pending label mappings in metric_mappings.
type PostgresMappings struct {
	pool *pgxpool.Pool
}

var _ canon.MappingStore = (*PostgresMappings)(nil)

// NewPostgresMappings creates a new mappings repository
func NewPostgresMappings(pool *pgxpool.Pool) *PostgresMappings {
	return &PostgresMappings{pool: pool}
}

const mappingColumns = `id::text, company, raw_label, metric_id, confidence, status, created_at`

func scanMapping(row rowScanner) (models.MetricMapping, error) {
	var (
		m      models.MetricMapping
		status string
	)
	if err := row.Scan(&m.ID, &m.Company, &m.RawLabel, &m.MetricID, &m.Confidence, &status, &m.CreatedAt); err != nil {
		return m, err
	}
	m.Status = models.MappingStatus(status)
	return m, nil
}

func (r *PostgresMappings) Find(ctx context.Context, company, label string) (models.MetricMapping, error) {
	if r.pool == nil {
		return models.MetricMapping{}, fmt.Errorf("database pool not configured")
	}
	m, err := scanMapping(r.pool.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM metric_mappings WHERE company = $1 AND raw_label = $2`,
		company, label))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MetricMapping{}, canon.ErrMappingNotFound
	}
	if err != nil {
		return models.MetricMapping{}, fmt.Errorf("failed to find mapping: %w", err)
	}
	return m, nil
}

func (r *PostgresMappings) Save(ctx context.Context, m models.MetricMapping) (models.MetricMapping, error) {
	if r.pool == nil {
		return models.MetricMapping{}, fmt.Errorf("database pool not configured")
	}
	if m.Company == "" || m.RawLabel == "" {
		return models.MetricMapping{}, fmt.Errorf("mapping needs company and label")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	// An existing row keeps its id and created_at.
	query := `
		INSERT INTO metric_mappings (id, company, raw_label, metric_id, confidence, status, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (company, raw_label)
		DO UPDATE SET
			metric_id = EXCLUDED.metric_id,
			confidence = EXCLUDED.confidence,
			status = EXCLUDED.status
		RETURNING ` + mappingColumns

	saved, err := scanMapping(r.pool.QueryRow(ctx, query,
		m.ID, m.Company, m.RawLabel, m.MetricID, m.Confidence, string(m.Status), m.CreatedAt))
	if err != nil {
		return models.MetricMapping{}, fmt.Errorf("failed to save mapping: %w", err)
	}
	return saved, nil
}

func (r *PostgresMappings) Pending(ctx context.Context, company string) ([]models.MetricMapping, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("database pool not configured")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+mappingColumns+`
		FROM metric_mappings
		WHERE company = $1 AND status = $2
		ORDER BY created_at, raw_label`,
		company, string(models.MappingPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending mappings: %w", err)
	}
	defer rows.Close()

	var out []models.MetricMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresMappings) Review(ctx context.Context, id string, status models.MappingStatus, metricID string) (models.MetricMapping, error) {
	if r.pool == nil {
		return models.MetricMapping{}, fmt.Errorf("database pool not configured")
	}
	if metricID != "" && !canon.IsCanonical(metricID) {
		return models.MetricMapping{}, fmt.Errorf("%w: %q", canon.ErrUnknownMetric, metricID)
	}
	if _, err := uuid.Parse(id); err != nil {
		return models.MetricMapping{}, fmt.Errorf("%w: %s", canon.ErrMappingNotFound, id)
	}

	m, err := scanMapping(r.pool.QueryRow(ctx, `
		UPDATE metric_mappings
		SET status = $2, metric_id = COALESCE(NULLIF($3, ''), metric_id)
		WHERE id = $1::uuid
		RETURNING `+mappingColumns,
		id, string(status), metricID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MetricMapping{}, fmt.Errorf("%w: %s", canon.ErrMappingNotFound, id)
	}
	if err != nil {
		return models.MetricMapping{}, fmt.Errorf("failed to review mapping: %w", err)
	}
	return m, nil
}
