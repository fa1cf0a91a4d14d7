package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"portfolio_metrics/pkg/models"
)

// PostgresLedger keeps one fact_records row per (company, key). Apply runs
// in a transaction holding a transaction-scoped advisory lock per key.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

var _ Ledger = (*PostgresLedger)(nil)

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

const factColumns = `metric_id, period_date::text, scenario, amount, source_file,
	document_type, priority, explanation, change_log, updated_at`

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(company string, row rowScanner) (models.FactRecord, error) {
	rec := models.FactRecord{Company: company}
	var (
		scenario, docType string
		explJSON, logJSON []byte
	)
	if err := row.Scan(&rec.MetricID, &rec.PeriodDate, &scenario, &rec.Amount, &rec.SourceFile,
		&docType, &rec.Priority, &explJSON, &logJSON, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	rec.Scenario = models.Scenario(scenario)
	rec.DocumentType = models.DocumentType(docType)
	if len(explJSON) > 0 && string(explJSON) != "null" {
		var expl models.Explanation
		if err := json.Unmarshal(explJSON, &expl); err != nil {
			return rec, fmt.Errorf("failed to unmarshal explanation: %w", err)
		}
		rec.Explanation = &expl
	}
	if err := json.Unmarshal(logJSON, &rec.ChangeLog); err != nil {
		return rec, fmt.Errorf("failed to unmarshal change log: %w", err)
	}
	return rec, nil
}

func (l *PostgresLedger) Load(ctx context.Context, company string) (map[models.FactKey]models.FactRecord, error) {
	if l.pool == nil {
		return nil, fmt.Errorf("database pool not configured")
	}
	rows, err := l.pool.Query(ctx, `SELECT `+factColumns+` FROM fact_records WHERE company = $1`, company)
	if err != nil {
		return nil, fmt.Errorf("failed to load facts: %w", err)
	}
	defer rows.Close()

	out := make(map[models.FactKey]models.FactRecord)
	for rows.Next() {
		rec, err := scanFact(company, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		out[rec.Key()] = rec
	}
	return out, rows.Err()
}

func (l *PostgresLedger) Apply(ctx context.Context, company string, keys []models.FactKey, fn ApplyFunc) error {
	if l.pool == nil {
		return fmt.Errorf("database pool not configured")
	}
	keys = sortedKeys(keys)

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	metrics := make([]string, len(keys))
	periods := make([]string, len(keys))
	scenarios := make([]string, len(keys))
	for i, k := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, company+"|"+k.String()); err != nil {
			return fmt.Errorf("failed to lock %s: %w", k, err)
		}
		metrics[i], periods[i], scenarios[i] = k.MetricID, k.Period, string(k.Scenario)
	}

	rows, err := tx.Query(ctx, `
		SELECT `+factColumns+`
		FROM fact_records
		WHERE company = $1
		  AND (metric_id, period_date::text, scenario) IN (
			SELECT * FROM unnest($2::text[], $3::text[], $4::text[])
		  )`, company, metrics, periods, scenarios)
	if err != nil {
		return fmt.Errorf("failed to read locked facts: %w", err)
	}
	current := make(map[models.FactKey]models.FactRecord, len(keys))
	for rows.Next() {
		rec, err := scanFact(company, rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan fact: %w", err)
		}
		current[rec.Key()] = rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read locked facts: %w", err)
	}

	writes, err := fn(current)
	if err != nil {
		return err
	}
	if err := checkWrites(company, keys, writes); err != nil {
		return fmt.Errorf("apply %s: %w", company, err)
	}

	for _, k := range sortedKeys(keysOf(writes)) {
		if err := upsertFact(ctx, tx, company, writes[k]); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit facts: %w", err)
	}
	return nil
}

func upsertFact(ctx context.Context, tx pgx.Tx, company string, rec models.FactRecord) error {
	var explJSON []byte
	if rec.Explanation != nil {
		var err error
		if explJSON, err = json.Marshal(rec.Explanation); err != nil {
			return fmt.Errorf("failed to marshal explanation: %w", err)
		}
	}
	changeLog := rec.ChangeLog
	if changeLog == nil {
		changeLog = []models.ChangeLogEntry{}
	}
	logJSON, err := json.Marshal(changeLog)
	if err != nil {
		return fmt.Errorf("failed to marshal change log: %w", err)
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO fact_records (
			company, metric_id, period_date, scenario, amount, source_file,
			document_type, priority, explanation, change_log, updated_at
		) VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (company, metric_id, period_date, scenario)
		DO UPDATE SET
			amount = EXCLUDED.amount,
			source_file = EXCLUDED.source_file,
			document_type = EXCLUDED.document_type,
			priority = EXCLUDED.priority,
			explanation = EXCLUDED.explanation,
			change_log = EXCLUDED.change_log,
			updated_at = EXCLUDED.updated_at`,
		company, rec.MetricID, rec.PeriodDate, string(rec.Scenario), rec.Amount, rec.SourceFile,
		string(rec.DocumentType), rec.Priority, explJSON, logJSON, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save fact %s: %w", rec.Key(), err)
	}
	return nil
}

func (l *PostgresLedger) History(ctx context.Context, company string, key models.FactKey) ([]models.ChangeLogEntry, error) {
	if l.pool == nil {
		return nil, fmt.Errorf("database pool not configured")
	}
	var logJSON []byte
	err := l.pool.QueryRow(ctx, `
		SELECT change_log FROM fact_records
		WHERE company = $1 AND metric_id = $2 AND period_date = $3::date AND scenario = $4`,
		company, key.MetricID, key.Period, string(key.Scenario),
	).Scan(&logJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, company, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	var entries []models.ChangeLogEntry
	if err := json.Unmarshal(logJSON, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal change log: %w", err)
	}
	return entries, nil
}

func keysOf(m map[models.FactKey]models.FactRecord) []models.FactKey {
	out := make([]models.FactKey, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
