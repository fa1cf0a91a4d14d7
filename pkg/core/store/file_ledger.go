package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"portfolio_metrics/pkg/models"
)

// FileLedger stores one JSON document per company under Dir. Writes go to
// a temp file that is renamed over the old document.
type FileLedger struct {
	Dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Ledger = (*FileLedger)(nil)

// ledgerFile is the on-disk document. Facts are sorted by key.
type ledgerFile struct {
	Company   string              `json:"company"`
	UpdatedAt time.Time           `json:"updated_at"`
	Facts     []models.FactRecord `json:"facts"`
}

// NewFileLedger creates dir when missing.
func NewFileLedger(dir string) (*FileLedger, error) {
	if dir == "" {
		dir = filepath.Join(".cache", "ledger")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &FileLedger{Dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// companyLock serializes whole-document rewrites; it also covers every key
// of the company.
func (l *FileLedger) companyLock(company string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[company]
	if !ok {
		m = &sync.Mutex{}
		l.locks[company] = m
	}
	return m
}

func (l *FileLedger) Load(ctx context.Context, company string) (map[models.FactKey]models.FactRecord, error) {
	m := l.companyLock(company)
	m.Lock()
	defer m.Unlock()
	return l.read(company)
}

func (l *FileLedger) Apply(ctx context.Context, company string, keys []models.FactKey, fn ApplyFunc) error {
	m := l.companyLock(company)
	m.Lock()
	defer m.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	all, err := l.read(company)
	if err != nil {
		return err
	}
	keys = sortedKeys(keys)
	current := make(map[models.FactKey]models.FactRecord, len(keys))
	for _, k := range keys {
		if rec, ok := all[k]; ok {
			current[k] = rec.Clone()
		}
	}

	writes, err := fn(current)
	if err != nil {
		return err
	}
	if err := checkWrites(company, keys, writes); err != nil {
		return fmt.Errorf("apply %s: %w", company, err)
	}
	if len(writes) == 0 {
		return nil
	}
	for k, rec := range writes {
		rec.Company = company
		all[k] = rec
	}
	return l.write(company, all)
}

func (l *FileLedger) History(ctx context.Context, company string, key models.FactKey) ([]models.ChangeLogEntry, error) {
	all, err := l.Load(ctx, company)
	if err != nil {
		return nil, err
	}
	rec, ok := all[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, company, key)
	}
	return rec.ChangeLog, nil
}

// Internal file helpers

func (l *FileLedger) path(company string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(company) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return filepath.Join(l.Dir, b.String()+".json")
}

func (l *FileLedger) read(company string) (map[models.FactKey]models.FactRecord, error) {
	out := make(map[models.FactKey]models.FactRecord)
	data, err := os.ReadFile(l.path(company))
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", company, err)
	}

	var doc ledgerFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", company, err)
	}
	if doc.Company != "" && doc.Company != company {
		return nil, fmt.Errorf("ledger file %s belongs to %q", l.path(company), doc.Company)
	}
	for _, rec := range doc.Facts {
		out[rec.Key()] = rec
	}
	return out, nil
}

func (l *FileLedger) write(company string, all map[models.FactKey]models.FactRecord) error {
	doc := ledgerFile{Company: company, UpdatedAt: time.Now().UTC()}
	for _, rec := range all {
		doc.Facts = append(doc.Facts, rec)
	}
	sort.Slice(doc.Facts, func(i, j int) bool {
		return doc.Facts[i].Key().String() < doc.Facts[j].Key().String()
	})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger %s: %w", company, err)
	}

	tmp, err := os.CreateTemp(l.Dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("write ledger %s: %w", company, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger %s: %w", company, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write ledger %s: %w", company, err)
	}
	if err := os.Rename(tmp.Name(), l.path(company)); err != nil {
		return fmt.Errorf("replace ledger %s: %w", company, err)
	}
	return nil
}
