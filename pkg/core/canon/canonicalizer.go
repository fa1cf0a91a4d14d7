package canon

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"portfolio_metrics/pkg/core/docservice"
	"portfolio_metrics/pkg/models"
)

var ErrUnknownMetric = errors.New("unknown canonical metric")

// Source tells which rule produced a resolution.
type Source string

const (
	SourceStatic     Source = "static"
	SourceGuide      Source = "guide"
	SourceApproved   Source = "approved"
	SourceClassified Source = "classified"
	SourcePending    Source = "pending"
	SourceUnresolved Source = "unresolved"
)

// Resolution is the outcome for one raw label. MetricID is empty unless the
// label resolved; Suggested carries a pending suggestion.
type Resolution struct {
	MetricID   string
	Suggested  string
	Source     Source
	Confidence float64
	MappingID  string
}

func (r Resolution) Resolved() bool { return r.MetricID != "" }

// Unresolved groups the items of one label the canonicalizer could not map.
type Unresolved struct {
	Label      string  `json:"label"`
	Reason     Source  `json:"reason"`
	Suggested  string  `json:"suggested,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	MappingID  string  `json:"mapping_id,omitempty"`
	Items      int     `json:"items"`
}

// Summary counts distinct labels by how they resolved.
type Summary struct {
	Static     int      `json:"static"`
	Approved   int      `json:"approved"`
	Classified int      `json:"classified"`
	Pending    int      `json:"pending"`
	Unresolved int      `json:"unresolved"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Canonicalizer resolves labels: canonical ids pass through, then the static
// synonym table, the guide synonyms, approved company mappings and finally a
// classification call. Classifications below AutoApproveThreshold are stored
// as pending and not applied.
type Canonicalizer struct {
	Store                MappingStore
	Service              docservice.Service
	AutoApproveThreshold float64
	Logger               *zap.Logger
}

func New(store MappingStore, svc docservice.Service, threshold float64, logger *zap.Logger) *Canonicalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Canonicalizer{Store: store, Service: svc, AutoApproveThreshold: threshold, Logger: logger}
}

// Resolve maps one raw label for company. guide may be nil. An error is
// returned only when the mapping store fails; classification problems
// leave the label unresolved.
func (c *Canonicalizer) Resolve(ctx context.Context, company string, guide *models.ExtractionGuide, raw string) (Resolution, error) {
	if id, ok := Static(raw); ok {
		return Resolution{MetricID: id, Source: SourceStatic, Confidence: 1}, nil
	}
	key := Normalize(raw)
	if key == "" {
		return Resolution{Source: SourceUnresolved}, nil
	}
	if id, ok := guideSynonym(guide, key); ok {
		return Resolution{MetricID: id, Source: SourceGuide, Confidence: 1}, nil
	}

	if c.Store != nil {
		m, err := c.Store.Find(ctx, company, key)
		switch {
		case err == nil:
			switch m.Status {
			case models.MappingApproved:
				return Resolution{MetricID: m.MetricID, Source: SourceApproved, Confidence: m.Confidence, MappingID: m.ID}, nil
			case models.MappingPending:
				return Resolution{Suggested: m.MetricID, Source: SourcePending, Confidence: m.Confidence, MappingID: m.ID}, nil
			default:
				return Resolution{Source: SourceUnresolved, MappingID: m.ID}, nil
			}
		case !errors.Is(err, ErrMappingNotFound):
			return Resolution{Source: SourceUnresolved}, fmt.Errorf("find mapping %q: %w", key, err)
		}
	}

	if c.Service == nil {
		return Resolution{Source: SourceUnresolved}, nil
	}
	req := docservice.ClassifyRequest{Label: raw, Vocabulary: Vocabulary()}
	if guide != nil {
		req.BusinessModel = guide.BusinessModel
	}
	cls, err := c.Service.Classify(ctx, req)
	if err != nil {
		c.logger().Warn("classification failed", zap.String("label", raw), zap.Error(err))
		return Resolution{Source: SourceUnresolved}, nil
	}
	if !IsCanonical(cls.MetricID) {
		return Resolution{Source: SourceUnresolved}, nil
	}

	approved := cls.Confidence >= c.AutoApproveThreshold
	mapping := models.MetricMapping{
		Company:    company,
		RawLabel:   key,
		MetricID:   cls.MetricID,
		Confidence: cls.Confidence,
		Status:     models.MappingPending,
	}
	if approved {
		mapping.Status = models.MappingApproved
	}
	if c.Store != nil {
		saved, err := c.Store.Save(ctx, mapping)
		if err != nil {
			return Resolution{Source: SourceUnresolved}, fmt.Errorf("save mapping %q: %w", key, err)
		}
		mapping = saved
	}
	if !approved {
		return Resolution{Suggested: cls.MetricID, Source: SourcePending, Confidence: cls.Confidence, MappingID: mapping.ID}, nil
	}
	return Resolution{MetricID: cls.MetricID, Source: SourceClassified, Confidence: cls.Confidence, MappingID: mapping.ID}, nil
}

// CanonicalizeItems resolves every distinct item metric once. Resolved
// items carry the canonical id (the raw id is kept as the label); the rest
// are grouped per label in the unresolved list and left out of the output.
func (c *Canonicalizer) CanonicalizeItems(ctx context.Context, company string, guide *models.ExtractionGuide, items []models.LineItem) ([]models.LineItem, []Unresolved, Summary) {
	var sum Summary
	resolved := make(map[string]Resolution)
	unresolved := make(map[string]*Unresolved)

	out := make([]models.LineItem, 0, len(items))
	for _, it := range items {
		res, seen := resolved[it.MetricID]
		if !seen {
			var err error
			res, err = c.Resolve(ctx, company, guide, it.MetricID)
			if err != nil {
				sum.Warnings = append(sum.Warnings, err.Error())
			}
			resolved[it.MetricID] = res
			count(&sum, res)
		}

		if res.Resolved() {
			if res.MetricID != it.MetricID {
				it = it.WithMetric(res.MetricID)
			}
			out = append(out, it)
			continue
		}
		u, ok := unresolved[it.MetricID]
		if !ok {
			u = &Unresolved{
				Label:      it.MetricID,
				Reason:     res.Source,
				Suggested:  res.Suggested,
				Confidence: res.Confidence,
				MappingID:  res.MappingID,
			}
			unresolved[it.MetricID] = u
		}
		u.Items++
	}

	list := make([]Unresolved, 0, len(unresolved))
	for _, u := range unresolved {
		list = append(list, *u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Label < list[j].Label })

	if len(list) > 0 {
		c.logger().Info("labels left unresolved", zap.String("company", company), zap.Int("labels", len(list)))
	}
	return out, list, sum
}

func count(sum *Summary, res Resolution) {
	switch res.Source {
	case SourceStatic, SourceGuide:
		sum.Static++
	case SourceApproved:
		sum.Approved++
	case SourceClassified:
		sum.Classified++
	case SourcePending:
		sum.Pending++
	default:
		sum.Unresolved++
	}
}

func guideSynonym(guide *models.ExtractionGuide, key string) (string, bool) {
	if guide == nil {
		return "", false
	}
	ids := make([]string, 0, len(guide.Synonyms))
	for id := range guide.Synonyms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !IsCanonical(id) {
			continue
		}
		for _, l := range guide.Synonyms[id] {
			if Normalize(l) == key {
				return id, true
			}
		}
	}
	return "", false
}

func (c *Canonicalizer) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
