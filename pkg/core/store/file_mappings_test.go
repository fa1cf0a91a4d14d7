package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_metrics/pkg/core/canon"
	"portfolio_metrics/pkg/models"
)

func TestFileMappings_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileMappings(dir)
	require.NoError(t, err)
	_, err = first.Find(ctx, "acme", "net_new_logos")
	assert.ErrorIs(t, err, canon.ErrMappingNotFound)

	saved, err := first.Save(ctx, models.MetricMapping{
		Company: "acme", RawLabel: "net_new_logos", MetricID: "new_customers",
		Confidence: 0.6, Status: models.MappingPending,
	})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	second, err := NewFileMappings(dir)
	require.NoError(t, err)
	pending, err := second.Pending(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, saved.ID, pending[0].ID)
	assert.Equal(t, saved.CreatedAt.Unix(), pending[0].CreatedAt.Unix())

	reviewed, err := second.Review(ctx, saved.ID, models.MappingApproved, "customers")
	require.NoError(t, err)
	assert.Equal(t, "customers", reviewed.MetricID)

	found, err := first.Find(ctx, "acme", "net_new_logos")
	require.NoError(t, err)
	assert.Equal(t, models.MappingApproved, found.Status)
	assert.Equal(t, "customers", found.MetricID)

	pending, err = first.Pending(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFileMappings_ReviewUnknown(t *testing.T) {
	m, err := NewFileMappings(t.TempDir())
	require.NoError(t, err)

	_, err = m.Review(context.Background(), "missing", models.MappingApproved, "")
	assert.ErrorIs(t, err, canon.ErrMappingNotFound)

	_, err = m.Review(context.Background(), "missing", models.MappingApproved, "gmv")
	assert.ErrorIs(t, err, canon.ErrUnknownMetric)
}

func TestFileMappings_WithCanonicalizer(t *testing.T) {
	ctx := context.Background()
	m, err := NewFileMappings(t.TempDir())
	require.NoError(t, err)

	_, err = m.Save(ctx, models.MetricMapping{
		Company: "acme", RawLabel: "net_new_logos", MetricID: "new_customers",
		Confidence: 0.95, Status: models.MappingApproved,
	})
	require.NoError(t, err)

	c := canon.New(m, nil, 0.9, nil)
	res, err := c.Resolve(ctx, "acme", nil, "Net New Logos")
	require.NoError(t, err)
	assert.Equal(t, "new_customers", res.MetricID)
	assert.Equal(t, canon.SourceApproved, res.Source)
}
