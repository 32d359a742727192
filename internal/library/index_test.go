package library

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/medialib/internal/models"
)

func newAsset(name string, captured time.Time, tags ...models.Tag) *models.MediaAsset {
	now := time.Now().UTC()
	return &models.MediaAsset{
		ID:         uuid.New(),
		Filename:   name,
		Kind:       models.MediaKindImage,
		CapturedAt: &captured,
		UploadedAt: now,
		Status:     models.AssetStatusReady,
		Tags:       tags,
		Analysis:   &models.MediaAnalysis{AnalyzedAt: now},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func tag(name string, category models.TagCategory, conf float64) models.Tag {
	return models.Tag{Name: name, Category: category, Confidence: conf, Source: models.TagSourceDerived}
}

func TestIndexUpsertAndGet(t *testing.T) {
	idx := NewIndex()
	a := newAsset("sunset.jpg", time.Now(), tag("sunset", models.TagCategoryStyle, 0.9))

	idx.Upsert(a)
	assert.Equal(t, 1, idx.Len())
	assert.Same(t, a, idx.Get(a.ID))
	assert.Nil(t, idx.Get(uuid.New()))
}

func TestIndexUpsertReplacesSecondaryEntries(t *testing.T) {
	idx := NewIndex()
	captured := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newAsset("a.jpg", captured, tag("beach", models.TagCategoryLocation, 0.8))
	idx.Upsert(a)

	// Replace with different tags: the old tag entry must vanish.
	b := newAsset("a.jpg", captured, tag("mountain", models.TagCategoryLocation, 0.8))
	b.ID = a.ID
	idx.Upsert(b)

	results, err := idx.Search(Query{Tags: []string{"beach"}})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(Query{Tags: []string{"mountain"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, a.ID, results[0].ID)
	assert.Equal(t, 1, idx.Len())
}

func TestIndexRemove(t *testing.T) {
	idx := NewIndex()
	a := newAsset("x.jpg", time.Now(), tag("city", models.TagCategoryLocation, 0.7))
	idx.Upsert(a)

	assert.True(t, idx.Remove(a.ID))
	assert.False(t, idx.Remove(a.ID))
	assert.Equal(t, 0, idx.Len())

	results, err := idx.Search(Query{Tags: []string{"city"}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexGroupings(t *testing.T) {
	idx := NewIndex()
	day := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		a := newAsset("group.jpg", day)
		a.Metadata.Location = &models.GeoPoint{City: "Lisbon"}
		idx.Upsert(a)
	}
	other := newAsset("other.jpg", day.AddDate(0, 0, 1))
	idx.Upsert(other)

	byDay := idx.AssetsByDay()
	assert.Len(t, byDay["2024-03-15"], 3)
	assert.Len(t, byDay["2024-03-16"], 1)

	byGeo := idx.AssetsByGeoBucket()
	assert.Len(t, byGeo["lisbon"], 3)
}

func TestDayKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 02:00 local on the 2nd is still the 1st in UTC.
	ts := time.Date(2024, 7, 2, 2, 0, 0, 0, loc)
	assert.Equal(t, "2024-07-01", DayKey(ts))
}

func TestGeoBucket(t *testing.T) {
	assert.Equal(t, "", GeoBucket(nil))
	assert.Equal(t, "porto", GeoBucket(&models.GeoPoint{City: "Porto"}))
	assert.Equal(t, "41.1,-8.6", GeoBucket(&models.GeoPoint{Latitude: 41.14, Longitude: -8.61}))
	assert.Equal(t, "", GeoBucket(&models.GeoPoint{}), "null island is treated as missing")
}
