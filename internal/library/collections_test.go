package library

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/models"
)

type staticNamer map[uuid.UUID]string

func (n staticNamer) PersonName(id uuid.UUID) (string, bool) {
	name, ok := n[id]
	return name, ok
}

func collectionsConfig() config.CollectionsConfig {
	return config.Default().Collections
}

func TestGenerateSkipsGroupsBelowSupportMinimum(t *testing.T) {
	idx := NewIndex()
	day := time.Date(2024, 8, 10, 9, 0, 0, 0, time.UTC)

	// 5 assets on one day meet the date minimum, 4 on another do not.
	for i := 0; i < 5; i++ {
		idx.Upsert(newAsset("big.jpg", day))
	}
	for i := 0; i < 4; i++ {
		idx.Upsert(newAsset("small.jpg", day.AddDate(0, 0, 1)))
	}

	g := NewGenerator(idx, nil, collectionsConfig())
	out := g.Generate()

	require.Len(t, out, 1)
	c := out[0]
	assert.Equal(t, "August 10, 2024", c.Name)
	assert.Equal(t, models.GroupByDate, c.Dimension)
	assert.Equal(t, "2024-08-10", c.GroupKey)
	assert.InDelta(t, 0.9, c.Confidence, 1e-9)
	assert.Len(t, c.AssetIDs, 5)
	assert.Equal(t, models.CollectionTypeAuto, c.Type)
	require.NotNil(t, c.GeneratedAt)
}

func TestGenerateLocationCollections(t *testing.T) {
	idx := NewIndex()
	day := time.Date(2024, 8, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		a := newAsset("porto.jpg", day.Add(time.Duration(i)*48*time.Hour))
		a.Metadata.Location = &models.GeoPoint{City: "Porto"}
		idx.Upsert(a)
	}
	for i := 0; i < 3; i++ {
		a := newAsset("coords.jpg", day.Add(time.Duration(i)*96*time.Hour))
		a.Metadata.Location = &models.GeoPoint{Latitude: 41.14, Longitude: -8.61}
		idx.Upsert(a)
	}

	g := NewGenerator(idx, nil, collectionsConfig())
	out := g.Generate()

	require.Len(t, out, 2)
	byKey := make(map[string]*models.Collection)
	for _, c := range out {
		require.Equal(t, models.GroupByLocation, c.Dimension)
		assert.InDelta(t, 0.8, c.Confidence, 1e-9)
		byKey[c.GroupKey] = c
	}
	assert.Equal(t, "Porto", byKey["porto"].Name)
	assert.Equal(t, "Near 41.1,-8.6", byKey["41.1,-8.6"].Name)
}

func TestGeneratePersonCollections(t *testing.T) {
	idx := NewIndex()
	day := time.Date(2024, 8, 10, 9, 0, 0, 0, time.UTC)
	known := uuid.New()
	anonymous := uuid.New()

	addFace := func(name string, pid uuid.UUID, captured time.Time) {
		a := newAsset(name, captured)
		a.Faces = []models.FaceDetection{{ID: uuid.New(), AssetID: a.ID, PersonID: &pid}}
		idx.Upsert(a)
	}
	for i := 0; i < 3; i++ {
		addFace("maria.jpg", known, day.Add(time.Duration(i)*48*time.Hour))
		addFace("stranger.jpg", anonymous, day.Add(time.Duration(i)*96*time.Hour))
	}

	g := NewGenerator(idx, staticNamer{known: "Maria Santos"}, collectionsConfig())
	out := g.Generate()

	require.Len(t, out, 2)
	byKey := make(map[string]*models.Collection)
	for _, c := range out {
		require.Equal(t, models.GroupByPerson, c.Dimension)
		assert.InDelta(t, 0.85, c.Confidence, 1e-9)
		byKey[c.GroupKey] = c
	}
	assert.Equal(t, "Photos of Maria Santos", byKey[known.String()].Name)
	assert.Equal(t, "Photos of Unknown", byKey[anonymous.String()].Name)
}

func TestGenerateOutputIsDeterministic(t *testing.T) {
	idx := NewIndex()
	day := time.Date(2024, 8, 10, 9, 0, 0, 0, time.UTC)
	for d := 0; d < 3; d++ {
		for i := 0; i < 5; i++ {
			idx.Upsert(newAsset("a.jpg", day.AddDate(0, 0, d)))
		}
	}

	g := NewGenerator(idx, nil, collectionsConfig())
	first := g.Generate()
	require.Len(t, first, 3)
	for run := 0; run < 5; run++ {
		again := g.Generate()
		require.Len(t, again, 3)
		for i := range first {
			assert.Equal(t, first[i].GroupKey, again[i].GroupKey)
			assert.Equal(t, first[i].AssetIDs, again[i].AssetIDs)
		}
	}
}

func TestRegistryReplaceAutoPreservesManual(t *testing.T) {
	r := NewRegistry()

	manual := &models.Collection{ID: uuid.New(), Name: "Best of 2024"}
	r.AddManual(manual)
	assert.Equal(t, models.CollectionTypeManual, manual.Type)

	gen1 := &models.Collection{ID: uuid.New(), Name: "Day 1", Type: models.CollectionTypeAuto}
	r.ReplaceAuto([]*models.Collection{gen1})
	assert.Len(t, r.List(""), 2)

	gen2 := &models.Collection{ID: uuid.New(), Name: "Day 2", Type: models.CollectionTypeAuto}
	r.ReplaceAuto([]*models.Collection{gen2})

	all := r.List("")
	require.Len(t, all, 2)
	_, ok := r.Get(gen1.ID)
	assert.False(t, ok, "previous auto set is gone")
	_, ok = r.Get(gen2.ID)
	assert.True(t, ok)
	_, ok = r.Get(manual.ID)
	assert.True(t, ok)
}

func TestRegistryListFilterAndOrder(t *testing.T) {
	r := NewRegistry()
	r.AddManual(&models.Collection{ID: uuid.New(), Name: "Zebra"})
	r.AddManual(&models.Collection{ID: uuid.New(), Name: "Alpha"})
	r.ReplaceAuto([]*models.Collection{
		{ID: uuid.New(), Name: "Middle", Type: models.CollectionTypeAuto},
	})

	all := r.List("")
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Alpha", "Middle", "Zebra"}, []string{all[0].Name, all[1].Name, all[2].Name})

	manual := r.List(models.CollectionTypeManual)
	require.Len(t, manual, 2)
	auto := r.List(models.CollectionTypeAuto)
	require.Len(t, auto, 1)
}

func TestRegistryDelete(t *testing.T) {
	r := NewRegistry()
	c := &models.Collection{ID: uuid.New(), Name: "Trip"}
	r.AddManual(c)

	assert.True(t, r.Delete(c.ID))
	assert.False(t, r.Delete(c.ID))
	assert.Empty(t, r.List(""))
}

func TestRegistryRemoveAsset(t *testing.T) {
	r := NewRegistry()
	keep := uuid.New()
	gone := uuid.New()
	c := &models.Collection{ID: uuid.New(), Name: "Trip", AssetIDs: []uuid.UUID{keep, gone}}
	untouched := &models.Collection{ID: uuid.New(), Name: "Other", AssetIDs: []uuid.UUID{keep}}
	r.AddManual(c)
	r.AddManual(untouched)

	changed := r.RemoveAsset(gone)

	got, ok := r.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, []uuid.UUID{keep}, got.AssetIDs)

	// Only the collection that held the asset is reported for persistence.
	require.Len(t, changed, 1)
	assert.Equal(t, c.ID, changed[0].ID)

	assert.Empty(t, r.RemoveAsset(uuid.New()))
}
