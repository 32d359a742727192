package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/models"
)

func testConfig() config.IdentityConfig {
	return config.Default().Identity
}

func newDetection(embedding []float32) *models.FaceDetection {
	return &models.FaceDetection{
		ID:         uuid.New(),
		AssetID:    uuid.New(),
		Confidence: 0.9,
		Embedding:  embedding,
	}
}

func TestResolveCreatesPersonForNewFace(t *testing.T) {
	r := NewResolver(testConfig(), nil)

	det := newDetection([]float32{1, 0, 0})
	person := r.Resolve(context.Background(), det)

	require.NotNil(t, person)
	require.NotNil(t, det.PersonID)
	assert.Equal(t, person.ID, *det.PersonID)
	assert.Contains(t, person.Name, "Unknown")
	assert.False(t, person.Verified)
	assert.Equal(t, 1, person.FaceCount())
}

func TestResolveMatchesSimilarFace(t *testing.T) {
	r := NewResolver(testConfig(), nil)

	first := r.Resolve(context.Background(), newDetection([]float32{1, 0, 0}))
	second := r.Resolve(context.Background(), newDetection([]float32{0.99, 0.05, 0}))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.FaceCount())
}

func TestResolveCreatesNewPersonBelowThreshold(t *testing.T) {
	r := NewResolver(testConfig(), nil)

	first := r.Resolve(context.Background(), newDetection([]float32{1, 0, 0}))
	second := r.Resolve(context.Background(), newDetection([]float32{0, 1, 0}))

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, r.List(false), 2)
}

func TestResolveIsIdempotentPerDetection(t *testing.T) {
	r := NewResolver(testConfig(), nil)

	det := newDetection([]float32{1, 0, 0})
	first := r.Resolve(context.Background(), det)
	second := r.Resolve(context.Background(), det)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.FaceCount(), "replaying the same detection must not grow the cluster")
}

func TestResolveTieBreakPrefersLargerCluster(t *testing.T) {
	r := NewResolver(testConfig(), nil)
	ctx := context.Background()

	// Two persons with near-identical centroids, one holding more faces.
	big := r.Resolve(ctx, newDetection([]float32{1, 0, 0}))
	r.Resolve(ctx, newDetection([]float32{1, 0, 0}))
	r.Resolve(ctx, newDetection([]float32{1, 0, 0}))

	small := &models.Person{
		ID:       uuid.New(),
		Name:     "Small",
		FaceIDs:  []uuid.UUID{uuid.New()},
		Centroid: []float32{1, 0.001, 0},
	}
	r.Load([]models.Person{*small})

	resolved := r.Resolve(ctx, newDetection([]float32{1, 0.0005, 0}))
	assert.Equal(t, big.ID, resolved.ID, "near-tie must prefer the person with more assignments")
}

func TestMergeReassignsFacesAndRetiresSource(t *testing.T) {
	r := NewResolver(testConfig(), nil)
	ctx := context.Background()

	target := r.Resolve(ctx, newDetection([]float32{1, 0, 0}))
	source := r.Resolve(ctx, newDetection([]float32{0, 1, 0}))
	r.Resolve(ctx, newDetection([]float32{0, 0.98, 0.01}))

	var name = "Maria"
	_, err := r.Update(ctx, source.ID, &name, nil, nil)
	require.NoError(t, err)

	merged, err := r.Merge(ctx, target.ID, source.ID)
	require.NoError(t, err)

	assert.Equal(t, target.ID, merged.ID)
	assert.Equal(t, 3, merged.FaceCount())
	assert.Contains(t, merged.Aliases, "Maria")

	retired := r.Get(source.ID)
	require.NotNil(t, retired)
	assert.True(t, retired.Retired)
	require.NotNil(t, retired.MergedInto)
	assert.Equal(t, target.ID, *retired.MergedInto)
	assert.Empty(t, retired.FaceIDs)

	// Retired persons disappear from the default listing.
	for _, p := range r.List(false) {
		assert.NotEqual(t, source.ID, p.ID)
	}
}

func TestMergeIntoRetiredPersonConflicts(t *testing.T) {
	r := NewResolver(testConfig(), nil)
	ctx := context.Background()

	a := r.Resolve(ctx, newDetection([]float32{1, 0, 0}))
	b := r.Resolve(ctx, newDetection([]float32{0, 1, 0}))
	c := r.Resolve(ctx, newDetection([]float32{0, 0, 1}))

	_, err := r.Merge(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, err = r.Merge(ctx, b.ID, c.ID)
	assert.ErrorIs(t, err, ErrMergeConflict)

	_, err = r.Merge(ctx, a.ID, uuid.New())
	assert.ErrorIs(t, err, ErrPersonNotFound)
}

func TestMergeCentroidIsCountWeighted(t *testing.T) {
	r := NewResolver(testConfig(), nil)
	ctx := context.Background()

	target := r.Resolve(ctx, newDetection([]float32{1, 0, 0}))
	source := r.Resolve(ctx, newDetection([]float32{0, 1, 0}))

	merged, err := r.Merge(ctx, target.ID, source.ID)
	require.NoError(t, err)

	require.Len(t, merged.Centroid, 3)
	assert.InDelta(t, 0.5, merged.Centroid[0], 1e-6)
	assert.InDelta(t, 0.5, merged.Centroid[1], 1e-6)
}

func TestUnassignReleasesFaces(t *testing.T) {
	r := NewResolver(testConfig(), nil)
	ctx := context.Background()

	det := newDetection([]float32{1, 0, 0})
	person := r.Resolve(ctx, det)
	require.Equal(t, 1, person.FaceCount())

	r.Unassign(ctx, []uuid.UUID{det.ID})

	after := r.Get(person.ID)
	require.NotNil(t, after)
	assert.Equal(t, 0, after.FaceCount())

	// The freed detection resolves fresh on the next pass.
	det.PersonID = nil
	again := r.Resolve(ctx, newDetection([]float32{1, 0, 0}))
	require.NotNil(t, again)
}

func TestUpdatePerson(t *testing.T) {
	r := NewResolver(testConfig(), nil)
	ctx := context.Background()

	person := r.Resolve(ctx, newDetection([]float32{1, 0, 0}))

	name := "Elena"
	verified := true
	updated, err := r.Update(ctx, person.ID, &name, []string{"Lena"}, &verified)
	require.NoError(t, err)
	assert.Equal(t, "Elena", updated.Name)
	assert.Contains(t, updated.Aliases, "Lena")
	assert.True(t, updated.Verified)

	_, err = r.Update(ctx, uuid.New(), &name, nil, nil)
	assert.ErrorIs(t, err, ErrPersonNotFound)
}

func TestLoadRebuildsRegistry(t *testing.T) {
	r := NewResolver(testConfig(), nil)

	faceID := uuid.New()
	p := models.Person{
		ID:       uuid.New(),
		Name:     "Anna",
		FaceIDs:  []uuid.UUID{faceID},
		Centroid: []float32{0, 1, 0},
	}
	r.Load([]models.Person{p})

	loaded := r.Get(p.ID)
	require.NotNil(t, loaded)
	assert.Equal(t, "Anna", loaded.Name)

	// A matching face lands on the loaded person, not a fresh one.
	resolved := r.Resolve(context.Background(), newDetection([]float32{0, 0.99, 0.01}))
	assert.Equal(t, p.ID, resolved.ID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1}), "mismatched dimensions")
	assert.Zero(t, CosineSimilarity(nil, nil))
}

// fakePersonStore keeps person rows the way the durable store would, and
// implements the optional lock, read, and vector-search extensions.
type fakePersonStore struct {
	persons map[uuid.UUID]models.Person
	faces   map[uuid.UUID]uuid.UUID
	locks   int
}

func newFakePersonStore() *fakePersonStore {
	return &fakePersonStore{
		persons: make(map[uuid.UUID]models.Person),
		faces:   make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *fakePersonStore) UpsertPerson(_ context.Context, p *models.Person) error {
	s.persons[p.ID] = *copyPerson(p)
	return nil
}

func (s *fakePersonStore) UpdateFacePerson(_ context.Context, faceID, personID uuid.UUID) error {
	s.faces[faceID] = personID
	return nil
}

func (s *fakePersonStore) GetPerson(_ context.Context, id uuid.UUID) (*models.Person, error) {
	p, ok := s.persons[id]
	if !ok {
		return nil, nil
	}
	return copyPerson(&p), nil
}

func (s *fakePersonStore) WithIdentityLock(ctx context.Context, fn func(context.Context) error) error {
	s.locks++
	return fn(ctx)
}

func (s *fakePersonStore) NearestPerson(_ context.Context, embedding []float32, threshold float64) (uuid.UUID, float64, bool, error) {
	var bestID uuid.UUID
	var best float64
	var found bool
	for id, p := range s.persons {
		if p.Retired || len(p.Centroid) == 0 {
			continue
		}
		if sim := CosineSimilarity(embedding, p.Centroid); sim >= threshold && (!found || sim > best) {
			bestID, best, found = id, sim, true
		}
	}
	return bestID, best, found, nil
}

func (s *fakePersonStore) list() []models.Person {
	out := make([]models.Person, 0, len(s.persons))
	for _, p := range s.persons {
		out = append(out, p)
	}
	return out
}

func TestResolveColdRegistryRecoversFromStore(t *testing.T) {
	store := newFakePersonStore()
	ctx := context.Background()

	seed := NewResolver(testConfig(), store)
	original := seed.Resolve(ctx, newDetection([]float32{1, 0, 0}))

	// A different process with an empty registry sees the same embedding.
	// The vector fallback must recover the persisted person instead of
	// minting a duplicate.
	cold := NewResolver(testConfig(), store)
	resolved := cold.Resolve(ctx, newDetection([]float32{0.99, 0.05, 0}))

	require.NotNil(t, resolved)
	assert.Equal(t, original.ID, resolved.ID)
	assert.Len(t, cold.List(false), 1)
}

func TestResolveFollowsMergeFromAnotherProcess(t *testing.T) {
	store := newFakePersonStore()
	ctx := context.Background()

	api := NewResolver(testConfig(), store)
	p1 := api.Resolve(ctx, newDetection([]float32{1, 0, 0}))
	p2 := api.Resolve(ctx, newDetection([]float32{0, 1, 0}))

	worker := NewResolver(testConfig(), store)
	worker.Load(store.list())

	// The API merges while the worker holds a stale view of both persons.
	_, err := api.Merge(ctx, p1.ID, p2.ID)
	require.NoError(t, err)

	// A face matching the retired source must land on the merge target.
	resolved := worker.Resolve(ctx, newDetection([]float32{0, 0.99, 0.01}))
	require.NotNil(t, resolved)
	assert.Equal(t, p1.ID, resolved.ID)

	retired := worker.Get(p2.ID)
	require.NotNil(t, retired)
	assert.True(t, retired.Retired)
}

func TestSyncReplacesStaleView(t *testing.T) {
	r := NewResolver(testConfig(), nil)
	ctx := context.Background()

	det := newDetection([]float32{1, 0, 0})
	person := r.Resolve(ctx, det)

	row := *r.Get(person.ID)
	row.Name = "Elena"
	row.FaceIDs = nil
	row.Centroid = nil
	r.Sync(row)

	after := r.Get(person.ID)
	require.NotNil(t, after)
	assert.Equal(t, "Elena", after.Name)
	assert.Equal(t, 0, after.FaceCount())

	// The face mapping from the stale view is gone, so the detection
	// re-resolves instead of silently returning the old assignment.
	det.PersonID = nil
	again := r.Resolve(ctx, det)
	require.NotNil(t, again)
	assert.Equal(t, 1, again.FaceCount())
}

func TestMutationsHoldStoreLock(t *testing.T) {
	store := newFakePersonStore()
	r := NewResolver(testConfig(), store)
	ctx := context.Background()

	det := newDetection([]float32{1, 0, 0})
	p1 := r.Resolve(ctx, det)
	p2 := r.Resolve(ctx, newDetection([]float32{0, 1, 0}))

	name := "Anna"
	_, err := r.Update(ctx, p1.ID, &name, nil, nil)
	require.NoError(t, err)
	_, err = r.Merge(ctx, p1.ID, p2.ID)
	require.NoError(t, err)
	r.Unassign(ctx, []uuid.UUID{det.ID})

	assert.Equal(t, 5, store.locks, "every mutating operation must take the cross-process lock once")
}

func TestUnassignReportsAffectedPersons(t *testing.T) {
	r := NewResolver(testConfig(), nil)
	ctx := context.Background()

	det := newDetection([]float32{1, 0, 0})
	person := r.Resolve(ctx, det)

	affected := r.Unassign(ctx, []uuid.UUID{det.ID, uuid.New()})
	require.Len(t, affected, 1)
	assert.Equal(t, person.ID, affected[0])
}
