package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/detect"
	"github.com/your-org/medialib/internal/identity"
	"github.com/your-org/medialib/internal/library"
	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/internal/scoring"
)

type fakeBlobs struct {
	objects map[string][]byte
	puts    map[string][]byte
	getErr  error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte), puts: make(map[string][]byte)}
}

func (b *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %q", key)
	}
	return data, nil
}

func (b *fakeBlobs) Put(_ context.Context, key string, data []byte, _ string) (int64, error) {
	b.puts[key] = data
	return int64(len(data)), nil
}

type fakeStore struct {
	assets []*models.MediaAsset
	faces  [][]models.FaceDetection
}

func (s *fakeStore) SaveAsset(_ context.Context, asset *models.MediaAsset) error {
	s.assets = append(s.assets, asset)
	return nil
}

func (s *fakeStore) SaveFaces(_ context.Context, faces []models.FaceDetection) error {
	s.faces = append(s.faces, faces)
	return nil
}

type fakeAdapter struct {
	bundle   *models.DetectionBundle
	errs     []error
	attempts int
}

func (a *fakeAdapter) Detect(_ context.Context, _ []byte, _ models.MediaKind) (*models.DetectionBundle, error) {
	a.attempts++
	if len(a.errs) > 0 {
		err := a.errs[0]
		a.errs = a.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if a.bundle == nil {
		return &models.DetectionBundle{SchemaVersion: 1}, nil
	}
	return a.bundle, nil
}

type fakeEvents struct {
	enriched []*models.MediaAsset
}

func (e *fakeEvents) AssetEnriched(asset *models.MediaAsset) {
	e.enriched = append(e.enriched, asset)
}

type pipelineEnv struct {
	pipeline *Pipeline
	index    *library.Index
	store    *fakeStore
	blobs    *fakeBlobs
	adapter  *fakeAdapter
	events   *fakeEvents
	resolver *identity.Resolver
}

func newEnv(t *testing.T, adapter *fakeAdapter) *pipelineEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Detect.RetryBackoff = config.Duration(time.Millisecond)

	env := &pipelineEnv{
		index:    library.NewIndex(),
		store:    &fakeStore{},
		blobs:    newFakeBlobs(),
		adapter:  adapter,
		events:   &fakeEvents{},
		resolver: identity.NewResolver(cfg.Identity, nil),
	}
	env.pipeline = NewPipeline(
		cfg.Detect,
		env.adapter,
		scoring.NewEngine(cfg.Scoring),
		env.resolver,
		env.index,
		env.store,
		env.blobs,
		env.events,
	)
	return env
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageTask(id uuid.UUID) *models.EnrichmentTask {
	return &models.EnrichmentTask{
		AssetID:    id,
		Filename:   "photo.png",
		Kind:       models.MediaKindImage,
		ObjectKey:  "media/" + id.String(),
		MimeType:   "image/png",
		UploadedAt: time.Now().UTC(),
	}
}

func TestProcessReadyAssetHasAnalysis(t *testing.T) {
	adapter := &fakeAdapter{bundle: &models.DetectionBundle{
		SchemaVersion: 1,
		Objects:       []models.ObjectDetection{{Name: "person", Confidence: 0.9}},
		Scenes:        []models.SceneDetection{{Name: "outdoor", Confidence: 0.85}},
	}}
	env := newEnv(t, adapter)

	id := uuid.New()
	task := imageTask(id)
	env.blobs.objects[task.ObjectKey] = pngBytes(t, 64, 48)

	asset, err := env.pipeline.Process(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, models.AssetStatusReady, asset.Status)
	require.NotNil(t, asset.Analysis)
	assert.Empty(t, asset.ErrorReason)
	assert.Equal(t, 64, asset.Metadata.Width)
	assert.Equal(t, 48, asset.Metadata.Height)
	assert.NotEmpty(t, asset.Tags)
	for _, tag := range asset.Tags {
		assert.GreaterOrEqual(t, tag.Confidence, 0.0)
		assert.LessOrEqual(t, tag.Confidence, 1.0)
	}

	// Indexed, persisted, announced.
	assert.Same(t, asset, env.index.Get(id))
	require.Len(t, env.store.assets, 1)
	require.Len(t, env.events.enriched, 1)
	assert.Equal(t, id, env.events.enriched[0].ID)
}

func TestProcessAppendsThumbnailVersion(t *testing.T) {
	env := newEnv(t, &fakeAdapter{})

	id := uuid.New()
	task := imageTask(id)
	env.blobs.objects[task.ObjectKey] = pngBytes(t, 640, 480)

	asset, err := env.pipeline.Process(context.Background(), task)
	require.NoError(t, err)

	require.Len(t, asset.Versions, 2)
	assert.Equal(t, models.VersionOriginal, asset.Versions[0].Kind)
	thumb := asset.Versions[1]
	assert.Equal(t, models.VersionThumbnail, thumb.Kind)
	assert.Equal(t, "thumbs/"+id.String()+".jpg", thumb.ObjectKey)
	assert.NotEmpty(t, env.blobs.puts[thumb.ObjectKey])
	assert.Equal(t, int64(len(env.blobs.puts[thumb.ObjectKey])), thumb.SizeBytes)
}

func TestProcessUnsupportedFormatFinalizesError(t *testing.T) {
	env := newEnv(t, &fakeAdapter{})

	id := uuid.New()
	task := imageTask(id)
	task.MimeType = "image/x-unknown"
	env.blobs.objects[task.ObjectKey] = pngBytes(t, 8, 8)

	asset, err := env.pipeline.Process(context.Background(), task)
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.Equal(t, models.AssetStatusError, asset.Status)
	assert.Nil(t, asset.Analysis)
	assert.NotEmpty(t, asset.ErrorReason)

	// Error assets still reach the index and the store.
	assert.Same(t, asset, env.index.Get(id))
	require.Len(t, env.store.assets, 1)
	require.Len(t, env.events.enriched, 1)
	assert.Zero(t, env.adapter.attempts, "detection never runs on unsupported input")
}

func TestProcessCorruptInputFinalizesError(t *testing.T) {
	env := newEnv(t, &fakeAdapter{})

	id := uuid.New()
	task := imageTask(id)
	env.blobs.objects[task.ObjectKey] = []byte("not a png at all")

	asset, err := env.pipeline.Process(context.Background(), task)
	require.ErrorIs(t, err, ErrCorruptInput)
	assert.Equal(t, models.AssetStatusError, asset.Status)
	assert.Nil(t, asset.Analysis)
}

func TestProcessRetriesDetectionThenFails(t *testing.T) {
	boom := errors.New("model crashed")
	adapter := &fakeAdapter{errs: []error{boom, boom, boom}}
	env := newEnv(t, adapter)

	id := uuid.New()
	task := imageTask(id)
	env.blobs.objects[task.ObjectKey] = pngBytes(t, 8, 8)

	asset, err := env.pipeline.Process(context.Background(), task)
	require.ErrorIs(t, err, ErrDetectionAdapterFailure)
	assert.Equal(t, 3, adapter.attempts)
	assert.Equal(t, models.AssetStatusError, asset.Status)
}

func TestProcessRetrySucceedsOnSecondAttempt(t *testing.T) {
	adapter := &fakeAdapter{errs: []error{errors.New("transient")}}
	env := newEnv(t, adapter)

	id := uuid.New()
	task := imageTask(id)
	env.blobs.objects[task.ObjectKey] = pngBytes(t, 8, 8)

	asset, err := env.pipeline.Process(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.attempts)
	assert.Equal(t, models.AssetStatusReady, asset.Status)
}

func TestProcessUnsupportedInputIsNotRetried(t *testing.T) {
	adapter := &fakeAdapter{errs: []error{
		fmt.Errorf("%w: audio", detect.ErrUnsupportedInput),
	}}
	env := newEnv(t, adapter)

	id := uuid.New()
	task := imageTask(id)
	env.blobs.objects[task.ObjectKey] = pngBytes(t, 8, 8)

	asset, err := env.pipeline.Process(context.Background(), task)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, 1, adapter.attempts)
	assert.Equal(t, models.AssetStatusError, asset.Status)
}

func TestProcessMissingObjectFinalizesError(t *testing.T) {
	env := newEnv(t, &fakeAdapter{})

	asset, err := env.pipeline.Process(context.Background(), imageTask(uuid.New()))
	require.Error(t, err)
	assert.Equal(t, models.AssetStatusError, asset.Status)
	assert.Contains(t, asset.ErrorReason, "fetch original")
}

func TestProcessResolvesFacesIntoPersonTags(t *testing.T) {
	embedding := []float32{1, 0, 0}
	adapter := &fakeAdapter{bundle: &models.DetectionBundle{
		SchemaVersion: 1,
		Faces: []models.FaceObservation{{
			Confidence: 0.92,
			Embedding:  embedding,
		}},
	}}
	env := newEnv(t, adapter)

	id := uuid.New()
	task := imageTask(id)
	env.blobs.objects[task.ObjectKey] = pngBytes(t, 32, 32)

	asset, err := env.pipeline.Process(context.Background(), task)
	require.NoError(t, err)

	require.Len(t, asset.Faces, 1)
	face := asset.Faces[0]
	require.NotNil(t, face.PersonID)
	assert.Equal(t, id, face.AssetID)

	person := env.resolver.Get(*face.PersonID)
	require.NotNil(t, person)

	var personTag *models.Tag
	for i := range asset.Tags {
		if asset.Tags[i].Category == models.TagCategoryPerson {
			personTag = &asset.Tags[i]
		}
	}
	require.NotNil(t, personTag)
	assert.Equal(t, person.Name, personTag.Name)

	require.Len(t, env.store.faces, 1)
	assert.Len(t, env.store.faces[0], 1)
}

func TestRemoveUnassignsFaces(t *testing.T) {
	embedding := []float32{0, 1, 0}
	adapter := &fakeAdapter{bundle: &models.DetectionBundle{
		SchemaVersion: 1,
		Faces:         []models.FaceObservation{{Confidence: 0.9, Embedding: embedding}},
	}}
	env := newEnv(t, adapter)

	id := uuid.New()
	task := imageTask(id)
	env.blobs.objects[task.ObjectKey] = pngBytes(t, 16, 16)

	asset, err := env.pipeline.Process(context.Background(), task)
	require.NoError(t, err)
	pid := *asset.Faces[0].PersonID

	assert.True(t, env.pipeline.Remove(context.Background(), id))
	assert.Nil(t, env.index.Get(id))
	person := env.resolver.Get(pid)
	require.NotNil(t, person)
	assert.Empty(t, person.FaceIDs)

	assert.False(t, env.pipeline.Remove(context.Background(), id))
}

func TestProcessReplayKeepsFaceAssignmentsStable(t *testing.T) {
	embedding := []float32{1, 0, 0}
	adapter := &fakeAdapter{bundle: &models.DetectionBundle{
		SchemaVersion: 1,
		Faces:         []models.FaceObservation{{Confidence: 0.92, Embedding: embedding}},
	}}
	env := newEnv(t, adapter)

	id := uuid.New()
	task := imageTask(id)
	env.blobs.objects[task.ObjectKey] = pngBytes(t, 32, 32)

	first, err := env.pipeline.Process(context.Background(), task)
	require.NoError(t, err)
	require.Len(t, first.Faces, 1)

	// Redelivery of the same task must regenerate the same detection id and
	// hit the registry's idempotence, not mint a second face for the person.
	second, err := env.pipeline.Process(context.Background(), task)
	require.NoError(t, err)
	require.Len(t, second.Faces, 1)
	assert.Equal(t, first.Faces[0].ID, second.Faces[0].ID)
	assert.Equal(t, *first.Faces[0].PersonID, *second.Faces[0].PersonID)

	person := env.resolver.Get(*second.Faces[0].PersonID)
	require.NotNil(t, person)
	assert.Equal(t, 1, person.FaceCount(), "replay must not grow the person")
	assert.Len(t, env.resolver.List(false), 1)
}

func TestReenrichReleasesVanishedFaces(t *testing.T) {
	adapter := &fakeAdapter{bundle: &models.DetectionBundle{
		SchemaVersion: 1,
		Faces: []models.FaceObservation{
			{Confidence: 0.95, Embedding: []float32{1, 0, 0}},
			{Confidence: 0.91, Embedding: []float32{0, 1, 0}},
		},
	}}
	env := newEnv(t, adapter)

	id := uuid.New()
	task := imageTask(id)
	env.blobs.objects[task.ObjectKey] = pngBytes(t, 32, 32)

	first, err := env.pipeline.Process(context.Background(), task)
	require.NoError(t, err)
	require.Len(t, first.Faces, 2)
	vanishedPerson := *first.Faces[1].PersonID

	// The second pass only finds the first face. The other detection's
	// person must be released, not left holding a dangling face id.
	adapter.bundle.Faces = adapter.bundle.Faces[:1]
	second, err := env.pipeline.Process(context.Background(), task)
	require.NoError(t, err)
	require.Len(t, second.Faces, 1)
	assert.Equal(t, first.Faces[0].ID, second.Faces[0].ID)

	released := env.resolver.Get(vanishedPerson)
	require.NotNil(t, released)
	assert.Empty(t, released.FaceIDs)
}
