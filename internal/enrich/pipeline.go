// Package enrich runs the per-asset enrichment pipeline: metadata
// extraction, perceptual detection, scoring, identity resolution, and the
// final atomic assembly of the enriched asset.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/detect"
	"github.com/your-org/medialib/internal/identity"
	"github.com/your-org/medialib/internal/library"
	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/internal/observability"
	"github.com/your-org/medialib/internal/scoring"
)

var (
	// ErrUnsupportedFormat means the payload's format cannot be enriched.
	ErrUnsupportedFormat = errors.New("unsupported media format")

	// ErrCorruptInput means the payload claims a supported format but does
	// not parse.
	ErrCorruptInput = errors.New("corrupt media input")

	// ErrDetectionAdapterFailure means the detection adapter failed after
	// all retries.
	ErrDetectionAdapterFailure = errors.New("detection adapter failure")
)

// Store persists enriched assets and their face detections.
type Store interface {
	SaveAsset(ctx context.Context, asset *models.MediaAsset) error
	SaveFaces(ctx context.Context, faces []models.FaceDetection) error
}

// Blobs is the object-storage boundary the pipeline reads originals from and
// writes thumbnails to.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) (int64, error)
}

// EventSink receives a notification after each asset reaches a terminal
// enrichment state. Nil sinks are allowed.
type EventSink interface {
	AssetEnriched(asset *models.MediaAsset)
}

// Pipeline drives one asset through every enrichment stage. The asset is
// assembled off to the side and installed into the index in a single Upsert,
// so searches never observe a half-enriched asset.
type Pipeline struct {
	cfg      config.DetectConfig
	adapter  detect.Adapter
	engine   *scoring.Engine
	resolver *identity.Resolver
	index    *library.Index
	store    Store
	blobs    Blobs
	events   EventSink
	logger   *slog.Logger
}

func NewPipeline(
	cfg config.DetectConfig,
	adapter detect.Adapter,
	engine *scoring.Engine,
	resolver *identity.Resolver,
	index *library.Index,
	store Store,
	blobs Blobs,
	events EventSink,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		adapter:  adapter,
		engine:   engine,
		resolver: resolver,
		index:    index,
		store:    store,
		blobs:    blobs,
		events:   events,
		logger:   slog.With("component", "enrich"),
	}
}

// Process enriches one asset end to end. Pipeline errors do not bubble up as
// task failures: the asset is finalized in the error state with a reason,
// persisted, and indexed, so the library never holds an asset stuck in
// processing. The returned error reports why enrichment degraded.
func (p *Pipeline) Process(ctx context.Context, task *models.EnrichmentTask) (*models.MediaAsset, error) {
	start := time.Now()
	asset := &models.MediaAsset{
		ID:         task.AssetID,
		Filename:   task.Filename,
		Kind:       task.Kind,
		UploadedAt: task.UploadedAt,
		Status:     models.AssetStatusProcessing,
		Versions: []models.MediaVersion{{
			Kind:      models.VersionOriginal,
			ObjectKey: task.ObjectKey,
			CreatedAt: task.UploadedAt,
		}},
		CreatedAt: task.UploadedAt,
	}

	data, err := p.blobs.Get(ctx, task.ObjectKey)
	if err != nil {
		return p.finalizeError(ctx, asset, fmt.Errorf("fetch original: %w", err))
	}
	asset.SizeBytes = int64(len(data))
	asset.Versions[0].SizeBytes = asset.SizeBytes

	meta, err := runStage("metadata", func() (models.FormatMetadata, error) {
		return extractMetadata(data, task)
	})
	if err != nil {
		return p.finalizeError(ctx, asset, err)
	}
	asset.Metadata = meta

	bundle, err := runStage("detect", func() (*models.DetectionBundle, error) {
		return p.detectWithRetry(ctx, data, task.Kind)
	})
	if err != nil {
		return p.finalizeError(ctx, asset, err)
	}

	stageStart := time.Now()
	analysis, tags := p.engine.Analyze(bundle, asset.Metadata)
	asset.Analysis = analysis
	for _, t := range tags {
		asset.SetTag(t)
	}
	observability.EnrichmentDuration.WithLabelValues("score").Observe(time.Since(stageStart).Seconds())

	stageStart = time.Now()
	asset.Faces = p.resolveFaces(ctx, asset.ID, bundle.Faces)
	for _, f := range asset.Faces {
		if f.PersonID != nil {
			if person := p.resolver.Get(*f.PersonID); person != nil {
				asset.SetTag(models.Tag{
					Name:       person.Name,
					Category:   models.TagCategoryPerson,
					Confidence: f.Confidence,
					Source:     models.TagSourceDerived,
				})
			}
		}
	}
	observability.EnrichmentDuration.WithLabelValues("identity").Observe(time.Since(stageStart).Seconds())

	if asset.Kind == models.MediaKindImage {
		if thumb := p.storeThumbnail(ctx, asset.ID, data); thumb != nil {
			asset.Versions = append(asset.Versions, *thumb)
		}
	}

	asset.Status = models.AssetStatusReady
	asset.UpdatedAt = time.Now().UTC()
	p.finalize(ctx, asset)

	observability.AssetsEnriched.WithLabelValues(string(models.AssetStatusReady)).Inc()
	observability.EnrichmentDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	p.logger.Info("asset enriched",
		"asset", asset.ID,
		"tags", len(asset.Tags),
		"faces", len(asset.Faces),
		"took", time.Since(start),
	)
	return asset, nil
}

// Remove drops an asset from the index and unassigns its faces from the
// identity registry.
func (p *Pipeline) Remove(ctx context.Context, id uuid.UUID) bool {
	asset := p.index.Get(id)
	if asset == nil {
		return false
	}
	faceIDs := make([]uuid.UUID, 0, len(asset.Faces))
	for _, f := range asset.Faces {
		faceIDs = append(faceIDs, f.ID)
	}
	p.resolver.Unassign(ctx, faceIDs)
	return p.index.Remove(id)
}

func (p *Pipeline) detectWithRetry(ctx context.Context, data []byte, kind models.MediaKind) (*models.DetectionBundle, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		bundle, err := p.adapter.Detect(ctx, data, kind)
		if err == nil {
			return bundle, nil
		}
		if errors.Is(err, detect.ErrUnsupportedInput) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		lastErr = err
		if attempt < p.cfg.MaxAttempts {
			observability.DetectionRetries.Inc()
			p.logger.Warn("detection attempt failed",
				"attempt", attempt,
				"max_attempts", p.cfg.MaxAttempts,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetryBackoff.Std() * time.Duration(attempt)):
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrDetectionAdapterFailure, lastErr)
}

// faceDetectionID derives a stable detection id from the asset and the face
// ordinal. Replays and re-enrichment regenerate the same ids, so the identity
// registry's per-detection idempotence holds across message redelivery.
func faceDetectionID(assetID uuid.UUID, ordinal int) uuid.UUID {
	return uuid.NewSHA1(assetID, []byte(fmt.Sprintf("face-%d", ordinal)))
}

func (p *Pipeline) resolveFaces(ctx context.Context, assetID uuid.UUID, observations []models.FaceObservation) []models.FaceDetection {
	faces := make([]models.FaceDetection, 0, len(observations))
	for i, obs := range observations {
		det := models.FaceDetection{
			ID:               faceDetectionID(assetID, i),
			AssetID:          assetID,
			Box:              obs.Box,
			Confidence:       obs.Confidence,
			Landmarks:        obs.Landmarks,
			Emotions:         obs.Emotions,
			Age:              obs.Age,
			Gender:           obs.Gender,
			GenderConfidence: obs.GenderConfidence,
			Embedding:        obs.Embedding,
			CreatedAt:        time.Now().UTC(),
		}
		if len(obs.Embedding) > 0 {
			p.resolver.Resolve(ctx, &det)
		}
		faces = append(faces, det)
	}
	return faces
}

func (p *Pipeline) storeThumbnail(ctx context.Context, assetID uuid.UUID, data []byte) *models.MediaVersion {
	thumb, err := makeThumbnail(data)
	if err != nil {
		p.logger.Warn("thumbnail generation failed", "asset", assetID, "error", err)
		return nil
	}
	key := fmt.Sprintf("thumbs/%s.jpg", assetID)
	size, err := p.blobs.Put(ctx, key, thumb, "image/jpeg")
	if err != nil {
		p.logger.Warn("thumbnail upload failed", "asset", assetID, "error", err)
		return nil
	}
	return &models.MediaVersion{
		Kind:      models.VersionThumbnail,
		ObjectKey: key,
		SizeBytes: size,
		CreatedAt: time.Now().UTC(),
	}
}

// finalizeError installs the asset in the error state. The asset stays
// findable by filename and metadata even though it carries no analysis.
func (p *Pipeline) finalizeError(ctx context.Context, asset *models.MediaAsset, cause error) (*models.MediaAsset, error) {
	asset.Status = models.AssetStatusError
	asset.ErrorReason = cause.Error()
	asset.Analysis = nil
	asset.UpdatedAt = time.Now().UTC()
	p.finalize(ctx, asset)

	observability.AssetsEnriched.WithLabelValues(string(models.AssetStatusError)).Inc()
	p.logger.Error("enrichment failed", "asset", asset.ID, "error", cause)
	return asset, cause
}

// releaseStaleFaces unassigns detections from a previous enrichment run that
// the current run no longer produced, so person face sets and centroids do
// not accrete across re-enrichment.
func (p *Pipeline) releaseStaleFaces(ctx context.Context, asset *models.MediaAsset) {
	prev := p.index.Get(asset.ID)
	if prev == nil || len(prev.Faces) == 0 {
		return
	}
	current := make(map[uuid.UUID]struct{}, len(asset.Faces))
	for _, f := range asset.Faces {
		current[f.ID] = struct{}{}
	}
	var stale []uuid.UUID
	for _, f := range prev.Faces {
		if _, ok := current[f.ID]; !ok {
			stale = append(stale, f.ID)
		}
	}
	if len(stale) > 0 {
		p.resolver.Unassign(ctx, stale)
	}
}

func (p *Pipeline) finalize(ctx context.Context, asset *models.MediaAsset) {
	p.releaseStaleFaces(ctx, asset)
	p.index.Upsert(asset)
	if p.store != nil {
		if err := p.store.SaveAsset(ctx, asset); err != nil {
			p.logger.Error("persist asset", "asset", asset.ID, "error", err)
		}
		if len(asset.Faces) > 0 {
			if err := p.store.SaveFaces(ctx, asset.Faces); err != nil {
				p.logger.Error("persist faces", "asset", asset.ID, "error", err)
			}
		}
	}
	if p.events != nil {
		p.events.AssetEnriched(asset)
	}
}

func runStage[T any](name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	observability.EnrichmentDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return out, err
}
