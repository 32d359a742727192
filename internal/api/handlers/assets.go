package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/identity"
	"github.com/your-org/medialib/internal/library"
	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/internal/queue"
	"github.com/your-org/medialib/internal/storage"
	"github.com/your-org/medialib/pkg/dto"
)

type AssetHandler struct {
	index    *library.Index
	resolver *identity.Resolver
	registry *library.Registry
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	producer *queue.Producer
}

func NewAssetHandler(index *library.Index, resolver *identity.Resolver, registry *library.Registry, db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer) *AssetHandler {
	return &AssetHandler{index: index, resolver: resolver, registry: registry, db: db, minio: minio, producer: producer}
}

// Upload accepts a multipart file, stores the original bytes, and queues an
// enrichment task. The asset is visible immediately in the processing state.
func (h *AssetHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read upload: " + err.Error()})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}
	kind := kindForMime(mimeType)
	if kind == "" {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": fmt.Sprintf("unsupported mime type %q", mimeType)})
		return
	}

	id := uuid.New()
	key := storage.MediaPrefix + id.String()
	now := time.Now().UTC()

	if _, err := h.minio.Put(c.Request.Context(), key, data, mimeType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	asset := &models.MediaAsset{
		ID:         id,
		Filename:   header.Filename,
		Kind:       kind,
		SizeBytes:  int64(len(data)),
		UploadedAt: now,
		Metadata:   models.FormatMetadata{MimeType: mimeType},
		Status:     models.AssetStatusProcessing,
		Versions: []models.MediaVersion{{
			Kind:      models.VersionOriginal,
			ObjectKey: key,
			SizeBytes: int64(len(data)),
			CreatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	h.index.Upsert(asset)
	if err := h.db.SaveAsset(c.Request.Context(), asset); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	task := models.EnrichmentTask{
		AssetID:    id,
		Filename:   header.Filename,
		Kind:       kind,
		ObjectKey:  key,
		MimeType:   mimeType,
		UploadedAt: now,
	}
	if err := h.producer.PublishEnrichTask(c.Request.Context(), id.String(), task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, dto.UploadAssetResponse{
		ID:         id,
		Filename:   header.Filename,
		Kind:       kind,
		Status:     models.AssetStatusProcessing,
		UploadedAt: now,
	})
}

func (h *AssetHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	asset := h.index.Get(id)
	if asset == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	c.JSON(http.StatusOK, dto.AssetResponse{Asset: asset})
}

// Delete removes the asset from the index, unassigns its faces, and deletes
// the stored objects and database rows.
func (h *AssetHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	asset := h.index.Get(id)
	if asset == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}

	keys := make([]string, 0, len(asset.Versions))
	for _, v := range asset.Versions {
		keys = append(keys, v.ObjectKey)
	}

	faceIDs := make([]uuid.UUID, 0, len(asset.Faces))
	for _, f := range asset.Faces {
		faceIDs = append(faceIDs, f.ID)
	}
	affected := h.resolver.Unassign(c.Request.Context(), faceIDs)
	for _, pid := range affected {
		publishPersonUpdated(c.Request.Context(), h.producer, pid)
	}
	h.index.Remove(id)
	for _, col := range h.registry.RemoveAsset(id) {
		if err := h.db.SaveCollection(c.Request.Context(), col); err != nil {
			slog.Warn("persist collection after asset delete", "collection", col.ID, "error", err)
		}
	}
	if err := h.db.DeleteAsset(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(keys) > 0 {
		if err := h.minio.DeleteAll(c.Request.Context(), keys); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// Reenrich queues a fresh enrichment pass for an existing asset. The current
// analysis stays visible until the new pass replaces it wholesale.
func (h *AssetHandler) Reenrich(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	asset := h.index.Get(id)
	if asset == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}

	var originalKey string
	for _, v := range asset.Versions {
		if v.Kind == models.VersionOriginal {
			originalKey = v.ObjectKey
			break
		}
	}
	if originalKey == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "asset has no original bytes"})
		return
	}

	task := models.EnrichmentTask{
		AssetID:    asset.ID,
		Filename:   asset.Filename,
		Kind:       asset.Kind,
		ObjectKey:  originalKey,
		MimeType:   asset.Metadata.MimeType,
		UploadedAt: asset.UploadedAt,
	}
	if err := h.producer.PublishEnrichTask(c.Request.Context(), id.String(), task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, dto.ReenrichResponse{ID: id, Status: asset.Status})
}

// Thumbnail streams the asset's thumbnail rendition.
func (h *AssetHandler) Thumbnail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	asset := h.index.Get(id)
	if asset == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}

	for _, v := range asset.Versions {
		if v.Kind == models.VersionThumbnail {
			data, err := h.minio.Get(c.Request.Context(), v.ObjectKey)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.Data(http.StatusOK, "image/jpeg", data)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "no thumbnail for asset"})
}

func kindForMime(mimeType string) models.MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.MediaKindImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.MediaKindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.MediaKindAudio
	case mimeType == "application/pdf", strings.HasPrefix(mimeType, "text/"):
		return models.MediaKindDocument
	default:
		return ""
	}
}
