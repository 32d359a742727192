package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/library"
	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/internal/storage"
	"github.com/your-org/medialib/pkg/dto"
)

type CollectionHandler struct {
	registry  *library.Registry
	generator *library.Generator
	db        *storage.PostgresStore
}

func NewCollectionHandler(registry *library.Registry, generator *library.Generator, db *storage.PostgresStore) *CollectionHandler {
	return &CollectionHandler{registry: registry, generator: generator, db: db}
}

func (h *CollectionHandler) List(c *gin.Context) {
	kind := models.CollectionType(c.Query("type"))
	collections := h.registry.List(kind)
	c.JSON(http.StatusOK, dto.CollectionListResponse{Collections: collections})
}

func (h *CollectionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection id"})
		return
	}

	col, ok := h.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "collection not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection": col})
}

func (h *CollectionHandler) Create(c *gin.Context) {
	var req dto.CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	col := &models.Collection{
		ID:        uuid.New(),
		Name:      req.Name,
		Type:      models.CollectionTypeManual,
		AssetIDs:  req.AssetIDs,
		Settings:  req.Settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	h.registry.AddManual(col)
	if h.db != nil {
		if err := h.db.SaveCollection(c.Request.Context(), col); err != nil {
			slog.Error("persist collection", "collection", col.ID, "error", err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"collection": col})
}

func (h *CollectionHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection id"})
		return
	}

	if !h.registry.Delete(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "collection not found"})
		return
	}
	if h.db != nil {
		if err := h.db.DeleteCollection(c.Request.Context(), id); err != nil {
			slog.Error("delete collection", "collection", id, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// Generate rebuilds the auto collection set from the current index.
func (h *CollectionHandler) Generate(c *gin.Context) {
	generated := h.generator.Generate()
	h.registry.ReplaceAuto(generated)
	if h.db != nil {
		if err := h.db.ReplaceAutoCollections(c.Request.Context(), generated); err != nil {
			slog.Error("persist auto collections", "error", err)
		}
	}

	c.JSON(http.StatusOK, dto.GenerateCollectionsResponse{
		Generated:   len(generated),
		Collections: generated,
	})
}
