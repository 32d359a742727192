package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/identity"
	"github.com/your-org/medialib/internal/library"
	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/pkg/dto"
)

const exportSchemaVersion = 1

type ExportHandler struct {
	index    *library.Index
	resolver *identity.Resolver
	registry *library.Registry
}

func NewExportHandler(index *library.Index, resolver *identity.Resolver, registry *library.Registry) *ExportHandler {
	return &ExportHandler{index: index, resolver: resolver, registry: registry}
}

// Export produces a self-contained JSON snapshot of the selected assets,
// optionally with the person registry and collections.
func (h *ExportHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var assets []*models.MediaAsset
	switch {
	case req.CollectionID != nil:
		col, ok := h.registry.Get(*req.CollectionID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "collection not found"})
			return
		}
		for _, id := range col.AssetIDs {
			if a := h.index.Get(id); a != nil {
				assets = append(assets, a)
			}
		}
	case len(req.AssetIDs) > 0:
		for _, id := range req.AssetIDs {
			if a := h.index.Get(id); a != nil {
				assets = append(assets, a)
			}
		}
	default:
		assets = h.index.All()
	}

	c.JSON(http.StatusOK, BuildExportDocument(h.resolver, h.registry, assets, req.IncludeFaces))
}

// BuildExportDocument assembles the snapshot for a set of assets. The batch
// export job uses it too, writing the document to object storage instead of
// the response body.
func BuildExportDocument(resolver *identity.Resolver, registry *library.Registry, assets []*models.MediaAsset, includeFaces bool) dto.ExportDocument {
	doc := dto.ExportDocument{
		SchemaVersion: exportSchemaVersion,
		ExportedAt:    time.Now().UTC(),
		Assets:        assets,
		Collections:   registry.List(""),
	}
	if includeFaces {
		doc.Persons = personsFor(resolver, assets)
	}
	return doc
}

// personsFor collects the persons referenced by the exported assets.
func personsFor(resolver *identity.Resolver, assets []*models.MediaAsset) []models.Person {
	seen := make(map[uuid.UUID]struct{})
	var persons []models.Person
	for _, a := range assets {
		for _, f := range a.Faces {
			if f.PersonID == nil {
				continue
			}
			if _, ok := seen[*f.PersonID]; ok {
				continue
			}
			seen[*f.PersonID] = struct{}{}
			if p := resolver.Get(*f.PersonID); p != nil {
				persons = append(persons, *p)
			}
		}
	}
	return persons
}
