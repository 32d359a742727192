package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/identity"
	"github.com/your-org/medialib/internal/queue"
	"github.com/your-org/medialib/pkg/dto"
)

type PersonHandler struct {
	resolver *identity.Resolver
	producer *queue.Producer
}

func NewPersonHandler(resolver *identity.Resolver, producer *queue.Producer) *PersonHandler {
	return &PersonHandler{resolver: resolver, producer: producer}
}

// publishPersonUpdated fans a person change out through the event stream so
// other registries (the workers, other API replicas) re-sync the row instead
// of acting on a stale in-memory view. Best-effort: a publish failure is
// logged and the registries converge on their next warm start.
func publishPersonUpdated(ctx context.Context, producer *queue.Producer, personID uuid.UUID) {
	if producer == nil {
		return
	}
	pid := personID
	evt := dto.WSEvent{Kind: "person_updated", PersonID: &pid, Timestamp: time.Now().UTC()}
	if err := producer.PublishLibraryEvent(ctx, "person_updated", evt); err != nil {
		slog.Warn("publish person event", "person", personID, "error", err)
	}
}

func (h *PersonHandler) List(c *gin.Context) {
	includeRetired := c.Query("include_retired") == "true"
	persons := h.resolver.List(includeRetired)
	c.JSON(http.StatusOK, dto.PersonListResponse{Persons: persons})
}

func (h *PersonHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person := h.resolver.Get(id)
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}
	c.JSON(http.StatusOK, dto.PersonResponse{Person: person})
}

// Update renames a person, adjusts aliases, or marks it verified.
func (h *PersonHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	var req dto.UpdatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	person, err := h.resolver.Update(c.Request.Context(), id, req.Name, req.Aliases, req.Verified)
	if err != nil {
		if errors.Is(err, identity.ErrPersonNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	publishPersonUpdated(c.Request.Context(), h.producer, person.ID)
	c.JSON(http.StatusOK, dto.PersonResponse{Person: person})
}

// Merge absorbs the source person into the target named in the path. The
// source is retired with a pointer back to the target.
func (h *PersonHandler) Merge(c *gin.Context) {
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	var req dto.MergePersonsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SourceID == targetID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot merge a person into itself"})
		return
	}

	person, err := h.resolver.Merge(c.Request.Context(), targetID, req.SourceID)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrPersonNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, identity.ErrMergeConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	// Both rows changed: the target absorbed faces, the source was retired.
	publishPersonUpdated(c.Request.Context(), h.producer, targetID)
	publishPersonUpdated(c.Request.Context(), h.producer, req.SourceID)
	c.JSON(http.StatusOK, dto.PersonResponse{Person: person})
}
