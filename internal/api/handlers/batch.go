package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/jobs"
	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/pkg/dto"
)

type BatchHandler struct {
	queue *jobs.Queue
}

func NewBatchHandler(queue *jobs.Queue) *BatchHandler {
	return &BatchHandler{queue: queue}
}

var validOperations = map[models.BatchOperation]struct{}{
	models.BatchOpEnrich:              {},
	models.BatchOpReenrich:            {},
	models.BatchOpRetag:               {},
	models.BatchOpGenerateCollections: {},
	models.BatchOpExport:              {},
}

func (h *BatchHandler) Submit(c *gin.Context) {
	var req dto.SubmitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := validOperations[req.Operation]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown operation"})
		return
	}

	job, err := h.queue.Submit(req.Operation, req.AssetIDs, req.Priority)
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFault) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, dto.BatchJobResponse{Job: job})
}

func (h *BatchHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.queue.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.BatchJobResponse{Job: job})
}

func (h *BatchHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, dto.BatchJobListResponse{Jobs: h.queue.List()})
}

func (h *BatchHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	if err := h.queue.Cancel(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": id})
}
