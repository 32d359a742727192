package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/medialib/internal/library"
	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/pkg/dto"
)

type SearchHandler struct {
	index *library.Index
}

func NewSearchHandler(index *library.Index) *SearchHandler {
	return &SearchHandler{index: index}
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q := library.Query{
		Text:       req.Text,
		Tags:       req.Tags,
		DateFrom:   req.DateFrom,
		DateTo:     req.DateTo,
		PersonID:   req.PersonID,
		MinQuality: req.MinQuality,
		MaxQuality: req.MaxQuality,
		SortBy:     library.SortKey(req.SortBy),
		SortAsc:    req.SortAsc,
	}
	if req.Kind != "" {
		kind := models.MediaKind(req.Kind)
		q.Kind = &kind
	}

	assets, err := h.index.Search(q)
	if err != nil {
		if errors.Is(err, library.ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total := len(assets)
	if req.Offset > 0 {
		if req.Offset >= total {
			assets = nil
		} else {
			assets = assets[req.Offset:]
		}
	}
	if req.Limit > 0 && len(assets) > req.Limit {
		assets = assets[:req.Limit]
	}

	c.JSON(http.StatusOK, dto.SearchResponse{Total: total, Assets: assets})
}
