package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/AbdallahFarid/ocr2/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReviewHandler handles HTTP requests for the human review queue
type ReviewHandler struct {
	review *service.ReviewService
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(review *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{review: review}
}

// ListQueue handles GET /api/review
func (h *ReviewHandler) ListQueue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := h.review.ListReviewQueue(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "LIST_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"documents": docs,
		"count":     len(docs),
	})
}

// correctionsRequest is the body for POST /api/review/:id/corrections
type correctionsRequest struct {
	Corrections []service.Correction `json:"corrections" binding:"required,min=1,dive"`
}

// ApplyCorrections handles POST /api/review/:id/corrections
func (h *ReviewHandler) ApplyCorrections(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_DOCUMENT_ID",
				"message": "Invalid document id format",
			},
		})
		return
	}

	var req correctionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	doc, err := h.review.ApplyCorrections(c.Request.Context(), id, req.Corrections)
	if err != nil {
		status, code := reviewErrorStatus(err)
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"document": doc,
	})
}

// ListCorrections handles GET /api/review/:id/corrections
func (h *ReviewHandler) ListCorrections(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_DOCUMENT_ID",
				"message": "Invalid document id format",
			},
		})
		return
	}

	events, err := h.review.Corrections(c.Request.Context(), id)
	if err != nil {
		status, code := reviewErrorStatus(err)
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"corrections": events,
		"count":       len(events),
	})
}

// GetAuditTrail handles GET /api/documents/:id/audit
func (h *ReviewHandler) GetAuditTrail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_DOCUMENT_ID",
				"message": "Invalid document id format",
			},
		})
		return
	}

	trail, err := h.review.GetAuditTrail(c.Request.Context(), id)
	if err != nil {
		status, code := reviewErrorStatus(err)
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"audit":   trail,
	})
}

// Finalize handles POST /api/review/:id/finalize
func (h *ReviewHandler) Finalize(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_DOCUMENT_ID",
				"message": "Invalid document id format",
			},
		})
		return
	}

	doc, err := h.review.Finalize(c.Request.Context(), id)
	if err != nil {
		status, code := reviewErrorStatus(err)
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"document": doc,
	})
}

func reviewErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrDocumentNotFound):
		return http.StatusNotFound, "DOCUMENT_NOT_FOUND"
	case errors.Is(err, service.ErrNotReviewable):
		return http.StatusConflict, "NOT_REVIEWABLE"
	case errors.Is(err, service.ErrUnknownField):
		return http.StatusBadRequest, "UNKNOWN_FIELD"
	default:
		return http.StatusInternalServerError, "REVIEW_FAILED"
	}
}
