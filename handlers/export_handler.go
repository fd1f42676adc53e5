package handlers

import (
	"errors"
	"net/http"

	"github.com/AbdallahFarid/ocr2/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ExportHandler handles HTTP requests for downstream export
type ExportHandler struct {
	export *service.ExportService
}

// NewExportHandler creates a new export handler
func NewExportHandler(export *service.ExportService) *ExportHandler {
	return &ExportHandler{export: export}
}

// ExportDocument handles GET /api/documents/:id/export
func (h *ExportHandler) ExportDocument(c *gin.Context) {
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

	payload, err := h.export.Export(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDocumentNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DOCUMENT_NOT_FOUND",
					"message": "Document not found",
				},
			})
		case errors.Is(err, service.ErrNotExportable):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_EXPORTABLE",
					"message": err.Error(),
				},
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "EXPORT_FAILED",
					"message": err.Error(),
				},
			})
		}
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}
