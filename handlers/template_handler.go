package handlers

import (
	"errors"
	"net/http"

	"github.com/AbdallahFarid/ocr2/models"
	"github.com/AbdallahFarid/ocr2/service"

	"github.com/gin-gonic/gin"
)

// TemplateHandler handles HTTP requests for bank template management
type TemplateHandler struct {
	registry *service.TemplateRegistry
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(registry *service.TemplateRegistry) *TemplateHandler {
	return &TemplateHandler{registry: registry}
}

// PublishTemplate handles POST /api/templates
func (h *TemplateHandler) PublishTemplate(c *gin.Context) {
	var tpl models.BankTemplate
	if err := c.ShouldBindJSON(&tpl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	published, err := h.registry.Publish(c.Request.Context(), tpl)
	if err != nil {
		if errors.Is(err, service.ErrTemplateInvalid) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "TEMPLATE_INVALID",
					"message": err.Error(),
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PUBLISH_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"template": published,
	})
}

// GetTemplate handles GET /api/templates/:bank
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	bank := c.Param("bank")
	tpl := h.registry.Resolve(bank)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"template": tpl,
	})
}

// ListBanks handles GET /api/templates
func (h *TemplateHandler) ListBanks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"banks":   h.registry.Banks(),
	})
}
