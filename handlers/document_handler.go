package handlers

import (
	"bytes"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AbdallahFarid/ocr2/models"
	"github.com/AbdallahFarid/ocr2/service"
	"github.com/AbdallahFarid/ocr2/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentHandler handles HTTP requests for cheque ingestion and lookup
type DocumentHandler struct {
	docs             service.DocumentStore
	pipeline         *service.PipelineService
	storage          storage.Storage
	maxFileSize      int64
	allowedMimeTypes map[string]bool
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(docs service.DocumentStore, pipeline *service.PipelineService, storage storage.Storage, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{
		docs:        docs,
		pipeline:    pipeline,
		storage:     storage,
		maxFileSize: maxFileSize,
		allowedMimeTypes: map[string]bool{
			"image/jpeg": true,
			"image/png":  true,
		},
	}
}

// IngestDocument handles POST /api/documents
func (h *DocumentHandler) IngestDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_IMAGE",
				"message": "Cheque image is required",
			},
		})
		return
	}

	if fileHeader.Size > h.maxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_TOO_LARGE",
				"message": "Image exceeds the maximum upload size",
			},
		})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		name := strings.ToLower(fileHeader.Filename)
		if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") {
			mimeType = "image/jpeg"
		} else if strings.HasSuffix(name, ".png") {
			mimeType = "image/png"
		}
	}
	if !h.allowedMimeTypes[mimeType] {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNSUPPORTED_MEDIA_TYPE",
				"message": "Only JPEG and PNG cheque images are accepted",
			},
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_OPEN_ERROR",
				"message": err.Error(),
			},
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_READ_ERROR",
				"message": err.Error(),
			},
		})
		return
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_IMAGE",
				"message": "Image could not be decoded",
			},
		})
		return
	}

	// Optional bank hint from the capture subsystem. The pipeline only
	// honors it when it names a registered template.
	bank := models.BankUnknown
	if hint := strings.ToUpper(strings.TrimSpace(c.PostForm("bank"))); hint != "" {
		bank = hint
	}

	doc := &models.Document{
		ID:               uuid.New(),
		Bank:             bank,
		Status:           models.StatusReceived,
		OriginalFilename: fileHeader.Filename,
		Fields:           models.FieldList{},
		IngestedAt:       time.Now().UTC(),
	}

	storagePath, err := h.storage.Upload(c.Request.Context(), doc.ID, fileHeader.Filename, bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UPLOAD_FAILED",
				"message": err.Error(),
			},
		})
		return
	}
	doc.ImagePath = storagePath

	if err := h.docs.Create(c.Request.Context(), doc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CREATE_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	if err := h.pipeline.Process(c.Request.Context(), doc, img); err != nil {
		if errors.Is(err, service.ErrModelExhausted) {
			c.JSON(http.StatusBadGateway, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MODEL_UNAVAILABLE",
					"message": "OCR model calls failed after retries",
				},
				"document": doc,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROCESSING_FAILED",
				"message": err.Error(),
			},
			"document": doc,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"document": doc,
	})
}

// GetDocument handles GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
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

	doc, err := h.docs.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FETCH_FAILED",
				"message": err.Error(),
			},
		})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DOCUMENT_NOT_FOUND",
				"message": "Document not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"document": doc,
	})
}

// ListDocuments handles GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var status *models.DocumentStatus
	if s := c.Query("status"); s != "" {
		st := models.DocumentStatus(s)
		status = &st
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := h.docs.List(c.Request.Context(), status, limit, offset)
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
