package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/models"
	"github.com/srv328/coffee-classification/internal/service"
)

// KnowledgeBaseHandler serves the read-only specialist views and the expert
// editing endpoints.
type KnowledgeBaseHandler struct {
	svc    *service.KnowledgeBaseService
	logger *zap.Logger
}

func NewKnowledgeBaseHandler(svc *service.KnowledgeBaseService, logger *zap.Logger) *KnowledgeBaseHandler {
	return &KnowledgeBaseHandler{svc: svc, logger: logger}
}

type CreateCoffeeTypeRequest struct {
	Name string `json:"name" binding:"required"`
}

type NumericRangeRequest struct {
	MinValue *float64 `json:"min_value" binding:"required"`
	MaxValue *float64 `json:"max_value" binding:"required"`
}

type ValuesRequest struct {
	Values []string `json:"values"`
}

type LimitsRequest struct {
	Limits *models.NumericLimits `json:"limits"`
}

// ListCoffeeTypes GET /api/coffee-types
func (h *KnowledgeBaseHandler) ListCoffeeTypes(c *gin.Context) {
	types, err := h.svc.ListCoffeeTypes(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch coffee types")
		return
	}
	c.JSON(http.StatusOK, types)
}

// ListCharacteristics GET /api/characteristics
func (h *KnowledgeBaseHandler) ListCharacteristics(c *gin.Context) {
	chars, err := h.svc.ListCharacteristics(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch characteristics")
		return
	}
	c.JSON(http.StatusOK, chars)
}

// KnowledgeBase GET /api/specialist/knowledge-base
func (h *KnowledgeBaseHandler) KnowledgeBase(c *gin.Context) {
	view, err := h.svc.KnowledgeBase(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch knowledge base")
		return
	}
	c.JSON(http.StatusOK, view)
}

// Completeness GET /api/expert/completeness
func (h *KnowledgeBaseHandler) Completeness(c *gin.Context) {
	report, err := h.svc.Completeness(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to check completeness")
		return
	}
	c.JSON(http.StatusOK, report)
}

// TypeDetails GET /api/expert/coffee-types/:id
func (h *KnowledgeBaseHandler) TypeDetails(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	details, err := h.svc.TypeDetails(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch coffee type")
		return
	}
	c.JSON(http.StatusOK, details)
}

// CreateCoffeeType POST /api/expert/coffee-types
func (h *KnowledgeBaseHandler) CreateCoffeeType(c *gin.Context) {
	var req CreateCoffeeTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ct, err := h.svc.CreateCoffeeType(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create coffee type")
		return
	}
	c.JSON(http.StatusCreated, ct)
}

// DeleteCoffeeType DELETE /api/expert/coffee-types/:id
func (h *KnowledgeBaseHandler) DeleteCoffeeType(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteCoffeeType(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "Failed to delete coffee type")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Coffee type deleted"})
}

// CreateCharacteristic POST /api/expert/characteristics
func (h *KnowledgeBaseHandler) CreateCharacteristic(c *gin.Context) {
	var req service.CharacteristicInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ch, err := h.svc.CreateCharacteristic(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create characteristic")
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// DeleteCharacteristic DELETE /api/expert/characteristics/:id
func (h *KnowledgeBaseHandler) DeleteCharacteristic(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteCharacteristic(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "Failed to delete characteristic")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Characteristic deleted"})
}

// SetLimits PUT /api/expert/characteristics/:id/limits
func (h *KnowledgeBaseHandler) SetLimits(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req LimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SetNumericLimits(c.Request.Context(), id, req.Limits); err != nil {
		respondError(c, h.logger, err, "Failed to update limits")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Limits updated"})
}

// Vocabulary GET /api/expert/characteristics/:id/values
func (h *KnowledgeBaseHandler) Vocabulary(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	values, err := h.svc.Vocabulary(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch values")
		return
	}
	c.JSON(http.StatusOK, gin.H{"characteristic_id": id, "values": values})
}

// ReplaceVocabulary PUT /api/expert/characteristics/:id/values
func (h *KnowledgeBaseHandler) ReplaceVocabulary(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req ValuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.ReplaceVocabulary(c.Request.Context(), id, req.Values); err != nil {
		respondError(c, h.logger, err, "Failed to update values")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Values updated"})
}

// SetNumericRange PUT /api/expert/coffee-types/:id/numeric/:characteristic_id
func (h *KnowledgeBaseHandler) SetNumericRange(c *gin.Context) {
	typeID, ok := idParam(c, "id")
	if !ok {
		return
	}
	charID, ok := idParam(c, "characteristic_id")
	if !ok {
		return
	}
	var req NumericRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SetNumericRange(c.Request.Context(), typeID, charID, *req.MinValue, *req.MaxValue); err != nil {
		respondError(c, h.logger, err, "Failed to set range")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Range saved"})
}

// SetCategoricalValues PUT /api/expert/coffee-types/:id/categorical/:characteristic_id
func (h *KnowledgeBaseHandler) SetCategoricalValues(c *gin.Context) {
	typeID, ok := idParam(c, "id")
	if !ok {
		return
	}
	charID, ok := idParam(c, "characteristic_id")
	if !ok {
		return
	}
	var req ValuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SetCategoricalValues(c.Request.Context(), typeID, charID, req.Values); err != nil {
		respondError(c, h.logger, err, "Failed to set values")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Values saved"})
}

// RemoveAssignment DELETE /api/expert/coffee-types/:id/characteristics/:characteristic_id
func (h *KnowledgeBaseHandler) RemoveAssignment(c *gin.Context) {
	typeID, ok := idParam(c, "id")
	if !ok {
		return
	}
	charID, ok := idParam(c, "characteristic_id")
	if !ok {
		return
	}
	if err := h.svc.RemoveAssignment(c.Request.Context(), typeID, charID); err != nil {
		respondError(c, h.logger, err, "Failed to remove characteristic")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Characteristic removed from coffee type"})
}
