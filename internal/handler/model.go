package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/classifier"
	"github.com/srv328/coffee-classification/internal/models"
	"github.com/srv328/coffee-classification/internal/repository"
)

// ModelManager is the part of the classifier the model endpoints drive.
type ModelManager interface {
	Status() classifier.Status
	Retrain(ctx context.Context, trigger string) (*models.TrainingRun, error)
}

// ModelHandler handles model status and training history requests.
type ModelHandler struct {
	model  ModelManager
	runs   repository.TrainingRunRepository
	logger *zap.Logger
}

func NewModelHandler(model ModelManager, runs repository.TrainingRunRepository, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{model: model, runs: runs, logger: logger}
}

// Status returns the state of the served model.
// GET /api/model/status
func (h *ModelHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.model.Status())
}

// Retrain forces a training run from the current knowledge base.
// POST /api/model/retrain
func (h *ModelHandler) Retrain(c *gin.Context) {
	run, err := h.model.Retrain(c.Request.Context(), classifier.TriggerManual)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Manual retrain failed", zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error(), "run": run})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Model retrained",
		"run":     run,
		"status":  h.model.Status(),
	})
}

// ListRuns returns the most recent training runs.
// GET /api/model/runs?limit=N
func (h *ModelHandler) ListRuns(c *gin.Context) {
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch training runs")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns one training run.
// GET /api/model/runs/:id
func (h *ModelHandler) GetRun(c *gin.Context) {
	run, err := h.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch training run")
		return
	}
	c.JSON(http.StatusOK, run)
}

// RunStats returns counts of training runs by status and trigger.
// GET /api/model/runs/stats
func (h *ModelHandler) RunStats(c *gin.Context) {
	stats, err := h.runs.GetRunStats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch training statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}
