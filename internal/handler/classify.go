package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/rules"
	"github.com/srv328/coffee-classification/internal/service"
)

// Classifier is the classification surface the handler serves.
type Classifier interface {
	ClassifyStrict(ctx context.Context, in service.RawInput) (*rules.StrictResult, error)
	ClassifyStatistical(ctx context.Context, in service.RawInput) ([]rules.Score, error)
	ClassifyLearned(ctx context.Context, in service.RawInput) (*service.LearnedResult, error)
}

// ClassificationObserver counts classification requests.
type ClassificationObserver interface {
	ObserveClassification(method, outcome string)
}

// Classification outcomes reported to the observer.
const (
	OutcomeSuccess    = "success"
	OutcomeDegenerate = "degenerate"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"
)

type ClassifyRequest struct {
	Method          string            `json:"method"`
	Characteristics *service.RawInput `json:"characteristics" binding:"required"`
}

type ClassifyHandler struct {
	svc      Classifier
	observer ClassificationObserver
	logger   *zap.Logger
}

func NewClassifyHandler(svc Classifier, observer ClassificationObserver, logger *zap.Logger) *ClassifyHandler {
	return &ClassifyHandler{svc: svc, observer: observer, logger: logger}
}

// AnalyzeStatic runs the strict rule match.
// POST /api/specialist/analyze-static
func (h *ClassifyHandler) AnalyzeStatic(c *gin.Context) {
	h.classify(c, service.MethodStrict)
}

// AnalyzeStatistical ranks types by partial-credit score.
// POST /api/specialist/analyze-statistical
func (h *ClassifyHandler) AnalyzeStatistical(c *gin.Context) {
	h.classify(c, service.MethodStatistical)
}

// AnalyzeML asks the trained network.
// POST /api/specialist/analyze-ml
func (h *ClassifyHandler) AnalyzeML(c *gin.Context) {
	h.classify(c, service.MethodLearned)
}

// Classify picks the method from the request body, statistical by default.
// POST /api/classify
func (h *ClassifyHandler) Classify(c *gin.Context) {
	h.classify(c, "")
}

func (h *ClassifyHandler) classify(c *gin.Context, method string) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.observe(method, OutcomeRejected)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid characteristics: " + err.Error()})
		return
	}
	if method == "" {
		parsed, err := service.ParseMethod(req.Method)
		if err != nil {
			h.observe("unknown", OutcomeRejected)
			respondError(c, h.logger, err, "Classification failed")
			return
		}
		method = parsed
	}

	ctx := c.Request.Context()
	in := *req.Characteristics
	var (
		result  any
		err     error
		outcome = OutcomeSuccess
	)
	switch method {
	case service.MethodStrict:
		result, err = h.svc.ClassifyStrict(ctx, in)
	case service.MethodStatistical:
		var scores []rules.Score
		scores, err = h.svc.ClassifyStatistical(ctx, in)
		if scores == nil {
			scores = []rules.Score{}
		}
		result = scores
	case service.MethodLearned:
		var learned *service.LearnedResult
		learned, err = h.svc.ClassifyLearned(ctx, in)
		if err == nil && learned.Degenerate {
			outcome = OutcomeDegenerate
		}
		result = learned
	}

	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			h.observe(method, OutcomeError)
		} else {
			h.observe(method, OutcomeRejected)
		}
		respondError(c, h.logger, err, "Classification failed")
		return
	}
	h.observe(method, outcome)
	c.JSON(http.StatusOK, result)
}

func (h *ClassifyHandler) observe(method, outcome string) {
	if h.observer == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	h.observer.ObserveClassification(method, outcome)
}
