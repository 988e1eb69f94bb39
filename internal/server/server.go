package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/handler"
	"github.com/srv328/coffee-classification/internal/metrics"
	"github.com/srv328/coffee-classification/internal/middleware"
	"github.com/srv328/coffee-classification/internal/repository"
	"github.com/srv328/coffee-classification/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Deps are the components the HTTP layer serves.
type Deps struct {
	Auth           service.AuthService
	Classification handler.Classifier
	KnowledgeBase  *service.KnowledgeBaseService
	Model          handler.ModelManager
	Runs           repository.TrainingRunRepository
	Metrics        *metrics.Metrics
	// Ping reports whether the database is reachable; nil skips the check.
	Ping func(ctx context.Context) error
}

type Server struct {
	router *gin.Engine
	deps   Deps
	logger *zap.Logger
}

func NewServer(deps Deps, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), middleware.CORS())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}

	s := &Server{
		router: router,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	var observer handler.ClassificationObserver
	if s.deps.Metrics != nil {
		observer = s.deps.Metrics
	}
	authHandler := handler.NewAuthHandler(s.deps.Auth, s.logger)
	classifyHandler := handler.NewClassifyHandler(s.deps.Classification, observer, s.logger)
	kbHandler := handler.NewKnowledgeBaseHandler(s.deps.KnowledgeBase, s.logger)
	modelHandler := handler.NewModelHandler(s.deps.Model, s.deps.Runs, s.logger)

	s.router.GET("/health", s.health)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := s.router.Group("/api")
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)

		api.GET("/coffee-types", kbHandler.ListCoffeeTypes)
		api.GET("/characteristics", kbHandler.ListCharacteristics)
		api.POST("/classify", classifyHandler.Classify)

		specialist := api.Group("/specialist")
		specialist.GET("/knowledge-base", kbHandler.KnowledgeBase)
		specialist.POST("/analyze-static", classifyHandler.AnalyzeStatic)
		specialist.POST("/analyze-statistical", classifyHandler.AnalyzeStatistical)
		specialist.POST("/analyze-ml", classifyHandler.AnalyzeML)

		api.GET("/model/status", modelHandler.Status)
		api.GET("/model/runs", modelHandler.ListRuns)
		api.GET("/model/runs/stats", modelHandler.RunStats)
		api.GET("/model/runs/:id", modelHandler.GetRun)
	}

	authRequired := api.Group("")
	authRequired.Use(middleware.AuthMiddleware(s.deps.Auth, s.logger))
	{
		authRequired.POST("/model/retrain", modelHandler.Retrain)

		expert := authRequired.Group("/expert")
		expert.GET("/completeness", kbHandler.Completeness)

		expert.POST("/coffee-types", kbHandler.CreateCoffeeType)
		expert.GET("/coffee-types/:id", kbHandler.TypeDetails)
		expert.DELETE("/coffee-types/:id", kbHandler.DeleteCoffeeType)
		expert.PUT("/coffee-types/:id/numeric/:characteristic_id", kbHandler.SetNumericRange)
		expert.PUT("/coffee-types/:id/categorical/:characteristic_id", kbHandler.SetCategoricalValues)
		expert.DELETE("/coffee-types/:id/characteristics/:characteristic_id", kbHandler.RemoveAssignment)

		expert.POST("/characteristics", kbHandler.CreateCharacteristic)
		expert.DELETE("/characteristics/:id", kbHandler.DeleteCharacteristic)
		expert.PUT("/characteristics/:id/limits", kbHandler.SetLimits)
		expert.GET("/characteristics/:id/values", kbHandler.Vocabulary)
		expert.PUT("/characteristics/:id/values", kbHandler.ReplaceVocabulary)
	}
}

func (s *Server) health(c *gin.Context) {
	status := gin.H{"status": "ok", "model": s.deps.Model.Status().State}
	if s.deps.Ping != nil {
		if err := s.deps.Ping(c.Request.Context()); err != nil {
			s.logger.Warn("Health check: database unreachable", zap.Error(err))
			status["status"] = "degraded"
			status["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
	}
	c.JSON(http.StatusOK, status)
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
