package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/classifier"
	"github.com/srv328/coffee-classification/internal/metrics"
	"github.com/srv328/coffee-classification/internal/refresher"
	"github.com/srv328/coffee-classification/internal/repository"
	"github.com/srv328/coffee-classification/internal/server"
	"github.com/srv328/coffee-classification/internal/service"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, logger, db, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer db.Close()
	defer func() {
		_ = logger.Sync()
	}()

	gin.SetMode(cfg.Server.GinMode)
	m := metrics.New()

	model := newClassifier(cfg, db, logger, classifier.WithObserver(m))
	if err := model.Initialize(ctx); err != nil {
		return err
	}
	logger.Info("Classifier initialized", zap.String("state", model.State().String()))

	go refresher.New(model, cfg.PollInterval(), logger).Run(ctx)

	kbRepo := repository.NewKnowledgeBaseRepository(db, logger)
	srv := server.NewServer(server.Deps{
		Auth:           service.NewAuthService(repository.NewExpertRepository(db, logger), cfg.Auth.JWTSecret, cfg.TokenTTL(), logger),
		Classification: service.NewClassificationService(kbRepo, model, logger),
		KnowledgeBase:  service.NewKnowledgeBaseService(kbRepo, logger),
		Model:          model,
		Runs:           repository.NewTrainingRunRepository(db, logger),
		Metrics:        m,
		Ping:           db.PingContext,
	}, logger)

	if err := srv.Run(ctx, ":"+cfg.Server.Port); err != nil {
		return err
	}
	logger.Info("Application stopped.")
	return nil
}
