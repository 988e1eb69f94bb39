package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/srv328/coffee-classification/internal/classifier"
	"github.com/srv328/coffee-classification/internal/config"
	"github.com/srv328/coffee-classification/internal/network"
	"github.com/srv328/coffee-classification/internal/repository"
)

// newLogger builds a zap logger for the configured mode, optionally
// overriding its level.
func newLogger(mode, level string) (*zap.Logger, error) {
	var zcfg zap.Config
	switch mode {
	case "development":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}

// bootstrap loads the config, builds the logger, connects to the database
// and applies migrations.
func bootstrap(configPath string) (*config.Config, *zap.Logger, *sqlx.DB, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, nil, nil, err
	}

	if cfg.Database.Type == repository.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.URL), 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := repository.NewDB(cfg.Database.Type, cfg.Database.URL, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repository.MigrateDB(db, logger); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return cfg, logger, db, nil
}

// classifierOptions maps the model section onto training options.
func classifierOptions(cfg *config.Config) classifier.Options {
	return classifier.Options{
		SamplesPerType: cfg.Model.SamplesPerType,
		Network: network.Config{
			Hidden:          cfg.Model.HiddenLayers,
			Dropout:         *cfg.Model.Dropout,
			LearningRate:    cfg.Model.LearningRate,
			Epochs:          cfg.Model.Epochs,
			BatchSize:       cfg.Model.BatchSize,
			ValidationSplit: *cfg.Model.ValidationSplit,
			Seed:            cfg.Model.Seed,
		},
	}
}

func newClassifier(cfg *config.Config, db *sqlx.DB, logger *zap.Logger, opts ...classifier.Option) *classifier.Classifier {
	if dir := filepath.Dir(cfg.Model.ArtifactPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("Failed to create artifact directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	kbRepo := repository.NewKnowledgeBaseRepository(db, logger)
	runs := repository.NewTrainingRunRepository(db, logger)
	opts = append([]classifier.Option{classifier.WithRunRecorder(runs)}, opts...)
	return classifier.New(kbRepo, classifier.NewFileStore(cfg.Model.ArtifactPath), classifierOptions(cfg), logger, opts...)
}
