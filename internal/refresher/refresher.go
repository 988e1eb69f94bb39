// Package refresher retrains the classifier in the background after the
// knowledge base changes.
package refresher

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Model is checked for staleness on every tick.
type Model interface {
	RefreshIfStale(ctx context.Context) (bool, error)
}

// Refresher polls the model so the first request after an edit does not pay
// for the retrain.
type Refresher struct {
	model        Model
	logger       *zap.Logger
	pollInterval time.Duration
}

func New(model Model, pollInterval time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{model: model, pollInterval: pollInterval, logger: logger}
}

// Run polls until ctx is cancelled. A non-positive interval returns at once.
func (r *Refresher) Run(ctx context.Context) {
	if r.pollInterval <= 0 {
		r.logger.Info("Model refresher disabled")
		return
	}
	r.logger.Info("Model refresher started", zap.Duration("interval", r.pollInterval))

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Model refresher stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	retrained, err := r.model.RefreshIfStale(ctx)
	if err != nil {
		r.logger.Warn("Background model refresh failed", zap.Error(err))
		return
	}
	if retrained {
		r.logger.Info("Model refreshed after knowledge base change")
	}
}
