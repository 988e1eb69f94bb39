// Package classifier owns the learned coffee classifier: its trained network,
// normalizer and feature schema, their persistence, and retraining when the
// knowledge base changes.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/srv328/coffee-classification/internal/features"
	"github.com/srv328/coffee-classification/internal/models"
	"github.com/srv328/coffee-classification/internal/network"
)

var (
	ErrSchemaDrift = errors.New("artifact schema differs from knowledge base")
	errStale       = errors.New("artifact predates knowledge base")
)

// Retrain triggers, recorded on each training run.
const (
	TriggerStartup     = "startup"
	TriggerStale       = "stale"
	TriggerSchemaDrift = "schema_drift"
	TriggerManual      = "manual"
)

type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateLoading
	StateTraining
	StateReady
	StateDegenerate
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateLoading:
		return "loading"
	case StateTraining:
		return "training"
	case StateReady:
		return "ready"
	case StateDegenerate:
		return "degenerate"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// CatalogSource reads the knowledge base.
type CatalogSource interface {
	LoadCatalog(ctx context.Context) (*models.Catalog, error)
	LastModified(ctx context.Context) (time.Time, error)
}

// RunRecorder stores the history of training runs.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *models.TrainingRun) error
	FinishRun(ctx context.Context, run *models.TrainingRun) error
}

// Observer receives lifecycle events, typically for metrics.
type Observer interface {
	ObserveState(s State)
	ObserveTraining(status string, elapsed time.Duration)
}

// Probability is the predicted share of one coffee type.
type Probability struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// Prediction is a distribution over every known coffee type in id order.
// Degenerate is set when no usable model exists and the distribution is
// uniform. With no coffee types Classes is empty.
type Prediction struct {
	Classes    []Probability `json:"classes"`
	Degenerate bool          `json:"degenerate"`
	RunID      string        `json:"run_id,omitempty"`
}

// Best returns the most probable class. Ties go to the lower id.
func (p Prediction) Best() (Probability, bool) {
	if len(p.Classes) == 0 {
		return Probability{}, false
	}
	best := p.Classes[0]
	for _, c := range p.Classes[1:] {
		if c.Probability > best.Probability {
			best = c
		}
	}
	return best, true
}

// Status describes the model currently served.
type Status struct {
	State                string     `json:"state"`
	RunID                string     `json:"run_id,omitempty"`
	TrainedAt            *time.Time `json:"trained_at,omitempty"`
	KnowledgeBaseVersion *time.Time `json:"knowledge_base_version,omitempty"`
	SchemaFingerprint    string     `json:"schema_fingerprint,omitempty"`
	FeatureWidth         int        `json:"feature_width"`
	ClassCount           int        `json:"class_count"`
	LastError            string     `json:"last_error,omitempty"`
}

// Classifier serves predictions from an immutable trained snapshot and
// replaces it when the knowledge base changes. Retraining has a single owner;
// concurrent callers wait for it and predictions keep using the previous
// snapshot meanwhile.
type Classifier struct {
	source   CatalogSource
	store    Store
	opts     Options
	logger   *zap.Logger
	runs     RunRecorder
	observer Observer

	group singleflight.Group

	mu       sync.RWMutex
	state    State
	current  *model
	fallback []Class
	// failedVersion is the knowledge base version whose training last failed.
	failedVersion *time.Time
	lastErr       string
}

type Option func(*Classifier)

func WithRunRecorder(r RunRecorder) Option {
	return func(c *Classifier) { c.runs = r }
}

func WithObserver(o Observer) Option {
	return func(c *Classifier) { c.observer = o }
}

func New(source CatalogSource, store Store, opts Options, logger *zap.Logger, options ...Option) *Classifier {
	c := &Classifier{
		source: source,
		store:  store,
		opts:   opts,
		logger: logger,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Initialize loads the persisted artifact, or trains a new model when the
// artifact is missing, unreadable, stale or built for another schema.
// Training failures leave the classifier degenerate and are not returned.
func (c *Classifier) Initialize(ctx context.Context) error {
	c.setState(StateInitializing)

	catalog, err := c.source.LoadCatalog(ctx)
	if err != nil {
		c.setState(StateUninitialized)
		return fmt.Errorf("load catalog: %w", err)
	}

	c.setState(StateLoading)
	m, err := c.load(catalog)
	if err == nil {
		c.install(m)
		c.logger.Info("Loaded model artifact",
			zap.String("path", c.store.Path()),
			zap.String("run_id", m.runID),
			zap.Int("classes", len(m.classes)),
			zap.Int("feature_width", m.schema.Width()))
		return nil
	}

	trigger := TriggerStartup
	switch {
	case errors.Is(err, ErrSchemaDrift):
		trigger = TriggerSchemaDrift
		c.logger.Warn("Model artifact schema drifted, retraining", zap.Error(err))
	case errors.Is(err, errStale):
		trigger = TriggerStale
		c.logger.Info("Model artifact is stale, retraining", zap.Error(err))
	case errors.Is(err, ErrArtifactNotFound):
		c.logger.Info("No model artifact found, training")
	default:
		c.logger.Warn("Failed to load model artifact, retraining", zap.Error(err))
	}

	if _, err := c.exclusive(ctx, func(ctx context.Context) (*models.TrainingRun, error) {
		return c.train(ctx, catalog, trigger)
	}); err != nil {
		c.logger.Warn("Initial training failed", zap.Error(err))
	}
	return nil
}

// load reads the stored artifact and checks it still describes catalog.
func (c *Classifier) load(catalog *models.Catalog) (*model, error) {
	a, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if live := features.BuildSchema(catalog).Fingerprint(); live != a.Fingerprint {
		return nil, fmt.Errorf("%w: artifact %s, live %s", ErrSchemaDrift, a.Fingerprint, live)
	}
	if !slices.Equal(a.Classes, classesOf(catalog)) {
		return nil, fmt.Errorf("%w: coffee types changed", ErrSchemaDrift)
	}
	if !a.KBVersion.Equal(catalog.Version) {
		return nil, fmt.Errorf("%w: trained at %s, knowledge base at %s", errStale, a.KBVersion, catalog.Version)
	}
	return modelFromArtifact(a)
}

// RefreshIfStale retrains when the knowledge base changed since the current
// model was trained. It reports whether a retrain was attempted. A version
// whose training already failed is not retried until it changes again.
func (c *Classifier) RefreshIfStale(ctx context.Context) (bool, error) {
	version, err := c.source.LastModified(ctx)
	if err != nil {
		return false, fmt.Errorf("read knowledge base version: %w", err)
	}

	c.mu.RLock()
	current, failed := c.current, c.failedVersion
	c.mu.RUnlock()

	if current != nil && current.kbVersion.Equal(version) {
		return false, nil
	}
	if failed != nil && failed.Equal(version) {
		return false, nil
	}

	_, err = c.Retrain(ctx, TriggerStale)
	return true, err
}

// Retrain reads the knowledge base and trains a new model. A call made while
// another retrain is running waits for it and shares its result.
func (c *Classifier) Retrain(ctx context.Context, trigger string) (*models.TrainingRun, error) {
	return c.exclusive(ctx, func(ctx context.Context) (*models.TrainingRun, error) {
		catalog, err := c.source.LoadCatalog(ctx)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		return c.train(ctx, catalog, trigger)
	})
}

func (c *Classifier) exclusive(ctx context.Context, fn func(context.Context) (*models.TrainingRun, error)) (*models.TrainingRun, error) {
	// The run outlives the caller that happened to start it.
	ctx = context.WithoutCancel(ctx)
	v, err, _ := c.group.Do("train", func() (any, error) {
		return fn(ctx)
	})
	run, _ := v.(*models.TrainingRun)
	return run, err
}

func (c *Classifier) train(ctx context.Context, catalog *models.Catalog, trigger string) (*models.TrainingRun, error) {
	started := time.Now()
	run := &models.TrainingRun{
		ID:        uuid.NewString(),
		Status:    models.RunStatusRunning,
		Trigger:   trigger,
		StartedAt: started.UTC(),
	}
	if c.runs != nil {
		if err := c.runs.CreateRun(ctx, run); err != nil {
			c.logger.Warn("Failed to record training run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	c.setState(StateTraining)
	c.logger.Info("Training classifier",
		zap.String("run_id", run.ID),
		zap.String("trigger", trigger),
		zap.Int("coffee_types", len(catalog.Types)))

	m, hist, err := fit(catalog, c.opts, func(s network.EpochStats) {
		if s.Epoch%10 == 0 {
			c.logger.Debug("Epoch finished",
				zap.Int("epoch", s.Epoch),
				zap.Float64("loss", s.Loss),
				zap.Float64("accuracy", s.Accuracy),
				zap.Float64("val_loss", s.ValidationLoss),
				zap.Float64("val_accuracy", s.ValidationAccuracy))
		}
	})

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.ClassCount = len(catalog.Types)

	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = err.Error()
		c.markFailed(catalog, err)
		c.logger.Warn("Training failed", zap.String("run_id", run.ID), zap.Error(err))
		c.finishRun(ctx, run, time.Since(started))
		return run, err
	}

	m.runID = run.ID
	m.trainedAt = finished

	last := hist.Last()
	run.Status = models.RunStatusSucceeded
	run.SampleCount = hist.TrainSamples + hist.ValidateSamples
	run.FeatureWidth = m.schema.Width()
	run.TrainLoss = last.Loss
	run.TrainAccuracy = last.Accuracy
	run.ValidationLoss = last.ValidationLoss
	run.ValidationAccuracy = last.ValidationAccuracy
	run.SchemaFingerprint = m.fingerprint

	if err := c.persist(m); err != nil {
		// The previous file stays on disk; the new model is still served.
		c.logger.Warn("Failed to persist model artifact",
			zap.String("run_id", run.ID), zap.String("path", c.store.Path()), zap.Error(err))
	}
	c.install(m)

	c.logger.Info("Training finished",
		zap.String("run_id", run.ID),
		zap.Int("samples", run.SampleCount),
		zap.Float64("loss", run.TrainLoss),
		zap.Float64("val_accuracy", run.ValidationAccuracy),
		zap.Float64("synthetic_accuracy", m.syntheticAccuracy),
		zap.Duration("elapsed", time.Since(started)))
	c.finishRun(ctx, run, time.Since(started))
	return run, nil
}

func (c *Classifier) persist(m *model) error {
	a, err := m.artifact()
	if err != nil {
		return err
	}
	return c.store.Save(a)
}

func (c *Classifier) finishRun(ctx context.Context, run *models.TrainingRun, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveTraining(run.Status, elapsed)
	}
	if c.runs == nil {
		return
	}
	if err := c.runs.FinishRun(ctx, run); err != nil {
		c.logger.Warn("Failed to record training result", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (c *Classifier) install(m *model) {
	c.mu.Lock()
	c.current = m
	c.fallback = m.classes
	c.failedVersion = nil
	c.lastErr = ""
	c.state = StateReady
	c.mu.Unlock()
	c.notify(StateReady)
}

// markFailed keeps a previous model when there is one, and otherwise falls
// back to a uniform distribution over the catalog's types.
func (c *Classifier) markFailed(catalog *models.Catalog, err error) {
	version := catalog.Version
	c.mu.Lock()
	c.failedVersion = &version
	c.lastErr = err.Error()
	if c.current != nil {
		c.state = StateReady
	} else {
		c.state = StateDegenerate
		c.fallback = classesOf(catalog)
	}
	state := c.state
	c.mu.Unlock()
	c.notify(state)
}

func (c *Classifier) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.notify(s)
}

func (c *Classifier) notify(s State) {
	if c.observer != nil {
		c.observer.ObserveState(s)
	}
}

// Predict refreshes the model if the knowledge base changed and returns the
// class distribution for raw. It never fails: without a usable model the
// result is uniform and marked degenerate.
func (c *Classifier) Predict(ctx context.Context, raw features.Raw) Prediction {
	if _, err := c.RefreshIfStale(ctx); err != nil {
		c.logger.Warn("Staleness check failed, serving current model", zap.Error(err))
	}
	return c.PredictCurrent(raw)
}

// PredictCurrent predicts with the model already loaded, without a staleness check.
func (c *Classifier) PredictCurrent(raw features.Raw) Prediction {
	c.mu.RLock()
	m, fallback := c.current, c.fallback
	c.mu.RUnlock()

	if m == nil {
		return uniform(fallback)
	}

	probs, err := m.net.Predict(features.Encode(raw, m.schema, m.normalizer))
	if err != nil {
		c.logger.Error("Prediction failed, returning uniform distribution", zap.Error(err))
		return uniform(m.classes)
	}
	if !isDistribution(probs) {
		c.logger.Warn("Network produced an invalid distribution, returning uniform distribution",
			zap.Float64s("probabilities", probs))
		return uniform(m.classes)
	}

	out := Prediction{Classes: make([]Probability, len(m.classes)), RunID: m.runID}
	for i, cls := range m.classes {
		out.Classes[i] = Probability{ID: cls.ID, Name: cls.Name, Probability: probs[i]}
	}
	return out
}

// isDistribution reports whether p is finite, non-negative and sums to 1.
func isDistribution(p []float64) bool {
	var total float64
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
		total += v
	}
	return math.Abs(total-1) <= 1e-6
}

func uniform(classes []Class) Prediction {
	out := Prediction{Classes: make([]Probability, len(classes)), Degenerate: true}
	for i, cls := range classes {
		out.Classes[i] = Probability{ID: cls.ID, Name: cls.Name, Probability: 1 / float64(len(classes))}
	}
	return out
}

func (c *Classifier) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Classifier) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{State: c.state.String(), LastError: c.lastErr, ClassCount: len(c.fallback)}
	if m := c.current; m != nil {
		trainedAt, kbVersion := m.trainedAt, m.kbVersion
		s.RunID = m.runID
		s.TrainedAt = &trainedAt
		s.KnowledgeBaseVersion = &kbVersion
		s.SchemaFingerprint = m.fingerprint
		s.FeatureWidth = m.schema.Width()
		s.ClassCount = len(m.classes)
	}
	return s
}
