package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/classifier"
	"github.com/srv328/coffee-classification/internal/features"
	"github.com/srv328/coffee-classification/internal/models"
	"github.com/srv328/coffee-classification/internal/rules"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidRange = errors.New("invalid range")
	ErrUnknownValue = errors.New("value is not in the characteristic vocabulary")
)

// Classification methods accepted by Classify.
const (
	MethodStrict      = "strict"
	MethodStatistical = "statistical"
	MethodLearned     = "learned"
)

// NumericValue accepts a JSON number or a string holding one.
type NumericValue float64

func (v *NumericValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalidInput, s)
		}
		*v = NumericValue(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %s is not a number", ErrInvalidInput, data)
	}
	*v = NumericValue(f)
	return nil
}

// RawInput is a sample as submitted by a client. Keys are characteristic ids
// or names.
type RawInput struct {
	Numeric     map[string]NumericValue `json:"numeric"`
	Categorical map[string]string       `json:"categorical"`
}

// LearnedResult is the model's answer with probabilities in percent.
type LearnedResult struct {
	PredictedType *string                  `json:"predicted_type"`
	Explanations  []string                 `json:"explanations"`
	Probabilities map[string]float64       `json:"probabilities"`
	Classes       []classifier.Probability `json:"classes"`
	Degenerate    bool                     `json:"degenerate"`
	RunID         string                   `json:"run_id,omitempty"`
}

// CatalogLoader reads the knowledge base.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) (*models.Catalog, error)
}

// Predictor is the learned model.
type Predictor interface {
	Predict(ctx context.Context, raw features.Raw) classifier.Prediction
}

type ClassificationService struct {
	catalog CatalogLoader
	model   Predictor
	logger  *zap.Logger
}

func NewClassificationService(catalog CatalogLoader, model Predictor, logger *zap.Logger) *ClassificationService {
	return &ClassificationService{catalog: catalog, model: model, logger: logger}
}

// ClassifyStrict returns the first coffee type every input characteristic
// agrees with, with per-type explanations.
func (s *ClassificationService) ClassifyStrict(ctx context.Context, in RawInput) (*rules.StrictResult, error) {
	catalog, resolved, err := s.resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	res := rules.Strict(catalog, resolved)
	return &res, nil
}

// ClassifyStatistical ranks the coffee types by the share of input
// characteristics each one agrees with.
func (s *ClassificationService) ClassifyStatistical(ctx context.Context, in RawInput) ([]rules.Score, error) {
	catalog, resolved, err := s.resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	return rules.Statistical(catalog, resolved), nil
}

// ClassifyLearned asks the trained network. Only malformed input is an
// error; every other failure ends in a degenerate uniform answer.
func (s *ClassificationService) ClassifyLearned(ctx context.Context, in RawInput) (*LearnedResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var raw features.Raw
	catalog, err := s.catalog.LoadCatalog(ctx)
	if err != nil {
		s.logger.Warn("Failed to load knowledge base, resolving input by id only", zap.Error(err))
		raw = resolveByID(in)
	} else {
		r := resolveKeys(catalog, in)
		raw = features.Raw{Numeric: r.Numeric, Categorical: r.Categorical}
	}

	pred := s.model.Predict(ctx, raw)
	return learnedResult(pred), nil
}

// ParseMethod normalises a classification method name. Empty means
// statistical.
func ParseMethod(method string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(method)); m {
	case MethodStrict, MethodStatistical, MethodLearned:
		return m, nil
	case "":
		return MethodStatistical, nil
	default:
		return "", fmt.Errorf("%w: unknown method %q", ErrInvalidInput, method)
	}
}

func learnedResult(pred classifier.Prediction) *LearnedResult {
	res := &LearnedResult{
		Probabilities: make(map[string]float64, len(pred.Classes)),
		Classes:       make([]classifier.Probability, 0, len(pred.Classes)),
		Explanations:  []string{},
		Degenerate:    pred.Degenerate,
		RunID:         pred.RunID,
	}
	for _, c := range pred.Classes {
		pct := roundPercent(c.Probability)
		res.Probabilities[c.Name] = pct
		res.Classes = append(res.Classes, classifier.Probability{ID: c.ID, Name: c.Name, Probability: pct})
	}
	if best, ok := pred.Best(); ok {
		name := best.Name
		res.PredictedType = &name
		if pred.Degenerate {
			res.Explanations = append(res.Explanations,
				"no trained model is available, all types are equally likely")
		} else {
			res.Explanations = append(res.Explanations,
				fmt.Sprintf("the model predicted type '%s' from the provided characteristics", name))
		}
	}
	return res
}

func roundPercent(p float64) float64 {
	return math.Round(p*100*100) / 100
}

func (s *ClassificationService) resolve(ctx context.Context, in RawInput) (*models.Catalog, rules.Input, error) {
	if err := validateInput(in); err != nil {
		return nil, rules.Input{}, err
	}
	catalog, err := s.catalog.LoadCatalog(ctx)
	if err != nil {
		s.logger.Error("Failed to load knowledge base", zap.Error(err))
		return nil, rules.Input{}, fmt.Errorf("failed to load knowledge base: %w", err)
	}
	return catalog, resolveKeys(catalog, in), nil
}

func validateInput(in RawInput) error {
	for k, v := range in.Numeric {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: value of %q is not finite", ErrInvalidInput, k)
		}
	}
	return nil
}

// resolveKeys maps client keys onto characteristic ids. A key resolves when
// it is the id or the name (ignoring case and surrounding spaces) of a
// characteristic of the matching kind. Everything else is reported back as
// unresolved.
func resolveKeys(catalog *models.Catalog, in RawInput) rules.Input {
	byID := make(map[int64]models.Characteristic, len(catalog.Characteristics))
	byName := make(map[string]models.Characteristic, len(catalog.Characteristics))
	for _, ch := range catalog.Characteristics {
		byID[ch.ID] = ch
		byName[features.NormalizeValue(ch.Name)] = ch
	}
	lookup := func(key string, kind models.CharacteristicKind) (int64, bool) {
		ch, ok := byName[features.NormalizeValue(key)]
		if !ok {
			if id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64); err == nil {
				ch, ok = byID[id]
			}
		}
		if !ok || ch.Kind != kind {
			return 0, false
		}
		return ch.ID, true
	}

	out := rules.Input{
		Numeric:     make(map[int64]float64, len(in.Numeric)),
		Categorical: make(map[int64]string, len(in.Categorical)),
	}
	for k, v := range in.Numeric {
		if id, ok := lookup(k, models.KindNumeric); ok {
			out.Numeric[id] = float64(v)
		} else {
			out.Unresolved = append(out.Unresolved, k)
		}
	}
	for k, v := range in.Categorical {
		if id, ok := lookup(k, models.KindCategorical); ok {
			out.Categorical[id] = v
		} else {
			out.Unresolved = append(out.Unresolved, k)
		}
	}
	return out
}

func resolveByID(in RawInput) features.Raw {
	raw := features.Raw{Numeric: map[int64]float64{}, Categorical: map[int64]string{}}
	for k, v := range in.Numeric {
		if id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64); err == nil {
			raw.Numeric[id] = float64(v)
		}
	}
	for k, v := range in.Categorical {
		if id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64); err == nil {
			raw.Categorical[id] = v
		}
	}
	return raw
}
