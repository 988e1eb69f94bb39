package service

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/features"
	"github.com/srv328/coffee-classification/internal/models"
	"github.com/srv328/coffee-classification/internal/repository"
)

// CharacteristicInput describes a new characteristic. Limits apply to
// numeric characteristics and Values to categorical ones.
type CharacteristicInput struct {
	Name   string                    `json:"name" binding:"required"`
	Kind   models.CharacteristicKind `json:"type" binding:"required"`
	Limits *models.NumericLimits     `json:"limits"`
	Values []string                  `json:"values"`
}

// KnowledgeBaseView is the full knowledge base as shown to specialists.
type KnowledgeBaseView struct {
	Version         time.Time               `json:"version"`
	Types           []models.TypeDetails    `json:"coffee_types"`
	Characteristics []models.Characteristic `json:"characteristics"`
}

// CompletenessReport lists the coffee types that have nothing assigned and
// therefore cannot be told apart by any classifier.
type CompletenessReport struct {
	Total      int                 `json:"total"`
	Complete   int                 `json:"complete"`
	Incomplete []models.CoffeeType `json:"incomplete"`
}

type KnowledgeBaseService struct {
	repo   repository.KnowledgeBaseRepository
	logger *zap.Logger
}

func NewKnowledgeBaseService(repo repository.KnowledgeBaseRepository, logger *zap.Logger) *KnowledgeBaseService {
	return &KnowledgeBaseService{repo: repo, logger: logger}
}

func (s *KnowledgeBaseService) ListCoffeeTypes(ctx context.Context) ([]models.CoffeeType, error) {
	return s.repo.ListCoffeeTypes(ctx)
}

func (s *KnowledgeBaseService) ListCharacteristics(ctx context.Context) ([]models.Characteristic, error) {
	return s.repo.ListCharacteristics(ctx)
}

// Vocabulary returns the legal values of a categorical characteristic.
func (s *KnowledgeBaseService) Vocabulary(ctx context.Context, characteristicID int64) ([]string, error) {
	ch, err := s.repo.GetCharacteristic(ctx, characteristicID)
	if err != nil {
		return nil, err
	}
	if ch.Kind != models.KindCategorical {
		return nil, fmt.Errorf("%w: characteristic '%s' is not categorical", ErrInvalidInput, ch.Name)
	}
	return s.repo.ListCategoricalVocabulary(ctx, characteristicID)
}

// TypeDetails returns a coffee type with every range and value assigned to it.
func (s *KnowledgeBaseService) TypeDetails(ctx context.Context, id int64) (*models.TypeDetails, error) {
	catalog, err := s.repo.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	for _, ct := range catalog.Types {
		if ct.ID == id {
			d := typeDetails(catalog, ct)
			return &d, nil
		}
	}
	return nil, repository.ErrNotFound
}

// KnowledgeBase dumps every coffee type with its assignments, ordered by name.
func (s *KnowledgeBaseService) KnowledgeBase(ctx context.Context) (*KnowledgeBaseView, error) {
	catalog, err := s.repo.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	types := slices.SortedFunc(slices.Values(catalog.Types), func(a, b models.CoffeeType) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	view := &KnowledgeBaseView{
		Version:         catalog.Version,
		Types:           make([]models.TypeDetails, 0, len(types)),
		Characteristics: catalog.Characteristics,
	}
	for _, ct := range types {
		view.Types = append(view.Types, typeDetails(catalog, ct))
	}
	return view, nil
}

// Completeness reports the coffee types with no assignments at all.
func (s *KnowledgeBaseService) Completeness(ctx context.Context) (*CompletenessReport, error) {
	catalog, err := s.repo.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	report := &CompletenessReport{Total: len(catalog.Types), Incomplete: []models.CoffeeType{}}
	for _, ct := range catalog.Types {
		if len(catalog.NumericFor(ct.ID)) == 0 && len(catalog.CategoricalFor(ct.ID)) == 0 {
			report.Incomplete = append(report.Incomplete, ct)
		} else {
			report.Complete++
		}
	}
	return report, nil
}

func (s *KnowledgeBaseService) CreateCoffeeType(ctx context.Context, name string) (*models.CoffeeType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: coffee type name is required", ErrInvalidInput)
	}
	return s.repo.CreateCoffeeType(ctx, name)
}

func (s *KnowledgeBaseService) DeleteCoffeeType(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCoffeeType(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Coffee type deleted", zap.Int64("id", id))
	return nil
}

func (s *KnowledgeBaseService) CreateCharacteristic(ctx context.Context, in CharacteristicInput) (*models.Characteristic, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: characteristic name is required", ErrInvalidInput)
	}
	ch := &models.Characteristic{Name: name, Kind: in.Kind}

	switch in.Kind {
	case models.KindNumeric:
		if len(in.Values) > 0 {
			return nil, fmt.Errorf("%w: numeric characteristics take no values", ErrInvalidInput)
		}
		if err := validateLimits(in.Limits); err != nil {
			return nil, err
		}
		ch.Limits = in.Limits
	case models.KindCategorical:
		if in.Limits != nil {
			return nil, fmt.Errorf("%w: categorical characteristics take no limits", ErrInvalidInput)
		}
		values, err := cleanVocabulary(in.Values)
		if err != nil {
			return nil, err
		}
		ch.Values = values
	default:
		return nil, fmt.Errorf("%w: unknown characteristic type %q", ErrInvalidInput, in.Kind)
	}

	if err := s.repo.CreateCharacteristic(ctx, ch); err != nil {
		return nil, err
	}
	s.logger.Info("Characteristic created",
		zap.Int64("id", ch.ID), zap.String("name", ch.Name), zap.String("type", string(ch.Kind)))
	return ch, nil
}

func (s *KnowledgeBaseService) DeleteCharacteristic(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCharacteristic(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Characteristic deleted", zap.Int64("id", id))
	return nil
}

// SetNumericLimits replaces the global bounds of a numeric characteristic;
// nil clears them. Existing ranges must still fit inside the new bounds.
func (s *KnowledgeBaseService) SetNumericLimits(ctx context.Context, characteristicID int64, limits *models.NumericLimits) error {
	ch, err := s.characteristicOfKind(ctx, characteristicID, models.KindNumeric)
	if err != nil {
		return err
	}
	if err := validateLimits(limits); err != nil {
		return err
	}
	if limits != nil {
		assigned, err := s.repo.ListNumericAssignments(ctx, nil)
		if err != nil {
			return err
		}
		for _, a := range assigned {
			if a.CharacteristicID == ch.ID && (a.MinValue < limits.MinValue || a.MaxValue > limits.MaxValue) {
				return fmt.Errorf("%w: coffee type %d uses [%g, %g] for '%s', outside [%g, %g]",
					ErrInvalidRange, a.CoffeeTypeID, a.MinValue, a.MaxValue, ch.Name, limits.MinValue, limits.MaxValue)
			}
		}
	}
	return s.repo.SetNumericLimits(ctx, characteristicID, limits)
}

// ReplaceVocabulary sets the legal values of a categorical characteristic.
// Assignments of values that are dropped are removed.
func (s *KnowledgeBaseService) ReplaceVocabulary(ctx context.Context, characteristicID int64, values []string) error {
	if _, err := s.characteristicOfKind(ctx, characteristicID, models.KindCategorical); err != nil {
		return err
	}
	cleaned, err := cleanVocabulary(values)
	if err != nil {
		return err
	}
	return s.repo.ReplaceVocabulary(ctx, characteristicID, cleaned)
}

// SetNumericRange assigns [min, max] of a numeric characteristic to a coffee
// type, replacing any previous range.
func (s *KnowledgeBaseService) SetNumericRange(ctx context.Context, coffeeTypeID, characteristicID int64, minValue, maxValue float64) error {
	ch, err := s.characteristicOfKind(ctx, characteristicID, models.KindNumeric)
	if err != nil {
		return err
	}
	if !storable(minValue) || !storable(maxValue) {
		return fmt.Errorf("%w: bounds must be finite numbers within ±%g", ErrInvalidRange, maxBound)
	}
	if minValue > maxValue {
		return fmt.Errorf("%w: minimum %g is greater than maximum %g", ErrInvalidRange, minValue, maxValue)
	}
	if l := ch.Limits; l != nil && (minValue < l.MinValue || maxValue > l.MaxValue) {
		return fmt.Errorf("%w: [%g, %g] is outside the limits [%g, %g] of '%s'",
			ErrInvalidRange, minValue, maxValue, l.MinValue, l.MaxValue, ch.Name)
	}
	return s.repo.UpsertNumericAssignment(ctx, &models.NumericAssignment{
		CoffeeTypeID:     coffeeTypeID,
		CharacteristicID: characteristicID,
		MinValue:         minValue,
		MaxValue:         maxValue,
	})
}

// SetCategoricalValues replaces the accepted values of a categorical
// characteristic for a coffee type. Values are matched against the
// vocabulary ignoring case and stored in their vocabulary spelling.
func (s *KnowledgeBaseService) SetCategoricalValues(ctx context.Context, coffeeTypeID, characteristicID int64, values []string) error {
	ch, err := s.characteristicOfKind(ctx, characteristicID, models.KindCategorical)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: at least one value is required", ErrInvalidInput)
	}

	canonical := make(map[string]string, len(ch.Values))
	for _, v := range ch.Values {
		canonical[features.NormalizeValue(v)] = v
	}
	var picked []string
	for _, v := range values {
		stored, ok := canonical[features.NormalizeValue(v)]
		if !ok {
			return fmt.Errorf("%w: '%s' is not a value of '%s'", ErrUnknownValue, v, ch.Name)
		}
		if !slices.Contains(picked, stored) {
			picked = append(picked, stored)
		}
	}
	return s.repo.SetCategoricalAssignment(ctx, coffeeTypeID, characteristicID, picked)
}

func (s *KnowledgeBaseService) RemoveAssignment(ctx context.Context, coffeeTypeID, characteristicID int64) error {
	return s.repo.DeleteAssignment(ctx, coffeeTypeID, characteristicID)
}

func (s *KnowledgeBaseService) characteristicOfKind(ctx context.Context, id int64, kind models.CharacteristicKind) (*models.Characteristic, error) {
	ch, err := s.repo.GetCharacteristic(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.Kind != kind {
		return nil, fmt.Errorf("%w: characteristic '%s' is %s, not %s", ErrInvalidInput, ch.Name, ch.Kind, kind)
	}
	return ch, nil
}

func typeDetails(catalog *models.Catalog, ct models.CoffeeType) models.TypeDetails {
	d := models.TypeDetails{
		CoffeeType:  ct,
		Numeric:     []models.NumericAssignmentView{},
		Categorical: []models.CategoricalAssignmentView{},
	}
	for _, a := range catalog.NumericFor(ct.ID) {
		ch, _ := catalog.CharacteristicByID(a.CharacteristicID)
		d.Numeric = append(d.Numeric, models.NumericAssignmentView{
			CharacteristicID: a.CharacteristicID,
			Name:             ch.Name,
			MinValue:         a.MinValue,
			MaxValue:         a.MaxValue,
		})
	}
	for id, values := range catalog.CategoricalFor(ct.ID) {
		ch, _ := catalog.CharacteristicByID(id)
		d.Categorical = append(d.Categorical, models.CategoricalAssignmentView{
			CharacteristicID: id,
			Name:             ch.Name,
			Values:           slices.Sorted(slices.Values(values)),
		})
	}
	slices.SortFunc(d.Numeric, func(a, b models.NumericAssignmentView) int {
		return cmp.Compare(a.CharacteristicID, b.CharacteristicID)
	})
	slices.SortFunc(d.Categorical, func(a, b models.CategoricalAssignmentView) int {
		return cmp.Compare(a.CharacteristicID, b.CharacteristicID)
	})
	return d
}

func validateLimits(l *models.NumericLimits) error {
	if l == nil {
		return nil
	}
	if !storable(l.MinValue) || !storable(l.MaxValue) {
		return fmt.Errorf("%w: limits must be finite numbers within ±%g", ErrInvalidRange, maxBound)
	}
	if l.MinValue > l.MaxValue {
		return fmt.Errorf("%w: minimum %g is greater than maximum %g", ErrInvalidRange, l.MinValue, l.MaxValue)
	}
	return nil
}

// cleanVocabulary trims values and drops duplicates that differ only in case.
func cleanVocabulary(values []string) ([]string, error) {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, fmt.Errorf("%w: vocabulary values must not be empty", ErrInvalidInput)
		}
		key := features.NormalizeValue(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out, nil
}

// maxBound caps stored ranges and limits so training statistics stay finite.
const maxBound = 1e12

func storable(f float64) bool {
	return !math.IsNaN(f) && math.Abs(f) <= maxBound
}
