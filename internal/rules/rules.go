// Package rules scores a coffee sample directly against the ranges and values
// experts assigned to each coffee type, without the learned model.
package rules

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/srv328/coffee-classification/internal/features"
	"github.com/srv328/coffee-classification/internal/models"
)

// Input is a sample with its keys resolved to characteristic ids.
// Unresolved holds the keys that name no characteristic of the right kind.
type Input struct {
	Numeric     map[int64]float64
	Categorical map[int64]string
	Unresolved  []string
}

// TypeAnalysis explains how one coffee type fared in a strict match.
type TypeAnalysis struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Matches bool     `json:"matches"`
	Reasons []string `json:"reasons"`
}

// StrictResult is the outcome of Strict. Type is nil when nothing matched.
type StrictResult struct {
	Type         *models.CoffeeType `json:"type"`
	Explanations []string           `json:"explanations"`
	Types        []TypeAnalysis     `json:"all_types_analysis"`
}

// Score is the partial-credit result for one coffee type.
type Score struct {
	ID         int64   `json:"id"`
	Name       string  `json:"coffee_type"`
	Matched    int     `json:"matched"`
	Compared   int     `json:"compared"`
	Confidence float64 `json:"confidence"`
}

// Strict checks every input characteristic against each coffee type and
// picks the first type, by id, for which all of them pass. A characteristic
// the type does not define fails it. Categorical values pass when they equal
// any value assigned to the type, ignoring case and surrounding spaces. A type
// with nothing to compare never matches.
func Strict(catalog *models.Catalog, in Input) StrictResult {
	res := StrictResult{Explanations: []string{}, Types: []TypeAnalysis{}}

	numericIDs := slices.Sorted(maps.Keys(in.Numeric))
	categoricalIDs := slices.Sorted(maps.Keys(in.Categorical))
	unresolved := slices.Sorted(slices.Values(in.Unresolved))

	for _, ct := range sortedTypes(catalog) {
		ta := TypeAnalysis{ID: ct.ID, Name: ct.Name, Matches: true, Reasons: []string{}}
		fail := func(reason string) {
			ta.Matches = false
			ta.Reasons = append(ta.Reasons, reason)
		}

		ranges := numericByCharacteristic(catalog, ct.ID)
		for _, id := range numericIDs {
			name := characteristicName(catalog, id)
			value := in.Numeric[id]
			a, ok := ranges[id]
			switch {
			case !ok:
				fail(notDefined(name))
			case !a.Contains(value):
				fail(fmt.Sprintf("value %s for characteristic '%s' is outside the allowed range [%.2f, %.2f]",
					formatNumber(value), name, a.MinValue, a.MaxValue))
			default:
				ta.Reasons = append(ta.Reasons, fmt.Sprintf("value %s for characteristic '%s' is within the allowed range [%.2f, %.2f]",
					formatNumber(value), name, a.MinValue, a.MaxValue))
			}
		}

		values := catalog.CategoricalFor(ct.ID)
		for _, id := range categoricalIDs {
			name := characteristicName(catalog, id)
			value := in.Categorical[id]
			allowed, ok := values[id]
			switch {
			case !ok:
				fail(notDefined(name))
			case !anyOf(allowed, value):
				fail(fmt.Sprintf("value '%s' for characteristic '%s' does not match %s",
					strings.TrimSpace(value), name, describeAllowed(allowed)))
			default:
				ta.Reasons = append(ta.Reasons, fmt.Sprintf("value '%s' for characteristic '%s' matches %s",
					strings.TrimSpace(value), name, describeAllowed(allowed)))
			}
		}

		for _, key := range unresolved {
			fail(notDefined(key))
		}

		if len(ta.Reasons) == 0 {
			fail("no characteristics were provided to compare")
		}

		res.Types = append(res.Types, ta)
		if ta.Matches && res.Type == nil {
			matched := ct
			res.Type = &matched
			res.Explanations = append(res.Explanations, "best matching type: "+ct.Name)
		}
	}

	if res.Type == nil {
		res.Explanations = append(res.Explanations, "no matching coffee type found")
	}
	return res
}

// Statistical gives each coffee type partial credit: the share of its own
// assignments present in the input that the input satisfies, as a
// percentage. Types sharing no characteristic with the input are left out.
// Results are ordered by confidence descending, then by id.
func Statistical(catalog *models.Catalog, in Input) []Score {
	scores := []Score{}
	for _, ct := range sortedTypes(catalog) {
		s := Score{ID: ct.ID, Name: ct.Name}

		for _, a := range catalog.NumericFor(ct.ID) {
			if v, ok := in.Numeric[a.CharacteristicID]; ok {
				s.Compared++
				if a.Contains(v) {
					s.Matched++
				}
			}
		}
		for id, allowed := range catalog.CategoricalFor(ct.ID) {
			if v, ok := in.Categorical[id]; ok {
				s.Compared++
				if anyOf(allowed, v) {
					s.Matched++
				}
			}
		}

		if s.Compared == 0 {
			continue
		}
		s.Confidence = float64(s.Matched) / float64(s.Compared) * 100
		scores = append(scores, s)
	}

	slices.SortStableFunc(scores, func(a, b Score) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return scores
}

func sortedTypes(catalog *models.Catalog) []models.CoffeeType {
	return slices.SortedFunc(slices.Values(catalog.Types), func(a, b models.CoffeeType) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

func numericByCharacteristic(catalog *models.Catalog, typeID int64) map[int64]models.NumericAssignment {
	out := make(map[int64]models.NumericAssignment)
	for _, a := range catalog.NumericFor(typeID) {
		out[a.CharacteristicID] = a
	}
	return out
}

func characteristicName(catalog *models.Catalog, id int64) string {
	if ch, ok := catalog.CharacteristicByID(id); ok {
		return ch.Name
	}
	return "characteristic " + strconv.FormatInt(id, 10)
}

func anyOf(allowed []string, value string) bool {
	want := features.NormalizeValue(value)
	for _, v := range allowed {
		if features.NormalizeValue(v) == want {
			return true
		}
	}
	return false
}

func describeAllowed(allowed []string) string {
	if len(allowed) == 1 {
		return fmt.Sprintf("the required value '%s'", allowed[0])
	}
	return fmt.Sprintf("the allowed values [%s]", strings.Join(slices.Sorted(slices.Values(allowed)), ", "))
}

func notDefined(name string) string {
	return fmt.Sprintf("characteristic '%s' is not defined for this type", name)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
