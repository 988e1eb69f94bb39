// Package features turns the knowledge base into fixed-width numeric vectors.
//
// The same Schema and Normalizer must be used to encode training samples and
// live input. A Schema is derived from a catalog, fingerprinted, and stored
// next to the trained weights; a fingerprint mismatch means the weights no
// longer describe the knowledge base.
package features

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/srv328/coffee-classification/internal/models"
)

// CategoricalSlot is a contiguous one-hot block for one categorical characteristic.
type CategoricalSlot struct {
	CharacteristicID int64    `json:"characteristic_id"`
	Vocabulary       []string `json:"vocabulary"`
}

// Schema is the canonical layout of a feature vector: numeric slots first,
// then one one-hot block per categorical characteristic.
type Schema struct {
	NumericIDs  []int64           `json:"numeric_ids"`
	Categorical []CategoricalSlot `json:"categorical"`
}

// BuildSchema derives the layout from a catalog. Only characteristics that are
// assigned to at least one coffee type take part. Both lists are ordered by
// characteristic id and vocabularies are sorted lexicographically, so the
// result does not depend on storage order.
func BuildSchema(catalog *models.Catalog) *Schema {
	numericUsed := make(map[int64]bool)
	for _, a := range catalog.Numeric {
		numericUsed[a.CharacteristicID] = true
	}
	categoricalUsed := make(map[int64]bool)
	for _, a := range catalog.Categorical {
		categoricalUsed[a.CharacteristicID] = true
	}

	s := &Schema{NumericIDs: []int64{}, Categorical: []CategoricalSlot{}}
	for _, ch := range catalog.Characteristics {
		switch ch.Kind {
		case models.KindNumeric:
			if numericUsed[ch.ID] {
				s.NumericIDs = append(s.NumericIDs, ch.ID)
			}
		case models.KindCategorical:
			if categoricalUsed[ch.ID] {
				s.Categorical = append(s.Categorical, CategoricalSlot{
					CharacteristicID: ch.ID,
					Vocabulary:       sortedVocabulary(ch.Values),
				})
			}
		}
	}

	sort.Slice(s.NumericIDs, func(i, j int) bool { return s.NumericIDs[i] < s.NumericIDs[j] })
	sort.Slice(s.Categorical, func(i, j int) bool {
		return s.Categorical[i].CharacteristicID < s.Categorical[j].CharacteristicID
	})
	return s
}

func sortedVocabulary(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// NumericWidth is the number of numeric slots.
func (s *Schema) NumericWidth() int {
	return len(s.NumericIDs)
}

// Width is the total feature vector length. A categorical characteristic with
// an empty vocabulary contributes a zero-width block.
func (s *Schema) Width() int {
	w := len(s.NumericIDs)
	for _, slot := range s.Categorical {
		w += len(slot.Vocabulary)
	}
	return w
}

// Fingerprint is a stable hash of the layout. Two schemas encode vectors the
// same way if and only if their fingerprints are equal.
func (s *Schema) Fingerprint() string {
	// Marshalling a struct of slices is deterministic; nil and empty slices
	// are normalised so a round-tripped schema hashes the same.
	canonical := Schema{
		NumericIDs:  append([]int64{}, s.NumericIDs...),
		Categorical: make([]CategoricalSlot, 0, len(s.Categorical)),
	}
	for _, slot := range s.Categorical {
		canonical.Categorical = append(canonical.Categorical, CategoricalSlot{
			CharacteristicID: slot.CharacteristicID,
			Vocabulary:       append([]string{}, slot.Vocabulary...),
		})
	}
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two schemas describe the same layout.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Fingerprint() == other.Fingerprint()
}
