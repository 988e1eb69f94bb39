package features

import "strings"

// Raw holds characteristic values keyed by characteristic id. Callers resolve
// names to ids before encoding.
type Raw struct {
	Numeric     map[int64]float64
	Categorical map[int64]string
}

// Encode maps raw characteristics onto the schema layout.
//
// Missing numeric values encode as 0 before normalisation. A missing or
// unrecognised categorical value leaves its one-hot block all zeros. Values
// are matched against the vocabulary ignoring case and surrounding spaces.
// Keys not in the schema are ignored. The result always has schema.Width()
// elements.
//
// A nil normalizer writes numeric values unscaled. A non-nil one must have
// passed Validate against schema.
func Encode(raw Raw, schema *Schema, norm *Normalizer) []float64 {
	out := make([]float64, schema.Width())

	for i, id := range schema.NumericIDs {
		v := raw.Numeric[id]
		if norm != nil {
			v = norm.Transform(i, v)
		}
		out[i] = v
	}

	offset := schema.NumericWidth()
	for _, slot := range schema.Categorical {
		if value, ok := raw.Categorical[slot.CharacteristicID]; ok {
			if idx := vocabularyIndex(slot.Vocabulary, value); idx >= 0 {
				out[offset+idx] = 1
			}
		}
		offset += len(slot.Vocabulary)
	}
	return out
}

// NumericValues returns the raw numeric slots of raw in schema order, zero
// filled. These are the values the normalizer is fitted on.
func NumericValues(raw Raw, schema *Schema) []float64 {
	out := make([]float64, schema.NumericWidth())
	for i, id := range schema.NumericIDs {
		out[i] = raw.Numeric[id]
	}
	return out
}

// NormalizeValue is the comparison form of a categorical value.
func NormalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func vocabularyIndex(vocabulary []string, value string) int {
	want := NormalizeValue(value)
	if want == "" {
		return -1
	}
	for i, v := range vocabulary {
		if NormalizeValue(v) == want {
			return i
		}
	}
	return -1
}
