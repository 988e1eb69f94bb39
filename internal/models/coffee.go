package models

import "time"

// CharacteristicKind distinguishes range-checked characteristics from
// exact-match ones.
type CharacteristicKind string

const (
	KindNumeric     CharacteristicKind = "numeric"
	KindCategorical CharacteristicKind = "categorical"
)

// Valid reports whether k is one of the known kinds.
func (k CharacteristicKind) Valid() bool {
	return k == KindNumeric || k == KindCategorical
}

// CoffeeType is a class the classifiers can predict.
type CoffeeType struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NumericLimits are the global legality bounds of a numeric characteristic.
type NumericLimits struct {
	MinValue float64 `db:"min_value" json:"min_value"`
	MaxValue float64 `db:"max_value" json:"max_value"`
}

// Characteristic is a sensory attribute defined independently of any coffee type.
type Characteristic struct {
	ID   int64              `db:"id" json:"id"`
	Name string             `db:"name" json:"name"`
	Kind CharacteristicKind `db:"type" json:"type"`

	// Limits is set only for numeric characteristics that declare bounds.
	Limits *NumericLimits `db:"-" json:"limits,omitempty"`
	// Values is the sorted vocabulary of a categorical characteristic.
	Values []string `db:"-" json:"values,omitempty"`
}

// NumericAssignment binds a closed range of a numeric characteristic to a type.
type NumericAssignment struct {
	CoffeeTypeID     int64     `db:"coffee_type_id" json:"coffee_type_id"`
	CharacteristicID int64     `db:"characteristic_id" json:"characteristic_id"`
	MinValue         float64   `db:"min_value" json:"min_value"`
	MaxValue         float64   `db:"max_value" json:"max_value"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Contains reports whether v lies inside the inclusive range.
func (a NumericAssignment) Contains(v float64) bool {
	return v >= a.MinValue && v <= a.MaxValue
}

// CategoricalAssignment marks one acceptable value of a categorical
// characteristic for a type. A type may hold several per characteristic.
type CategoricalAssignment struct {
	CoffeeTypeID     int64     `db:"coffee_type_id" json:"coffee_type_id"`
	CharacteristicID int64     `db:"characteristic_id" json:"characteristic_id"`
	Value            string    `db:"value" json:"value"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Catalog is a consistent read of the whole knowledge base.
type Catalog struct {
	Types           []CoffeeType
	Characteristics []Characteristic
	Numeric         []NumericAssignment
	Categorical     []CategoricalAssignment
	// Version is the knowledge base modification timestamp the catalog was read at.
	Version time.Time
}

// CharacteristicByID returns the characteristic with the given id.
func (c *Catalog) CharacteristicByID(id int64) (Characteristic, bool) {
	for _, ch := range c.Characteristics {
		if ch.ID == id {
			return ch, true
		}
	}
	return Characteristic{}, false
}

// NumericFor returns the numeric assignments of one coffee type.
func (c *Catalog) NumericFor(typeID int64) []NumericAssignment {
	var out []NumericAssignment
	for _, a := range c.Numeric {
		if a.CoffeeTypeID == typeID {
			out = append(out, a)
		}
	}
	return out
}

// CategoricalFor groups the categorical assignments of one coffee type by
// characteristic, preserving storage order inside each group.
func (c *Catalog) CategoricalFor(typeID int64) map[int64][]string {
	out := make(map[int64][]string)
	for _, a := range c.Categorical {
		if a.CoffeeTypeID == typeID {
			out[a.CharacteristicID] = append(out[a.CharacteristicID], a.Value)
		}
	}
	return out
}

// TypeDetails is a coffee type together with its assignments, as served to
// the expert and specialist screens.
type TypeDetails struct {
	CoffeeType
	Numeric     []NumericAssignmentView     `json:"numeric"`
	Categorical []CategoricalAssignmentView `json:"categorical"`
}

// NumericAssignmentView is a numeric assignment joined with its characteristic name.
type NumericAssignmentView struct {
	CharacteristicID int64   `json:"id"`
	Name             string  `json:"name"`
	MinValue         float64 `json:"min_value"`
	MaxValue         float64 `json:"max_value"`
}

// CategoricalAssignmentView lists every value assigned for one categorical characteristic.
type CategoricalAssignmentView struct {
	CharacteristicID int64    `json:"id"`
	Name             string   `json:"name"`
	Values           []string `json:"values"`
}
