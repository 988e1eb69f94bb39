package features

import "github.com/srv328/coffee-classification/internal/models"

// Characteristic ids used across the package tests.
const (
	acidityID   int64 = 1
	roastID     int64 = 2
	bitterID    int64 = 3
	regionID    int64 = 4
	unusedNumID int64 = 5
	emptyCatID  int64 = 6
)

const (
	espressoID int64 = 10
	lungoID    int64 = 11
)

// testCatalog returns two coffee types over two numeric and three categorical
// characteristics. Characteristics are deliberately stored out of id order.
func testCatalog() *models.Catalog {
	return &models.Catalog{
		Types: []models.CoffeeType{
			{ID: espressoID, Name: "Espresso"},
			{ID: lungoID, Name: "Lungo"},
		},
		Characteristics: []models.Characteristic{
			{ID: regionID, Name: "region", Kind: models.KindCategorical, Values: []string{"kenya", "brazil", "ethiopia"}},
			{ID: acidityID, Name: "acidity", Kind: models.KindNumeric},
			{ID: roastID, Name: "roast_level", Kind: models.KindCategorical, Values: []string{"medium", "dark", "light"}},
			{ID: bitterID, Name: "bitterness", Kind: models.KindNumeric},
			{ID: unusedNumID, Name: "density", Kind: models.KindNumeric},
			{ID: emptyCatID, Name: "aftertaste", Kind: models.KindCategorical},
		},
		Numeric: []models.NumericAssignment{
			{CoffeeTypeID: espressoID, CharacteristicID: acidityID, MinValue: 3, MaxValue: 5},
			{CoffeeTypeID: espressoID, CharacteristicID: bitterID, MinValue: 7, MaxValue: 7},
			{CoffeeTypeID: lungoID, CharacteristicID: acidityID, MinValue: 1, MaxValue: 2},
		},
		Categorical: []models.CategoricalAssignment{
			{CoffeeTypeID: espressoID, CharacteristicID: roastID, Value: "dark"},
			{CoffeeTypeID: lungoID, CharacteristicID: roastID, Value: "light"},
			{CoffeeTypeID: lungoID, CharacteristicID: roastID, Value: "medium"},
			{CoffeeTypeID: lungoID, CharacteristicID: regionID, Value: "kenya"},
			{CoffeeTypeID: lungoID, CharacteristicID: emptyCatID, Value: "long"},
		},
	}
}
