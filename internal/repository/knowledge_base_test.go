package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/models"
)

type seeded struct {
	espresso, lungo *models.CoffeeType
	acidity, roast  *models.Characteristic
}

func seed(t *testing.T, repo KnowledgeBaseRepository) seeded {
	t.Helper()
	ctx := context.Background()

	espresso, err := repo.CreateCoffeeType(ctx, "Espresso")
	require.NoError(t, err)
	lungo, err := repo.CreateCoffeeType(ctx, "Lungo")
	require.NoError(t, err)

	acidity := &models.Characteristic{Name: "acidity", Kind: models.KindNumeric, Limits: &models.NumericLimits{MinValue: 0, MaxValue: 10}}
	require.NoError(t, repo.CreateCharacteristic(ctx, acidity))
	roast := &models.Characteristic{Name: "roast_level", Kind: models.KindCategorical, Values: []string{"medium", "dark", "light"}}
	require.NoError(t, repo.CreateCharacteristic(ctx, roast))

	require.NoError(t, repo.UpsertNumericAssignment(ctx, &models.NumericAssignment{
		CoffeeTypeID: espresso.ID, CharacteristicID: acidity.ID, MinValue: 3, MaxValue: 5,
	}))
	require.NoError(t, repo.SetCategoricalAssignment(ctx, espresso.ID, roast.ID, []string{"dark"}))
	require.NoError(t, repo.SetCategoricalAssignment(ctx, lungo.ID, roast.ID, []string{"light", "medium"}))

	return seeded{espresso: espresso, lungo: lungo, acidity: acidity, roast: roast}
}

func TestKnowledgeBase_EmptyAfterMigration(t *testing.T) {
	repo := NewKnowledgeBaseRepository(newTestDB(t), zap.NewNop())

	c, err := repo.LoadCatalog(context.Background())
	require.NoError(t, err)
	assert.Empty(t, c.Types)
	assert.Empty(t, c.Characteristics)
	assert.Empty(t, c.Numeric)
	assert.Empty(t, c.Categorical)
	assert.False(t, c.Version.IsZero())
}

func TestKnowledgeBase_LoadCatalog(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeBaseRepository(newTestDB(t), zap.NewNop())
	s := seed(t, repo)

	c, err := repo.LoadCatalog(ctx)
	require.NoError(t, err)

	require.Len(t, c.Types, 2)
	assert.Equal(t, "Espresso", c.Types[0].Name)

	require.Len(t, c.Characteristics, 2)
	acidity, ok := c.CharacteristicByID(s.acidity.ID)
	require.True(t, ok)
	assert.Equal(t, models.KindNumeric, acidity.Kind)
	assert.Equal(t, &models.NumericLimits{MinValue: 0, MaxValue: 10}, acidity.Limits)
	roast, _ := c.CharacteristicByID(s.roast.ID)
	assert.Equal(t, []string{"dark", "light", "medium"}, roast.Values)
	assert.Nil(t, roast.Limits)

	require.Len(t, c.Numeric, 1)
	assert.Equal(t, 3.0, c.Numeric[0].MinValue)
	assert.Equal(t, map[int64][]string{s.roast.ID: {"light", "medium"}}, c.CategoricalFor(s.lungo.ID))

	last, err := repo.LastModified(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(c.Version))
}

func TestKnowledgeBase_Accessors(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeBaseRepository(newTestDB(t), zap.NewNop())
	s := seed(t, repo)

	vocab, err := repo.ListCategoricalVocabulary(ctx, s.roast.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dark", "light", "medium"}, vocab)

	lungoNumeric, err := repo.ListNumericAssignments(ctx, &s.lungo.ID)
	require.NoError(t, err)
	assert.Empty(t, lungoNumeric)

	allCategorical, err := repo.ListCategoricalAssignments(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, allCategorical, 3)

	espressoCategorical, err := repo.ListCategoricalAssignments(ctx, &s.espresso.ID)
	require.NoError(t, err)
	require.Len(t, espressoCategorical, 1)
	assert.Equal(t, "dark", espressoCategorical[0].Value)

	ct, err := repo.GetCoffeeType(ctx, s.lungo.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lungo", ct.Name)

	_, err = repo.GetCoffeeType(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	ch, err := repo.GetCharacteristic(ctx, s.acidity.ID)
	require.NoError(t, err)
	assert.Equal(t, "acidity", ch.Name)

	_, err = repo.GetCharacteristic(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKnowledgeBase_VersionAdvancesOnEveryWrite(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeBaseRepository(newTestDB(t), zap.NewNop()).(*knowledgeBaseRepository)
	frozen := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }

	prev, err := repo.LastModified(ctx)
	require.NoError(t, err)

	step := func(name string, fn func() error) {
		t.Helper()
		require.NoError(t, fn(), name)
		next, err := repo.LastModified(ctx)
		require.NoError(t, err)
		assert.True(t, next.After(prev), "%s: %s is not after %s", name, next, prev)
		prev = next
	}

	var ct *models.CoffeeType
	step("create type", func() (err error) {
		ct, err = repo.CreateCoffeeType(ctx, "Ristretto")
		return err
	})
	ch := &models.Characteristic{Name: "body", Kind: models.KindNumeric}
	step("create characteristic", func() error { return repo.CreateCharacteristic(ctx, ch) })
	step("upsert range", func() error {
		return repo.UpsertNumericAssignment(ctx, &models.NumericAssignment{CoffeeTypeID: ct.ID, CharacteristicID: ch.ID, MinValue: 1, MaxValue: 2})
	})
	step("delete assignment", func() error { return repo.DeleteAssignment(ctx, ct.ID, ch.ID) })
	step("set limits", func() error { return repo.SetNumericLimits(ctx, ch.ID, &models.NumericLimits{MinValue: 0, MaxValue: 5}) })
	step("delete type", func() error { return repo.DeleteCoffeeType(ctx, ct.ID) })
}

func TestKnowledgeBase_FailedWriteKeepsVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeBaseRepository(newTestDB(t), zap.NewNop())
	_, err := repo.CreateCoffeeType(ctx, "Espresso")
	require.NoError(t, err)

	before, err := repo.LastModified(ctx)
	require.NoError(t, err)

	_, err = repo.CreateCoffeeType(ctx, "Espresso")
	assert.ErrorIs(t, err, ErrDuplicate)

	after, err := repo.LastModified(ctx)
	require.NoError(t, err)
	assert.True(t, before.Equal(after))
}

func TestKnowledgeBase_UpsertReplacesRange(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeBaseRepository(newTestDB(t), zap.NewNop())
	s := seed(t, repo)

	require.NoError(t, repo.UpsertNumericAssignment(ctx, &models.NumericAssignment{
		CoffeeTypeID: s.espresso.ID, CharacteristicID: s.acidity.ID, MinValue: 4, MaxValue: 4,
	}))

	got, err := repo.ListNumericAssignments(ctx, &s.espresso.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4.0, got[0].MinValue)
	assert.Equal(t, 4.0, got[0].MaxValue)
}

func TestKnowledgeBase_Cascades(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeBaseRepository(newTestDB(t), zap.NewNop())

	t.Run("deleting a type removes its assignments", func(t *testing.T) {
		s := seed(t, repo)
		require.NoError(t, repo.DeleteCoffeeType(ctx, s.espresso.ID))

		c, err := repo.LoadCatalog(ctx)
		require.NoError(t, err)
		assert.Empty(t, c.NumericFor(s.espresso.ID))
		assert.Empty(t, c.CategoricalFor(s.espresso.ID))
		assert.NotEmpty(t, c.CategoricalFor(s.lungo.ID))

		assert.ErrorIs(t, repo.DeleteCoffeeType(ctx, s.espresso.ID), ErrNotFound)
		require.NoError(t, repo.DeleteCoffeeType(ctx, s.lungo.ID))
		require.NoError(t, repo.DeleteCharacteristic(ctx, s.acidity.ID))
		require.NoError(t, repo.DeleteCharacteristic(ctx, s.roast.ID))
	})

	t.Run("deleting a characteristic removes assignments and vocabulary", func(t *testing.T) {
		s := seed(t, repo)
		require.NoError(t, repo.DeleteCharacteristic(ctx, s.roast.ID))

		c, err := repo.LoadCatalog(ctx)
		require.NoError(t, err)
		assert.Empty(t, c.Categorical)
		assert.Len(t, c.Numeric, 1)

		vocab, err := repo.ListCategoricalVocabulary(ctx, s.roast.ID)
		require.NoError(t, err)
		assert.Empty(t, vocab)
	})
}

func TestKnowledgeBase_ReplaceVocabularyDropsIllegalAssignments(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeBaseRepository(newTestDB(t), zap.NewNop())
	s := seed(t, repo)

	require.NoError(t, repo.ReplaceVocabulary(ctx, s.roast.ID, []string{"dark", "medium", "extra dark"}))

	vocab, err := repo.ListCategoricalVocabulary(ctx, s.roast.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dark", "extra dark", "medium"}, vocab)

	got, err := repo.ListCategoricalAssignments(ctx, &s.lungo.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "medium", got[0].Value)

	require.NoError(t, repo.ReplaceVocabulary(ctx, s.roast.ID, nil))
	all, err := repo.ListCategoricalAssignments(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestKnowledgeBase_ReferentialErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeBaseRepository(newTestDB(t), zap.NewNop())
	s := seed(t, repo)

	err := repo.SetCategoricalAssignment(ctx, s.espresso.ID, s.roast.ID, []string{"burnt"})
	assert.ErrorIs(t, err, ErrNotFound, "values outside the vocabulary are rejected")

	err = repo.UpsertNumericAssignment(ctx, &models.NumericAssignment{CoffeeTypeID: 999, CharacteristicID: s.acidity.ID})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.DeleteAssignment(ctx, s.lungo.ID, s.acidity.ID), ErrNotFound)
	assert.ErrorIs(t, repo.SetNumericLimits(ctx, 999, nil), ErrNotFound)

	err = repo.CreateCharacteristic(ctx, &models.Characteristic{Name: "acidity", Kind: models.KindNumeric})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestKnowledgeBase_ClearLimits(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeBaseRepository(newTestDB(t), zap.NewNop())
	s := seed(t, repo)

	require.NoError(t, repo.SetNumericLimits(ctx, s.acidity.ID, nil))
	ch, err := repo.GetCharacteristic(ctx, s.acidity.ID)
	require.NoError(t, err)
	assert.Nil(t, ch.Limits)
}
