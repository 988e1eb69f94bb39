package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/models"
)

func TestExpertRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewExpertRepository(newTestDB(t), zap.NewNop())

	e := &models.Expert{Username: "barista", PasswordHash: "hash", Role: "expert"}
	require.NoError(t, repo.CreateFirstExpert(ctx, e))
	assert.NotZero(t, e.ID)

	got, err := repo.GetExpertByUsername(ctx, "barista")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = repo.GetExpertByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.CreateFirstExpert(ctx, &models.Expert{Username: "roaster", PasswordHash: "x", Role: "expert"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = repo.GetExpertByUsername(ctx, "roaster")
	assert.ErrorIs(t, err, ErrNotFound)
}
