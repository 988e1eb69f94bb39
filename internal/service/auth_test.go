package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/repository"
)

func newAuth(t *testing.T, ttl time.Duration) AuthService {
	t.Helper()
	repo := repository.NewExpertRepository(newTestDB(t), zap.NewNop())
	return NewAuthService(repo, "test-secret", ttl, zap.NewNop())
}

func TestAuthService_RegisterOnlyFirstExpert(t *testing.T) {
	ctx := context.Background()
	auth := newAuth(t, time.Hour)

	expert, err := auth.Register(ctx, "  barista ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "barista", expert.Username)
	assert.Equal(t, RoleExpert, expert.Role)
	assert.True(t, strings.HasPrefix(expert.PasswordHash, "$argon2id$"))

	_, err = auth.Register(ctx, "second", "pw")
	assert.ErrorIs(t, err, ErrExpertExists)

	_, err = auth.Register(ctx, "", "pw")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuthService_ConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	auth := newAuth(t, time.Hour)

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = auth.Register(ctx, fmt.Sprintf("expert%d", i), "pw")
		}()
	}
	wg.Wait()

	registered := 0
	for _, err := range errs {
		if err == nil {
			registered++
			continue
		}
		assert.ErrorIs(t, err, ErrExpertExists)
	}
	assert.Equal(t, 1, registered)
}

func TestAuthService_LoginAndParseToken(t *testing.T) {
	ctx := context.Background()
	auth := newAuth(t, time.Hour)
	_, err := auth.Register(ctx, "barista", "s3cret")
	require.NoError(t, err)

	token, expires, err := auth.Login(ctx, "barista", "s3cret")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "barista", claims.Username)
	assert.Equal(t, RoleExpert, claims.Role)

	_, _, err = auth.Login(ctx, "barista", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = auth.Login(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_ParseTokenRejects(t *testing.T) {
	ctx := context.Background()

	expired := newAuth(t, -time.Minute)
	_, err := expired.Register(ctx, "barista", "pw")
	require.NoError(t, err)
	token, _, err := expired.Login(ctx, "barista", "pw")
	require.NoError(t, err)
	_, err = expired.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	other := NewAuthService(nil, "another-secret", time.Hour, zap.NewNop())
	fresh := newAuth(t, time.Hour)
	_, err = fresh.Register(ctx, "barista", "pw")
	require.NoError(t, err)
	token, _, err = fresh.Login(ctx, "barista", "pw")
	require.NoError(t, err)
	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = fresh.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("espresso")
	require.NoError(t, err)
	assert.True(t, verifyPassword(hash, "espresso"))
	assert.False(t, verifyPassword(hash, "lungo"))

	again, err := hashPassword("espresso")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salt must differ")

	for _, bad := range []string{"", "plain", "$argon2i$v=19$m=1,t=1,p=1$AA$AA", strings.Replace(hash, "v=19", "v=x", 1)} {
		assert.False(t, verifyPassword(bad, "espresso"), bad)
	}
}
