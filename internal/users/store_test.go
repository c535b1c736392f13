package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreCreateAndGet(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	user := &User{
		ID:           "user-1",
		Username:     "dana",
		PasswordHash: "hash",
		Role:         RoleRequester,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, user))

	got, err := store.GetByUsername(ctx, "dana")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, RoleRequester, got.Role)
}

func TestMemStoreDuplicateUsername(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &User{ID: "a", Username: "dana"}))
	err := store.Create(ctx, &User{ID: "b", Username: "dana"})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestMemStoreUnknownUser(t *testing.T) {
	store := NewMemStore()

	_, err := store.GetByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
