package repository

import (
	"context"
	"path/filepath"
	"testing"
	"wc3-bridge/internal/database"
	"wc3-bridge/internal/db"
	"wc3-bridge/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *RegistrationRepository {
	t.Helper()
	sqlDB, err := database.Open(filepath.Join(t.TempDir(), "bridge.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewRegistrationRepository(sqlDB, db.New(sqlDB), zerolog.Nop())
}

func TestCreateAndGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.RegisteredUser{DiscordID: "42", BattleTag: "Grubby#1234"})
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Grubby#1234", got.BattleTag)

	got, err = repo.GetByBattleTag(ctx, "grubby#1234")
	require.NoError(t, err)
	assert.Equal(t, "42", got.DiscordID)

	_, err = repo.Get(ctx, "43")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRejectsDuplicates(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, domain.RegisteredUser{DiscordID: "42", BattleTag: "Grubby#1234"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, domain.RegisteredUser{DiscordID: "42", BattleTag: "Moon#1"})
	assert.ErrorIs(t, err, ErrDiscordIDExists)

	_, err = repo.Create(ctx, domain.RegisteredUser{DiscordID: "7", BattleTag: "GRUBBY#1234"})
	assert.ErrorIs(t, err, ErrBattleTagExists)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "42", users[0].DiscordID)
}
