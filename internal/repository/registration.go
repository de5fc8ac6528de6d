package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"wc3-bridge/internal/db"
	"wc3-bridge/internal/domain"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDiscordIDExists = errors.New("discord account already registered")
	ErrBattleTagExists = errors.New("battle tag already registered")
)

type RegistrationRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewRegistrationRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *RegistrationRepository {
	return &RegistrationRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func (r *RegistrationRepository) Get(ctx context.Context, discordID string) (*domain.RegisteredUser, error) {
	u, err := r.queries.GetRegisteredUser(ctx, discordID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registered user: %w", err)
	}
	return toDomainUser(u), nil
}

func (r *RegistrationRepository) GetByBattleTag(ctx context.Context, battleTag string) (*domain.RegisteredUser, error) {
	u, err := r.queries.GetRegisteredUserByBattleTag(ctx, battleTag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registered user by battle tag: %w", err)
	}
	return toDomainUser(u), nil
}

// Create registers a user. Both the discord account and the tag must be unused;
// the checks and the insert share one transaction.
func (r *RegistrationRepository) Create(ctx context.Context, user domain.RegisteredUser) (*domain.RegisteredUser, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	if existing, err := qtx.GetRegisteredUser(ctx, user.DiscordID); err == nil {
		r.logger.Debug().Str("discord_id", user.DiscordID).Str("identity", existing.BattleTag).Msg("discord account already registered")
		return nil, fmt.Errorf("%w as %s", ErrDiscordIDExists, existing.BattleTag)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check discord account: %w", err)
	}

	if _, err := qtx.GetRegisteredUserByBattleTag(ctx, user.BattleTag); err == nil {
		return nil, ErrBattleTagExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check battle tag: %w", err)
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	err = qtx.CreateRegisteredUser(ctx, db.CreateRegisteredUserParams{
		DiscordID: user.DiscordID,
		BattleTag: user.BattleTag,
		CreatedAt: user.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert registered user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit registration: %w", err)
	}

	r.logger.Info().Str("discord_id", user.DiscordID).Str("identity", user.BattleTag).Msg("user registered")
	return &user, nil
}

func (r *RegistrationRepository) List(ctx context.Context) ([]domain.RegisteredUser, error) {
	users, err := r.queries.ListRegisteredUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list registered users: %w", err)
	}

	result := make([]domain.RegisteredUser, len(users))
	for i, u := range users {
		result[i] = *toDomainUser(u)
	}
	return result, nil
}

func toDomainUser(u db.RegisteredUser) *domain.RegisteredUser {
	return &domain.RegisteredUser{
		DiscordID: u.DiscordID,
		BattleTag: u.BattleTag,
		CreatedAt: u.CreatedAt,
	}
}
