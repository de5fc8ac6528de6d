package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"wc3-bridge/internal/constants"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidBattleTag  = errors.New("invalid battle tag format, expected Name#1234")
	ErrInvalidDiscordID  = errors.New("discord id required")
	ErrAlreadyRegistered = errors.New("discord account already registered")
	ErrBattleTagTaken    = errors.New("battle tag already registered by another user")
)

var battleTagPattern = regexp.MustCompile(`^[a-zA-Z0-9]+#[0-9]+$`)

type RegistrationStore interface {
	Create(ctx context.Context, user domain.RegisteredUser) (*domain.RegisteredUser, error)
	List(ctx context.Context) ([]domain.RegisteredUser, error)
}

// RegistrationService records which BattleTags belong to community members.
// It keeps the registered set in memory so the lobby can check chat senders
// without touching the database.
type RegistrationService struct {
	store  RegistrationStore
	logger zerolog.Logger

	mu         sync.RWMutex
	registered map[string]struct{}
}

func NewRegistrationService(store RegistrationStore, logger zerolog.Logger) *RegistrationService {
	return &RegistrationService{
		store:      store,
		logger:     logger,
		registered: make(map[string]struct{}),
	}
}

// Load fills the in-memory set from the store.
func (s *RegistrationService) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	users, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load registered users: %w", err)
	}

	set := make(map[string]struct{}, len(users))
	for _, u := range users {
		set[domain.NormalizeIdentity(u.BattleTag)] = struct{}{}
	}

	s.mu.Lock()
	s.registered = set
	s.mu.Unlock()

	s.logger.Info().Int("users", len(set)).Msg("registered users loaded")
	return nil
}

func (s *RegistrationService) Register(ctx context.Context, discordID, battleTag string) (*domain.RegisteredUser, error) {
	discordID = strings.TrimSpace(discordID)
	battleTag = strings.TrimSpace(battleTag)
	if discordID == "" {
		return nil, ErrInvalidDiscordID
	}
	if !battleTagPattern.MatchString(battleTag) {
		return nil, ErrInvalidBattleTag
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	user, err := s.store.Create(ctx, domain.RegisteredUser{DiscordID: discordID, BattleTag: battleTag})
	switch {
	case errors.Is(err, repository.ErrDiscordIDExists):
		return nil, fmt.Errorf("%w: %v", ErrAlreadyRegistered, err)
	case errors.Is(err, repository.ErrBattleTagExists):
		return nil, ErrBattleTagTaken
	case err != nil:
		return nil, err
	}

	s.mu.Lock()
	s.registered[domain.NormalizeIdentity(user.BattleTag)] = struct{}{}
	s.mu.Unlock()

	return user, nil
}

// IsRegistered reports whether identity belongs to a registered user, ignoring case.
func (s *RegistrationService) IsRegistered(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registered[domain.NormalizeIdentity(identity)]
	return ok
}
