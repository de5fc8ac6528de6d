package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"wc3-bridge/internal/api"
	"wc3-bridge/internal/bridge"
	"wc3-bridge/internal/constants"
	"wc3-bridge/internal/domain"

	"github.com/rs/zerolog"
)

// observerGameMaxAge matches the window in which a hosted game is still worth announcing.
const observerGameMaxAge = 5 * time.Minute

type Host interface {
	IsConnected() bool
	Maps(ctx context.Context) ([]domain.MapEntry, error)
	SelectMap(ctx context.Context, query string) (domain.MapEntry, error)
	SelectedMap(ctx context.Context) (domain.MapEntry, bool, error)
	CreateLobby(ctx context.Context, gameName string, private bool) error
	Unhost(ctx context.Context) error
	Lobby(ctx context.Context) (domain.LobbySnapshot, error)
}

type GameLister interface {
	ListGames(ctx context.Context) ([]domain.PublicGame, error)
}

type HostingService struct {
	host   Host
	games  GameLister
	logger zerolog.Logger
}

func NewHostingService(host Host, games GameLister, logger zerolog.Logger) *HostingService {
	return &HostingService{host: host, games: games, logger: logger}
}

func (s *HostingService) ListMaps(ctx context.Context) ([]domain.MapEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.BridgeCallTimeout)
	defer cancel()
	return s.host.Maps(ctx)
}

func (s *HostingService) SelectMap(ctx context.Context, query string) (domain.MapEntry, error) {
	if strings.TrimSpace(query) == "" {
		return domain.MapEntry{}, ErrEmptyQuery
	}
	ctx, cancel := context.WithTimeout(ctx, constants.BridgeCallTimeout)
	defer cancel()
	return s.host.SelectMap(ctx, query)
}

func (s *HostingService) CreateLobby(ctx context.Context, gameName string, private bool) error {
	if !s.host.IsConnected() {
		return bridge.ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, constants.BridgeCallTimeout)
	defer cancel()

	if err := s.host.CreateLobby(ctx, strings.TrimSpace(gameName), private); err != nil {
		return err
	}
	if m, ok, err := s.host.SelectedMap(ctx); err == nil && ok {
		s.logger.Info().Str("game", gameName).Str("map", m.Title).Bool("private", private).Msg("lobby requested")
	}
	return nil
}

func (s *HostingService) Unhost(ctx context.Context) error {
	if !s.host.IsConnected() {
		return bridge.ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, constants.BridgeCallTimeout)
	defer cancel()
	return s.host.Unhost(ctx)
}

func (s *HostingService) Lobby(ctx context.Context) (domain.LobbySnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.BridgeCallTimeout)
	defer cancel()
	return s.host.Lobby(ctx)
}

// ListGames returns public games, optionally only fresh observer games.
func (s *HostingService) ListGames(ctx context.Context, observerOnly bool) ([]domain.PublicGame, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	games, err := s.games.ListGames(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to list public games")
		return nil, fmt.Errorf("failed to list public games: %w", err)
	}
	if observerOnly {
		games = api.ObserverGames(games, observerGameMaxAge)
	}
	return games, nil
}
