package fx

import (
	"context"
	"database/sql"
	"wc3-bridge/internal/api"
	"wc3-bridge/internal/bridge"
	"wc3-bridge/internal/config"
	"wc3-bridge/internal/constants"
	"wc3-bridge/internal/database"
	"wc3-bridge/internal/db"
	"wc3-bridge/internal/ladder"
	"wc3-bridge/internal/lobby"
	"wc3-bridge/internal/logger"
	"wc3-bridge/internal/profile"
	"wc3-bridge/internal/repository"
	"wc3-bridge/internal/server"
	"wc3-bridge/internal/service"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideQueries(sqlDB *sql.DB) *db.Queries {
	return db.New(sqlDB)
}

func ProvideSnapshotStore(cfg *config.Config, logger zerolog.Logger) *ladder.SnapshotStore {
	return ladder.NewSnapshotStore(cfg.LadderSnapshotPath, logger)
}

func ProvideRegistry(svc *service.RegistrationService) lobby.Registry {
	return svc
}

// ProvideBridge restores the last ladder snapshot before the bridge starts
// taking pushes.
func ProvideBridge(cfg *config.Config, cache *ladder.Cache, snapshots *ladder.SnapshotStore, registry lobby.Registry, logger zerolog.Logger) *bridge.Manager {
	snap, err := snapshots.Load()
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.LadderSnapshotPath).Msg("ignoring unreadable ladder snapshot")
	} else {
		cache.Restore(snap)
		logger.Info().Int("players", cache.PlayerCount()).Msg("ladder snapshot restored")
	}

	lobbyOpts := lobby.DefaultOptions()
	lobbyOpts.Admins = cfg.AdminBattleTags
	lobbyOpts.DiscordInvite = cfg.DiscordInvite
	lobbyOpts.RankedSeason = cfg.RankedSeason

	opts := bridge.Options{
		URL:             cfg.WebSocketURL,
		ReconnectDelay:  cfg.ReconnectDelay,
		MapDirectory:    constants.MapDirectory,
		DefaultGameName: cfg.DefaultGameName,
		Profile: profile.Options{
			Timeout:                      cfg.ProfileTimeout,
			GraceWindow:                  cfg.ProfileGraceWindow,
			FallbackSeason:               cfg.RankedSeason,
			EnableMatchHistoryEnrichment: cfg.MatchHistoryEnabled,
			MatchHistoryInterval:         cfg.MatchHistoryInterval,
		},
		Lobby: lobbyOpts,
	}
	return bridge.New(opts, websocket.DefaultDialer, clockwork.NewRealClock(), cache, snapshots, registry, logger)
}

func ProvideProfileService(m *bridge.Manager, cfg *config.Config, logger zerolog.Logger) *service.ProfileService {
	return service.NewProfileService(m, cfg.ProfileTimeout, logger)
}

// RunBridge ties the bridge and the registered-user set to the app lifecycle.
func RunBridge(lc fx.Lifecycle, m *bridge.Manager, registrations *service.RegistrationService, logger zerolog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := registrations.Load(startCtx); err != nil {
				return err
			}
			go func() {
				defer close(done)
				if err := m.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("bridge stopped")
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				logger.Info().Msg("bridge stopped")
			case <-stopCtx.Done():
				logger.Warn().Msg("bridge did not stop in time")
			}
			return nil
		},
	})
}

var Module = fx.Options(
	logger.Module,
	fx.Provide(config.Load),
	fx.Provide(database.New),
	fx.Provide(ProvideQueries),
	// repos
	fx.Provide(fx.Annotate(repository.NewRegistrationRepository, fx.As(new(service.RegistrationStore)))),
	// ladder + bridge
	fx.Provide(ladder.NewCache),
	fx.Provide(ProvideSnapshotStore),
	fx.Provide(ProvideRegistry),
	fx.Provide(ProvideBridge),
	fx.Provide(
		func(m *bridge.Manager) service.ConnectionState { return m },
		func(m *bridge.Manager) service.Host { return m },
	),
	// api client
	fx.Provide(fx.Annotate(api.NewWC3StatsClient, fx.As(new(service.GameLister)))),
	// svc
	fx.Provide(service.NewRegistrationService),
	fx.Provide(service.NewLadderService),
	fx.Provide(ProvideProfileService),
	fx.Provide(service.NewHostingService),
	// server
	fx.Provide(server.NewBridgeServer),
	fx.Invoke(RunBridge),
)
