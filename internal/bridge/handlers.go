package bridge

import (
	"errors"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/ladder"
	"wc3-bridge/internal/profile"
	"wc3-bridge/internal/protocol"
)

var errNoLeaderboardMessage = errors.New("leaderboard push without message")

func (m *Manager) handleLeaderboard(env protocol.Envelope) error {
	var p protocol.LeaderboardPayload
	if err := env.Unmarshal(&p); err != nil {
		return err
	}
	if p.Message == nil {
		return errNoLeaderboardMessage
	}
	if len(p.Message.Rows) == 0 {
		m.logger.Debug().Msg("empty leaderboard push ignored")
		return nil
	}

	mode := ladder.ModeOf(*p.Message)
	records := ladder.Records(p.Message.Rows)
	m.ladder.Update(mode, records, domain.PageInfo{
		CurrentPage: p.Message.CurrentPage,
		TotalPages:  p.Message.TotalPages,
	})
	m.persist()

	m.logger.Info().
		Str("mode", mode).
		Int("rows", len(records)).
		Int("page", p.Message.CurrentPage+1).
		Int("total_pages", p.Message.TotalPages).
		Msg("ladder updated")
	return nil
}

func (m *Manager) handleHighestRank(env protocol.Envelope) error {
	var p protocol.HighestRankPayload
	if err := env.Unmarshal(&p); err != nil {
		return err
	}
	h := ladder.HighestRankFrom(p)
	m.ladder.SetHighestRank(h)
	m.persist()

	m.logger.Info().Str("identity", h.BattleTag).Int("rank", h.Rank).Msg("highest rank updated")
	return nil
}

func (m *Manager) handleProfile(env protocol.Envelope) error {
	d, err := profile.ParseDetails(env)
	if err != nil {
		return err
	}
	m.resolver.OnBasicProfile(d)
	m.lobby.OnProfile(d)
	return nil
}

func (m *Manager) handleProfileStats(env protocol.Envelope) error {
	d, err := profile.ParseDetails(env)
	if err != nil {
		return err
	}
	m.resolver.OnSeasonStats(d)
	m.lobby.OnProfileStats(d)
	return nil
}

func (m *Manager) handleMatchHistory(env protocol.Envelope) error {
	var p protocol.MatchHistoryPayload
	if err := env.Unmarshal(&p); err != nil {
		return err
	}
	m.resolver.OnMatchHistory(p)
	return nil
}

func (m *Manager) handleMapList(env protocol.Envelope) error {
	var p protocol.MapListPayload
	if err := env.Unmarshal(&p); err != nil {
		return err
	}

	maps := make([]domain.MapEntry, 0, len(p.MapList.Maps))
	for _, e := range p.MapList.Maps {
		if e.IsFolder {
			continue
		}
		title := e.Title
		if title == "" {
			title = e.Name
		}
		if title == "" {
			title = e.Filename
		}
		maps = append(maps, domain.MapEntry{Title: title, Filename: e.Filename, Filepath: e.Filepath})
	}
	m.maps = maps

	m.logger.Info().Int("maps", len(maps)).Msg("map list received")
	return nil
}

func (m *Manager) handleLobbySetup(env protocol.Envelope) error {
	var p protocol.LobbySetupPayload
	if err := env.Unmarshal(&p); err != nil {
		return err
	}
	m.lobby.OnLobbySetup(p)
	return nil
}

func (m *Manager) handleChat(env protocol.Envelope) error {
	var p protocol.ChatMessagePayload
	if err := env.Unmarshal(&p); err != nil {
		return err
	}
	m.lobby.OnChat(p)
	return nil
}

func (m *Manager) handleChannelUpdate(env protocol.Envelope) error {
	var p protocol.ChannelUpdatePayload
	if err := env.Unmarshal(&p); err != nil {
		return err
	}
	diff := m.lobby.OnChannelUpdate(p)
	if len(diff.Joined)+len(diff.Left) > 0 {
		m.logger.Debug().Strs("joined", diff.Joined).Strs("left", diff.Left).Msg("roster changed")
	}
	return nil
}

func (m *Manager) handleGracefulExit(protocol.Envelope) error {
	m.lobby.OnGracefulExit()
	return nil
}

func (m *Manager) handleGameUIActive(protocol.Envelope) error {
	m.lobby.OnGameUIActive()
	return nil
}
