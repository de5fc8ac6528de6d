package bridge

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"wc3-bridge/internal/constants"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/profile"
	"wc3-bridge/internal/protocol"
)

var (
	ErrMapNotFound   = errors.New("no map matches")
	ErrNoMapSelected = errors.New("no map selected")
)

// RequestProfile asks the game client for a profile and waits for the merged
// result, a fallback, or ctx. Giving up on ctx does not cancel the request;
// it still runs into its own timeout.
func (m *Manager) RequestProfile(ctx context.Context, identity string) (domain.Profile, error) {
	if !m.IsConnected() {
		return domain.Profile{}, ErrNotConnected
	}

	results := make(chan profile.Result, 1)
	var reqErr error
	err := m.call(ctx, func() {
		reqErr = m.resolver.Request(identity, func(r profile.Result) {
			results <- r
		})
	})
	if err != nil {
		return domain.Profile{}, err
	}
	if reqErr != nil {
		return domain.Profile{}, reqErr
	}

	select {
	case r := <-results:
		return r.Profile, r.Err
	case <-ctx.Done():
		return domain.Profile{}, ctx.Err()
	}
}

// ProfileState reports where the outstanding request for identity stands.
func (m *Manager) ProfileState(ctx context.Context, identity string) (profile.State, bool, error) {
	var (
		state profile.State
		ok    bool
	)
	err := m.call(ctx, func() { state, ok = m.resolver.State(identity) })
	return state, ok, err
}

func (m *Manager) Maps(ctx context.Context) ([]domain.MapEntry, error) {
	var out []domain.MapEntry
	err := m.call(ctx, func() { out = slices.Clone(m.maps) })
	return out, err
}

// SelectMap picks the first map whose title matches query, case-insensitively.
// Invalid patterns are matched literally.
func (m *Manager) SelectMap(ctx context.Context, query string) (domain.MapEntry, error) {
	re, err := regexp.Compile("(?i)" + query)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(query))
	}

	var (
		picked domain.MapEntry
		found  bool
	)
	err = m.call(ctx, func() {
		for _, e := range m.maps {
			if re.MatchString(e.Title) {
				picked, found = e, true
				sel := e
				m.selected = &sel
				return
			}
		}
	})
	if err != nil {
		return domain.MapEntry{}, err
	}
	if !found {
		return domain.MapEntry{}, ErrMapNotFound
	}

	m.logger.Info().Str("map", picked.Title).Str("path", picked.Path()).Msg("map selected")
	return picked, nil
}

func (m *Manager) SelectedMap(ctx context.Context) (domain.MapEntry, bool, error) {
	var (
		sel domain.MapEntry
		ok  bool
	)
	err := m.call(ctx, func() {
		if m.selected != nil {
			sel, ok = *m.selected, true
		}
	})
	return sel, ok, err
}

// CreateLobby hosts the selected map. The name falls back to the configured default.
func (m *Manager) CreateLobby(ctx context.Context, gameName string, private bool) error {
	if gameName == "" {
		gameName = m.opts.DefaultGameName
	}

	var opErr error
	err := m.call(ctx, func() {
		if m.selected == nil {
			opErr = ErrNoMapSelected
			return
		}
		opErr = m.lobby.CreateLobby(protocol.CreateLobbyRequest{
			Filename:    m.selected.Path(),
			GameName:    gameName,
			GameSpeed:   constants.LobbyGameSpeed,
			PrivateGame: private,
			MapSettings: protocol.DefaultMapSettings(),
		})
	})
	if err != nil {
		return err
	}
	return opErr
}

func (m *Manager) Unhost(ctx context.Context) error {
	var opErr error
	if err := m.call(ctx, func() { opErr = m.lobby.Unhost() }); err != nil {
		return err
	}
	return opErr
}

func (m *Manager) Lobby(ctx context.Context) (domain.LobbySnapshot, error) {
	var snap domain.LobbySnapshot
	err := m.call(ctx, func() { snap = m.lobby.Snapshot() })
	return snap, err
}
