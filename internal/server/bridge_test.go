package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
	"wc3-bridge/internal/bridge"
	"wc3-bridge/internal/database"
	"wc3-bridge/internal/db"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/ladder"
	"wc3-bridge/internal/lobby"
	"wc3-bridge/internal/profile"
	"wc3-bridge/internal/repository"
	"wc3-bridge/internal/service"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type stubBridge struct {
	connected bool
	profile   domain.Profile
	err       error
	maps      []domain.MapEntry
	lobby     domain.LobbySnapshot
}

func (b *stubBridge) IsConnected() bool { return b.connected }

func (b *stubBridge) RequestProfile(context.Context, string) (domain.Profile, error) {
	return b.profile, b.err
}

func (b *stubBridge) Maps(context.Context) ([]domain.MapEntry, error) { return b.maps, nil }

func (b *stubBridge) SelectMap(_ context.Context, q string) (domain.MapEntry, error) {
	for _, m := range b.maps {
		if m.Title == q {
			return m, nil
		}
	}
	return domain.MapEntry{}, bridge.ErrMapNotFound
}

func (b *stubBridge) SelectedMap(context.Context) (domain.MapEntry, bool, error) {
	return domain.MapEntry{}, false, nil
}

func (b *stubBridge) CreateLobby(context.Context, string, bool) error { return lobby.ErrLobbyActive }
func (b *stubBridge) Unhost(context.Context) error                    { return lobby.ErrNoActiveLobby }
func (b *stubBridge) Lobby(context.Context) (domain.LobbySnapshot, error) {
	return b.lobby, nil
}

type stubGames struct{}

func (stubGames) ListGames(context.Context) ([]domain.PublicGame, error) {
	return []domain.PublicGame{{ID: 7, Name: "2v2 obs", Uptime: 12}}, nil
}

type harness struct {
	url    string
	client *http.Client
	bridge *stubBridge
	cache  *ladder.Cache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zerolog.Nop()

	sqlDB, err := database.Open(filepath.Join(t.TempDir(), "bridge.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	b := &stubBridge{connected: true, maps: []domain.MapEntry{{Title: "Echo Isles", Filename: "EchoIsles.w3x", Filepath: "Maps/"}}}
	cache := ladder.NewCache()
	repo := repository.NewRegistrationRepository(sqlDB, db.New(sqlDB), logger)

	srv := NewBridgeServer(
		service.NewLadderService(cache, b, logger),
		service.NewProfileService(b, 100*time.Millisecond, logger),
		service.NewHostingService(b, stubGames{}, logger),
		service.NewRegistrationService(repo, logger),
		logger,
	)

	mux := http.NewServeMux()
	path, handler := srv.Handler()
	mux.Handle(path, handler)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &harness{url: ts.URL, client: ts.Client(), bridge: b, cache: cache}
}

func call[Req, Res any](t *testing.T, h *harness, procedure string, req *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](h.client, h.url+procedure, connect.WithCodec(jsonCodec{}))
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func TestGetLadderAndStatus(t *testing.T) {
	h := newHarness(t)
	var rows []domain.RankedPlayerRecord
	for i := 1; i <= 27; i++ {
		rows = append(rows, domain.RankedPlayerRecord{BattleTag: fmt.Sprintf("P%d#1", i), Rank: i, Race: domain.RaceOrc})
	}
	h.cache.Update("1v1", rows, domain.PageInfo{})

	ladderResp, err := call[GetLadderRequest, GetLadderResponse](t, h, GetLadderProcedure, &GetLadderRequest{Mode: "1v1", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 27, ladderResp.Total)
	assert.Equal(t, 2, ladderResp.TotalPages)
	require.Len(t, ladderResp.Players, 2)
	assert.Equal(t, "P26#1", ladderResp.Players[0].BattleTag)
	assert.NotNil(t, ladderResp.LastUpdated)

	status, err := call[emptypb.Empty, GetStatusResponse](t, h, GetStatusProcedure, &emptypb.Empty{})
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.True(t, status.DataAvailable)
	assert.Equal(t, 27, status.PlayerCount)
	assert.Nil(t, status.HighestRank)

	search, err := call[SearchLadderRequest, SearchLadderResponse](t, h, SearchLadderProcedure, &SearchLadderRequest{Query: "p2"})
	require.NoError(t, err)
	assert.Len(t, search.Results, 9)

	_, err = call[SearchLadderRequest, SearchLadderResponse](t, h, SearchLadderProcedure, &SearchLadderRequest{})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestGetProfileReturnsStruct(t *testing.T) {
	h := newHarness(t)
	h.bridge.profile = domain.Profile{
		Identity: "Foo#123",
		Details:  map[string]any{"battle_tag_full": "Foo#123", "level": 12.0},
		Seasons: []domain.Season{{Season: 7, Races: []domain.SeasonRace{{
			Race:  1,
			Stats: []domain.SeasonStat{{StatName: "wins", Sum: 3}},
		}}}},
		MatchStats: map[string]domain.MatchStat{"Human": {Wins: 3, TotalGames: 3}},
	}

	resp, err := call[GetProfileRequest, structpb.Struct](t, h, GetProfileProcedure, &GetProfileRequest{BattleTag: "Foo#123"})
	require.NoError(t, err)

	fields := resp.AsMap()
	assert.Equal(t, "Foo#123", fields["battle_tag_full"])
	assert.Equal(t, 12.0, fields["level"])
	seasons, ok := fields["seasons"].([]any)
	require.True(t, ok)
	assert.Len(t, seasons, 1)
	stats := fields["matchStats"].(map[string]any)["Human"].(map[string]any)
	assert.Equal(t, 3.0, stats["wins"])
}

func TestErrorCodes(t *testing.T) {
	h := newHarness(t)

	h.bridge.err = profile.ErrRequestInProgress
	_, err := call[GetProfileRequest, structpb.Struct](t, h, GetProfileProcedure, &GetProfileRequest{BattleTag: "Foo#123"})
	assert.Equal(t, connect.CodeResourceExhausted, connect.CodeOf(err))

	h.bridge.err = profile.ErrProfileNotFound
	_, err = call[GetProfileRequest, structpb.Struct](t, h, GetProfileProcedure, &GetProfileRequest{BattleTag: "Foo#123"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = call[GetProfileRequest, structpb.Struct](t, h, GetProfileProcedure, &GetProfileRequest{})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = call[CreateLobbyRequest, AckResponse](t, h, CreateLobbyProcedure, &CreateLobbyRequest{})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = call[SelectMapRequest, SelectMapResponse](t, h, SelectMapProcedure, &SelectMapRequest{Query: "Turtle Rock"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	h.bridge.connected = false
	_, err = call[emptypb.Empty, AckResponse](t, h, RefreshLeaderboardProcedure, &emptypb.Empty{})
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
	_, err = call[emptypb.Empty, AckResponse](t, h, UnhostProcedure, &emptypb.Empty{})
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestHostingProcedures(t *testing.T) {
	h := newHarness(t)

	maps, err := call[emptypb.Empty, ListMapsResponse](t, h, ListMapsProcedure, &emptypb.Empty{})
	require.NoError(t, err)
	require.Len(t, maps.Maps, 1)

	picked, err := call[SelectMapRequest, SelectMapResponse](t, h, SelectMapProcedure, &SelectMapRequest{Query: "Echo Isles"})
	require.NoError(t, err)
	assert.Equal(t, "Maps/EchoIsles.w3x", picked.Path)

	lobbyResp, err := call[emptypb.Empty, GetLobbyResponse](t, h, GetLobbyProcedure, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "NoLobby", lobbyResp.State)
	assert.Empty(t, lobbyResp.Roster)

	games, err := call[ListGamesRequest, ListGamesResponse](t, h, ListGamesProcedure, &ListGamesRequest{ObserverOnly: true})
	require.NoError(t, err)
	require.Len(t, games.Games, 1)
	assert.Equal(t, 7, games.Games[0].ID)
}

func TestRegisterPlayer(t *testing.T) {
	h := newHarness(t)

	resp, err := call[RegisterPlayerRequest, RegisterPlayerResponse](t, h, RegisterPlayerProcedure, &RegisterPlayerRequest{DiscordID: "1", BattleTag: "Grubby#1234"})
	require.NoError(t, err)
	assert.Equal(t, "Grubby#1234", resp.BattleTag)

	_, err = call[RegisterPlayerRequest, RegisterPlayerResponse](t, h, RegisterPlayerProcedure, &RegisterPlayerRequest{DiscordID: "2", BattleTag: "grubby#1234"})
	assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	_, err = call[RegisterPlayerRequest, RegisterPlayerResponse](t, h, RegisterPlayerProcedure, &RegisterPlayerRequest{DiscordID: "3", BattleTag: "grubby"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestToConnectError(t *testing.T) {
	cases := []struct {
		err  error
		code connect.Code
	}{
		{fmt.Errorf("GetProfile: %w", bridge.ErrNotConnected), connect.CodeUnavailable},
		{bridge.ErrStopped, connect.CodeUnavailable},
		{bridge.ErrNoMapSelected, connect.CodeFailedPrecondition},
		{service.ErrBattleTagTaken, connect.CodeAlreadyExists},
		{context.DeadlineExceeded, connect.CodeDeadlineExceeded},
		{errors.New("boom"), connect.CodeInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, connect.CodeOf(toConnectError(tc.err)), tc.err.Error())
	}
}
