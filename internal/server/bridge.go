package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"wc3-bridge/internal/bridge"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/lobby"
	"wc3-bridge/internal/profile"
	"wc3-bridge/internal/service"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const BridgeServicePath = "/wc3bridge.v1.BridgeService/"

const (
	GetLadderProcedure          = BridgeServicePath + "GetLadder"
	SearchLadderProcedure       = BridgeServicePath + "SearchLadder"
	GetProfileProcedure         = BridgeServicePath + "GetProfile"
	GetStatusProcedure          = BridgeServicePath + "GetStatus"
	RefreshLeaderboardProcedure = BridgeServicePath + "RefreshLeaderboard"
	ListMapsProcedure           = BridgeServicePath + "ListMaps"
	SelectMapProcedure          = BridgeServicePath + "SelectMap"
	CreateLobbyProcedure        = BridgeServicePath + "CreateLobby"
	UnhostProcedure             = BridgeServicePath + "Unhost"
	GetLobbyProcedure           = BridgeServicePath + "GetLobby"
	RegisterPlayerProcedure     = BridgeServicePath + "RegisterPlayer"
	ListGamesProcedure          = BridgeServicePath + "ListGames"
)

type BridgeServer struct {
	ladderSvc       *service.LadderService
	profileSvc      *service.ProfileService
	hostingSvc      *service.HostingService
	registrationSvc *service.RegistrationService
	logger          zerolog.Logger
}

func NewBridgeServer(
	ladderSvc *service.LadderService,
	profileSvc *service.ProfileService,
	hostingSvc *service.HostingService,
	registrationSvc *service.RegistrationService,
	logger zerolog.Logger,
) *BridgeServer {
	return &BridgeServer{
		ladderSvc:       ladderSvc,
		profileSvc:      profileSvc,
		hostingSvc:      hostingSvc,
		registrationSvc: registrationSvc,
		logger:          logger,
	}
}

// Options are the handler options every procedure shares. Clients need the
// same codec.
func Options(logger zerolog.Logger) []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(logErrors(logger)),
	}
}

// Handler returns the mount path and handler for every procedure.
func (s *BridgeServer) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(Options(s.logger), opts...)

	mux := http.NewServeMux()
	mux.Handle(GetLadderProcedure, connect.NewUnaryHandler(GetLadderProcedure, s.GetLadder, opts...))
	mux.Handle(SearchLadderProcedure, connect.NewUnaryHandler(SearchLadderProcedure, s.SearchLadder, opts...))
	mux.Handle(GetProfileProcedure, connect.NewUnaryHandler(GetProfileProcedure, s.GetProfile, opts...))
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, s.GetStatus, opts...))
	mux.Handle(RefreshLeaderboardProcedure, connect.NewUnaryHandler(RefreshLeaderboardProcedure, s.RefreshLeaderboard, opts...))
	mux.Handle(ListMapsProcedure, connect.NewUnaryHandler(ListMapsProcedure, s.ListMaps, opts...))
	mux.Handle(SelectMapProcedure, connect.NewUnaryHandler(SelectMapProcedure, s.SelectMap, opts...))
	mux.Handle(CreateLobbyProcedure, connect.NewUnaryHandler(CreateLobbyProcedure, s.CreateLobby, opts...))
	mux.Handle(UnhostProcedure, connect.NewUnaryHandler(UnhostProcedure, s.Unhost, opts...))
	mux.Handle(GetLobbyProcedure, connect.NewUnaryHandler(GetLobbyProcedure, s.GetLobby, opts...))
	mux.Handle(RegisterPlayerProcedure, connect.NewUnaryHandler(RegisterPlayerProcedure, s.RegisterPlayer, opts...))
	mux.Handle(ListGamesProcedure, connect.NewUnaryHandler(ListGamesProcedure, s.ListGames, opts...))
	return BridgeServicePath, mux
}

func (s *BridgeServer) GetLadder(ctx context.Context, req *connect.Request[GetLadderRequest]) (*connect.Response[GetLadderResponse], error) {
	page, err := s.ladderSvc.GetLadder(ctx, service.LadderQuery{
		Mode:   req.Msg.Mode,
		Race:   req.Msg.Race,
		League: req.Msg.League,
		Page:   req.Msg.Page,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&GetLadderResponse{
		Players:     page.Players,
		Total:       page.Total,
		Page:        page.Page,
		TotalPages:  page.TotalPages,
		GameMode:    page.GameMode,
		LastUpdated: optionalTime(page.LastUpdated),
	}), nil
}

func (s *BridgeServer) SearchLadder(ctx context.Context, req *connect.Request[SearchLadderRequest]) (*connect.Response[SearchLadderResponse], error) {
	hits, err := s.ladderSvc.Search(ctx, req.Msg.Query)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SearchLadderResponse{Results: hits}), nil
}

// GetProfile returns the merged profile as a Struct; its fields are whatever
// the game client sent plus seasons and matchStats.
func (s *BridgeServer) GetProfile(ctx context.Context, req *connect.Request[GetProfileRequest]) (*connect.Response[structpb.Struct], error) {
	p, err := s.profileSvc.GetProfile(ctx, req.Msg.BattleTag)
	if err != nil {
		return nil, toConnectError(err)
	}

	raw, err := json.Marshal(p.Map())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to encode profile: %w", err))
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to encode profile: %w", err))
	}

	resp := connect.NewResponse(out)
	if p.Fallback {
		resp.Header().Set("X-Profile-Fallback", "true")
	}
	return resp, nil
}

func (s *BridgeServer) GetStatus(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[GetStatusResponse], error) {
	st := s.ladderSvc.Status(ctx)
	return connect.NewResponse(&GetStatusResponse{
		Connected:     st.Connected,
		DataAvailable: st.DataAvailable,
		PlayerCount:   st.PlayerCount,
		HighestRank:   st.HighestRank,
		LastUpdated:   optionalTime(st.LastUpdated),
	}), nil
}

func (s *BridgeServer) RefreshLeaderboard(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[AckResponse], error) {
	if err := s.ladderSvc.Refresh(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AckResponse{Message: "Leaderboard refresh requested"}), nil
}

func (s *BridgeServer) ListMaps(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[ListMapsResponse], error) {
	maps, err := s.hostingSvc.ListMaps(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	if maps == nil {
		maps = []domain.MapEntry{}
	}
	return connect.NewResponse(&ListMapsResponse{Maps: maps}), nil
}

func (s *BridgeServer) SelectMap(ctx context.Context, req *connect.Request[SelectMapRequest]) (*connect.Response[SelectMapResponse], error) {
	m, err := s.hostingSvc.SelectMap(ctx, req.Msg.Query)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SelectMapResponse{Map: m, Path: m.Path()}), nil
}

func (s *BridgeServer) CreateLobby(ctx context.Context, req *connect.Request[CreateLobbyRequest]) (*connect.Response[AckResponse], error) {
	if err := s.hostingSvc.CreateLobby(ctx, req.Msg.GameName, req.Msg.Private); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AckResponse{Message: "Lobby creation requested"}), nil
}

func (s *BridgeServer) Unhost(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[AckResponse], error) {
	if err := s.hostingSvc.Unhost(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AckResponse{Message: "Lobby unhosted"}), nil
}

func (s *BridgeServer) GetLobby(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[GetLobbyResponse], error) {
	snap, err := s.hostingSvc.Lobby(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetLobbyResponse{
		State:     snap.State.String(),
		SessionID: snap.SessionID,
		Name:      snap.Name,
		MapName:   snap.MapName,
		Roster:    nonNil(snap.Roster),
		Banned:    nonNil(snap.Banned),
		OpenedAt:  optionalTime(snap.OpenedAt),
	}), nil
}

func (s *BridgeServer) RegisterPlayer(ctx context.Context, req *connect.Request[RegisterPlayerRequest]) (*connect.Response[RegisterPlayerResponse], error) {
	user, err := s.registrationSvc.Register(ctx, req.Msg.DiscordID, req.Msg.BattleTag)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RegisterPlayerResponse{
		DiscordID: user.DiscordID,
		BattleTag: user.BattleTag,
		CreatedAt: user.CreatedAt,
	}), nil
}

func (s *BridgeServer) ListGames(ctx context.Context, req *connect.Request[ListGamesRequest]) (*connect.Response[ListGamesResponse], error) {
	games, err := s.hostingSvc.ListGames(ctx, req.Msg.ObserverOnly)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewResponse(&ListGamesResponse{Games: games}), nil
}

func toConnectError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, bridge.ErrNotConnected), errors.Is(err, bridge.ErrStopped):
		code = connect.CodeUnavailable
	case errors.Is(err, profile.ErrRequestInProgress):
		code = connect.CodeResourceExhausted
	case errors.Is(err, profile.ErrProfileNotFound), errors.Is(err, bridge.ErrMapNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, profile.ErrInvalidIdentity),
		errors.Is(err, service.ErrInvalidBattleTag),
		errors.Is(err, service.ErrInvalidDiscordID),
		errors.Is(err, service.ErrEmptyQuery):
		code = connect.CodeInvalidArgument
	case errors.Is(err, lobby.ErrLobbyActive),
		errors.Is(err, lobby.ErrNoActiveLobby),
		errors.Is(err, bridge.ErrNoMapSelected):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, service.ErrAlreadyRegistered), errors.Is(err, service.ErrBattleTagTaken):
		code = connect.CodeAlreadyExists
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}

func logErrors(logger zerolog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				log := zerolog.Ctx(ctx)
				if log.GetLevel() == zerolog.Disabled {
					log = &logger
				}
				log.Warn().
					Err(err).
					Str("procedure", req.Spec().Procedure).
					Str("code", connect.CodeOf(err).String()).
					Dur("took", time.Since(start)).
					Msg("rpc failed")
			}
			return resp, err
		}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
