package server

import (
	"time"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/ladder"
)

type GetLadderRequest struct {
	Mode   string `json:"mode"`
	Race   string `json:"race"`
	League string `json:"league"`
	Page   int    `json:"page"`
}

type GetLadderResponse struct {
	Players     []domain.RankedPlayerRecord `json:"players"`
	Total       int                         `json:"total"`
	Page        int                         `json:"page"`
	TotalPages  int                         `json:"totalPages"`
	GameMode    string                      `json:"gameMode"`
	LastUpdated *time.Time                  `json:"lastUpdated,omitempty"`
}

type SearchLadderRequest struct {
	Query string `json:"query"`
}

type SearchLadderResponse struct {
	Results []ladder.Hit `json:"results"`
}

type GetProfileRequest struct {
	BattleTag string `json:"battleTag"`
}

type GetStatusResponse struct {
	Connected     bool                `json:"connected"`
	DataAvailable bool                `json:"dataAvailable"`
	PlayerCount   int                 `json:"playerCount"`
	HighestRank   *domain.HighestRank `json:"highestRank"`
	LastUpdated   *time.Time          `json:"lastUpdated,omitempty"`
}

type AckResponse struct {
	Message string `json:"message"`
}

type ListMapsResponse struct {
	Maps []domain.MapEntry `json:"maps"`
}

type SelectMapRequest struct {
	Query string `json:"query"`
}

type SelectMapResponse struct {
	Map  domain.MapEntry `json:"map"`
	Path string          `json:"path"`
}

type CreateLobbyRequest struct {
	GameName string `json:"gameName"`
	Private  bool   `json:"private"`
}

type GetLobbyResponse struct {
	State     string     `json:"state"`
	SessionID string     `json:"sessionId,omitempty"`
	Name      string     `json:"name,omitempty"`
	MapName   string     `json:"mapName,omitempty"`
	Roster    []string   `json:"roster"`
	Banned    []string   `json:"banned"`
	OpenedAt  *time.Time `json:"openedAt,omitempty"`
}

type RegisterPlayerRequest struct {
	DiscordID string `json:"discordId"`
	BattleTag string `json:"battleTag"`
}

type RegisterPlayerResponse struct {
	DiscordID string    `json:"discordId"`
	BattleTag string    `json:"battleTag"`
	CreatedAt time.Time `json:"createdAt"`
}

type ListGamesRequest struct {
	ObserverOnly bool `json:"observerOnly"`
}

type ListGamesResponse struct {
	Games []domain.PublicGame `json:"games"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
