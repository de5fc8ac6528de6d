package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"wc3-bridge/internal/bridge"
	"wc3-bridge/internal/constants"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/ladder"

	"github.com/rs/zerolog"
)

var ErrEmptyQuery = errors.New("search query required")

// modeGroups maps the ladder page's mode labels to cache modes.
var modeGroups = map[string][]string{
	"1v1":          {"1v1"},
	"2v2":          {"2v2"},
	"2v2 Arranged": {"2v2arranged"},
	"3v3":          {"3v3"},
	"3v3 Arranged": {"3v3arranged"},
	"4v4":          {"4v4"},
	"4v4 Arranged": {"4v4arranged"},
	"FFA":          {"ffa", "sffa"},
}

// ConnectionState reports whether the game client socket is up.
type ConnectionState interface {
	IsConnected() bool
}

type LadderQuery struct {
	Mode   string
	Race   string
	League string
	Page   int
}

type LadderPage struct {
	Players     []domain.RankedPlayerRecord
	Total       int
	Page        int
	TotalPages  int
	GameMode    string
	LastUpdated time.Time
}

type Status struct {
	Connected     bool
	DataAvailable bool
	PlayerCount   int
	HighestRank   *domain.HighestRank
	LastUpdated   time.Time
}

type LadderService struct {
	cache  *ladder.Cache
	conn   ConnectionState
	logger zerolog.Logger
}

func NewLadderService(cache *ladder.Cache, conn ConnectionState, logger zerolog.Logger) *LadderService {
	return &LadderService{cache: cache, conn: conn, logger: logger}
}

// GetLadder combines the modes behind q.Mode, filters by race and league and
// returns one page. Unknown modes fall back to 1v1; "all" or empty filters are ignored.
func (s *LadderService) GetLadder(ctx context.Context, q LadderQuery) (*LadderPage, error) {
	label := q.Mode
	modes, ok := modeGroups[label]
	if !ok {
		label = "1v1"
		modes = modeGroups[label]
	}

	var rows []domain.RankedPlayerRecord
	for _, m := range modes {
		rows = append(rows, s.cache.Get(m)...)
	}

	if race := normalizeFilter(q.Race); race != "" && race != "allraces" {
		rows = filter(rows, func(r domain.RankedPlayerRecord) bool {
			return normalizeFilter(string(r.Race)) == race
		})
	}
	if league := normalizeFilter(q.League); league != "" {
		rows = filter(rows, func(r domain.RankedPlayerRecord) bool {
			return strings.EqualFold(string(r.League), league)
		})
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	total := len(rows)
	totalPages := (total + constants.LadderPageSize - 1) / constants.LadderPageSize
	start := min((page-1)*constants.LadderPageSize, total)
	end := min(start+constants.LadderPageSize, total)

	s.logger.Debug().
		Str("mode", label).
		Str("race", q.Race).
		Str("league", q.League).
		Int("page", page).
		Int("total", total).
		Msg("ladder page served")

	return &LadderPage{
		Players:     append([]domain.RankedPlayerRecord{}, rows[start:end]...),
		Total:       total,
		Page:        page,
		TotalPages:  totalPages,
		GameMode:    label,
		LastUpdated: s.cache.LastUpdated(),
	}, nil
}

func (s *LadderService) Search(ctx context.Context, query string) ([]ladder.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	return s.cache.Search(query, constants.LadderSearchLimit), nil
}

func (s *LadderService) Status(ctx context.Context) Status {
	st := Status{
		Connected:   s.conn.IsConnected(),
		PlayerCount: s.cache.PlayerCount(),
		LastUpdated: s.cache.LastUpdated(),
	}
	st.DataAvailable = st.PlayerCount > 0
	if h, ok := s.cache.HighestRank(); ok {
		st.HighestRank = &h
	}
	return st
}

// Refresh acknowledges a refresh request. Leaderboard pushes are started by
// the game client, so there is nothing to send.
func (s *LadderService) Refresh(ctx context.Context) error {
	if !s.conn.IsConnected() {
		return bridge.ErrNotConnected
	}
	s.logger.Info().Msg("leaderboard refresh requested")
	return nil
}

func normalizeFilter(v string) string {
	v = strings.ToLower(strings.Join(strings.Fields(v), ""))
	if v == "all" {
		return ""
	}
	return v
}

func filter(rows []domain.RankedPlayerRecord, keep func(domain.RankedPlayerRecord) bool) []domain.RankedPlayerRecord {
	out := rows[:0:0]
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
