package ladder

import (
	"fmt"
	"math"
	"strings"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/protocol"
)

var raceByCode = map[int]domain.Race{
	1:  domain.RaceHuman,
	2:  domain.RaceOrc,
	4:  domain.RaceNightElf,
	8:  domain.RaceUndead,
	32: domain.RaceRandom,
}

var leagueByDivision = map[int]domain.League{
	7: domain.LeagueGrandmaster,
	6: domain.LeagueMaster,
	5: domain.LeagueDiamond,
	4: domain.LeaguePlatinum,
	3: domain.LeagueGold,
	2: domain.LeagueSilver,
	1: domain.LeagueBronze,
	0: domain.LeagueUnranked,
}

// MapRace maps a client race code to a race. Unknown numeric codes are human;
// names are lower-cased with the first underscore removed ("Night_Elf" -> "nightelf").
func MapRace(c protocol.Code) domain.Race {
	if c.IsStr {
		name := strings.Replace(strings.ToLower(strings.TrimSpace(c.Str)), "_", "", 1)
		if name == "" {
			return domain.RaceHuman
		}
		return domain.Race(name)
	}
	if race, ok := raceByCode[c.Num]; ok {
		return race
	}
	return domain.RaceHuman
}

// RaceCode is the inverse used when a profile stub has to be built from a ladder row.
func RaceCode(r domain.Race) int {
	switch r {
	case domain.RaceHuman:
		return 1
	case domain.RaceOrc:
		return 2
	case domain.RaceUndead:
		return 8
	default:
		return 4
	}
}

func MapLeague(c protocol.Code) domain.League {
	if c.IsStr {
		name := strings.ToLower(strings.TrimSpace(c.Str))
		if name == "" {
			return domain.LeagueUnranked
		}
		return domain.League(name)
	}
	if league, ok := leagueByDivision[c.Num]; ok {
		return league
	}
	return domain.LeagueUnranked
}

// WinRate is wins/(wins+losses)*100 rounded to one decimal, 0 with no games.
func WinRate(wins, losses int) float64 {
	total := wins + losses
	if total <= 0 {
		return 0
	}
	return math.Round(float64(wins)/float64(total)*1000) / 10
}

// ModeOf picks the mode a push belongs to.
func ModeOf(msg protocol.LeaderboardMessage) string {
	switch {
	case msg.GameMode != "":
		return msg.GameMode
	case msg.GameType != "":
		return msg.GameType
	default:
		return "1v1"
	}
}

// Records converts one push into ladder rows, preserving source order.
func Records(rows []protocol.LeaderboardRow) []domain.RankedPlayerRecord {
	out := make([]domain.RankedPlayerRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, record(row))
	}
	return out
}

func record(row protocol.LeaderboardRow) domain.RankedPlayerRecord {
	var lead protocol.LeaderboardPlayer
	if len(row.Players) > 0 {
		lead = row.Players[0]
	}

	identity := lead.BattleTag
	if identity == "" {
		identity = row.BattleTag
	}

	raceCode := row.Race
	if raceCode.IsZero() {
		raceCode = lead.Race
	}

	teammates := make([]domain.Teammate, 0, len(row.Players))
	for _, p := range row.Players {
		if p.BattleTag == "" {
			continue
		}
		teammates = append(teammates, domain.Teammate{
			BattleTag: p.BattleTag,
			Race:      MapRace(p.Race),
			Portrait:  p.AvatarID,
		})
	}
	if len(teammates) == 0 && identity != "" {
		teammates = append(teammates, domain.Teammate{BattleTag: identity, Race: MapRace(raceCode)})
	}

	rec := domain.RankedPlayerRecord{
		ID:             identity,
		BattleTag:      identity,
		Teammates:      teammates,
		Rank:           row.Rank,
		Race:           MapRace(raceCode),
		Portrait:       lead.AvatarID,
		Wins:           row.Wins,
		Losses:         row.Losses,
		MMR:            row.MMR,
		League:         MapLeague(row.Division),
		Division:       1,
		WinRatePercent: WinRate(row.Wins, row.Losses),
		Level:          row.Level,
		XP:             row.XP,
	}
	if !row.Division.IsStr && row.Division.Num != 0 {
		rec.Division = row.Division.Num
	}
	if identity == "" {
		rec.ID = fmt.Sprintf("player-%d", row.Rank)
		rec.BattleTag = "Unknown"
	}
	return rec
}

// HighestRankFrom applies the client defaults to a highest-rank push.
func HighestRankFrom(p protocol.HighestRankPayload) domain.HighestRank {
	h := domain.HighestRank{
		BattleTag: p.BattleTag,
		Rank:      p.Rank,
		MMR:       p.MMR,
		Season:    p.Season.String(),
	}
	if h.BattleTag == "" {
		h.BattleTag = "Unknown"
	}
	if h.MMR == 0 {
		h.MMR = p.Rating
	}
	if p.Season.IsZero() {
		h.Season = "Current"
	}
	return h
}
