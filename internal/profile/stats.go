package profile

import (
	"fmt"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/ladder"
	"wc3-bridge/internal/protocol"
)

var raceNames = map[int]string{
	1: "Human",
	2: "Orc",
	3: "Undead",
	4: "Night Elf",
	5: "Random",
	6: "All Races",
	8: "Undead",
}

func raceName(code int) string {
	if name, ok := raceNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Race %d", code)
}

// RaceMatchStats sums wins and losses per race for the latest season.
// Races without games are left out.
func RaceMatchStats(seasons []domain.Season) map[string]domain.MatchStat {
	out := map[string]domain.MatchStat{}
	if len(seasons) == 0 {
		return out
	}

	latest := seasons[len(seasons)-1]
	for _, race := range latest.Races {
		wins := int(race.Stat("wins"))
		losses := int(race.Stat("losses"))
		if wins <= 0 && losses <= 0 {
			continue
		}
		out[raceName(race.Race)] = domain.MatchStat{
			Wins:       wins,
			Losses:     losses,
			TotalGames: wins + losses,
		}
	}
	return out
}

// SeasonTotals sums wins and losses across races for one season number.
func SeasonTotals(seasons []domain.Season, season int) (wins, losses int, found bool) {
	for _, s := range seasons {
		if s.Season != season {
			continue
		}
		for _, race := range s.Races {
			wins += int(race.Stat("wins"))
			losses += int(race.Stat("losses"))
		}
		return wins, losses, true
	}
	return 0, 0, false
}

// HistoryStat tallies one mode of a match-history push. The identity is the
// first team member of the first match.
func HistoryStat(mode protocol.MatchHistoryMode) (string, domain.MatchStat, bool) {
	if len(mode.Matches) == 0 || len(mode.Matches[0].TeamMembers) == 0 {
		return "", domain.MatchStat{}, false
	}
	identity := mode.Matches[0].TeamMembers[0].BattleTag
	if identity == "" {
		return "", domain.MatchStat{}, false
	}

	var st domain.MatchStat
	for _, match := range mode.Matches {
		for _, member := range match.TeamMembers {
			if member.BattleTag != identity {
				continue
			}
			if v := member.MatchStats.Victory; v != nil {
				switch *v {
				case 1:
					st.Wins++
				case 0:
					st.Losses++
				}
			}
			break
		}
	}
	st.TotalGames = st.Wins + st.Losses
	return identity, st, true
}

// stubSeasons builds a single-season, single-race profile body from a ladder row.
func stubSeasons(rec domain.RankedPlayerRecord, season int) []domain.Season {
	return []domain.Season{{
		Season: season,
		Races: []domain.SeasonRace{{
			Race: ladder.RaceCode(rec.Race),
			Stats: []domain.SeasonStat{
				{StatName: "wins", Sum: float64(rec.Wins)},
				{StatName: "losses", Sum: float64(rec.Losses)},
				{StatName: "win_loss_ratio", Sum: rec.WinRatePercent / 100},
			},
		}},
	}}
}
