package domain

import (
	"strings"
	"time"
)

type Race string

const (
	RaceHuman    Race = "human"
	RaceOrc      Race = "orc"
	RaceUndead   Race = "undead"
	RaceNightElf Race = "nightelf"
	RaceRandom   Race = "random"
)

type League string

const (
	LeagueUnranked    League = "unranked"
	LeagueBronze      League = "bronze"
	LeagueSilver      League = "silver"
	LeagueGold        League = "gold"
	LeaguePlatinum    League = "platinum"
	LeagueDiamond     League = "diamond"
	LeagueMaster      League = "master"
	LeagueGrandmaster League = "grandmaster"
)

// RankedPlayerRecord is one leaderboard row. JSON names match the snapshot file.
type RankedPlayerRecord struct {
	ID             string     `json:"_id"`
	BattleTag      string     `json:"battleTag"`
	Teammates      []Teammate `json:"teammates"`
	Rank           int        `json:"rank"`
	Race           Race       `json:"race"`
	Portrait       int        `json:"portrait"`
	Wins           int        `json:"wins"`
	Losses         int        `json:"losses"`
	MMR            int        `json:"mmr"`
	League         League     `json:"league"`
	Division       int        `json:"division"`
	WinRatePercent float64    `json:"winRate"`
	Level          int        `json:"level"`
	XP             int        `json:"xp"`
}

type Teammate struct {
	BattleTag string `json:"battleTag"`
	Race      Race   `json:"race"`
	Portrait  int    `json:"portrait"`
}

type HighestRank struct {
	BattleTag string `json:"battleTag"`
	Rank      int    `json:"rank"`
	MMR       int    `json:"mmr"`
	Season    string `json:"season"`
}

type PageInfo struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
}

type Season struct {
	Season int          `json:"season"`
	Races  []SeasonRace `json:"races"`
}

type SeasonRace struct {
	Race  int          `json:"race"`
	Stats []SeasonStat `json:"stats"`
}

type SeasonStat struct {
	StatName string  `json:"statName"`
	Sum      float64 `json:"sum"`
}

// Stat returns the summed value of the named stat, zero when absent.
func (r SeasonRace) Stat(name string) float64 {
	for _, s := range r.Stats {
		if s.StatName == name {
			return s.Sum
		}
	}
	return 0
}

type MatchStat struct {
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	TotalGames int `json:"totalGames"`
}

// Profile is a fully merged player profile. Details holds the basic profile
// fields as the client sent them; Seasons and MatchStats are layered on top.
type Profile struct {
	Identity   string
	Details    map[string]any
	Seasons    any
	MatchStats map[string]MatchStat
	Fallback   bool
}

// Map flattens the profile into {...details, seasons, matchStats}.
func (p Profile) Map() map[string]any {
	out := make(map[string]any, len(p.Details)+2)
	for k, v := range p.Details {
		out[k] = v
	}
	if p.Seasons == nil {
		out["seasons"] = []any{}
	} else {
		out["seasons"] = p.Seasons
	}
	stats := make(map[string]any, len(p.MatchStats))
	for k, v := range p.MatchStats {
		stats[k] = map[string]any{
			"wins":       v.Wins,
			"losses":     v.Losses,
			"totalGames": v.TotalGames,
		}
	}
	out["matchStats"] = stats
	return out
}

type MapEntry struct {
	Title    string `json:"title"`
	Filename string `json:"filename"`
	Filepath string `json:"filepath"`
}

// Path is the map location the client expects in CreateLobby.
func (m MapEntry) Path() string {
	return m.Filepath + m.Filename
}

type LobbyState int

const (
	NoLobby LobbyState = iota
	LobbyOpen
	AwaitingGameStart
)

func (s LobbyState) String() string {
	switch s {
	case LobbyOpen:
		return "LobbyOpen"
	case AwaitingGameStart:
		return "AwaitingGameStart"
	default:
		return "NoLobby"
	}
}

type LobbySnapshot struct {
	SessionID string
	State     LobbyState
	Name      string
	MapName   string
	Roster    []string
	Banned    []string
	OpenedAt  time.Time
}

type RegisteredUser struct {
	DiscordID string
	BattleTag string
	CreatedAt time.Time
}

type PublicGame struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Map        string `json:"map"`
	Host       string `json:"host"`
	Server     string `json:"server"`
	SlotsTaken int    `json:"slotsTaken"`
	SlotsTotal int    `json:"slotsTotal"`
	Uptime     int    `json:"uptime"`
}

// NormalizeIdentity returns the lookup key for a BattleTag.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
