package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Pushed by the game client (messageType).
const (
	KindMapList                  = "MapList"
	KindGameLobbySetup           = "GameLobbySetup"
	KindChatMessage              = "ChatMessage"
	KindGameLobbyGracefulExit    = "GameLobbyGracefulExit"
	KindOnChannelUpdate          = "OnChannelUpdate"
	KindUpdateProfileData        = "UpdateProfileData"
	KindUpdateProfileWithStats   = "UpdateProfileDataWithToonStats"
	KindMatchHistoryUpdate       = "MatchHistoryUpdate"
	KindIsGameUIActive           = "IsGameUIActive"
	KindUpdateLeaderboardData    = "UpdateLeaderboardData"
	KindUpdateLeaderboardHighest = "UpdateLeaderboardHighestRankData"
)

// Sent to the game client (message).
const (
	CmdGetMapList             = "GetMapList"
	CmdSetTeam                = "SetTeam"
	CmdLobbyStart             = "LobbyStart"
	CmdKickPlayer             = "KickPlayerFromGameLobby"
	CmdBanPlayer              = "BanPlayerFromGameLobby"
	CmdSendGameChatMessage    = "SendGameChatMessage"
	CmdGetProfile             = "GetProfile"
	CmdGetMatchHistory        = "GetMatchHistory"
	CmdLeaveGame              = "LeaveGame"
	CmdStopGameAdvertisements = "StopGameAdvertisements"
	CmdCreateLobby            = "CreateLobby"
)

// ObserverTeam is the team index the client uses for spectators.
const ObserverTeam = 24

// Code is a field the client sends either as a number or as a string.
type Code struct {
	Num   int
	Str   string
	IsStr bool
}

func NumCode(n int) Code    { return Code{Num: n} }
func StrCode(s string) Code { return Code{Str: s, IsStr: true} }

func (c *Code) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Code{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = StrCode(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*c = NumCode(int(f))
	return nil
}

func (c Code) MarshalJSON() ([]byte, error) {
	if c.IsStr {
		return json.Marshal(c.Str)
	}
	return json.Marshal(c.Num)
}

// IsZero reports whether the value is falsy on the wire (0, "" or absent).
func (c Code) IsZero() bool {
	if c.IsStr {
		return c.Str == ""
	}
	return c.Num == 0
}

func (c Code) String() string {
	if c.IsStr {
		return c.Str
	}
	return strconv.Itoa(c.Num)
}

type LeaderboardPayload struct {
	Message *LeaderboardMessage `json:"message"`
}

type LeaderboardMessage struct {
	Rows        []LeaderboardRow `json:"rows"`
	GameMode    string           `json:"gameMode,omitempty"`
	GameType    string           `json:"gametype,omitempty"`
	CurrentPage int              `json:"currentpage,omitempty"`
	TotalPages  int              `json:"totalpages,omitempty"`
}

type LeaderboardRow struct {
	Rank      int                 `json:"rank"`
	BattleTag string              `json:"battleTag,omitempty"`
	Players   []LeaderboardPlayer `json:"players,omitempty"`
	Race      Code                `json:"race"`
	Wins      int                 `json:"wins"`
	Losses    int                 `json:"losses"`
	MMR       int                 `json:"mmr"`
	Division  Code                `json:"division"`
	Level     int                 `json:"level,omitempty"`
	XP        int                 `json:"xp,omitempty"`
}

type LeaderboardPlayer struct {
	BattleTag string `json:"battleTag"`
	Race      Code   `json:"race"`
	AvatarID  int    `json:"avatarId,omitempty"`
}

type HighestRankPayload struct {
	BattleTag string `json:"battleTag"`
	Rank      int    `json:"rank"`
	MMR       int    `json:"mmr"`
	Rating    int    `json:"rating"`
	Season    Code   `json:"season"`
}

// ProfilePayload carries UpdateProfileData and UpdateProfileDataWithToonStats.
// Details is kept raw so unknown fields survive into the merged profile.
type ProfilePayload struct {
	Details json.RawMessage `json:"details"`
}

type MatchHistoryPayload struct {
	MatchHistory map[string]MatchHistoryMode `json:"matchHistory"`
}

type MatchHistoryMode struct {
	Matches []MatchHistoryMatch `json:"matches"`
}

type MatchHistoryMatch struct {
	TeamMembers []MatchHistoryMember `json:"teamMembers"`
}

type MatchHistoryMember struct {
	BattleTag  string `json:"battleTag"`
	MatchStats struct {
		Victory *int `json:"victory"`
	} `json:"matchStats"`
}

type ChatMessagePayload struct {
	Message struct {
		Content string `json:"content"`
		Sender  string `json:"sender"`
	} `json:"message"`
}

type ChannelUpdatePayload struct {
	GameChat *struct {
		Members []struct {
			Name string `json:"name"`
		} `json:"members"`
	} `json:"gameChat"`
}

type LobbySetupPayload struct {
	LobbyName string `json:"lobbyName"`
	MapData   struct {
		MapName string `json:"mapName"`
	} `json:"mapData"`
	Players []LobbySlot `json:"players"`
}

type LobbySlot struct {
	Slot       int    `json:"slot"`
	Team       int    `json:"team"`
	Name       string `json:"name"`
	IsSelf     bool   `json:"isSelf"`
	IsObserver bool   `json:"isObserver"`
}

type MapListPayload struct {
	MapList struct {
		Maps []MapListEntry `json:"maps"`
	} `json:"mapList"`
}

type MapListEntry struct {
	Title    string `json:"title,omitempty"`
	Name     string `json:"name,omitempty"`
	Filename string `json:"filename"`
	Filepath string `json:"filepath,omitempty"`
	IsFolder bool   `json:"isFolder,omitempty"`
}

type GetMapListRequest struct {
	Directory string `json:"directory"`
}

type SetTeamRequest struct {
	Slot int `json:"slot"`
	Team int `json:"team"`
}

type PlayerRequest struct {
	BattleTag string `json:"battleTag"`
}

type ChatRequest struct {
	Content string `json:"content"`
}

type MatchHistoryRequest struct {
	BattleTag     string `json:"battleTag"`
	GameMode      string `json:"gameMode"`
	ArrangedTeams bool   `json:"arrangedTeams"`
	GatewayID     int    `json:"gatewayId"`
}

type CreateLobbyRequest struct {
	Filename    string      `json:"filename"`
	GameName    string      `json:"gameName"`
	GameSpeed   int         `json:"gameSpeed"`
	PrivateGame bool        `json:"privateGame"`
	MapSettings MapSettings `json:"mapSettings"`
}

type MapSettings struct {
	FlagLockTeams             bool `json:"flagLockTeams"`
	FlagPlaceTeamsTogether    bool `json:"flagPlaceTeamsTogether"`
	FlagFullSharedUnitControl bool `json:"flagFullSharedUnitControl"`
	FlagRandomRaces           bool `json:"flagRandomRaces"`
	FlagRandomHero            bool `json:"flagRandomHero"`
	SettingObservers          int  `json:"settingObservers"`
	SettingVisibility         int  `json:"settingVisibility"`
}

// DefaultMapSettings are the settings used for hosted observer lobbies.
func DefaultMapSettings() MapSettings {
	return MapSettings{
		FlagLockTeams:          true,
		FlagPlaceTeamsTogether: true,
		SettingObservers:       3,
	}
}
