package lobby

import (
	"fmt"
	"strings"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/profile"
)

type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdStart
	CmdKick
	CmdBan
	CmdUnban
)

type Command struct {
	Kind   CommandKind
	Target string
}

// ParseCommand reads an admin chat line. Prefixes are case-insensitive and the
// target keeps the case the admin typed.
func ParseCommand(content string) Command {
	content = strings.TrimSpace(content)
	lower := strings.ToLower(content)

	if lower == "-start" {
		return Command{Kind: CmdStart}
	}

	for prefix, kind := range map[string]CommandKind{
		"-kick ":  CmdKick,
		"-ban ":   CmdBan,
		"-unban ": CmdUnban,
	} {
		if strings.HasPrefix(lower, prefix) {
			target := strings.TrimSpace(content[len(prefix):])
			if target == "" {
				return Command{}
			}
			return Command{Kind: kind, Target: target}
		}
	}
	return Command{}
}

func welcomeNotice(identity, invite string) string {
	if invite == "" {
		return fmt.Sprintf("%s joined lobby", identity)
	}
	return fmt.Sprintf("%s joined lobby | Join our discord %s", identity, invite)
}

func leaveNotice(identity string) string {
	return fmt.Sprintf("%s left the lobby", identity)
}

// statsNotice formats the ranked-season summary shown when a player joins.
func statsNotice(name string, seasons []domain.Season, season int) string {
	wins, losses, ok := profile.SeasonTotals(seasons, season)
	if !ok {
		return fmt.Sprintf("%s: No Season %d stats found", name, season)
	}
	rate := 0.0
	if total := wins + losses; total > 0 {
		rate = float64(wins) / float64(total) * 100
	}
	return fmt.Sprintf("%s: 1v1 (%dW-%dL) %.1f%%", name, wins, losses, rate)
}

// namePart is the portion of a BattleTag before the discriminator.
func namePart(identity string) string {
	name, _, _ := strings.Cut(identity, "#")
	return name
}
