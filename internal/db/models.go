package db

import (
	"time"
)

type RegisteredUser struct {
	DiscordID string
	BattleTag string
	CreatedAt time.Time
}
