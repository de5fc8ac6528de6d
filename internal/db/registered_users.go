package db

import (
	"context"
	"time"
)

const createRegisteredUser = `
INSERT INTO registered_users (discord_id, battle_tag, created_at)
VALUES (?, ?, ?)
`

type CreateRegisteredUserParams struct {
	DiscordID string
	BattleTag string
	CreatedAt time.Time
}

func (q *Queries) CreateRegisteredUser(ctx context.Context, arg CreateRegisteredUserParams) error {
	_, err := q.db.ExecContext(ctx, createRegisteredUser, arg.DiscordID, arg.BattleTag, arg.CreatedAt)
	return err
}

const getRegisteredUser = `
SELECT discord_id, battle_tag, created_at FROM registered_users
WHERE discord_id = ?
`

func (q *Queries) GetRegisteredUser(ctx context.Context, discordID string) (RegisteredUser, error) {
	row := q.db.QueryRowContext(ctx, getRegisteredUser, discordID)
	var i RegisteredUser
	err := row.Scan(&i.DiscordID, &i.BattleTag, &i.CreatedAt)
	return i, err
}

const getRegisteredUserByBattleTag = `
SELECT discord_id, battle_tag, created_at FROM registered_users
WHERE battle_tag = ? COLLATE NOCASE
`

func (q *Queries) GetRegisteredUserByBattleTag(ctx context.Context, battleTag string) (RegisteredUser, error) {
	row := q.db.QueryRowContext(ctx, getRegisteredUserByBattleTag, battleTag)
	var i RegisteredUser
	err := row.Scan(&i.DiscordID, &i.BattleTag, &i.CreatedAt)
	return i, err
}

const listRegisteredUsers = `
SELECT discord_id, battle_tag, created_at FROM registered_users
ORDER BY created_at, discord_id
`

func (q *Queries) ListRegisteredUsers(ctx context.Context) ([]RegisteredUser, error) {
	rows, err := q.db.QueryContext(ctx, listRegisteredUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RegisteredUser
	for rows.Next() {
		var i RegisteredUser
		if err := rows.Scan(&i.DiscordID, &i.BattleTag, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
