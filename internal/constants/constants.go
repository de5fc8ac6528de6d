package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	// ProfileRequestSlack is added to the resolver timeout so the RPC deadline
	// never beats the resolver's own fallback.
	ProfileRequestSlack = 2 * time.Second
	BridgeCallTimeout   = 2 * time.Second
)

const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	LadderPageSize    = 25
	LadderSearchLimit = 50
	MapDirectory      = "Maps"
	LobbyGameSpeed    = 2
)
