package lobby

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/profile"
	"wc3-bridge/internal/protocol"
	"wc3-bridge/internal/schedule"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var (
	ErrLobbyActive   = errors.New("a lobby is already active")
	ErrNoActiveLobby = errors.New("no active lobby")
)

type Sender interface {
	Send(kind string, payload any) error
}

// Registry answers whether a BattleTag belongs to a registered community member.
type Registry interface {
	IsRegistered(identity string) bool
}

type Options struct {
	Admins           []string
	DiscordInvite    string
	RankedSeason     int
	SetTeamDelay     time.Duration
	NoticeDelay      time.Duration
	StatsDelay       time.Duration
	LeaveDelay       time.Duration
	UnhostLeaveDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		RankedSeason:     7,
		SetTeamDelay:     time.Second,
		NoticeDelay:      500 * time.Millisecond,
		StatsDelay:       time.Second,
		LeaveDelay:       time.Second,
		UnhostLeaveDelay: 100 * time.Millisecond,
	}
}

// RosterDiff is the result of comparing two membership snapshots.
type RosterDiff struct {
	Left   []string
	Joined []string
}

type pendingStats struct {
	identity    string
	displayName string
	seasons     []domain.Season
	hasStats    bool
	displayed   bool
}

// Machine tracks the hosted lobby. Like the resolver it is driven from the
// bridge loop only.
type Machine struct {
	sender   Sender
	sched    schedule.Scheduler
	registry Registry
	opts     Options
	admins   map[string]struct{}
	logger   zerolog.Logger

	state          domain.LobbyState
	sessionID      string
	name           string
	mapName        string
	openedAt       time.Time
	roster         map[string]struct{}
	pending        []*pendingStats
	banned         map[string]string
	leaveScheduled bool
}

func NewMachine(sender Sender, sched schedule.Scheduler, registry Registry, opts Options, logger zerolog.Logger) *Machine {
	admins := make(map[string]struct{}, len(opts.Admins))
	for _, a := range opts.Admins {
		if key := domain.NormalizeIdentity(a); key != "" {
			admins[key] = struct{}{}
		}
	}
	if opts.RankedSeason <= 0 {
		opts.RankedSeason = 7
	}

	return &Machine{
		sender:   sender,
		sched:    sched,
		registry: registry,
		opts:     opts,
		admins:   admins,
		logger:   logger.With().Str("component", "lobby").Logger(),
		roster:   make(map[string]struct{}),
		banned:   make(map[string]string),
	}
}

func (m *Machine) State() domain.LobbyState {
	return m.state
}

func (m *Machine) Snapshot() domain.LobbySnapshot {
	roster := make([]string, 0, len(m.roster))
	for name := range m.roster {
		roster = append(roster, name)
	}
	sort.Strings(roster)

	banned := make([]string, 0, len(m.banned))
	for _, display := range m.banned {
		banned = append(banned, display)
	}
	sort.Strings(banned)

	return domain.LobbySnapshot{
		SessionID: m.sessionID,
		State:     m.state,
		Name:      m.name,
		MapName:   m.mapName,
		Roster:    roster,
		Banned:    banned,
		OpenedAt:  m.openedAt,
	}
}

func (m *Machine) IsBanned(identity string) bool {
	_, ok := m.banned[domain.NormalizeIdentity(identity)]
	return ok
}

// OnLobbySetup handles GameLobbySetup. Setup pushes for an already tracked
// lobby are ignored.
func (m *Machine) OnLobbySetup(p protocol.LobbySetupPayload) {
	if m.state != domain.NoLobby {
		m.logger.Debug().Str("state", m.state.String()).Msg("lobby setup ignored, lobby already tracked")
		return
	}

	id, err := gonanoid.New()
	if err != nil {
		id = fmt.Sprintf("lobby-%d", time.Now().UnixNano())
	}

	m.reset()
	m.state = domain.LobbyOpen
	m.sessionID = id
	m.name = p.LobbyName
	m.mapName = p.MapData.MapName
	m.openedAt = time.Now()

	m.logger.Info().
		Str("session_id", id).
		Str("lobby", p.LobbyName).
		Str("map", p.MapData.MapName).
		Int("slots", len(p.Players)).
		Msg("lobby opened")

	m.later(m.opts.SetTeamDelay, func() {
		m.send(protocol.CmdSetTeam, protocol.SetTeamRequest{Slot: 0, Team: protocol.ObserverTeam})
	})
}

// OnChat handles ChatMessage. Only registered admins can run commands; anyone
// else is ignored without a reply.
func (m *Machine) OnChat(p protocol.ChatMessagePayload) {
	if m.state != domain.LobbyOpen {
		return
	}
	sender := strings.TrimSpace(p.Message.Sender)
	cmd := ParseCommand(p.Message.Content)
	if cmd.Kind == CmdNone {
		return
	}
	if !m.isAdmin(sender) {
		m.logger.Debug().Str("sender", sender).Msg("command from non-admin ignored")
		return
	}

	log := m.logger.Info().Str("admin", sender).Str("target", cmd.Target)
	switch cmd.Kind {
	case CmdStart:
		log.Msg("admin started game")
		m.send(protocol.CmdLobbyStart, nil)
	case CmdKick:
		log.Msg("admin kicked player")
		m.send(protocol.CmdKickPlayer, protocol.PlayerRequest{BattleTag: cmd.Target})
		m.chat(fmt.Sprintf("%s was kicked from the lobby", cmd.Target))
	case CmdBan:
		log.Msg("admin banned player")
		m.banned[domain.NormalizeIdentity(cmd.Target)] = cmd.Target
		m.send(protocol.CmdBanPlayer, protocol.PlayerRequest{BattleTag: cmd.Target})
		m.chat(fmt.Sprintf("%s was banned from the lobby", cmd.Target))
	case CmdUnban:
		log.Msg("admin unbanned player")
		delete(m.banned, domain.NormalizeIdentity(cmd.Target))
		m.chat(fmt.Sprintf("%s was unbanned", cmd.Target))
	}
}

func (m *Machine) isAdmin(identity string) bool {
	if identity == "" || m.registry == nil || !m.registry.IsRegistered(identity) {
		return false
	}
	_, ok := m.admins[domain.NormalizeIdentity(identity)]
	return ok
}

// OnChannelUpdate diffs the pushed roster against the previous one. Lefts are
// handled before joins.
func (m *Machine) OnChannelUpdate(p protocol.ChannelUpdatePayload) RosterDiff {
	var diff RosterDiff
	if m.state != domain.LobbyOpen || p.GameChat == nil {
		return diff
	}

	next := make(map[string]struct{}, len(p.GameChat.Members))
	var order []string
	for _, member := range p.GameChat.Members {
		name := strings.TrimSpace(member.Name)
		if name == "" {
			continue
		}
		if _, dup := next[name]; dup {
			continue
		}
		next[name] = struct{}{}
		order = append(order, name)
	}

	for name := range m.roster {
		if _, ok := next[name]; !ok {
			diff.Left = append(diff.Left, name)
		}
	}
	sort.Strings(diff.Left)
	for _, name := range order {
		if _, ok := m.roster[name]; !ok {
			diff.Joined = append(diff.Joined, name)
		}
	}

	for _, name := range diff.Left {
		m.logger.Info().Str("identity", name).Msg("player left lobby")
		m.dropPending(name)
		m.later(m.opts.NoticeDelay, func() { m.chat(leaveNotice(name)) })
	}
	m.roster = next

	for _, name := range diff.Joined {
		if m.IsBanned(name) {
			m.logger.Info().Str("identity", name).Msg("banned player joined, kicking")
			m.later(m.opts.NoticeDelay, func() {
				m.send(protocol.CmdKickPlayer, protocol.PlayerRequest{BattleTag: name})
			})
			continue
		}

		m.logger.Info().Str("identity", name).Msg("player joined lobby")
		m.later(m.opts.NoticeDelay, func() { m.chat(welcomeNotice(name, m.opts.DiscordInvite)) })
		m.dropPending(name)
		m.pending = append(m.pending, &pendingStats{identity: name})
		m.send(protocol.CmdGetProfile, protocol.PlayerRequest{BattleTag: name})
	}

	return diff
}

// OnProfile handles UpdateProfileData for players waiting on a stats notice.
// The response may not echo the requested tag exactly, so entries match on the
// name part.
func (m *Machine) OnProfile(d profile.Details) {
	if m.state != domain.LobbyOpen || !d.HasIdentity() {
		return
	}
	entry := m.matchPending(d.Identity)
	if entry == nil {
		return
	}
	entry.displayName = d.Identity
	if d.HasSeasons {
		entry.seasons = d.SeasonStats
		entry.hasStats = true
	}
}

// OnProfileStats handles UpdateProfileDataWithToonStats, the last fragment of
// a profile response, and posts the stats notice.
func (m *Machine) OnProfileStats(d profile.Details) {
	if m.state != domain.LobbyOpen || !d.HasSeasons {
		return
	}

	var entry *pendingStats
	if d.HasIdentity() {
		entry = m.matchPending(d.Identity)
	}
	if entry == nil {
		entry = m.firstPending()
	}
	if entry == nil {
		m.logger.Debug().Msg("stats response with no pending player dropped")
		return
	}

	entry.seasons = d.SeasonStats
	entry.hasStats = true
	m.display(entry)
}

func (m *Machine) display(entry *pendingStats) {
	if entry.displayed || !entry.hasStats {
		return
	}
	entry.displayed = true
	m.dropPending(entry.identity)

	name := entry.displayName
	if name == "" {
		name = entry.identity
	}
	msg := statsNotice(name, entry.seasons, m.opts.RankedSeason)
	m.logger.Info().Str("identity", entry.identity).Str("notice", msg).Msg("stats notice queued")
	m.later(m.opts.StatsDelay, func() { m.chat(msg) })
}

func (m *Machine) matchPending(identity string) *pendingStats {
	lower := strings.ToLower(identity)
	for _, p := range m.pending {
		if p.displayed {
			continue
		}
		if name := strings.ToLower(namePart(p.identity)); name != "" && strings.Contains(lower, name) {
			return p
		}
	}
	return nil
}

func (m *Machine) firstPending() *pendingStats {
	for _, p := range m.pending {
		if !p.displayed {
			return p
		}
	}
	return nil
}

func (m *Machine) dropPending(identity string) {
	m.pending = slices.DeleteFunc(m.pending, func(p *pendingStats) bool {
		return p.identity == identity
	})
}

// PendingStats lists players still waiting on a stats notice, in join order.
func (m *Machine) PendingStats() []string {
	out := make([]string, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, p.identity)
	}
	return out
}

// OnGracefulExit handles GameLobbyGracefulExit: the lobby closed and the game is loading.
func (m *Machine) OnGracefulExit() {
	if m.state != domain.LobbyOpen {
		return
	}
	m.state = domain.AwaitingGameStart
	m.logger.Info().Str("session_id", m.sessionID).Msg("lobby closed, waiting for game to start")
}

// OnGameUIActive leaves the running game so the host account is free for the next lobby.
func (m *Machine) OnGameUIActive() {
	if m.state != domain.AwaitingGameStart || m.leaveScheduled {
		return
	}
	m.leaveScheduled = true
	sid := m.sessionID

	m.logger.Info().Str("session_id", sid).Dur("delay", m.opts.LeaveDelay).Msg("game active, leaving")
	m.sched.AfterFunc(m.opts.LeaveDelay, func() {
		if m.sessionID != sid || m.state != domain.AwaitingGameStart {
			return
		}
		m.send(protocol.CmdLeaveGame, nil)
		m.reset()
	})
}

// CreateLobby asks the client to host a game. The lobby is tracked once the
// client confirms with GameLobbySetup.
func (m *Machine) CreateLobby(req protocol.CreateLobbyRequest) error {
	if m.state != domain.NoLobby {
		return ErrLobbyActive
	}
	if err := m.sender.Send(protocol.CmdCreateLobby, req); err != nil {
		return fmt.Errorf("failed to create lobby: %w", err)
	}
	m.logger.Info().Str("game", req.GameName).Str("map", req.Filename).Bool("private", req.PrivateGame).Msg("lobby creation requested")
	return nil
}

// Unhost stops advertising the lobby and leaves it.
func (m *Machine) Unhost() error {
	if m.state == domain.NoLobby {
		return ErrNoActiveLobby
	}
	if err := m.sender.Send(protocol.CmdStopGameAdvertisements, nil); err != nil {
		return fmt.Errorf("failed to stop advertisements: %w", err)
	}

	m.logger.Info().Str("session_id", m.sessionID).Msg("unhosting lobby")
	m.reset()
	m.sched.AfterFunc(m.opts.UnhostLeaveDelay, func() {
		m.send(protocol.CmdLeaveGame, nil)
	})
	return nil
}

func (m *Machine) reset() {
	m.state = domain.NoLobby
	m.sessionID = ""
	m.name = ""
	m.mapName = ""
	m.openedAt = time.Time{}
	m.roster = make(map[string]struct{})
	m.pending = nil
	m.leaveScheduled = false
}

// later runs fn after d if the same lobby is still open.
func (m *Machine) later(d time.Duration, fn func()) {
	sid := m.sessionID
	m.sched.AfterFunc(d, func() {
		if m.sessionID != sid || m.state != domain.LobbyOpen {
			return
		}
		fn()
	})
}

func (m *Machine) chat(content string) {
	m.send(protocol.CmdSendGameChatMessage, protocol.ChatRequest{Content: content})
}

func (m *Machine) send(kind string, payload any) {
	if err := m.sender.Send(kind, payload); err != nil {
		m.logger.Warn().Err(err).Str("kind", kind).Msg("failed to send lobby command")
	}
}
