package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/ladder"
	"wc3-bridge/internal/lobby"
	"wc3-bridge/internal/profile"
	"wc3-bridge/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotConnected = errors.New("game client not connected")
	ErrStopped      = errors.New("bridge stopped")
	ErrRunning      = errors.New("bridge already running")
)

const (
	writeWait = 5 * time.Second
	inboxSize = 256
)

// Dialer opens the game-client socket. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// SnapshotSaver persists the ladder after every update.
type SnapshotSaver interface {
	Save(snap ladder.Snapshot) error
}

type Options struct {
	URL             string
	ReconnectDelay  time.Duration
	MapDirectory    string
	DefaultGameName string
	Profile         profile.Options
	Lobby           lobby.Options
}

// Manager owns the game-client socket and every piece of bridge state. All
// state except the ladder cache is touched only by the loop goroutine; other
// goroutines reach it through call.
type Manager struct {
	opts      Options
	dialer    Dialer
	clock     clockwork.Clock
	logger    zerolog.Logger
	ladder    *ladder.Cache
	snapshots SnapshotSaver

	inbox    chan func()
	stopped  chan struct{}
	running  atomic.Bool
	connects atomic.Int64

	connected atomic.Bool
	writeMu   sync.Mutex
	conn      *websocket.Conn

	dispatcher *BestEffortDispatch
	resolver   *profile.Resolver
	lobby      *lobby.Machine
	maps       []domain.MapEntry
	selected   *domain.MapEntry
}

func New(opts Options, dialer Dialer, clock clockwork.Clock, cache *ladder.Cache, snapshots SnapshotSaver, registry lobby.Registry, logger zerolog.Logger) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.MapDirectory == "" {
		opts.MapDirectory = "Maps"
	}

	m := &Manager{
		opts:      opts,
		dialer:    dialer,
		clock:     clock,
		logger:    logger.With().Str("component", "bridge").Logger(),
		ladder:    cache,
		snapshots: snapshots,
		inbox:     make(chan func(), inboxSize),
		stopped:   make(chan struct{}),
	}

	sched := loopScheduler{clock: clock, post: m.post}
	m.resolver = profile.NewResolver(m, sched, cache, opts.Profile, logger)
	m.lobby = lobby.NewMachine(m, sched, registry, opts.Lobby, logger)

	m.dispatcher = NewBestEffortDispatch(logger)
	m.dispatcher.Register(protocol.KindUpdateLeaderboardData, m.handleLeaderboard)
	m.dispatcher.Register(protocol.KindUpdateLeaderboardHighest, m.handleHighestRank)
	m.dispatcher.Register(protocol.KindUpdateProfileData, m.handleProfile)
	m.dispatcher.Register(protocol.KindUpdateProfileWithStats, m.handleProfileStats)
	m.dispatcher.Register(protocol.KindMatchHistoryUpdate, m.handleMatchHistory)
	m.dispatcher.Register(protocol.KindMapList, m.handleMapList)
	m.dispatcher.Register(protocol.KindGameLobbySetup, m.handleLobbySetup)
	m.dispatcher.Register(protocol.KindChatMessage, m.handleChat)
	m.dispatcher.Register(protocol.KindOnChannelUpdate, m.handleChannelUpdate)
	m.dispatcher.Register(protocol.KindGameLobbyGracefulExit, m.handleGracefulExit)
	m.dispatcher.Register(protocol.KindIsGameUIActive, m.handleGameUIActive)

	return m
}

// Run connects to the game client and processes messages until ctx is done.
// In-flight profile requests are not resumed after a reconnect; they run
// into their timeout.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunning
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.loop(gctx) })
	g.Go(func() error { return m.connectLoop(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *Manager) IsConnected() bool {
	return m.connected.Load()
}

// Connects counts successful connections since start.
func (m *Manager) Connects() int64 {
	return m.connects.Load()
}

// Send encodes and writes one command. It fails synchronously when the socket is down.
func (m *Manager) Send(kind string, payload any) error {
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.conn == nil {
		return fmt.Errorf("%s: %w", kind, ErrNotConnected)
	}
	if err := m.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", kind, err)
	}

	m.logger.Debug().Str("kind", kind).Msg("command sent")
	return nil
}

func (m *Manager) loop(ctx context.Context) error {
	defer close(m.stopped)
	for {
		select {
		case fn := <-m.inbox:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) post(fn func()) bool {
	select {
	case m.inbox <- fn:
		return true
	case <-m.stopped:
		return false
	}
}

// call runs fn on the loop and waits for it to finish.
func (m *Manager) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case m.inbox <- wrapped:
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) connectLoop(ctx context.Context) error {
	for {
		conn, _, err := m.dialer.DialContext(ctx, m.opts.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Warn().
				Err(err).
				Str("url", m.opts.URL).
				Dur("retry_in", m.opts.ReconnectDelay).
				Msg("failed to connect to game client")
		} else {
			m.serve(ctx, conn)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-m.clock.After(m.opts.ReconnectDelay):
		}
	}
}

// serve reads frames until the connection drops.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) {
	m.writeMu.Lock()
	m.conn = conn
	m.writeMu.Unlock()
	m.connected.Store(true)
	m.connects.Add(1)

	m.logger.Info().Str("url", m.opts.URL).Msg("connected to game client")
	m.post(m.onOpen)

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn().Err(err).Dur("retry_in", m.opts.ReconnectDelay).Msg("game client connection closed")
			}
			break
		}
		m.post(func() { m.dispatcher.Dispatch(data) })
	}

	close(stop)
	m.writeMu.Lock()
	m.conn = nil
	m.writeMu.Unlock()
	m.connected.Store(false)
	conn.Close()

	m.post(m.onClose)
}

func (m *Manager) onOpen() {
	if err := m.Send(protocol.CmdGetMapList, protocol.GetMapListRequest{Directory: m.opts.MapDirectory}); err != nil {
		m.logger.Warn().Err(err).Msg("failed to request map list")
	}
}

func (m *Manager) onClose() {
	m.logger.Info().
		Int("profile_requests", m.resolver.InFlight()).
		Str("lobby_state", m.lobby.State().String()).
		Msg("bridge disconnected, in-flight requests will time out")
}

func (m *Manager) persist() {
	if m.snapshots == nil {
		return
	}
	if err := m.snapshots.Save(m.ladder.Snapshot()); err != nil {
		m.logger.Warn().Err(err).Msg("failed to save ladder snapshot")
	}
}
