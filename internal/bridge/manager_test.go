package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/ladder"
	"wc3-bridge/internal/lobby"
	"wc3-bridge/internal/profile"
	"wc3-bridge/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// gameClient plays the local game client's WebUI socket.
type gameClient struct {
	srv    *httptest.Server
	conns  chan *websocket.Conn
	frames chan protocol.Envelope
}

func newGameClient(t *testing.T) *gameClient {
	t.Helper()
	gc := &gameClient{
		conns:  make(chan *websocket.Conn, 8),
		frames: make(chan protocol.Envelope, 64),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	gc.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		gc.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if env, err := protocol.Decode(data); err == nil {
				gc.frames <- env
			}
		}
	}))
	t.Cleanup(gc.srv.Close)
	return gc
}

func (gc *gameClient) url() string {
	return "ws" + strings.TrimPrefix(gc.srv.URL, "http")
}

func (gc *gameClient) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-gc.conns:
		return conn
	case <-time.After(waitFor):
		t.Fatal("bridge did not connect")
		return nil
	}
}

func (gc *gameClient) expect(t *testing.T, kind string) protocol.Envelope {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case env := <-gc.frames:
			if env.Kind == kind {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s command received", kind)
			return protocol.Envelope{}
		}
	}
}

func push(t *testing.T, conn *websocket.Conn, kind, payload string) {
	t.Helper()
	var p any
	if payload != "" {
		p = json.RawMessage(payload)
	}
	data, err := protocol.EncodeEvent(kind, p)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

type openRegistry struct{}

func (openRegistry) IsRegistered(string) bool { return true }

func testOptions(url string) Options {
	lo := lobby.DefaultOptions()
	lo.Admins = []string{"Admin#1"}
	lo.SetTeamDelay = 10 * time.Millisecond
	lo.NoticeDelay = 10 * time.Millisecond
	lo.StatsDelay = 10 * time.Millisecond
	lo.LeaveDelay = 10 * time.Millisecond
	lo.UnhostLeaveDelay = 10 * time.Millisecond

	return Options{
		URL:             url,
		ReconnectDelay:  20 * time.Millisecond,
		DefaultGameName: "1v1 WC3 Obs Crew",
		Profile: profile.Options{
			Timeout:     300 * time.Millisecond,
			GraceWindow: 50 * time.Millisecond,
		},
		Lobby: lo,
	}
}

func startManager(t *testing.T, opts Options, snapshots SnapshotSaver) (*Manager, *ladder.Cache) {
	t.Helper()
	cache := ladder.NewCache()
	m := New(opts, websocket.DefaultDialer, clockwork.NewRealClock(), cache, snapshots, openRegistry{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("bridge did not stop")
		}
	})
	return m, cache
}

func TestConnectRequestsMapList(t *testing.T) {
	gc := newGameClient(t)
	m, _ := startManager(t, testOptions(gc.url()), nil)

	gc.accept(t)
	env := gc.expect(t, protocol.CmdGetMapList)
	assert.JSONEq(t, `{"directory":"Maps"}`, string(env.Payload))
	assert.Eventually(t, m.IsConnected, waitFor, 5*time.Millisecond)
}

func TestLeaderboardPushSurvivesBadFrames(t *testing.T) {
	gc := newGameClient(t)
	path := filepath.Join(t.TempDir(), "ladder-data.json")
	_, cache := startManager(t, testOptions(gc.url()), ladder.NewSnapshotStore(path, zerolog.Nop()))

	conn := gc.accept(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	push(t, conn, "SomethingNew", `{"x":1}`)
	push(t, conn, protocol.KindUpdateLeaderboardData, `{"rows":[]}`)
	push(t, conn, protocol.KindUpdateLeaderboardData, `{"message":{"gameMode":"1v1","rows":[]}}`)
	push(t, conn, protocol.KindUpdateLeaderboardData, `{"message":{"gameMode":"1v1","rows":[
		{"rank":1,"battleTag":"Foo#123","wins":10,"losses":2,"mmr":1800,"race":1,"division":5}
	]}}`)

	require.Eventually(t, func() bool { return len(cache.Get("1v1")) == 1 }, waitFor, 5*time.Millisecond)
	rec := cache.Get("1v1")[0]
	assert.Equal(t, domain.RaceHuman, rec.Race)
	assert.Equal(t, domain.LeagueDiamond, rec.League)
	assert.Equal(t, 83.3, rec.WinRatePercent)

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, waitFor, 5*time.Millisecond)
}

func TestProfileRoundTrip(t *testing.T) {
	gc := newGameClient(t)
	m, _ := startManager(t, testOptions(gc.url()), nil)
	conn := gc.accept(t)
	require.Eventually(t, m.IsConnected, waitFor, 5*time.Millisecond)

	type outcome struct {
		p   domain.Profile
		err error
	}
	res := make(chan outcome, 1)
	go func() {
		p, err := m.RequestProfile(context.Background(), "Foo#123")
		res <- outcome{p, err}
	}()

	env := gc.expect(t, protocol.CmdGetProfile)
	assert.JSONEq(t, `{"battleTag":"Foo#123"}`, string(env.Payload))

	_, err := m.RequestProfile(context.Background(), "FOO#123")
	require.ErrorIs(t, err, profile.ErrRequestInProgress)

	push(t, conn, protocol.KindUpdateProfileData, `{"details":{"battle_tag_full":"Foo#123","level":12}}`)
	push(t, conn, protocol.KindUpdateProfileWithStats, `{"details":{"seasons":[{"season":7,"races":[
		{"race":4,"stats":[{"statName":"wins","sum":3},{"statName":"losses","sum":1}]}
	]}]}}`)

	select {
	case out := <-res:
		require.NoError(t, out.err)
		assert.False(t, out.p.Fallback)
		assert.Equal(t, float64(12), out.p.Details["level"])
		assert.Equal(t, domain.MatchStat{Wins: 3, Losses: 1, TotalGames: 4}, out.p.MatchStats["Night Elf"])
	case <-time.After(waitFor):
		t.Fatal("profile did not resolve")
	}
}

func TestProfileTimeoutWithoutData(t *testing.T) {
	gc := newGameClient(t)
	m, _ := startManager(t, testOptions(gc.url()), nil)
	gc.accept(t)
	require.Eventually(t, m.IsConnected, waitFor, 5*time.Millisecond)

	_, err := m.RequestProfile(context.Background(), "Ghost#1")
	assert.ErrorIs(t, err, profile.ErrProfileNotFound)
}

func TestReconnectAfterClose(t *testing.T) {
	gc := newGameClient(t)
	m, _ := startManager(t, testOptions(gc.url()), nil)

	first := gc.accept(t)
	gc.expect(t, protocol.CmdGetMapList)
	require.NoError(t, first.Close())

	gc.accept(t)
	gc.expect(t, protocol.CmdGetMapList)
	assert.Eventually(t, m.IsConnected, waitFor, 5*time.Millisecond)
	assert.Equal(t, int64(2), m.Connects())
}

func TestSendWhileDisconnected(t *testing.T) {
	m := New(testOptions("ws://127.0.0.1:1/"), websocket.DefaultDialer, clockwork.NewRealClock(), ladder.NewCache(), nil, nil, zerolog.Nop())

	assert.ErrorIs(t, m.Send(protocol.CmdLobbyStart, nil), ErrNotConnected)
	_, err := m.RequestProfile(context.Background(), "Foo#123")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, m.IsConnected())
}

func TestHostingFlow(t *testing.T) {
	gc := newGameClient(t)
	m, _ := startManager(t, testOptions(gc.url()), nil)
	conn := gc.accept(t)
	gc.expect(t, protocol.CmdGetMapList)

	ctx := context.Background()
	assert.ErrorIs(t, m.CreateLobby(ctx, "", false), ErrNoMapSelected)

	push(t, conn, protocol.KindMapList, `{"mapList":{"maps":[
		{"filename":"w3c","isFolder":true},
		{"title":"Echo Isles","filename":"EchoIsles.w3x","filepath":"Maps/w3c/"},
		{"name":"Turtle Rock","filename":"TurtleRock.w3x","filepath":"Maps/w3c/"}
	]}}`)
	require.Eventually(t, func() bool {
		maps, err := m.Maps(ctx)
		return err == nil && len(maps) == 2
	}, waitFor, 5*time.Millisecond)

	_, err := m.SelectMap(ctx, "concealed hill")
	assert.ErrorIs(t, err, ErrMapNotFound)

	picked, err := m.SelectMap(ctx, "turtle")
	require.NoError(t, err)
	assert.Equal(t, "Maps/w3c/TurtleRock.w3x", picked.Path())

	require.NoError(t, m.CreateLobby(ctx, "", true))
	env := gc.expect(t, protocol.CmdCreateLobby)
	var req protocol.CreateLobbyRequest
	require.NoError(t, json.Unmarshal(env.Payload, &req))
	assert.Equal(t, "Maps/w3c/TurtleRock.w3x", req.Filename)
	assert.Equal(t, "1v1 WC3 Obs Crew", req.GameName)
	assert.True(t, req.PrivateGame)
	assert.Equal(t, protocol.DefaultMapSettings(), req.MapSettings)

	push(t, conn, protocol.KindGameLobbySetup, `{"lobbyName":"1v1 WC3 Obs Crew","mapData":{"mapName":"Turtle Rock"},"players":[]}`)
	env = gc.expect(t, protocol.CmdSetTeam)
	assert.JSONEq(t, `{"slot":0,"team":24}`, string(env.Payload))

	snap, err := m.Lobby(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LobbyOpen, snap.State)
	assert.ErrorIs(t, m.CreateLobby(ctx, "again", false), lobby.ErrLobbyActive)

	push(t, conn, protocol.KindChatMessage, `{"message":{"content":"-start","sender":"Admin#1"}}`)
	gc.expect(t, protocol.CmdLobbyStart)

	require.NoError(t, m.Unhost(ctx))
	gc.expect(t, protocol.CmdStopGameAdvertisements)
	gc.expect(t, protocol.CmdLeaveGame)
}

func TestDispatchRecoversFromPanics(t *testing.T) {
	d := NewBestEffortDispatch(zerolog.Nop())
	calls := 0
	d.Register("Boom", func(protocol.Envelope) error { panic("bad payload") })
	d.Register("Ok", func(protocol.Envelope) error { calls++; return nil })

	assert.False(t, d.Dispatch([]byte(`{"messageType":"Boom"}`)))
	assert.False(t, d.Dispatch([]byte(`garbage`)))
	assert.False(t, d.Dispatch([]byte(`{"messageType":"Unknown"}`)))
	assert.True(t, d.Dispatch([]byte(`{"messageType":"Ok"}`)))
	assert.Equal(t, 1, calls)
}

func TestLoopSchedulerPostsToLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	posted := make(chan func(), 1)
	s := loopScheduler{clock: clock, post: func(fn func()) bool {
		posted <- fn
		return true
	}}

	fired := false
	s.AfterFunc(time.Second, func() { fired = true })
	clock.Advance(999 * time.Millisecond)
	select {
	case <-posted:
		t.Fatal("timer fired early")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Millisecond)
	select {
	case fn := <-posted:
		assert.False(t, fired, "callback must only run on the loop")
		fn()
		assert.True(t, fired)
	case <-time.After(waitFor):
		t.Fatal("timer did not fire")
	}
}
