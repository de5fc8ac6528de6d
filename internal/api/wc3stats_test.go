package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"wc3-bridge/internal/config"
	"wc3-bridge/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, status int, body string) *WC3StatsClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewWC3StatsClient(&config.Config{WC3StatsURL: srv.URL})
}

func TestListGames(t *testing.T) {
	c := newClient(t, http.StatusOK, `{"status":"OK","body":[
		{"id":1,"name":"1v1 obs WC3","map":"EchoIsles","host":"Grubby#1","server":"eu","slotsTaken":2,"slotsTotal":24,"uptime":30}
	]}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	games, err := c.ListGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Grubby#1", games[0].Host)
	assert.Equal(t, 24, games[0].SlotsTotal)
}

func TestListGamesNotOK(t *testing.T) {
	c := newClient(t, http.StatusOK, `{"status":"ERROR"}`)
	games, err := c.ListGames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, games)

	c = newClient(t, http.StatusBadGateway, `oops`)
	_, err = c.ListGames(context.Background())
	assert.Error(t, err)
}

func TestObserverGames(t *testing.T) {
	games := []domain.PublicGame{
		{ID: 1, Name: "1v1 OBS wc3", Uptime: 10},
		{ID: 2, Name: "noobs only", Uptime: 10},
		{ID: 3, Name: "obs crew", Uptime: 600},
		{ID: 4, Name: "ffa", Uptime: 10},
	}

	var ids []int
	for _, g := range ObserverGames(games, 5*time.Minute) {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []int{1}, ids)
	assert.Len(t, ObserverGames(games, 0), 2)
}
