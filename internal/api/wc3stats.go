package api

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"wc3-bridge/internal/config"
	"wc3-bridge/internal/domain"

	"github.com/valyala/fasthttp"
)

var obsWord = regexp.MustCompile(`\bobs\b`)

// WC3StatsClient reads the public custom-game list.
type WC3StatsClient struct {
	url    string
	client *fasthttp.Client
}

func NewWC3StatsClient(cfg *config.Config) *WC3StatsClient {
	return &WC3StatsClient{
		url: cfg.WC3StatsURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

type GameListResponse struct {
	Status string              `json:"status"`
	Body   []domain.PublicGame `json:"body"`
}

// ListGames returns every advertised game. A response without status OK is
// treated as an empty list.
func (c *WC3StatsClient) ListGames(ctx context.Context) ([]domain.PublicGame, error) {
	resp, err := doRequest[GameListResponse](ctx, c.client, c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch game list: %w", err)
	}
	if resp.Status != "OK" || resp.Body == nil {
		return []domain.PublicGame{}, nil
	}
	return resp.Body, nil
}

// ObserverGames keeps games whose name has "obs" as a whole word and that
// were hosted less than maxUptime ago. Zero maxUptime disables the age check.
func ObserverGames(games []domain.PublicGame, maxUptime time.Duration) []domain.PublicGame {
	out := []domain.PublicGame{}
	for _, g := range games {
		if !obsWord.MatchString(strings.ToLower(g.Name)) {
			continue
		}
		if maxUptime > 0 && time.Duration(g.Uptime)*time.Second >= maxUptime {
			continue
		}
		out = append(out, g)
	}
	return out
}

func doRequest[T any](ctx context.Context, client *fasthttp.Client, url string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
