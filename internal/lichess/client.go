// Package lichess is a minimal client for the public Lichess API.
//
// Only the current-game endpoint is used: one GET per call, no retry and no
// caching. Transient failures are the caller's problem to isolate per player.
package lichess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "gmwatch/pkg/logx"
)

const DefaultBaseURL = "https://lichess.org"

// ErrNoActiveGame reports that the queried player is not currently playing.
// This is the expected common case (the endpoint answers 404 for idle
// players) and also covers payloads too inconsistent to notify about.
var ErrNoActiveGame = errors.New("no active game")

// GameStatus describes one in-progress game of a monitored player.
type GameStatus struct {
	Player   string // normalized queried username
	GameID   string
	Opponent string
	Speed    string // lower-cased time-control label (bullet/blitz/...)
	Color    string // "White" or "Black"
	Link     string // live game URL
}

type Config struct {
	BaseURL string
	// Timeout bounds a single request. Defaults to 10s.
	Timeout time.Duration
	// RatePerSec caps outbound requests; Lichess throttles aggressively.
	// Defaults to 2.
	RatePerSec int
}

type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// BaseURL returns the configured API base (used to build game links).
func (c *Client) BaseURL() string { return c.base }

// currentGamePayload is the subset of the current-game response we consume.
type currentGamePayload struct {
	ID       string `json:"id"`
	Speed    string `json:"speed"`
	Opponent *struct {
		Username string `json:"username"`
	} `json:"opponent"`
	Players struct {
		White struct {
			User struct {
				Name string `json:"name"`
			} `json:"user"`
		} `json:"white"`
	} `json:"players"`
}

// CurrentGame fetches the player's game in progress.
//
// Returns ErrNoActiveGame for any non-200 response and for 200 payloads
// missing the game id or the opponent object (the upstream occasionally emits
// half-filled bodies for games that just ended). Any other error is a
// transport failure.
func (c *Client) CurrentGame(ctx context.Context, player string) (GameStatus, error) {
	player = strings.ToLower(strings.TrimSpace(player))
	if player == "" {
		return GameStatus{}, errors.New("player is empty")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return GameStatus{}, err
	}

	u := c.base + "/api/user/" + url.PathEscape(player) + "/current-game"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return GameStatus{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return GameStatus{}, fmt.Errorf("current-game %s: %w", player, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 404 is the idle case; treat every other status the same way, the
		// next cycle will ask again anyway.
		if resp.StatusCode != http.StatusNotFound {
			c.log.Debug("current-game non-200", logx.String("player", player), logx.Int("status", resp.StatusCode))
		}
		return GameStatus{}, ErrNoActiveGame
	}

	var p currentGamePayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return GameStatus{}, fmt.Errorf("current-game %s: decode: %w", player, err)
	}

	if p.ID == "" || p.Opponent == nil {
		return GameStatus{}, ErrNoActiveGame
	}

	opponent := strings.TrimSpace(p.Opponent.Username)
	if opponent == "" {
		opponent = "Unknown"
	}

	color := "Black"
	if strings.ToLower(strings.TrimSpace(p.Players.White.User.Name)) == player {
		color = "White"
	}

	return GameStatus{
		Player:   player,
		GameID:   p.ID,
		Opponent: opponent,
		Speed:    strings.ToLower(strings.TrimSpace(p.Speed)),
		Color:    color,
		Link:     c.base + "/" + p.ID,
	}, nil
}
