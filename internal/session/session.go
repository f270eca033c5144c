// Package session resolves the player's identity against the game server's
// HTTP API before the realtime connection is opened.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/itray25/neogen/internal/state"
)

// ErrUnknownUser reports that the server has no account for the given id.
var ErrUnknownUser = errors.New("unknown user")

// Client talks to the server's account API.
type Client struct {
	base string
	http *http.Client
	log  *zerolog.Logger
}

// NewClient builds a session client for the given API base URL, such as
// "http://localhost:8081".
func NewClient(base string, logger *zerolog.Logger) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  logger,
	}
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Lookup resolves an existing account by its user id.
func (c *Client) Lookup(ctx context.Context, userID string) (state.Identity, error) {
	target := fmt.Sprintf("%s/api/users?user_id=%s", c.base, url.QueryEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return state.Identity{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return state.Identity{}, fmt.Errorf("account lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return state.Identity{}, ErrUnknownUser
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return state.Identity{}, fmt.Errorf("account lookup: status %d: %s", resp.StatusCode, body)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return state.Identity{}, fmt.Errorf("account lookup: decode: %w", err)
	}
	c.log.Debug().Int64("user_id", user.ID).Str("username", user.Username).Msg("account resolved")
	return state.Identity{
		UserID:      strconv.FormatInt(user.ID, 10),
		DisplayName: user.Username,
	}, nil
}

// Register creates an account for the given display name.
func (c *Client) Register(ctx context.Context, username string) (state.Identity, error) {
	payload, err := json.Marshal(map[string]string{"username": username})
	if err != nil {
		return state.Identity{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/users", bytes.NewReader(payload))
	if err != nil {
		return state.Identity{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return state.Identity{}, fmt.Errorf("account register: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return state.Identity{}, fmt.Errorf("account register: status %d: %s", resp.StatusCode, body)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return state.Identity{}, fmt.Errorf("account register: decode: %w", err)
	}
	c.log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("account registered")
	return state.Identity{
		UserID:      strconv.FormatInt(user.ID, 10),
		DisplayName: user.Username,
	}, nil
}

// Guest builds a throwaway local identity. No server round-trip happens; the
// realtime endpoint accepts the id as-is.
func Guest(name string) state.Identity {
	id := uuid.NewString()
	if name == "" {
		name = "guest-" + id[:8]
	}
	return state.Identity{UserID: id, DisplayName: name}
}
