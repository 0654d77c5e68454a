// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

var (
	// ErrMessageGone marks an edit whose target post no longer exists on
	// the server.
	ErrMessageGone = errors.New("message no longer exists")
	// ErrChannelNotFound marks a lookup of a channel the server does not
	// know.
	ErrChannelNotFound = errors.New("channel not found")
)

// Client wraps the Mattermost REST and WebSocket APIs for a single bot
// account. It implements MessageSender.
type Client struct {
	api       *model.Client4
	serverURL string
	log       zerolog.Logger

	mu       sync.Mutex
	channels map[string]string
}

var _ MessageSender = (*Client)(nil)

// NewClient builds an authenticated API client for serverURL.
func NewClient(serverURL, token string, log zerolog.Logger) *Client {
	api := model.NewAPIv4Client(serverURL)
	api.SetToken(token)
	return &Client{
		api:       api,
		serverURL: serverURL,
		log:       log.With().Str("component", "mm_client").Logger(),
		channels:  make(map[string]string),
	}
}

// Me verifies the configured token and returns the bot account.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	me, _, err := c.api.GetMe(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	return me, nil
}

// SendMessage posts text to a channel and returns the created post ID.
func (c *Client) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	post := &model.Post{
		ChannelId: channelID,
		Message:   text,
	}
	created, _, err := c.api.CreatePost(ctx, post)
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	return created.Id, nil
}

// EditMessage replaces the text of an existing post. A deleted or unknown
// post reports ErrMessageGone so the caller can re-send.
func (c *Client) EditMessage(ctx context.Context, _, postID, text string) error {
	patch := &model.PostPatch{
		Message: &text,
	}
	_, resp, err := c.api.PatchPost(ctx, postID, patch)
	if err != nil {
		if isNotFound(resp, err) {
			return fmt.Errorf("patch post %s: %w", postID, ErrMessageGone)
		}
		return fmt.Errorf("patch post %s: %w", postID, err)
	}
	return nil
}

// ResolveChannel verifies that a channel exists and returns its ID.
// Successful lookups are cached; routing changes always pass through here,
// so a bad channel ID surfaces before any message is lost.
func (c *Client) ResolveChannel(ctx context.Context, channelID string) (string, error) {
	c.mu.Lock()
	id, ok := c.channels[channelID]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	channel, resp, err := c.api.GetChannel(ctx, channelID, "")
	if err != nil {
		if isNotFound(resp, err) {
			return "", fmt.Errorf("channel %s: %w", channelID, ErrChannelNotFound)
		}
		return "", fmt.Errorf("get channel %s: %w", channelID, err)
	}

	c.mu.Lock()
	c.channels[channelID] = channel.Id
	c.mu.Unlock()
	c.log.Debug().Str("channel_id", channel.Id).Str("channel_name", channel.Name).Msg("Resolved channel")
	return channel.Id, nil
}

// ConnectWebSocket opens the event stream used by the command listener.
// The caller owns the returned client and must Close it.
func (c *Client) ConnectWebSocket() (*model.WebSocketClient, error) {
	wsURL := httpToWS(c.serverURL)
	ws, err := model.NewWebSocketClient4(wsURL, c.api.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("create websocket client: %w", err)
	}
	ws.Listen()
	c.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
	return ws, nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// isNotFound reports whether an API error means the target does not exist.
// The response status covers plain HTTP errors; the AppError check covers
// errors carried in the API's JSON error body.
func isNotFound(resp *model.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var appErr *model.AppError
	return errors.As(err, &appErr) && appErr.StatusCode == http.StatusNotFound
}
