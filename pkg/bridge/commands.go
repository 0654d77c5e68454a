// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

// commandPrefix starts every admin command post.
const commandPrefix = "!github"

// reconnectDelay paces WebSocket reconnect attempts after the server drops
// the connection.
const reconnectDelay = 5 * time.Second

const helpText = "**GitHub notification bridge commands**\n" +
	"- `!github enable <category>`: start delivering a category\n" +
	"- `!github disable <category>`: stop delivering a category\n" +
	"- `!github channel <category> <channel-id>`: route a category to a channel\n" +
	"- `!github list`: show every category with its routing\n" +
	"- `!github help`: this message"

// CommandListener reacts to admin commands posted in Mattermost channels
// the bot can see. Replies go through the same MessageSender the engine
// uses and are posted to the channel the command came from.
type CommandListener struct {
	log        zerolog.Logger
	sender     MessageSender
	store      *Store
	cfg        *Config
	categories map[string]bool
	botUserID  string
}

// NewCommandListener builds a listener answering for the given categories.
// botUserID is the bot's own account, used for echo prevention.
func NewCommandListener(sender MessageSender, store *Store, cfg *Config, categories []string, botUserID string, log zerolog.Logger) *CommandListener {
	set := make(map[string]bool, len(categories))
	for _, category := range categories {
		set[category] = true
	}
	return &CommandListener{
		log:        log.With().Str("component", "commands").Logger(),
		sender:     sender,
		store:      store,
		cfg:        cfg,
		categories: set,
		botUserID:  botUserID,
	}
}

// Run consumes WebSocket events until ctx is cancelled, reconnecting with
// a fixed delay whenever the event channel closes.
func (l *CommandListener) Run(ctx context.Context, client *Client) error {
	ws, err := client.ConnectWebSocket()
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			ws.Close()
			return ctx.Err()
		case evt, ok := <-ws.EventChannel:
			if !ok {
				l.log.Warn().Msg("WebSocket event channel closed, reconnecting")
				ws = l.reconnect(ctx, client)
				if ws == nil {
					return ctx.Err()
				}
				continue
			}
			if evt == nil {
				continue
			}
			l.handleEvent(ctx, evt)
		}
	}
}

func (l *CommandListener) reconnect(ctx context.Context, client *Client) *model.WebSocketClient {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
		ws, err := client.ConnectWebSocket()
		if err != nil {
			l.log.Error().Err(err).Msg("WebSocket reconnect failed")
			continue
		}
		return ws
	}
}

// handleEvent dispatches a Mattermost WebSocket event.
func (l *CommandListener) handleEvent(ctx context.Context, evt *model.WebSocketEvent) {
	switch evt.EventType() {
	case model.WebsocketEventPosted:
		l.handlePosted(ctx, evt)
	default:
		l.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
	}
}

func (l *CommandListener) handlePosted(ctx context.Context, evt *model.WebSocketEvent) {
	post, sender, err := l.parsePostedEvent(evt)
	if err != nil {
		l.log.Warn().Err(err).Msg("Failed to parse posted event")
		return
	}
	if post == nil {
		return
	}
	fields := strings.Fields(post.Message)
	if len(fields) == 0 || fields[0] != commandPrefix {
		return
	}

	var reply string
	if !l.cfg.IsAdmin(sender) {
		l.log.Warn().Str("username", sender).Str("channel_id", post.ChannelId).Msg("Command from non-admin user")
		reply = "❌ You do not have permission to use this command."
	} else {
		reply = l.runCommand(ctx, fields[1:])
	}
	if _, err := l.sender.SendMessage(ctx, post.ChannelId, reply); err != nil {
		l.log.Error().Err(err).Str("channel_id", post.ChannelId).Msg("Failed to post command reply")
	}
}

// parsePostedEvent extracts and validates a post from a WebSocket event,
// applying echo prevention. Returns (nil, "", nil) to skip silently,
// (nil, "", err) to log an error, or the post plus the sender's username.
func (l *CommandListener) parsePostedEvent(evt *model.WebSocketEvent) (*model.Post, string, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, "", fmt.Errorf("posted event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal post: %w", err)
	}

	// Echo prevention: skip own posts.
	if post.UserId == l.botUserID {
		return nil, "", nil
	}

	// Echo prevention: skip non-default post types (system messages).
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, "", nil
	}

	senderName, _ := evt.GetData()["sender_name"].(string)
	senderName = strings.TrimPrefix(senderName, "@")

	return &post, senderName, nil
}

func (l *CommandListener) runCommand(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return helpText
	}
	switch args[0] {
	case "enable", "disable":
		if len(args) != 2 {
			return fmt.Sprintf("❌ Usage: %s %s <category>", commandPrefix, args[0])
		}
		return l.setEnabled(args[1], args[0] == "enable")
	case "channel":
		if len(args) != 3 {
			return fmt.Sprintf("❌ Usage: %s channel <category> <channel-id>", commandPrefix)
		}
		return l.setChannel(ctx, args[1], args[2])
	case "list":
		return l.listRouting()
	case "help":
		return helpText
	default:
		return fmt.Sprintf("❌ Unknown command '%s'. Try %s help.", args[0], commandPrefix)
	}
}

func (l *CommandListener) setEnabled(category string, enabled bool) string {
	category = strings.ToLower(category)
	if !l.categories[category] {
		return fmt.Sprintf("❌ Category '%s' does not exist. Try %s list.", category, commandPrefix)
	}
	l.store.SetEnabled(category, enabled)
	status := "✅ **enabled**"
	if !enabled {
		status = "❌ **disabled**"
	}
	l.log.Info().Str("category", category).Bool("enabled", enabled).Msg("Category toggled by command")
	return fmt.Sprintf("📢 Category '%s' is now %s.", category, status)
}

func (l *CommandListener) setChannel(ctx context.Context, category, channelID string) string {
	category = strings.ToLower(category)
	if !l.categories[category] {
		return fmt.Sprintf("❌ Category '%s' does not exist. Try %s list.", category, commandPrefix)
	}
	resolved, err := l.sender.ResolveChannel(ctx, channelID)
	if errors.Is(err, ErrChannelNotFound) {
		return fmt.Sprintf("❌ Channel '%s' not found.", channelID)
	}
	if err != nil {
		l.log.Error().Err(err).Str("channel_id", channelID).Msg("Channel lookup failed")
		return fmt.Sprintf("❌ Could not verify channel '%s'.", channelID)
	}
	l.store.SetChannel(category, resolved)
	l.log.Info().Str("category", category).Str("channel_id", resolved).Msg("Category channel set by command")
	return fmt.Sprintf("📍 Category '%s' will now post to channel %s.", category, resolved)
}

func (l *CommandListener) listRouting() string {
	names := make([]string, 0, len(l.categories))
	for name := range l.categories {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("📋 **Event Categories**\n")
	for _, name := range names {
		route, ok := l.store.Routing(name)
		status := "Disabled ❌"
		if ok && route.Enabled {
			status = "Enabled ✅"
		}
		channel := "default"
		if ok && route.ChannelID != "" {
			channel = route.ChannelID
		}
		fmt.Fprintf(&b, "- `%s`: %s (channel: %s)\n", name, status, channel)
	}
	return b.String()
}
