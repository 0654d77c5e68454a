// Copyright 2024-2026 Aiku AI

package bridge

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the bridge configuration.
type Config struct {
	// ServerURL is the base URL of the Mattermost server.
	ServerURL string `yaml:"server_url"`
	// BotToken authenticates the bot account that posts notifications and
	// answers admin commands.
	BotToken string `yaml:"bot_token"`
	// DefaultChannel receives notifications for every category without a
	// channel override in the routing table.
	DefaultChannel string `yaml:"default_channel"`
	// AdminUsers lists the Mattermost usernames allowed to use the
	// !github command surface. Empty means nobody.
	AdminUsers []string `yaml:"admin_users"`

	// ListenAddr is the bind address for the webhook and admin HTTP
	// server. Defaults to ":25578".
	ListenAddr string `yaml:"listen_addr"`
	// WebhookSecret verifies X-Hub-Signature-256 on incoming deliveries.
	// Empty accepts unsigned deliveries.
	WebhookSecret string `yaml:"webhook_secret"`

	// StatePath is the JSON file holding records, message IDs and the
	// routing table. Defaults to "data_store.json".
	StatePath string `yaml:"state_path"`

	// IncludeCategory appends a footer naming the event category to every
	// rendered message.
	IncludeCategory bool `yaml:"include_category"`

	// Routing seeds the per-category routing table at startup. Categories
	// the state file already knows keep their persisted entry.
	Routing map[string]ChannelRoute `yaml:"routing"`

	adminUsers map[string]bool `yaml:"-"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess validates required fields, fills defaults, and derives the
// admin lookup set. It must run once after unmarshalling.
func (c *Config) PostProcess() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.BotToken == "" {
		return errors.New("bot_token is required")
	}
	if c.DefaultChannel == "" {
		return errors.New("default_channel is required")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":25578"
	}
	if c.StatePath == "" {
		c.StatePath = "data_store.json"
	}
	c.adminUsers = make(map[string]bool, len(c.AdminUsers))
	for _, name := range c.AdminUsers {
		c.adminUsers[strings.ToLower(name)] = true
	}
	return nil
}

// IsAdmin reports whether the Mattermost username may drive the command
// surface. Matching is case-insensitive.
func (c *Config) IsAdmin(username string) bool {
	return c.adminUsers[strings.ToLower(username)]
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "server_url")
	helper.Copy(up.Str, "bot_token")
	helper.Copy(up.Str, "default_channel")
	helper.Copy(up.List, "admin_users")
	helper.Copy(up.Str, "listen_addr")
	helper.Copy(up.Str, "webhook_secret")
	helper.Copy(up.Str, "state_path")
	helper.Copy(up.Bool, "include_category")
	helper.Copy(up.Map, "routing")
}

func configUpgrader() *up.StructUpgrader {
	return &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Blocks:         nil,
		Base:           ExampleConfig,
	}
}

// LoadConfig reads the config file at path, migrates it in place against
// the embedded example, and validates the result.
func LoadConfig(path string) (*Config, error) {
	return readConfig(path, true)
}

// readConfig parses and validates the file at path. The hot-reload path
// passes save=false so a reload never rewrites the watched file.
func readConfig(path string, save bool) (*Config, error) {
	data, _, err := up.Do(path, save, configUpgrader())
	if err != nil {
		return nil, fmt.Errorf("upgrade config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
