// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command github-mattermost is a GitHub-to-Mattermost notification bridge.
// It receives GitHub webhook deliveries over HTTP, normalizes them into
// entity-keyed records, and keeps at most one live Mattermost post per
// entity, editing the post in place as follow-up events arrive. Routing is
// adjusted at runtime through !github chat commands, the routing HTTP API,
// and hot reload of the config file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/github-mattermost/pkg/bridge"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "config.yaml", "path to the config file")
		debug       = flag.Bool("debug", false, "enable debug logging")
		showVersion = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("github-mattermost %s (%s, built %s)\n", Tag, Commit, BuildTime)
		return nil
	}

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.StampMilli,
	}).Level(level).With().Timestamp().Logger()

	// First run: write the example config and ask the operator to fill in
	// the credentials instead of starting with an unusable empty config.
	if _, err := os.Stat(*configPath); errors.Is(err, fs.ErrNotExist) {
		if writeErr := os.WriteFile(*configPath, []byte(bridge.ExampleConfig), 0o600); writeErr != nil {
			return fmt.Errorf("write example config: %w", writeErr)
		}
		return fmt.Errorf("no config file found, wrote an example to %s, fill in server_url and bot_token and restart", *configPath)
	}

	cfg, err := bridge.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(cfg, *configPath, log)
	if err := b.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	b.Stop()
	return nil
}
