// fake_server runs a local Server List Ping responder for smoke testing the
// bot without a real Minecraft server. It is a standalone tool, not part of
// the module's test suite.
//
// Usage:
//
//	go run ./scripts/fake_server --addr 127.0.0.1:25565 --online 3 --max 20 --names Zed,amy,bob
//	MINECRAFT_SERVER_DOMAIN_OR_IP=127.0.0.1 go run ./cmd/mcstatus-bot --dry-run
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/9-FS/minecraft-server-status/internal/mcping/mcpingtest"
)

var behaviors = map[string]mcpingtest.Behavior{
	"respond":      mcpingtest.Respond,
	"hangup":       mcpingtest.HangUp,
	"garbage":      mcpingtest.Garbage,
	"wrong-packet": mcpingtest.WrongPacket,
	"stall":        mcpingtest.Stall,
}

// parseBehavior maps a --behavior value onto a responder behaviour.
func parseBehavior(s string) (mcpingtest.Behavior, error) {
	b, ok := behaviors[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown behavior %q (want respond, hangup, garbage, wrong-packet or stall)", s)
	}
	return b, nil
}

// parseNames splits a comma-separated player list, dropping empty entries.
func parseNames(s string) []string {
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := flag.String("addr", "127.0.0.1:25565", "listen address")
	online := flag.Int("online", 0, "players online")
	maxPlayers := flag.Int("max", 20, "player limit")
	names := flag.String("names", "", "comma-separated player sample")
	behavior := flag.String("behavior", "respond", "respond | hangup | garbage | wrong-packet | stall")
	flag.Parse()

	b, err := parseBehavior(*behavior)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid flags")
	}
	if *online < 0 || *maxPlayers < 0 {
		log.Fatal().Msg("--online and --max must not be negative")
	}

	srv, err := mcpingtest.Listen(*addr)
	if err != nil {
		log.Fatal().Err(err).Msg("listen failed")
	}
	defer srv.Close()

	srv.SetStatus(mcpingtest.Players(*online, *maxPlayers, parseNames(*names)...))
	srv.SetBehavior(b)

	log.Info().
		Str("addr", srv.Addr()).
		Int("online", *online).
		Int("max", *maxPlayers).
		Str("behavior", *behavior).
		Msg("fake server listening")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Int("handshakes", len(srv.Handshakes())).Msg("fake server stopped")
}
