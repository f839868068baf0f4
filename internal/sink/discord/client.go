// Package discord shows presence updates as the custom status of a Discord
// bot user.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/9-FS/minecraft-server-status/internal/presence"
	"github.com/9-FS/minecraft-server-status/internal/sink"
)

const (
	// MaxStatusLength is Discord's limit on custom status text, in characters.
	MaxStatusLength = 128

	customStatusName = "Custom Status"
)

// Session is the subset of *discordgo.Session used by the sink.
type Session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// ClientConfig holds configuration for the Discord sink.
type ClientConfig struct {
	Token string
}

// Client implements the sink.Sink interface for a Discord bot session.
type Client struct {
	session Session

	readyOnce sync.Once
	ready     chan struct{}
	connected atomic.Bool

	mu      sync.Mutex
	removes []func()
}

// Compile-time interface check.
var _ sink.Sink = (*Client)(nil)

// NewClient creates a Discord sink. The gateway connection is not opened
// until Open.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: bot token is empty")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return NewWithSession(s), nil
}

// NewWithSession wraps an existing session. Used by tests.
func NewWithSession(s Session) *Client {
	return &Client{session: s, ready: make(chan struct{})}
}

func (c *Client) Name() string { return "discord" }

// Open registers the gateway handlers and connects. Ready is closed on the
// first Ready event; later ones after reconnects only restore health.
func (c *Client) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.removes = append(c.removes,
		c.session.AddHandler(c.onReady),
		c.session.AddHandler(c.onResumed),
		c.session.AddHandler(c.onDisconnect),
	)
	c.mu.Unlock()

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	return nil
}

func (c *Client) Ready() <-chan struct{} { return c.ready }

// Publish sets the bot's status and custom status text. Text longer than
// MaxStatusLength characters is cut.
func (c *Client) Publish(ctx context.Context, u presence.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := discordgo.UpdateStatusData{
		Status: string(statusFor(u.Status)),
		Activities: []*discordgo.Activity{{
			Name:  customStatusName,
			Type:  discordgo.ActivityTypeCustom,
			State: truncate(u.Text, MaxStatusLength),
		}},
	}
	if err := c.session.UpdateStatusComplex(data); err != nil {
		return fmt.Errorf("discord: update status: %w", err)
	}
	return nil
}

// Healthy reports whether the gateway connection is currently up.
func (c *Client) Healthy(_ context.Context) error {
	if !c.connected.Load() {
		return errors.New("discord: gateway not connected")
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	for _, rm := range c.removes {
		rm()
	}
	c.removes = nil
	c.mu.Unlock()

	c.connected.Store(false)
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("discord: close gateway: %w", err)
	}
	return nil
}

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	c.connected.Store(true)
	ev := log.Info()
	if r != nil && r.User != nil {
		ev = ev.Str("user", r.User.Username)
	}
	first := false
	c.readyOnce.Do(func() {
		first = true
		close(c.ready)
	})
	if first {
		ev.Msg("discord ready")
		return
	}
	ev.Msg("discord reconnected")
}

func (c *Client) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	c.connected.Store(true)
	log.Debug().Msg("discord session resumed")
}

func (c *Client) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	c.connected.Store(false)
	log.Warn().Msg("discord gateway disconnected")
}

func statusFor(s presence.Status) discordgo.Status {
	if s == presence.Online {
		return discordgo.StatusOnline
	}
	return discordgo.StatusDoNotDisturb
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
