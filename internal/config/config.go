package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all runtime configuration.
type Config struct {
	// Discord
	DiscordBotToken string `koanf:"discord_bot_token"`

	// Minecraft server
	ServerHost      string        `koanf:"minecraft_server_domain_or_ip"`
	ServerPort      int           `koanf:"minecraft_server_port"` // 0 = unset
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	SampleTimeout   time.Duration `koanf:"sample_timeout"`
	SRVLookup       bool          `koanf:"srv_lookup"`

	// Operational
	LogLevel       string `koanf:"log_level"`
	LogFormat      string `koanf:"log_format"`
	LogFile        string `koanf:"log_file"` // "" = stderr only
	MetricsEnabled bool   `koanf:"metrics_enabled"`
	MetricsAddr    string `koanf:"metrics_addr"` // "" = disabled
}

// defaults is the lowest-priority layer.
var defaults = map[string]any{
	"discord_bot_token":             "",
	"minecraft_server_domain_or_ip": "",
	"minecraft_server_port":         0,
	"refresh_interval":              5 * time.Second,
	"sample_timeout":                5 * time.Second,
	"srv_lookup":                    true,
	"log_level":                     "info",
	"log_format":                    "json",
	"log_file":                      "",
	"metrics_enabled":               true,
	"metrics_addr":                  ":9090",
}

// durationKeys accept both Go duration strings ("30s") and plain integer
// seconds ("30"), the format older configs used.
var durationKeys = []string{"refresh_interval", "sample_timeout"}

// boolEnv are read with envBool so that yes/no and 1/0 work as well.
var boolEnv = map[string]bool{
	"SRV_LOOKUP":      true,
	"METRICS_ENABLED": true,
}

const redacted = "REDACTED"

// Load reads the configuration for running the bot. A Discord bot token is
// required.
func Load() (*Config, error) {
	return load(true)
}

// LoadWithoutToken reads the configuration for commands that never connect
// to Discord (status, dry runs).
func LoadWithoutToken() (*Config, error) {
	return load(false)
}

// load reads configuration from (lowest → highest priority):
//  1. Built-in defaults
//  2. YAML file at CONFIG_FILE env var path (if set)
//  3. Environment variables (always highest priority)
func load(requireToken bool) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults.
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	// Layer 2: optional YAML file.
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", cfgFile, err)
		}
	}

	// Layer 3: environment variables.
	// Transform: "MINECRAFT_SERVER_PORT" → "minecraft_server_port".
	// Boolean switches are skipped here and handled below with envBool.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		if boolEnv[s] {
			return ""
		}
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var errs []string
	for _, key := range durationKeys {
		if err := normaliseSeconds(k, key); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%d configuration error(s):\n  - %s", len(errs), strings.Join(errs, "\n  - "))
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.SRVLookup = envBool("SRV_LOOKUP", cfg.SRVLookup)
	cfg.MetricsEnabled = envBool("METRICS_ENABLED", cfg.MetricsEnabled)

	// Normalise string fields.
	cfg.ServerHost = strings.TrimSpace(cfg.ServerHost)
	cfg.LogLevel = strings.TrimSpace(strings.ToLower(cfg.LogLevel))
	cfg.LogFormat = strings.TrimSpace(strings.ToLower(cfg.LogFormat))

	// Docker secrets: DISCORD_BOT_TOKEN_FILE is read only when the token is
	// not set directly.
	if cfg.DiscordBotToken == "" {
		cfg.DiscordBotToken = fileSecret("DISCORD_BOT_TOKEN_FILE")
	}
	cfg.DiscordBotToken = strings.TrimSpace(cfg.DiscordBotToken)

	if !cfg.MetricsEnabled {
		cfg.MetricsAddr = ""
	}

	if err := cfg.validate(requireToken); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Port returns the configured server port, 0 when unset.
func (c *Config) Port() uint16 {
	return uint16(c.ServerPort)
}

// Redacted returns a copy that is safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.DiscordBotToken != "" {
		cp.DiscordBotToken = redacted
	}
	return &cp
}

// Map returns the effective configuration keyed like the environment
// variables, with durations rendered as strings.
func (c *Config) Map() map[string]any {
	return map[string]any{
		"DISCORD_BOT_TOKEN":             c.DiscordBotToken,
		"MINECRAFT_SERVER_DOMAIN_OR_IP": c.ServerHost,
		"MINECRAFT_SERVER_PORT":         c.ServerPort,
		"REFRESH_INTERVAL":              c.RefreshInterval.String(),
		"SAMPLE_TIMEOUT":                c.SampleTimeout.String(),
		"SRV_LOOKUP":                    c.SRVLookup,
		"LOG_LEVEL":                     c.LogLevel,
		"LOG_FORMAT":                    c.LogFormat,
		"LOG_FILE":                      c.LogFile,
		"METRICS_ENABLED":               c.MetricsEnabled,
		"METRICS_ADDR":                  c.MetricsAddr,
	}
}

func (c *Config) validate(requireToken bool) error {
	var errs []string

	if requireToken && c.DiscordBotToken == "" {
		errs = append(errs, "DISCORD_BOT_TOKEN is required (create a bot at: https://discord.com/developers/applications)")
	}
	if c.ServerHost == "" {
		errs = append(errs, "MINECRAFT_SERVER_DOMAIN_OR_IP is required (e.g., play.example.com or 203.0.113.7)")
	}
	if strings.ContainsAny(c.ServerHost, " \t\r\n") {
		errs = append(errs, "MINECRAFT_SERVER_DOMAIN_OR_IP must not contain whitespace")
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		errs = append(errs, "MINECRAFT_SERVER_PORT must be between 1 and 65535 (or unset)")
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, "REFRESH_INTERVAL must be positive")
	}
	if c.SampleTimeout < 100*time.Millisecond {
		errs = append(errs, "SAMPLE_TIMEOUT must be at least 100ms")
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "LOG_LEVEL must be one of trace, debug, info, warn, error")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, "LOG_FORMAT must be json or text")
	}
	if strings.ContainsRune(c.LogFile, 0) {
		errs = append(errs, "LOG_FILE must not contain null bytes")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d configuration error(s):\n  - %s", len(errs), strings.Join(errs, "\n  - "))
	}
	return nil
}

// normaliseSeconds rewrites a plain integer value of key into seconds.
func normaliseSeconds(k *koanf.Koanf, key string) error {
	raw := strings.TrimSpace(k.String(key))
	if raw == "" {
		return nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return k.Set(key, time.Duration(secs)*time.Second)
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return k.Set(key, d)
	}
	return fmt.Errorf("%s: %q is neither a duration nor a number of seconds", strings.ToUpper(key), raw)
}

// fileSecret returns the trimmed contents of the file named by the env var
// key, or "" when unset or unreadable.
func fileSecret(key string) string {
	path := strings.TrimSpace(os.Getenv(key))
	if path == "" {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}
