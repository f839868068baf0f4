package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/9-FS/minecraft-server-status/internal/bot"
	"github.com/9-FS/minecraft-server-status/internal/config"
	"github.com/9-FS/minecraft-server-status/internal/logger"
	"github.com/9-FS/minecraft-server-status/internal/metrics"
	"github.com/9-FS/minecraft-server-status/internal/presence"
	"github.com/9-FS/minecraft-server-status/internal/sampler"
	"github.com/9-FS/minecraft-server-status/internal/sink"
	"github.com/9-FS/minecraft-server-status/internal/sink/console"
	"github.com/9-FS/minecraft-server-status/internal/sink/discord"
	"github.com/9-FS/minecraft-server-status/internal/target"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// runtimeBot is the part of *bot.Bot used by the commands.
type runtimeBot interface {
	Run(ctx context.Context) error
	Healthy(ctx context.Context) error
	Close()
}

// Seams replaced in tests.
var (
	loadConfig        = config.Load
	loadOfflineConfig = config.LoadWithoutToken
	registerMetrics   = metrics.Register
	newSignalContext  = func(parent context.Context) (context.Context, context.CancelFunc) {
		return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	}
	newRuntime = func(cfg *config.Config, sinks []sink.Sink) (runtimeBot, error) {
		return bot.New(cfg, sinks)
	}
	newSampler = func(cfg *config.Config) sampler.Sampler {
		return sampler.New(cfg.SampleTimeout, cfg.SRVLookup)
	}
	httpGet = (&http.Client{Timeout: 5 * time.Second}).Get
)

// errUnavailable makes the status command exit non-zero without extra noise.
var errUnavailable = errors.New("server unavailable")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errUnavailable) {
			log.Error().Err(err).Msg("fatal")
		}
		os.Exit(1)
	}
}

// newRootCmd builds and returns the root cobra command. Extracted from main so
// that tests can invoke it directly without spawning a subprocess.
func newRootCmd() *cobra.Command {
	var dryRun bool

	rootCmd := &cobra.Command{
		Use:   "mcstatus-bot",
		Short: "Show a Minecraft server's status as a Discord bot presence",
		Long: `A Discord bot that pings a Minecraft (Java edition) server on a fixed
interval and shows its player count, or that it is offline, as the bot's
custom status.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, dryRun)
		},
	}
	const dryRunUsage = "print presence updates to stdout instead of connecting to Discord"
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, dryRunUsage)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot (same as running without a subcommand)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, dryRun)
		},
	}
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, dryRunUsage)
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Ping the configured server once and print the presence text",
		RunE:  runStatus,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "healthcheck",
		Short: "Query the local /readyz endpoint (for Docker HEALTHCHECK)",
		RunE:  runHealthcheck,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML (token redacted)",
		RunE:  runConfig,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcstatus-bot %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	return rootCmd
}

func runBot(cmd *cobra.Command, dryRun bool) error {
	load := loadConfig
	if dryRun {
		load = loadOfflineConfig
	}
	cfg, err := load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	closeLog := initLogging(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	defer closeLog()

	registerMetrics()

	sinks, err := buildSinks(cfg, dryRun, stdout(cmd))
	if err != nil {
		return fmt.Errorf("sink init: %w", err)
	}

	ctx, cancel := newSignalContext(context.Background())
	defer cancel()

	b, err := newRuntime(cfg, sinks)
	if err != nil {
		return fmt.Errorf("bot init: %w", err)
	}
	defer b.Close()

	log.Info().Str("version", version).Bool("dry_run", dryRun).Msg("starting")
	return b.Run(ctx)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadOfflineConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	closeLog := initLogging(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	defer closeLog()

	t := target.New(cfg.ServerHost, cfg.Port())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.SampleTimeout+time.Second)
	defer cancel()

	out := newSampler(cfg).Sample(ctx, t)
	u := presence.Format(t, out)
	fmt.Fprintf(stdout(cmd), "%s\t%s\n", u.Status, u.Text)
	if !out.IsOnline() {
		log.Warn().
			Str("target", t.DisplayAddress()).
			Str("kind", string(out.Failure.Kind)).
			Str("reason", out.Reason()).
			Msg("sample failed")
		return errUnavailable
	}
	return nil
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadOfflineConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cfg.MetricsAddr == "" {
		return errors.New("healthcheck needs METRICS_ENABLED=true and METRICS_ADDR")
	}

	resp, err := httpGet(readyzURL(cfg.MetricsAddr))
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadOfflineConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	enc := yaml.NewEncoder(stdout(cmd))
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted().Map()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// buildSinks creates the ordered list of presence sinks from configuration.
func buildSinks(cfg *config.Config, dryRun bool, out io.Writer) ([]sink.Sink, error) {
	if dryRun {
		return []sink.Sink{console.New(out)}, nil
	}
	d, err := discord.NewClient(discord.ClientConfig{Token: cfg.DiscordBotToken})
	if err != nil {
		return nil, err
	}
	return []sink.Sink{d}, nil
}

// readyzURL turns a listen address such as ":9090" into a loopback URL.
func readyzURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/readyz"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/readyz"
}

func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

// initLogging configures the global zerolog logger. Output always passes
// through the redacting writer; with a log file it is duplicated to a
// size-rotated file. The returned func closes that file.
func initLogging(level, format, file string) func() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if file != "" {
		fw := logger.NewFileWriter(file)
		out = io.MultiWriter(os.Stderr, fw)
		closeFn = func() { _ = fw.Close() }
	}
	redacted := logger.NewRedactWriter(out)

	if format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: redacted, NoColor: file != ""})
	} else {
		log.Logger = zerolog.New(redacted).With().Timestamp().Logger()
	}

	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	return closeFn
}
