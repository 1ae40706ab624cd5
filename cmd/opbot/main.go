package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/dalnet/opbot/internal/acl"
	"github.com/dalnet/opbot/internal/command"
	"github.com/dalnet/opbot/internal/config"
	"github.com/dalnet/opbot/internal/irc"
	"github.com/dalnet/opbot/internal/logging"
	"github.com/dalnet/opbot/internal/moderation"
	"github.com/dalnet/opbot/internal/storage"
	"github.com/dalnet/opbot/internal/timer"
)

// Version information - set at build time via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	foreground := flag.Bool("x", false, "Run in foreground (don't daemonize)")
	configPath := flag.String("c", "./config.yaml", "Path to configuration file")
	showVersion := flag.Bool("v", false, "Show version information and exit")
	showVersionLong := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion || *showVersionLong {
		fmt.Printf("opbot version %s\n", version)
		fmt.Printf("Built: %s\n", buildDate)
		fmt.Printf("Commit: %s\n", gitCommit)
		os.Exit(0)
	}

	irc.Version = version
	irc.BuildDate = buildDate
	irc.GitCommit = gitCommit

	boot := logging.New("info", os.Stderr)

	if !*foreground {
		daemonize(boot)
		return
	}

	if err := writePIDFile(); err != nil {
		boot.Warn().Err(err).Msg("Could not write PID file")
	}

	if err := run(*configPath); err != nil {
		boot.Fatal().Err(err).Msg("opbot stopped")
	}
}

// daemonize re-executes the binary detached from the terminal
func daemonize(log zerolog.Logger) {
	if os.Getenv("OPBOT_DAEMON") == "1" {
		if err := writePIDFile(); err != nil {
			log.Warn().Err(err).Msg("Could not write PID file")
		}
		fmt.Printf("Now becoming a daemon\nMy pid is %d, this has been written to pid.txt\n", os.Getpid())

		args := append(os.Args, "-x")
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Env = os.Environ()
		if err := cmd.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start daemon")
		}
		os.Exit(0)
	}

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), "OPBOT_DAEMON=1")
	if err := cmd.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to fork")
	}
	os.Exit(0)
}

func writePIDFile() error {
	return os.WriteFile("pid.txt", []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

func run(configPath string) error {
	if !filepath.IsAbs(configPath) {
		wd, _ := os.Getwd()
		configPath = filepath.Join(wd, configPath)
	}

	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging.Level, os.Stdout)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(cfg.Storage, cfg.DataDir)
	if err != nil {
		return err
	}
	defer backend.Close()

	store, err := timer.OpenStore(ctx, backend)
	if err != nil {
		return fmt.Errorf("failed to load timers: %w", err)
	}

	stats, err := storage.OpenStats(cfg.DataDir)
	if err != nil {
		return err
	}

	client, err := irc.NewClient(cfg, stats, log.With().Str("component", "irc").Logger())
	if err != nil {
		return fmt.Errorf("failed to create IRC client: %w", err)
	}

	sched, err := timer.NewScheduler(store, moderation.Actions(client), cfg.Timers.Scheduler(),
		log.With().Str("component", "timers").Logger())
	if err != nil {
		return err
	}
	defer sched.Stop()

	access := acl.New(cfg.Admins, cfg.Operators)
	go func() {
		err := config.Watch(ctx, configPath, log, func(next *config.Config) {
			access.Reload(next.Admins, next.Operators)
			log.Info().Int("admins", len(next.Admins)).Int("channels", len(next.Operators)).Msg("Access lists reloaded")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Config watcher stopped")
		}
	}()

	plugin := &moderation.Plugin{Bot: client, Notify: client, Timers: sched, Version: version}
	table, err := command.NewTable(command.Policies(access), plugin.Commands()...)
	if err != nil {
		return err
	}
	dispatcher := command.NewDispatcher(table, client, client)
	dispatcher.Audit = client.RecordCommand
	client.SetHandler(dispatcher)

	client.OnReady = func() {
		sched.Start()
		if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			log.Debug().Err(err).Msg("sd_notify failed")
		}
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Received shutdown signal")
		sched.Stop()
		client.Quit("Received shutdown signal")
	}()

	log.Info().Str("server", cfg.Server).Int("port", cfg.Port).Msg("Connecting")
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	log.Info().Int("commands", len(table.Names())).Msg("Connected, entering main loop")
	client.Loop()
	return nil
}
