package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agent-pilot/responderd/internal/audio"
	"github.com/agent-pilot/responderd/internal/audit"
	"github.com/agent-pilot/responderd/internal/classify"
	"github.com/agent-pilot/responderd/internal/config"
	"github.com/agent-pilot/responderd/internal/logging"
	"github.com/agent-pilot/responderd/internal/monitor"
	"github.com/agent-pilot/responderd/internal/policy"
	"github.com/agent-pilot/responderd/internal/ratelimit"
	"github.com/agent-pilot/responderd/internal/schedule"
	"github.com/agent-pilot/responderd/internal/server"
	"github.com/agent-pilot/responderd/internal/tmux"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

func runDaemon(ctx context.Context) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})
	log := logging.With().Str("component", "daemon").Logger()

	if err := os.MkdirAll(cfg.Storage.StateDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tmuxClient := tmux.NewClient(cfg.Tmux.Bin, cfg.Tmux.Socket)

	store, err := policy.Load(cfg.Policy.PresetsFile, cfg.Policy.ExtraDenylist)
	if err != nil {
		return err
	}
	if cfg.Policy.WatchPresets && cfg.Policy.PresetsFile != "" {
		go func() {
			if err := store.Watch(ctx, logging.With().Str("component", "policy").Logger()); err != nil {
				log.Warn().Err(err).Msg("presets watch unavailable")
			}
		}()
	}

	classifier := classify.New(store.Denylist)

	audits := audit.NewManager(filepath.Join(cfg.Storage.StateDir, "audit"))
	hub := server.NewHub(logging.With().Str("component", "events").Logger())

	// Every decision goes to the audit file and, best effort, to any
	// connected event subscribers.
	sinks := func(session string) (monitor.Sink, error) {
		fileSink, err := audits.Sink(session)
		if err != nil {
			return nil, err
		}
		return monitor.SinkFunc(func(dec monitor.Decision) error {
			hub.Record(dec)
			return fileSink.Record(dec)
		}), nil
	}

	player := audio.NewPlayer(cfg.Audio.Enabled, logging.With().Str("component", "audio").Logger())
	resumeClip := audio.Clip{
		File:   cfg.Audio.File,
		Offset: time.Duration(cfg.Audio.OffsetMs) * time.Millisecond,
		Length: time.Duration(cfg.Audio.LengthMs) * time.Millisecond,
		Volume: cfg.Audio.Volume,
	}

	var limits *ratelimit.Watcher
	if cfg.RateLimit.Enabled {
		limits = ratelimit.NewWatcher(
			func(session string) error {
				return tmuxClient.SendText(session, cfg.RateLimit.ContinueText, true)
			},
			func() { player.Play(resumeClip) },
			logging.With().Str("component", "ratelimit").Logger(),
		)
	}

	var onSnapshot monitor.SnapshotFunc
	if limits != nil {
		onSnapshot = limits.Scan
	}

	registry := monitor.NewRegistry(monitor.RegistryOptions{
		Store:         store,
		Tmux:          tmuxClient,
		Classifier:    classifier,
		Sinks:         sinks,
		OnSnapshot:    onSnapshot,
		CaptureLines:  cfg.Tmux.CaptureLines,
		DedupTTL:      time.Duration(cfg.Respond.DedupTTLMs) * time.Millisecond,
		ResponseDelay: time.Duration(cfg.Respond.DelayMs) * time.Millisecond,
		CheckInterval: time.Duration(cfg.Respond.CheckIntervalMs) * time.Millisecond,
		Log:           logging.With().Str("component", "monitor").Logger(),
	})

	scheduler := schedule.New(cfg.Storage.StateDir, func(session, note string) error {
		text := note
		if text == "" {
			text = "continue"
		}
		return tmuxClient.SendText(session, text, true)
	}, logging.With().Str("component", "schedule").Logger())
	if err := scheduler.Restore(); err != nil {
		log.Warn().Err(err).Msg("wake restore failed")
	}

	srv := server.New(server.Options{
		Registry:  registry,
		Store:     store,
		Scheduler: scheduler,
		Limits:    limits,
		Audits:    audits,
		Hub:       hub,
		Version:   Version,
		Log:       logging.With().Str("component", "server").Logger(),
	})

	log.Info().Str("state_dir", cfg.Storage.StateDir).Msg("responderd starting")
	err = srv.Serve(ctx, cfg.Server.Listen)
	registry.StopAll()
	log.Info().Msg("responderd stopped")
	return err
}
