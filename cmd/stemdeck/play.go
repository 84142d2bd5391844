package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/guidoenr/stemdeck/internal/analyzer"
	"github.com/guidoenr/stemdeck/internal/app"
	"github.com/guidoenr/stemdeck/internal/audio"
	"github.com/guidoenr/stemdeck/internal/catalog"
	"github.com/guidoenr/stemdeck/internal/engine"
	"github.com/guidoenr/stemdeck/internal/keepalive"
	"github.com/guidoenr/stemdeck/internal/mediasession"
	"github.com/guidoenr/stemdeck/internal/platform"
	"github.com/guidoenr/stemdeck/internal/prefs"
	"github.com/guidoenr/stemdeck/internal/telemetry"
	"github.com/guidoenr/stemdeck/internal/web"
)

func playCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Open the player (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.autoplay, "autoplay", false, "Start the first track without waiting for a key press")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable ANSI color output")
	cmd.Flags().StringVar(&opts.palette, "palette", "blocks", "Spectrum palette (blocks|shade|ascii)")
	return cmd
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

func runPlay(parent context.Context, opts *options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, logger := opts.cfg, opts.logger

	cat, err := loadCatalog(cfg.Music.Catalog)
	if err != nil {
		return err
	}
	resolve := catalog.BasePath(cfg.Music.Root)

	store, err := prefs.Load(cfg.Prefs.File)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	caps := platform.Probe()
	defer platform.Terminate()

	var backend engine.Backend
	synthetic := cfg.Audio.Disabled || !caps.SupportsAudio()
	if synthetic {
		if !cfg.Audio.Disabled {
			logger.Warn().Str("reason", caps.OutputError).Msg("no audio output, using synthetic audio")
		}
		durations := make(map[string]float64, cat.Len())
		for _, t := range cat.Tracks() {
			if d := t.Length(); d > 0 {
				durations[resolve(t.Src)] = d.Seconds()
			}
		}
		backend = audio.NewSynthetic(logger, durations)
	} else {
		an := analyzer.DefaultConfig()
		an.FFTSize = cfg.Audio.FFTSize
		backend = audio.NewBackend(logger, audio.Config{
			SampleRate: cfg.Audio.SampleRate,
			Buffer:     cfg.Audio.Buffer,
			Analyser:   an,
		})
	}

	eng, err := engine.New(engine.Options{
		Catalog: cat,
		Backend: backend,
		Resolve: resolve,
		Logger:  logger,
		Prefs:   store,
		Metrics: metrics,
		Muted:   !store.AudioEnabled(),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	monitor := analyzer.NewMonitor(logger, eng.Analyser, analyzer.BeatConfig{
		Smoothing:       cfg.Beat.Smoothing,
		Sensitivity:     cfg.Beat.Sensitivity,
		MinBeatInterval: cfg.Beat.MinInterval,
	}, analyzer.WithFPS(cfg.Render.FPS), analyzer.WithNoiseFloor(cfg.Beat.NoiseFloor))
	defer monitor.Close()

	components := app.Components{
		Engine:  eng,
		Monitor: monitor,
		Metrics: metrics,
	}

	if cfg.Keepalive.Enabled(caps.Mobile) && !synthetic {
		out := audio.NewSpeakerOutput(cfg.Audio.SampleRate, cfg.Audio.Buffer)
		components.Keepalive = keepalive.New(logger, out, keepalive.WithMetrics(metrics))
	}

	if cfg.MediaSession.Enabled && caps.MediaSession {
		surface, err := mediasession.NewMPRIS(logger, cfg.MediaSession.Name)
		if err != nil {
			logger.Warn().Err(err).Msg("media session unavailable")
		} else {
			defer surface.Close()
			components.Bridge = mediasession.NewBridge(logger, surface,
				mediasession.WithResolver(resolve),
				mediasession.WithPositionSource(func() mediasession.Snapshot {
					ev := eng.Snapshot()
					return mediasession.Snapshot{
						TrackIndex:  ev.State.CurrentTrackIndex,
						Track:       ev.Track,
						IsPlaying:   ev.State.IsPlaying,
						CurrentTime: ev.State.CurrentTime,
						Duration:    ev.State.Duration,
					}
				}),
			)
		}
	}

	if cfg.Control.Addr != "" {
		components.Control = web.NewServer(logger, eng,
			web.WithBeats(monitor),
			web.WithMetrics(metrics, registry),
		)
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	a, err := app.New(logger, app.Config{
		TargetFPS:     cfg.Render.FPS,
		ShowStatusBar: cfg.Render.Status,
		Palette:       opts.palette,
		UseANSI:       interactive && !opts.noColor,
		Interactive:   interactive,
		Autoplay:      opts.autoplay,
		ControlAddr:   cfg.Control.Addr,
	}, components)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("cleanup")
		}
	}()

	logger.Info().
		Int("tracks", cat.Len()).
		Str("music_root", cfg.Music.Root).
		Bool("synthetic", synthetic).
		Bool("mobile", caps.Mobile).
		Msg("starting player")

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("runtime error: %w", err)
	}
	return nil
}
