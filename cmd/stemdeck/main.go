package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/guidoenr/stemdeck/internal/config"
	"github.com/guidoenr/stemdeck/internal/logging"
)

type options struct {
	configFile string
	autoplay   bool
	noColor    bool
	palette    string

	cfg    *config.Config
	logger zerolog.Logger
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	opts := &options{}
	v := config.New()

	root := &cobra.Command{
		Use:           "stemdeck",
		Short:         "Terminal music player with per-stem mixing and beat visuals",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Config file (default ./stemdeck.yaml or ~/.config/stemdeck/stemdeck.yaml)")
	flags.Bool("debug", false, "Enable verbose logging")
	flags.String("music-root", "", "Directory or http(s) URL the track paths are resolved against")
	flags.Bool("no-audio", false, "Run with synthetic audio (for testing)")
	flags.String("keepalive", "", "Silent keep-alive voice (auto|always|off)")
	flags.String("control-addr", "", "Serve the local control surface on this address, e.g. 127.0.0.1:7878")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := config.BindFlags(v, cmd.Root().PersistentFlags()); err != nil {
			return err
		}
		cfg, err := config.Load(v, opts.configFile)
		if err != nil {
			return err
		}
		opts.cfg = cfg
		opts.logger = logging.Setup(cfg.Environment, cfg.Debug)
		if cfg.File != "" {
			opts.logger.Debug().Str("file", cfg.File).Msg("config loaded")
		}
		return nil
	}

	play := playCommand(opts)
	root.Flags().AddFlagSet(play.Flags())
	root.AddCommand(play, devicesCommand(opts), catalogCommand(opts))
	return root
}
