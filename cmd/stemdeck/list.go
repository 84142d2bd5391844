package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guidoenr/stemdeck/internal/catalog"
	"github.com/guidoenr/stemdeck/internal/platform"
	"github.com/guidoenr/stemdeck/internal/render"
)

func devicesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio output devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer platform.Terminate()
			devices, err := platform.ListDevices()
			if err != nil {
				return fmt.Errorf("list devices: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n=== Audio Output Devices ===\n\n")
			for _, dev := range devices {
				markers := ""
				if dev.IsDefaultOutput {
					markers = " (default)"
				}
				fmt.Fprintf(out, "- %s [%s]%s\n    outputs:%d sample:%.0f Hz\n",
					dev.Name, dev.HostAPI, markers, dev.MaxOutput, dev.DefaultSampleHz)
			}
			caps := platform.Probe()
			fmt.Fprintf(out, "\nPlatform: %s/%s mobile:%t media-session:%t\n", caps.OS, caps.Arch, caps.Mobile, caps.MediaSession)
			return nil
		},
	}
}

func catalogCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the track list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(opts.cfg.Music.Catalog)
			if err != nil {
				return err
			}
			resolve := catalog.BasePath(opts.cfg.Music.Root)
			out := cmd.OutOrStdout()
			for i, t := range cat.Tracks() {
				length := "--:--"
				if d := t.Length(); d > 0 {
					length = render.FormatClock(d.Seconds())
				}
				fmt.Fprintf(out, "%2d  %-28s %6s  %s\n", i+1, t.Title, length, resolve(t.Src))
			}
			return nil
		},
	}
}
