package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDetect(t *testing.T) {
	ok := func() (string, error) { return "Built-in Output", nil }
	none := func() (string, error) { return "", errors.New("no output device") }

	tests := []struct {
		name string
		env  environment
		want Capabilities
	}{
		{
			name: "linux desktop with session bus",
			env:  environment{goos: "linux", goarch: "amd64", getenv: envOf(map[string]string{"DBUS_SESSION_BUS_ADDRESS": "unix:path=/run/user/1000/bus"}), output: ok},
			want: Capabilities{OS: "linux", Arch: "amd64", AudioOutput: true, OutputDevice: "Built-in Output", MediaSession: true},
		},
		{
			name: "headless linux",
			env:  environment{goos: "linux", goarch: "arm64", getenv: envOf(nil), output: none},
			want: Capabilities{OS: "linux", Arch: "arm64", OutputError: "no output device"},
		},
		{
			name: "termux counts as android",
			env:  environment{goos: "linux", goarch: "arm64", getenv: envOf(map[string]string{"PREFIX": "/data/data/com.termux/files/usr", "DBUS_SESSION_BUS_ADDRESS": "x"}), output: ok},
			want: Capabilities{OS: "linux", Arch: "arm64", Mobile: true, Android: true, AudioOutput: true, OutputDevice: "Built-in Output"},
		},
		{
			name: "ios",
			env:  environment{goos: "ios", goarch: "arm64", getenv: envOf(nil), output: ok},
			want: Capabilities{OS: "ios", Arch: "arm64", Mobile: true, IOS: true, AudioOutput: true, OutputDevice: "Built-in Output"},
		},
		{
			name: "darwin has no mpris",
			env:  environment{goos: "darwin", goarch: "arm64", getenv: envOf(map[string]string{"DBUS_SESSION_BUS_ADDRESS": "x"}), output: ok},
			want: Capabilities{OS: "darwin", Arch: "arm64", AudioOutput: true, OutputDevice: "Built-in Output"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detect(tt.env)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.AudioOutput, got.SupportsAudio())
		})
	}
}

func TestSortDevices(t *testing.T) {
	devices := []Device{
		{Name: "b", HostAPI: "PulseAudio"},
		{Name: "z", HostAPI: "ALSA"},
		{Name: "a", HostAPI: "PulseAudio"},
	}
	sortDevices(devices)
	assert.Equal(t, []string{"z", "a", "b"}, []string{devices[0].Name, devices[1].Name, devices[2].Name})
}
