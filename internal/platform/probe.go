// Package platform detects what the host can do for audio playback, once per
// process.
package platform

import (
	"os"
	"runtime"
	"strings"
	"sync"
)

// Capabilities describes the host. It never changes after the first probe.
type Capabilities struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Mobile  bool   `json:"mobile"`
	IOS     bool   `json:"ios"`
	Android bool   `json:"android"`

	// AudioOutput is false when no output device could be opened.
	AudioOutput  bool   `json:"audioOutput"`
	OutputDevice string `json:"outputDevice,omitempty"`
	OutputError  string `json:"outputError,omitempty"`

	// MediaSession reports a session bus for MPRIS.
	MediaSession bool `json:"mediaSession"`
}

// SupportsAudio mirrors the feature check for an audio context.
func (c Capabilities) SupportsAudio() bool {
	return c.AudioOutput
}

type environment struct {
	goos   string
	goarch string
	getenv func(string) string
	output func() (string, error)
}

var (
	probeOnce sync.Once
	probed    Capabilities
)

// Probe inspects the running host. The result is memoized.
func Probe() Capabilities {
	probeOnce.Do(func() {
		probed = detect(environment{
			goos:   runtime.GOOS,
			goarch: runtime.GOARCH,
			getenv: os.Getenv,
			output: defaultOutput,
		})
	})
	return probed
}

func detect(env environment) Capabilities {
	c := Capabilities{OS: env.goos, Arch: env.goarch}

	switch env.goos {
	case "ios":
		c.IOS = true
	case "android":
		c.Android = true
	case "linux":
		// Termux reports linux but runs on a phone.
		if strings.Contains(env.getenv("PREFIX"), "com.termux") || env.getenv("ANDROID_ROOT") != "" {
			c.Android = true
		}
	}
	c.Mobile = c.IOS || c.Android

	if env.output != nil {
		name, err := env.output()
		if err != nil {
			c.OutputError = err.Error()
		} else {
			c.AudioOutput = true
			c.OutputDevice = name
		}
	}

	switch env.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		c.MediaSession = !c.Android && env.getenv("DBUS_SESSION_BUS_ADDRESS") != ""
	}
	return c
}
