package platform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	initOnce sync.Once
	termOnce sync.Once
	initErr  error
)

// Initialize wraps portaudio.Initialize with sync.Once so multiple callers are safe.
func Initialize() error {
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	return initErr
}

// Terminate wraps portaudio.Terminate with sync.Once to balance Initialize.
func Terminate() {
	if initErr != nil {
		return
	}
	termOnce.Do(func() {
		_ = portaudio.Terminate()
	})
}

// Device describes an output-capable PortAudio device.
type Device struct {
	Name            string
	MaxOutput       int
	DefaultSampleHz float64
	HostAPI         string
	IsDefaultOutput bool
}

// ListDevices returns every device with output channels, sorted by host and name.
func ListDevices() ([]Device, error) {
	if err := Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}
	hosts, err := portaudio.HostApis()
	if err != nil {
		return nil, fmt.Errorf("host apis: %w", err)
	}

	devices := make([]Device, 0, len(hosts)*4)
	for _, host := range hosts {
		for _, d := range host.Devices {
			if d.MaxOutputChannels == 0 {
				continue
			}
			devices = append(devices, Device{
				Name:            d.Name,
				MaxOutput:       d.MaxOutputChannels,
				DefaultSampleHz: d.DefaultSampleRate,
				HostAPI:         host.Name,
				IsDefaultOutput: host.DefaultOutputDevice != nil && d.Index == host.DefaultOutputDevice.Index,
			})
		}
	}
	sortDevices(devices)
	return devices, nil
}

func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].HostAPI == devices[j].HostAPI {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].HostAPI < devices[j].HostAPI
	})
}

// defaultOutput names the default output device, or fails when there is none.
func defaultOutput() (string, error) {
	if err := Initialize(); err != nil {
		return "", fmt.Errorf("init portaudio: %w", err)
	}
	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return "", fmt.Errorf("default output device: %w", err)
	}
	if dev == nil || dev.MaxOutputChannels == 0 {
		return "", fmt.Errorf("no output device")
	}
	return dev.Name, nil
}
