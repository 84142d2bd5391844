package keepalive

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const clipSeconds = 1.0

// writeSilentClip writes a mono 16-bit clip whose samples toggle by one step,
// about -90 dBFS before the voice gain is applied.
func writeSilentClip(path string, sampleRate int, seconds float64) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create keepalive clip: %w", err)
	}
	defer f.Close()

	data := make([]int, int(float64(sampleRate)*seconds))
	for i := range data {
		if i%2 == 0 {
			data[i] = 1
		} else {
			data[i] = -1
		}
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}); err != nil {
		return fmt.Errorf("write keepalive clip: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize keepalive clip: %w", err)
	}
	return nil
}
