// Package audio provides the playback backends: a beep speaker graph for real
// output and a synthetic one for running without a sound card.
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

var (
	speakerMu   sync.Mutex
	speakerRate beep.SampleRate
)

// initSpeaker opens the process-wide speaker on first use. Later calls return
// the rate already in use. A failed init may be retried.
func initSpeaker(sr beep.SampleRate, buffer time.Duration) (beep.SampleRate, error) {
	speakerMu.Lock()
	defer speakerMu.Unlock()
	if speakerRate != 0 {
		return speakerRate, nil
	}
	if buffer <= 0 {
		buffer = 100 * time.Millisecond
	}
	if err := speaker.Init(sr, sr.N(buffer)); err != nil {
		return 0, fmt.Errorf("init speaker: %w", err)
	}
	speakerRate = sr
	return sr, nil
}

// SpeakerOutput plays extra voices on the shared speaker.
type SpeakerOutput struct {
	rate   beep.SampleRate
	buffer time.Duration
}

// NewSpeakerOutput returns an output that initializes the speaker on first Play.
func NewSpeakerOutput(sampleRate int, buffer time.Duration) *SpeakerOutput {
	return &SpeakerOutput{rate: beep.SampleRate(sampleRate), buffer: buffer}
}

// SampleRate is the rate voices must be streamed at.
func (o *SpeakerOutput) SampleRate() beep.SampleRate {
	speakerMu.Lock()
	defer speakerMu.Unlock()
	if speakerRate != 0 {
		return speakerRate
	}
	return o.rate
}

// Play adds s to the speaker mix.
func (o *SpeakerOutput) Play(s beep.Streamer) error {
	if _, err := initSpeaker(o.rate, o.buffer); err != nil {
		return err
	}
	speaker.Play(s)
	return nil
}

// Do runs fn with the speaker locked.
func (o *SpeakerOutput) Do(fn func()) {
	speaker.Lock()
	defer speaker.Unlock()
	fn()
}
