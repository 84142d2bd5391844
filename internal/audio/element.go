package audio

import (
	"github.com/gopxl/beep/v2"

	"github.com/guidoenr/stemdeck/internal/engine"
)

// element is the swappable playback source at the head of the graph. It never
// drains: with nothing loaded, or after the source ends, it streams silence
// so the graph stays on the speaker across tracks.
type element struct {
	rate   beep.SampleRate
	src    beep.StreamSeekCloser
	out    beep.Streamer
	format beep.Format
	done   bool
	ended  func()
}

func (e *element) Stream(samples [][2]float64) (int, bool) {
	if e.out == nil || e.done {
		silence(samples)
		return len(samples), true
	}
	n, ok := e.out.Stream(samples)
	silence(samples[n:])
	if !ok {
		e.done = true
		if e.ended != nil {
			// the speaker lock is held while streaming
			go e.ended()
		}
	}
	return len(samples), true
}

func (e *element) Err() error {
	if e.src == nil {
		return nil
	}
	return e.src.Err()
}

// swap replaces the source and closes the previous one. Callers hold the
// speaker lock.
func (e *element) swap(src beep.StreamSeekCloser, format beep.Format) {
	if e.src != nil {
		_ = e.src.Close()
	}
	e.src, e.format = src, format
	e.rewire()
}

// seek moves to sample n of the source. Callers hold the speaker lock.
func (e *element) seek(n int) error {
	if e.src == nil {
		return engine.ErrNoSource
	}
	n = max(0, min(n, e.src.Len()-1))
	if err := e.src.Seek(n); err != nil {
		return err
	}
	e.rewire()
	return nil
}

// rewire rebuilds the resampler so no stale state survives a seek.
func (e *element) rewire() {
	e.done = false
	e.out = nil
	if e.src == nil {
		return
	}
	e.out = e.src
	if e.format.SampleRate != e.rate {
		e.out = beep.Resample(4, e.format.SampleRate, e.rate, e.src)
	}
}

func (e *element) position() float64 {
	if e.src == nil {
		return 0
	}
	return e.format.SampleRate.D(e.src.Position()).Seconds()
}

func (e *element) duration() float64 {
	if e.src == nil {
		return 0
	}
	return e.format.SampleRate.D(e.src.Len()).Seconds()
}

func silence(samples [][2]float64) {
	for i := range samples {
		samples[i] = [2]float64{}
	}
}
