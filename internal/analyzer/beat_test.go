package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const frame = time.Second / 60

func bassFrame(level uint8) []uint8 {
	bins := make([]uint8, 128)
	for i := range bassEnd {
		bins[i] = level
	}
	return bins
}

// runFrames feeds two seconds of frames and returns the beat times.
func runFrames(d *Detector, levelAt func(i int) uint8) ([]time.Time, []BeatState) {
	start := time.Unix(1000, 0)
	var beats []time.Time
	var states []BeatState
	for i := range 120 {
		now := start.Add(time.Duration(i) * frame)
		st := d.Process(bassFrame(levelAt(i)), now)
		states = append(states, st)
		if st.IsBeat {
			beats = append(beats, now)
		}
	}
	return beats, states
}

func TestDetector_Debounce(t *testing.T) {
	d := NewDetector(DefaultBeatConfig())
	beats, states := runFrames(d, func(i int) uint8 {
		if i%2 == 0 {
			return 255
		}
		return 10
	})

	assert.NotEmpty(t, beats, "alternating bass spikes must produce beats")
	assert.LessOrEqual(t, len(beats), 17)
	for i := 1; i < len(beats); i++ {
		assert.GreaterOrEqual(t, beats[i].Sub(beats[i-1]), 120*time.Millisecond)
	}
	for _, st := range states {
		assert.GreaterOrEqual(t, st.BeatIntensity, 0.0)
		assert.LessOrEqual(t, st.BeatIntensity, 1.0)
	}
}

func TestDetector_ConstantSignal(t *testing.T) {
	d := NewDetector(DefaultBeatConfig())
	beats, _ := runFrames(d, func(int) uint8 { return 200 })
	assert.LessOrEqual(t, len(beats), 17)
}

func TestDetector_SilenceNeverBeats(t *testing.T) {
	d := NewDetector(DefaultBeatConfig())
	beats, states := runFrames(d, func(int) uint8 { return 0 })
	assert.Empty(t, beats)
	assert.Equal(t, BeatState{}, states[len(states)-1])
}

func TestDetector_BandLevels(t *testing.T) {
	bins := make([]uint8, 128)
	for i := range bins {
		switch {
		case i < bassEnd:
			bins[i] = 255
		case i < midEnd:
			bins[i] = 51
		default:
			bins[i] = 0
		}
	}
	st := NewDetector(BeatConfig{}).Process(bins, time.Now())
	assert.InDelta(t, 1.0, st.BassLevel, 1e-9)
	assert.InDelta(t, 0.2, st.MidLevel, 1e-9)
	assert.InDelta(t, 0.0, st.HighLevel, 1e-9)
	assert.InDelta(t, 0.5+0.3*0.2, st.Energy, 1e-9)
}

func TestDetector_IntensityDecays(t *testing.T) {
	d := NewDetector(DefaultBeatConfig())
	now := time.Unix(0, 0)
	d.Process(bassFrame(20), now)
	hit := d.Process(bassFrame(255), now.Add(frame))
	assert.True(t, hit.IsBeat)
	assert.Equal(t, 1.0, hit.BeatIntensity)

	next := d.Process(bassFrame(20), now.Add(2*frame))
	assert.False(t, next.IsBeat)
	assert.InDelta(t, hit.BeatIntensity*intensityDecay, next.BeatIntensity, 1e-9)
}

func TestDetector_Reset(t *testing.T) {
	d := NewDetector(DefaultBeatConfig())
	now := time.Unix(0, 0)
	d.Process(bassFrame(20), now)
	assert.True(t, d.Process(bassFrame(255), now.Add(frame)).IsBeat)

	d.Reset()
	d.Process(bassFrame(20), now.Add(2*frame))
	assert.True(t, d.Process(bassFrame(255), now.Add(3*frame)).IsBeat, "reset clears the debounce")
}

func TestBeatConfig_Defaults(t *testing.T) {
	cfg := NewDetector(BeatConfig{Smoothing: 3, Sensitivity: -1, MinBeatInterval: -time.Second}).Config()
	assert.Equal(t, DefaultBeatConfig(), cfg)
}
