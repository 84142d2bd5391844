package render

import (
	"math"

	"github.com/guidoenr/stemdeck/internal/analyzer"
)

// Visuals are the slowly moving display parameters driven by beat frames.
type Visuals struct {
	Brightness float64
	Saturation float64
	Hue        float64 // [0,1)
	Pulse      float64 // beat flash, decays between beats
}

// DefaultVisuals returns the resting look.
func DefaultVisuals() Visuals {
	return Visuals{Brightness: 0.6, Saturation: 0.8}
}

// Apply moves the visuals toward the frame b over delta seconds. A zero
// frame means silence and relaxes everything back to rest.
func (v *Visuals) Apply(b analyzer.BeatState, delta float64) {
	if delta <= 0 {
		delta = 1.0 / 60
	}
	if b == (analyzer.BeatState{}) {
		v.relax(delta)
		return
	}

	v.Brightness = clamp01(lerp(v.Brightness, 0.45+b.Energy*0.5+b.BassLevel*0.3, 0.4))

	target := clamp01(0.6 + b.BassLevel*0.3 + b.BeatIntensity*0.3)
	if target > v.Saturation {
		v.Saturation = lerp(v.Saturation, target, 0.7)
	} else {
		v.Saturation = lerp(v.Saturation, target, 0.3)
	}

	v.Hue = math.Mod(v.Hue+delta*(0.02+b.BassLevel*0.12+b.HighLevel*0.06), 1)

	if b.IsBeat {
		v.Pulse = math.Max(v.Pulse, 0.5+b.BeatIntensity*0.5)
	} else {
		v.Pulse *= math.Pow(0.9, delta*60)
	}
}

func (v *Visuals) relax(delta float64) {
	decay := math.Pow(0.92, delta*60)
	v.Brightness = v.Brightness*decay + 0.6*(1-decay)
	v.Saturation = lerp(v.Saturation, 0.8, 0.1)
	v.Pulse *= decay
	if v.Pulse < 1e-3 {
		v.Pulse = 0
	}
}
