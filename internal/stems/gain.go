package stems

import (
	"math"
	"sync/atomic"
	"time"
)

// RampTime is how long a gain change takes to settle. It is short enough to
// feel instant and long enough that a mute does not click.
const RampTime = 50 * time.Millisecond

// Gain is a gain node whose value approaches its target exponentially, like
// Web Audio's setTargetAtTime. The target may be changed from any goroutine;
// Process runs on the audio goroutine.
type Gain struct {
	target atomic.Uint64 // math.Float64bits
	value  float64
	coeff  float64
}

// NewGain returns a gain node at value v. timeConstant is the time to cover
// ~63% of a step.
func NewGain(v float64, timeConstant time.Duration, sampleRate float64) *Gain {
	v = clamp01(v)
	g := &Gain{value: v}
	g.target.Store(math.Float64bits(v))
	if timeConstant > 0 && sampleRate > 0 {
		g.coeff = 1 - math.Exp(-1/(timeConstant.Seconds()*sampleRate))
	} else {
		g.coeff = 1
	}
	return g
}

// SetTarget schedules a ramp toward v, clamped to [0,1].
func (g *Gain) SetTarget(v float64) {
	g.target.Store(math.Float64bits(clamp01(v)))
}

// Target returns the value the node is ramping to.
func (g *Gain) Target() float64 {
	return math.Float64frombits(g.target.Load())
}

// Value returns the current value. Only meaningful on the audio goroutine or
// after processing has stopped.
func (g *Gain) Value() float64 {
	return g.value
}

// Process scales samples in place while advancing the ramp.
func (g *Gain) Process(samples [][2]float64) {
	target := g.Target()
	v := g.value
	if v == target {
		if v == 1 {
			return
		}
		for i := range samples {
			samples[i][0] *= v
			samples[i][1] *= v
		}
		return
	}
	for i := range samples {
		v += (target - v) * g.coeff
		if math.Abs(target-v) < 1e-5 {
			v = target
		}
		samples[i][0] *= v
		samples[i][1] *= v
	}
	g.value = v
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
