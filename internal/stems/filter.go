package stems

import (
	"fmt"
	"math"
)

// FilterType is the response of a biquad node.
type FilterType int

const (
	LowPass FilterType = iota + 1
	HighPass
	LowShelf
	HighShelf
)

func (t FilterType) String() string {
	switch t {
	case LowPass:
		return "lowpass"
	case HighPass:
		return "highpass"
	case LowShelf:
		return "lowshelf"
	case HighShelf:
		return "highshelf"
	default:
		return "unknown"
	}
}

// shelfQ gives the RBJ shelf slope S=1, which is what Web Audio shelves use.
const shelfQ = 1 / math.Sqrt2

// FilterSpec describes one biquad node.
type FilterSpec struct {
	Type      FilterType
	Frequency float64 // Hz
	Q         float64 // ignored by shelves
	GainDB    float64 // shelves only
}

// Biquad is a stereo second-order IIR section following the RBJ audio EQ cookbook.
// Its coefficients are fixed at construction.
type Biquad struct {
	spec FilterSpec

	b0, b1, b2, a1, a2 float64

	x1, x2 [2]float64
	y1, y2 [2]float64
}

// NewBiquad computes coefficients for spec at the given sample rate.
func NewBiquad(spec FilterSpec, sampleRate float64) (*Biquad, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive")
	}
	if spec.Frequency <= 0 || spec.Frequency >= sampleRate/2 {
		return nil, fmt.Errorf("%s frequency %.1f Hz outside (0, %.1f)", spec.Type, spec.Frequency, sampleRate/2)
	}

	w0 := 2 * math.Pi * spec.Frequency / sampleRate
	cosW0 := math.Cos(w0)
	sinW0 := math.Sin(w0)

	var a0, a1, a2, b0, b1, b2 float64
	switch spec.Type {
	case LowPass, HighPass:
		if spec.Q <= 0 {
			return nil, fmt.Errorf("%s Q must be positive", spec.Type)
		}
		alpha := sinW0 / (2 * spec.Q)
		a0, a1, a2 = 1+alpha, -2*cosW0, 1-alpha
		if spec.Type == LowPass {
			b0, b1, b2 = (1-cosW0)/2, 1-cosW0, (1-cosW0)/2
		} else {
			b0, b1, b2 = (1+cosW0)/2, -(1 + cosW0), (1+cosW0)/2
		}
	case LowShelf:
		a := math.Pow(10, spec.GainDB/40)
		beta := math.Sqrt(a) / shelfQ * sinW0
		a0 = (a + 1) + (a-1)*cosW0 + beta
		a1 = -2 * ((a - 1) + (a+1)*cosW0)
		a2 = (a + 1) + (a-1)*cosW0 - beta
		b0 = a * ((a + 1) - (a-1)*cosW0 + beta)
		b1 = 2 * a * ((a - 1) - (a+1)*cosW0)
		b2 = a * ((a + 1) - (a-1)*cosW0 - beta)
	case HighShelf:
		a := math.Pow(10, spec.GainDB/40)
		beta := math.Sqrt(a) / shelfQ * sinW0
		a0 = (a + 1) - (a-1)*cosW0 + beta
		a1 = 2 * ((a - 1) - (a+1)*cosW0)
		a2 = (a + 1) - (a-1)*cosW0 - beta
		b0 = a * ((a + 1) + (a-1)*cosW0 + beta)
		b1 = -2 * a * ((a - 1) + (a+1)*cosW0)
		b2 = a * ((a + 1) + (a-1)*cosW0 - beta)
	default:
		return nil, fmt.Errorf("unsupported filter type %d", spec.Type)
	}

	return &Biquad{
		spec: spec,
		b0:   b0 / a0,
		b1:   b1 / a0,
		b2:   b2 / a0,
		a1:   a1 / a0,
		a2:   a2 / a0,
	}, nil
}

// Spec returns the parameters the node was built with.
func (f *Biquad) Spec() FilterSpec {
	return f.spec
}

// Process filters samples in place.
func (f *Biquad) Process(samples [][2]float64) {
	for i := range samples {
		for ch := range 2 {
			x := samples[i][ch]
			y := f.b0*x + f.b1*f.x1[ch] + f.b2*f.x2[ch] - f.a1*f.y1[ch] - f.a2*f.y2[ch]
			f.x2[ch] = f.x1[ch]
			f.x1[ch] = x
			f.y2[ch] = f.y1[ch]
			f.y1[ch] = y
			samples[i][ch] = y
		}
	}
}

// Response returns the magnitude response of the node at freq Hz.
func (f *Biquad) Response(freq, sampleRate float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	z1 := complexExp(-w)
	z2 := complexExp(-2 * w)
	num := complex(f.b0, 0) + complex(f.b1, 0)*z1 + complex(f.b2, 0)*z2
	den := complex(1, 0) + complex(f.a1, 0)*z1 + complex(f.a2, 0)*z2
	return cabs(num / den)
}

// Reset clears the filter history.
func (f *Biquad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = [2]float64{}, [2]float64{}, [2]float64{}, [2]float64{}
}

func complexExp(theta float64) complex128 {
	return complex(math.Cos(theta), math.Sin(theta))
}

func cabs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
