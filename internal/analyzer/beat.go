package analyzer

import "time"

// Band boundaries in bins of a 128 bin spectrum.
const (
	bassEnd = 10
	midEnd  = 50
)

// intensityDecay is applied to the beat intensity on every frame without a beat.
const intensityDecay = 0.88

// BeatConfig tunes the detector.
type BeatConfig struct {
	Smoothing       float64       // weight of the running bass average, [0,1)
	Sensitivity     float64       // bass must exceed average*Sensitivity
	MinBeatInterval time.Duration // debounce between beats
}

// DefaultBeatConfig matches the showcase visuals.
func DefaultBeatConfig() BeatConfig {
	return BeatConfig{
		Smoothing:       0.85,
		Sensitivity:     1.2,
		MinBeatInterval: 120 * time.Millisecond,
	}
}

func (c BeatConfig) withDefaults() BeatConfig {
	def := DefaultBeatConfig()
	if c.Smoothing <= 0 || c.Smoothing >= 1 {
		c.Smoothing = def.Smoothing
	}
	if c.Sensitivity <= 0 {
		c.Sensitivity = def.Sensitivity
	}
	if c.MinBeatInterval < 0 {
		c.MinBeatInterval = def.MinBeatInterval
	}
	return c
}

// Detector turns byte spectra into BeatStates. It is not safe for concurrent
// use; Monitor serializes access.
type Detector struct {
	cfg       BeatConfig
	avgBass   float64
	primed    bool
	lastBeat  time.Time
	intensity float64
}

// NewDetector returns a detector. Zero fields of cfg take their defaults.
func NewDetector(cfg BeatConfig) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (d *Detector) Config() BeatConfig {
	return d.cfg
}

// Process analyzes one frame captured at now.
func (d *Detector) Process(bins []uint8, now time.Time) BeatState {
	bass := bandLevel(bins, 0, bassEnd)
	mid := bandLevel(bins, bassEnd, midEnd)
	high := bandLevel(bins, midEnd, len(bins))

	if !d.primed {
		d.avgBass = bass
		d.primed = true
	}
	threshold := d.avgBass * d.cfg.Sensitivity
	d.avgBass = d.cfg.Smoothing*d.avgBass + (1-d.cfg.Smoothing)*bass

	isBeat := false
	if bass > threshold && threshold > 0 && now.Sub(d.lastBeat) >= d.cfg.MinBeatInterval {
		isBeat = true
		d.lastBeat = now
		d.intensity = clamp((bass-threshold)/threshold, 0, 1)
	} else {
		d.intensity *= intensityDecay
		if d.intensity < 1e-3 {
			d.intensity = 0
		}
	}

	return BeatState{
		IsBeat:        isBeat,
		BeatIntensity: d.intensity,
		BassLevel:     bass,
		MidLevel:      mid,
		HighLevel:     high,
		Energy:        clamp(0.5*bass+0.3*mid+0.2*high, 0, 1),
	}
}

// Reset forgets the running average and the last beat.
func (d *Detector) Reset() {
	d.avgBass = 0
	d.primed = false
	d.lastBeat = time.Time{}
	d.intensity = 0
}

func bandLevel(bins []uint8, from, to int) float64 {
	to = min(to, len(bins))
	if from >= to {
		return 0
	}
	vals := make([]float64, 0, to-from)
	for _, b := range bins[from:to] {
		vals = append(vals, float64(b)/255)
	}
	return average(vals)
}
