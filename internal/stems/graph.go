// Package stems splits one audio signal into four independently gained
// frequency bands and sums them back into a single output.
package stems

import (
	"fmt"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
)

// Topology maps each stem to its filter chain, in series.
type Topology map[Stem][]FilterSpec

// DefaultTopology is the fixed spectral split. Filters never change after
// construction so re-enabling a stem reproduces the same content.
var DefaultTopology = Topology{
	Drums: {
		{Type: LowShelf, Frequency: 150, GainDB: 6},
		{Type: HighShelf, Frequency: 8000, GainDB: 3},
	},
	Bass: {
		{Type: LowPass, Frequency: 200, Q: 1},
	},
	Synth: {
		{Type: HighPass, Frequency: 200, Q: 1},
		{Type: LowPass, Frequency: 4000, Q: 1},
	},
	FX: {
		{Type: HighPass, Frequency: 4000, Q: 0.5},
	},
}

// NodeCounts summarizes the nodes of a built graph.
type NodeCounts struct {
	StemGains   int
	OutputGains int
	Filters     int
}

type band struct {
	stem    Stem
	filters []*Biquad
	gain    *Gain
	buf     [][2]float64
}

// Graph is a beep.Streamer that runs its input through the four stem chains
// and sums them into the output gain.
type Graph struct {
	input  beep.Streamer
	bands  [4]*band
	output *Gain
	dry    [][2]float64
	logger zerolog.Logger
}

// Build wires a graph on top of input. A nil topology selects DefaultTopology.
func Build(logger zerolog.Logger, sampleRate float64, input beep.Streamer, topo Topology) (*Graph, error) {
	if input == nil {
		return nil, fmt.Errorf("stem graph input is nil")
	}
	if topo == nil {
		topo = DefaultTopology
	}

	g := &Graph{
		input:  input,
		output: NewGain(1, RampTime/3, sampleRate),
		logger: logger,
	}
	for _, s := range All {
		specs, ok := topo[s]
		if !ok || len(specs) == 0 {
			return nil, fmt.Errorf("topology has no filters for %s", s)
		}
		b := &band{stem: s, gain: NewGain(1, RampTime/3, sampleRate)}
		for _, spec := range specs {
			f, err := NewBiquad(spec, sampleRate)
			if err != nil {
				return nil, fmt.Errorf("build %s filter: %w", s, err)
			}
			b.filters = append(b.filters, f)
		}
		g.bands[s.index()] = b
	}

	counts := g.NodeCounts()
	logger.Debug().
		Int("stem_gains", counts.StemGains).
		Int("filters", counts.Filters).
		Float64("sample_rate", sampleRate).
		Msg("stem graph built")
	return g, nil
}

// NodeCounts reports how many gain and filter nodes the graph holds.
func (g *Graph) NodeCounts() NodeCounts {
	c := NodeCounts{OutputGains: 1}
	for _, b := range g.bands {
		c.StemGains++
		c.Filters += len(b.filters)
	}
	return c
}

// Filters returns the filter chain of s.
func (g *Graph) Filters(s Stem) []*Biquad {
	if !s.Valid() {
		return nil
	}
	out := make([]*Biquad, len(g.bands[s.index()].filters))
	copy(out, g.bands[s.index()].filters)
	return out
}

// StemGain returns the gain node of s.
func (g *Graph) StemGain(s Stem) *Gain {
	if !s.Valid() {
		return nil
	}
	return g.bands[s.index()].gain
}

// Output returns the summing gain node.
func (g *Graph) Output() *Gain {
	return g.output
}

// SetStemGain ramps the gain of s toward v in [0,1]. Filters are untouched.
func (g *Graph) SetStemGain(s Stem, v float64) {
	if !s.Valid() {
		return
	}
	g.bands[s.index()].gain.SetTarget(v)
}

// Apply sets every stem gain from st.
func (g *Graph) Apply(st State) {
	for _, s := range All {
		v := 0.0
		if st.Get(s) {
			v = 1
		}
		g.SetStemGain(s, v)
	}
}

// Stream implements beep.Streamer.
func (g *Graph) Stream(samples [][2]float64) (int, bool) {
	if cap(g.dry) < len(samples) {
		g.dry = make([][2]float64, len(samples))
		for _, b := range g.bands {
			b.buf = make([][2]float64, len(samples))
		}
	}
	dry := g.dry[:len(samples)]
	n, ok := g.input.Stream(dry)
	dry = dry[:n]

	for i := range n {
		samples[i] = [2]float64{}
	}
	for _, b := range g.bands {
		wet := b.buf[:n]
		copy(wet, dry)
		for _, f := range b.filters {
			f.Process(wet)
		}
		b.gain.Process(wet)
		for i := range wet {
			samples[i][0] += wet[i][0]
			samples[i][1] += wet[i][1]
		}
	}
	g.output.Process(samples[:n])
	return n, ok
}

// Err implements beep.Streamer.
func (g *Graph) Err() error {
	return g.input.Err()
}
