package stems

import (
	"fmt"
	"strings"
)

// Stem names one isolated frequency band of the mix.
type Stem string

const (
	Drums Stem = "DRUMS"
	Bass  Stem = "BASS"
	Synth Stem = "SYNTH"
	FX    Stem = "FX"
)

// All lists the stems in graph order.
var All = [4]Stem{Drums, Bass, Synth, FX}

func (s Stem) index() int {
	switch s {
	case Drums:
		return 0
	case Bass:
		return 1
	case Synth:
		return 2
	case FX:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is one of the four stems.
func (s Stem) Valid() bool {
	return s.index() >= 0
}

// Parse accepts a stem name in any case, or its 1-based position.
func Parse(name string) (Stem, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DRUMS", "1":
		return Drums, nil
	case "BASS", "2":
		return Bass, nil
	case "SYNTH", "3":
		return Synth, nil
	case "FX", "4":
		return FX, nil
	}
	return "", fmt.Errorf("unknown stem %q", name)
}

// State holds the audible flag of each stem.
type State struct {
	Drums bool `json:"DRUMS"`
	Bass  bool `json:"BASS"`
	Synth bool `json:"SYNTH"`
	FX    bool `json:"FX"`
}

// FullMix is the default state with every stem audible.
func FullMix() State {
	return State{Drums: true, Bass: true, Synth: true, FX: true}
}

// Get returns the flag of s. Unknown stems report false.
func (st State) Get(s Stem) bool {
	switch s {
	case Drums:
		return st.Drums
	case Bass:
		return st.Bass
	case Synth:
		return st.Synth
	case FX:
		return st.FX
	}
	return false
}

// With returns a copy of st with the flag of s set to on.
func (st State) With(s Stem, on bool) State {
	switch s {
	case Drums:
		st.Drums = on
	case Bass:
		st.Bass = on
	case Synth:
		st.Synth = on
	case FX:
		st.FX = on
	}
	return st
}

// String renders the state as e.g. "D B s F" with lowercase for muted stems.
func (st State) String() string {
	parts := make([]string, 0, len(All))
	for _, s := range All {
		label := string(s[0])
		if !st.Get(s) {
			label = strings.ToLower(label)
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, " ")
}
