package analyzer

// BeatState describes the rhythmic cue and band levels of the latest frame.
// All levels are in [0,1].
type BeatState struct {
	IsBeat        bool    `json:"isBeat"`
	BeatIntensity float64 `json:"beatIntensity"`
	BassLevel     float64 `json:"bassLevel"`
	MidLevel      float64 `json:"midLevel"`
	HighLevel     float64 `json:"highLevel"`
	Energy        float64 `json:"energy"`
}

// GateBeat applies a noise floor so weak levels read as silence.
func GateBeat(s BeatState, floor float64) BeatState {
	if floor <= 0 {
		return s
	}
	gate := func(v float64) float64 {
		if v <= floor {
			return 0
		}
		return clamp((v-floor)/(1.0-floor), 0, 1)
	}

	s.BassLevel = gate(s.BassLevel)
	s.MidLevel = gate(s.MidLevel)
	s.HighLevel = gate(s.HighLevel)
	s.Energy = gate(s.Energy)
	if s.Energy == 0 && s.BassLevel == 0 {
		s.IsBeat = false
		s.BeatIntensity = 0
	}
	return s
}
