package render

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/stemdeck/internal/analyzer"
	"github.com/guidoenr/stemdeck/internal/stems"
)

func TestNewRejectsBadDimensions(t *testing.T) {
	_, err := New(0, 10, "", false)
	assert.Error(t, err)
	_, err = New(10, -1, "", false)
	assert.Error(t, err)

	r, err := New(10, 4, "", false)
	require.NoError(t, err)
	assert.Equal(t, "blocks", r.PaletteName())
}

func TestPalettes(t *testing.T) {
	for _, name := range PaletteNames() {
		p := Palette(name)
		require.NotEmpty(t, p, name)
		assert.Equal(t, ' ', p[0], "%s starts empty", name)
	}
	assert.Equal(t, Palette("blocks"), Palette("unknown"))
}

func TestRenderSilenceIsBlank(t *testing.T) {
	r, err := New(16, 4, "ascii", false)
	require.NoError(t, err)

	f := r.Render(View{Title: "Ember", Bins: make([]uint8, 128)}, 1.0/30)
	require.Len(t, f.Lines, 4)
	for _, line := range f.Lines {
		assert.Equal(t, strings.Repeat(" ", 16), line)
	}
}

func TestRenderFullSpectrumFillsColumns(t *testing.T) {
	r, err := New(8, 3, "ascii", false)
	require.NoError(t, err)

	bins := make([]uint8, 128)
	for i := range bins {
		bins[i] = 255
	}
	var f Frame
	for range 30 {
		f = r.Render(View{Bins: bins}, 1.0/30)
	}
	for _, line := range f.Lines {
		assert.Equal(t, strings.Repeat("@", 8), line)
	}
}

func TestRenderLowBandOnly(t *testing.T) {
	r, err := New(4, 2, "ascii", false)
	require.NoError(t, err)

	bins := make([]uint8, 128)
	for i := range 32 {
		bins[i] = 255
	}
	var f Frame
	for range 30 {
		f = r.Render(View{Bins: bins}, 1.0/30)
	}
	assert.Equal(t, "@   ", f.Lines[0])
	assert.Equal(t, "@   ", f.Lines[1])
}

func TestRenderReleaseIsGradual(t *testing.T) {
	r, err := New(1, 1, "ascii", false)
	require.NoError(t, err)

	r.Render(View{Bins: []uint8{255}}, 1.0/30)
	first := r.levels[0]
	assert.InDelta(t, attack, first, 1e-9)

	r.Render(View{Bins: []uint8{0}}, 1.0/30)
	assert.InDelta(t, first*(1-release), r.levels[0], 1e-9)
}

func TestRenderANSI(t *testing.T) {
	r, err := New(4, 1, "blocks", true)
	require.NoError(t, err)

	bins := []uint8{255, 255, 255, 255}
	var f Frame
	for range 10 {
		f = r.Render(View{Bins: bins}, 1.0/30)
	}
	assert.Contains(t, f.Lines[0], "\x1b[38;5;")
	assert.True(t, strings.HasSuffix(f.Lines[0], resetANSI))
}

func TestStatus(t *testing.T) {
	r, err := New(4, 1, "", false)
	require.NoError(t, err)

	f := r.Render(View{
		Index:       2,
		Total:       25,
		Title:       "Glass Horizon",
		Playing:     true,
		CurrentTime: 83.4,
		Duration:    222,
		Volume:      0.8,
		Stems:       stems.FullMix().With(stems.Bass, false),
		Beat:        analyzer.BeatState{BeatIntensity: 0.5, Energy: 0.42},
	}, 1.0/30)

	assert.True(t, strings.HasPrefix(f.Status, "▶ 03/25 Glass Horizon  1:23 / 3:42"))
	assert.Contains(t, f.Status, "1:DRUMS 2:---- 3:SYNTH 4:FX")
	assert.Contains(t, f.Status, "beat ███░░░ energy 0.42")
	assert.Contains(t, f.Status, "vol 80%")
	assert.Contains(t, f.Status, "q quit")

	f = r.Render(View{Title: "Ember", Muted: true, Prompt: "press any key to enable audio"}, 1.0/30)
	assert.True(t, strings.HasPrefix(f.Status, "❚❚ Ember  0:00 / --:--"))
	assert.Contains(t, f.Status, "vol muted")
	assert.True(t, strings.HasSuffix(f.Status, "press any key to enable audio"))

	f = r.Render(View{Loading: true}, 1.0/30)
	assert.True(t, strings.HasPrefix(f.Status, "… "))
}

func TestFormatClock(t *testing.T) {
	tests := map[float64]string{
		0:     "0:00",
		59.9:  "0:59",
		61:    "1:01",
		3600:  "60:00",
		-1:    "--:--",
		-0.01: "--:--",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatClock(in), "%v", in)
	}
}

func TestStatusBar(t *testing.T) {
	assert.Equal(t, "ab  ", StatusBar("ab", 4))
	assert.Equal(t, "▶ a", StatusBar("▶ abc", 3))
	assert.Equal(t, 3, utf8.RuneCountInString(StatusBar("▶ abc", 3)))
	assert.Equal(t, "abc", StatusBar("abc", 0))
}

func TestVisuals(t *testing.T) {
	v := DefaultVisuals()
	v.Apply(analyzer.BeatState{IsBeat: true, BeatIntensity: 1, BassLevel: 1, Energy: 1}, 1.0/60)
	assert.InDelta(t, 1.0, v.Pulse, 1e-9)
	assert.Greater(t, v.Brightness, 0.6)
	assert.Greater(t, v.Hue, 0.0)

	pulse := v.Pulse
	v.Apply(analyzer.BeatState{BassLevel: 0.2, Energy: 0.2}, 1.0/60)
	assert.Less(t, v.Pulse, pulse)

	for range 600 {
		v.Apply(analyzer.BeatState{}, 1.0/60)
	}
	assert.InDelta(t, 0.6, v.Brightness, 1e-3)
	assert.InDelta(t, 0.8, v.Saturation, 1e-3)
	assert.Zero(t, v.Pulse)
}

func TestColorHelpers(t *testing.T) {
	assert.Equal(t, 16+36*5, hsvToANSI(0, 1, 1), "pure red")
	assert.Equal(t, 232, rgbToANSI(0, 0, 0))
	assert.Equal(t, 255, rgbToANSI(1, 1, 1))
	assert.Equal(t, precomputedANSI[0], colorCode(-5))
	assert.Equal(t, precomputedANSI[255], colorCode(999))
}
