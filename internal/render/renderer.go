// Package render draws the terminal player: a spectrum panel colored by the
// beat and a status line with the transport, stems and any prompt.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/guidoenr/stemdeck/internal/analyzer"
	"github.com/guidoenr/stemdeck/internal/stems"
)

// View is everything one frame shows.
type View struct {
	Index       int
	Total       int
	Title       string
	Playing     bool
	Loading     bool
	CurrentTime float64
	Duration    float64
	Volume      float64
	Muted       bool
	Stems       stems.State
	Beat        analyzer.BeatState
	Bins        []uint8
	// Prompt replaces the key help, e.g. a blocked playback hint.
	Prompt string
}

// Frame contains the rendered spectrum lines and the status text.
type Frame struct {
	Lines  []string
	Status string
}

const (
	attack  = 0.6
	release = 0.18
)

// Renderer turns Views into frames. It is not safe for concurrent use.
type Renderer struct {
	width         int
	height        int
	palette       []rune
	paletteName   string
	useANSI       bool
	levels        []float64
	visuals       Visuals
	statusBuilder strings.Builder
}

// New creates a Renderer for a width x height spectrum panel.
func New(width, height int, paletteName string, useANSI bool) (*Renderer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d height=%d", width, height)
	}
	if paletteName == "" {
		paletteName = "blocks"
	}
	return &Renderer{
		width:       width,
		height:      height,
		palette:     Palette(paletteName),
		paletteName: paletteName,
		useANSI:     useANSI,
		visuals:     DefaultVisuals(),
	}, nil
}

// Resize updates the panel dimensions.
func (r *Renderer) Resize(width, height int) {
	if width > 0 && width != r.width {
		r.width = width
		r.levels = nil
	}
	if height > 0 {
		r.height = height
	}
}

func (r *Renderer) PaletteName() string { return r.paletteName }
func (r *Renderer) Visuals() Visuals    { return r.visuals }

// Render draws v. delta is the time since the previous frame in seconds.
func (r *Renderer) Render(v View, delta float64) Frame {
	r.visuals.Apply(v.Beat, delta)
	r.updateLevels(v.Bins)

	lines := make([]string, r.height)
	steps := len(r.palette) - 1
	var b strings.Builder
	for y := range lines {
		b.Reset()
		b.Grow(r.width * 8)
		lastColor := -1
		floor := float64(r.height - 1 - y)
		for x := 0; x < r.width; x++ {
			fill := r.levels[x]*float64(r.height) - floor
			glyph := r.palette[0]
			switch {
			case fill >= 1:
				glyph = r.palette[steps]
			case fill > 0:
				glyph = r.palette[clampInt(int(fill*float64(steps)+0.5), 0, steps)]
			}
			if r.useANSI && glyph != r.palette[0] {
				if fg := r.cellColor(x, y); fg != lastColor {
					b.WriteString(colorCode(fg))
					lastColor = fg
				}
			}
			b.WriteRune(glyph)
		}
		if r.useANSI && lastColor >= 0 {
			b.WriteString(resetANSI)
		}
		lines[y] = b.String()
	}

	return Frame{Lines: lines, Status: r.buildStatus(v)}
}

// updateLevels folds the spectrum into one level per column with a fast
// attack and a slow release.
func (r *Renderer) updateLevels(bins []uint8) {
	if len(r.levels) != r.width {
		r.levels = make([]float64, r.width)
	}
	for x := range r.levels {
		target := 0.0
		if len(bins) > 0 {
			from := x * len(bins) / r.width
			to := max((x+1)*len(bins)/r.width, from+1)
			sum := 0
			for _, v := range bins[from:min(to, len(bins))] {
				sum += int(v)
			}
			target = float64(sum) / float64(to-from) / 255
		}
		rate := release
		if target > r.levels[x] {
			rate = attack
		}
		r.levels[x] = clamp01(lerp(r.levels[x], target, rate))
		if r.levels[x] < 1e-3 {
			r.levels[x] = 0
		}
	}
}

func (r *Renderer) cellColor(x, y int) int {
	vis := r.visuals
	h := vis.Hue + float64(x)/float64(max(r.width, 1))*0.35
	height := 1 - float64(y)/float64(max(r.height, 1))
	val := clamp01(0.3 + vis.Brightness*0.5 + height*0.2 + vis.Pulse*0.3)
	return hsvToANSI(h, vis.Saturation, val)
}

func (r *Renderer) buildStatus(v View) string {
	b := &r.statusBuilder
	b.Reset()
	b.Grow(160)

	switch {
	case v.Loading:
		b.WriteString("… ")
	case v.Playing:
		b.WriteString("▶ ")
	default:
		b.WriteString("❚❚ ")
	}
	if v.Total > 0 {
		fmt.Fprintf(b, "%02d/%02d ", v.Index+1, v.Total)
	}
	b.WriteString(v.Title)
	b.WriteString("  ")
	b.WriteString(FormatClock(v.CurrentTime))
	b.WriteString(" / ")
	if v.Duration > 0 {
		b.WriteString(FormatClock(v.Duration))
	} else {
		b.WriteString("--:--")
	}

	b.WriteString(" | ")
	b.WriteString(StemsLabel(v.Stems))

	b.WriteString(" | beat ")
	b.WriteString(meter(v.Beat.BeatIntensity, 6))
	b.WriteString(" energy ")
	appendFloat(b, v.Beat.Energy, 2)

	b.WriteString(" | vol ")
	if v.Muted {
		b.WriteString("muted")
	} else {
		b.WriteString(strconv.Itoa(int(math.Round(clamp01(v.Volume) * 100))))
		b.WriteByte('%')
	}

	b.WriteString(" | ")
	if v.Prompt != "" {
		b.WriteString(v.Prompt)
	} else {
		b.WriteString("space play  n/p track  1-4 stems  m mute  ←/→ seek  q quit")
	}
	return b.String()
}

// FormatClock renders seconds as m:ss, or --:-- when not a valid time.
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "--:--"
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// StemsLabel shows each stem as its name when audible and dashes when muted.
func StemsLabel(st stems.State) string {
	parts := make([]string, 0, len(stems.All))
	for i, s := range stems.All {
		name := fmt.Sprintf("%d:%s", i+1, s)
		if !st.Get(s) {
			name = fmt.Sprintf("%d:%s", i+1, strings.Repeat("-", len(s)))
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, " ")
}

func meter(v float64, width int) string {
	n := clampInt(int(math.Round(clamp01(v)*float64(width))), 0, width)
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

// StatusBar pads or truncates text to width columns.
func StatusBar(text string, width int) string {
	if width <= 0 {
		return text
	}
	n := utf8.RuneCountInString(text)
	if n >= width {
		runes := []rune(text)
		return string(runes[:width])
	}
	return text + strings.Repeat(" ", width-n)
}

func appendFloat(builder *strings.Builder, value float64, precision int) {
	var buf [32]byte
	b := strconv.AppendFloat(buf[:0], value, 'f', precision, 64)
	builder.Write(b)
}
