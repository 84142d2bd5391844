package audio

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/stemdeck/internal/engine"
	"github.com/guidoenr/stemdeck/internal/stems"
)

// writeTone writes a mono 16-bit sine to dir/name and returns its path.
func writeTone(t *testing.T, dir, name string, rate int, seconds, freq float64) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()

	n := int(seconds * float64(rate))
	data := make([]int, n)
	for i := range data {
		data[i] = int(0.5 * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: rate, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return p
}

func testGraph(t *testing.T) *Graph {
	t.Helper()
	cfg := Config{}.withDefaults()
	g, err := newGraph(zerolog.Nop(), cfg, 44100, &http.Client{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return g
}

// pull streams seconds of output and returns its peak.
func pull(g *Graph, seconds float64) float64 {
	buf := make([][2]float64, 1024)
	peak := 0.0
	for done := 0; done < int(seconds*44100); done += len(buf) {
		n, _ := g.out.Stream(buf)
		for _, s := range buf[:n] {
			peak = math.Max(peak, math.Abs(s[0]))
		}
	}
	return peak
}

// =============================================================================
// Element
// =============================================================================

type finite struct{ left int }

func (f *finite) Stream(samples [][2]float64) (int, bool) {
	if f.left == 0 {
		return 0, false
	}
	n := min(len(samples), f.left)
	for i := range n {
		samples[i] = [2]float64{1, 1}
	}
	f.left -= n
	return n, true
}

func (f *finite) Err() error { return nil }

func TestElement_SilentWithoutSource(t *testing.T) {
	el := &element{rate: 44100}
	buf := [][2]float64{{1, 1}, {1, 1}}
	n, ok := el.Stream(buf)
	assert.Equal(t, 2, n)
	assert.True(t, ok)
	assert.Equal(t, [2]float64{}, buf[0])
	assert.Equal(t, 0.0, el.duration())
	assert.ErrorIs(t, el.seek(10), engine.ErrNoSource)
}

func TestElement_EndedFiresOnce(t *testing.T) {
	ended := make(chan struct{}, 4)
	el := &element{rate: 44100, out: &finite{left: 3}, ended: func() { ended <- struct{}{} }}

	buf := make([][2]float64, 4)
	n, ok := el.Stream(buf)
	assert.Equal(t, 4, n, "short reads are padded")
	assert.True(t, ok)
	assert.Equal(t, [2]float64{}, buf[3])

	for range 3 {
		n, ok = el.Stream(buf)
		assert.Equal(t, 4, n)
		assert.True(t, ok, "element never drains")
	}
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("ended callback not called")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, ended, 0)
}

// =============================================================================
// Graph
// =============================================================================

func TestGraph_NodeLayout(t *testing.T) {
	g := testGraph(t)
	assert.Equal(t, stems.NodeCounts{StemGains: 4, OutputGains: 1, Filters: 6}, g.stems.NodeCounts())
	assert.Equal(t, 128, g.Analyser().FrequencyBinCount())
}

func TestGraph_LoadPlayPauseSeek(t *testing.T) {
	g := testGraph(t)
	src := writeTone(t, t.TempDir(), "tone.wav", 44100, 0.5, 440)

	require.ErrorIs(t, g.Play(), engine.ErrNoSource)
	require.NoError(t, g.Load(context.Background(), src))
	assert.InDelta(t, 0.5, g.Duration(), 0.01)
	assert.Less(t, pull(g, 0.05), 1e-9, "loaded sources start paused")

	require.NoError(t, g.Play())
	assert.Greater(t, pull(g, 0.1), 0.05)
	assert.Greater(t, g.Position(), 0.05)

	g.Pause()
	pos := g.Position()
	assert.Less(t, pull(g, 0.05), 1e-9)
	assert.Equal(t, pos, g.Position(), "pause holds the position")

	require.NoError(t, g.Seek(0.25))
	assert.InDelta(t, 0.25, g.Position(), 0.01)
}

func TestGraph_ResamplesSource(t *testing.T) {
	g := testGraph(t)
	src := writeTone(t, t.TempDir(), "low.wav", 22050, 0.5, 220)

	require.NoError(t, g.Load(context.Background(), src))
	assert.InDelta(t, 0.5, g.Duration(), 0.01)
	require.NoError(t, g.Play())
	assert.Greater(t, pull(g, 0.1), 0.05)
}

func TestGraph_MuteAndVolume(t *testing.T) {
	g := testGraph(t)
	src := writeTone(t, t.TempDir(), "tone.wav", 44100, 1, 440)
	require.NoError(t, g.Load(context.Background(), src))
	require.NoError(t, g.Play())
	pull(g, 0.1) // let the filters settle

	full := pull(g, 0.1)
	g.SetMuted(true)
	assert.Less(t, pull(g, 0.05), 1e-9)

	g.SetMuted(false)
	g.SetVolume(0.5)
	half := pull(g, 0.1)
	assert.InDelta(t, full/2, half, full*0.1)

	g.SetVolume(0)
	assert.Less(t, pull(g, 0.05), 1e-9)
}

func TestGraph_EndedCallback(t *testing.T) {
	g := testGraph(t)
	src := writeTone(t, t.TempDir(), "short.wav", 44100, 0.1, 440)
	ended := make(chan struct{}, 1)
	g.SetOnEnded(func() { ended <- struct{}{} })

	require.NoError(t, g.Load(context.Background(), src))
	require.NoError(t, g.Play())
	pull(g, 0.3)

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("ended callback not called")
	}

	require.NoError(t, g.Play(), "an ended source restarts")
	assert.Greater(t, pull(g, 0.05), 0.05)
}

func TestGraph_LoadFailures(t *testing.T) {
	dir := t.TempDir()
	tone := writeTone(t, dir, "tone.wav", 44100, 0.2, 440)
	data, err := os.ReadFile(tone)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/music/tone.wav":
			_, _ = w.Write(data)
		case "/music/broken.wav":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	defer srv.Close()

	tests := []struct {
		name    string
		src     string
		wantErr bool
		network bool
	}{
		{"remote ok", srv.URL + "/music/tone.wav", false, false},
		{"missing file", filepath.Join(dir, "nope.mp3"), true, false},
		{"not audio", writeGarbage(t, dir), true, false},
		{"remote 404", srv.URL + "/music/gone.mp3", true, false},
		{"remote 502", srv.URL + "/music/broken.wav", true, true},
		{"unreachable", deadURL + "/music/tone.wav", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGraph(t)
			err := g.Load(context.Background(), tt.src)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.InDelta(t, 0.2, g.Duration(), 0.01)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.network, isNetwork(err))
			assert.Equal(t, 0.0, g.Duration(), "failed loads leave nothing loaded")
		})
	}
}

func writeGarbage(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(p, []byte("definitely not a wav file"), 0o600))
	return p
}

func isNetwork(err error) bool {
	return errors.Is(err, engine.ErrNetwork)
}
