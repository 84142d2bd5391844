package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/stemdeck/internal/engine"
	"github.com/guidoenr/stemdeck/internal/stems"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestSynthetic_Clock(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	s := NewSynthetic(zerolog.Nop(), map[string]float64{"/music/a.mp3": 200})
	s.now = clock.now

	g, err := s.Open()
	require.NoError(t, err)
	defer g.Close()

	assert.Equal(t, 0.0, g.Duration())
	assert.ErrorIs(t, g.Play(), engine.ErrNoSource)

	require.NoError(t, g.Load(context.Background(), "/music/a.mp3"))
	assert.Equal(t, 200.0, g.Duration())
	require.NoError(t, g.Play())

	clock.advance(3 * time.Second)
	assert.InDelta(t, 3, g.Position(), 1e-9)

	g.Pause()
	clock.advance(10 * time.Second)
	assert.InDelta(t, 3, g.Position(), 1e-9, "paused clock holds")

	require.NoError(t, g.Seek(100))
	assert.InDelta(t, 100, g.Position(), 1e-9)
	require.NoError(t, g.Seek(500))
	assert.InDelta(t, 200, g.Position(), 1e-9)

	require.NoError(t, g.Load(context.Background(), "/music/unknown.mp3"))
	assert.Equal(t, 180.0, g.Duration())
}

func TestSynthetic_Ended(t *testing.T) {
	s := NewSynthetic(zerolog.Nop(), map[string]float64{"/music/short.mp3": 0.02})
	g, err := s.Open()
	require.NoError(t, err)
	defer g.Close()

	ended := make(chan struct{}, 1)
	g.SetOnEnded(func() { ended <- struct{}{} })
	require.NoError(t, g.Load(context.Background(), "/music/short.mp3"))
	require.NoError(t, g.Play())

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("synthetic track never ended")
	}
	assert.InDelta(t, 0.02, g.Position(), 1e-9)
}

func TestSynthetic_SpectrumFollowsStems(t *testing.T) {
	s := NewSynthetic(zerolog.Nop(), nil)
	g, err := s.Open()
	require.NoError(t, err)

	src := g.Analyser()
	require.Equal(t, 128, src.FrequencyBinCount())
	bins := make([]uint8, 128)
	assert.Equal(t, 128, src.ByteFrequencyData(bins))
	assert.NotZero(t, bins[0])

	for _, st := range stems.All {
		g.SetStemGain(st, 0)
	}
	src.ByteFrequencyData(bins)
	for _, b := range bins {
		assert.Zero(t, b)
	}
}

func TestSynthetic_CanceledLoad(t *testing.T) {
	g, err := NewSynthetic(zerolog.Nop(), nil).Open()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.Load(ctx, "/music/a.mp3"), context.Canceled)
}
