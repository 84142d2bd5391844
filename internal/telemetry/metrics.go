// Package telemetry exposes playback metrics to Prometheus.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stemdeck"

// Metrics holds the player's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	tracksStarted   *prometheus.CounterVec
	audioErrors     *prometheus.CounterVec
	loadDuration    prometheus.Histogram
	playing         prometheus.Gauge
	stemEnabled     *prometheus.GaugeVec
	beats           prometheus.Counter
	keepaliveActive prometheus.Gauge
	subscribers     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		tracksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_started_total",
			Help:      "Tracks that started playing",
		}, []string{"title"}),
		audioErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_errors_total",
			Help:      "Audio errors reported to subscribers",
		}, []string{"type"}), // init, playback, load, network
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "track_load_duration_seconds",
			Help:      "Time to fetch and decode a track",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playing",
			Help:      "1 while a track is playing",
		}),
		stemEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stem_enabled",
			Help:      "1 when the stem is audible",
		}, []string{"stem"}),
		beats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beats_total",
			Help:      "Beats signalled by the analyzer",
		}),
		keepaliveActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keepalive_active",
			Help:      "1 while the keep-alive voice is looping",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "control_subscribers",
			Help:      "Connected control surface clients",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.tracksStarted.Describe(ch)
	m.audioErrors.Describe(ch)
	m.loadDuration.Describe(ch)
	m.playing.Describe(ch)
	m.stemEnabled.Describe(ch)
	m.beats.Describe(ch)
	m.keepaliveActive.Describe(ch)
	m.subscribers.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.tracksStarted.Collect(ch)
	m.audioErrors.Collect(ch)
	m.loadDuration.Collect(ch)
	m.playing.Collect(ch)
	m.stemEnabled.Collect(ch)
	m.beats.Collect(ch)
	m.keepaliveActive.Collect(ch)
	m.subscribers.Collect(ch)
}

// TrackStarted counts a successful start and its load time.
func (m *Metrics) TrackStarted(title string, load time.Duration) {
	if m == nil {
		return
	}
	m.tracksStarted.WithLabelValues(title).Inc()
	m.loadDuration.Observe(load.Seconds())
}

// AudioError counts an error by type.
func (m *Metrics) AudioError(kind string) {
	if m == nil {
		return
	}
	m.audioErrors.WithLabelValues(kind).Inc()
}

// SetPlaying records the transport state.
func (m *Metrics) SetPlaying(playing bool) {
	if m == nil {
		return
	}
	m.playing.Set(boolValue(playing))
}

// SetStem records whether stem is audible.
func (m *Metrics) SetStem(stem string, enabled bool) {
	if m == nil {
		return
	}
	m.stemEnabled.WithLabelValues(stem).Set(boolValue(enabled))
}

// Beat counts one detected beat.
func (m *Metrics) Beat() {
	if m == nil {
		return
	}
	m.beats.Inc()
}

// SetKeepalive records the keep-alive voice state.
func (m *Metrics) SetKeepalive(active bool) {
	if m == nil {
		return
	}
	m.keepaliveActive.Set(boolValue(active))
}

// AddSubscribers adjusts the connected client gauge by delta.
func (m *Metrics) AddSubscribers(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
