package catalog

// Fixed metadata shown on the OS media surface for every track.
const (
	Artist = "Kalte Welle"
	Album  = "Alles hat ein Ende"
)

// Artwork is one image of the media-session artwork set.
type Artwork struct {
	Src   string
	Sizes string
	Type  string
}

// ArtworkSet lists the album artwork from smallest to largest.
var ArtworkSet = []Artwork{
	{Src: "/icons/icon-96x96.png", Sizes: "96x96", Type: "image/png"},
	{Src: "/icons/icon-128x128.png", Sizes: "128x128", Type: "image/png"},
	{Src: "/icons/icon-192x192.png", Sizes: "192x192", Type: "image/png"},
	{Src: "/icons/icon-256x256.png", Sizes: "256x256", Type: "image/png"},
	{Src: "/icons/icon-384x384.png", Sizes: "384x384", Type: "image/png"},
	{Src: "/icons/icon-512x512.png", Sizes: "512x512", Type: "image/png"},
}

var builtin = []Track{
	{Title: "Alles hat ein Ende", Src: "/music/alles_hat_ein_ende.mp3", Duration: "3:42"},
	{Title: "Nachtfahrt", Src: "/music/nachtfahrt.mp3", Duration: "4:05"},
	{Title: "Glass Horizon", Src: "/music/glass_horizon.mp3"},
	{Title: "Kaltes Licht", Src: "/music/kaltes_licht.mp3", Duration: "3:18"},
	{Title: "Satellite Hearts", Src: "/music/satellite_hearts.mp3"},
	{Title: "Low Orbit", Src: "/music/low_orbit.mp3", Duration: "2:57"},
	{Title: "Paper Moons", Src: "/music/paper_moons.mp3"},
	{Title: "Signal Drift", Src: "/music/signal_drift.mp3", Duration: "4:31"},
	{Title: "Neon Rain", Src: "/music/neon_rain.mp3"},
	{Title: "Undertow", Src: "/music/undertow.mp3", Duration: "3:26"},
	{Title: "Halcyon", Src: "/music/halcyon.mp3"},
	{Title: "Tidal Lock", Src: "/music/tidal_lock.mp3"},
	{Title: "Afterglow", Src: "/music/afterglow.mp3", Duration: "3:59"},
	{Title: "Static Bloom", Src: "/music/static_bloom.mp3"},
	{Title: "Parallax", Src: "/music/parallax.mp3"},
	{Title: "Wavelength", Src: "/music/wavelength.mp3", Duration: "4:12"},
	{Title: "Ember", Src: "/music/ember.mp3"},
	{Title: "Velvet Engine", Src: "/music/velvet_engine.mp3"},
	{Title: "Mirrors", Src: "/music/mirrors.mp3", Duration: "3:33"},
	{Title: "Solstice", Src: "/music/solstice.mp3"},
	{Title: "Phantom Limb", Src: "/music/phantom_limb.mp3"},
	{Title: "Quiet Storm", Src: "/music/quiet_storm.mp3", Duration: "5:02"},
	{Title: "Hollow Sun", Src: "/music/hollow_sun.mp3"},
	{Title: "Red Shift", Src: "/music/red_shift.mp3"},
	{Title: "Tracing", Src: "/music/tracing.mp3", Duration: "3:47"},
}

// Default returns the built-in 25 track catalog.
func Default() *Catalog {
	c, err := New(builtin)
	if err != nil {
		panic(err)
	}
	return c
}
