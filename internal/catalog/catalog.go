package catalog

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a catalog fails validation.
var ErrInvalid = errors.New("invalid catalog")

var srcPattern = regexp.MustCompile(`^/music/[a-z0-9_]+\.mp3$`)

// Track is one entry of the catalog. Its index in the catalog is its identity.
type Track struct {
	Title    string `yaml:"title" json:"title"`
	Src      string `yaml:"src" json:"src"`
	Duration string `yaml:"duration,omitempty" json:"duration,omitempty"`
}

// Length parses the optional "m:ss" duration. It returns 0 when unknown.
func (t Track) Length() time.Duration {
	if t.Duration == "" {
		return 0
	}
	mins, secs, ok := strings.Cut(t.Duration, ":")
	if !ok {
		return 0
	}
	m, err := strconv.Atoi(mins)
	if err != nil {
		return 0
	}
	s, err := strconv.Atoi(secs)
	if err != nil || s >= 60 {
		return 0
	}
	return time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}

// Catalog is an immutable, ordered list of tracks.
type Catalog struct {
	tracks []Track
}

// New validates tracks and returns a catalog holding a private copy of them.
func New(tracks []Track) (*Catalog, error) {
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no tracks", ErrInvalid)
	}
	titles := make(map[string]int, len(tracks))
	srcs := make(map[string]int, len(tracks))
	for i, t := range tracks {
		if strings.TrimSpace(t.Title) == "" {
			return nil, fmt.Errorf("%w: track %d has no title", ErrInvalid, i)
		}
		if !srcPattern.MatchString(t.Src) {
			return nil, fmt.Errorf("%w: track %d src %q does not match /music/<name>.mp3", ErrInvalid, i, t.Src)
		}
		if j, dup := titles[t.Title]; dup {
			return nil, fmt.Errorf("%w: duplicate title %q (tracks %d and %d)", ErrInvalid, t.Title, j, i)
		}
		if j, dup := srcs[t.Src]; dup {
			return nil, fmt.Errorf("%w: duplicate src %q (tracks %d and %d)", ErrInvalid, t.Src, j, i)
		}
		titles[t.Title] = i
		srcs[t.Src] = i
	}
	cp := make([]Track, len(tracks))
	copy(cp, tracks)
	return &Catalog{tracks: cp}, nil
}

type file struct {
	Tracks []Track `yaml:"tracks"`
}

// Load reads a YAML catalog of the form `tracks: [{title, src, duration}]`.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(f.Tracks)
}

// Len returns the number of tracks.
func (c *Catalog) Len() int {
	return len(c.tracks)
}

// Wrap maps any integer onto a valid index using Euclidean modulo.
func (c *Catalog) Wrap(index int) int {
	n := len(c.tracks)
	i := index % n
	if i < 0 {
		i += n
	}
	return i
}

// Track returns the track at the wrapped index.
func (c *Catalog) Track(index int) Track {
	return c.tracks[c.Wrap(index)]
}

// Next returns the index after i, wrapping to 0.
func (c *Catalog) Next(i int) int {
	return c.Wrap(i + 1)
}

// Prev returns the index before i, wrapping to the last track.
func (c *Catalog) Prev(i int) int {
	return c.Wrap(i - 1)
}

// Tracks returns a copy of all tracks in order.
func (c *Catalog) Tracks() []Track {
	out := make([]Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}
