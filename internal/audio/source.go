package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"

	"github.com/guidoenr/stemdeck/internal/catalog"
	"github.com/guidoenr/stemdeck/internal/engine"
)

// memFile keeps fetched media seekable for the decoders.
type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

// openSource opens and decodes loc, a file path or an http(s) URL. Transport
// failures wrap engine.ErrNetwork.
func openSource(ctx context.Context, client *http.Client, loc string) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		rc  io.ReadCloser
		ext string
		err error
	)
	if catalog.IsRemote(loc) {
		rc, err = fetch(ctx, client, loc)
		if u, perr := url.Parse(loc); perr == nil {
			ext = path.Ext(u.Path)
		}
	} else {
		rc, err = os.Open(loc)
		ext = path.Ext(loc)
	}
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(ext) {
	case ".wav":
		s, format, err = wav.Decode(rc)
	default:
		s, format, err = mp3.Decode(rc)
	}
	if err != nil {
		_ = rc.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", loc, err)
	}
	if s.Len() <= 0 {
		_ = s.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: empty stream", loc)
	}
	return s, format, nil
}

func fetch(ctx context.Context, client *http.Client, loc string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", loc, engine.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("fetch %s: %w: %s", loc, engine.ErrNetwork, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: %s", loc, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", loc, engine.ErrNetwork, err)
	}
	return memFile{bytes.NewReader(data)}, nil
}
