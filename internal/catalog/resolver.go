package catalog

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Resolver maps a site-absolute asset path (e.g. /music/x.mp3) to a location
// the backend can open.
type Resolver func(path string) string

// BasePath returns a resolver prefixing every asset path with root. Roots
// starting with http:// or https:// are joined as URLs, anything else as a
// filesystem directory. An empty root leaves paths relative to the working
// directory.
func BasePath(root string) Resolver {
	if IsRemote(root) {
		base := strings.TrimRight(root, "/")
		return func(path string) string {
			return base + "/" + strings.TrimLeft(path, "/")
		}
	}
	if root == "" {
		root = "."
	}
	return func(path string) string {
		return filepath.Join(root, filepath.FromSlash(strings.TrimLeft(path, "/")))
	}
}

// IsRemote reports whether loc is an http(s) URL.
func IsRemote(loc string) bool {
	u, err := url.Parse(loc)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
