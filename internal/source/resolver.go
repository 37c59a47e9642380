// Package source resolves a configured source string into a fetch URL, a
// cache filename, and an optional target-file hint.
package source

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Source is the result of resolving a configured source string.
type Source struct {
	// FetchURL is the URL to download, with any fragment removed.
	FetchURL string
	// CacheName is the filename the artifact is cached under.
	CacheName string
	// TargetHint names the file to prefer inside an archive, taken from the
	// URL fragment. Empty when no fragment was given.
	TargetHint string
}

// NameStrategy derives a cache filename from a fetch URL. It returns an
// empty string when it does not apply, letting the next strategy run.
type NameStrategy struct {
	Name  string
	Apply func(fetchURL string) string
}

// zipToken matches a bare zip filename embedded anywhere in a URL. Redirect
// and proxy links (Solargis, atlas mirrors) bury the real filename in a
// url= query parameter where the path basename would be useless.
var zipToken = regexp.MustCompile(`([^/&?#]+\.zip)`)

// Strategies is the ordered cache-filename resolution policy. The first
// strategy returning a non-empty name wins.
var Strategies = []NameStrategy{
	{Name: "zip-token", Apply: zipTokenName},
	{Name: "path-basename", Apply: pathBasename},
	{Name: "host-fallback", Apply: hostFallback},
}

// Resolve splits the fragment off raw and derives the cache filename.
func Resolve(raw string) (Source, error) {
	if strings.TrimSpace(raw) == "" {
		return Source{}, eris.New("source: empty source URL")
	}

	fetchURL, hint := defrag(raw)

	for _, s := range Strategies {
		if name := s.Apply(fetchURL); name != "" {
			return Source{FetchURL: fetchURL, CacheName: name, TargetHint: hint}, nil
		}
	}

	return Source{}, eris.Errorf("source: cannot derive cache filename from %q", fetchURL)
}

// defrag splits a trailing "#target-file" marker off the source string.
func defrag(raw string) (fetchURL, hint string) {
	if i := strings.Index(raw, "#"); i >= 0 {
		return raw[:i], raw[i+1:]
	}
	return raw, ""
}

// zipTokenName extracts the first .zip token from redirect-style URLs.
// Only applies when the URL carries a url= parameter.
func zipTokenName(fetchURL string) string {
	if !strings.Contains(fetchURL, "url=") {
		return ""
	}
	if m := zipToken.FindString(fetchURL); m != "" {
		return m
	}
	return ""
}

// pathBasename takes the percent-decoded final path segment, with the query
// string stripped.
func pathBasename(fetchURL string) string {
	u, err := url.Parse(fetchURL)
	if err != nil {
		return ""
	}
	path := u.Path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	decoded, err := url.PathUnescape(path)
	if err != nil {
		decoded = path
	}
	return decoded
}

// hostFallback names the artifact after the host when the URL has no usable
// path segment.
func hostFallback(fetchURL string) string {
	u, err := url.Parse(fetchURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ReplaceAll(u.Host, ":", "_") + ".dat"
}
