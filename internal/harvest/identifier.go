package harvest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedIdentifier is returned when a posting URL does not carry an identifier.
var ErrMalformedIdentifier = errors.New("malformed posting identifier")

// Marker defaults for the listing site.
const (
	DefaultStartMarker   = "JobCode="
	DefaultEndMarker     = "&Title"
	DefaultPostingMarker = "details.cfm?JobCode="
)

// IdentifierParser extracts the identifier between two fixed markers of a posting URL.
type IdentifierParser struct {
	Start string
	End   string
}

// Extract returns the identifier found in rawURL.
func (p IdentifierParser) Extract(rawURL string) (string, error) {
	start, end := p.Start, p.End
	if start == "" {
		start = DefaultStartMarker
	}
	if end == "" {
		end = DefaultEndMarker
	}
	i := strings.Index(rawURL, start)
	if i < 0 {
		return "", fmt.Errorf("%w: %q has no %q", ErrMalformedIdentifier, rawURL, start)
	}
	rest := rawURL[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", fmt.Errorf("%w: %q has no %q after %q", ErrMalformedIdentifier, rawURL, end, start)
	}
	id := strings.TrimSpace(rest[:j])
	if id == "" {
		return "", fmt.Errorf("%w: %q has an empty identifier", ErrMalformedIdentifier, rawURL)
	}
	return id, nil
}

// FilterPostingLinks keeps links containing marker, preserving order and duplicates.
func FilterPostingLinks(links []string, marker string) []string {
	if marker == "" {
		marker = DefaultPostingMarker
	}
	out := make([]string, 0, len(links))
	for _, link := range links {
		if link != "" && strings.Contains(link, marker) {
			out = append(out, link)
		}
	}
	return out
}
