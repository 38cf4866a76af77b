// Package urlkit canonicalizes raw, user-supplied YouTube URLs before a
// download job is created for them. Anything that is not a direct link to a
// single video or short is rejected here so that the download service never
// sees it.
package urlkit

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Kind int

const (
	KindVideo Kind = iota
	KindShort
	KindOther
)

// ErrInvalidURL is wrapped by every rejection returned from Sanitize so that
// callers can classify validation failures with errors.Is.
var ErrInvalidURL = errors.New("invalid URL")

var allowedHosts = map[string]struct{}{
	"youtube.com":       {},
	"www.youtube.com":   {},
	"m.youtube.com":     {},
	"youtu.be":          {},
	"music.youtube.com": {},
}

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindShort:
		return "short"
	default:
		return "other"
	}
}

// Sanitize parses the raw string provided and, if it points at a single
// YouTube video or short, returns the canonical form of the URL along with
// its classification. All failures wrap ErrInvalidURL.
func Sanitize(raw string) (string, Kind, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", KindOther, fmt.Errorf("%w: malformed URL", ErrInvalidURL)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", KindOther, fmt.Errorf("%w: please enter a valid URL (including https://)", ErrInvalidURL)
	}

	host := strings.ToLower(parsed.Host)
	if _, ok := allowedHosts[host]; !ok {
		return "", KindOther, fmt.Errorf("%w: only YouTube URLs are supported", ErrInvalidURL)
	}

	if host == "youtu.be" {
		id := firstPathSegment(parsed.Path)
		if id == "" {
			return "", KindOther, fmt.Errorf("%w: invalid youtu.be URL (missing id)", ErrInvalidURL)
		}

		return watchURL(id), KindVideo, nil
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}

	switch {
	case strings.HasPrefix(path, "/watch"):
		return cleanWatch(parsed.Query())
	case strings.Contains(path, "/shorts/"):
		return cleanShorts(path)
	}

	return "", KindOther, fmt.Errorf("%w: only direct YouTube video or shorts URLs are supported", ErrInvalidURL)
}

func cleanWatch(query url.Values) (string, Kind, error) {
	id := query.Get("v")
	if id == "" {
		return "", KindOther, fmt.Errorf("%w: invalid YouTube watch URL (missing video id)", ErrInvalidURL)
	}

	return watchURL(id), KindVideo, nil
}

func cleanShorts(path string) (string, Kind, error) {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	for idx, segment := range segments {
		if segment != "shorts" {
			continue
		}

		if idx+1 >= len(segments) {
			break
		}

		return fmt.Sprintf("https://www.youtube.com/shorts/%s", segments[idx+1]), KindShort, nil
	}

	return "", KindOther, fmt.Errorf("%w: invalid YouTube shorts URL (missing id)", ErrInvalidURL)
}

func watchURL(id string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}

func firstPathSegment(path string) string {
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			return segment
		}
	}

	return ""
}
