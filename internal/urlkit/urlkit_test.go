package urlkit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vidgrab/vidgrab/internal/urlkit"
)

func Test_Sanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		summary   string
		raw       string
		wantURL   string
		wantKind  urlkit.Kind
		shouldErr bool
	}{
		{
			summary:  "plain watch URL",
			raw:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantURL:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantKind: urlkit.KindVideo,
		},
		{
			summary:  "watch URL with tracking params stripped",
			raw:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s&si=share-junk",
			wantURL:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantKind: urlkit.KindVideo,
		},
		{
			summary:  "bare youtube.com host",
			raw:      "https://youtube.com/watch?v=abc123",
			wantURL:  "https://www.youtube.com/watch?v=abc123",
			wantKind: urlkit.KindVideo,
		},
		{
			summary:  "mobile host",
			raw:      "https://m.youtube.com/watch?v=abc123",
			wantURL:  "https://www.youtube.com/watch?v=abc123",
			wantKind: urlkit.KindVideo,
		},
		{
			summary:  "music host",
			raw:      "https://music.youtube.com/watch?v=abc123",
			wantURL:  "https://www.youtube.com/watch?v=abc123",
			wantKind: urlkit.KindVideo,
		},
		{
			summary:  "short link expands to watch URL",
			raw:      "https://youtu.be/dQw4w9WgXcQ?si=share-junk",
			wantURL:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantKind: urlkit.KindVideo,
		},
		{
			summary:  "shorts URL canonicalized",
			raw:      "https://www.youtube.com/shorts/abc123?feature=share",
			wantURL:  "https://www.youtube.com/shorts/abc123",
			wantKind: urlkit.KindShort,
		},
		{
			summary:  "surrounding whitespace trimmed",
			raw:      "  https://www.youtube.com/watch?v=abc123  ",
			wantURL:  "https://www.youtube.com/watch?v=abc123",
			wantKind: urlkit.KindVideo,
		},
		{summary: "missing scheme", raw: "www.youtube.com/watch?v=abc123", shouldErr: true},
		{summary: "empty string", raw: "", shouldErr: true},
		{summary: "non-youtube host", raw: "https://vimeo.com/12345", shouldErr: true},
		{summary: "playlist URL", raw: "https://www.youtube.com/playlist?list=PL123", shouldErr: true},
		{summary: "channel URL", raw: "https://www.youtube.com/@SomeChannel", shouldErr: true},
		{summary: "watch without video id", raw: "https://www.youtube.com/watch?t=42", shouldErr: true},
		{summary: "shorts without id", raw: "https://www.youtube.com/shorts/", shouldErr: true},
		{summary: "bare short link host", raw: "https://youtu.be/", shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			cleaned, kind, err := urlkit.Sanitize(tt.raw)
			if tt.shouldErr {
				assert.ErrorIs(t, err, urlkit.ErrInvalidURL)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.wantURL, cleaned)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}
