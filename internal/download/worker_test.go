package download

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidgrab/vidgrab/internal/engine"
)

func Test_SlugTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		summary string
		title   string
		want    string
	}{
		{"two words", "My Cool Video!", "my-cool"},
		{"single word", "Solo", "solo"},
		{"extra words truncated", "One Two Three Four", "one-two"},
		{"punctuation stripped", "Hello, World: The Sequel", "hello-world"},
		{"digits kept", "Top 10 Moments", "top-10"},
		{"no usable tokens", "!!! ---", "video"},
		{"empty title", "", "video"},
		{"non-latin skipped", "日本語 abc def", "abc-def"},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			assert.Equal(t, tt.want, slugTitle(tt.title))
		})
	}
}

func Test_RandSuffix_UsesUnambiguousAlphabet(t *testing.T) {
	t.Parallel()

	for i := 0; i < 100; i++ {
		suffix := randSuffix(suffixLength)
		assert.Len(t, suffix, suffixLength)
		for _, ch := range suffix {
			assert.True(t, strings.ContainsRune(suffixAlphabet, ch), "unexpected character %q in suffix", ch)
		}
	}
}

func Test_RenameArtifact_SkipsCollidingNames(t *testing.T) {
	t.Parallel()

	serv := newTestService(t, &stubEngine{})
	dir := serv.config.OutputDirPath

	suffixes := []string{"aaaaaa", "bbbbbb", "cccccc"}
	next := 0
	serv.randSuffix = func(int) string {
		suffix := suffixes[next%len(suffixes)]
		next++
		return suffix
	}

	original := filepath.Join(dir, "My_Video [vid123].mp4")
	require.NoError(t, os.WriteFile(original, []byte("media"), 0o644))

	// Occupy the first candidate name; the renamer must move on to the next.
	collision := filepath.Join(dir, "my-video-aaaaaa.mp4")
	require.NoError(t, os.WriteFile(collision, []byte("other"), 0o644))

	id := uuid.New()
	serv.registry.insert(&Job{ID: id})

	finalPath := serv.renameArtifact(id, original, "My Video")
	assert.Equal(t, filepath.Join(dir, "my-video-bbbbbb.mp4"), finalPath)
	assert.FileExists(t, finalPath)
	assert.NoFileExists(t, original)

	job, ok := serv.Job(id)
	require.True(t, ok)
	assert.Equal(t, "my-video-bbbbbb.mp4", job.Filename)
	assert.Equal(t, finalPath, job.Filepath)
}

func Test_RenameArtifact_KeepsOriginalWhenEverySuffixCollides(t *testing.T) {
	t.Parallel()

	serv := newTestService(t, &stubEngine{})
	dir := serv.config.OutputDirPath

	// Every attempt yields the same suffix, and that name is taken: the
	// renamer must exhaust its attempts and keep the engine-resolved name.
	serv.randSuffix = func(int) string { return "aaaaaa" }

	original := filepath.Join(dir, "My_Video [vid123].mp4")
	require.NoError(t, os.WriteFile(original, []byte("media"), 0o644))
	collision := filepath.Join(dir, "my-video-aaaaaa.mp4")
	require.NoError(t, os.WriteFile(collision, []byte("other"), 0o644))

	id := uuid.New()
	serv.registry.insert(&Job{ID: id})

	finalPath := serv.renameArtifact(id, original, "My Video")
	assert.Equal(t, original, finalPath)
	assert.FileExists(t, original)

	content, err := os.ReadFile(collision)
	require.NoError(t, err)
	assert.Equal(t, "other", string(content), "the colliding file must never be overwritten")

	job, ok := serv.Job(id)
	require.True(t, ok)
	assert.Equal(t, filepath.Base(original), job.Filename)
	assert.Equal(t, original, job.Filepath)
}

func Test_RenameArtifact_ToleratesFailure(t *testing.T) {
	t.Parallel()

	serv := newTestService(t, &stubEngine{})

	// The original was already moved/deleted out from under us; the rename
	// fails and the engine-resolved path is kept.
	original := filepath.Join(serv.config.OutputDirPath, "Vanished [vid123].mp4")
	id := uuid.New()
	serv.registry.insert(&Job{ID: id})

	finalPath := serv.renameArtifact(id, original, "Vanished")
	assert.Equal(t, original, finalPath)

	job, ok := serv.Job(id)
	require.True(t, ok)
	assert.Equal(t, filepath.Base(original), job.Filename)
}

func Test_ResolveArtifact_PrefersEngineCandidates(t *testing.T) {
	t.Parallel()

	serv := newTestService(t, &stubEngine{})
	dir := serv.config.OutputDirPath

	candidate := filepath.Join(dir, "Reported [vid123].mp4")
	require.NoError(t, os.WriteFile(candidate, []byte("media"), 0o644))

	resolved, err := serv.resolveArtifact(&engine.FetchResult{
		OutputCandidates: []string{filepath.Join(dir, "missing.mp4"), candidate},
	}, "vid123")
	require.NoError(t, err)
	assert.Equal(t, candidate, resolved)
}

func Test_ResolveArtifact_FallsBackToNewestMarkedFile(t *testing.T) {
	t.Parallel()

	serv := newTestService(t, &stubEngine{})
	dir := serv.config.OutputDirPath

	older := filepath.Join(dir, "older [vid123].mp4")
	newer := filepath.Join(dir, "newer [vid123].mkv")
	unrelated := filepath.Join(dir, "unrelated [other].mp4")
	for _, path := range []string{older, newer, unrelated} {
		require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))
	}

	now := time.Now()
	require.NoError(t, os.Chtimes(older, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, now, now))

	resolved, err := serv.resolveArtifact(&engine.FetchResult{}, "vid123")
	require.NoError(t, err)
	assert.Equal(t, newer, resolved)
}

func Test_ResolveArtifact_ErrorsWhenNothingFound(t *testing.T) {
	t.Parallel()

	serv := newTestService(t, &stubEngine{})

	_, err := serv.resolveArtifact(&engine.FetchResult{}, "vid123")
	assert.ErrorContains(t, err, "output file was not found")

	_, err = serv.resolveArtifact(&engine.FetchResult{}, "")
	assert.Error(t, err)
}
