package download

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidgrab/vidgrab/internal/event"
)

func Test_IsTempArtifact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"clip.mp4.part", true},
		{"clip.mp4.ytdl", true},
		{"clip.tmp", true},
		{"clip.temp", true},
		{"clip.f137.frag", true},
		{"clip.mp4", false},
		{"clip.mkv", false},
		{"partly-named.partial-thing", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTempArtifact(tt.name))
		})
	}
}

func Test_SweepOnce_EnforcesRetentionPolicy(t *testing.T) {
	t.Parallel()

	serv, err := New(Config{
		OutputDirPath:   t.TempDir(),
		MergeToolName:   "ffmpeg",
		RetentionPeriod: 5 * time.Hour,
		SweepInterval:   time.Hour,
		TempMaxAge:      15 * time.Minute,
	}, event.New(), &stubEngine{})
	require.NoError(t, err)

	now := time.Now()
	dir := serv.config.OutputDirPath

	ageFile := func(name string, age time.Duration) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(path, now.Add(-age), now.Add(-age)))
		return path
	}

	staleTemp := ageFile("orphan.mp4.part", 20*time.Minute)
	freshTemp := ageFile("active.mp4.part", 5*time.Minute)
	expiredArtifact := ageFile("forgotten.mp4", 6*time.Hour)
	recentArtifact := ageFile("recent.mp4", time.Hour)

	serv.sweepOnce(now)

	assert.NoFileExists(t, staleTemp, "stale temp artifacts are orphans and must be removed")
	assert.FileExists(t, freshTemp, "temp artifacts of in-flight work must survive")
	assert.NoFileExists(t, expiredArtifact, "anything past the retention window is removed")
	assert.FileExists(t, recentArtifact)
}

func Test_SweepOnce_IgnoresDirectories(t *testing.T) {
	t.Parallel()

	serv, err := New(Config{
		OutputDirPath:   t.TempDir(),
		MergeToolName:   "ffmpeg",
		RetentionPeriod: time.Nanosecond,
		SweepInterval:   time.Hour,
		TempMaxAge:      time.Nanosecond,
	}, event.New(), &stubEngine{})
	require.NoError(t, err)

	nested := filepath.Join(serv.config.OutputDirPath, "nested.part")
	require.NoError(t, os.Mkdir(nested, 0o755))

	serv.sweepOnce(time.Now().Add(time.Hour))
	assert.DirExists(t, nested)
}
