package downloads_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidgrab/vidgrab/internal/api/downloads"
	"github.com/vidgrab/vidgrab/internal/download"
	"github.com/vidgrab/vidgrab/internal/engine"
	"github.com/vidgrab/vidgrab/internal/urlkit"
)

// stubService satisfies downloads.DownloadService with canned responses.
type stubService struct {
	submitID  uuid.UUID
	submitErr error
	cancelErr error
	job       download.Job
	jobFound  bool
	recent    []download.Job
	artifact  string
	artErr    error
	metadata  *engine.StreamMetadata
	probeErr  error
}

func (stub *stubService) Submit(string) (uuid.UUID, error)   { return stub.submitID, stub.submitErr }
func (stub *stubService) Cancel(uuid.UUID) error             { return stub.cancelErr }
func (stub *stubService) Job(uuid.UUID) (download.Job, bool) { return stub.job, stub.jobFound }
func (stub *stubService) Recent(int) []download.Job          { return stub.recent }

func (stub *stubService) Artifact(uuid.UUID) (string, string, error) {
	return stub.artifact, "clip.mp4", stub.artErr
}

func (stub *stubService) Probe(context.Context, string) (*engine.StreamMetadata, error) {
	return stub.metadata, stub.probeErr
}

func performRequest(t *testing.T, service downloads.DownloadService, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	ec := echo.New()
	downloads.New(validator.New(), service).SetRoutes(ec.Group("/downloads"))

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	rec := httptest.NewRecorder()
	ec.ServeHTTP(rec, req)
	return rec
}

func Test_Create(t *testing.T) {
	t.Parallel()

	id := uuid.New()

	t.Run("accepted submission returns the job ID", func(t *testing.T) {
		rec := performRequest(t, &stubService{submitID: id},
			http.MethodPost, "/downloads/", `{"url": "https://www.youtube.com/watch?v=abc"}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), id.String())
	})

	t.Run("invalid URL rejected with 400", func(t *testing.T) {
		rec := performRequest(t, &stubService{submitErr: urlkit.ErrInvalidURL},
			http.MethodPost, "/downloads/", `{"url": "https://example.com"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing url field rejected with 400", func(t *testing.T) {
		rec := performRequest(t, &stubService{submitID: id},
			http.MethodPost, "/downloads/", `{}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_Get(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	job := download.Job{ID: id, URL: "https://www.youtube.com/watch?v=abc", Status: download.DOWNLOADING, Progress: 42.4242}

	t.Run("known job returned with display fields", func(t *testing.T) {
		rec := performRequest(t, &stubService{job: job, jobFound: true},
			http.MethodGet, "/downloads/"+id.String()+"/", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"downloading"`)
		assert.Contains(t, rec.Body.String(), `"progress":42.42`)
	})

	t.Run("unknown job is 404", func(t *testing.T) {
		rec := performRequest(t, &stubService{},
			http.MethodGet, "/downloads/"+uuid.NewString()+"/", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed ID is 400", func(t *testing.T) {
		rec := performRequest(t, &stubService{},
			http.MethodGet, "/downloads/not-a-uuid/", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_List(t *testing.T) {
	t.Parallel()

	recent := []download.Job{
		{ID: uuid.New(), Status: download.FINISHED, Progress: 100},
		{ID: uuid.New(), Status: download.QUEUED},
	}

	t.Run("recent jobs returned in reduced form", func(t *testing.T) {
		rec := performRequest(t, &stubService{recent: recent}, http.MethodGet, "/downloads/", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"finished"`)
		assert.Contains(t, rec.Body.String(), `"status":"queued"`)
		assert.NotContains(t, rec.Body.String(), "used_cookies", "list view must stay reduced")
	})

	t.Run("non-numeric limit is 400", func(t *testing.T) {
		rec := performRequest(t, &stubService{}, http.MethodGet, "/downloads/?limit=lots", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("negative limit is 400", func(t *testing.T) {
		rec := performRequest(t, &stubService{}, http.MethodGet, "/downloads/?limit=-3", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_Cancel(t *testing.T) {
	t.Parallel()

	t.Run("accepted cancellation", func(t *testing.T) {
		rec := performRequest(t, &stubService{},
			http.MethodPost, "/downloads/"+uuid.NewString()+"/cancel/", "")

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown job is 404", func(t *testing.T) {
		rec := performRequest(t, &stubService{cancelErr: download.ErrJobNotFound},
			http.MethodPost, "/downloads/"+uuid.NewString()+"/cancel/", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("terminal job is 400", func(t *testing.T) {
		rec := performRequest(t, &stubService{cancelErr: download.ErrNotCancellable},
			http.MethodPost, "/downloads/"+uuid.NewString()+"/cancel/", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_File(t *testing.T) {
	t.Parallel()

	t.Run("missing artifact is 404", func(t *testing.T) {
		rec := performRequest(t, &stubService{artErr: download.ErrArtifactNotFound},
			http.MethodGet, "/downloads/"+uuid.NewString()+"/file/", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_Probe(t *testing.T) {
	t.Parallel()

	t.Run("metadata preview returned", func(t *testing.T) {
		stub := &stubService{metadata: &engine.StreamMetadata{
			ID: "abc123", Title: "My Video", Uploader: "Some Channel", Thumbnail: "https://i.ytimg.com/vi/abc123/hq720.jpg",
		}}
		rec := performRequest(t, stub,
			http.MethodPost, "/downloads/probe/", `{"url": "https://www.youtube.com/watch?v=abc123"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"video_id":"abc123"`)
		assert.Contains(t, rec.Body.String(), `"uploader":"Some Channel"`)
	})

	t.Run("unsupported content is 400", func(t *testing.T) {
		rec := performRequest(t, &stubService{probeErr: engine.ErrUnsupportedContent},
			http.MethodPost, "/downloads/probe/", `{"url": "https://www.youtube.com/watch?v=abc123"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
