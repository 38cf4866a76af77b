package downloads

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/vidgrab/vidgrab/internal/download"
	"github.com/vidgrab/vidgrab/internal/engine"
	"github.com/vidgrab/vidgrab/internal/urlkit"
)

const defaultListLimit = 20

type (
	SubmitRequest struct {
		Url string `json:"url" validate:"required"`
	}

	ProbeDto struct {
		VideoId   string `json:"video_id"`
		Title     string `json:"title"`
		Uploader  string `json:"uploader"`
		Thumbnail string `json:"thumbnail,omitempty"`
	}

	// DownloadService is the slice of the download service this
	// controller consumes.
	DownloadService interface {
		Submit(rawURL string) (uuid.UUID, error)
		Cancel(id uuid.UUID) error
		Job(id uuid.UUID) (download.Job, bool)
		Recent(limit int) []download.Job
		Artifact(id uuid.UUID) (path string, name string, err error)
		Probe(ctx context.Context, rawURL string) (*engine.StreamMetadata, error)
	}

	// Controller defines the routes for submitting, inspecting,
	// cancelling and fetching download jobs.
	Controller struct {
		validate *validator.Validate
		service  DownloadService
	}
)

func New(validate *validator.Validate, service DownloadService) *Controller {
	return &Controller{validate: validate, service: service}
}

// SetRoutes accepts the echo group for the download endpoints and sets the
// routes on it.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.create)
	eg.GET("/", controller.list)
	eg.POST("/probe/", controller.probe)
	eg.GET("/:id/", controller.get)
	eg.POST("/:id/cancel/", controller.cancel)
	eg.GET("/:id/file/", controller.file)
}

// create validates the submitted URL and spawns a new download job for it,
// returning the job's identifier.
func (controller *Controller) create(ec echo.Context) error {
	var request SubmitRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body malformed")
	}

	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := controller.service.Submit(request.Url)
	if err != nil {
		if errors.Is(err, urlkit.ErrInvalidURL) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusCreated, map[string]any{"id": id})
}

// list returns the most-recently-created jobs, reduced to their display
// fields. The 'limit' query param caps the result set (default 20).
func (controller *Controller) list(ec echo.Context) error {
	limit := defaultListLimit
	if raw := ec.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}

		limit = parsed
	}

	return ec.JSON(http.StatusOK, NewReducedDtos(controller.service.Recent(limit)))
}

// get returns the full snapshot of the job with a matching ID.
func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "job ID is not a valid UUID")
	}

	job, ok := controller.service.Job(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	return ec.JSON(http.StatusOK, NewDto(job))
}

// cancel requests cooperative cancellation of the job with a matching ID.
// Jobs already in a terminal state are rejected with the reason.
func (controller *Controller) cancel(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "job ID is not a valid UUID")
	}

	if err := controller.service.Cancel(id); err != nil {
		if errors.Is(err, download.ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ec.JSON(http.StatusOK, map[string]any{"message": "cancellation requested"})
}

// file streams the finished artifact as an attachment. 404 unless the job
// is finished and its file is still on disk.
func (controller *Controller) file(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "job ID is not a valid UUID")
	}

	path, name, err := controller.service.Artifact(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	return ec.Attachment(path, name)
}

// probe resolves a URL to a metadata preview without creating a job.
func (controller *Controller) probe(ec echo.Context) error {
	var request SubmitRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body malformed")
	}

	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	metadata, err := controller.service.Probe(ec.Request().Context(), request.Url)
	if err != nil {
		if errors.Is(err, urlkit.ErrInvalidURL) || errors.Is(err, engine.ErrUnsupportedContent) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, ProbeDto{
		VideoId:   metadata.ID,
		Title:     metadata.Title,
		Uploader:  metadata.Uploader,
		Thumbnail: metadata.Thumbnail,
	})
}
