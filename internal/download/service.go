package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vidgrab/vidgrab/internal/engine"
	"github.com/vidgrab/vidgrab/internal/event"
	"github.com/vidgrab/vidgrab/internal/urlkit"
	"github.com/vidgrab/vidgrab/pkg/logger"
)

type (
	// Config holds the knobs for the download service. The durations
	// default to the documented retention policy; tests shrink them.
	Config struct {
		OutputDirPath   string        `yaml:"output_dir" env:"DOWNLOAD_OUTPUT_DIR" env-default:"downloads"`
		CookiesFilePath string        `yaml:"cookies_file" env:"DOWNLOAD_COOKIES_FILE"`
		MergeToolName   string        `yaml:"merge_tool" env:"DOWNLOAD_MERGE_TOOL" env-default:"ffmpeg"`
		RetentionPeriod time.Duration `yaml:"retention_period" env:"DOWNLOAD_RETENTION_PERIOD" env-default:"5h"`
		SweepInterval   time.Duration `yaml:"sweep_interval" env:"DOWNLOAD_SWEEP_INTERVAL" env-default:"10m"`
		TempMaxAge      time.Duration `yaml:"temp_max_age" env:"DOWNLOAD_TEMP_MAX_AGE" env-default:"15m"`
	}

	// FetchEngine is the slice of the media fetch engine this service
	// consumes; satisfied by engine.YtdlpEngine.
	FetchEngine interface {
		Probe(ctx context.Context, url string) (*engine.StreamMetadata, error)
		Fetch(ctx context.Context, url string, plan engine.FetchPlan, sink engine.ProgressSink) (*engine.FetchResult, error)
	}

	// downloadService owns the job registry and drives every submitted
	// job through its lifecycle:
	//   - one fetch worker goroutine per job, with a single fallback
	//     retry on post-processing failure
	//   - cooperative cancellation via a per-job latch, observed on
	//     every progress callback
	//   - a one-shot expiry timer per finished artifact
	//   - a lazily-started background sweeper reconciling the output
	//     directory against retention policy
	downloadService struct {
		config      Config
		registry    *registry
		fetchEngine FetchEngine
		eventBus    event.EventCoordinator

		workerWg    sync.WaitGroup
		sweeperOnce sync.Once
		shutdownCh  chan struct{}

		// Indirections for tests; production values are set by New.
		lookPath   func(string) (string, error)
		randSuffix func(int) string
	}
)

// New constructs the download service, validating that the configured output
// directory exists (creating it when missing).
func New(config Config, eventBus event.EventCoordinator, fetchEngine FetchEngine) (*downloadService, error) {
	if info, err := os.Stat(config.OutputDirPath); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("output path '%s' is not a directory", config.OutputDirPath)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(config.OutputDirPath, os.ModeDir|os.ModePerm); err != nil {
			return nil, fmt.Errorf("output path '%s' could not be created: %w", config.OutputDirPath, err)
		}
	} else {
		return nil, fmt.Errorf("output path '%s' could not be accessed: %w", config.OutputDirPath, err)
	}

	return &downloadService{
		config:      config,
		registry:    newRegistry(),
		fetchEngine: fetchEngine,
		eventBus:    eventBus,
		shutdownCh:  make(chan struct{}),
		lookPath:    exec.LookPath,
		randSuffix:  randSuffix,
	}, nil
}

// Run blocks until the provided context is cancelled, then waits for all
// in-flight fetch workers to observe the shutdown and wind down.
func (service *downloadService) Run(ctx context.Context) error {
	<-ctx.Done()

	log.Emit(logger.STOP, "Shutting down (context cancelled). Waiting for fetch workers to finish.\n")
	close(service.shutdownCh)
	service.workerWg.Wait()
	return nil
}

// Submit validates and canonicalizes the raw URL provided, creates a queued
// job for it and spawns the fetch worker which will drive it to completion.
// The background sweeper is started on the first submission.
func (service *downloadService) Submit(rawURL string) (uuid.UUID, error) {
	cleanURL, kind, err := urlkit.Sanitize(rawURL)
	if err != nil {
		return uuid.Nil, err
	}

	if kind != urlkit.KindVideo && kind != urlkit.KindShort {
		return uuid.Nil, fmt.Errorf("%w: only individual videos or shorts are supported", urlkit.ErrInvalidURL)
	}

	now := time.Now()
	job := &Job{
		ID:          uuid.New(),
		URL:         cleanURL,
		Status:      QUEUED,
		UsedCookies: fileExists(service.config.CookiesFilePath),
		CreatedAt:   now,
		UpdatedAt:   now,
		Log:         make([]string, 0),
	}

	service.registry.insert(job)
	service.ensureSweeper()

	log.Emit(logger.NEW, "Accepted submission %s for %s\n", job.ID, cleanURL)
	service.workerWg.Add(1)
	go service.perform(job.ID)

	service.eventBus.Dispatch(event.JobUpdateEvent, job.ID)
	return job.ID, nil
}

// Cancel requests cooperative cancellation of the job with a matching ID.
// The latch is one-way: the worker and the progress relay observe it at
// their next checkpoint and abort. Jobs already in a terminal state are
// rejected with ErrNotCancellable.
func (service *downloadService) Cancel(id uuid.UUID) error {
	var rejection error
	found := service.registry.update(id, func(job *Job) {
		if job.Status.Terminal() {
			rejection = fmt.Errorf("job already %s: %w", job.Status, ErrNotCancellable)
			return
		}

		job.Cancelled = true
		appendLog(job, "cancellation requested")
	})

	if !found {
		return ErrJobNotFound
	}

	if rejection == nil {
		log.Emit(logger.REMOVE, "Cancellation requested for job %s\n", id)
	}

	return rejection
}

// Job returns a snapshot of the job with a matching ID.
func (service *downloadService) Job(id uuid.UUID) (Job, bool) {
	return service.registry.snapshot(id)
}

// Recent returns snapshots of the most-recently-created jobs, newest first.
func (service *downloadService) Recent(limit int) []Job {
	return service.registry.recent(limit)
}

// Artifact returns the on-disk location and display name of a finished
// job's file. ErrArtifactNotFound covers every miss: unknown job, job not
// finished, or the file already deleted by expiry/sweeping.
func (service *downloadService) Artifact(id uuid.UUID) (path string, name string, err error) {
	job, ok := service.registry.snapshot(id)
	if !ok || job.Status != FINISHED || job.Filepath == "" {
		return "", "", ErrArtifactNotFound
	}

	if !fileExists(job.Filepath) {
		return "", "", ErrArtifactNotFound
	}

	return job.Filepath, job.Filename, nil
}

// Probe resolves a URL to descriptive stream metadata without creating a
// job, applying the same validation as Submit.
func (service *downloadService) Probe(ctx context.Context, rawURL string) (*engine.StreamMetadata, error) {
	cleanURL, kind, err := urlkit.Sanitize(rawURL)
	if err != nil {
		return nil, err
	}

	if kind != urlkit.KindVideo && kind != urlkit.KindShort {
		return nil, fmt.Errorf("%w: only individual videos or shorts are supported", urlkit.ErrInvalidURL)
	}

	return service.fetchEngine.Probe(ctx, cleanURL)
}

// advance moves the job's status along the state machine, refusing backward
// transitions. The extra mutation (if any) is applied under the same lock
// acquisition as the status change.
func (service *downloadService) advance(id uuid.UUID, to JobStatus, mutate func(*Job)) {
	service.registry.update(id, func(job *Job) {
		if mutate != nil {
			mutate(job)
		}

		if job.Status.CanAdvanceTo(to) {
			job.Status = to
			appendLog(job, fmt.Sprintf("status -> %s", to))
		}
	})

	service.eventBus.Dispatch(event.JobUpdateEvent, id)
}

func (service *downloadService) jobCancelled(id uuid.UUID) bool {
	job, ok := service.registry.snapshot(id)
	return ok && job.Cancelled
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
