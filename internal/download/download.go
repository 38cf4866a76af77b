// Package download contains the core orchestration engine for Vidgrab: the
// job registry, the per-job fetch worker and its state machine, the progress
// relay, the format planner, and the expiry/sweeper storage hygiene.
package download

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vidgrab/vidgrab/internal/engine"
	"github.com/vidgrab/vidgrab/pkg/logger"
)

var log = logger.Get("DownloadServ")

var (
	ErrJobNotFound      = errors.New("no download job could be found")
	ErrNotCancellable   = errors.New("job is not cancellable")
	ErrArtifactNotFound = errors.New("no artifact is available for this job")
)

const (
	// The job log is bounded; once it grows past logHighWater lines it is
	// truncated down to the most recent logRetained lines.
	logHighWater = 2000
	logRetained  = 1000
)

type (
	JobStatus int

	// Job is the unit of work tracked by the registry. All mutation
	// happens through the registry's synchronized update path; consumers
	// only ever see deep-copied snapshots.
	Job struct {
		ID  uuid.UUID
		URL string

		Status   JobStatus
		Progress float64

		Speed           float64
		ETASeconds      int
		DownloadedBytes int64
		TotalBytes      int64

		Filename    string
		Filepath    string
		PartialPath string

		UsedCookies bool

		CreatedAt  time.Time
		StartedAt  time.Time
		FinishedAt time.Time
		ExpiresAt  time.Time
		UpdatedAt  time.Time

		Log     []string
		Error   string
		VideoID string
		Plan    engine.FetchPlan

		Cancelled bool
		Expired   bool
	}
)

const (
	QUEUED JobStatus = iota
	DOWNLOADING
	PROCESSING
	FINISHED
	ERRORED
	CANCELLED
	EXPIRED
)

func (s JobStatus) String() string {
	switch s {
	case QUEUED:
		return "queued"
	case DOWNLOADING:
		return "downloading"
	case PROCESSING:
		return "processing"
	case FINISHED:
		return "finished"
	case ERRORED:
		return "error"
	case CANCELLED:
		return "cancelled"
	case EXPIRED:
		return "expired"
	default:
		return fmt.Sprintf("unknown[%d]", s)
	}
}

// Terminal reports whether no further work will be performed for a job in
// this status. FINISHED is terminal for the purposes of cancellation, even
// though the expiry scheduler will still move it to EXPIRED.
func (s JobStatus) Terminal() bool {
	switch s {
	case FINISHED, ERRORED, CANCELLED, EXPIRED:
		return true
	default:
		return false
	}
}

// CanAdvanceTo encodes the directed edges of the job state machine. Status
// never moves backwards: a fallback retry of an already-processing job keeps
// the job at PROCESSING while bytes transfer again.
func (s JobStatus) CanAdvanceTo(to JobStatus) bool {
	switch to {
	case ERRORED, CANCELLED:
		return !s.Terminal()
	case EXPIRED:
		return s == FINISHED
	case DOWNLOADING, PROCESSING, FINISHED:
		return !s.Terminal() && to > s
	default:
		return false
	}
}

func appendLog(job *Job, line string) {
	if line == "" {
		return
	}

	job.Log = append(job.Log, line)
	if len(job.Log) > logHighWater {
		job.Log = append([]string(nil), job.Log[len(job.Log)-logRetained:]...)
	}
}

func (job *Job) String() string {
	return fmt.Sprintf("Job{ID=%s status=%s}", job.ID, job.Status)
}
