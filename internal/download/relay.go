package download

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vidgrab/vidgrab/internal/engine"
	"github.com/vidgrab/vidgrab/internal/event"
)

// progressRelay adapts the fetch engine's callback surfaces into registry
// updates for one job. Every callback writes through the registry's
// synchronized update path, and the cancellation-checked callbacks signal
// the engine to stop work by returning engine.ErrCancelled.
type progressRelay struct {
	service *downloadService
	jobID   uuid.UUID
}

// OnTransferProgress records the latest transfer metrics. Invoked by the
// engine for every progress tick, so it must stay cheap: one registry
// critical section plus an event dispatch.
func (relay *progressRelay) OnTransferProgress(status engine.TransferStatus) error {
	if relay.service.jobCancelled(relay.jobID) {
		return engine.ErrCancelled
	}

	relay.service.registry.update(relay.jobID, func(job *Job) {
		if job.StartedAt.IsZero() {
			job.StartedAt = time.Now()
		}

		if job.Status.CanAdvanceTo(DOWNLOADING) {
			job.Status = DOWNLOADING
		}

		job.DownloadedBytes = status.DownloadedBytes
		job.TotalBytes = status.TotalBytes
		job.Speed = status.Speed
		job.ETASeconds = status.ETASeconds
		if status.TotalBytes > 0 {
			job.Progress = float64(status.DownloadedBytes) / float64(status.TotalBytes) * 100
		} else {
			job.Progress = 0
		}

		if status.Filename != "" {
			job.PartialPath = status.Filename
		}
	})

	relay.service.eventBus.Dispatch(event.JobProgressEvent, relay.jobID)
	return nil
}

// OnStageFinished fires when the engine reports byte transfer complete but
// pre-merge work remains: progress is raised to at least 99% and the job
// moves to PROCESSING. Final confirmation awaits artifact resolution.
func (relay *progressRelay) OnStageFinished(filename string) error {
	if relay.service.jobCancelled(relay.jobID) {
		return engine.ErrCancelled
	}

	relay.service.registry.update(relay.jobID, func(job *Job) {
		if job.Progress < 99 {
			job.Progress = 99
		}

		if job.Status.CanAdvanceTo(PROCESSING) {
			job.Status = PROCESSING
		}

		if filename != "" {
			job.PartialPath = filename
		}
	})

	relay.service.eventBus.Dispatch(event.JobUpdateEvent, relay.jobID)
	return nil
}

// OnPostProcessingFinished records the engine-reported final path. The
// worker's rename step may still move the file afterwards.
func (relay *progressRelay) OnPostProcessingFinished(finalPath string) error {
	if relay.service.jobCancelled(relay.jobID) {
		return engine.ErrCancelled
	}

	if finalPath == "" {
		return nil
	}

	relay.service.registry.update(relay.jobID, func(job *Job) {
		job.Filename = filepath.Base(finalPath)
		job.Filepath = finalPath
	})

	relay.service.eventBus.Dispatch(event.JobUpdateEvent, relay.jobID)
	return nil
}

var _ engine.ProgressSink = (*progressRelay)(nil)
