package download

import (
	"time"

	"github.com/google/uuid"
	"github.com/vidgrab/vidgrab/internal/event"
	"github.com/vidgrab/vidgrab/pkg/logger"
)

// scheduleExpiry arms a one-shot timer which deletes the job's artifact once
// the retention window elapses. Timers are never cancelled - the expire pass
// itself is idempotent and tolerates the sweeper having won the race.
func (service *downloadService) scheduleExpiry(id uuid.UUID) {
	time.AfterFunc(service.config.RetentionPeriod, func() {
		service.expire(id)
	})
}

// expire deletes the recorded artifact (missing is success) and marks the
// job expired. Guarded against duplicate arming: a job already expired is
// left untouched.
func (service *downloadService) expire(id uuid.UUID) {
	job, ok := service.registry.snapshot(id)
	if !ok || job.Expired {
		return
	}

	if job.Filepath != "" {
		removeQuietly(job.Filepath)
	}

	service.registry.update(id, func(job *Job) {
		job.Expired = true
		if job.Status.CanAdvanceTo(EXPIRED) {
			job.Status = EXPIRED
			appendLog(job, "artifact expired and deleted")
		}
	})

	log.Emit(logger.REMOVE, "Job %s expired; artifact deleted\n", id)
	service.eventBus.Dispatch(event.JobUpdateEvent, id)
}
