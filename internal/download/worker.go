package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vidgrab/vidgrab/internal/engine"
	"github.com/vidgrab/vidgrab/internal/event"
	"github.com/vidgrab/vidgrab/pkg/logger"
)

const (
	// renameAttempts bounds how many random suffixes the renamer tries
	// before giving up and keeping the engine-resolved name.
	renameAttempts = 6

	// suffixAlphabet omits ambiguous characters (0/o, 1/l/i).
	suffixAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	suffixLength   = 6
)

var titleTokenPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// perform is the single driving routine for one job, executed on its own
// goroutine. It walks the job through the state machine: precondition check,
// probe, plan, fetch (with one fallback retry on post-processing failure),
// artifact resolution and rename, and the hand-off to the expiry scheduler.
// Cancellation observed at any point short-circuits into cleanup.
func (service *downloadService) perform(id uuid.UUID) {
	defer service.workerWg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-service.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	job, ok := service.registry.snapshot(id)
	if !ok {
		return
	}

	if _, err := service.lookPath(service.config.MergeToolName); err != nil {
		service.failJob(id, fmt.Sprintf("%s not found on PATH; please install %s", service.config.MergeToolName, service.config.MergeToolName))
		return
	}

	service.advance(id, DOWNLOADING, func(job *Job) {
		job.StartedAt = time.Now()
	})

	metadata, err := service.fetchEngine.Probe(ctx, job.URL)
	if err != nil {
		if service.jobCancelled(id) {
			service.finishCancelled(id)
			return
		}

		service.failJob(id, err.Error())
		return
	}

	plan, err := PlanFormat(metadata)
	if err != nil {
		service.failJob(id, err.Error())
		return
	}

	service.registry.update(id, func(job *Job) {
		job.VideoID = metadata.ID
		job.Plan = plan
	})

	finalPath, err := service.fetchOnce(ctx, id, job.URL, plan, metadata)
	if err != nil && !service.fetchAborted(id, err) {
		// A merge/post-processing failure earns exactly one retry with
		// the universal fallback plan, unless that is what just failed.
		if engine.IsPostProcessingFailure(err) && plan.MergeTo != fallbackContainer {
			fallback := FallbackPlan()
			log.Emit(logger.WARNING, "Fetch of job %s failed in post-processing (%v); retrying with fallback plan\n", id, err)
			service.registry.update(id, func(job *Job) {
				job.Plan = fallback
				appendLog(job, fmt.Sprintf("post-processing failed (%v), retrying with fallback plan", err))
			})

			finalPath, err = service.fetchOnce(ctx, id, job.URL, fallback, metadata)
		}
	}

	if err != nil {
		if service.fetchAborted(id, err) {
			service.finishCancelled(id)
			return
		}

		service.failJob(id, err.Error())
		return
	}

	finishedAt := time.Now()
	service.advance(id, FINISHED, func(job *Job) {
		job.FinishedAt = finishedAt
		job.ExpiresAt = finishedAt.Add(service.config.RetentionPeriod)
		job.Progress = 100
		job.Speed = 0
		job.ETASeconds = 0
	})

	log.Emit(logger.SUCCESS, "Job %s finished; artifact at %s\n", id, finalPath)
	service.eventBus.Dispatch(event.JobCompleteEvent, id)
	service.scheduleExpiry(id)
}

// fetchOnce performs a single fetch attempt with the plan provided, then
// resolves and renames the resulting artifact. Returns the artifact's final
// path on disk.
func (service *downloadService) fetchOnce(ctx context.Context, id uuid.UUID, url string, plan engine.FetchPlan, metadata *engine.StreamMetadata) (string, error) {
	relay := &progressRelay{service: service, jobID: id}
	result, err := service.fetchEngine.Fetch(ctx, url, plan, relay)
	if err != nil {
		return "", err
	}

	videoID := metadata.ID
	if result.VideoID != "" {
		videoID = result.VideoID
	}

	finalPath, err := service.resolveArtifact(result, videoID)
	if err != nil {
		return "", err
	}

	title := result.Title
	if title == "" {
		title = metadata.Title
	}

	return service.renameArtifact(id, finalPath, title), nil
}

// fetchAborted reports whether the fetch failure provided is (or was caused
// by) a cancellation request rather than a genuine error.
func (service *downloadService) fetchAborted(id uuid.UUID, err error) bool {
	return errors.Is(err, engine.ErrCancelled) || service.jobCancelled(id)
}

// resolveArtifact locates the fetched file on disk. Engine-reported
// candidates are preferred (most specific first); if none of them exist the
// output directory is searched for the newest file carrying the job's video
// identifier. Best-effort only - under concurrent jobs sharing the output
// directory the directory search can match a sibling job's file.
func (service *downloadService) resolveArtifact(result *engine.FetchResult, videoID string) (string, error) {
	for _, candidate := range result.OutputCandidates {
		if fileExists(candidate) {
			return candidate, nil
		}
	}

	if videoID != "" {
		marker := "[" + videoID + "]"
		newest := ""
		var newestMod time.Time

		entries, err := os.ReadDir(service.config.OutputDirPath)
		if err == nil {
			for _, entry := range entries {
				if entry.IsDir() || !strings.Contains(entry.Name(), marker) {
					continue
				}

				info, err := entry.Info()
				if err != nil {
					continue
				}

				if newest == "" || info.ModTime().After(newestMod) {
					newest = filepath.Join(service.config.OutputDirPath, entry.Name())
					newestMod = info.ModTime()
				}
			}
		}

		if newest != "" {
			return newest, nil
		}
	}

	return "", errors.New("download finished but output file was not found")
}

// renameArtifact renames the resolved artifact to a collision-free name
// derived from the title. A rename failure is tolerated: the job completes
// under the engine-resolved name instead. Returns whichever path the
// artifact ends up at.
func (service *downloadService) renameArtifact(id uuid.UUID, finalPath string, title string) string {
	ext := filepath.Ext(finalPath)
	base := slugTitle(title)

	for attempt := 0; attempt < renameAttempts; attempt++ {
		candidate := filepath.Join(filepath.Dir(finalPath), fmt.Sprintf("%s-%s%s", base, service.randSuffix(suffixLength), ext))
		if _, err := os.Stat(candidate); err == nil || !errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err := os.Rename(finalPath, candidate); err != nil {
			log.Emit(logger.WARNING, "Failed to rename artifact for job %s (%v); keeping original name\n", id, err)
			break
		}

		finalPath = candidate
		break
	}

	service.registry.update(id, func(job *Job) {
		job.Filename = filepath.Base(finalPath)
		job.Filepath = finalPath
	})

	return finalPath
}

// failJob records the failure message and moves the job to its terminal
// error state. Worker failures never escape their job.
func (service *downloadService) failJob(id uuid.UUID, message string) {
	log.Emit(logger.ERROR, "Job %s failed: %s\n", id, message)
	service.advance(id, ERRORED, func(job *Job) {
		job.Error = message
		appendLog(job, "ERROR: "+message)
	})

	service.eventBus.Dispatch(event.JobCompleteEvent, id)
}

// finishCancelled deletes everything the cancelled job may have left on
// disk and moves it to its terminal state. Cancellation is not an error, so
// any error recorded along the way is cleared.
func (service *downloadService) finishCancelled(id uuid.UUID) {
	job, ok := service.registry.snapshot(id)
	if !ok {
		return
	}

	for _, tracked := range []string{job.PartialPath, job.Filepath} {
		if tracked != "" {
			removeQuietly(tracked)
		}
	}

	service.purgeJobArtifacts(job)

	service.advance(id, CANCELLED, func(job *Job) {
		job.Error = ""
		job.Speed = 0
		job.ETASeconds = 0
	})

	log.Emit(logger.REMOVE, "Job %s cancelled and cleaned up\n", id)
	service.eventBus.Dispatch(event.JobCompleteEvent, id)
}

// purgeJobArtifacts removes any file in the output directory that looks like
// it belongs to the cancelled job: anything carrying its video identifier,
// plus recognized temporary artifacts modified during the job's active
// window (or the last couple of hours). Deliberately over-deletes rather
// than risk orphaning partial files.
func (service *downloadService) purgeJobArtifacts(job Job) {
	entries, err := os.ReadDir(service.config.OutputDirPath)
	if err != nil {
		return
	}

	marker := ""
	if job.VideoID != "" {
		marker = "[" + job.VideoID + "]"
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(service.config.OutputDirPath, entry.Name())
		if marker != "" && strings.Contains(entry.Name(), marker) {
			removeQuietly(path)
			continue
		}

		if !isTempArtifact(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		modTime := info.ModTime()
		if modTime.After(job.CreatedAt.Add(-10*time.Minute)) || now.Sub(modTime) < 2*time.Hour {
			removeQuietly(path)
		}
	}
}

// removeQuietly deletes the file at the path provided, treating
// "already gone" as success. Every delete in this package races the
// sweeper, the expiry timers and other workers, and must be idempotent.
func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Emit(logger.VERBOSE, "Failed to remove %s: %v\n", path, err)
	}
}

// slugTitle builds a short slug from the first two alphanumeric tokens of
// the title, lower-cased and hyphen-joined. Falls back to "video" when the
// title yields no tokens.
func slugTitle(title string) string {
	tokens := titleTokenPattern.FindAllString(title, 2)
	if len(tokens) == 0 {
		return "video"
	}

	return strings.ToLower(strings.Join(tokens, "-"))
}

func randSuffix(length int) string {
	suffix := make([]byte, length)
	for idx := range suffix {
		suffix[idx] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}

	return string(suffix)
}
