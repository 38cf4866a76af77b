package download

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vidgrab/vidgrab/pkg/logger"
)

// tempSuffixes are the artifact patterns the fetch engine leaves behind
// while a transfer or merge is underway.
var tempSuffixes = []string{".part", ".ytdl", ".tmp", ".temp", ".frag"}

func isTempArtifact(name string) bool {
	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}

	return false
}

// ensureSweeper starts the background sweeper loop, at most once per
// process. Called lazily on first job submission.
func (service *downloadService) ensureSweeper() {
	service.sweeperOnce.Do(func() {
		log.Emit(logger.NEW, "Starting background sweeper (interval %s)\n", service.config.SweepInterval)
		go service.sweepLoop()
	})
}

func (service *downloadService) sweepLoop() {
	ticker := time.NewTicker(service.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			service.sweepOnce(time.Now())
		case <-service.shutdownCh:
			log.Emit(logger.STOP, "Sweeper shutting down\n")
			return
		}
	}
}

// sweepOnce reconciles the output directory against retention policy,
// independent of any job's own lifecycle:
//   - temp/partial artifacts older than the staleness threshold are
//     orphans from crashed or killed workers and are deleted;
//   - ANY file older than the retention window is deleted, a backstop for
//     jobs whose in-memory record was lost.
//
// Per-file errors are swallowed; the next interval retries.
func (service *downloadService) sweepOnce(now time.Time) {
	entries, err := os.ReadDir(service.config.OutputDirPath)
	if err != nil {
		log.Emit(logger.WARNING, "Sweep pass could not list output directory: %v\n", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		age := now.Sub(info.ModTime())
		path := filepath.Join(service.config.OutputDirPath, entry.Name())

		if isTempArtifact(entry.Name()) && age > service.config.TempMaxAge {
			log.Emit(logger.REMOVE, "Sweeping orphaned temp artifact %s (age %s)\n", entry.Name(), age)
			removeQuietly(path)
			continue
		}

		if age > service.config.RetentionPeriod {
			log.Emit(logger.REMOVE, "Sweeping artifact %s past retention (age %s)\n", entry.Name(), age)
			removeQuietly(path)
		}
	}
}
