// cleanup.go implements the CleanupJob background job, which periodically
// sweeps the upload and output directories for files older than the
// configured maximum age. Files abandoned by clients (uploads that never
// converted, outputs never downloaded) would otherwise accumulate forever.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/convertify/convertify/internal/config"
	"github.com/convertify/convertify/internal/staging"
	"github.com/convertify/convertify/internal/telemetry"
)

// CleanupJob periodically removes stale staged and converted files.
type CleanupJob struct {
	stager   *staging.Stager
	interval time.Duration
	maxAge   time.Duration
	stopChan chan struct{}
}

// NewCleanupJob creates a CleanupJob from the jobs configuration.
func NewCleanupJob(stager *staging.Stager, cfg *config.JobsConfig) *CleanupJob {
	intervalHours := cfg.CleanupIntervalHours
	if intervalHours <= 0 {
		intervalHours = 1
	}
	maxAgeHours := cfg.CleanupMaxAgeHours
	if maxAgeHours <= 0 {
		maxAgeHours = 24
	}
	return &CleanupJob{
		stager:   stager,
		interval: time.Duration(intervalHours) * time.Hour,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background sweep loop. It runs an initial sweep
// immediately, then repeats on the configured interval. The loop exits when
// ctx is cancelled or Stop() is called.
func (j *CleanupJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	log.Printf("file cleanup job started (interval: %v, max age: %v)", j.interval, j.maxAge)

	j.runSweep()

	for {
		select {
		case <-ticker.C:
			j.runSweep()
		case <-j.stopChan:
			log.Println("file cleanup job stopped")
			return
		case <-ctx.Done():
			log.Println("file cleanup job context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (j *CleanupJob) Stop() {
	close(j.stopChan)
}

func (j *CleanupJob) runSweep() {
	removed, err := j.stager.CleanupOlderThan(j.maxAge)
	if err != nil {
		log.Printf("file cleanup job: sweep error: %v", err)
	}
	if removed > 0 {
		telemetry.StagedFilesCleanedTotal.Add(float64(removed))
		log.Printf("file cleanup job: removed %d stale file(s)", removed)
	}
}
