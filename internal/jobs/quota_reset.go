// quota_reset.go implements the QuotaResetJob background job, which zeroes
// today_usage on every API key at UTC midnight so daily allowances refresh on
// a predictable schedule for all users regardless of timezone.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/convertify/convertify/internal/db/repositories"
)

// QuotaResetJob resets daily API key usage counters at UTC midnight.
type QuotaResetJob struct {
	apiKeyRepo *repositories.APIKeyRepository
	enabled    bool
	stopChan   chan struct{}

	// now is swappable for tests.
	now func() time.Time
}

// NewQuotaResetJob creates a QuotaResetJob. When enabled is false, Start
// returns immediately and daily usage is never reset automatically.
func NewQuotaResetJob(apiKeyRepo *repositories.APIKeyRepository, enabled bool) *QuotaResetJob {
	return &QuotaResetJob{
		apiKeyRepo: apiKeyRepo,
		enabled:    enabled,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start begins the reset loop. Each iteration sleeps until the next UTC
// midnight, resets every key's today_usage, and goes back to sleep. The loop
// exits when ctx is cancelled or Stop() is called.
func (j *QuotaResetJob) Start(ctx context.Context) {
	if !j.enabled {
		log.Println("quota reset job: disabled (jobs.quota_reset_enabled=false)")
		return
	}

	log.Printf("quota reset job started (next reset: %v)", nextUTCMidnight(j.now()))

	for {
		timer := time.NewTimer(time.Until(nextUTCMidnight(j.now())))
		select {
		case <-timer.C:
			j.runReset(ctx)
		case <-j.stopChan:
			timer.Stop()
			log.Println("quota reset job stopped")
			return
		case <-ctx.Done():
			timer.Stop()
			log.Println("quota reset job context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (j *QuotaResetJob) Stop() {
	close(j.stopChan)
}

func (j *QuotaResetJob) runReset(ctx context.Context) {
	reset, err := j.apiKeyRepo.ResetDailyUsage(ctx)
	if err != nil {
		log.Printf("quota reset job: reset failed: %v", err)
		return
	}
	log.Printf("quota reset job: reset today_usage on %d key(s)", reset)
}

// nextUTCMidnight returns the first UTC midnight strictly after t.
func nextUTCMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
